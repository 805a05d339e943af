package types

import (
	"net/http"
	"testing"
)

func TestFingerprintStableForEquivalentRequests(t *testing.T) {
	r1, err := NewRequest("HTTPS://Example.com:443/a/b/?z=1&a=2#frag")
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	r2, err := NewRequest("https://example.com/a/b?a=2&z=1")
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	if r1.Fingerprint() != r2.Fingerprint() {
		t.Errorf("expected equivalent requests to share a fingerprint, got %q and %q", r1.Fingerprint(), r2.Fingerprint())
	}
}

func TestFingerprintDiffersOnMethodOrBody(t *testing.T) {
	base, _ := NewRequest("https://example.com/search")
	base.Body = []byte("q=go")

	other, _ := NewRequest("https://example.com/search")
	other.Body = []byte("q=rust")

	if base.Fingerprint() == other.Fingerprint() {
		t.Error("expected different bodies to produce different fingerprints")
	}

	post, _ := NewRequest("https://example.com/search")
	post.Method = http.MethodPost
	if post.Fingerprint() == base.Fingerprint() {
		t.Error("expected different methods to produce different fingerprints")
	}
}

func TestFingerprintIgnoresHeadersByDefault(t *testing.T) {
	r1, _ := NewRequest("https://example.com/")
	r1.Headers.Set("X-Session", "abc")

	r2, _ := NewRequest("https://example.com/")
	r2.Headers.Set("X-Session", "xyz")

	if r1.Fingerprint() != r2.Fingerprint() {
		t.Error("headers should not affect the fingerprint unless opted in")
	}
}

func TestFingerprintRespectsSignificantHeaders(t *testing.T) {
	r1, _ := NewRequest("https://example.com/")
	r1.Headers.Set("X-Session", "abc")
	r1.WithSignificantHeaders("X-Session")

	r2, _ := NewRequest("https://example.com/")
	r2.Headers.Set("X-Session", "xyz")
	r2.WithSignificantHeaders("X-Session")

	if r1.Fingerprint() == r2.Fingerprint() {
		t.Error("opted-in significant headers should affect the fingerprint")
	}
}

func TestCanonicalizeURLDropsFragmentAndDefaultPort(t *testing.T) {
	got := CanonicalizeURL("HTTP://Example.COM:80/path/#section")
	want := "http://example.com/path"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeURLSortsQueryParams(t *testing.T) {
	got := CanonicalizeURL("https://example.com/?b=2&a=1&a=0")
	want := "https://example.com/?a=0&a=1&b=2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCloneDeepCopiesMutableFields(t *testing.T) {
	req, _ := NewRequest("https://example.com/")
	req.Headers.Set("X-A", "1")
	req.Body = []byte("body")
	req.Meta.Set("k", "v")
	req.Flags = []string{"seed"}

	clone := req.Clone()
	clone.Headers.Set("X-A", "2")
	clone.Body[0] = 'B'
	clone.Meta.Set("k", "changed")
	clone.Flags[0] = "mutated"

	if req.Headers.Get("X-A") != "1" {
		t.Error("mutating clone headers should not affect original")
	}
	if req.Body[0] != 'b' {
		t.Error("mutating clone body should not affect original")
	}
	if v, _ := req.Meta.Get("k"); v != "v" {
		t.Error("mutating clone meta should not affect original")
	}
	if req.Flags[0] != "seed" {
		t.Error("mutating clone flags should not affect original")
	}
	if clone.URL == req.URL {
		t.Error("clone should not alias the original URL pointer")
	}
}

func TestPriorityConstantsOrdering(t *testing.T) {
	if !(PriorityHighest > PriorityHigh && PriorityHigh > PriorityNormal && PriorityNormal > PriorityLow && PriorityLow > PriorityLowest) {
		t.Error("priority constants must be strictly ordered highest to lowest")
	}
}
