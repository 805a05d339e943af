package dupefilter

import (
	"context"
	"testing"
	"time"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func TestMemorySeenMarksSecondAdmissionAsDuplicate(t *testing.T) {
	ctx := context.Background()
	f := NewMemory(time.Minute)
	req, _ := types.NewRequest("https://example.com/dup")

	seen, err := f.Seen(ctx, req)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatal("first admission should not be seen")
	}

	seen, err = f.Seen(ctx, req)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if !seen {
		t.Error("second admission of an equivalent request should be seen")
	}
}

func TestMemoryReleaseAllowsRecrawl(t *testing.T) {
	ctx := context.Background()
	f := NewMemory(time.Minute)
	req, _ := types.NewRequest("https://example.com/retry")

	if _, err := f.Seen(ctx, req); err != nil {
		t.Fatalf("seen: %v", err)
	}
	if err := f.Release(ctx, req, "retry"); err != nil {
		t.Fatalf("release: %v", err)
	}

	seen, err := f.Seen(ctx, req)
	if err != nil {
		t.Fatalf("seen after release: %v", err)
	}
	if seen {
		t.Error("a released fingerprint should be crawlable again")
	}
}

func TestMemoryInFlightExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	f := NewMemory(10 * time.Millisecond)
	req, _ := types.NewRequest("https://example.com/ttl")

	if _, err := f.Seen(ctx, req); err != nil {
		t.Fatalf("seen: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	seen, err := f.Seen(ctx, req)
	if err != nil {
		t.Fatalf("seen after ttl: %v", err)
	}
	if seen {
		t.Error("an expired in-flight entry should be treated as unseen")
	}
}

func TestMemoryCountAndReset(t *testing.T) {
	ctx := context.Background()
	f := NewMemory(time.Minute)
	r1, _ := types.NewRequest("https://example.com/1")
	r2, _ := types.NewRequest("https://example.com/2")
	f.Seen(ctx, r1)
	f.Seen(ctx, r2)

	if f.Count() != 2 {
		t.Errorf("expected count 2, got %d", f.Count())
	}
	f.Reset()
	if f.Count() != 0 {
		t.Errorf("expected count 0 after reset, got %d", f.Count())
	}
}

func TestMemoryImportExportRoundtrip(t *testing.T) {
	ctx := context.Background()
	f := NewMemory(time.Minute)
	req, _ := types.NewRequest("https://example.com/export")
	f.Seen(ctx, req)

	exported := f.Export()
	restored := NewMemory(time.Minute)
	restored.Import(exported)

	seen, err := restored.Seen(ctx, req)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if !seen {
		t.Error("importing an exported fingerprint should mark it seen on restore")
	}
}
