package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// Priority levels for request scheduling. Higher values are served
// first; ties are broken FIFO by the queue backend.
const (
	PriorityLowest  = -10
	PriorityLow     = -5
	PriorityNormal  = 0
	PriorityHigh    = 5
	PriorityHighest = 10
)

// Request represents a unit of crawl work to be fetched by the downloader.
type Request struct {
	URL     *url.URL
	Method  string
	Headers http.Header
	Body    []byte
	Cookies []*http.Cookie

	// Priority controls scheduling order; higher is served first.
	Priority int

	// Meta carries typed policy (proxy, timeout, retry_count, depth)
	// plus an overflow bag for spider-defined data.
	Meta RequestMeta

	// Callback is the name of the parser to invoke on a successful response.
	Callback string

	// Errback is the name of the parser to invoke when this request
	// terminates unsuccessfully (after retries are exhausted).
	Errback string

	// DontFilter bypasses the fingerprint filter when true.
	DontFilter bool

	// Flags are free-form labels surfaced in logs and signals.
	Flags []string

	// MaxRetries is the retry budget for this request (RETRY_TIMES default).
	MaxRetries int

	// FetcherType selects a transport by name ("http", "browser", ...).
	// Empty defers to the downloader's configured default.
	FetcherType string

	// ParentURL records which page discovered this request, for
	// depth tracking and diagnostics.
	ParentURL string

	CreatedAt time.Time
	ID        string

	fingerprint     string
	significantHdrs []string
}

// NewRequest creates a Request with sensible defaults.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	return &Request{
		URL:        u,
		Method:     http.MethodGet,
		Headers:    make(http.Header),
		Priority:   PriorityNormal,
		MaxRetries: 2,
		Meta:       RequestMeta{},
		CreatedAt:  time.Now(),
		ID:         uuid.NewString(),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}

// RegistrableDomain returns the eTLD+1 of the request's host (e.g.
// "a.b.example.co.uk" -> "example.co.uk"), used to roll per-host stats
// up to the registrable owner instead of fragmenting by subdomain.
// Falls back to Domain() for hosts the public suffix list doesn't
// cover (IPs, single-label hosts, unlisted TLDs).
func (r *Request) RegistrableDomain() string {
	host := r.Domain()
	if host == "" {
		return ""
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

// WithSignificantHeaders opts the named headers into the fingerprint
// computation. Defaults to none.
func (r *Request) WithSignificantHeaders(names ...string) *Request {
	r.significantHdrs = names
	r.fingerprint = ""
	return r
}

// Fingerprint returns the deterministic hash identifying this request
// for dupe-filtering purposes: a pure function of method, canonical
// URL, body, and any opted-in significant headers.
func (r *Request) Fingerprint() string {
	if r.fingerprint != "" {
		return r.fingerprint
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteByte('\n')
	b.WriteString(CanonicalizeURL(r.URLString()))
	b.WriteByte('\n')
	b.Write(r.Body)

	if len(r.significantHdrs) > 0 {
		names := append([]string(nil), r.significantHdrs...)
		sort.Strings(names)
		for _, name := range names {
			b.WriteByte('\n')
			b.WriteString(strings.ToLower(name))
			b.WriteByte(':')
			b.WriteString(strings.Join(r.Headers.Values(name), ","))
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	r.fingerprint = hex.EncodeToString(sum[:16])
	return r.fingerprint
}

// CanonicalizeURL normalizes a URL for fingerprinting and deduplication:
// lowercases scheme/host, drops the fragment, sorts query parameters,
// and removes default ports.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if ascii, err := idna.Lookup.ToASCII(u.Hostname()); err == nil {
		if port := u.Port(); port != "" {
			u.Host = ascii + ":" + port
		} else {
			u.Host = ascii
		}
	}

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := append([]string(nil), params[k]...)
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// Clone creates a deep copy of the request, suitable for re-enqueueing
// a middleware- or retry-produced variant without aliasing the original.
func (r *Request) Clone() *Request {
	clone := *r
	if r.URL != nil {
		u := *r.URL
		clone.URL = &u
	}
	clone.Headers = r.Headers.Clone()
	clone.Meta = r.Meta.Clone()
	clone.Body = append([]byte(nil), r.Body...)
	clone.Flags = append([]string(nil), r.Flags...)
	clone.Cookies = append([]*http.Cookie(nil), r.Cookies...)
	clone.fingerprint = ""
	return &clone
}
