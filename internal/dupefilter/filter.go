// Package dupefilter implements the pluggable Fingerprint Filter: a
// set of seen request fingerprints, queried before a request is
// scheduled and populated as it is admitted, with
// an explicit Release path for requests that must be re-crawlable
// (retries, refresh-on-schedule spiders).
package dupefilter

import (
	"context"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/registry"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// Filter is the contract every dupefilter backend satisfies.
type Filter interface {
	// Seen reports whether req's fingerprint has already been admitted.
	// A backend failure surfaces as a non-nil error (wrapped in
	// *types.FilterError) rather than silently returning false, so the
	// scheduler can treat it as a fatal per-request failure instead of
	// accidentally re-crawling or accidentally dropping.
	Seen(ctx context.Context, req *types.Request) (bool, error)

	// Release forgets req's fingerprint (or marks it retryable) so a
	// later schedule of an equivalent request is not treated as a
	// duplicate. reason documents why (e.g. "retry", "refresh").
	Release(ctx context.Context, req *types.Request, reason string) error

	// Close releases backend resources.
	Close() error
}

// Registry is the builder-by-name table selected via the
// DUPEFILTER_CLASS setting.
var Registry = registry.New[Filter]()
