// Package proxypool implements the pluggable Proxy Pool: a rotating
// set of upstream proxies with health tracking, handed to the
// downloader per-request and invalidated on failure.
package proxypool

import (
	"context"
	"errors"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/registry"
)

// ErrEmpty is returned by Get when no healthy proxy is available.
var ErrEmpty = errors.New("proxy pool: no healthy proxy available")

// Pool is the contract every proxy pool backend satisfies.
type Pool interface {
	// Get returns the next proxy URL to use, per the pool's rotation
	// policy (round-robin or random). Returns ErrEmpty if the pool has
	// no healthy proxies.
	Get(ctx context.Context) (string, error)

	// Invalidate marks proxyURL unhealthy after a failed request,
	// recording reason for diagnostics. Implementations may give a
	// proxy a bounded number of chances before removing it outright.
	Invalidate(ctx context.Context, proxyURL string, reason error) error

	// Refill asks the backend to replenish its healthy set, e.g. by
	// re-probing previously unhealthy proxies or pulling from an
	// external supplier. Safe to call on a schedule.
	Refill(ctx context.Context) error

	// Count reports the total number of known proxies (healthy or not).
	Count() int

	// HealthyCount reports the number of currently healthy proxies.
	HealthyCount() int

	// Close releases backend resources.
	Close() error
}

// Registry is the builder-by-name table selected via the PROXY_HANDLER
// setting.
var Registry = registry.New[Pool]()
