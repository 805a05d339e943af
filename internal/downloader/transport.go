// Package downloader implements the Downloader component: a
// middleware chain wrapped around pluggable transports, with
// per-domain slot admission controlling concurrency and pacing.
package downloader

import (
	"context"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/registry"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// Transport performs the actual network (or browser) fetch for a
// request. Different FetcherType values on a request route to
// different transports.
type Transport interface {
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)
	Close() error
	Type() string
}

// Registry is a builder-by-name table for transports. The Downloader
// does not build from it: it picks a transport per request from the
// map it was constructed with, by types.Request.FetcherType, falling
// back to its configured default.
var Registry = registry.New[Transport]()
