package scraper

import (
	"context"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// Middleware participates in the scraper's spider-input/output chain,
// mirroring the downloader's process_request/response contract but on
// the scraping side.
type Middleware interface {
	Name() string

	// ProcessSpiderInput runs before the parser; a non-nil error aborts
	// straight to ProcessSpiderException.
	ProcessSpiderInput(ctx context.Context, resp *types.Response) error

	// ProcessSpiderOutput runs after the parser (in reverse registration
	// order), able to filter, augment, or reorder outputs.
	ProcessSpiderOutput(ctx context.Context, resp *types.Response, outputs []Output) ([]Output, error)

	// ProcessSpiderException is given a chance to recover from any
	// error raised by ProcessSpiderInput or the parser itself. Returning
	// handled=true with outputs stops exception propagation.
	ProcessSpiderException(ctx context.Context, resp *types.Response, exc error) (outputs []Output, handled bool)
}

// BaseMiddleware gives concrete middlewares pass-through defaults.
type BaseMiddleware struct{ MiddlewareName string }

func (b BaseMiddleware) Name() string { return b.MiddlewareName }

func (b BaseMiddleware) ProcessSpiderInput(context.Context, *types.Response) error { return nil }

func (b BaseMiddleware) ProcessSpiderOutput(_ context.Context, _ *types.Response, outputs []Output) ([]Output, error) {
	return outputs, nil
}

func (b BaseMiddleware) ProcessSpiderException(context.Context, *types.Response, error) ([]Output, bool) {
	return nil, false
}
