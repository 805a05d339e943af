// Package scraper implements the Scraper component: it takes a
// downloader outcome, runs it through the spider-middleware chain,
// invokes the matching parser, and classifies the
// parser's output into new requests (enqueued, depth permitting) and
// items (handed to the pipeline).
package scraper

import (
	"context"
	"fmt"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// Output is the closed sum type a Parser may produce: exactly one of
// Request or Item is non-nil.
type Output struct {
	Request *types.Request
	Item    *types.Item
}

// NewRequestOutput wraps a discovered request.
func NewRequestOutput(req *types.Request) Output { return Output{Request: req} }

// NewItemOutput wraps a scraped item.
func NewItemOutput(item *types.Item) Output { return Output{Item: item} }

// DepthDrop records a discovered request dropped by enforceDepth
// because it would exceed DEPTH_LIMIT, so the caller can stats-count
// and signal the drop per spec §4.5/§7 instead of it vanishing silently.
type DepthDrop struct {
	Request *types.Request
	Depth   int
}

// Parser extracts further requests and items from a response.
type Parser func(ctx context.Context, resp *types.Response) ([]Output, error)

// Errback handles a request that terminated unsuccessfully — either a
// downloader error that exhausted retries, or an unrecovered parser
// exception — and may itself yield further requests or items.
type Errback func(ctx context.Context, req *types.Request, cause error) ([]Output, error)

// Registry resolves a Request's Callback name to a Parser.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry { return &Registry{parsers: make(map[string]Parser)} }

// Register names a parser, overwriting any prior registration under
// the same name.
func (r *Registry) Register(name string, p Parser) { r.parsers[name] = p }

// Get resolves name to a Parser.
func (r *Registry) Get(name string) (Parser, bool) {
	p, ok := r.parsers[name]
	return p, ok
}

// ErrbackRegistry resolves a Request's Errback name to an Errback handler.
type ErrbackRegistry struct {
	handlers map[string]Errback
}

// NewErrbackRegistry creates an empty errback registry.
func NewErrbackRegistry() *ErrbackRegistry { return &ErrbackRegistry{handlers: make(map[string]Errback)} }

// Register names an errback handler, overwriting any prior registration
// under the same name.
func (r *ErrbackRegistry) Register(name string, e Errback) { r.handlers[name] = e }

// Get resolves name to an Errback handler.
func (r *ErrbackRegistry) Get(name string) (Errback, bool) {
	e, ok := r.handlers[name]
	return e, ok
}

// Scraper wraps a downloader outcome through spider middleware, a
// resolved Parser, and depth enforcement.
type Scraper struct {
	middlewares []Middleware
	parsers     *Registry
	errbacks    *ErrbackRegistry
	depthLimit  int
}

// New creates a Scraper bound to parsers and errbacks, with an optional
// DEPTH_LIMIT (0 means unlimited).
func New(parsers *Registry, errbacks *ErrbackRegistry, depthLimit int, mws ...Middleware) *Scraper {
	return &Scraper{middlewares: mws, parsers: parsers, errbacks: errbacks, depthLimit: depthLimit}
}

// Errback invokes the handler named by req.Errback for a request that
// terminated unsuccessfully; a request naming no errback uses the
// default handler registered under the empty name, if any. It returns
// cause unchanged if no handler is registered under that name. The
// second return value lists any discovered requests enforceDepth
// dropped, for the caller to stats-count and signal.
func (s *Scraper) Errback(ctx context.Context, req *types.Request, cause error) ([]Output, []DepthDrop, error) {
	if s.errbacks == nil {
		return nil, nil, cause
	}
	eb, ok := s.errbacks.Get(req.Errback)
	if !ok {
		return nil, nil, cause
	}
	outputs, err := eb(ctx, req, cause)
	if err != nil {
		return nil, nil, err
	}
	outputs, dropped := s.enforceDepth(req, outputs)
	return outputs, dropped, nil
}

// Process runs resp through process_spider_input, the parser named by
// req.Callback, process_spider_output, and depth enforcement, and
// returns the classified outputs plus any depth-exceeding requests
// enforceDepth dropped. An unrecovered exception at any stage falls
// through to req.Errback before being surfaced to the caller.
func (s *Scraper) Process(ctx context.Context, req *types.Request, resp *types.Response) ([]Output, []DepthDrop, error) {
	if err := s.runSpiderInput(ctx, resp); err != nil {
		outputs, err := s.runSpiderException(ctx, resp, err)
		if err != nil {
			return s.Errback(ctx, req, err)
		}
		return outputs, nil, nil
	}

	callback := req.Callback
	if callback == "" {
		callback = "parse"
	}
	parser, ok := s.parsers.Get(callback)
	if !ok {
		return s.Errback(ctx, req, fmt.Errorf("scraper: no parser registered for callback %q", callback))
	}

	outputs, err := parser(ctx, resp)
	if err != nil {
		outputs, err = s.runSpiderException(ctx, resp, err)
		if err != nil {
			return s.Errback(ctx, req, err)
		}
		return outputs, nil, nil
	}

	outputs, err = s.runSpiderOutput(ctx, resp, outputs)
	if err != nil {
		outputs, err = s.runSpiderException(ctx, resp, err)
		if err != nil {
			return s.Errback(ctx, req, err)
		}
		return outputs, nil, nil
	}

	outputs, dropped := s.enforceDepth(req, outputs)
	return outputs, dropped, nil
}

// enforceDepth drops discovered requests whose depth would exceed
// depthLimit and stamps surviving ones with their computed depth and
// parent URL. Dropped requests are reported back to the caller rather
// than silently discarded, per spec §4.5/§7.
func (s *Scraper) enforceDepth(parent *types.Request, outputs []Output) ([]Output, []DepthDrop) {
	if len(outputs) == 0 {
		return outputs, nil
	}
	parentDepth := parent.Meta.Depth
	filtered := make([]Output, 0, len(outputs))
	var dropped []DepthDrop
	for _, o := range outputs {
		if o.Request != nil {
			childDepth := parentDepth + 1
			o.Request.Meta.Depth = childDepth
			o.Request.ParentURL = parent.URLString()
			if s.depthLimit > 0 && childDepth > s.depthLimit {
				dropped = append(dropped, DepthDrop{Request: o.Request, Depth: childDepth})
				continue
			}
		}
		filtered = append(filtered, o)
	}
	return filtered, dropped
}

func (s *Scraper) runSpiderInput(ctx context.Context, resp *types.Response) error {
	for _, mw := range s.middlewares {
		if err := mw.ProcessSpiderInput(ctx, resp); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scraper) runSpiderOutput(ctx context.Context, resp *types.Response, outputs []Output) ([]Output, error) {
	var err error
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		outputs, err = s.middlewares[i].ProcessSpiderOutput(ctx, resp, outputs)
		if err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

func (s *Scraper) runSpiderException(ctx context.Context, resp *types.Response, exc error) ([]Output, error) {
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		outputs, handled := s.middlewares[i].ProcessSpiderException(ctx, resp, exc)
		if handled {
			return outputs, nil
		}
	}
	return nil, exc
}
