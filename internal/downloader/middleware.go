package downloader

import (
	"context"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// Middleware participates in the downloader's request/response chain.
// The return-value contract for each hook:
//
//	ProcessRequest(ctx, req):
//	  (req', nil, nil)  -> continue the chain with req' (possibly req itself)
//	  (nil, resp, nil)  -> short-circuit: skip remaining ProcessRequest hooks
//	                       and the transport fetch, and enter the response
//	                       chain directly with resp
//	  (nil, nil, err)   -> abort: enter the exception chain with err
//
//	ProcessResponse(ctx, req, resp):
//	  (resp', nil) -> continue the chain with resp' (possibly resp itself)
//	  (nil, err)   -> abort: enter the exception chain with err
//
//	ProcessException(ctx, req, err):
//	  (resp, nil) -> recovered: continue the response chain with resp
//	  (nil, nil)  -> not handled: propagate err to the next middleware
//	  (nil, err') -> replace the exception with err' and keep propagating
type Middleware interface {
	Name() string
	ProcessRequest(ctx context.Context, req *types.Request) (*types.Request, *types.Response, error)
	ProcessResponse(ctx context.Context, req *types.Request, resp *types.Response) (*types.Response, error)
	ProcessException(ctx context.Context, req *types.Request, exc error) (*types.Response, error)
}

// BaseMiddleware implements Middleware with pass-through defaults so
// concrete middlewares only need to override the hooks they care
// about.
type BaseMiddleware struct{ MiddlewareName string }

func (b BaseMiddleware) Name() string { return b.MiddlewareName }

func (b BaseMiddleware) ProcessRequest(_ context.Context, req *types.Request) (*types.Request, *types.Response, error) {
	return req, nil, nil
}

func (b BaseMiddleware) ProcessResponse(_ context.Context, _ *types.Request, resp *types.Response) (*types.Response, error) {
	return resp, nil
}

func (b BaseMiddleware) ProcessException(_ context.Context, _ *types.Request, _ error) (*types.Response, error) {
	return nil, nil
}

// chain runs an ordered list of middlewares around a transport fetch.
type chain struct {
	middlewares []Middleware
	fetch       func(ctx context.Context, req *types.Request) (*types.Response, error)
}

func newChain(fetch func(ctx context.Context, req *types.Request) (*types.Response, error), mws ...Middleware) *chain {
	return &chain{middlewares: mws, fetch: fetch}
}

// run executes ProcessRequest hooks in order, then the transport fetch
// (unless a middleware short-circuited it), then ProcessResponse hooks
// in reverse order, starting from the short-circuiting middleware when
// there was one, routing any error through ProcessException hooks
// (also in reverse order) until one recovers it or the chain is
// exhausted.
func (c *chain) run(ctx context.Context, req *types.Request) (*types.Response, error) {
	current := req
	var shortCircuit *types.Response
	last := len(c.middlewares) - 1

	for i, mw := range c.middlewares {
		newReq, resp, err := mw.ProcessRequest(ctx, current)
		if err != nil {
			return c.handleException(ctx, current, err)
		}
		if resp != nil {
			shortCircuit = resp
			last = i
			break
		}
		if newReq != nil {
			current = newReq
		}
	}

	var resp *types.Response
	var err error
	if shortCircuit != nil {
		resp = shortCircuit
	} else {
		resp, err = c.fetch(ctx, current)
		if err != nil {
			return c.handleException(ctx, current, err)
		}
	}

	for i := last; i >= 0; i-- {
		resp, err = c.middlewares[i].ProcessResponse(ctx, current, resp)
		if err != nil {
			return c.handleException(ctx, current, err)
		}
	}
	return resp, nil
}

func (c *chain) handleException(ctx context.Context, req *types.Request, exc error) (*types.Response, error) {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		resp, err := c.middlewares[i].ProcessException(ctx, req, exc)
		if resp != nil {
			return resp, nil
		}
		if err != nil {
			exc = err
		}
	}
	return nil, exc
}
