package downloader

import (
	"context"
	"errors"
	"time"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/config"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// RetryMiddleware is the built-in retry middleware:
// retries a request whose response status is in HTTPCodes, or whose
// transport raised a retryable error, up to Times retries after the
// first attempt, lowering
// priority by PriorityAdjustment on each retry so retried requests
// don't starve fresh ones.
type RetryMiddleware struct {
	BaseMiddleware
	cfg config.RetryConfig
}

// NewRetryMiddleware builds the retry middleware from cfg.
func NewRetryMiddleware(cfg config.RetryConfig) *RetryMiddleware {
	return &RetryMiddleware{BaseMiddleware: BaseMiddleware{MiddlewareName: "retry"}, cfg: cfg}
}

func (m *RetryMiddleware) retryCode(status int) bool {
	for _, c := range m.cfg.HTTPCodes {
		if c == status {
			return true
		}
	}
	return false
}

func (m *RetryMiddleware) ProcessResponse(_ context.Context, req *types.Request, resp *types.Response) (*types.Response, error) {
	if !m.cfg.Enabled {
		return resp, nil
	}
	if !m.retryCode(resp.StatusCode) {
		return resp, nil
	}
	if req.Meta.RetryCount >= m.cfg.Times {
		return resp, nil // exhausted: pass the failing response through
	}
	return nil, &types.RetryRequest{
		Retry: m.buildRetry(req, resp.RetryAfter()),
		Cause: &types.FetchError{URL: req.URLString(), StatusCode: resp.StatusCode, Err: errors.New("retryable status"), Retryable: true},
	}
}

func (m *RetryMiddleware) ProcessException(_ context.Context, req *types.Request, exc error) (*types.Response, error) {
	if !m.cfg.Enabled {
		return nil, nil
	}
	var fe *types.FetchError
	if !errors.As(exc, &fe) || !fe.Retryable {
		return nil, nil // not our concern, propagate
	}
	if req.Meta.RetryCount >= m.cfg.Times {
		return nil, nil // exhausted: propagate original exception
	}
	delay := fe.RetryAfter
	return nil, &types.RetryRequest{Retry: m.buildRetry(req, delay), Cause: exc}
}

func (m *RetryMiddleware) buildRetry(req *types.Request, after time.Duration) *types.Request {
	clone := req.Clone()
	clone.Priority += m.cfg.PriorityAdjustment
	clone.Meta.RetryCount++
	clone.DontFilter = true // already-seen fingerprint must not block a retry
	if after > 0 {
		clone.Meta.Set("retry_after", after)
	}
	return clone
}
