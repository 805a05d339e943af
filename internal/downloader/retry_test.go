package downloader

import (
	"context"
	"net/http"
	"testing"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/config"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func retryCfg(times int) config.RetryConfig {
	return config.RetryConfig{
		Enabled:            true,
		Times:              times,
		HTTPCodes:          []int{503},
		PriorityAdjustment: -1,
	}
}

func TestRetryMiddlewareRetriesOnConfiguredStatus(t *testing.T) {
	m := NewRetryMiddleware(retryCfg(2))
	req, _ := types.NewRequest("https://example.com/flaky")
	req.Priority = 5
	resp := &types.Response{StatusCode: 503, Headers: http.Header{}, Request: req}

	_, err := m.ProcessResponse(context.Background(), req, resp)
	if err == nil {
		t.Fatal("expected a retry signal for a retryable status")
	}
	rr, ok := err.(*types.RetryRequest)
	if !ok {
		t.Fatalf("expected *types.RetryRequest, got %T", err)
	}
	if rr.Retry.Meta.RetryCount != 1 {
		t.Errorf("expected retry_count 1, got %d", rr.Retry.Meta.RetryCount)
	}
	if rr.Retry.Priority != 4 {
		t.Errorf("expected priority adjusted to 4, got %d", rr.Retry.Priority)
	}
	if !rr.Retry.DontFilter {
		t.Error("a retried request must bypass the dupe filter")
	}
}

func TestRetryMiddlewareStopsAtBudget(t *testing.T) {
	m := NewRetryMiddleware(retryCfg(2))
	req, _ := types.NewRequest("https://example.com/flaky")
	req.Meta.RetryCount = 2
	resp := &types.Response{StatusCode: 503, Headers: http.Header{}, Request: req}

	gotResp, err := m.ProcessResponse(context.Background(), req, resp)
	if err != nil {
		t.Fatalf("expected the exhausted response to pass through, got error %v", err)
	}
	if gotResp != resp {
		t.Error("expected the original (failing) response once the retry budget is exhausted")
	}
}

func TestRetryMiddlewareIgnoresNonRetryableStatus(t *testing.T) {
	m := NewRetryMiddleware(retryCfg(2))
	req, _ := types.NewRequest("https://example.com/ok")
	resp := &types.Response{StatusCode: 200, Headers: http.Header{}, Request: req}

	gotResp, err := m.ProcessResponse(context.Background(), req, resp)
	if err != nil || gotResp != resp {
		t.Errorf("expected a non-retryable status to pass through unchanged, got resp=%v err=%v", gotResp, err)
	}
}

func TestRetryMiddlewareDisabledPassesThrough(t *testing.T) {
	cfg := retryCfg(2)
	cfg.Enabled = false
	m := NewRetryMiddleware(cfg)
	req, _ := types.NewRequest("https://example.com/flaky")
	resp := &types.Response{StatusCode: 503, Headers: http.Header{}, Request: req}

	gotResp, err := m.ProcessResponse(context.Background(), req, resp)
	if err != nil || gotResp != resp {
		t.Error("a disabled retry middleware should never intercept a response")
	}
}

func TestRetryMiddlewareHandlesRetryableException(t *testing.T) {
	m := NewRetryMiddleware(retryCfg(1))
	req, _ := types.NewRequest("https://example.com/timeout")
	exc := &types.FetchError{URL: req.URLString(), Err: context.DeadlineExceeded, Retryable: true}

	_, err := m.ProcessException(context.Background(), req, exc)
	rr, ok := err.(*types.RetryRequest)
	if !ok {
		t.Fatalf("expected *types.RetryRequest for a retryable exception, got %T (%v)", err, err)
	}
	if rr.Retry.Meta.RetryCount != 1 {
		t.Errorf("expected retry_count 1, got %d", rr.Retry.Meta.RetryCount)
	}
}

func TestRetryMiddlewareIgnoresNonRetryableException(t *testing.T) {
	m := NewRetryMiddleware(retryCfg(2))
	req, _ := types.NewRequest("https://example.com/broken")
	exc := &types.FetchError{URL: req.URLString(), Err: context.Canceled, Retryable: false}

	resp, err := m.ProcessException(context.Background(), req, exc)
	if resp != nil || err != nil {
		t.Errorf("expected (nil, nil) for a non-retryable exception so it propagates, got resp=%v err=%v", resp, err)
	}
}
