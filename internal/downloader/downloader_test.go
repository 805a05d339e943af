package downloader

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/config"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

type fixedStatusTransport struct {
	status int
}

func (t *fixedStatusTransport) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	return &types.Response{StatusCode: t.status, Request: req}, nil
}
func (t *fixedStatusTransport) Close() error { return nil }
func (t *fixedStatusTransport) Type() string { return "http" }

type stubPool struct {
	mu          sync.Mutex
	next        string
	invalidated []string
}

func (p *stubPool) Get(ctx context.Context) (string, error) { return p.next, nil }
func (p *stubPool) Invalidate(ctx context.Context, proxyURL string, reason error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated = append(p.invalidated, proxyURL)
	return nil
}
func (p *stubPool) Refill(ctx context.Context) error { return nil }
func (p *stubPool) Count() int                       { return 1 }
func (p *stubPool) HealthyCount() int                { return 1 }
func (p *stubPool) Close() error                     { return nil }

func testConfig() (config.DownloadConfig, config.RetryConfig) {
	return config.DownloadConfig{ConcurrentRequestsPerDomain: 4}, config.RetryConfig{Enabled: false}
}

func TestDownloadInvalidatesProxyOnDisallowedStatus(t *testing.T) {
	dlCfg, retryCfg := testConfig()
	pool := &stubPool{next: "http://proxy1:8080"}
	proxyCfg := config.ProxyConfig{AllowStatusCode: []int{404}}

	d := New(dlCfg, retryCfg, proxyCfg, map[string]Transport{"http": &fixedStatusTransport{status: 503}}, "http", pool, false, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req, _ := types.NewRequest("https://example.com/")
	resp, err := d.Download(context.Background(), req)
	if err != nil {
		t.Fatalf("expected the response to pass through without RetryOnRemovedStatus, got error %v", err)
	}
	if resp.StatusCode != 503 {
		t.Errorf("expected the original 503 response, got %d", resp.StatusCode)
	}
	if len(pool.invalidated) != 1 || pool.invalidated[0] != "http://proxy1:8080" {
		t.Errorf("expected the proxy to be invalidated once, got %v", pool.invalidated)
	}
}

func TestDownloadAllowsStatusInAllowList(t *testing.T) {
	dlCfg, retryCfg := testConfig()
	pool := &stubPool{next: "http://proxy1:8080"}
	proxyCfg := config.ProxyConfig{AllowStatusCode: []int{404}}

	d := New(dlCfg, retryCfg, proxyCfg, map[string]Transport{"http": &fixedStatusTransport{status: 404}}, "http", pool, false, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req, _ := types.NewRequest("https://example.com/missing")
	if _, err := d.Download(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool.invalidated) != 0 {
		t.Errorf("a status in AllowStatusCode must not invalidate the proxy, got %v", pool.invalidated)
	}
}

func TestDownloadRetriesOnRemovedStatusWhenConfigured(t *testing.T) {
	dlCfg, retryCfg := testConfig()
	pool := &stubPool{next: "http://proxy1:8080"}
	proxyCfg := config.ProxyConfig{AllowStatusCode: []int{404}, RetryOnRemovedStatus: true}

	d := New(dlCfg, retryCfg, proxyCfg, map[string]Transport{"http": &fixedStatusTransport{status: 403}}, "http", pool, false, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req, _ := types.NewRequest("https://example.com/")
	resp, err := d.Download(context.Background(), req)
	if resp != nil {
		t.Errorf("expected a nil response when converting to a retry, got %v", resp)
	}
	rr, ok := err.(*types.RetryRequest)
	if !ok {
		t.Fatalf("expected *types.RetryRequest, got %T (%v)", err, err)
	}
	if rr.Retry.Meta.Proxy != "" {
		t.Error("a proxy retry must clear the prior proxy so a fresh one is picked next time")
	}
	if !rr.Retry.DontFilter {
		t.Error("a proxy retry must bypass the dupe filter")
	}
}

func TestDownloadProxyRetryBudgetIsBounded(t *testing.T) {
	dlCfg, retryCfg := testConfig()
	pool := &stubPool{next: "http://proxy1:8080"}
	proxyCfg := config.ProxyConfig{AllowStatusCode: []int{404}, RetryOnRemovedStatus: true}

	d := New(dlCfg, retryCfg, proxyCfg, map[string]Transport{"http": &fixedStatusTransport{status: 403}}, "http", pool, false, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req, _ := types.NewRequest("https://example.com/")
	req.Meta.Set("proxy_retry_count", maxProxyRetries)

	resp, err := d.Download(context.Background(), req)
	if err != nil {
		t.Fatalf("expected the retry budget to be exhausted and the response to pass through, got error %v", err)
	}
	if resp.StatusCode != 403 {
		t.Errorf("expected the original 403 response once the retry budget is spent, got %d", resp.StatusCode)
	}
}
