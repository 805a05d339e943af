package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/config"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/proxypool"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// Downloader orchestrates the middleware chain and transport dispatch
// for one crawl: per-domain slot admission gates concurrency and
// pacing before a request ever reaches a transport.
type Downloader struct {
	transports map[string]Transport
	defaultT   string
	slots      *slotManager
	chain      *chain
	proxies    proxypool.Pool
	proxyCfg   config.ProxyConfig
	robots     *RobotsMiddleware
	cfg        config.DownloadConfig
	logger     *slog.Logger
}

// New builds a Downloader wired from cfg and retryCfg. transports must
// contain at least the default "http" transport; middlewares are
// applied in the given order, robots (if enabled) ahead of retry.
// proxyCfg governs proxy invalidation on non-allowed response statuses
// (spec's ALLOW_STATUS_CODE / RETRY_ON_REMOVED_STATUS).
func New(cfg config.DownloadConfig, retryCfg config.RetryConfig, proxyCfg config.ProxyConfig, transports map[string]Transport, defaultTransport string, proxies proxypool.Pool, respectRobots bool, logger *slog.Logger) *Downloader {
	d := &Downloader{
		transports: transports,
		defaultT:   defaultTransport,
		slots:      newSlotManager(cfg.ConcurrentRequestsPerDomain),
		proxies:    proxies,
		proxyCfg:   proxyCfg,
		cfg:        cfg,
		logger:     logger.With("component", "downloader"),
	}

	mws := []Middleware{NewRetryMiddleware(retryCfg)}
	if respectRobots {
		d.robots = NewRobotsMiddleware()
		mws = append([]Middleware{d.robots}, mws...)
	}
	d.chain = newChain(d.dispatch, mws...)
	return d
}

// WithMiddlewares replaces the configured middleware chain, letting
// callers (e.g. the engine's CrawlerContext wiring) install a custom
// ordering or additional stages beyond robots+retry.
func (d *Downloader) WithMiddlewares(mws ...Middleware) *Downloader {
	d.chain = newChain(d.dispatch, mws...)
	return d
}

// Download runs req through the middleware chain and transport,
// honoring per-domain concurrency and pacing before anything fires.
func (d *Downloader) Download(ctx context.Context, req *types.Request) (*types.Response, error) {
	domain := req.Domain()
	s := d.slots.get(domain)

	delay := d.cfg.Delay
	if d.robots != nil {
		if rd := d.robots.CrawlDelay(domain); rd > delay {
			delay = rd
		}
	}

	release, err := s.acquire(ctx, delay, d.cfg.RandomizeDelay)
	if err != nil {
		return nil, err
	}
	defer release()

	if d.proxies != nil && req.Meta.Proxy == "" {
		if proxyURL, perr := d.proxies.Get(ctx); perr == nil {
			req = req.Clone()
			req.Meta.Proxy = proxyURL
		}
	}

	resp, err := d.chain.run(ctx, req)
	if err != nil {
		if d.proxies != nil && req.Meta.Proxy != "" {
			d.proxies.Invalidate(ctx, req.Meta.Proxy, err)
		}
		return resp, err
	}

	if d.proxies != nil && req.Meta.Proxy != "" && !d.statusAllowed(resp.StatusCode) {
		d.proxies.Invalidate(ctx, req.Meta.Proxy, fmt.Errorf("status %d not in allow list", resp.StatusCode))
		if d.proxyCfg.RetryOnRemovedStatus {
			if retry, ok := d.buildProxyRetry(req); ok {
				return nil, &types.RetryRequest{
					Retry: retry,
					Cause: &types.FetchError{URL: req.URLString(), StatusCode: resp.StatusCode, Err: errors.New("response came through a removed proxy"), Retryable: true},
				}
			}
		}
	}
	return resp, nil
}

// statusAllowed reports whether status should be treated as a normal
// page outcome rather than a sign the proxy itself failed: 2xx/3xx
// responses always qualify, plus anything in ProxyConfig.AllowStatusCode
// (default {404} — "this is the page's problem, not the proxy's").
func (d *Downloader) statusAllowed(status int) bool {
	if status >= 200 && status < 400 {
		return true
	}
	for _, c := range d.proxyCfg.AllowStatusCode {
		if c == status {
			return true
		}
	}
	return false
}

// maxProxyRetries bounds how many times a single request may be
// re-enqueued for a fresh proxy after landing on a removed one, so a
// pool with no healthy proxies left can't retry a request forever.
const maxProxyRetries = 3

// buildProxyRetry clones req with its proxy override cleared (so the
// next Download picks a fresh one from the pool) when under the retry
// budget.
func (d *Downloader) buildProxyRetry(req *types.Request) (*types.Request, bool) {
	attempts, _ := req.Meta.Get("proxy_retry_count")
	n, _ := attempts.(int)
	if n >= maxProxyRetries {
		return nil, false
	}
	clone := req.Clone()
	clone.Meta.Proxy = ""
	clone.DontFilter = true
	clone.Meta.Set("proxy_retry_count", n+1)
	return clone, true
}

// dispatch is the chain's terminal step: pick a transport by
// FetcherType (defaulting to d.defaultT) and fetch.
func (d *Downloader) dispatch(ctx context.Context, req *types.Request) (*types.Response, error) {
	name := req.FetcherType
	if name == "" {
		name = d.defaultT
	}
	t, ok := d.transports[name]
	if !ok {
		return nil, &types.FetchError{URL: req.URLString(), Err: fmt.Errorf("%w: %q", types.ErrNoFetcher, name), Retryable: false}
	}
	return t.Fetch(ctx, req)
}

// Close releases every transport's resources.
func (d *Downloader) Close() error {
	var firstErr error
	for _, t := range d.transports {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
