package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/proxypool"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// BrowserTransport fetches requests by driving a headless Chromium via
// Rod.
type BrowserTransport struct {
	browser  *rod.Browser
	stealthy bool
	timeout  time.Duration
	logger   *slog.Logger
	proxies  proxypool.Pool
	mu       sync.Mutex
	pagePool chan *rod.Page
	maxPages int
}

// BrowserOption configures a BrowserTransport.
type BrowserOption func(*BrowserTransport)

// WithStealth enables go-rod/stealth page patches.
func WithStealth() BrowserOption {
	return func(bt *BrowserTransport) { bt.stealthy = true }
}

// WithBrowserProxy wires a proxy pool into the browser launch.
func WithBrowserProxy(pool proxypool.Pool) BrowserOption {
	return func(bt *BrowserTransport) { bt.proxies = pool }
}

// WithMaxPages bounds the concurrent page pool.
func WithMaxPages(n int) BrowserOption {
	return func(bt *BrowserTransport) { bt.maxPages = n }
}

// NewBrowserTransport launches a headless Chromium instance.
func NewBrowserTransport(timeout time.Duration, logger *slog.Logger, opts ...BrowserOption) (*BrowserTransport, error) {
	bt := &BrowserTransport{timeout: timeout, logger: logger.With("component", "browser_transport"), maxPages: 8}
	for _, opt := range opts {
		opt(bt)
	}

	launchURL, err := bt.launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bt.browser = browser
	bt.pagePool = make(chan *rod.Page, bt.maxPages)
	bt.logger.Info("browser transport ready", "max_pages", bt.maxPages, "stealth", bt.stealthy)
	return bt, nil
}

func (bt *BrowserTransport) launch() (string, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-web-security").
		Set("disable-features", "IsolateOrigins,site-per-process").
		Set("disable-blink-features", "AutomationControlled")

	if bt.proxies != nil {
		if proxyURL, err := bt.proxies.Get(context.Background()); err == nil {
			l = l.Proxy(proxyURL)
		}
	}

	return l.Launch()
}

func (bt *BrowserTransport) Type() string { return "browser" }

func (bt *BrowserTransport) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	start := time.Now()

	page, err := bt.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}
	defer bt.putPage(page)

	if bt.stealthy {
		page, err = stealth.Page(bt.browser)
		if err != nil {
			return nil, &types.FetchError{URL: req.URLString(), Err: fmt.Errorf("stealth page: %w", err), Retryable: true}
		}
	}

	if ua := req.Headers.Get("User-Agent"); ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			bt.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if len(req.Headers) > 0 {
		headers := make([]string, 0, len(req.Headers)*2)
		for k, vals := range req.Headers {
			if k == "User-Agent" {
				continue
			}
			for _, v := range vals {
				headers = append(headers, k, v)
			}
		}
		if len(headers) > 0 {
			_, _ = page.SetExtraHeaders(headers)
		}
	}

	if cookies, ok := req.Meta.Get("cookies"); ok {
		if cookieList, ok := cookies.([]*proto.NetworkCookieParam); ok {
			if err := page.SetCookies(cookieList); err != nil {
				bt.logger.Warn("failed to set cookies", "error", err)
			}
		}
	}

	timeout := bt.timeout
	if req.Meta.Timeout > 0 {
		timeout = req.Meta.Timeout
	}

	if err := page.Timeout(timeout).Navigate(req.URLString()); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}

	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bt.logger.Warn("page stability timeout, continuing", "url", req.URLString(), "error", err)
	}

	if jsCode, ok := req.Meta.Get("js_eval"); ok {
		if js, ok := jsCode.(string); ok && js != "" {
			if _, err := page.Eval(js); err != nil {
				bt.logger.Warn("js eval error", "url", req.URLString(), "error", err)
			}
			time.Sleep(500 * time.Millisecond)
		}
	}

	if selector, ok := req.Meta.Get("wait_selector"); ok {
		if sel, ok := selector.(string); ok && sel != "" {
			if err := page.Timeout(10 * time.Second).MustElement(sel).WaitVisible(); err != nil {
				bt.logger.Warn("wait selector timeout", "selector", sel, "error", err)
			}
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	resp := types.NewBrowserResponse(req, 200, []byte(html), finalURL, duration)

	if pageCookies, err := page.Cookies(nil); err == nil && len(pageCookies) > 0 {
		resp.Meta["cookies"] = pageCookies
	}

	bt.logger.Debug("browser fetch complete", "url", req.URLString(), "final_url", finalURL, "size", len(html), "duration", duration)
	return resp, nil
}

func (bt *BrowserTransport) Close() error {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	close(bt.pagePool)
	for page := range bt.pagePool {
		_ = page.Close()
	}
	if bt.browser != nil {
		return bt.browser.Close()
	}
	return nil
}

func (bt *BrowserTransport) getPage() (*rod.Page, error) {
	select {
	case page := <-bt.pagePool:
		return page, nil
	default:
		return bt.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
}

func (bt *BrowserTransport) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")
	select {
	case bt.pagePool <- page:
	default:
		_ = page.Close()
	}
}
