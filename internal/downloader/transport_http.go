package downloader

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/config"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/proxypool"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// HTTPTransport fetches requests over net/http, handling gzip/deflate/
// brotli decompression, redirect policy, and proxy dispatch itself.
type HTTPTransport struct {
	client     *http.Client
	cfg        config.FetcherConfig
	proxies    proxypool.Pool
	logger     *slog.Logger
	userAgents []string
	uaIndex    atomic.Int64
}

// NewHTTPTransport builds the default HTTP transport.
func NewHTTPTransport(cfg config.FetcherConfig, userAgents []string, proxies proxypool.Pool, logger *slog.Logger) (*HTTPTransport, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	rt := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns / 2,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.TLSInsecure},
		DisableCompression:  true, // decompression is handled explicitly below, including brotli
	}

	t := &HTTPTransport{cfg: cfg, proxies: proxies, logger: logger.With("component", "http_transport"), userAgents: userAgents}

	if proxies != nil {
		rt.Proxy = t.proxyFunc
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !cfg.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= cfg.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", cfg.MaxRedirects)
		}
		return nil
	}

	t.client = &http.Client{Transport: rt, Jar: jar, CheckRedirect: redirectPolicy}
	return t, nil
}

// proxyFunc implements http.Transport.Proxy. The pool-selected proxy
// for the bulk of requests is applied by the slot/dispatch layer
// setting req.Meta.Proxy before Fetch runs; this default func is only
// consulted when no such override exists, in which case no proxy is
// used (the dial goes direct).
func (t *HTTPTransport) proxyFunc(_ *http.Request) (*url.URL, error) {
	return nil, nil
}

func (t *HTTPTransport) Type() string { return "http" }

func (t *HTTPTransport) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URLString(), nil)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: false}
	}

	httpReq.Header.Set("User-Agent", t.nextUserAgent())
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	httpReq.Header.Set("Connection", "keep-alive")
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for _, c := range req.Cookies {
		httpReq.AddCookie(c)
	}

	if len(req.Body) > 0 {
		httpReq.Body = io.NopCloser(newBytesReader(req.Body))
		httpReq.ContentLength = int64(len(req.Body))
	}

	client := t.client
	if req.Meta.Proxy != "" {
		client = t.clientForProxy(req.Meta.Proxy)
	}

	timeout := t.cfg.IdleConnTimeout
	if req.Meta.Timeout > 0 {
		timeout = req.Meta.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		httpReq = httpReq.WithContext(ctx)
	}

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: isRetryableError(err)}
	}
	defer httpResp.Body.Close()

	var reader io.Reader = httpResp.Body
	reader, err = decompressReader(httpResp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: false}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}

	resp := types.NewResponse(req, httpResp, body, duration)
	if httpResp.TLS != nil {
		resp.TLSProtocol = tlsVersionName(httpResp.TLS.Version)
	}

	t.logger.Debug("fetch complete", "url", req.URLString(), "status", resp.StatusCode, "size", len(body), "duration", duration)
	return resp, nil
}

// clientForProxy builds (or would cache, in a fuller implementation) a
// client dedicated to a single explicit proxy override.
func (t *HTTPTransport) clientForProxy(proxyURL string) *http.Client {
	rt := t.client.Transport.(*http.Transport).Clone()
	if u, err := url.Parse(proxyURL); err == nil {
		rt.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: rt, Jar: t.client.Jar, CheckRedirect: t.client.CheckRedirect}
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) nextUserAgent() string {
	if len(t.userAgents) == 0 {
		return "webcrawler/" + config.Version
	}
	idx := t.uaIndex.Add(1) % int64(len(t.userAgents))
	return t.userAgents[idx]
}

func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) || errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLS1.0"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS13:
		return "TLS1.3"
	default:
		return "unknown"
	}
}

// bytesReader is a minimal io.Reader over an in-memory byte slice,
// used for request bodies (avoids pulling in bytes.Reader's Seek
// surface we don't need).
type bytesReader struct {
	data []byte
	pos  int
}

func newBytesReader(data []byte) *bytesReader { return &bytesReader{data: data} }

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// RandomizedDelay returns a delay uniformly sampled from
// [0.5*base, 1.5*base).
func RandomizedDelay(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(float64(base) * (0.5 + rand.Float64()))
}
