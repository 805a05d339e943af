package proxypool

import (
	"context"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"
)

func init() {
	Registry.Register("memory", func(cfg map[string]any) (Pool, error) {
		strategy, _ := cfg["strategy"].(string)
		if strategy == "" {
			strategy = "round_robin"
		}
		maxFailures := 3
		if v, ok := cfg["max_failures"].(int); ok && v > 0 {
			maxFailures = v
		}
		p := NewMemory(strategy, maxFailures)
		if proxies, ok := cfg["proxies"].([]string); ok {
			for _, u := range proxies {
				p.AddProxy(u)
			}
		}
		return p, nil
	})
}

type proxyEntry struct {
	url      string
	healthy  bool
	failures int
	lastErr  error
	lastUse  time.Time
}

// Memory is an in-process proxy pool, adapted from a per-domain proxy
// manager into a pluggable Pool backend: round-robin or random
// rotation over the list of known proxies, each given
// maxFailures consecutive strikes before being marked unhealthy.
type Memory struct {
	mu          sync.Mutex
	proxies     []*proxyEntry
	byURL       map[string]*proxyEntry
	strategy    string
	next        int
	maxFailures int
	httpClient  *http.Client
}

// NewMemory creates an empty Memory proxy pool using the given
// rotation strategy ("round_robin" or "random").
func NewMemory(strategy string, maxFailures int) *Memory {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &Memory{
		byURL:       make(map[string]*proxyEntry),
		strategy:    strategy,
		maxFailures: maxFailures,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// AddProxy registers a new proxy URL, healthy by default.
func (m *Memory) AddProxy(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byURL[proxyURL]; exists {
		return
	}
	e := &proxyEntry{url: proxyURL, healthy: true}
	m.proxies = append(m.proxies, e)
	m.byURL[proxyURL] = e
}

func (m *Memory) healthyProxies() []*proxyEntry {
	out := make([]*proxyEntry, 0, len(m.proxies))
	for _, e := range m.proxies {
		if e.healthy {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) Get(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	healthy := m.healthyProxies()
	if len(healthy) == 0 {
		return "", ErrEmpty
	}

	var chosen *proxyEntry
	switch m.strategy {
	case "random":
		chosen = healthy[rand.Intn(len(healthy))]
	default: // round_robin
		chosen = healthy[m.next%len(healthy)]
		m.next++
	}
	chosen.lastUse = time.Now()
	return chosen.url, nil
}

func (m *Memory) Invalidate(_ context.Context, proxyURL string, reason error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byURL[proxyURL]
	if !ok {
		return nil
	}
	e.failures++
	e.lastErr = reason
	if e.failures >= m.maxFailures {
		e.healthy = false
	}
	return nil
}

// markHealthy resets a proxy's failure count and restores it to the
// healthy rotation, used after a successful probe in Refill.
func (m *Memory) markHealthy(url string) {
	if e, ok := m.byURL[url]; ok {
		e.healthy = true
		e.failures = 0
		e.lastErr = nil
	}
}

// Refill re-probes every unhealthy proxy with a lightweight HEAD
// request and restores it to the pool on success.
func (m *Memory) Refill(ctx context.Context) error {
	m.mu.Lock()
	candidates := make([]string, 0)
	for _, e := range m.proxies {
		if !e.healthy {
			candidates = append(candidates, e.url)
		}
	}
	m.mu.Unlock()

	for _, proxyURL := range candidates {
		if m.probe(ctx, proxyURL) {
			m.mu.Lock()
			m.markHealthy(proxyURL)
			m.mu.Unlock()
		}
	}
	return nil
}

func (m *Memory) probe(ctx context.Context, proxyURL string) bool {
	pu, err := url.Parse(proxyURL)
	if err != nil {
		return false
	}
	client := &http.Client{Timeout: m.httpClient.Timeout, Transport: &http.Transport{Proxy: http.ProxyURL(pu)}}
	defer client.CloseIdleConnections()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://httpbin.org/ip", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.proxies)
}

func (m *Memory) HealthyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.healthyProxies())
}

func (m *Memory) Close() error { return nil }
