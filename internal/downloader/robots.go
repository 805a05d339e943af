package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// RobotsMiddleware is the optional robots.txt-compliance middleware,
// gated by RESPECT_ROBOTS_TXT. It blocks disqualified
// requests at ProcessRequest time instead of fetching and discarding,
// and folds a domain's Crawl-delay into the caller's pacing via
// CrawlDelay.
type RobotsMiddleware struct {
	BaseMiddleware
	mu     sync.RWMutex
	cache  map[string]*robotsData
	client *http.Client
}

type robotsData struct {
	disallowed []string
	allowed    []string
	crawlDelay time.Duration
	sitemaps   []string
	fetchedAt  time.Time
}

// NewRobotsMiddleware creates the middleware with its own short-lived
// HTTP client for robots.txt fetches.
func NewRobotsMiddleware() *RobotsMiddleware {
	return &RobotsMiddleware{
		BaseMiddleware: BaseMiddleware{MiddlewareName: "robots"},
		cache:          make(map[string]*robotsData),
		client:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (rm *RobotsMiddleware) ProcessRequest(ctx context.Context, req *types.Request) (*types.Request, *types.Response, error) {
	if !rm.isAllowed(ctx, req.URLString()) {
		return nil, nil, fmt.Errorf("%w: %s", types.ErrBlocked, req.URLString())
	}
	return req, nil, nil
}

// CrawlDelay returns the crawl-delay robots.txt specifies for domain (a
// bare host, as types.Request.Domain returns it), or 0 if none (or
// robots.txt hasn't been fetched yet).
func (rm *RobotsMiddleware) CrawlDelay(domain string) time.Duration {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, scheme := range []string{"https://", "http://"} {
		if data, ok := rm.cache[scheme+domain]; ok && data != nil {
			return data.crawlDelay
		}
	}
	return 0
}

func (rm *RobotsMiddleware) isAllowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	domain := u.Scheme + "://" + u.Host
	data := rm.getRobotsData(ctx, domain)
	if data == nil {
		return true // couldn't fetch robots.txt: allow
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range data.allowed {
		if matchRobotsPattern(pattern, path) {
			return true
		}
	}
	for _, pattern := range data.disallowed {
		if matchRobotsPattern(pattern, path) {
			return false
		}
	}
	return true
}

func (rm *RobotsMiddleware) getRobotsData(ctx context.Context, domain string) *robotsData {
	rm.mu.RLock()
	data, ok := rm.cache[domain]
	rm.mu.RUnlock()
	if ok {
		return data
	}

	data = rm.fetchRobotsTxt(ctx, domain)

	rm.mu.Lock()
	rm.cache[domain] = data
	rm.mu.Unlock()
	return data
}

func (rm *RobotsMiddleware) fetchRobotsTxt(ctx context.Context, domain string) *robotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, domain+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := rm.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}
	return parseRobotsTxt(string(body))
}

func parseRobotsTxt(content string) *robotsData {
	data := &robotsData{fetchedAt: time.Now()}

	inOurSection := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(strings.ToLower(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch key {
		case "user-agent":
			ua := strings.ToLower(value)
			inOurSection = ua == "*" || strings.Contains(ua, "webcrawler")
		case "disallow":
			if inOurSection && value != "" {
				data.disallowed = append(data.disallowed, value)
			}
		case "allow":
			if inOurSection && value != "" {
				data.allowed = append(data.allowed, value)
			}
		case "crawl-delay":
			if inOurSection {
				var delay float64
				if _, err := fmt.Sscanf(value, "%f", &delay); err == nil {
					data.crawlDelay = time.Duration(delay * float64(time.Second))
				}
			}
		case "sitemap":
			data.sitemaps = append(data.sitemaps, value)
		}
	}
	return data
}

// matchRobotsPattern checks if path matches a robots.txt pattern,
// supporting * (any sequence) and $ (end anchor).
func matchRobotsPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}
	endsWithDollar := strings.HasSuffix(pattern, "$")
	if endsWithDollar {
		pattern = pattern[:len(pattern)-1]
	}
	if strings.Contains(pattern, "*") {
		return matchWildcard(pattern, path, endsWithDollar)
	}
	if endsWithDollar {
		return path == pattern
	}
	return strings.HasPrefix(path, pattern)
}

func matchWildcard(pattern, path string, mustEnd bool) bool {
	parts := strings.Split(pattern, "*")
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}
	if mustEnd {
		return pos == len(path)
	}
	return true
}
