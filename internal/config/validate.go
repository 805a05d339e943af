package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be >= 1, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.Concurrency > 1000 {
		return fmt.Errorf("engine.concurrency must be <= 1000, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.MaxDepth < 0 {
		return fmt.Errorf("engine.max_depth must be >= 0, got %d", cfg.Engine.MaxDepth)
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.PolitenessDelay < 0 {
		return fmt.Errorf("engine.politeness_delay must be >= 0")
	}
	if cfg.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0, got %d", cfg.Engine.MaxRetries)
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	validQueueClasses := map[string]bool{
		"memory": true, "disk": true, "redis": true, "amqp": true,
	}
	if !validQueueClasses[cfg.Scheduler.QueueClass] {
		return fmt.Errorf("scheduler.queue_class %q is not supported (valid: memory, disk, redis, amqp)", cfg.Scheduler.QueueClass)
	}
	if cfg.Scheduler.QueueClass == "disk" && cfg.Scheduler.JobDir == "" {
		return fmt.Errorf("scheduler.job_dir is required when scheduler.queue_class is 'disk'")
	}

	validFilterClasses := map[string]bool{
		"memory": true, "disk": true, "redis": true, "bloom": true, "bloom-redis": true,
	}
	if !validFilterClasses[cfg.Dupefilter.Class] {
		return fmt.Errorf("dupefilter.class %q is not supported (valid: memory, disk, redis, bloom, bloom-redis)", cfg.Dupefilter.Class)
	}

	if cfg.Download.ConcurrentRequests < 1 {
		return fmt.Errorf("download.concurrent_requests must be >= 1, got %d", cfg.Download.ConcurrentRequests)
	}
	if cfg.Download.ConcurrentRequestsPerDomain < 1 {
		return fmt.Errorf("download.concurrent_requests_per_domain must be >= 1, got %d", cfg.Download.ConcurrentRequestsPerDomain)
	}
	if cfg.Download.Delay < 0 {
		return fmt.Errorf("download.delay must be >= 0")
	}

	if cfg.Retry.Times < 0 {
		return fmt.Errorf("retry.times must be >= 0, got %d", cfg.Retry.Times)
	}

	validProxyHandlers := map[string]bool{"memory": true, "redis": true}
	if cfg.Proxy.Enabled && !validProxyHandlers[cfg.Proxy.Handler] {
		return fmt.Errorf("proxy.handler %q is not supported (valid: memory, redis)", cfg.Proxy.Handler)
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: json, jsonl, csv)", cfg.Storage.Type)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
