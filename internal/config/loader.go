package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from defaults, the config file, and the
// environment. Priority (highest to lowest): env vars > config file >
// defaults. The CLI's -s overrides are applied by the caller afterwards.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("WEBCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("webcrawler")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".webcrawler"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.concurrency", cfg.Engine.Concurrency)
	v.SetDefault("engine.max_depth", cfg.Engine.MaxDepth)
	v.SetDefault("engine.request_timeout", cfg.Engine.RequestTimeout)
	v.SetDefault("engine.politeness_delay", cfg.Engine.PolitenessDelay)
	v.SetDefault("engine.respect_robots_txt", cfg.Engine.RespectRobotsTxt)
	v.SetDefault("engine.max_retries", cfg.Engine.MaxRetries)
	v.SetDefault("engine.retry_delay", cfg.Engine.RetryDelay)
	v.SetDefault("engine.checkpoint_interval", cfg.Engine.CheckpointInterval)
	v.SetDefault("engine.user_agents", cfg.Engine.UserAgents)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.handler", cfg.Proxy.Handler)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.health_check", cfg.Proxy.HealthCheck)
	v.SetDefault("proxy.rotate_on_fail", cfg.Proxy.RotateOnFail)
	v.SetDefault("proxy.max_count", cfg.Proxy.MaxCount)
	v.SetDefault("proxy.min_count", cfg.Proxy.MinCount)
	v.SetDefault("proxy.allow_status_code", cfg.Proxy.AllowStatusCode)
	v.SetDefault("proxy.retry_on_removed_status", cfg.Proxy.RetryOnRemovedStatus)
	v.SetDefault("proxy.refill_interval", cfg.Proxy.RefillInterval)

	v.SetDefault("scheduler.queue_class", cfg.Scheduler.QueueClass)
	v.SetDefault("scheduler.serializer", cfg.Scheduler.Serializer)
	v.SetDefault("scheduler.flush_on_start", cfg.Scheduler.FlushOnStart)
	v.SetDefault("scheduler.spider_name", cfg.Scheduler.SpiderName)
	v.SetDefault("scheduler.depth_limit", cfg.Scheduler.DepthLimit)
	v.SetDefault("scheduler.depth_priority", cfg.Scheduler.DepthPriority)

	v.SetDefault("dupefilter.class", cfg.Dupefilter.Class)
	v.SetDefault("dupefilter.in_flight_ttl", cfg.Dupefilter.InFlightTTL)
	v.SetDefault("dupefilter.bloom_bits", cfg.Dupefilter.BloomBits)
	v.SetDefault("dupefilter.bloom_hashes", cfg.Dupefilter.BloomHashes)

	v.SetDefault("download.concurrent_requests", cfg.Download.ConcurrentRequests)
	v.SetDefault("download.concurrent_requests_per_domain", cfg.Download.ConcurrentRequestsPerDomain)
	v.SetDefault("download.delay", cfg.Download.Delay)
	v.SetDefault("download.randomize_delay", cfg.Download.RandomizeDelay)
	v.SetDefault("download.timeout", cfg.Download.Timeout)

	v.SetDefault("retry.enabled", cfg.Retry.Enabled)
	v.SetDefault("retry.times", cfg.Retry.Times)
	v.SetDefault("retry.http_codes", cfg.Retry.HTTPCodes)
	v.SetDefault("retry.priority_adjustment", cfg.Retry.PriorityAdjustment)

	v.SetDefault("closespider.on_idle", cfg.CloseOn.OnIdle)
	v.SetDefault("closespider.timeout", cfg.CloseOn.Timeout)
	v.SetDefault("closespider.item_count", cfg.CloseOn.ItemCount)
	v.SetDefault("closespider.page_count", cfg.CloseOn.PageCount)
	v.SetDefault("closespider.error_count", cfg.CloseOn.ErrorCount)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.batch_size", cfg.Storage.BatchSize)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
