package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for the crawler.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"     yaml:"engine"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"  yaml:"scheduler"`
	Dupefilter DupefilterConfig `mapstructure:"dupefilter" yaml:"dupefilter"`
	Download   DownloadConfig   `mapstructure:"download"   yaml:"download"`
	Retry      RetryConfig      `mapstructure:"retry"      yaml:"retry"`
	CloseOn    CloseSpiderConfig `mapstructure:"closespider" yaml:"closespider"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"    yaml:"fetcher"`
	Proxy      ProxyConfig      `mapstructure:"proxy"      yaml:"proxy"`
	Parser     ParserConfig     `mapstructure:"parser"     yaml:"parser"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"   yaml:"pipeline"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// SchedulerConfig controls the request queue and scheduler bridge.
type SchedulerConfig struct {
	QueueClass    string `mapstructure:"queue_class"     yaml:"queue_class"`     // memory, disk, redis, amqp
	Serializer    string `mapstructure:"serializer"      yaml:"serializer"`      // json, gob
	FlushOnStart  bool   `mapstructure:"flush_on_start"  yaml:"flush_on_start"`
	JobDir        string `mapstructure:"job_dir"         yaml:"job_dir"`
	RedisAddr     string `mapstructure:"redis_addr"      yaml:"redis_addr"`
	AMQPURL       string `mapstructure:"amqp_url"        yaml:"amqp_url"`
	SpiderName    string `mapstructure:"spider_name"     yaml:"spider_name"`
	DepthLimit    int    `mapstructure:"depth_limit"     yaml:"depth_limit"`
	DepthPriority int    `mapstructure:"depth_priority"  yaml:"depth_priority"`
}

// DupefilterConfig controls the fingerprint filter.
type DupefilterConfig struct {
	Class       string        `mapstructure:"class"         yaml:"class"` // memory, disk, redis, bloom, bloom-redis
	InFlightTTL time.Duration `mapstructure:"in_flight_ttl" yaml:"in_flight_ttl"`
	BloomBits   int           `mapstructure:"bloom_bits"    yaml:"bloom_bits"` // absolute bit count
	BloomHashes int           `mapstructure:"bloom_hashes"  yaml:"bloom_hashes"`
}

// DownloadConfig controls downloader concurrency and pacing.
type DownloadConfig struct {
	ConcurrentRequests          int           `mapstructure:"concurrent_requests"            yaml:"concurrent_requests"`
	ConcurrentRequestsPerDomain int           `mapstructure:"concurrent_requests_per_domain" yaml:"concurrent_requests_per_domain"`
	Delay                       time.Duration `mapstructure:"delay"                          yaml:"delay"`
	RandomizeDelay              bool          `mapstructure:"randomize_delay"                yaml:"randomize_delay"`
	Timeout                     time.Duration `mapstructure:"timeout"                        yaml:"timeout"`
}

// RetryConfig controls the built-in retry middleware.
type RetryConfig struct {
	Enabled            bool  `mapstructure:"enabled"              yaml:"enabled"`
	Times              int   `mapstructure:"times"                yaml:"times"`
	HTTPCodes          []int `mapstructure:"http_codes"           yaml:"http_codes"`
	PriorityAdjustment int   `mapstructure:"priority_adjustment"  yaml:"priority_adjustment"`
}

// CloseSpiderConfig controls automatic shutdown triggers.
type CloseSpiderConfig struct {
	OnIdle     bool          `mapstructure:"on_idle"      yaml:"on_idle"`
	Timeout    time.Duration `mapstructure:"timeout"      yaml:"timeout"`
	ItemCount  int           `mapstructure:"item_count"   yaml:"item_count"`
	PageCount  int           `mapstructure:"page_count"   yaml:"page_count"`
	ErrorCount int           `mapstructure:"error_count"  yaml:"error_count"`
}

// EngineConfig controls the core crawler engine.
type EngineConfig struct {
	Concurrency        int           `mapstructure:"concurrency"          yaml:"concurrency"`
	MaxDepth           int           `mapstructure:"max_depth"            yaml:"max_depth"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"      yaml:"request_timeout"`
	PolitenessDelay    time.Duration `mapstructure:"politeness_delay"     yaml:"politeness_delay"`
	RespectRobotsTxt   bool          `mapstructure:"respect_robots_txt"   yaml:"respect_robots_txt"`
	MaxRetries         int           `mapstructure:"max_retries"          yaml:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"          yaml:"retry_delay"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"  yaml:"checkpoint_interval"`
	UserAgents         []string      `mapstructure:"user_agents"          yaml:"user_agents"`
	AllowedDomains     []string      `mapstructure:"allowed_domains"      yaml:"allowed_domains"`
	DisallowedDomains  []string      `mapstructure:"disallowed_domains"   yaml:"disallowed_domains"`
	AllowedURLPatterns []string      `mapstructure:"allowed_url_patterns" yaml:"allowed_url_patterns"`
	MaxRequests        int           `mapstructure:"max_requests"         yaml:"max_requests"`
	MaxItems           int           `mapstructure:"max_items"            yaml:"max_items"`
}

// FetcherConfig controls the request fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled               bool     `mapstructure:"enabled"                  yaml:"enabled"`
	Handler               string   `mapstructure:"handler"                  yaml:"handler"` // memory, redis
	Rotation              string   `mapstructure:"rotation"                 yaml:"rotation"`
	URLs                  []string `mapstructure:"urls"                     yaml:"urls"`
	HealthCheck           bool     `mapstructure:"health_check"             yaml:"health_check"`
	RotateOnFail          bool     `mapstructure:"rotate_on_fail"           yaml:"rotate_on_fail"`
	MaxCount              int      `mapstructure:"max_count"                yaml:"max_count"`
	MinCount              int      `mapstructure:"min_count"                yaml:"min_count"`
	AllowStatusCode       []int    `mapstructure:"allow_status_code"        yaml:"allow_status_code"`
	RetryOnRemovedStatus  bool     `mapstructure:"retry_on_removed_status"  yaml:"retry_on_removed_status"`
	RedisAddr             string   `mapstructure:"redis_addr"               yaml:"redis_addr"`
	RefillInterval        time.Duration `mapstructure:"refill_interval"     yaml:"refill_interval"`
}

// ParserConfig controls the parser.
type ParserConfig struct {
	AutoDetect bool        `mapstructure:"auto_detect" yaml:"auto_detect"`
	Rules      []ParseRule `mapstructure:"rules"       yaml:"rules"`
}

// ParseRule defines a single extraction rule.
type ParseRule struct {
	Name      string `mapstructure:"name"      yaml:"name"`
	Selector  string `mapstructure:"selector"  yaml:"selector"`
	Type      string `mapstructure:"type"      yaml:"type"` // css, xpath, regex
	Attribute string `mapstructure:"attribute" yaml:"attribute"`
	Pattern   string `mapstructure:"pattern"   yaml:"pattern"`
}

// PipelineConfig controls the processing pipeline.
type PipelineConfig struct {
	Middlewares []MiddlewareConfig `mapstructure:"middlewares" yaml:"middlewares"`
}

// MiddlewareConfig defines a single pipeline middleware.
type MiddlewareConfig struct {
	Name    string         `mapstructure:"name"    yaml:"name"`
	Type    string         `mapstructure:"type"    yaml:"type"`
	Options map[string]any `mapstructure:"options" yaml:"options"`
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
	BatchSize  int    `mapstructure:"batch_size"  yaml:"batch_size"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Concurrency:        10,
			MaxDepth:           5,
			RequestTimeout:     30 * time.Second,
			PolitenessDelay:    1 * time.Second,
			RespectRobotsTxt:   true,
			MaxRetries:         3,
			RetryDelay:         2 * time.Second,
			CheckpointInterval: 60 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Scheduler: SchedulerConfig{
			QueueClass:    "memory",
			Serializer:    "json",
			FlushOnStart:  false,
			SpiderName:    "default",
			DepthLimit:    0,
			DepthPriority: 0,
		},
		Dupefilter: DupefilterConfig{
			Class:       "memory",
			InFlightTTL: 2 * time.Minute,
			BloomBits:   1 << 24,
			BloomHashes: 7,
		},
		Download: DownloadConfig{
			ConcurrentRequests:          16,
			ConcurrentRequestsPerDomain: 4,
			Delay:                       0,
			RandomizeDelay:              true,
			Timeout:                     30 * time.Second,
		},
		Retry: RetryConfig{
			Enabled:            true,
			Times:               2,
			HTTPCodes:          []int{500, 502, 503, 504, 408, 429},
			PriorityAdjustment: -1,
		},
		CloseOn: CloseSpiderConfig{
			OnIdle: true,
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
		},
		Proxy: ProxyConfig{
			Enabled:         false,
			Handler:         "memory",
			Rotation:        "round_robin",
			HealthCheck:     true,
			RotateOnFail:    true,
			MaxCount:        50,
			MinCount:        5,
			AllowStatusCode: []int{404},
			RefillInterval:  5 * time.Minute,
		},
		Parser: ParserConfig{
			AutoDetect: true,
		},
		Storage: StorageConfig{
			Type:       "json",
			OutputPath: "./output",
			BatchSize:  100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
