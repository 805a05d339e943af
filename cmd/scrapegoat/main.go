package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/config"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/downloader"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/dupefilter"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/engine"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/metrics"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/pipeline"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/proxypool"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/queue"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/scheduler"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/scraper"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/storage"
)

// exit codes, per the CLI's documented contract.
const (
	exitOK        = 0
	exitError     = 1
	exitUsage     = 2
	exitInterrupt = 130
)

var (
	cfgFile      string
	verbose      bool
	settingsOpts []string
	spiderArgs   []string
	outputFile   string
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:   "scrapegoat",
		Short: "ScrapeGoat — a concurrent, pluggable web crawling engine",
		Long: `ScrapeGoat drives the Fingerprint Filter, Request Queue, Proxy Pool,
Downloader, Scraper, Scheduler, and Engine components of a crawl from
the command line.

Settings come from a YAML file, environment variables (WEBCRAWLER_*),
and -s overrides, each overriding the one before it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "settings file path")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringArrayVarP(&settingsOpts, "set", "s", nil, "settings override KEY=VALUE (repeatable)")

	root.AddCommand(crawlCmd())
	root.AddCommand(runspiderCmd())
	root.AddCommand(startprojectCmd())
	root.AddCommand(genspiderCmd())
	root.AddCommand(listCmd())
	root.AddCommand(versionCmd())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	interrupted := make(chan struct{})
	go func() {
		<-sigCh
		close(interrupted)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- root.Execute() }()

	select {
	case <-interrupted:
		fmt.Fprintln(os.Stderr, "interrupted")
		return exitInterrupt
	case err := <-errCh:
		if err == nil {
			return exitOK
		}
		if usageErr, ok := err.(*usageError); ok {
			fmt.Fprintln(os.Stderr, usageErr.Error())
			return exitUsage
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitError
	}
}

// usageError marks an error as an argument/flag problem rather than a
// runtime failure, so run() can map it to exit code 2.
type usageError struct{ err error }

func (u *usageError) Error() string { return u.err.Error() }
func (u *usageError) Unwrap() error { return u.err }

func newUsageError(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// crawlCmd creates the "crawl" subcommand: crawl a named, registered
// spider's seeds and parser set.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <spider> [seed-url...]",
		Short: "Run a crawl against one or more seed URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(args[0], args[1:])
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "feed output path (overrides storage.output_path)")
	cmd.Flags().StringArrayVarP(&spiderArgs, "arg", "a", nil, "spider argument KEY=VALUE (repeatable)")
	return cmd
}

// runspiderCmd runs a crawl using the seed URL(s) given directly,
// without a named spider registration — the "default" parser classifies
// output.
func runspiderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runspider <seed-url> [seed-url...]",
		Short: "Run an ad hoc crawl from seed URLs using the default parser",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl("default", args)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "feed output path (overrides storage.output_path)")
	return cmd
}

func startprojectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "startproject <name>",
		Short: "Scaffold a new crawl project directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if name == "" {
				return newUsageError("project name required")
			}
			dirs := []string{name, filepath(name, "spiders"), filepath(name, "output")}
			for _, d := range dirs {
				if err := os.MkdirAll(d, 0o755); err != nil {
					return fmt.Errorf("scaffold %s: %w", d, err)
				}
			}
			settingsPath := filepath(name, "webcrawler.yaml")
			if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
				if err := os.WriteFile(settingsPath, []byte(defaultSettingsYAML), 0o644); err != nil {
					return fmt.Errorf("write settings: %w", err)
				}
			}
			fmt.Printf("created project %q\n", name)
			return nil
		},
	}
}

func genspiderCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "genspider <name>",
		Short: "Scaffold a new spider parser file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "single" && kind != "crawl" {
				return newUsageError("unknown spider type %q (want single|crawl)", kind)
			}
			path := args[0] + "_spider.go"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			return os.WriteFile(path, []byte(spiderTemplate(args[0], kind)), 0o644)
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "single", "spider type: single|crawl")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available queue, dupefilter, and proxy pool backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("queue backends:     ", strings.Join(queue.Registry.Names(), ", "))
			fmt.Println("dupefilter backends: ", strings.Join(dupefilter.Registry.Names(), ", "))
			fmt.Println("proxy pool backends: ", strings.Join(proxypool.Registry.Names(), ", "))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scrapegoat %s\n", config.Version)
		},
	}
}

// runCrawl loads settings, wires every component per the configured
// *_CLASS backends, and runs the crawl to completion or interruption.
func runCrawl(spiderName string, seeds []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := applySettingsOverrides(cfg, settingsOpts); err != nil {
		return newUsageError("invalid -s override: %v", err)
	}
	cfg.Scheduler.SpiderName = spiderName
	if outputFile != "" {
		cfg.Storage.OutputPath = outputFile
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if cfg.Logging.Format == "json" {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	for _, seed := range seeds {
		if err := config.ValidateURL(seed); err != nil {
			return newUsageError("invalid seed URL %q: %v", seed, err)
		}
	}

	q, err := queue.Registry.Build(cfg.Scheduler.QueueClass, queueCfg(cfg))
	if err != nil {
		return fmt.Errorf("build queue backend: %w", err)
	}
	filter, err := dupefilter.Registry.Build(cfg.Dupefilter.Class, dupefilterCfg(cfg))
	if err != nil {
		return fmt.Errorf("build dupefilter backend: %w", err)
	}

	var proxies proxypool.Pool
	if cfg.Proxy.Enabled {
		proxies, err = proxypool.Registry.Build(cfg.Proxy.Handler, proxyCfg(cfg))
		if err != nil {
			return fmt.Errorf("build proxy pool: %w", err)
		}
	}

	transports := map[string]downloader.Transport{}
	httpT, err := downloader.NewHTTPTransport(cfg.Fetcher, cfg.Engine.UserAgents, proxies, logger)
	if err != nil {
		return fmt.Errorf("build http transport: %w", err)
	}
	transports["http"] = httpT
	if cfg.Fetcher.Type == "browser" {
		browserOpts := []downloader.BrowserOption{downloader.WithStealth()}
		if proxies != nil {
			browserOpts = append(browserOpts, downloader.WithBrowserProxy(proxies))
		}
		browserT, err := downloader.NewBrowserTransport(cfg.Download.Timeout, logger, browserOpts...)
		if err != nil {
			return fmt.Errorf("build browser transport: %w", err)
		}
		transports["browser"] = browserT
	}

	dl := downloader.New(cfg.Download, cfg.Retry, cfg.Proxy, transports, "http", proxies, cfg.Engine.RespectRobotsTxt, logger)

	parsers := scraper.NewRegistry()
	parsers.Register("parse", scraper.DefaultParser())
	scr := scraper.New(parsers, scraper.NewErrbackRegistry(), cfg.Scheduler.DepthLimit)

	pl := pipeline.New(logger)
	pl.Use(&pipeline.TrimMiddleware{})

	store, err := storage.NewFileStorage(cfg.Storage.Type, cfg.Storage.OutputPath, logger)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}

	sched := scheduler.New(q, filter, logger)
	cc := engine.NewCrawlerContext(cfg, logger)
	eng := engine.New(cc, sched, dl, scr, pl, store, q, filter)

	if cfg.Metrics.Enabled {
		m := metrics.New()
		eng.WithMetrics(m)
		go serveMetrics(cfg.Metrics.Port, cfg.Metrics.Path, m, logger)
	}
	if proxies != nil {
		eng.WithProxyPool(proxies)
	}

	if eng.HasCheckpoint() {
		if err := eng.ResumeFromCheckpoint(); err != nil {
			logger.Warn("checkpoint resume failed, starting fresh", "error", err)
		} else {
			logger.Info("resumed from checkpoint")
		}
	}

	var seeded int
	for _, seed := range seeds {
		if err := eng.AddSeed(seed); err != nil {
			logger.Warn("seed skipped", "url", seed, "reason", err)
			continue
		}
		seeded++
	}
	if seeded == 0 && len(seeds) > 0 {
		return fmt.Errorf("all seeds were filtered or blocked")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		eng.Stop()
	}()

	start := time.Now()
	if err := eng.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	eng.Wait()

	stats := eng.Stats().Snapshot()
	elapsed := time.Since(start).Round(time.Millisecond)
	fmt.Printf("crawl complete in %s\n", elapsed)
	fmt.Printf("  requests:  %v sent, %v failed\n", stats["requests_sent"], stats["requests_failed"])
	fmt.Printf("  items:     %v scraped, %v dropped\n", stats["items_scraped"], stats["items_dropped"])
	fmt.Printf("  parser errors: %v\n", stats["parser_errors"])
	fmt.Printf("  data:      %v bytes downloaded\n", stats["bytes_downloaded"])
	return nil
}

func serveMetrics(port int, path string, m *metrics.Collector, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics server listening", "addr", addr, "path", path)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// applySettingsOverrides applies repeated -s KEY=VALUE flags onto the
// handful of settings commonly tuned from the command line.
func applySettingsOverrides(cfg *config.Config, opts []string) error {
	for _, opt := range opts {
		key, val, ok := strings.Cut(opt, "=")
		if !ok {
			return fmt.Errorf("malformed override %q (want KEY=VALUE)", opt)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		switch key {
		case "CONCURRENT_REQUESTS":
			fmt.Sscanf(val, "%d", &cfg.Download.ConcurrentRequests)
		case "CONCURRENT_REQUESTS_PER_DOMAIN":
			fmt.Sscanf(val, "%d", &cfg.Download.ConcurrentRequestsPerDomain)
		case "DOWNLOAD_DELAY":
			d, err := time.ParseDuration(val)
			if err != nil {
				return err
			}
			cfg.Download.Delay = d
		case "DEPTH_LIMIT":
			fmt.Sscanf(val, "%d", &cfg.Scheduler.DepthLimit)
		case "SCHEDULER_QUEUE_CLASS":
			cfg.Scheduler.QueueClass = strings.ToLower(val)
		case "DUPEFILTER_CLASS":
			cfg.Dupefilter.Class = strings.ToLower(val)
		case "JOBDIR":
			cfg.Scheduler.JobDir = val
		case "CLOSE_SPIDER_ON_IDLE":
			cfg.CloseOn.OnIdle = strings.EqualFold(val, "true")
		default:
			return fmt.Errorf("unknown setting %q", key)
		}
	}
	return nil
}

func queueCfg(cfg *config.Config) map[string]any {
	return map[string]any{
		"job_dir": cfg.Scheduler.JobDir,
		"addr":    cfg.Scheduler.RedisAddr,
		"url":     cfg.Scheduler.AMQPURL,
		"spider":  cfg.Scheduler.SpiderName,
	}
}

func dupefilterCfg(cfg *config.Config) map[string]any {
	return map[string]any{
		"job_dir":       cfg.Scheduler.JobDir,
		"addr":          cfg.Scheduler.RedisAddr,
		"in_flight_ttl": cfg.Dupefilter.InFlightTTL,
		"bits":          cfg.Dupefilter.BloomBits,
		"hashes":        cfg.Dupefilter.BloomHashes,
		"spider":        cfg.Scheduler.SpiderName,
	}
}

func proxyCfg(cfg *config.Config) map[string]any {
	return map[string]any{
		"strategy":     cfg.Proxy.Rotation,
		"max_failures": 3,
		"proxies":      cfg.Proxy.URLs,
		"addr":         cfg.Proxy.RedisAddr,
		"namespace":    "scrapegoat",
	}
}

func filepath(parts ...string) string { return strings.Join(parts, string(os.PathSeparator)) }

const defaultSettingsYAML = `engine:
  concurrency: 10
  max_depth: 5
scheduler:
  queue_class: memory
dupefilter:
  class: memory
storage:
  type: json
  output_path: ./output
`

func spiderTemplate(name, kind string) string {
	return fmt.Sprintf(`package main

// %s is a %s-style spider: register its parser under "%s" with the
// scraper's Registry before starting a crawl.
`, name, kind, name)
}
