package engine

import (
	"log/slog"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/config"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/signal"
)

// CrawlerContext is the process-scope state shared by every component
// of one crawl: settings, stats, and the signal dispatcher, replacing
// the package-level globals an earlier design might reach for.
type CrawlerContext struct {
	Settings *config.Config
	Stats    *Stats
	Signals  *signal.Dispatcher
	Logger   *slog.Logger
}

// NewCrawlerContext builds a CrawlerContext from settings and logger.
func NewCrawlerContext(settings *config.Config, logger *slog.Logger) *CrawlerContext {
	return &CrawlerContext{
		Settings: settings,
		Stats:    NewStats(),
		Signals:  signal.New(logger),
		Logger:   logger,
	}
}
