package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks crawl statistics, read by checkpoints, signal payloads,
// and the metrics exporter.
type Stats struct {
	RequestsSent      atomic.Int64
	RequestsFailed    atomic.Int64
	ResponsesOK       atomic.Int64
	ResponsesError    atomic.Int64
	ItemsScraped      atomic.Int64
	ItemsDropped      atomic.Int64
	URLsEnqueued      atomic.Int64
	URLsFiltered      atomic.Int64
	BytesDownloaded   atomic.Int64
	ActiveWorkers     atomic.Int32
	ParserErrors      atomic.Int64
	DepthLimitReached atomic.Int64
	StartTime         time.Time

	mu           sync.RWMutex
	domainStats  map[string]*DomainStats
	finishReason string
}

// DomainStats tracks per-domain statistics.
type DomainStats struct {
	Requests  int64
	Responses int64
	Errors    int64
	LastFetch time.Time
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{domainStats: make(map[string]*DomainStats)}
}

// RecordDomain updates the per-domain counters for domain.
func (s *Stats) RecordDomain(domain string, isError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domainStats[domain]
	if !ok {
		d = &DomainStats{}
		s.domainStats[domain] = d
	}
	d.Requests++
	if isError {
		d.Errors++
	} else {
		d.Responses++
	}
	d.LastFetch = time.Now()
}

// SetFinishReason records why the engine stopped (e.g.
// "closespider_itemcount", "closespider_idle", or "manual_stop"), surfaced in
// Snapshot for operators and tests alike. The first reason recorded
// wins; later calls are no-ops, since heartbeat may race Stop's own
// shutdown path.
func (s *Stats) SetFinishReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishReason == "" {
		s.finishReason = reason
	}
}

// FinishReason returns the recorded finish reason, or "" if the crawl
// is still running.
func (s *Stats) FinishReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finishReason
}

// Snapshot returns a copy of stats safe for reading (used by the
// engine_stopped signal payload, the engine's final log line, and the
// CLI summary).
func (s *Stats) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"requests_sent":       s.RequestsSent.Load(),
		"requests_failed":     s.RequestsFailed.Load(),
		"responses_ok":        s.ResponsesOK.Load(),
		"responses_error":     s.ResponsesError.Load(),
		"items_scraped":       s.ItemsScraped.Load(),
		"items_dropped":       s.ItemsDropped.Load(),
		"urls_enqueued":       s.URLsEnqueued.Load(),
		"urls_filtered":       s.URLsFiltered.Load(),
		"bytes_downloaded":    s.BytesDownloaded.Load(),
		"active_workers":      s.ActiveWorkers.Load(),
		"parser_errors":       s.ParserErrors.Load(),
		"depth_limit_reached": s.DepthLimitReached.Load(),
		"elapsed":             time.Since(s.StartTime).String(),
		"finish_reason":       s.finishReason,
	}
}
