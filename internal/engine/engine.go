// Package engine implements the Engine component: the heartbeat loop
// that ties the Scheduler, Downloader, and Scraper together, evaluates
// idle/close conditions every tick, and drives the crawl's lifecycle
// signals.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/downloader"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/dupefilter"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/metrics"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/pipeline"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/proxypool"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/queue"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/scheduler"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/scraper"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/signal"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// heartbeatInterval is the default tick rate of the engine's main
// loop. Small enough that idle detection and close triggers react
// quickly without burning a full CPU core.
const heartbeatInterval = 5 * time.Millisecond

// idleConfirmTicks is how many consecutive idle heartbeats are
// required before spider_idle fires, absorbing the gap between a
// worker finishing and its follow-up requests landing in the queue.
const idleConfirmTicks = 40 // ~200ms at the default interval

// State represents the engine's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Storage persists finished items.
type Storage interface {
	Store(items []*types.Item) error
	Close() error
}

// Engine orchestrates one crawl.
type Engine struct {
	cc         *CrawlerContext
	scheduler  *scheduler.Scheduler
	downloader *downloader.Downloader
	scraper    *scraper.Scraper
	pipeline   *pipeline.Pipeline
	storage    Storage
	checkpoint *CheckpointManager
	queueBE    queue.Backend
	filterBE   dupefilter.Filter
	metrics    *metrics.Collector
	proxies    proxypool.Pool
	cronSched  *cron.Cron

	state   atomic.Int32
	paused  atomic.Bool
	inFlight atomic.Int64
	idleTicks atomic.Int32

	itemChan   chan *types.Item
	resultChan chan *types.Item

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Engine wired from its components. The caller is
// responsible for constructing the scheduler's queue.Backend and
// dupefilter.Filter per SCHEDULER_QUEUE_CLASS/DUPEFILTER_CLASS and
// passing the same instances here so checkpointing can inspect them.
func New(cc *CrawlerContext, sched *scheduler.Scheduler, dl *downloader.Downloader, scr *scraper.Scraper, pl *pipeline.Pipeline, storage Storage, q queue.Backend, filter dupefilter.Filter) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	concurrency := cc.Settings.Download.ConcurrentRequests
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		cc:         cc,
		scheduler:  sched,
		downloader: dl,
		scraper:    scr,
		pipeline:   pl,
		storage:    storage,
		checkpoint: NewCheckpointManager(cc.Settings.Engine.CheckpointInterval, cc.Settings.Scheduler.JobDir),
		queueBE:    q,
		filterBE:   filter,
		itemChan:   make(chan *types.Item, concurrency*10),
		resultChan: make(chan *types.Item, concurrency*10),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithMetrics attaches a Prometheus collector; the engine mirrors its
// request outcomes, response classes, item, byte, active-worker and
// queue-depth counts into it. The other Stats counters are not exported.
func (e *Engine) WithMetrics(m *metrics.Collector) *Engine {
	e.metrics = m
	return e
}

// WithProxyPool attaches a proxy pool whose Refill runs on the
// PROXY.RefillInterval cron schedule instead of being driven ad hoc.
func (e *Engine) WithProxyPool(p proxypool.Pool) *Engine {
	e.proxies = p
	return e
}

// HasCheckpoint reports whether a prior checkpoint exists under JOBDIR.
func (e *Engine) HasCheckpoint() bool { return e.checkpoint.HasCheckpoint() }

// ResumeFromCheckpoint restores pending requests, seen fingerprints,
// and counters from the last checkpoint. Call before Start.
func (e *Engine) ResumeFromCheckpoint() error {
	return e.checkpoint.Load(e.queueBE, e.filterBE, e.cc.Stats)
}

// AddSeed enqueues a seed URL at the highest priority and depth 0.
func (e *Engine) AddSeed(rawURL string) error {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return err
	}
	req.Priority = types.PriorityHighest
	return e.AddRequest(req)
}

// AddRequest enqueues req through the scheduler, firing
// request_scheduled or request_dropped accordingly.
func (e *Engine) AddRequest(req *types.Request) error {
	scheduled, err := e.scheduler.Enqueue(e.ctx, req)
	if err != nil {
		return err
	}
	if !scheduled {
		e.cc.Stats.URLsFiltered.Add(1)
		e.cc.Signals.Send(signal.RequestDropped, &types.DroppedRequest{Request: req, Reason: "duplicate"})
		return types.ErrDuplicate
	}
	e.cc.Stats.URLsEnqueued.Add(1)
	e.cc.Signals.Send(signal.RequestScheduled, req)
	return nil
}

// Start launches the worker pool, the item pipeline, result storage,
// optional checkpointing, and the heartbeat loop.
func (e *Engine) Start() error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("engine is in state %s, cannot start", State(e.state.Load()))
	}

	e.cc.Stats.StartTime = time.Now()
	e.cc.Signals.Send(signal.EngineStarted, nil)
	e.cc.Signals.Send(signal.SpiderOpened, nil)

	concurrency := e.cc.Settings.Download.ConcurrentRequests
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	e.wg.Add(1)
	go e.processItems()

	e.wg.Add(1)
	go e.storeResults()

	e.startCron()

	e.wg.Add(1)
	go e.heartbeat()

	return nil
}

// worker repeatedly pulls the next request and drives it through the
// downloader and scraper, enqueueing discovered requests and
// forwarding items to the pipeline.
func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		if e.state.Load() == int32(StateStopping) || e.state.Load() == int32(StateStopped) {
			return
		}
		if e.paused.Load() {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		req, err := e.scheduler.Next(e.ctx)
		if err != nil {
			e.cc.Logger.Error("scheduler.Next failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if req == nil {
			select {
			case <-e.ctx.Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}

		e.inFlight.Add(1)
		e.cc.Stats.ActiveWorkers.Add(1)
		e.idleTicks.Store(0)
		if e.metrics != nil {
			e.metrics.ActiveWorkers.Set(float64(e.cc.Stats.ActiveWorkers.Load()))
		}
		e.processRequest(req)
		e.inFlight.Add(-1)
		e.cc.Stats.ActiveWorkers.Add(-1)
		if e.metrics != nil {
			e.metrics.ActiveWorkers.Set(float64(e.cc.Stats.ActiveWorkers.Load()))
		}
	}
}

func (e *Engine) processRequest(req *types.Request) {
	e.cc.Stats.RequestsSent.Add(1)
	start := time.Now()

	resp, err := e.downloader.Download(e.ctx, req)
	if e.metrics != nil {
		e.metrics.FetchDuration.WithLabelValues(req.FetcherType).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		var retry *types.RetryRequest
		if asRetryRequest(err, &retry) {
			_ = e.scheduler.Release(e.ctx, req, "retry")
			if rerr := e.AddRequest(retry.Retry); rerr != nil {
				e.cc.Logger.Debug("retry not rescheduled", "url", req.URLString(), "error", rerr)
			}
			return
		}

		e.cc.Stats.RequestsFailed.Add(1)
		e.cc.Stats.RecordDomain(req.RegistrableDomain(), true)
		e.cc.Signals.Send(signal.SpiderError, err)
		e.cc.Logger.Warn("fetch failed", "url", req.URLString(), "error", err)
		if e.metrics != nil {
			e.metrics.RequestsTotal.WithLabelValues("error").Inc()
		}
		outputs, dropped, ebErr := e.scraper.Errback(e.ctx, req, err)
		e.reportDepthDrops(dropped)
		e.handleOutputs(req, outputs, ebErr)
		return
	}

	e.cc.Stats.ResponsesOK.Add(1)
	e.cc.Stats.BytesDownloaded.Add(resp.ContentLength)
	e.cc.Stats.RecordDomain(req.RegistrableDomain(), false)
	e.cc.Signals.Send(signal.ResponseDownload, resp)
	e.cc.Signals.Send(signal.ResponseReceived, resp)
	if e.metrics != nil {
		e.metrics.RequestsTotal.WithLabelValues("ok").Inc()
		e.metrics.ResponsesTotal.WithLabelValues(responseClass(resp.StatusCode)).Inc()
		e.metrics.BytesDownloaded.Add(float64(resp.ContentLength))
		e.metrics.QueueDepth.Set(float64(approxQueueDepth(e.ctx, e.queueBE)))
	}

	outputs, dropped, err := e.scraper.Process(e.ctx, req, resp)
	e.reportDepthDrops(dropped)
	if err != nil {
		e.cc.Stats.ParserErrors.Add(1)
		e.cc.Signals.Send(signal.SpiderError, err)
		e.cc.Logger.Warn("scraper failed", "url", req.URLString(), "error", err)
		return
	}

	e.handleOutputs(req, outputs, nil)
}

// reportDepthDrops stats-counts and signals every request enforceDepth
// dropped for exceeding DEPTH_LIMIT — the depth-limit counterpart to
// the duplicate-filter drop handling in AddRequest.
func (e *Engine) reportDepthDrops(dropped []scraper.DepthDrop) {
	for _, d := range dropped {
		e.cc.Stats.DepthLimitReached.Add(1)
		e.cc.Signals.Send(signal.RequestDropped, &types.DroppedRequest{
			Request: d.Request,
			Reason:  "depth_limit",
		})
		e.cc.Logger.Debug("request dropped: depth limit reached", "url", d.Request.URLString(), "depth", d.Depth, "parent", d.Request.ParentURL)
	}
}

// handleOutputs routes a scraper/errback outcome: discovered requests
// are scheduled, items are handed to the pipeline stage. An error means
// neither the parser nor its errback could resolve the failure.
func (e *Engine) handleOutputs(req *types.Request, outputs []scraper.Output, err error) {
	if err != nil {
		e.cc.Signals.Send(signal.SpiderError, err)
		e.cc.Logger.Warn("errback unresolved", "url", req.URLString(), "error", err)
		return
	}

	for _, out := range outputs {
		switch {
		case out.Request != nil:
			if err := e.AddRequest(out.Request); err != nil {
				e.cc.Logger.Debug("discovered request not scheduled", "url", out.Request.URLString(), "error", err)
			}
		case out.Item != nil:
			select {
			case e.itemChan <- out.Item:
			case <-e.ctx.Done():
				return
			}
		}
	}
}

func responseClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func approxQueueDepth(ctx context.Context, q queue.Backend) int64 {
	n, err := q.Size(ctx)
	if err != nil {
		return 0
	}
	return n
}

func asRetryRequest(err error, out **types.RetryRequest) bool {
	for err != nil {
		if rr, ok := err.(*types.RetryRequest); ok {
			*out = rr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// processItems runs the pipeline on scraped items.
func (e *Engine) processItems() {
	defer e.wg.Done()
	for item := range e.itemChan {
		if e.pipeline != nil {
			processed, err := e.pipeline.Process(item)
			if err != nil {
				e.cc.Stats.ItemsDropped.Add(1)
				e.cc.Signals.Send(signal.ItemDropped, item)
				e.cc.Logger.Warn("pipeline dropped item", "error", err)
				if e.metrics != nil {
					e.metrics.ItemsDropped.Inc()
				}
				continue
			}
			if processed == nil {
				// Explicit drop: nil item, nil error.
				e.cc.Stats.ItemsDropped.Add(1)
				e.cc.Signals.Send(signal.ItemDropped, item)
				if e.metrics != nil {
					e.metrics.ItemsDropped.Inc()
				}
				continue
			}
			item = processed
		}
		e.cc.Stats.ItemsScraped.Add(1)
		e.cc.Signals.Send(signal.ItemScraped, item)
		if e.metrics != nil {
			e.metrics.ItemsScraped.Inc()
		}
		e.resultChan <- item
	}
	close(e.resultChan)
}

// storeResults persists items in batches.
func (e *Engine) storeResults() {
	defer e.wg.Done()
	batchSize := e.cc.Settings.Storage.BatchSize
	if batchSize < 1 {
		batchSize = 100
	}
	batch := make([]*types.Item, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if e.storage != nil {
			if err := e.storage.Store(batch); err != nil {
				e.cc.Logger.Error("storage error", "error", err, "batch_size", len(batch))
			}
		}
		batch = batch[:0]
	}

	for item := range e.resultChan {
		batch = append(batch, item)
		if len(batch) >= batchSize {
			flush()
		}
	}
	flush()

	if e.storage != nil {
		if err := e.storage.Close(); err != nil {
			e.cc.Logger.Error("storage close error", "error", err)
		}
	}
}

// startCron schedules the engine's periodic background jobs —
// checkpoint snapshots and proxy pool health refills — declaratively
// via cron's "@every <interval>" spec rather than raw tickers, so an
// operator reading the schedule sees the same cadence the config
// names.
func (e *Engine) startCron() {
	interval := e.cc.Settings.Engine.CheckpointInterval
	refill := e.cc.Settings.Proxy.RefillInterval
	if interval <= 0 && (e.proxies == nil || refill <= 0) {
		return
	}

	e.cronSched = cron.New()
	if interval > 0 {
		spec := "@every " + interval.String()
		if _, err := e.cronSched.AddFunc(spec, func() {
			if err := e.checkpoint.Save(e.queueBE, e.filterBE, e.cc.Stats); err != nil {
				e.cc.Logger.Error("checkpoint save failed", "error", err)
			}
		}); err != nil {
			e.cc.Logger.Error("invalid checkpoint schedule", "interval", interval, "error", err)
		}
	}
	if e.proxies != nil && refill > 0 {
		spec := "@every " + refill.String()
		if _, err := e.cronSched.AddFunc(spec, func() {
			if err := e.proxies.Refill(e.ctx); err != nil {
				e.cc.Logger.Warn("proxy pool refill failed", "error", err)
			}
		}); err != nil {
			e.cc.Logger.Error("invalid proxy refill schedule", "interval", refill, "error", err)
		}
	}
	e.cronSched.Start()
}

// heartbeat is the engine's main loop: every tick it
// evaluates idle and close-spider conditions.
func (e *Engine) heartbeat() {
	defer e.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	closeOn := e.cc.Settings.CloseOn
	deadline := time.Time{}
	if closeOn.Timeout > 0 {
		deadline = time.Now().Add(closeOn.Timeout)
	}

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		}

		if e.state.Load() != int32(StateRunning) {
			continue
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			e.cc.Logger.Info("closing: CLOSESPIDER_TIMEOUT reached")
			e.cc.Stats.SetFinishReason("closespider_timeout")
			e.Stop()
			return
		}
		if closeOn.ItemCount > 0 && e.cc.Stats.ItemsScraped.Load() >= int64(closeOn.ItemCount) {
			e.cc.Logger.Info("closing: CLOSESPIDER_ITEMCOUNT reached")
			e.cc.Stats.SetFinishReason("closespider_itemcount")
			e.Stop()
			return
		}
		if closeOn.PageCount > 0 && e.cc.Stats.ResponsesOK.Load() >= int64(closeOn.PageCount) {
			e.cc.Logger.Info("closing: CLOSESPIDER_PAGECOUNT reached")
			e.cc.Stats.SetFinishReason("closespider_pagecount")
			e.Stop()
			return
		}
		if closeOn.ErrorCount > 0 && e.cc.Stats.RequestsFailed.Load() >= int64(closeOn.ErrorCount) {
			e.cc.Logger.Info("closing: CLOSESPIDER_ERRORCOUNT reached")
			e.cc.Stats.SetFinishReason("closespider_errorcount")
			e.Stop()
			return
		}

		if !e.isIdle() {
			e.idleTicks.Store(0)
			continue
		}

		ticks := e.idleTicks.Add(1)
		if ticks == idleConfirmTicks {
			e.cc.Signals.Send(signal.SpiderIdle, nil)
		}
		if closeOn.OnIdle && ticks >= idleConfirmTicks*2 {
			e.cc.Logger.Info("closing: idle with no spider_idle handler repopulating work")
			e.cc.Stats.SetFinishReason("closespider_idle")
			e.Stop()
			return
		}
	}
}

// isIdle reports no pending queue work, no in-flight request, and no
// item awaiting pipeline processing.
func (e *Engine) isIdle() bool {
	if e.inFlight.Load() > 0 {
		return false
	}
	if len(e.itemChan) > 0 || len(e.resultChan) > 0 {
		return false
	}
	return !e.scheduler.HasPending(e.ctx)
}

// Wait blocks until the crawl finishes (idle-closed, operator-stopped,
// or a close-spider trigger fired) and all background goroutines exit.
func (e *Engine) Wait() {
	e.wg.Wait()
	e.cc.Stats.SetFinishReason("manual_stop")
	if e.cronSched != nil {
		<-e.cronSched.Stop().Done()
	}
	if err := e.checkpoint.Save(e.queueBE, e.filterBE, e.cc.Stats); err != nil {
		e.cc.Logger.Error("final checkpoint save failed", "error", err)
	}
	e.state.Store(int32(StateStopped))
	_ = e.scheduler.Close()
	_ = e.downloader.Close()
	e.cc.Signals.Send(signal.SpiderClosed, nil)
	e.cc.Signals.Send(signal.EngineStopped, e.cc.Stats.Snapshot())
	e.cc.Logger.Info("engine stopped", "stats", e.cc.Stats.Snapshot())
}

// Stop initiates graceful shutdown: no new requests are popped, the
// item channel drains, then Wait's goroutines exit.
func (e *Engine) Stop() {
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}
	e.cc.Logger.Info("engine stopping")
	go func() {
		// Give in-flight work a moment to land outputs before severing
		// the item channel, then cancel to unblock every select.
		time.Sleep(2 * heartbeatInterval)
		close(e.itemChan)
		e.cancel()
	}()
}

// Pause suspends worker dispatch without tearing anything down.
func (e *Engine) Pause() {
	if e.state.Load() == int32(StateRunning) {
		e.paused.Store(true)
		e.cc.Logger.Info("engine paused")
	}
}

// Resume reverses Pause.
func (e *Engine) Resume() {
	if e.paused.CompareAndSwap(true, false) {
		e.cc.Logger.Info("engine resumed")
	}
}

// GetState returns the current lifecycle state.
func (e *Engine) GetState() State { return State(e.state.Load()) }

// Stats returns the engine's running statistics.
func (e *Engine) Stats() *Stats { return e.cc.Stats }

// ResultsChan streams stored items to callers that want to observe
// them (e.g. a CLI printing progress).
func (e *Engine) ResultsChan() <-chan *types.Item { return e.resultChan }
