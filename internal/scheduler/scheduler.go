// Package scheduler implements the Scheduler component: it bridges
// the engine to the Request Queue and the Fingerprint Filter,
// deduplicating on Enqueue and never blocking on Next so the engine's
// idle detection keeps working.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/dupefilter"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/queue"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// Scheduler bridges the engine to a queue.Backend and a
// dupefilter.Filter.
type Scheduler struct {
	q       queue.Backend
	filter  dupefilter.Filter
	logger  *slog.Logger
	pending atomic.Int64
}

// New creates a Scheduler over q and filter.
func New(q queue.Backend, filter dupefilter.Filter, logger *slog.Logger) *Scheduler {
	return &Scheduler{q: q, filter: filter, logger: logger.With("component", "scheduler")}
}

// Enqueue admits req unless it is a duplicate (and DontFilter is
// false). Returns (true, nil) if the request was newly scheduled,
// (false, nil) if it was dropped as a duplicate, and a non-nil error
// only for a backend failure.
func (s *Scheduler) Enqueue(ctx context.Context, req *types.Request) (bool, error) {
	if !req.DontFilter {
		seen, err := s.filter.Seen(ctx, req)
		if err != nil {
			return false, err
		}
		if seen {
			return false, nil
		}
	}

	if err := s.q.Push(ctx, req); err != nil {
		return false, err
	}
	s.pending.Add(1)
	return true, nil
}

// Next returns the next pending request, or (nil, nil) if the queue is
// currently empty — never blocks, so the engine's heartbeat loop can
// move on to idle evaluation.
func (s *Scheduler) Next(ctx context.Context) (*types.Request, error) {
	req, err := s.q.Pop(ctx)
	if err != nil {
		if errors.Is(err, types.ErrQueueEmpty) {
			return nil, nil
		}
		return nil, err
	}
	s.pending.Add(-1)
	return req, nil
}

// HasPending reports whether the queue currently holds any request.
func (s *Scheduler) HasPending(ctx context.Context) bool {
	n, err := s.q.Size(ctx)
	if err != nil {
		s.logger.Warn("queue size check failed", "error", err)
		return s.pending.Load() > 0
	}
	return n > 0
}

// Release forgets req's fingerprint, used when a retry must be
// re-crawlable.
func (s *Scheduler) Release(ctx context.Context, req *types.Request, reason string) error {
	return s.filter.Release(ctx, req, reason)
}

// Close releases both backends.
func (s *Scheduler) Close() error {
	var firstErr error
	if err := s.q.Close(); err != nil {
		firstErr = err
	}
	if err := s.filter.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
