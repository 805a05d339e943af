package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/dupefilter"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/queue"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestScheduler() *Scheduler {
	return New(queue.NewMemory(), dupefilter.NewMemory(time.Minute), testLogger)
}

func TestEnqueueDropsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	req, _ := types.NewRequest("https://example.com/dup")

	ok, err := s.Enqueue(ctx, req)
	if err != nil || !ok {
		t.Fatalf("first enqueue should succeed: ok=%v err=%v", ok, err)
	}

	ok, err = s.Enqueue(ctx, req)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if ok {
		t.Error("second enqueue of an equivalent request should be dropped as duplicate")
	}
}

func TestEnqueueDontFilterBypassesDupeCheck(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	req, _ := types.NewRequest("https://example.com/retry")
	req.DontFilter = true

	for i := 0; i < 2; i++ {
		ok, err := s.Enqueue(ctx, req)
		if err != nil || !ok {
			t.Fatalf("enqueue %d with DontFilter should always succeed: ok=%v err=%v", i, ok, err)
		}
	}
}

func TestNextReturnsNilWhenEmptyNotError(t *testing.T) {
	s := newTestScheduler()
	req, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("expected no error on empty queue, got %v", err)
	}
	if req != nil {
		t.Error("expected nil request when the queue is empty")
	}
}

func TestHasPendingTracksEnqueueAndDequeue(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	if s.HasPending(ctx) {
		t.Fatal("new scheduler should report no pending work")
	}

	req, _ := types.NewRequest("https://example.com/")
	if _, err := s.Enqueue(ctx, req); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !s.HasPending(ctx) {
		t.Error("expected pending work after enqueue")
	}

	if _, err := s.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if s.HasPending(ctx) {
		t.Error("expected no pending work after draining the only request")
	}
}

func TestReleaseAllowsReEnqueue(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler()
	req, _ := types.NewRequest("https://example.com/retry-release")

	if _, err := s.Enqueue(ctx, req); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := s.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := s.Release(ctx, req, "retry"); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err := s.Enqueue(ctx, req)
	if err != nil || !ok {
		t.Fatalf("re-enqueue after release should succeed: ok=%v err=%v", ok, err)
	}
}
