package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func mustRequest(t *testing.T, rawURL string, priority int) *types.Request {
	t.Helper()
	req, err := types.NewRequest(rawURL)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Priority = priority
	return req
}

func TestMemoryPopOrdersByPriorityThenFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()

	_ = q.Push(ctx, mustRequest(t, "https://example.com/0", 0))
	_ = q.Push(ctx, mustRequest(t, "https://example.com/10", 10))
	_ = q.Push(ctx, mustRequest(t, "https://example.com/-5", -5))
	_ = q.Push(ctx, mustRequest(t, "https://example.com/0b", 0))

	wantOrder := []string{
		"https://example.com/10",
		"https://example.com/0",
		"https://example.com/0b",
		"https://example.com/-5",
	}
	for i, want := range wantOrder {
		req, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if req.URLString() != want {
			t.Errorf("pop %d: got %q, want %q", i, req.URLString(), want)
		}
	}
}

func TestMemoryPopEmptyReturnsErrQueueEmpty(t *testing.T) {
	q := NewMemory()
	_, err := q.Pop(context.Background())
	if !errors.Is(err, types.ErrQueueEmpty) {
		t.Errorf("expected ErrQueueEmpty, got %v", err)
	}
}

func TestMemorySizeAndClear(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	_ = q.Push(ctx, mustRequest(t, "https://example.com/a", 0))
	_ = q.Push(ctx, mustRequest(t, "https://example.com/b", 0))

	n, err := q.Size(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected size 2, got %d (err=%v)", n, err)
	}

	if err := q.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, _ = q.Size(ctx)
	if n != 0 {
		t.Errorf("expected size 0 after clear, got %d", n)
	}
}

func TestMemoryPushAfterCloseFails(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := q.Push(ctx, mustRequest(t, "https://example.com/", 0))
	if err == nil {
		t.Fatal("expected push after close to fail")
	}
	if !errors.Is(err, types.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestMemorySnapshotIsNonDestructive(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	_ = q.Push(ctx, mustRequest(t, "https://example.com/a", 0))

	snap := q.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 item in snapshot, got %d", len(snap))
	}
	n, _ := q.Size(ctx)
	if n != 1 {
		t.Errorf("snapshot should not drain the queue, size is %d", n)
	}
}
