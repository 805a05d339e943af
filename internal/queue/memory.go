package queue

import (
	"container/heap"
	"context"
	"sync"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func init() {
	Registry.Register("memory", func(map[string]any) (Backend, error) {
		return NewMemory(), nil
	})
}

// Memory is an in-process max-priority heap over requests. It is the
// default backend for a single-process crawl.
type Memory struct {
	mu     sync.Mutex
	pq     priorityHeap
	seq    uint64
	closed bool
}

// NewMemory creates an empty Memory queue.
func NewMemory() *Memory {
	pq := make(priorityHeap, 0, 1024)
	heap.Init(&pq)
	return &Memory{pq: pq}
}

func (m *Memory) Push(_ context.Context, req *types.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &types.QueueError{Backend: "memory", Op: "push", Err: types.ErrQueueClosed}
	}
	m.seq++
	heap.Push(&m.pq, &pqItem{request: req, priority: req.Priority, seq: m.seq})
	return nil
}

func (m *Memory) Pop(_ context.Context) (*types.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pq.Len() == 0 {
		return nil, &types.QueueError{Backend: "memory", Op: "pop", Err: types.ErrQueueEmpty}
	}
	item := heap.Pop(&m.pq).(*pqItem)
	return item.request, nil
}

func (m *Memory) Size(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(m.pq.Len()), nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pq = m.pq[:0]
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Snapshot returns a non-destructive copy of all pending requests, used
// by the engine's checkpoint manager.
func (m *Memory) Snapshot() []*types.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Request, len(m.pq))
	for i, it := range m.pq {
		out[i] = it.request
	}
	return out
}

// --- priority heap: higher Priority first, ties broken FIFO by seq ---

type pqItem struct {
	request  *types.Request
	priority int
	seq      uint64
	index    int
}

type priorityHeap []*pqItem

func (pq priorityHeap) Len() int { return len(pq) }

func (pq priorityHeap) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority // higher priority first
	}
	return pq[i].seq < pq[j].seq // FIFO among equal priority
}

func (pq priorityHeap) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityHeap) Push(x any) {
	n := len(*pq)
	item := x.(*pqItem)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *priorityHeap) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}
