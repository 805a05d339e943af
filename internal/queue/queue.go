// Package queue implements the pluggable Request Queue: a max-priority
// queue over requests, keyed by request.Priority with FIFO
// tie-breaking, presenting identical semantics whether backed by an
// in-process heap, disk, Redis, or AMQP.
package queue

import (
	"context"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/registry"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// Backend is the contract every queue implementation satisfies. All
// methods must be safe for concurrent use by multiple scheduler
// goroutines (and, for shared backends, multiple worker processes).
type Backend interface {
	// Push durably enqueues req. After Push returns nil, req is
	// visible to any subsequent Pop by any worker sharing the backend.
	Push(ctx context.Context, req *types.Request) error

	// Pop removes and returns the highest-priority pending request.
	// Returns types.ErrQueueEmpty (wrapped) if nothing is pending right
	// now; implementations must NOT block, so the engine's idle
	// detection can distinguish "empty now" from "will never be
	// non-empty".
	Pop(ctx context.Context) (*types.Request, error)

	// Size reports the approximate pending count. Advisory and
	// eventually consistent for shared backends.
	Size(ctx context.Context) (int64, error)

	// Clear drops all pending requests.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Registry is the builder-by-name table selected via the
// SCHEDULER_QUEUE_CLASS setting.
var Registry = registry.New[Backend]()
