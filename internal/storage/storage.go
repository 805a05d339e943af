package storage

import (
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// Storage is the interface for all storage backends. It never sees an
// Item's RoutingHints — those are consumed upstream by RoutedStorage
// (see GroupByRoute) so concrete sinks only ever store plain data.
type Storage interface {
	// Store persists a batch of items.
	Store(items []*types.Item) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// GroupByRoute partitions items by their Hints.Pipeline routing hint,
// the empty string naming the default sink. It's how a RoutedStorage
// fans a batch out to per-hint backends without individual Storage
// implementations needing to understand routing hints themselves.
func GroupByRoute(items []*types.Item) map[string][]*types.Item {
	groups := make(map[string][]*types.Item)
	for _, item := range items {
		groups[item.Hints.Pipeline] = append(groups[item.Hints.Pipeline], item)
	}
	return groups
}
