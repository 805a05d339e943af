package dupefilter

import (
	"context"
	"sync"
	"time"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func init() {
	Registry.Register("memory", func(cfg map[string]any) (Filter, error) {
		ttl := defaultInFlightTTL
		if v, ok := cfg["in_flight_ttl"].(time.Duration); ok && v > 0 {
			ttl = v
		}
		return NewMemory(ttl), nil
	})
}

const defaultInFlightTTL = 2 * time.Minute

// Memory is the single-process fingerprint filter, adapted
// from a plain seen-set into one that also tracks fingerprints that
// were seen but are still retryable: an in-flight entry expires after
// its TTL, after which the fingerprint is treated as unseen again so a
// request stuck behind a crashed worker is not lost forever.
type Memory struct {
	mu       sync.RWMutex
	seen     map[string]struct{}
	inFlight map[string]time.Time
	ttl      time.Duration
}

// NewMemory creates an empty Memory filter with the given in-flight TTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = defaultInFlightTTL
	}
	return &Memory{
		seen:     make(map[string]struct{}),
		inFlight: make(map[string]time.Time),
		ttl:      ttl,
	}
}

func (m *Memory) Seen(_ context.Context, req *types.Request) (bool, error) {
	fp := req.Fingerprint()

	m.mu.Lock()
	defer m.mu.Unlock()

	if deadline, ok := m.inFlight[fp]; ok {
		if time.Now().After(deadline) {
			delete(m.inFlight, fp)
			delete(m.seen, fp)
		} else {
			return true, nil
		}
	}

	if _, ok := m.seen[fp]; ok {
		return true, nil
	}

	m.seen[fp] = struct{}{}
	m.inFlight[fp] = time.Now().Add(m.ttl)
	return false, nil
}

func (m *Memory) Release(_ context.Context, req *types.Request, _ string) error {
	fp := req.Fingerprint()

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, fp)
	delete(m.inFlight, fp)
	return nil
}

func (m *Memory) Close() error { return nil }

// Count returns the number of fingerprints currently marked seen.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seen)
}

// Reset clears all state, used between crawls that share a process.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = make(map[string]struct{})
	m.inFlight = make(map[string]time.Time)
}

// Export returns every currently-seen fingerprint, for checkpointing.
func (m *Memory) Export() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.seen))
	for fp := range m.seen {
		out = append(out, fp)
	}
	return out
}

// Import marks every fingerprint in fps as seen, without starting
// an in-flight TTL countdown (checkpoint-restored entries are treated
// as permanently settled, matching the disk backend's replay).
func (m *Memory) Import(fps []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fp := range fps {
		m.seen[fp] = struct{}{}
	}
}
