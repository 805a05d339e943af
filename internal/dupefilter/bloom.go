package dupefilter

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func init() {
	Registry.Register("bloom", func(cfg map[string]any) (Filter, error) {
		bits := defaultBloomBits
		if v, ok := cfg["bits"].(int); ok && v > 0 {
			bits = v
		}
		k := defaultBloomHashes
		if v, ok := cfg["hashes"].(int); ok && v > 0 {
			k = v
		}
		return NewBloom(newMemoryBits(bits), uint(k)), nil
	})

	Registry.Register("bloom-redis", func(cfg map[string]any) (Filter, error) {
		addr, _ := cfg["addr"].(string)
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		spider, _ := cfg["spider"].(string)
		if spider == "" {
			spider = "default"
		}
		bits := defaultBloomBits
		if v, ok := cfg["bits"].(int); ok && v > 0 {
			bits = v
		}
		k := defaultBloomHashes
		if v, ok := cfg["hashes"].(int); ok && v > 0 {
			k = v
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		return NewBloom(newRedisBits(client, spider+":bloom", bits), uint(k)), nil
	})
}

// BLOOMFILTER_BIT is an absolute
// bit count, not a per-item growth factor, so operators size it
// directly against their expected crawl volume instead of reasoning
// about amortized false-positive curves.
const (
	defaultBloomBits   = 1 << 24 // 16 Mbit ~= 2M bytes
	defaultBloomHashes = 7
)

// bitStore is the storage abstraction a Bloom filter tests and sets
// bits against; Memory and Redis each implement it so the same Bloom
// logic runs single-process or shared across workers.
type bitStore interface {
	// testAndSet atomically reads bit i's prior value then sets it,
	// returning the prior value.
	testAndSet(ctx context.Context, i uint64) (bool, error)
	size() uint64
}

// Bloom is the space-efficient, probabilistic fingerprint filter, with
// a configurable false-positive rate via absolute bit count and number
// of hash functions. A negative Seen (unseen) is always correct; a
// positive Seen can occasionally be wrong about a request never
// admitted before (false positive), never the reverse.
// There is no Release: clearing a single bit could unset bits shared
// by other fingerprints, so Release is a deliberate no-op.
type Bloom struct {
	mu    sync.Mutex
	store bitStore
	k     uint
}

// NewBloom creates a Bloom filter over store using k hash functions.
func NewBloom(store bitStore, k uint) *Bloom {
	if k == 0 {
		k = defaultBloomHashes
	}
	return &Bloom{store: store, k: k}
}

// indexes returns the k bit positions for fingerprint fp using Kirsch-
// Mitzenmacher double hashing: h_i = h1 + i*h2 mod m, from two
// independent FNV hashes of the fingerprint.
func (b *Bloom) indexes(fp string) []uint64 {
	h1 := fnv.New64a()
	h1.Write([]byte(fp))
	sum1 := h1.Sum64()

	h2 := fnv.New64()
	h2.Write([]byte(fp))
	sum2 := h2.Sum64()
	if sum2 == 0 {
		sum2 = 1
	}

	m := b.store.size()
	out := make([]uint64, b.k)
	for i := uint(0); i < b.k; i++ {
		out[i] = (sum1 + uint64(i)*sum2) % m
	}
	return out
}

func (b *Bloom) Seen(ctx context.Context, req *types.Request) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.indexes(req.Fingerprint())
	allSet := true
	for _, i := range idx {
		prior, err := b.store.testAndSet(ctx, i)
		if err != nil {
			return false, &types.FilterError{Backend: "bloom", Err: err}
		}
		if !prior {
			allSet = false
		}
	}
	return allSet, nil
}

func (b *Bloom) Release(_ context.Context, _ *types.Request, _ string) error {
	return nil
}

func (b *Bloom) Close() error { return nil }

// --- in-memory bit store ---

type memoryBits struct {
	mu   sync.Mutex
	bits []uint64
	n    uint64
}

func newMemoryBits(n int) *memoryBits {
	return &memoryBits{bits: make([]uint64, (n+63)/64), n: uint64(n)}
}

func (m *memoryBits) size() uint64 { return m.n }

func (m *memoryBits) testAndSet(_ context.Context, i uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	word, bit := i/64, i%64
	prior := m.bits[word]&(1<<bit) != 0
	m.bits[word] |= 1 << bit
	return prior, nil
}

// --- Redis bit store, via SETBIT/GETBIT ---

type redisBits struct {
	client *redis.Client
	key    string
	n      uint64
}

func newRedisBits(client *redis.Client, key string, n int) *redisBits {
	return &redisBits{client: client, key: key, n: uint64(n)}
}

func (r *redisBits) size() uint64 { return r.n }

func (r *redisBits) testAndSet(ctx context.Context, i uint64) (bool, error) {
	prior, err := r.client.SetBit(ctx, r.key, int64(i), 1).Result()
	if err != nil {
		return false, err
	}
	return prior == 1, nil
}
