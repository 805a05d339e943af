package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func init() {
	Registry.Register("redis", func(cfg map[string]any) (Backend, error) {
		addr, _ := cfg["addr"].(string)
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		spider, _ := cfg["spider"].(string)
		if spider == "" {
			spider = "default"
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		return NewRedis(client, spider, JSONSerializer{}), nil
	})
}

// Redis is the cross-process queue backend: a sorted set
// named "{spider}:requests" with member = serialized request and
// score = negative priority, so ZPOPMIN yields the highest-priority
// request first. FIFO tie-breaking among equal priorities is
// approximated by folding a monotonic sequence into the score's
// fractional part.
type Redis struct {
	client     *redis.Client
	key        string
	serializer Serializer
	seq        int64
}

// NewRedis creates a Redis-backed queue for the given spider namespace.
func NewRedis(client *redis.Client, spider string, ser Serializer) *Redis {
	return &Redis{
		client:     client,
		key:        spider + ":requests",
		serializer: ser,
	}
}

func (r *Redis) Push(ctx context.Context, req *types.Request) error {
	raw, err := r.serializer.Serialize(req)
	if err != nil {
		return &types.QueueError{Backend: "redis", Op: "push", Err: err}
	}
	r.seq++
	// Negative priority so higher priority sorts first under ZPOPMIN;
	// the fractional sequence component preserves FIFO among ties
	// without ever flipping the priority ordering (sequence resets
	// are bounded well under 1.0 per process lifetime in practice, and
	// a cross-process tie simply falls back to broker-arrival order).
	score := float64(-req.Priority) + float64(r.seq%1_000_000)/1_000_000.0
	if err := r.client.ZAdd(ctx, r.key, redis.Z{Score: score, Member: raw}).Err(); err != nil {
		return &types.QueueError{Backend: "redis", Op: "push", Err: err}
	}
	return nil
}

func (r *Redis) Pop(ctx context.Context) (*types.Request, error) {
	results, err := r.client.ZPopMin(ctx, r.key, 1).Result()
	if err != nil {
		return nil, &types.QueueError{Backend: "redis", Op: "pop", Err: err}
	}
	if len(results) == 0 {
		return nil, &types.QueueError{Backend: "redis", Op: "pop", Err: types.ErrQueueEmpty}
	}
	raw, ok := results[0].Member.(string)
	if !ok {
		return nil, &types.QueueError{Backend: "redis", Op: "pop", Err: fmt.Errorf("unexpected member type %T", results[0].Member)}
	}
	req, err := r.serializer.Deserialize([]byte(raw))
	if err != nil {
		return nil, &types.QueueError{Backend: "redis", Op: "pop", Err: err}
	}
	return req, nil
}

func (r *Redis) Size(ctx context.Context) (int64, error) {
	n, err := r.client.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, &types.QueueError{Backend: "redis", Op: "size", Err: err}
	}
	return n, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return &types.QueueError{Backend: "redis", Op: "clear", Err: err}
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
