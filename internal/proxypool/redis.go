package proxypool

import (
	"context"
	"math/rand"

	"github.com/redis/go-redis/v9"
)

func init() {
	Registry.Register("redis", func(cfg map[string]any) (Pool, error) {
		addr, _ := cfg["addr"].(string)
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		namespace, _ := cfg["namespace"].(string)
		if namespace == "" {
			namespace = "default"
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		return NewRedis(client, namespace), nil
	})
}

// Redis is the canonical, cross-process proxy store: a
// sorted set of all known proxies scored by consecutive-failure count,
// so the healthiest proxies (score 0) always sort first and ZRANGE
// naturally yields a rotation over them. A failure count reaching
// maxFailures removes the member entirely.
type Redis struct {
	client      *redis.Client
	key         string
	maxFailures int64
}

// NewRedis creates a Redis-backed proxy pool under the given namespace.
func NewRedis(client *redis.Client, namespace string) *Redis {
	return &Redis{client: client, key: namespace + ":proxies", maxFailures: 3}
}

// AddProxy registers proxyURL with a zero failure score (fully
// healthy).
func (r *Redis) AddProxy(ctx context.Context, proxyURL string) error {
	return r.client.ZAdd(ctx, r.key, redis.Z{Score: 0, Member: proxyURL}).Err()
}

func (r *Redis) Get(ctx context.Context) (string, error) {
	// Healthy members sit at score 0; sample from among them rather
	// than always returning the lexicographically-first one.
	members, err := r.client.ZRangeByScore(ctx, r.key, &redis.ZRangeBy{
		Min: "0", Max: "0",
	}).Result()
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return "", ErrEmpty
	}
	return members[rand.Intn(len(members))], nil
}

func (r *Redis) Invalidate(ctx context.Context, proxyURL string, _ error) error {
	score, err := r.client.ZIncrBy(ctx, r.key, 1, proxyURL).Result()
	if err != nil {
		return err
	}
	if int64(score) >= r.maxFailures {
		return r.client.ZRem(ctx, r.key, proxyURL).Err()
	}
	return nil
}

// Refill is a no-op for the Redis backend: health state lives in the
// shared sorted set and is corrected by every worker's Invalidate
// calls, with no single owner responsible for re-probing.
func (r *Redis) Refill(ctx context.Context) error {
	_ = ctx
	return nil
}

func (r *Redis) Count() int {
	n, err := r.client.ZCard(context.Background(), r.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (r *Redis) HealthyCount() int {
	n, err := r.client.ZCount(context.Background(), r.key, "0", "0").Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (r *Redis) Close() error { return r.client.Close() }
