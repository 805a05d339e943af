package dupefilter

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func init() {
	Registry.Register("redis", func(cfg map[string]any) (Filter, error) {
		addr, _ := cfg["addr"].(string)
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		spider, _ := cfg["spider"].(string)
		if spider == "" {
			spider = "default"
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		return NewRedis(client, spider), nil
	})
}

// Redis is the cross-process exact fingerprint filter: a Redis set
// named "{spider}:fingerprints", membership tested and set atomically
// with SADD's return value.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a Redis-backed exact dupefilter for the given
// spider namespace.
func NewRedis(client *redis.Client, spider string) *Redis {
	return &Redis{client: client, key: spider + ":fingerprints"}
}

func (r *Redis) Seen(ctx context.Context, req *types.Request) (bool, error) {
	added, err := r.client.SAdd(ctx, r.key, req.Fingerprint()).Result()
	if err != nil {
		return false, &types.FilterError{Backend: "redis", Err: err}
	}
	// SAdd returns the count of members actually added; 0 means it was
	// already a member, i.e. already seen.
	return added == 0, nil
}

func (r *Redis) Release(ctx context.Context, req *types.Request, _ string) error {
	if err := r.client.SRem(ctx, r.key, req.Fingerprint()).Err(); err != nil {
		return &types.FilterError{Backend: "redis", Err: err}
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
