package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/canner-app/canner/go/internal/core/ports"
)

// DefaultOpTimeout bounds every backend call so an outage degrades to a miss
// instead of hanging the request.
const DefaultOpTimeout = 500 * time.Millisecond

const scanBatch = 200

// incrWindowScript increments a counter and starts its window on first use.
var incrWindowScript = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
if c == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return c
`)

// RedisCache implements ports.CacheBackend and ports.Counter on Redis.
type RedisCache struct {
	r         redis.Cmdable
	prefix    string
	opTimeout time.Duration
}

var (
	_ ports.CacheBackend = (*RedisCache)(nil)
	_ ports.Counter      = (*RedisCache)(nil)
)

// NewRedisCache creates a Redis-backed cache namespaced under prefix.
func NewRedisCache(r redis.Cmdable, prefix string, opTimeout time.Duration) *RedisCache {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &RedisCache{r: r, prefix: prefix, opTimeout: opTimeout}
}

func (c *RedisCache) Kind() string { return "redis" }

func (c *RedisCache) namespaced(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *RedisCache) opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.opTimeout)
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	val, err := c.r.Get(ctx, c.namespaced(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.r.Set(ctx, c.namespaced(key), value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	n, err := c.r.Del(ctx, c.namespaced(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeletePrefix removes keys matching prefix using SCAN so large keyspaces are
// never blocked by KEYS.
func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	removed := 0
	err := c.scan(ctx, c.namespaced(prefix)+"*", func(keys []string) error {
		n, err := c.r.Del(ctx, keys...).Result()
		removed += int(n)
		return err
	})
	return removed, err
}

// Clear drops the whole namespace. Without a prefix the selected database is
// flushed, matching a dedicated cache database.
func (c *RedisCache) Clear(ctx context.Context) error {
	if c.prefix == "" {
		ctx, cancel := c.opCtx(ctx)
		defer cancel()
		return c.r.FlushDB(ctx).Err()
	}
	_, err := c.DeletePrefix(ctx, "")
	return err
}

func (c *RedisCache) Len(ctx context.Context) (int, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	if c.prefix == "" {
		n, err := c.r.DBSize(ctx).Result()
		return int(n), err
	}
	total := 0
	err := c.scan(ctx, c.prefix+":*", func(keys []string) error {
		total += len(keys)
		return nil
	})
	return total, err
}

// IncrWindow uses the server-side atomic increment.
func (c *RedisCache) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return incrWindowScript.Run(ctx, c.r, []string{c.namespaced(key)}, window.Milliseconds()).Int64()
}

func (c *RedisCache) scan(ctx context.Context, match string, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.r.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
