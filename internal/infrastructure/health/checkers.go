package health

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/canner-app/canner/go/internal/core/ports"
)

// redisHealthChecker wraps a redis client for health checks.
type redisHealthChecker struct {
	name   string
	client redis.Cmdable
}

func (r *redisHealthChecker) Name() string                    { return r.name }
func (r *redisHealthChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// NewRedisHealthChecker creates a health checker for the Redis cache backend.
func NewRedisHealthChecker(client redis.Cmdable) ports.HealthChecker {
	return &redisHealthChecker{name: "redis", client: client}
}

// NewBrokerHealthChecker creates a health checker for the Redis task broker.
func NewBrokerHealthChecker(client redis.Cmdable) ports.HealthChecker {
	return &redisHealthChecker{name: "task_broker", client: client}
}

// cacheHealthChecker checks whichever backend the cache store ended up on.
type cacheHealthChecker struct{ backend ports.CacheBackend }

func (c *cacheHealthChecker) Name() string { return "cache" }

func (c *cacheHealthChecker) Check(ctx context.Context) error {
	if _, err := c.backend.Len(ctx); err != nil {
		return fmt.Errorf("%s backend: %w", c.backend.Kind(), err)
	}
	return nil
}

// NewCacheHealthChecker creates a health checker for a cache backend.
func NewCacheHealthChecker(backend ports.CacheBackend) ports.HealthChecker {
	return &cacheHealthChecker{backend: backend}
}
