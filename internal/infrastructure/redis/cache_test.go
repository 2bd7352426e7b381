package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/canner-app/canner/go/configs"
	"github.com/canner-app/canner/go/internal/infrastructure/redis"
)

func newCache(t *testing.T, prefix string) (*redis.RedisCache, *miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewRedisCache(client, prefix, time.Second), mr, client
}

func TestRedisCache_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	c, mr, _ := newCache(t, "canner")

	require.NoError(t, c.Set(ctx, "k", []byte(`{"a":1}`), time.Minute))
	assert.True(t, mr.Exists("canner:k"))

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(v))

	mr.FastForward(time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_RejectsNonPositiveTTL(t *testing.T) {
	c, _, _ := newCache(t, "canner")
	assert.Error(t, c.Set(context.Background(), "k", []byte("1"), 0))
}

func TestRedisCache_DeleteAndPrefixScoping(t *testing.T) {
	ctx := context.Background()
	c, mr, _ := newCache(t, "canner")
	require.NoError(t, mr.Set("other:k", "keep"))

	require.NoError(t, c.Set(ctx, "responses:alice:1", []byte("1"), time.Hour))
	require.NoError(t, c.Set(ctx, "responses:alice:2", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "responses:bob:1", []byte("3"), time.Hour))

	n, err := c.DeletePrefix(ctx, "responses:alice:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := c.Delete(ctx, "responses:bob:1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Delete(ctx, "responses:bob:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "x", []byte("1"), time.Hour))
	size, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	require.NoError(t, c.Clear(ctx))
	size, _ = c.Len(ctx)
	assert.Equal(t, 0, size)
	assert.True(t, mr.Exists("other:k"), "clear must stay inside the namespace")
}

func TestRedisCache_IncrWindow(t *testing.T) {
	ctx := context.Background()
	c, mr, _ := newCache(t, "canner")

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrWindow(ctx, "rate_limit:a", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	ttl := mr.TTL("canner:rate_limit:a")
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	// Later increments must not extend the window.
	mr.FastForward(30 * time.Second)
	_, err := c.IncrWindow(ctx, "rate_limit:a", time.Minute)
	require.NoError(t, err)
	assert.LessOrEqual(t, mr.TTL("canner:rate_limit:a"), 30*time.Second)

	mr.FastForward(30 * time.Second)
	got, err := c.IncrWindow(ctx, "rate_limit:a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestRedisCache_FailsWhenServerGone(t *testing.T) {
	c, mr, _ := newCache(t, "canner")
	mr.Close()
	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewRedisClient(&config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 2, DialTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = redis.NewRedisClient(&config.RedisConfig{URL: "not a url"})
	assert.Error(t, err)

	_, err = redis.NewRedisClient(&config.RedisConfig{URL: "redis://127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
