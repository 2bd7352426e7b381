package health_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/canner-app/canner/go/internal/infrastructure/health"
	"github.com/canner-app/canner/go/internal/infrastructure/memory"
	tmocks "github.com/canner-app/canner/go/test/mocks"
)

func TestRedisHealthChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	hc := health.NewRedisHealthChecker(client)
	assert.Equal(t, "redis", hc.Name())
	assert.NoError(t, hc.Check(context.Background()))

	assert.Equal(t, "task_broker", health.NewBrokerHealthChecker(client).Name())

	mr.Close()
	assert.Error(t, hc.Check(context.Background()))
}

func TestCacheHealthChecker(t *testing.T) {
	store, err := memory.NewStore(1, nil)
	assert.NoError(t, err)
	hc := health.NewCacheHealthChecker(store)
	assert.Equal(t, "cache", hc.Name())
	assert.NoError(t, hc.Check(context.Background()))

	err = health.NewCacheHealthChecker(tmocks.FailingBackend()).Check(context.Background())
	assert.ErrorIs(t, err, tmocks.ErrBackendDown)
}
