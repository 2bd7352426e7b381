package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/canner-app/canner/go/internal/core/ports"
)

// peeker is implemented by stores that can read an entry without counting
// the lookup in their statistics.
type peeker interface {
	peek(ctx context.Context, key string, dest any) bool
}

// Memoize wraps fn with transparent caching under namespace. The returned
// function has fn's signature; its argument is folded into the cache key with
// DeriveKey. Concurrent calls with the same argument share one invocation of
// fn, and later calls within ttl are served from the store. Errors are
// returned to every waiter and never cached.
func Memoize[A any, R any](store ports.CacheStore, namespace string, ttl time.Duration, fn func(ctx context.Context, arg A) (R, error)) func(ctx context.Context, arg A) (R, error) {
	return memoizeKeyed(store, func(arg A) string { return DeriveKey(namespace, arg) }, ttl, fn)
}

func memoizeKeyed[A any, R any](store ports.CacheStore, keyOf func(A) string, ttl time.Duration, fn func(ctx context.Context, arg A) (R, error)) func(ctx context.Context, arg A) (R, error) {
	var group singleflight.Group
	return func(ctx context.Context, arg A) (R, error) {
		key := keyOf(arg)

		var cached R
		if store.Get(ctx, key, &cached) {
			return cached, nil
		}

		res, err, _ := group.Do(key, func() (any, error) {
			// A flight that just finished may have filled the cache. The
			// lookup above already counted this call as a miss.
			if p, ok := store.(peeker); ok {
				var again R
				if p.peek(ctx, key, &again) {
					return again, nil
				}
			}
			v, err := fn(ctx, arg)
			if err != nil {
				return nil, err
			}
			store.Set(ctx, key, v, ttl)
			return v, nil
		})
		if err != nil {
			var zero R
			return zero, err
		}
		if res == nil {
			var zero R
			return zero, nil
		}
		out, ok := res.(R)
		if !ok {
			var zero R
			return zero, fmt.Errorf("unexpected type %T from singleflight result", res)
		}
		return out, nil
	}
}
