package ports

import (
	"context"
	"time"
)

// RateLimitPolicy is the allowance for one protected operation.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

// RateLimiter is a fixed-window request counter. Implementations MUST be safe
// for concurrent use and fail open when their storage is unreachable.
type RateLimiter interface {
	// IsAllowed consumes one request unit for identifier and reports whether
	// the pre-increment count was below limit.
	IsAllowed(ctx context.Context, identifier string, limit int, window time.Duration) bool
	// Remaining reports how many requests identifier may still make in its window.
	Remaining(ctx context.Context, identifier string, limit int) int
	// Allow applies the configured policy for operation to client.
	// Operations without a policy are always allowed with limit 0.
	Allow(ctx context.Context, operation, client string) (allowed bool, remaining int, limit int)
}
