package ports

import (
	"context"
	"time"
)

// CacheBackend is the raw storage under a CacheStore. Implementations return
// errors for infrastructure faults; the CacheStore turns those into misses so
// that a cache outage never becomes an API outage.
type CacheBackend interface {
	// Kind names the backend ("memory" or "redis") for stats.
	Kind() string
	// Get returns the raw bytes for key. ok=false if absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for key. ttl must be positive.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Clear drops every entry in the backend's namespace.
	Clear(ctx context.Context) error
	// Len reports the number of live entries in the namespace.
	Len(ctx context.Context) (int, error)
}

// Counter is implemented by backends offering a native atomic increment.
// IncrWindow increments key, starts its expiry at window when the key is
// new, and returns the post-increment count.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// CacheStats is a snapshot of process-local cache counters.
type CacheStats struct {
	Backend       string  `json:"backend"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Sets          int64   `json:"sets"`
	HitRate       float64 `json:"hit_rate_percent"`
	TotalRequests int64   `json:"total_requests"`
	Size          int     `json:"size,omitempty"`
}

// CacheStore is the uniform, fail-open cache surface handed to handlers.
// Values are encoded as JSON documents.
type CacheStore interface {
	// Get decodes the cached value into dest and reports a hit.
	Get(ctx context.Context, key string, dest any) bool
	// Set caches value for ttl. ttl is mandatory; non-positive values are rejected.
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	DeletePrefix(ctx context.Context, prefix string) int
	Clear(ctx context.Context) bool
	Stats(ctx context.Context) CacheStats
	// Backend exposes the selected backend so collaborators can use
	// capabilities such as Counter.
	Backend() CacheBackend
}

// Clock abstracts wall-clock reads so expiry can be tested with a simulated clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
