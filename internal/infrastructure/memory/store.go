package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/canner-app/canner/go/internal/core/ports"
)

// DefaultMaxEntries bounds the store when no size is configured.
const DefaultMaxEntries = 1000

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is a process-private CacheBackend. A single mutex guards every
// read-modify-write on the underlying LRU; expired entries are dropped on
// access and swept when the store is full, before LRU eviction kicks in.
type Store struct {
	mu    sync.Mutex
	lru   *simplelru.LRU[string, entry]
	max   int
	clock ports.Clock
}

var _ ports.CacheBackend = (*Store)(nil)

// NewStore creates an in-process backend holding at most maxEntries keys.
func NewStore(maxEntries int, clock ports.Clock) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	l, err := simplelru.NewLRU[string, entry](maxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}
	return &Store{lru: l, max: maxEntries, clock: clock}, nil
}

func (s *Store) Kind() string { return "memory" }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !s.clock.Now().Before(e.expiresAt) {
		s.lru.Remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if s.lru.Len() >= s.max && !s.lru.Contains(key) {
		s.sweepLocked(now)
	}
	s.lru.Add(key, entry{value: stored, expiresAt: now.Add(ttl)})
	return nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lru.Peek(key)
	if !ok {
		return false, nil
	}
	s.lru.Remove(key)
	return s.clock.Now().Before(e.expiresAt), nil
}

func (s *Store) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, k := range s.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.lru.Remove(k)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	s.lru.Purge()
	s.mu.Unlock()
	return nil
}

func (s *Store) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.clock.Now())
	return s.lru.Len(), nil
}

// sweepLocked drops expired entries. Caller holds s.mu.
func (s *Store) sweepLocked(now time.Time) {
	for _, k := range s.lru.Keys() {
		if e, ok := s.lru.Peek(k); ok && !now.Before(e.expiresAt) {
			s.lru.Remove(k)
		}
	}
}
