package services

import (
	"context"
	"encoding/json"
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/canner-app/canner/go/internal/core/ports"
)

// CacheService is the fail-open CacheStore over whichever backend was
// selected at startup. Counters are process-local even for shared backends.
type CacheService struct {
	backend ports.CacheBackend
	logger  *logrus.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

var _ ports.CacheStore = (*CacheService)(nil)

func NewCacheService(backend ports.CacheBackend, logger *logrus.Logger) *CacheService {
	return &CacheService{backend: backend, logger: logger}
}

func (s *CacheService) Backend() ports.CacheBackend { return s.backend }

// Get decodes the cached JSON document into dest. Backend faults and
// undecodable payloads count as misses.
func (s *CacheService) Get(ctx context.Context, key string, dest any) bool {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.warn(err, key, "cache get failed; treating as miss")
		s.misses.Add(1)
		return false
	}
	if !ok {
		s.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.warn(err, key, "cache entry could not be decoded; treating as miss")
		s.misses.Add(1)
		return false
	}
	s.hits.Add(1)
	return true
}

// peek reads like Get but leaves the hit and miss counters alone.
func (s *CacheService) peek(ctx context.Context, key string, dest any) bool {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (s *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"key": key, "ttl": ttl}).Error("cache set rejected: ttl is mandatory")
		}
		return false
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.warn(err, key, "cache value could not be encoded")
		return false
	}
	if err := s.backend.Set(ctx, key, raw, ttl); err != nil {
		s.warn(err, key, "cache set failed; continuing without caching")
		return false
	}
	s.sets.Add(1)
	return true
}

func (s *CacheService) Delete(ctx context.Context, key string) bool {
	ok, err := s.backend.Delete(ctx, key)
	if err != nil {
		s.warn(err, key, "cache delete failed")
		return false
	}
	return ok
}

func (s *CacheService) DeletePrefix(ctx context.Context, prefix string) int {
	n, err := s.backend.DeletePrefix(ctx, prefix)
	if err != nil {
		s.warn(err, prefix, "cache prefix invalidation failed")
	}
	return n
}

func (s *CacheService) Clear(ctx context.Context) bool {
	if err := s.backend.Clear(ctx); err != nil {
		if s.logger != nil {
			s.logger.WithField("backend", s.backend.Kind()).WithError(err).Error("cache clear failed")
		}
		return false
	}
	if s.logger != nil {
		s.logger.WithField("backend", s.backend.Kind()).Info("cache cleared")
	}
	return true
}

func (s *CacheService) Stats(ctx context.Context) ports.CacheStats {
	hits, misses := s.hits.Load(), s.misses.Load()
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(hits)/float64(total)*10000) / 100
	}
	stats := ports.CacheStats{
		Backend:       s.backend.Kind(),
		Hits:          hits,
		Misses:        misses,
		Sets:          s.sets.Load(),
		HitRate:       rate,
		TotalRequests: total,
	}
	if n, err := s.backend.Len(ctx); err == nil {
		stats.Size = n
	}
	return stats
}

func (s *CacheService) warn(err error, key, msg string) {
	if s.logger == nil {
		return
	}
	s.logger.WithFields(logrus.Fields{"key": key, "backend": s.backend.Kind()}).WithError(err).Warn(msg)
}
