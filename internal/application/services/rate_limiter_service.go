package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/canner-app/canner/go/internal/core/ports"
)

// rateWindow is the counter stored for backends without an atomic increment.
type rateWindow struct {
	Count           int64     `json:"count"`
	WindowExpiresAt time.Time `json:"window_expires_at"`
}

// RateLimiterService implements fixed-window counting on top of a CacheStore.
//
// When the backend is a ports.Counter the increment is atomic on the server.
// Otherwise the count is read, compared and written back without locking, so
// concurrent requests may observe the same count and both pass; the limiter
// stays non-blocking at the cost of that imprecision. Every request,
// including a rejected one, increments the counter. Boundary bursts of up to
// twice the limit around a window edge are expected.
type RateLimiterService struct {
	store     ports.CacheStore
	counter   ports.Counter
	policies  map[string]ports.RateLimitPolicy
	keyPrefix string
	clock     ports.Clock
	logger    *logrus.Logger
}

// RateLimiterConfig groups configuration parameters for the rate limiter.
type RateLimiterConfig struct {
	Policies  map[string]ports.RateLimitPolicy
	KeyPrefix string
	Clock     ports.Clock
}

var _ ports.RateLimiter = (*RateLimiterService)(nil)

func NewRateLimiterService(store ports.CacheStore, cfg *RateLimiterConfig, logger *logrus.Logger) *RateLimiterService {
	kp := "rate_limit"
	var clock ports.Clock = ports.SystemClock{}
	policies := map[string]ports.RateLimitPolicy{}
	if cfg != nil {
		if cfg.KeyPrefix != "" {
			kp = cfg.KeyPrefix
		}
		if cfg.Clock != nil {
			clock = cfg.Clock
		}
		for op, p := range cfg.Policies {
			policies[op] = p
		}
	}
	s := &RateLimiterService{store: store, policies: policies, keyPrefix: kp, clock: clock, logger: logger}
	if c, ok := store.Backend().(ports.Counter); ok {
		s.counter = c
	}
	return s
}

func (s *RateLimiterService) key(identifier string) string {
	return s.keyPrefix + ":" + identifier
}

func (s *RateLimiterService) IsAllowed(ctx context.Context, identifier string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return false
	}
	if window <= 0 {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"identifier": identifier, "window": window}).Warn("rate limiter: non-positive window; allowing request")
		}
		return true
	}
	key := s.key(identifier)

	if s.counter != nil {
		count, err := s.counter.IncrWindow(ctx, key, window)
		if err != nil {
			if s.logger != nil {
				s.logger.WithField("identifier", identifier).WithError(err).Error("rate limiter: failed to increment window; allowing request (fail-open)")
			}
			return true
		}
		s.debug(identifier, count, limit)
		return count-1 < int64(limit)
	}

	now := s.clock.Now()
	var w rateWindow
	if !s.store.Get(ctx, key, &w) || !now.Before(w.WindowExpiresAt) {
		w = rateWindow{WindowExpiresAt: now.Add(window)}
	}
	allowed := w.Count < int64(limit)
	w.Count++
	// Keep the window's original expiry; a write must not extend it.
	s.store.Set(ctx, key, w, w.WindowExpiresAt.Sub(now))
	s.debug(identifier, w.Count, limit)
	return allowed
}

func (s *RateLimiterService) Remaining(ctx context.Context, identifier string, limit int) int {
	var count int64
	if s.counter != nil {
		if !s.store.Get(ctx, s.key(identifier), &count) {
			count = 0
		}
	} else {
		var w rateWindow
		if s.store.Get(ctx, s.key(identifier), &w) && s.clock.Now().Before(w.WindowExpiresAt) {
			count = w.Count
		}
	}
	if rem := int64(limit) - count; rem > 0 {
		return int(rem)
	}
	return 0
}

func (s *RateLimiterService) Allow(ctx context.Context, operation, client string) (bool, int, int) {
	p, ok := s.policies[operation]
	if !ok {
		return true, 0, 0
	}
	id := operation + ":" + client
	allowed := s.IsAllowed(ctx, id, p.Limit, p.Window)
	return allowed, s.Remaining(ctx, id, p.Limit), p.Limit
}

func (s *RateLimiterService) debug(identifier string, count int64, limit int) {
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"identifier": identifier, "count": count, "limit": limit}).Debug("rate limiter window state")
	}
}
