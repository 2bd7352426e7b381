package services

import (
	"context"
	"time"

	"github.com/canner-app/canner/go/internal/core/ports"
)

const (
	defaultUserScope = "default"

	fallbackCacheTTL = time.Hour
)

// ResponseCacheConfig sets how long derived results stay cached. A zero TTL
// falls back to DefaultTTL.
type ResponseCacheConfig struct {
	DefaultTTL time.Duration
	// ResponsesTTL bounds results computed from a user's responses, such as
	// analytics.
	ResponsesTTL   time.Duration
	SuggestionsTTL time.Duration
}

// ResponseCache holds the read-heavy results derived from canned responses:
// per-user analytics and AI suggestions.
type ResponseCache struct {
	store          ports.CacheStore
	responsesTTL   time.Duration
	suggestionsTTL time.Duration
}

func NewResponseCache(store ports.CacheStore, cfg ResponseCacheConfig) *ResponseCache {
	def := cfg.DefaultTTL
	if def <= 0 {
		def = fallbackCacheTTL
	}
	c := &ResponseCache{store: store, responsesTTL: cfg.ResponsesTTL, suggestionsTTL: cfg.SuggestionsTTL}
	if c.responsesTTL <= 0 {
		c.responsesTTL = def
	}
	if c.suggestionsTTL <= 0 {
		c.suggestionsTTL = def
	}
	return c
}

func userScope(userID string) string {
	if userID == "" {
		return defaultUserScope
	}
	return userID
}

func responsesPrefix(userID string) string {
	return "responses:" + userScope(userID) + ":"
}

// AnalyticsKey derives the key for a user's analytics window. It lives under
// the user's responses prefix so InvalidateUserResponses drops it.
func AnalyticsKey(userID string, days int) string {
	return DeriveNamedKey(responsesPrefix(userID)+"analytics", map[string]any{"days": days})
}

// SuggestionsKey derives the key for suggestions generated from sc.
func SuggestionsKey(sc ports.SuggestionContext) string {
	return DeriveKey("ai_suggestions", sc)
}

type analyticsQuery struct {
	userID string
	days   int
}

// CachedAnalytics returns src.ResponseAnalytics memoized per user and window.
func (c *ResponseCache) CachedAnalytics(src ports.AnalyticsSource) func(ctx context.Context, userID string, days int) (map[string]any, error) {
	load := memoizeKeyed(c.store,
		func(q analyticsQuery) string { return AnalyticsKey(q.userID, q.days) },
		c.responsesTTL,
		func(ctx context.Context, q analyticsQuery) (map[string]any, error) {
			return src.ResponseAnalytics(ctx, q.userID, q.days)
		})
	return func(ctx context.Context, userID string, days int) (map[string]any, error) {
		return load(ctx, analyticsQuery{userID: userScope(userID), days: days})
	}
}

// CachedSuggestions returns gen.GenerateSuggestions memoized per context.
func (c *ResponseCache) CachedSuggestions(gen ports.SuggestionGenerator) func(ctx context.Context, sc ports.SuggestionContext) ([]string, error) {
	return memoizeKeyed(c.store, SuggestionsKey, c.suggestionsTTL, gen.GenerateSuggestions)
}

// InvalidateUserResponses drops every cached result derived from the user's
// responses and returns how many entries were removed.
func (c *ResponseCache) InvalidateUserResponses(ctx context.Context, userID string) int {
	return c.store.DeletePrefix(ctx, responsesPrefix(userID))
}
