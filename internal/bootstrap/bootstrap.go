// Package bootstrap builds the process-wide singletons shared by the server
// and worker binaries.
package bootstrap

import (
	"io"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	config "github.com/canner-app/canner/go/configs"
	"github.com/canner-app/canner/go/internal/application/jobs"
	"github.com/canner-app/canner/go/internal/application/services"
	"github.com/canner-app/canner/go/internal/core/ports"
	"github.com/canner-app/canner/go/internal/infrastructure/ai"
	"github.com/canner-app/canner/go/internal/infrastructure/analytics"
	"github.com/canner-app/canner/go/internal/infrastructure/httpclient"
	"github.com/canner-app/canner/go/internal/infrastructure/memory"
	"github.com/canner-app/canner/go/internal/infrastructure/redis"
)

// NewLogger configures logrus from cfg. Unknown levels fall back to info.
func NewLogger(cfg config.LogConfig, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	if out != nil {
		logger.SetOutput(out)
	}
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}

// CacheBackend picks the cache backend once: Redis when REDIS_URL is set and
// answers a ping, the in-process store otherwise. The returned client is nil
// on the in-process path; callers close it on shutdown.
func CacheBackend(cfg *config.Config, clock ports.Clock, logger *logrus.Logger) (ports.CacheBackend, *goredis.Client, error) {
	if cfg.Redis.URL != "" {
		client, err := redis.NewRedisClient(&cfg.Redis)
		if err == nil {
			logger.WithField("backend", "redis").Info("cache backend selected")
			return redis.NewRedisCache(client, cfg.Cache.Namespace, cfg.Redis.OpTimeout), client, nil
		}
		logger.WithError(err).Warn("Redis unavailable; falling back to in-process cache")
	}
	store, err := memory.NewStore(cfg.Cache.MemoryMaxEntries, clock)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("backend", "memory").Info("cache backend selected")
	return store, nil, nil
}

// BrokerClient connects to the task broker. It returns nil without error
// when no broker is configured.
func BrokerClient(cfg *config.Config, logger *logrus.Logger) (*goredis.Client, error) {
	if cfg.Tasks.BrokerURL == "" {
		return nil, nil
	}
	client, err := redis.NewRedisClient(&config.RedisConfig{
		URL:         cfg.Tasks.BrokerURL,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
		OpTimeout:   cfg.Redis.OpTimeout,
	})
	if err != nil {
		return nil, err
	}
	logger.WithField("queue", cfg.Tasks.Queue).Info("connected to task broker")
	return client, nil
}

// RateLimitPolicies converts configured policies to the limiter's form.
func RateLimitPolicies(cfg config.RateLimitConfig) map[string]ports.RateLimitPolicy {
	out := make(map[string]ports.RateLimitPolicy, len(cfg.Policies))
	for op, p := range cfg.Policies {
		out[op] = ports.RateLimitPolicy{Limit: p.Limit, Window: p.Window}
	}
	return out
}

// ResponseCache builds the cache for derived results, falling back to
// CACHE_DEFAULT_TTL for any TTL left unset.
func ResponseCache(cfg *config.Config, store ports.CacheStore) *services.ResponseCache {
	return services.NewResponseCache(store, services.ResponseCacheConfig{
		DefaultTTL:     cfg.Cache.DefaultTTL,
		ResponsesTTL:   cfg.Cache.ResponsesTTL,
		SuggestionsTTL: cfg.Cache.AISuggestionsTTL,
	})
}

// JobDeps wires the task handlers' collaborators from configuration. A
// collaborator whose endpoint is not configured stays nil, which leaves its
// task kinds without a handler.
func JobDeps(cfg *config.Config, responses *services.ResponseCache, logger *logrus.Logger) jobs.Deps {
	client := httpclient.New(httpclient.Config{
		Timeout:    cfg.HTTPClient.Timeout,
		MaxRetries: cfg.HTTPClient.MaxRetries,
	}, logger)

	deps := jobs.Deps{Responses: responses}
	if cfg.AI.APIKey != "" {
		deps.Generator = ai.NewChatGenerator(client, ai.Config{
			URL:         cfg.AI.URL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Suggestions: cfg.AI.Suggestions,
			MaxLength:   cfg.AI.MaxLength,
		}, logger)
	} else {
		logger.Warn("AI_API_KEY is not set; ai_generation tasks are disabled")
	}
	if cfg.Analytics.URL != "" {
		deps.Analytics = analytics.NewHTTPSource(client, cfg.Analytics.URL)
	} else {
		logger.Warn("ANALYTICS_URL is not set; analytics and export tasks are disabled")
	}
	return deps
}
