package configs

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/xhit/go-str2duration/v2"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Tasks     TaskConfig
	Log       LogConfig
	RateLimit RateLimitConfig

	AI         AIConfig
	Analytics  AnalyticsConfig
	HTTPClient HTTPClientConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
}

// RedisConfig describes the shared cache endpoint. An empty URL selects the
// in-process cache.
type RedisConfig struct {
	URL         string
	PoolSize    int
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

type CacheConfig struct {
	Namespace        string
	DefaultTTL       time.Duration
	ResponsesTTL     time.Duration
	AISuggestionsTTL time.Duration
	MemoryMaxEntries int
}

// TaskConfig describes the task broker. An empty BrokerURL selects inline
// execution.
type TaskConfig struct {
	BrokerURL       string
	Queue           string
	TimeLimit       time.Duration
	ResultRetention time.Duration
	PollInterval    time.Duration
	WorkerCount     int
}

// AIConfig points at an OpenAI-compatible chat completions endpoint. An empty
// APIKey disables ai_generation tasks.
type AIConfig struct {
	URL         string
	APIKey      string
	Model       string
	Suggestions int
	MaxLength   int
}

// AnalyticsConfig points at the analytics endpoint. An empty URL disables
// analytics and export tasks.
type AnalyticsConfig struct {
	URL string
}

// HTTPClientConfig applies to every outbound collaborator call.
type HTTPClientConfig struct {
	Timeout    time.Duration
	MaxRetries int
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

// RateLimitConfig maps protected operation names to their allowance.
type RateLimitConfig struct {
	Policies map[string]RateLimitPolicy
}

type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

// DefaultRateLimits is used when RATE_LIMITS is unset.
const DefaultRateLimits = "ai_generation=10/1m,analytics=30/1m,export=5/1m,api=120/1m"

// Load resolves configuration once at startup. Any malformed value is an
// error; callers are expected to stop the process.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  p.duration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: p.duration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  p.duration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:  getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:   getEnv("TLS_KEY_FILE", ""),
		},
		Redis: RedisConfig{
			URL:         getEnv("REDIS_URL", ""),
			PoolSize:    p.int("REDIS_POOL_SIZE", 10),
			DialTimeout: p.duration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			OpTimeout:   p.duration("REDIS_OP_TIMEOUT", 500*time.Millisecond),
		},
		Cache: CacheConfig{
			Namespace:        getEnv("CACHE_NAMESPACE", "canner"),
			DefaultTTL:       p.duration("CACHE_DEFAULT_TTL", time.Hour),
			ResponsesTTL:     p.duration("CACHE_RESPONSES_TTL", 5*time.Minute),
			AISuggestionsTTL: p.duration("CACHE_AI_SUGGESTIONS_TTL", 30*time.Minute),
			MemoryMaxEntries: p.int("CACHE_MEMORY_MAX_ENTRIES", 1000),
		},
		Tasks: TaskConfig{
			BrokerURL:       getEnv("TASK_BROKER_URL", ""),
			Queue:           getEnv("TASK_QUEUE", "canner_tasks"),
			TimeLimit:       p.duration("TASK_TIME_LIMIT", 5*time.Minute),
			ResultRetention: p.duration("TASK_RESULT_RETENTION", 24*time.Hour),
			PollInterval:    p.duration("TASK_WAIT_POLL_INTERVAL", time.Second),
			WorkerCount:     p.int("TASK_WORKER_COUNT", 4),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		AI: AIConfig{
			URL:         getEnv("AI_API_URL", "https://api.groq.com/openai/v1/chat/completions"),
			APIKey:      getEnv("AI_API_KEY", ""),
			Model:       getEnv("AI_MODEL", "llama3-8b-8192"),
			Suggestions: p.int("AI_SUGGESTION_COUNT", 3),
			MaxLength:   p.int("AI_MAX_LENGTH", 280),
		},
		Analytics: AnalyticsConfig{
			URL: getEnv("ANALYTICS_URL", ""),
		},
		HTTPClient: HTTPClientConfig{
			Timeout:    p.duration("HTTP_CLIENT_TIMEOUT", 20*time.Second),
			MaxRetries: p.int("HTTP_CLIENT_MAX_RETRIES", 3),
		},
	}

	policies, err := ParseRateLimits(getEnv("RATE_LIMITS", DefaultRateLimits))
	if err != nil {
		p.fail("RATE_LIMITS", err)
	}
	cfg.RateLimit.Policies = policies

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	positive := map[string]time.Duration{
		"CACHE_DEFAULT_TTL":        c.Cache.DefaultTTL,
		"CACHE_RESPONSES_TTL":      c.Cache.ResponsesTTL,
		"CACHE_AI_SUGGESTIONS_TTL": c.Cache.AISuggestionsTTL,
		"TASK_TIME_LIMIT":          c.Tasks.TimeLimit,
		"TASK_RESULT_RETENTION":    c.Tasks.ResultRetention,
		"TASK_WAIT_POLL_INTERVAL":  c.Tasks.PollInterval,
		"REDIS_OP_TIMEOUT":         c.Redis.OpTimeout,
		"HTTP_CLIENT_TIMEOUT":      c.HTTPClient.Timeout,
	}
	names := make([]string, 0, len(positive))
	for name := range positive {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if positive[name] <= 0 {
			return fmt.Errorf("%s must be a positive duration, got %s", name, positive[name])
		}
	}
	if c.Cache.MemoryMaxEntries <= 0 {
		return fmt.Errorf("CACHE_MEMORY_MAX_ENTRIES must be positive, got %d", c.Cache.MemoryMaxEntries)
	}
	if c.Tasks.WorkerCount <= 0 {
		return fmt.Errorf("TASK_WORKER_COUNT must be positive, got %d", c.Tasks.WorkerCount)
	}
	if c.AI.Suggestions <= 0 {
		return fmt.Errorf("AI_SUGGESTION_COUNT must be positive, got %d", c.AI.Suggestions)
	}
	if c.AI.MaxLength <= 0 {
		return fmt.Errorf("AI_MAX_LENGTH must be positive, got %d", c.AI.MaxLength)
	}
	if c.HTTPClient.MaxRetries < 0 {
		return fmt.Errorf("HTTP_CLIENT_MAX_RETRIES must not be negative, got %d", c.HTTPClient.MaxRetries)
	}
	return nil
}

// ParseRateLimits parses "op=limit/window,..." into policies, e.g.
// "ai_generation=10/1m,export=5/30s".
func ParseRateLimits(raw string) (map[string]RateLimitPolicy, error) {
	policies := make(map[string]RateLimitPolicy)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		op, rule, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(op) == "" {
			return nil, fmt.Errorf("invalid rate limit %q: expected op=limit/window", part)
		}
		limitStr, windowStr, ok := strings.Cut(rule, "/")
		if !ok {
			return nil, fmt.Errorf("invalid rate limit %q: expected op=limit/window", part)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(limitStr))
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("invalid limit in %q", part)
		}
		window, err := str2duration.ParseDuration(strings.TrimSpace(windowStr))
		if err != nil || window <= 0 {
			return nil, fmt.Errorf("invalid window in %q", part)
		}
		policies[strings.TrimSpace(op)] = RateLimitPolicy{Limit: limit, Window: window}
	}
	return policies, nil
}

// parser collects the first malformed variable instead of silently using the
// default for it.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return intValue
}

// duration accepts Go durations plus day/week units ("1d", "2w").
func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := str2duration.ParseDuration(value)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
