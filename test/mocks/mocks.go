package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/core/ports"
)

// ErrBackendDown is returned by FailingBackend for every operation.
var ErrBackendDown = errors.New("backend unavailable")

// FakeClock is a settable clock for expiry tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock { return &FakeClock{now: start} }

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// CacheBackendMock is a lightweight mock for ports.CacheBackend
type CacheBackendMock struct {
	KindValue      string
	GetFn          func(ctx context.Context, key string) ([]byte, bool, error)
	SetFn          func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFn       func(ctx context.Context, key string) (bool, error)
	DeletePrefixFn func(ctx context.Context, prefix string) (int, error)
	ClearFn        func(ctx context.Context) error
	LenFn          func(ctx context.Context) (int, error)
}

func (m *CacheBackendMock) Kind() string {
	if m.KindValue != "" {
		return m.KindValue
	}
	return "mock"
}
func (m *CacheBackendMock) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, key)
	}
	return nil, false, nil
}
func (m *CacheBackendMock) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.SetFn != nil {
		return m.SetFn(ctx, key, value, ttl)
	}
	return nil
}
func (m *CacheBackendMock) Delete(ctx context.Context, key string) (bool, error) {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, key)
	}
	return false, nil
}
func (m *CacheBackendMock) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if m.DeletePrefixFn != nil {
		return m.DeletePrefixFn(ctx, prefix)
	}
	return 0, nil
}
func (m *CacheBackendMock) Clear(ctx context.Context) error {
	if m.ClearFn != nil {
		return m.ClearFn(ctx)
	}
	return nil
}
func (m *CacheBackendMock) Len(ctx context.Context) (int, error) {
	if m.LenFn != nil {
		return m.LenFn(ctx)
	}
	return 0, nil
}

// FailingBackend fails every call, like a Redis that went away after startup.
func FailingBackend() *CacheBackendMock {
	return &CacheBackendMock{
		KindValue:      "redis",
		GetFn:          func(context.Context, string) ([]byte, bool, error) { return nil, false, ErrBackendDown },
		SetFn:          func(context.Context, string, []byte, time.Duration) error { return ErrBackendDown },
		DeleteFn:       func(context.Context, string) (bool, error) { return false, ErrBackendDown },
		DeletePrefixFn: func(context.Context, string) (int, error) { return 0, ErrBackendDown },
		ClearFn:        func(context.Context) error { return ErrBackendDown },
		LenFn:          func(context.Context) (int, error) { return 0, ErrBackendDown },
	}
}

// CounterBackendMock adds an atomic counter to CacheBackendMock.
type CounterBackendMock struct {
	*CacheBackendMock
	IncrWindowFn func(ctx context.Context, key string, window time.Duration) (int64, error)
}

func (m *CounterBackendMock) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if m.IncrWindowFn != nil {
		return m.IncrWindowFn(ctx, key, window)
	}
	return 0, ErrBackendDown
}

// TaskExecutorMock is a lightweight mock for ports.TaskExecutor
type TaskExecutorMock struct {
	ModeValue string
	SubmitFn  func(ctx context.Context, t task.Task) (string, error)
	StatusFn  func(ctx context.Context, id string) (task.Result, error)
	CancelFn  func(ctx context.Context, id string) (bool, error)
	ActiveFn  func(ctx context.Context) ([]task.Summary, error)
}

func (m *TaskExecutorMock) Mode() string {
	if m.ModeValue != "" {
		return m.ModeValue
	}
	return "broker"
}
func (m *TaskExecutorMock) Submit(ctx context.Context, t task.Task) (string, error) {
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, t)
	}
	return "", ErrBackendDown
}
func (m *TaskExecutorMock) Status(ctx context.Context, id string) (task.Result, error) {
	if m.StatusFn != nil {
		return m.StatusFn(ctx, id)
	}
	return task.NotFound(id), nil
}
func (m *TaskExecutorMock) Cancel(ctx context.Context, id string) (bool, error) {
	if m.CancelFn != nil {
		return m.CancelFn(ctx, id)
	}
	return false, nil
}
func (m *TaskExecutorMock) Active(ctx context.Context) ([]task.Summary, error) {
	if m.ActiveFn != nil {
		return m.ActiveFn(ctx)
	}
	return []task.Summary{}, nil
}

// RateLimiterMock is a lightweight mock for ports.RateLimiter
type RateLimiterMock struct {
	IsAllowedFn func(ctx context.Context, identifier string, limit int, window time.Duration) bool
	RemainingFn func(ctx context.Context, identifier string, limit int) int
	AllowFn     func(ctx context.Context, operation, client string) (bool, int, int)
}

func (m *RateLimiterMock) IsAllowed(ctx context.Context, identifier string, limit int, window time.Duration) bool {
	if m.IsAllowedFn != nil {
		return m.IsAllowedFn(ctx, identifier, limit, window)
	}
	return true
}
func (m *RateLimiterMock) Remaining(ctx context.Context, identifier string, limit int) int {
	if m.RemainingFn != nil {
		return m.RemainingFn(ctx, identifier, limit)
	}
	return limit
}
func (m *RateLimiterMock) Allow(ctx context.Context, operation, client string) (bool, int, int) {
	if m.AllowFn != nil {
		return m.AllowFn(ctx, operation, client)
	}
	return true, 0, 0
}

// SuggestionGeneratorMock is a lightweight mock for ports.SuggestionGenerator
type SuggestionGeneratorMock struct {
	ModelValue            string
	GenerateSuggestionsFn func(ctx context.Context, sc ports.SuggestionContext) ([]string, error)
}

func (m *SuggestionGeneratorMock) GenerateSuggestions(ctx context.Context, sc ports.SuggestionContext) ([]string, error) {
	if m.GenerateSuggestionsFn != nil {
		return m.GenerateSuggestionsFn(ctx, sc)
	}
	return []string{}, nil
}
func (m *SuggestionGeneratorMock) Model() string {
	if m.ModelValue != "" {
		return m.ModelValue
	}
	return "mock-model"
}

// AnalyticsSourceMock is a lightweight mock for ports.AnalyticsSource
type AnalyticsSourceMock struct {
	ResponseAnalyticsFn func(ctx context.Context, userID string, days int) (map[string]any, error)
}

func (m *AnalyticsSourceMock) ResponseAnalytics(ctx context.Context, userID string, days int) (map[string]any, error) {
	if m.ResponseAnalyticsFn != nil {
		return m.ResponseAnalyticsFn(ctx, userID, days)
	}
	return map[string]any{}, nil
}

var (
	_ ports.Clock        = (*FakeClock)(nil)
	_ ports.CacheBackend = (*CacheBackendMock)(nil)
	_ ports.Counter      = (*CounterBackendMock)(nil)
	_ ports.TaskExecutor = (*TaskExecutorMock)(nil)
	_ ports.RateLimiter  = (*RateLimiterMock)(nil)

	_ ports.SuggestionGenerator = (*SuggestionGeneratorMock)(nil)
	_ ports.AnalyticsSource     = (*AnalyticsSourceMock)(nil)
)
