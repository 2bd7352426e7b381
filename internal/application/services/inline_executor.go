package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/core/ports"
)

// InlineIDPrefix marks ids generated by the inline executor.
const InlineIDPrefix = "sync_"

// InlineExecutor runs submitted work synchronously in the caller's goroutine
// and keeps the completed result in a local map. PENDING and RUNNING are
// never observable, and there is nothing left to cancel once Submit returns.
type InlineExecutor struct {
	mu        sync.Mutex
	results   map[string]task.Result
	handlers  map[task.Kind]ports.TaskHandler
	retention time.Duration
	clock     ports.Clock
	metrics   ports.TaskMetrics
	logger    *logrus.Logger
}

// InlineConfig groups optional settings for the inline executor.
type InlineConfig struct {
	Retention time.Duration
	Clock     ports.Clock
	Metrics   ports.TaskMetrics
}

var _ ports.TaskExecutor = (*InlineExecutor)(nil)

func NewInlineExecutor(handlers map[task.Kind]ports.TaskHandler, cfg *InlineConfig, logger *logrus.Logger) *InlineExecutor {
	e := &InlineExecutor{
		results:   make(map[string]task.Result),
		handlers:  handlers,
		retention: 24 * time.Hour,
		clock:     ports.SystemClock{},
		metrics:   ports.NoopTaskMetrics{},
		logger:    logger,
	}
	if cfg != nil {
		if cfg.Retention > 0 {
			e.retention = cfg.Retention
		}
		if cfg.Clock != nil {
			e.clock = cfg.Clock
		}
		if cfg.Metrics != nil {
			e.metrics = cfg.Metrics
		}
	}
	return e
}

func (e *InlineExecutor) Mode() string { return "inline" }

// Owns reports whether id was generated by an inline executor.
func (e *InlineExecutor) Owns(id string) bool {
	return strings.HasPrefix(id, InlineIDPrefix)
}

func (e *InlineExecutor) Submit(ctx context.Context, t task.Task) (string, error) {
	t.ID = InlineIDPrefix + uuid.NewString()
	created := t.SubmittedAt
	if created.IsZero() {
		created = e.clock.Now()
	}

	raw, err := executeTask(ctx, e.handlers[t.Kind], t)
	completed := e.clock.Now()
	res := task.Result{TaskID: t.ID, CreatedAt: &created, CompletedAt: &completed}
	if err != nil {
		res.Status = task.StatusFailure
		res.Error = err.Error()
		if e.logger != nil {
			e.logger.WithFields(logrus.Fields{"task_id": t.ID, "kind": t.Kind}).WithError(err).Warn("inline task failed")
		}
	} else {
		res.Status = task.StatusSuccess
		res.Result = raw
	}
	e.metrics.TaskFinished(t.Kind, res.Status, completed.Sub(created))

	e.mu.Lock()
	e.results[t.ID] = res
	e.mu.Unlock()

	return t.ID, nil
}

func (e *InlineExecutor) Status(_ context.Context, id string) (task.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, ok := e.results[id]
	if !ok || e.expired(res, e.clock.Now()) {
		return task.NotFound(id), nil
	}
	return res, nil
}

// Cancel never succeeds: inline tasks are complete before their id is known.
func (e *InlineExecutor) Cancel(_ context.Context, id string) (bool, error) {
	if e.logger != nil {
		e.logger.WithField("task_id", id).Debug("cancel requested for inline task; nothing to cancel")
	}
	return false, nil
}

func (e *InlineExecutor) Active(context.Context) ([]task.Summary, error) {
	return []task.Summary{}, nil
}

// Purge removes results older than the retention window and returns how many were dropped.
func (e *InlineExecutor) Purge() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.purgeLocked(e.clock.Now())
}

// RunJanitor purges expired results every interval until ctx is done.
func (e *InlineExecutor) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.Purge(); n > 0 && e.logger != nil {
				e.logger.WithField("purged", n).Info("purged expired inline task results")
			}
		}
	}
}

func (e *InlineExecutor) expired(res task.Result, now time.Time) bool {
	return res.CompletedAt != nil && !now.Before(res.CompletedAt.Add(e.retention))
}

// purgeLocked drops expired results. Caller holds e.mu.
func (e *InlineExecutor) purgeLocked(now time.Time) int {
	n := 0
	for id, res := range e.results {
		if e.expired(res, now) {
			delete(e.results, id)
			n++
		}
	}
	return n
}
