package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/core/ports"
)

var (
	ErrUnknownTaskKind = errors.New("unknown task kind")
	ErrInvalidPayload  = errors.New("invalid task payload")
	// ErrKindUnavailable is returned for a known kind this deployment has
	// no handler for.
	ErrKindUnavailable = errors.New("task kind not available")
)

const defaultPollInterval = time.Second

// TaskService is the facade callers use regardless of the execution
// strategy selected at startup. When the primary executor is a broker, an
// inline executor serves submissions the broker refuses, and ids are routed
// back to whichever executor produced them.
type TaskService struct {
	executor     ports.TaskExecutor
	fallback     *InlineExecutor
	kinds        map[task.Kind]bool
	pollInterval time.Duration
	clock        ports.Clock
	metrics      ports.TaskMetrics
	logger       *logrus.Logger
}

// TaskServiceConfig groups optional settings for the task service.
type TaskServiceConfig struct {
	// Fallback runs work inline when the primary executor cannot accept it.
	// Ignored when the primary executor is itself inline.
	Fallback *InlineExecutor
	// Kinds restricts submission to the kinds with a configured handler.
	// Nil accepts every known kind.
	Kinds        []task.Kind
	PollInterval time.Duration
	Clock        ports.Clock
	Metrics      ports.TaskMetrics
}

var _ ports.TaskService = (*TaskService)(nil)

func NewTaskService(executor ports.TaskExecutor, cfg *TaskServiceConfig, logger *logrus.Logger) *TaskService {
	s := &TaskService{
		executor:     executor,
		pollInterval: defaultPollInterval,
		clock:        ports.SystemClock{},
		metrics:      ports.NoopTaskMetrics{},
		logger:       logger,
	}
	if cfg != nil {
		if _, inline := executor.(*InlineExecutor); !inline {
			s.fallback = cfg.Fallback
		}
		if cfg.Kinds != nil {
			s.kinds = make(map[task.Kind]bool, len(cfg.Kinds))
			for _, k := range cfg.Kinds {
				s.kinds[k] = true
			}
		}
		if cfg.PollInterval > 0 {
			s.pollInterval = cfg.PollInterval
		}
		if cfg.Clock != nil {
			s.clock = cfg.Clock
		}
		if cfg.Metrics != nil {
			s.metrics = cfg.Metrics
		}
	}
	return s
}

func (s *TaskService) Mode() string { return s.executor.Mode() }

// ModeOf reports which strategy holds id: the inline fallback for ids it
// issued, the primary executor otherwise.
func (s *TaskService) ModeOf(id string) string { return s.route(id).Mode() }

// Submit validates and hands work to the executor. On the inline path the
// work has already finished when Submit returns; on the broker path Submit
// only enqueues.
func (s *TaskService) Submit(ctx context.Context, kind task.Kind, payload any, scope string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTaskKind, kind)
	}
	if s.kinds != nil && !s.kinds[kind] {
		return "", fmt.Errorf("%w: %q", ErrKindUnavailable, kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	t := task.Task{Kind: kind, Payload: raw, Scope: scope, SubmittedAt: s.clock.Now()}

	id, err := s.executor.Submit(ctx, t)
	mode := s.executor.Mode()
	if err != nil {
		if s.fallback == nil {
			return "", fmt.Errorf("failed to submit task: %w", err)
		}
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"kind": kind, "scope": scope}).WithError(err).Warn("task broker unavailable; executing inline")
		}
		id, err = s.fallback.Submit(ctx, t)
		if err != nil {
			return "", fmt.Errorf("failed to submit task: %w", err)
		}
		mode = s.fallback.Mode()
	}
	s.metrics.TaskSubmitted(kind, mode)
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"task_id": id, "kind": kind, "scope": scope, "mode": mode}).Debug("task submitted")
	}
	return id, nil
}

func (s *TaskService) route(id string) ports.TaskExecutor {
	if s.fallback != nil && s.fallback.Owns(id) {
		return s.fallback
	}
	return s.executor
}

// GetStatus is a pure read. If the broker cannot be reached the task is
// reported as PENDING so callers keep polling instead of failing.
func (s *TaskService) GetStatus(ctx context.Context, id string) task.Result {
	res, err := s.route(id).Status(ctx, id)
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("task_id", id).WithError(err).Warn("failed to read task status")
		}
		return task.Result{TaskID: id, Status: task.StatusPending, Error: "task status temporarily unavailable"}
	}
	return res
}

func (s *TaskService) Cancel(ctx context.Context, id string) bool {
	ok, err := s.route(id).Cancel(ctx, id)
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("task_id", id).WithError(err).Error("failed to cancel task")
		}
		return false
	}
	return ok
}

// Wait polls GetStatus every poll interval. NOT_FOUND ends the wait
// immediately since no later poll can change it. The deadline is measured on
// the service clock; the pause between polls is real time.
func (s *TaskService) Wait(ctx context.Context, id string, timeout time.Duration) task.Result {
	deadline := s.clock.Now().Add(timeout)
	for {
		res := s.GetStatus(ctx, id)
		if res.Status.IsTerminal() || res.Status == task.StatusNotFound {
			return res
		}
		left := deadline.Sub(s.clock.Now())
		if left <= 0 {
			return timedOut(res, timeout)
		}
		delay := s.pollInterval
		if left < delay {
			delay = left
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return timedOut(res, timeout)
		case <-timer.C:
		}
	}
}

func timedOut(last task.Result, timeout time.Duration) task.Result {
	last.Status = task.StatusTimeout
	last.Error = fmt.Sprintf("task did not complete within %s", timeout)
	return last
}

func (s *TaskService) ActiveTasks(ctx context.Context) []task.Summary {
	active, err := s.executor.Active(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("failed to list active tasks")
		}
		return []task.Summary{}
	}
	return active
}
