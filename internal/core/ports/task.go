package ports

import (
	"context"
	"time"

	"github.com/canner-app/canner/go/internal/core/domain/task"
)

// TaskHandler runs one unit of work. The returned value is encoded as the
// task's JSON result. Handlers are opaque, synchronous and may fail.
type TaskHandler func(ctx context.Context, t task.Task) (any, error)

// TaskExecutor is an execution strategy behind the TaskService facade.
type TaskExecutor interface {
	// Mode names the strategy ("broker" or "inline").
	Mode() string
	// Submit accepts t (without an id) and returns the id it was stored under.
	Submit(ctx context.Context, t task.Task) (string, error)
	// Status returns the task's result, or task.NotFound for unknown ids.
	Status(ctx context.Context, id string) (task.Result, error)
	// Cancel signals a pending or running task and reports whether the signal was accepted.
	Cancel(ctx context.Context, id string) (bool, error)
	// Active lists tasks that have not reached a terminal state.
	Active(ctx context.Context) ([]task.Summary, error)
}

// TaskService is what handlers see; the concrete executor stays hidden.
type TaskService interface {
	Submit(ctx context.Context, kind task.Kind, payload any, scope string) (string, error)
	GetStatus(ctx context.Context, id string) task.Result
	Cancel(ctx context.Context, id string) bool
	// Wait polls GetStatus until a terminal state or timeout. It never
	// cancels the task; on timeout the last observation is returned with
	// status TIMEOUT.
	Wait(ctx context.Context, id string, timeout time.Duration) task.Result
	ActiveTasks(ctx context.Context) []task.Summary
	Mode() string
	// ModeOf names the strategy that owns id, which differs from Mode for
	// work the broker refused and that ran inline instead.
	ModeOf(id string) string
}

// TaskQueue is the consumer side of a task broker, driven by a worker.
type TaskQueue interface {
	// Next blocks up to wait for a queued task. ok=false when none arrived.
	Next(ctx context.Context, wait time.Duration) (t task.Task, ok bool, err error)
	// Start moves a task to RUNNING. It reports false if the task was
	// cancelled or collected before it could start.
	Start(ctx context.Context, id string) (bool, error)
	// Finish records the terminal outcome of a task.
	Finish(ctx context.Context, id string, status task.Status, result []byte, errMsg string) error
	// Revoked reports whether a cancellation signal was accepted for id.
	Revoked(ctx context.Context, id string) (bool, error)
}

// TaskMetrics observes task lifecycle events.
type TaskMetrics interface {
	TaskSubmitted(kind task.Kind, mode string)
	TaskFinished(kind task.Kind, status task.Status, elapsed time.Duration)
}

// NoopTaskMetrics discards observations.
type NoopTaskMetrics struct{}

func (NoopTaskMetrics) TaskSubmitted(task.Kind, string)                    {}
func (NoopTaskMetrics) TaskFinished(task.Kind, task.Status, time.Duration) {}
