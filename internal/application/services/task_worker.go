package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/core/ports"
)

// Worker consumes a TaskQueue and runs each task with its registered handler.
type Worker struct {
	queue        ports.TaskQueue
	handlers     map[task.Kind]ports.TaskHandler
	concurrency  int
	timeLimit    time.Duration
	fetchWait    time.Duration
	revokeCheck  time.Duration
	errorBackoff time.Duration
	metrics      ports.TaskMetrics
	logger       *logrus.Logger
}

// WorkerConfig groups configuration parameters for the worker.
type WorkerConfig struct {
	Concurrency int
	// TimeLimit bounds a single task; a task exceeding it fails.
	TimeLimit time.Duration
	// RevokeCheck is how often a running task's cancellation flag is polled.
	RevokeCheck time.Duration
	FetchWait   time.Duration
	Metrics     ports.TaskMetrics
}

func NewWorker(queue ports.TaskQueue, handlers map[task.Kind]ports.TaskHandler, cfg *WorkerConfig, logger *logrus.Logger) *Worker {
	w := &Worker{
		queue:        queue,
		handlers:     handlers,
		concurrency:  1,
		timeLimit:    5 * time.Minute,
		fetchWait:    2 * time.Second,
		revokeCheck:  time.Second,
		errorBackoff: time.Second,
		metrics:      ports.NoopTaskMetrics{},
		logger:       logger,
	}
	if cfg != nil {
		if cfg.Concurrency > 0 {
			w.concurrency = cfg.Concurrency
		}
		if cfg.TimeLimit > 0 {
			w.timeLimit = cfg.TimeLimit
		}
		if cfg.RevokeCheck > 0 {
			w.revokeCheck = cfg.RevokeCheck
		}
		if cfg.FetchWait > 0 {
			w.fetchWait = cfg.FetchWait
		}
		if cfg.Metrics != nil {
			w.metrics = cfg.Metrics
		}
	}
	return w
}

// Run blocks until ctx is cancelled and every in-flight task has finished.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for ctx.Err() == nil {
		t, ok, err := w.queue.Next(ctx, w.fetchWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if w.logger != nil {
				w.logger.WithField("slot", slot).WithError(err).Warn("worker: failed to fetch task; backing off")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.errorBackoff):
			}
			continue
		}
		if !ok {
			continue
		}
		// In-flight work finishes even if the worker is asked to stop.
		w.Process(context.WithoutCancel(ctx), t)
	}
}

// Process runs one dequeued task to a terminal state.
func (w *Worker) Process(ctx context.Context, t task.Task) {
	log := logrus.Fields{"task_id": t.ID, "kind": t.Kind}
	started, err := w.queue.Start(ctx, t.ID)
	if err != nil {
		if w.logger != nil {
			w.logger.WithFields(log).WithError(err).Error("worker: failed to mark task running")
		}
		return
	}
	if !started {
		if w.logger != nil {
			w.logger.WithFields(log).Info("worker: task revoked before start; skipping")
		}
		return
	}

	begin := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, w.timeLimit)
	defer cancel()
	stop := w.watchRevoke(runCtx, cancel, t.ID)
	raw, runErr := executeTask(runCtx, w.handlers[t.Kind], t)
	stop()

	status, errMsg := task.StatusSuccess, ""
	if runErr != nil {
		status, errMsg = task.StatusFailure, runErr.Error()
		if revoked, _ := w.queue.Revoked(ctx, t.ID); revoked {
			errMsg = "task revoked"
		} else if runCtx.Err() == context.DeadlineExceeded {
			errMsg = "task exceeded time limit of " + w.timeLimit.String() + ": " + runErr.Error()
		}
	}
	if err := w.queue.Finish(ctx, t.ID, status, raw, errMsg); err != nil && w.logger != nil {
		w.logger.WithFields(log).WithError(err).Error("worker: failed to record task result")
	}
	w.metrics.TaskFinished(t.Kind, status, time.Since(begin))
	if w.logger != nil {
		w.logger.WithFields(log).WithField("status", status).Debug("worker: task finished")
	}
}

// watchRevoke cancels a running task once its revoke flag is set. The
// returned func stops the watcher.
func (w *Worker) watchRevoke(ctx context.Context, cancel context.CancelFunc, id string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.revokeCheck)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if revoked, err := w.queue.Revoked(ctx, id); err == nil && revoked {
					cancel()
					return
				}
			}
		}
	}()
	return func() { close(done) }
}
