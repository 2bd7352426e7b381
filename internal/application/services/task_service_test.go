package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canner-app/canner/go/internal/application/services"
	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/core/ports"
	tmocks "github.com/canner-app/canner/go/test/mocks"
)

func testHandlers() map[task.Kind]ports.TaskHandler {
	return map[task.Kind]ports.TaskHandler{
		task.KindAnalytics: func(ctx context.Context, t task.Task) (any, error) {
			var p struct {
				Days int `json:"days"`
			}
			if err := json.Unmarshal(t.Payload, &p); err != nil {
				return nil, err
			}
			return map[string]int{"days": p.Days}, nil
		},
		task.KindExport: func(ctx context.Context, t task.Task) (any, error) {
			return nil, errors.New("unsupported export format: xml")
		},
		task.KindAIGeneration: func(ctx context.Context, t task.Task) (any, error) {
			panic("model exploded")
		},
	}
}

func newInlineService(t *testing.T, clock ports.Clock) (*services.TaskService, *services.InlineExecutor) {
	t.Helper()
	inline := services.NewInlineExecutor(testHandlers(), &services.InlineConfig{Retention: time.Hour, Clock: clock}, quietLogger())
	return services.NewTaskService(inline, &services.TaskServiceConfig{Clock: clock, PollInterval: 10 * time.Millisecond}, quietLogger()), inline
}

func TestTaskService_InlineSuccess(t *testing.T) {
	ctx := context.Background()
	svc, _ := newInlineService(t, nil)
	assert.Equal(t, "inline", svc.Mode())

	id, err := svc.Submit(ctx, task.KindAnalytics, map[string]int{"days": 7}, "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, services.InlineIDPrefix))

	res := svc.GetStatus(ctx, id)
	assert.Equal(t, task.StatusSuccess, res.Status)
	assert.JSONEq(t, `{"days":7}`, string(res.Result))
	require.NotNil(t, res.CreatedAt)
	require.NotNil(t, res.CompletedAt)
	assert.Empty(t, res.Error)
}

func TestTaskService_InlineFailuresAreRecorded(t *testing.T) {
	ctx := context.Background()
	svc, _ := newInlineService(t, nil)

	id, err := svc.Submit(ctx, task.KindExport, map[string]string{"format": "xml"}, "")
	require.NoError(t, err)
	res := svc.GetStatus(ctx, id)
	assert.Equal(t, task.StatusFailure, res.Status)
	assert.Contains(t, res.Error, "unsupported export format")

	id, err = svc.Submit(ctx, task.KindAIGeneration, nil, "")
	require.NoError(t, err, "a panicking handler must not escape Submit")
	res = svc.GetStatus(ctx, id)
	assert.Equal(t, task.StatusFailure, res.Status)
	assert.Contains(t, res.Error, "model exploded")
}

func TestTaskService_MissingHandler(t *testing.T) {
	inline := services.NewInlineExecutor(map[task.Kind]ports.TaskHandler{}, nil, quietLogger())
	svc := services.NewTaskService(inline, nil, quietLogger())
	id, err := svc.Submit(context.Background(), task.KindExport, nil, "")
	require.NoError(t, err)
	res := svc.GetStatus(context.Background(), id)
	assert.Equal(t, task.StatusFailure, res.Status)
	assert.Contains(t, res.Error, "no handler registered")
}

func TestTaskService_SubmitValidation(t *testing.T) {
	svc, _ := newInlineService(t, nil)

	_, err := svc.Submit(context.Background(), task.Kind("mining"), nil, "")
	assert.ErrorIs(t, err, services.ErrUnknownTaskKind)

	_, err = svc.Submit(context.Background(), task.KindAnalytics, make(chan int), "")
	assert.ErrorIs(t, err, services.ErrInvalidPayload)
}

func TestTaskService_RefusesUnconfiguredKinds(t *testing.T) {
	exec := &tmocks.TaskExecutorMock{SubmitFn: func(ctx context.Context, t task.Task) (string, error) {
		return "b-1", nil
	}}
	svc := services.NewTaskService(exec, &services.TaskServiceConfig{Kinds: []task.Kind{task.KindAnalytics}}, quietLogger())

	_, err := svc.Submit(context.Background(), task.KindAIGeneration, nil, "")
	assert.ErrorIs(t, err, services.ErrKindUnavailable)
	_, err = svc.Submit(context.Background(), task.Kind("mining"), nil, "")
	assert.ErrorIs(t, err, services.ErrUnknownTaskKind)

	id, err := svc.Submit(context.Background(), task.KindAnalytics, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "b-1", id)

	svc = services.NewTaskService(exec, &services.TaskServiceConfig{Kinds: []task.Kind{}}, quietLogger())
	_, err = svc.Submit(context.Background(), task.KindAnalytics, nil, "")
	assert.ErrorIs(t, err, services.ErrKindUnavailable, "an empty list enables nothing")
}

func TestTaskService_UnknownID(t *testing.T) {
	svc, _ := newInlineService(t, nil)
	res := svc.GetStatus(context.Background(), "nope")
	assert.Equal(t, task.StatusNotFound, res.Status)
	assert.Equal(t, "nope", res.TaskID)

	start := time.Now()
	res = svc.Wait(context.Background(), "nope", 5*time.Second)
	assert.Equal(t, task.StatusNotFound, res.Status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTaskService_InlineCancelIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, _ := newInlineService(t, nil)
	id, err := svc.Submit(ctx, task.KindAnalytics, map[string]int{"days": 1}, "")
	require.NoError(t, err)
	assert.False(t, svc.Cancel(ctx, id))
	assert.Equal(t, task.StatusSuccess, svc.GetStatus(ctx, id).Status)
	assert.Empty(t, svc.ActiveTasks(ctx))
}

func TestTaskService_InlineRetention(t *testing.T) {
	ctx := context.Background()
	clock := tmocks.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	svc, inline := newInlineService(t, clock)

	id, err := svc.Submit(ctx, task.KindAnalytics, map[string]int{"days": 1}, "")
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	assert.Equal(t, task.StatusSuccess, svc.GetStatus(ctx, id).Status)
	assert.Equal(t, 0, inline.Purge())

	clock.Advance(time.Minute)
	assert.Equal(t, task.StatusNotFound, svc.GetStatus(ctx, id).Status)
	assert.Equal(t, 1, inline.Purge())
}

func TestTaskService_WaitReturnsTerminalImmediately(t *testing.T) {
	ctx := context.Background()
	svc, _ := newInlineService(t, nil)
	id, err := svc.Submit(ctx, task.KindAnalytics, map[string]int{"days": 3}, "")
	require.NoError(t, err)

	res := svc.Wait(ctx, id, 0)
	assert.Equal(t, task.StatusSuccess, res.Status)
}

func pendingBroker() *tmocks.TaskExecutorMock {
	return &tmocks.TaskExecutorMock{
		SubmitFn: func(ctx context.Context, t task.Task) (string, error) { return "b-1", nil },
		StatusFn: func(ctx context.Context, id string) (task.Result, error) {
			return task.Result{TaskID: id, Status: task.StatusPending}, nil
		},
	}
}

func TestTaskService_WaitTimesOut(t *testing.T) {
	svc := services.NewTaskService(pendingBroker(), &services.TaskServiceConfig{PollInterval: 10 * time.Millisecond}, quietLogger())

	res := svc.Wait(context.Background(), "b-1", 0)
	assert.Equal(t, task.StatusTimeout, res.Status)
	assert.Equal(t, "b-1", res.TaskID)

	start := time.Now()
	res = svc.Wait(context.Background(), "b-1", 50*time.Millisecond)
	assert.Equal(t, task.StatusTimeout, res.Status)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Contains(t, res.Error, "did not complete within")
}

func TestTaskService_WaitDeadlineFollowsServiceClock(t *testing.T) {
	clock := tmocks.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	polls := 0
	exec := pendingBroker()
	exec.StatusFn = func(ctx context.Context, id string) (task.Result, error) {
		polls++
		clock.Advance(time.Minute)
		return task.Result{TaskID: id, Status: task.StatusRunning}, nil
	}
	svc := services.NewTaskService(exec, &services.TaskServiceConfig{Clock: clock, PollInterval: time.Millisecond}, quietLogger())

	start := time.Now()
	res := svc.Wait(context.Background(), "b-1", 3*time.Minute)
	assert.Equal(t, task.StatusTimeout, res.Status)
	assert.Equal(t, 3, polls)
	assert.Less(t, time.Since(start), time.Second, "three simulated minutes pass without real waiting")
}

func TestTaskService_WaitSeesCompletion(t *testing.T) {
	polls := 0
	exec := pendingBroker()
	exec.StatusFn = func(ctx context.Context, id string) (task.Result, error) {
		polls++
		if polls < 3 {
			return task.Result{TaskID: id, Status: task.StatusRunning}, nil
		}
		return task.Result{TaskID: id, Status: task.StatusSuccess, Result: json.RawMessage(`1`)}, nil
	}
	svc := services.NewTaskService(exec, &services.TaskServiceConfig{PollInterval: 5 * time.Millisecond}, quietLogger())

	res := svc.Wait(context.Background(), "b-1", time.Second)
	assert.Equal(t, task.StatusSuccess, res.Status)
	assert.Equal(t, 3, polls)
}

func TestTaskService_WaitHonorsContext(t *testing.T) {
	svc := services.NewTaskService(pendingBroker(), &services.TaskServiceConfig{PollInterval: time.Second}, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := svc.Wait(ctx, "b-1", time.Minute)
	assert.Equal(t, task.StatusTimeout, res.Status)
}

func TestTaskService_BrokerSubmitFallsBackInline(t *testing.T) {
	ctx := context.Background()
	broker := &tmocks.TaskExecutorMock{
		SubmitFn: func(ctx context.Context, t task.Task) (string, error) { return "", tmocks.ErrBackendDown },
		StatusFn: func(ctx context.Context, id string) (task.Result, error) {
			t.Fatalf("inline ids must not be routed to the broker")
			return task.Result{}, nil
		},
	}
	inline := services.NewInlineExecutor(testHandlers(), nil, quietLogger())
	svc := services.NewTaskService(broker, &services.TaskServiceConfig{Fallback: inline}, quietLogger())
	assert.Equal(t, "broker", svc.Mode())

	id, err := svc.Submit(ctx, task.KindAnalytics, map[string]int{"days": 2}, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, services.InlineIDPrefix))
	assert.Equal(t, task.StatusSuccess, svc.GetStatus(ctx, id).Status)
	assert.Equal(t, "inline", svc.ModeOf(id))
	assert.Equal(t, "broker", svc.ModeOf("b-1"))
}

func TestTaskService_BrokerSubmitFailsWithoutFallback(t *testing.T) {
	broker := &tmocks.TaskExecutorMock{}
	svc := services.NewTaskService(broker, nil, quietLogger())
	_, err := svc.Submit(context.Background(), task.KindAnalytics, nil, "")
	assert.ErrorIs(t, err, tmocks.ErrBackendDown)
}

func TestTaskService_BrokerReadFailureReportsPending(t *testing.T) {
	ctx := context.Background()
	broker := &tmocks.TaskExecutorMock{
		StatusFn: func(ctx context.Context, id string) (task.Result, error) { return task.Result{}, tmocks.ErrBackendDown },
		CancelFn: func(ctx context.Context, id string) (bool, error) { return false, tmocks.ErrBackendDown },
		ActiveFn: func(ctx context.Context) ([]task.Summary, error) { return nil, tmocks.ErrBackendDown },
	}
	svc := services.NewTaskService(broker, nil, quietLogger())

	res := svc.GetStatus(ctx, "b-1")
	assert.Equal(t, task.StatusPending, res.Status)
	assert.NotEmpty(t, res.Error)
	assert.False(t, svc.Cancel(ctx, "b-1"))
	assert.NotNil(t, svc.ActiveTasks(ctx))
	assert.Empty(t, svc.ActiveTasks(ctx))
}

type recordingMetrics struct {
	submitted []string
	finished  []task.Status
}

func (m *recordingMetrics) TaskSubmitted(kind task.Kind, mode string) {
	m.submitted = append(m.submitted, string(kind)+"/"+mode)
}
func (m *recordingMetrics) TaskFinished(kind task.Kind, status task.Status, elapsed time.Duration) {
	m.finished = append(m.finished, status)
}

func TestTaskService_Metrics(t *testing.T) {
	m := &recordingMetrics{}
	inline := services.NewInlineExecutor(testHandlers(), &services.InlineConfig{Metrics: m}, quietLogger())
	svc := services.NewTaskService(inline, &services.TaskServiceConfig{Metrics: m}, quietLogger())

	_, err := svc.Submit(context.Background(), task.KindAnalytics, map[string]int{"days": 1}, "")
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), task.KindExport, nil, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"analytics/inline", "export/inline"}, m.submitted)
	assert.Equal(t, []task.Status{task.StatusSuccess, task.StatusFailure}, m.finished)
}
