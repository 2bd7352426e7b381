package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/core/ports"
)

const (
	fieldKind        = "kind"
	fieldScope       = "scope"
	fieldStatus      = "status"
	fieldResult      = "result"
	fieldError       = "error"
	fieldCreatedAt   = "created_at"
	fieldCompletedAt = "completed_at"
	fieldRevoked     = "revoked"

	revokedMessage = "task revoked"
)

// startScript moves a task from PENDING to RUNNING unless it was revoked or
// collected in the meantime.
var startScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status ~= 'PENDING' then
	return 0
end
redis.call('HSET', KEYS[1], 'status', 'RUNNING', 'started_at', ARGV[1])
return 1
`)

// cancelScript records a revoke for live tasks. A PENDING task is finished
// as FAILURE on the spot; a RUNNING task is left to its worker.
var cancelScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'PENDING' then
	redis.call('HSET', KEYS[1], 'revoked', '1', 'status', 'FAILURE', 'error', ARGV[1], 'completed_at', ARGV[2])
	redis.call('SREM', KEYS[2], ARGV[3])
	return 1
end
if status == 'RUNNING' then
	redis.call('HSET', KEYS[1], 'revoked', '1')
	return 1
end
return 0
`)

// RedisBroker is a task broker on Redis: a list carries queued tasks and a
// hash per task carries its lifecycle. It implements both the submitting
// side (ports.TaskExecutor) and the consuming side (ports.TaskQueue).
type RedisBroker struct {
	r         redis.Cmdable
	queue     string
	retention time.Duration
	opTimeout time.Duration
}

// Config groups configuration parameters for the broker.
type Config struct {
	Queue     string
	Retention time.Duration
	OpTimeout time.Duration
}

var (
	_ ports.TaskExecutor = (*RedisBroker)(nil)
	_ ports.TaskQueue    = (*RedisBroker)(nil)
)

func NewRedisBroker(r redis.Cmdable, cfg Config) *RedisBroker {
	b := &RedisBroker{r: r, queue: "canner_tasks", retention: 24 * time.Hour, opTimeout: 500 * time.Millisecond}
	if cfg.Queue != "" {
		b.queue = cfg.Queue
	}
	if cfg.Retention > 0 {
		b.retention = cfg.Retention
	}
	if cfg.OpTimeout > 0 {
		b.opTimeout = cfg.OpTimeout
	}
	return b
}

func (b *RedisBroker) Mode() string { return "broker" }

func (b *RedisBroker) taskKey(id string) string { return b.queue + ":task:" + id }
func (b *RedisBroker) activeKey() string        { return b.queue + ":active" }

func (b *RedisBroker) opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.opTimeout)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// Submit enqueues t under a fresh id. It only talks to Redis and never waits
// for the work itself.
func (b *RedisBroker) Submit(ctx context.Context, t task.Task) (string, error) {
	t.ID = uuid.NewString()
	if t.SubmittedAt.IsZero() {
		t.SubmittedAt = time.Now()
	}
	msg, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode task: %w", err)
	}

	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	key := b.taskKey(t.ID)
	pipe := b.r.TxPipeline()
	pipe.HSet(ctx, key,
		fieldKind, string(t.Kind),
		fieldScope, t.Scope,
		fieldStatus, string(task.StatusPending),
		fieldCreatedAt, formatTime(t.SubmittedAt),
	)
	pipe.Expire(ctx, key, b.retention)
	pipe.SAdd(ctx, b.activeKey(), t.ID)
	pipe.LPush(ctx, b.queue, msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return t.ID, nil
}

func (b *RedisBroker) Status(ctx context.Context, id string) (task.Result, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	fields, err := b.r.HGetAll(ctx, b.taskKey(id)).Result()
	if err != nil {
		return task.Result{}, fmt.Errorf("failed to read task status: %w", err)
	}
	if len(fields) == 0 {
		return task.NotFound(id), nil
	}
	return resultFromFields(id, fields), nil
}

func resultFromFields(id string, fields map[string]string) task.Result {
	res := task.Result{TaskID: id, Status: translateStatus(fields[fieldStatus]), Error: fields[fieldError]}
	if res.Status == task.StatusSuccess && fields[fieldResult] != "" {
		res.Result = json.RawMessage(fields[fieldResult])
	}
	res.CreatedAt = parseTime(fields[fieldCreatedAt])
	res.CompletedAt = parseTime(fields[fieldCompletedAt])
	return res
}

// translateStatus maps the broker's stored state onto the task status enum.
func translateStatus(s string) task.Status {
	switch task.Status(s) {
	case task.StatusPending, task.StatusRunning, task.StatusSuccess, task.StatusFailure:
		return task.Status(s)
	case "STARTED", "RETRY":
		return task.StatusRunning
	case "REVOKED":
		return task.StatusFailure
	default:
		return task.StatusPending
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func (b *RedisBroker) Cancel(ctx context.Context, id string) (bool, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	n, err := cancelScript.Run(ctx, b.r, []string{b.taskKey(id), b.activeKey()}, revokedMessage, formatTime(time.Now()), id).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to revoke task: %w", err)
	}
	return n == 1, nil
}

func (b *RedisBroker) Active(ctx context.Context) ([]task.Summary, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	ids, err := b.r.SMembers(ctx, b.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	out := make([]task.Summary, 0, len(ids))
	for _, id := range ids {
		vals, err := b.r.HMGet(ctx, b.taskKey(id), fieldStatus, fieldKind, fieldCreatedAt).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read task %s: %w", id, err)
		}
		status, _ := vals[0].(string)
		if status == "" {
			// Collected by retention; drop the dangling reference.
			b.r.SRem(ctx, b.activeKey(), id)
			continue
		}
		st := translateStatus(status)
		if st.IsTerminal() {
			continue
		}
		kind, _ := vals[1].(string)
		created, _ := vals[2].(string)
		out = append(out, task.Summary{TaskID: id, Kind: task.Kind(kind), Status: st, CreatedAt: parseTime(created)})
	}
	return out, nil
}

// Next pops the oldest queued task, waiting up to wait for one to arrive.
func (b *RedisBroker) Next(ctx context.Context, wait time.Duration) (task.Task, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, wait+b.opTimeout)
	defer cancel()
	vals, err := b.r.BRPop(ctx, wait, b.queue).Result()
	if errors.Is(err, redis.Nil) {
		return task.Task{}, false, nil
	}
	if err != nil {
		return task.Task{}, false, err
	}
	var t task.Task
	if err := json.Unmarshal([]byte(vals[1]), &t); err != nil {
		// A malformed message is dropped so it cannot wedge the queue.
		return task.Task{}, false, fmt.Errorf("failed to decode queued task: %w", err)
	}
	return t, true, nil
}

func (b *RedisBroker) Start(ctx context.Context, id string) (bool, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	n, err := startScript.Run(ctx, b.r, []string{b.taskKey(id)}, formatTime(time.Now())).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to start task: %w", err)
	}
	return n == 1, nil
}

func (b *RedisBroker) Finish(ctx context.Context, id string, status task.Status, result []byte, errMsg string) error {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	key := b.taskKey(id)
	pipe := b.r.TxPipeline()
	pipe.HSet(ctx, key,
		fieldStatus, string(status),
		fieldResult, string(result),
		fieldError, errMsg,
		fieldCompletedAt, formatTime(time.Now()),
	)
	pipe.Expire(ctx, key, b.retention)
	pipe.SRem(ctx, b.activeKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record task result: %w", err)
	}
	return nil
}

func (b *RedisBroker) Revoked(ctx context.Context, id string) (bool, error) {
	ctx, cancel := b.opCtx(ctx)
	defer cancel()
	v, err := b.r.HGet(ctx, b.taskKey(id), fieldRevoked).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}
