package task

import (
	"encoding/json"
	"time"
)

// Kind names a unit of deferrable work.
type Kind string

const (
	KindAIGeneration Kind = "ai_generation"
	KindAnalytics    Kind = "analytics"
	KindExport       Kind = "export"
)

// Kinds lists every kind a registry accepts.
var Kinds = []Kind{KindAIGeneration, KindAnalytics, KindExport}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusRunning  Status = "RUNNING"
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
	StatusTimeout  Status = "TIMEOUT"
	StatusNotFound Status = "NOT_FOUND"
)

// IsTerminal reports whether the task can make no further transitions.
// TIMEOUT and NOT_FOUND are answers produced by readers, not task states.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Task is a submitted unit of work. It is immutable after creation.
type Task struct {
	ID          string          `json:"task_id"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Scope       string          `json:"scope"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Result is the observable state of a task. Its JSON form is the status
// endpoint shape.
type Result struct {
	TaskID      string          `json:"task_id"`
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NotFound builds the pseudo-result returned for unknown or collected ids.
func NotFound(id string) Result {
	return Result{TaskID: id, Status: StatusNotFound, Error: "task not found"}
}

// Summary is the listing form used for active tasks.
type Summary struct {
	TaskID    string     `json:"id"`
	Kind      Kind       `json:"kind,omitempty"`
	Status    Status     `json:"status"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}
