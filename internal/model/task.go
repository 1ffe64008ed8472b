package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting to be picked up by the worker.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates a handler is executing the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusPaused indicates the handler honored a pause request and is waiting.
	TaskStatusPaused TaskStatus = "paused"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task finished with an unrecoverable error.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusStopped indicates the task was stopped on request before finishing.
	TaskStatusStopped TaskStatus = "stopped"
)

// IsTerminal returns true when the status is final and immutable.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusStopped:
		return true
	}
	return false
}

// IsLive returns true when the task is still owned by the engine.
func (s TaskStatus) IsLive() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusPaused:
		return true
	}
	return false
}

// ParseTaskStatus validates a raw status string.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(raw)
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusPaused,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusStopped:
		return s, nil
	}
	return "", fmt.Errorf("unknown task status %q: %w", raw, ErrNotValid)
}

// StatKey identifies one of the per-task counters.
type StatKey string

const (
	StatSuccess StatKey = "success"
	StatFailed  StatKey = "failed"
	StatSkipped StatKey = "skipped"
)

// TaskStats holds the incremental per-item counters of a task run.
type TaskStats struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Task represents one schedulable, resumable unit of long-running work.
type Task struct {
	ID           string
	Type         string
	Status       TaskStatus
	Progress     int // 0-100
	CurrentIndex int
	TotalItems   int
	Stats        TaskStats
	Params       json.RawMessage // opaque handler input, immutable after creation
	Metadata     json.RawMessage
	Result       json.RawMessage
	Error        string
	Message      string

	// Advisory control requests a running handler polls and honors at
	// iteration boundaries.
	StopRequested  bool
	PauseRequested bool

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Checkpoint is the persisted resume point of an interrupted task. At most one
// live checkpoint exists per task, and it is deleted on successful completion.
type Checkpoint struct {
	TaskID       string
	CurrentIndex int // next index to process, items before it are done
	Stats        TaskStats
	Stage        string
	UpdatedAt    time.Time
}
