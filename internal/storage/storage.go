package storage

import (
	"context"
	"encoding/json"

	"github.com/stockd/stockd/internal/model"
)

// TaskUpdate is a partial update of a task row. Nil fields are left untouched.
// Status changes on tasks already in a terminal state are silently dropped,
// terminal states are immutable.
type TaskUpdate struct {
	Status       *model.TaskStatus
	Progress     *int
	CurrentIndex *int
	TotalItems   *int
	Message      *string
	Error        *string
	Result       json.RawMessage
}

// TaskRepository is the durable store for tasks, their checkpoints and their
// control flags. It is the only shared mutable state of the engine, so every
// implementation must be safe for concurrent use from multiple goroutines.
type TaskRepository interface {
	// CreateTask inserts a new pending task with zeroed progress and stats
	// and returns its generated ID.
	CreateTask(ctx context.Context, taskType string, params, metadata json.RawMessage) (string, error)
	// GetTask returns a task by ID, or model.ErrNotFound.
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	// UpdateTask merges the given fields into the task row. Updating a task
	// that no longer exists is a no-op, callers must not assume existence.
	UpdateTask(ctx context.Context, taskID string, update TaskUpdate) error
	// ListTasks returns tasks ordered by creation time descending, optionally
	// filtered by status. limit <= 0 means no limit.
	ListTasks(ctx context.Context, status *model.TaskStatus, limit int) ([]model.Task, error)
	// NextPendingTask returns the oldest pending task, or nil when none.
	NextPendingTask(ctx context.Context) (*model.Task, error)
	// DeleteTask removes the task, its checkpoint and any pending control
	// flags. Deleting a missing task is not an error.
	DeleteTask(ctx context.Context, taskID string) error

	// SaveCheckpoint creates or overwrites the task's checkpoint,
	// last write wins.
	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
	// LoadCheckpoint returns the task's checkpoint, or nil when none exists.
	LoadCheckpoint(ctx context.Context, taskID string) (*model.Checkpoint, error)
	// DeleteCheckpoint removes the task's checkpoint. Idempotent.
	DeleteCheckpoint(ctx context.Context, taskID string) error

	// IncrementStats atomically adds delta to one of the task counters.
	IncrementStats(ctx context.Context, taskID string, key model.StatKey, delta int) error
	// ResetStats overwrites all task counters at once. Only meant for
	// resuming from a checkpoint, where the counters roll back to the
	// snapshot taken at the checkpointed position.
	ResetStats(ctx context.Context, taskID string, stats model.TaskStats) error

	// RequestStop raises the stop flag. A task still in pending transitions
	// directly to stopped, no handler ever started.
	RequestStop(ctx context.Context, taskID string) error
	// RequestPause raises the pause flag.
	RequestPause(ctx context.Context, taskID string) error
	IsStopRequested(ctx context.Context, taskID string) (bool, error)
	IsPauseRequested(ctx context.Context, taskID string) (bool, error)
	ClearStopRequest(ctx context.Context, taskID string) error
	ClearPauseRequest(ctx context.Context, taskID string) error
	// ResumeTask clears the pause flag and flips a paused task back to
	// running. Returns model.ErrNotValid when the task is not paused.
	ResumeTask(ctx context.Context, taskID string) error

	// HasActiveTask returns the oldest running or paused task, or nil.
	HasActiveTask(ctx context.Context) (*model.Task, error)
	// ListUnfinishedTasks returns all running and paused tasks. Used by the
	// worker on startup to recover tasks orphaned by a dead process.
	ListUnfinishedTasks(ctx context.Context) ([]model.Task, error)
}

// MarketRepository persists the market data the sync handlers fetch.
type MarketRepository interface {
	UpsertSymbols(ctx context.Context, symbols []model.Symbol) error
	ListSymbols(ctx context.Context) ([]model.Symbol, error)
	SetSymbolIndustry(ctx context.Context, code, industry string) error
	UpsertDailyPrices(ctx context.Context, bars []model.PriceBar) error
	UpsertFinancialReport(ctx context.Context, report model.FinancialReport) error
}
