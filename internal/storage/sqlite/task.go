package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/storage"
)

const taskColumns = `
	id, task_type, status, progress, current_index, total_items,
	stats_success, stats_failed, stats_skipped,
	params, metadata, result, error, message,
	stop_requested, pause_requested,
	created_at, completed_at
`

// TaskRepositoryConfig is the configuration for the SQLite task repository.
type TaskRepositoryConfig struct {
	DB     *sql.DB
	Logger log.Logger
}

func (c *TaskRepositoryConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.TaskRepository"})
	return nil
}

// TaskRepository is a SQLite implementation of storage.TaskRepository.
type TaskRepository struct {
	db     *sql.DB
	logger log.Logger
}

// NewTaskRepository creates a new SQLite task repository.
func NewTaskRepository(cfg TaskRepositoryConfig) (*TaskRepository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &TaskRepository{
		db:     cfg.DB,
		logger: cfg.Logger,
	}, nil
}

// CreateTask inserts a new pending task and returns its generated ID.
func (r *TaskRepository) CreateTask(ctx context.Context, taskType string, params, metadata json.RawMessage) (string, error) {
	if taskType == "" {
		return "", fmt.Errorf("task type is required: %w", model.ErrNotValid)
	}
	if params == nil {
		params = json.RawMessage(`{}`)
	}

	taskID := ulid.Make().String()
	var meta *string
	if metadata != nil {
		s := string(metadata)
		meta = &s
	}

	query := `
		INSERT INTO tasks (id, task_type, status, params, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, taskID, taskType, model.TaskStatusPending, string(params), meta, time.Now().UTC().Unix())
	if err != nil {
		return "", fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task %s (%s)", taskID, taskType)
	return taskID, nil
}

// GetTask retrieves a task by ID.
func (r *TaskRepository) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := r.scanOne(r.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}

	return task, nil
}

// UpdateTask merges the given fields into the task row. Updating a missing
// task is a no-op. When the update includes a status change the WHERE clause
// excludes terminal rows, so tasks never leave a terminal state.
func (r *TaskRepository) UpdateTask(ctx context.Context, taskID string, update storage.TaskUpdate) error {
	sets := []string{}
	args := []interface{}{}

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
		if update.Status.IsTerminal() {
			sets = append(sets, "completed_at = ?")
			args = append(args, time.Now().UTC().Unix())
		}
	}
	if update.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *update.Progress)
	}
	if update.CurrentIndex != nil {
		sets = append(sets, "current_index = ?")
		args = append(args, *update.CurrentIndex)
	}
	if update.TotalItems != nil {
		sets = append(sets, "total_items = ?")
		args = append(args, *update.TotalItems)
	}
	if update.Message != nil {
		sets = append(sets, "message = ?")
		args = append(args, *update.Message)
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, string(update.Result))
	}

	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	args = append(args, taskID)
	if update.Status != nil {
		// Terminal states are immutable.
		query += " AND status NOT IN (?, ?, ?)"
		args = append(args, model.TaskStatusCompleted, model.TaskStatusFailed, model.TaskStatusStopped)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	return nil
}

// ListTasks returns tasks ordered by creation time descending.
func (r *TaskRepository) ListTasks(ctx context.Context, status *model.TaskStatus, limit int) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []interface{}{}

	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return r.queryTasks(ctx, query, args...)
}

// NextPendingTask returns the oldest pending task, or nil when none.
func (r *TaskRepository) NextPendingTask(ctx context.Context) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`

	task, err := r.scanOne(r.db.QueryRowContext(ctx, query, model.TaskStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not query pending task: %w", err)
	}

	return task, nil
}

// DeleteTask removes the task. Its checkpoint goes with it through the
// foreign key cascade and its control flags live on the row itself.
func (r *TaskRepository) DeleteTask(ctx context.Context, taskID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("could not delete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows > 0 {
		r.logger.Debugf("Deleted task %s", taskID)
	}

	return nil
}

// SaveCheckpoint creates or overwrites the checkpoint of a task.
func (r *TaskRepository) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	query := `
		INSERT INTO checkpoints (task_id, current_index, stats_success, stats_failed, stats_skipped, stage, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id) DO UPDATE SET
			current_index = excluded.current_index,
			stats_success = excluded.stats_success,
			stats_failed = excluded.stats_failed,
			stats_skipped = excluded.stats_skipped,
			stage = excluded.stage,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		cp.TaskID, cp.CurrentIndex,
		cp.Stats.Success, cp.Stats.Failed, cp.Stats.Skipped,
		cp.Stage, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("could not save checkpoint: %w", err)
	}

	return nil
}

// LoadCheckpoint returns the checkpoint of a task, or nil when none exists.
func (r *TaskRepository) LoadCheckpoint(ctx context.Context, taskID string) (*model.Checkpoint, error) {
	query := `
		SELECT task_id, current_index, stats_success, stats_failed, stats_skipped, stage, updated_at
		FROM checkpoints
		WHERE task_id = ?
	`

	var cp model.Checkpoint
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, query, taskID).Scan(
		&cp.TaskID, &cp.CurrentIndex,
		&cp.Stats.Success, &cp.Stats.Failed, &cp.Stats.Skipped,
		&cp.Stage, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not query checkpoint: %w", err)
	}

	cp.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &cp, nil
}

// DeleteCheckpoint removes the checkpoint of a task. Idempotent.
func (r *TaskRepository) DeleteCheckpoint(ctx context.Context, taskID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("could not delete checkpoint: %w", err)
	}

	return nil
}

// IncrementStats atomically adds delta to one of the task counters.
func (r *TaskRepository) IncrementStats(ctx context.Context, taskID string, key model.StatKey, delta int) error {
	var column string
	switch key {
	case model.StatSuccess:
		column = "stats_success"
	case model.StatFailed:
		column = "stats_failed"
	case model.StatSkipped:
		column = "stats_skipped"
	default:
		return fmt.Errorf("unknown stat key %q: %w", key, model.ErrNotValid)
	}

	query := fmt.Sprintf("UPDATE tasks SET %s = %s + ? WHERE id = ?", column, column)
	if _, err := r.db.ExecContext(ctx, query, delta, taskID); err != nil {
		return fmt.Errorf("could not increment stats: %w", err)
	}

	return nil
}

// ResetStats overwrites all task counters with the given snapshot.
func (r *TaskRepository) ResetStats(ctx context.Context, taskID string, stats model.TaskStats) error {
	query := `UPDATE tasks SET stats_success = ?, stats_failed = ?, stats_skipped = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, stats.Success, stats.Failed, stats.Skipped, taskID); err != nil {
		return fmt.Errorf("could not reset stats: %w", err)
	}

	return nil
}

// RequestStop raises the stop flag. A task still in pending never had a
// handler, so it transitions directly to stopped.
func (r *TaskRepository) RequestStop(ctx context.Context, taskID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status model.TaskStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		return fmt.Errorf("could not query task: %w", err)
	}

	if status == model.TaskStatusPending {
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, message = ?, completed_at = ? WHERE id = ?`,
			model.TaskStatusStopped, "Stopped before start", time.Now().UTC().Unix(), taskID,
		)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE tasks SET stop_requested = 1 WHERE id = ?`, taskID)
	}
	if err != nil {
		return fmt.Errorf("could not request stop: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Stop requested for task %s", taskID)
	return nil
}

// RequestPause raises the pause flag.
func (r *TaskRepository) RequestPause(ctx context.Context, taskID string) error {
	if err := r.setFlag(ctx, taskID, "pause_requested", true); err != nil {
		return err
	}

	r.logger.Debugf("Pause requested for task %s", taskID)
	return nil
}

// IsStopRequested checks the stop flag.
func (r *TaskRepository) IsStopRequested(ctx context.Context, taskID string) (bool, error) {
	return r.getFlag(ctx, taskID, "stop_requested")
}

// IsPauseRequested checks the pause flag.
func (r *TaskRepository) IsPauseRequested(ctx context.Context, taskID string) (bool, error) {
	return r.getFlag(ctx, taskID, "pause_requested")
}

// ClearStopRequest lowers the stop flag.
func (r *TaskRepository) ClearStopRequest(ctx context.Context, taskID string) error {
	return r.setFlag(ctx, taskID, "stop_requested", false)
}

// ClearPauseRequest lowers the pause flag.
func (r *TaskRepository) ClearPauseRequest(ctx context.Context, taskID string) error {
	return r.setFlag(ctx, taskID, "pause_requested", false)
}

// ResumeTask clears the pause flag and flips a paused task back to running.
func (r *TaskRepository) ResumeTask(ctx context.Context, taskID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, pause_requested = 0 WHERE id = ? AND status = ?`,
		model.TaskStatusRunning, taskID, model.TaskStatusPaused,
	)
	if err != nil {
		return fmt.Errorf("could not resume task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s is not paused: %w", taskID, model.ErrNotValid)
	}

	r.logger.Debugf("Resumed task %s", taskID)
	return nil
}

// HasActiveTask returns the oldest running or paused task, or nil.
func (r *TaskRepository) HasActiveTask(ctx context.Context) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status IN (?, ?) ORDER BY created_at ASC, id ASC LIMIT 1`

	task, err := r.scanOne(r.db.QueryRowContext(ctx, query, model.TaskStatusRunning, model.TaskStatusPaused))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not query active task: %w", err)
	}

	return task, nil
}

// ListUnfinishedTasks returns all running and paused tasks.
func (r *TaskRepository) ListUnfinishedTasks(ctx context.Context) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status IN (?, ?) ORDER BY created_at ASC, id ASC`
	return r.queryTasks(ctx, query, model.TaskStatusRunning, model.TaskStatusPaused)
}

func (r *TaskRepository) setFlag(ctx context.Context, taskID, column string, value bool) error {
	v := 0
	if value {
		v = 1
	}
	query := fmt.Sprintf("UPDATE tasks SET %s = ? WHERE id = ?", column)
	if _, err := r.db.ExecContext(ctx, query, v, taskID); err != nil {
		return fmt.Errorf("could not set %s: %w", column, err)
	}

	return nil
}

func (r *TaskRepository) getFlag(ctx context.Context, taskID, column string) (bool, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE id = ?", column)
	var v int
	err := r.db.QueryRowContext(ctx, query, taskID).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		return false, fmt.Errorf("could not query %s: %w", column, err)
	}

	return v != 0, nil
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string, args ...interface{}) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate tasks: %w", err)
	}

	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TaskRepository) scanOne(row rowScanner) (*model.Task, error) {
	var t model.Task
	var params string
	var metadata, result sql.NullString
	var stopRequested, pauseRequested int
	var createdAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&t.ID, &t.Type, &t.Status, &t.Progress, &t.CurrentIndex, &t.TotalItems,
		&t.Stats.Success, &t.Stats.Failed, &t.Stats.Skipped,
		&params, &metadata, &result, &t.Error, &t.Message,
		&stopRequested, &pauseRequested,
		&createdAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Params = json.RawMessage(params)
	if metadata.Valid {
		t.Metadata = json.RawMessage(metadata.String)
	}
	if result.Valid {
		t.Result = json.RawMessage(result.String)
	}
	t.StopRequested = stopRequested != 0
	t.PauseRequested = pauseRequested != 0
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0).UTC()
		t.CompletedAt = &ts
	}

	return &t, nil
}
