// Package runner implements the resumable iteration loop shared by all task
// handlers: checkpoint load/save, cooperative stop/pause handling and
// per-item stat accounting.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/storage"
)

// ErrSkipItem can be returned by ProcessItem to count the item as skipped
// instead of succeeded or failed.
var ErrSkipItem = errors.New("item skipped")

const (
	defaultCheckpointEvery   = 10
	defaultPausePollInterval = 200 * time.Millisecond
)

// Config is the configuration of one checkpointed iteration run.
type Config struct {
	Store      storage.TaskRepository
	TaskID     string
	TotalItems int
	// Stage discriminates checkpoints of multi-phase handlers. A loaded
	// checkpoint with a different stage is ignored.
	Stage string
	// CheckpointEvery is the save cadence in items. The tradeoff against
	// write overhead is a per-handler decision, the default is 10.
	CheckpointEvery   int
	PausePollInterval time.Duration
	Logger            log.Logger
	// ProcessItem handles one item of the iteration space. A nil return
	// counts as success, ErrSkipItem as skipped, any other error as a
	// transient per-item failure that does not abort the run.
	ProcessItem func(ctx context.Context, index int) error
	// Describe renders the progress message for the given 1-based position.
	// Optional.
	Describe func(processed, total int) string
}

func (c *Config) defaults() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	if c.ProcessItem == nil {
		return fmt.Errorf("process item func is required")
	}
	if c.TotalItems < 0 {
		return fmt.Errorf("total items must not be negative")
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = defaultCheckpointEvery
	}
	if c.PausePollInterval <= 0 {
		c.PausePollInterval = defaultPausePollInterval
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "runner", "task-id": c.TaskID})
	if c.Describe == nil {
		c.Describe = func(processed, total int) string {
			return fmt.Sprintf("Processed %d/%d items", processed, total)
		}
	}
	return nil
}

// Result is the outcome of one iteration run.
type Result struct {
	// Stopped is true when the run honored a stop request. The runner has
	// already checkpointed and moved the task to stopped.
	Stopped bool
	// Processed is the number of items handled by this run.
	Processed int
	// Stats are the accumulated counters as of the end of the run,
	// including counts restored from a checkpoint.
	Stats model.TaskStats
}

// Run executes the iteration space of a task with checkpoint/resume and
// cooperative stop/pause semantics. Control flags are only polled between
// items, a single oversized item cannot be interrupted.
//
// On context cancellation the run checkpoints its position, leaves the task
// status untouched (the next process recovers it) and returns the context
// error.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store := cfg.Store
	taskID := cfg.TaskID

	start := 0
	stats := model.TaskStats{}

	cp, err := store.LoadCheckpoint(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not load checkpoint: %w", err)
	}
	if cp != nil && cp.Stage == cfg.Stage && cp.CurrentIndex <= cfg.TotalItems {
		start = cp.CurrentIndex
		stats = cp.Stats
		// Roll the persisted counters back to the snapshot so re-processed
		// items are not double counted.
		if err := store.ResetStats(ctx, taskID, stats); err != nil {
			return nil, fmt.Errorf("could not reset stats from checkpoint: %w", err)
		}
		cfg.Logger.Infof("Resuming from checkpoint at item %d/%d", start, cfg.TotalItems)
	}

	if err := store.UpdateTask(ctx, taskID, storage.TaskUpdate{
		TotalItems:   &cfg.TotalItems,
		CurrentIndex: &start,
		Progress:     intPtr(progress(start, cfg.TotalItems)),
	}); err != nil {
		return nil, fmt.Errorf("could not update task: %w", err)
	}

	result := Result{Stats: stats}

	for i := start; i < cfg.TotalItems; i++ {
		if ctx.Err() != nil {
			return nil, interrupt(ctx, cfg, i, stats)
		}

		stop, err := store.IsStopRequested(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("could not check stop request: %w", err)
		}
		if !stop {
			paused, err := store.IsPauseRequested(ctx, taskID)
			if err != nil {
				return nil, fmt.Errorf("could not check pause request: %w", err)
			}
			if paused {
				stop, err = waitWhilePaused(ctx, cfg, i, stats)
				if err != nil {
					return nil, err
				}
			}
		}
		if stop {
			if err := honorStop(ctx, cfg, i, stats); err != nil {
				return nil, err
			}
			result.Stopped = true
			return &result, nil
		}

		switch err := cfg.ProcessItem(ctx, i); {
		case err == nil:
			stats.Success++
			if err := store.IncrementStats(ctx, taskID, model.StatSuccess, 1); err != nil {
				return nil, fmt.Errorf("could not increment stats: %w", err)
			}
		case errors.Is(err, ErrSkipItem):
			stats.Skipped++
			if err := store.IncrementStats(ctx, taskID, model.StatSkipped, 1); err != nil {
				return nil, fmt.Errorf("could not increment stats: %w", err)
			}
		default:
			// Per-item failures don't abort the run.
			stats.Failed++
			cfg.Logger.Warningf("Item %d failed: %s", i, err)
			if err := store.IncrementStats(ctx, taskID, model.StatFailed, 1); err != nil {
				return nil, fmt.Errorf("could not increment stats: %w", err)
			}
		}
		result.Processed++

		done := i + 1
		msg := cfg.Describe(done, cfg.TotalItems)
		if err := store.UpdateTask(ctx, taskID, storage.TaskUpdate{
			CurrentIndex: &done,
			Progress:     intPtr(progress(done, cfg.TotalItems)),
			Message:      &msg,
		}); err != nil {
			return nil, fmt.Errorf("could not update task progress: %w", err)
		}

		if (done-start)%cfg.CheckpointEvery == 0 && done < cfg.TotalItems {
			if err := saveCheckpoint(ctx, cfg, done, stats); err != nil {
				return nil, err
			}
		}
	}

	// Leftover checkpoints after a successful run are a defect, delete
	// unconditionally.
	if err := store.DeleteCheckpoint(ctx, taskID); err != nil {
		return nil, fmt.Errorf("could not delete checkpoint: %w", err)
	}

	result.Stats = stats
	return &result, nil
}

// waitWhilePaused parks the run until the pause flag clears or a stop is
// requested. Returns true when the wait ended because of a stop, stop takes
// precedence over staying paused.
func waitWhilePaused(ctx context.Context, cfg Config, index int, stats model.TaskStats) (stopped bool, err error) {
	store := cfg.Store
	paused := model.TaskStatusPaused
	msg := fmt.Sprintf("Paused at item %d/%d", index, cfg.TotalItems)
	if err := store.UpdateTask(ctx, cfg.TaskID, storage.TaskUpdate{Status: &paused, Message: &msg}); err != nil {
		return false, fmt.Errorf("could not pause task: %w", err)
	}
	// Keep a checkpoint around while parked, a paused process may die too.
	if err := saveCheckpoint(ctx, cfg, index, stats); err != nil {
		return false, err
	}

	cfg.Logger.Infof("Task paused at item %d/%d", index, cfg.TotalItems)

	for {
		select {
		case <-ctx.Done():
			return false, interrupt(ctx, cfg, index, stats)
		case <-time.After(cfg.PausePollInterval):
		}

		stop, err := store.IsStopRequested(ctx, cfg.TaskID)
		if err != nil {
			return false, fmt.Errorf("could not check stop request: %w", err)
		}
		if stop {
			return true, nil
		}

		stillPaused, err := store.IsPauseRequested(ctx, cfg.TaskID)
		if err != nil {
			return false, fmt.Errorf("could not check pause request: %w", err)
		}
		if !stillPaused {
			running := model.TaskStatusRunning
			msg := fmt.Sprintf("Resumed at item %d/%d", index, cfg.TotalItems)
			if err := store.UpdateTask(ctx, cfg.TaskID, storage.TaskUpdate{Status: &running, Message: &msg}); err != nil {
				return false, fmt.Errorf("could not resume task: %w", err)
			}
			cfg.Logger.Infof("Task resumed at item %d/%d", index, cfg.TotalItems)
			return false, nil
		}
	}
}

// honorStop checkpoints the current position, moves the task to stopped and
// clears both control flags.
func honorStop(ctx context.Context, cfg Config, index int, stats model.TaskStats) error {
	store := cfg.Store

	if err := saveCheckpoint(ctx, cfg, index, stats); err != nil {
		return err
	}

	stopped := model.TaskStatusStopped
	msg := fmt.Sprintf("Stopped at item %d/%d", index, cfg.TotalItems)
	if err := store.UpdateTask(ctx, cfg.TaskID, storage.TaskUpdate{Status: &stopped, Message: &msg}); err != nil {
		return fmt.Errorf("could not stop task: %w", err)
	}
	if err := store.ClearStopRequest(ctx, cfg.TaskID); err != nil {
		return fmt.Errorf("could not clear stop request: %w", err)
	}
	if err := store.ClearPauseRequest(ctx, cfg.TaskID); err != nil {
		return fmt.Errorf("could not clear pause request: %w", err)
	}

	cfg.Logger.Infof("Task stopped at item %d/%d", index, cfg.TotalItems)
	return nil
}

// interrupt checkpoints the position on context cancellation. The task status
// is left as is so the next process picks it up on startup recovery.
func interrupt(ctx context.Context, cfg Config, index int, stats model.TaskStats) error {
	// The run context is already cancelled, the checkpoint write must
	// still go through.
	saveCtx := context.WithoutCancel(ctx)
	if err := saveCheckpoint(saveCtx, cfg, index, stats); err != nil {
		cfg.Logger.Errorf("Could not checkpoint on interruption: %s", err)
	}

	return ctx.Err()
}

func saveCheckpoint(ctx context.Context, cfg Config, index int, stats model.TaskStats) error {
	err := cfg.Store.SaveCheckpoint(ctx, model.Checkpoint{
		TaskID:       cfg.TaskID,
		CurrentIndex: index,
		Stats:        stats,
		Stage:        cfg.Stage,
	})
	if err != nil {
		return fmt.Errorf("could not save checkpoint: %w", err)
	}

	return nil
}

func progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

func intPtr(v int) *int { return &v }
