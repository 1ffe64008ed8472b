// Package worker implements the polling scheduler of the task engine: it
// claims pending tasks, dispatches each one to its handler in a goroutine,
// recovers orphaned tasks on startup and drains on shutdown.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/storage"
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultMaxConcurrent = 2
	defaultDrainTimeout  = 30 * time.Second

	drainPollInterval = 100 * time.Millisecond
)

// Config is the configuration for the worker.
type Config struct {
	Repository storage.TaskRepository
	Registry   *Registry
	Logger     log.Logger
	// PollInterval is the sleep between poll ticks.
	PollInterval time.Duration
	// MaxConcurrent caps the number of tasks running at once.
	MaxConcurrent int
	// DrainTimeout bounds the wait for running tasks on shutdown. Tasks
	// still alive afterwards are abandoned and recovered by the next
	// process.
	DrainTimeout time.Duration
}

func (c *Config) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "worker.Worker"})
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	return nil
}

// taskRun tracks one dispatched task. done is closed when its goroutine
// exits, however it ended.
type taskRun struct {
	taskID string
	done   chan struct{}
}

func (t *taskRun) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Worker polls the task store for pending tasks and dispatches them to
// registered handlers, bounded by a concurrency ceiling.
type Worker struct {
	repo     storage.TaskRepository
	registry *Registry
	logger   log.Logger
	cfg      Config

	mu      sync.Mutex
	running map[string]*taskRun
}

// New creates a new worker.
func New(cfg Config) (*Worker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		repo:     cfg.Repository,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		cfg:      cfg,
		running:  map[string]*taskRun{},
	}, nil
}

// Run recovers orphaned tasks once, then polls for pending work until the
// context is cancelled, and finally drains. It always returns nil after a
// graceful shutdown attempt.
func (w *Worker) Run(ctx context.Context) error {
	// Handlers get their own context so a shutdown signal doesn't yank
	// in-flight store writes out from under them. It is cancelled only
	// when the drain gives up.
	tasksCtx, tasksCancel := context.WithCancel(context.Background())
	defer tasksCancel()

	w.recoverOrphans(tasksCtx)

	w.logger.Infof("Worker started: poll=%s max-concurrent=%d", w.cfg.PollInterval, w.cfg.MaxConcurrent)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain(tasksCancel)
			return nil
		case <-ticker.C:
			w.tick(tasksCtx)
		}
	}
}

// tick runs one poll iteration: reap finished runs, check capacity, claim at
// most one pending task and dispatch it. Store failures are logged and
// retried on the next tick, they must not take the process down.
func (w *Worker) tick(ctx context.Context) {
	free := w.reap()
	if free <= 0 {
		return
	}

	task, err := w.repo.NextPendingTask(ctx)
	if err != nil {
		w.logger.Errorf("Could not poll for pending tasks: %s", err)
		return
	}
	if task == nil {
		return
	}

	if err := w.claim(ctx, task.ID); err != nil {
		w.logger.Errorf("Could not claim task %s: %s", task.ID, err)
		return
	}

	w.dispatch(ctx, *task)
}

// reap removes finished runs from the tracking set and returns the remaining
// capacity. It runs before every capacity check so exited slots are
// immediately reusable.
func (w *Worker) reap() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, run := range w.running {
		if run.finished() {
			delete(w.running, id)
		}
	}

	return w.cfg.MaxConcurrent - len(w.running)
}

// claim marks a task as running. This update is the exclusion point that
// keeps a task from being dispatched twice.
func (w *Worker) claim(ctx context.Context, taskID string) error {
	running := model.TaskStatusRunning
	msg := "Starting"
	return w.repo.UpdateTask(ctx, taskID, storage.TaskUpdate{Status: &running, Message: &msg})
}

// dispatch spawns the handler goroutine for a claimed task and tracks it.
func (w *Worker) dispatch(ctx context.Context, task model.Task) {
	run := &taskRun{taskID: task.ID, done: make(chan struct{})}

	w.mu.Lock()
	w.running[task.ID] = run
	w.mu.Unlock()

	w.logger.Infof("Dispatching task %s (%s)", task.ID, task.Type)

	go func() {
		defer close(run.done)
		w.runTask(ctx, task)
	}()
}

// runTask executes the handler of a task. Anything escaping the handler,
// error or panic, is converted to a failed task here and never crashes the
// worker.
func (w *Worker) runTask(ctx context.Context, task model.Task) {
	defer func() {
		if r := recover(); r != nil {
			w.failTask(ctx, task.ID, fmt.Sprintf("handler panic: %v", r))
		}
	}()

	handler, ok := w.registry.Get(task.Type)
	if !ok {
		// Configuration error, nothing ran and nothing retries it.
		w.failTask(ctx, task.ID, fmt.Sprintf("unknown task type %q", task.Type))
		return
	}

	err := handler(ctx, w.repo, task.ID, task.Params)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		// Interrupted by shutdown after the drain gave up. The task stays
		// running and becomes the next process's recovery target.
		w.logger.Warningf("Task %s abandoned on shutdown", task.ID)
	default:
		w.failTask(ctx, task.ID, err.Error())
	}
}

func (w *Worker) failTask(ctx context.Context, taskID, cause string) {
	w.logger.Errorf("Task %s failed: %s", taskID, cause)

	failed := model.TaskStatusFailed
	msg := "Task failed"
	err := w.repo.UpdateTask(context.WithoutCancel(ctx), taskID, storage.TaskUpdate{
		Status:  &failed,
		Error:   &cause,
		Message: &msg,
	})
	if err != nil {
		w.logger.Errorf("Could not mark task %s as failed: %s", taskID, err)
	}
}

// recoverOrphans re-dispatches tasks left in running or paused by a previous
// process that died without a graceful shutdown. Handlers find their own
// checkpoints, so recovery is just a re-invocation with the same params.
func (w *Worker) recoverOrphans(ctx context.Context) {
	tasks, err := w.repo.ListUnfinishedTasks(ctx)
	if err != nil {
		w.logger.Errorf("Could not list unfinished tasks for recovery: %s", err)
		return
	}

	for _, task := range tasks {
		w.mu.Lock()
		_, tracked := w.running[task.ID]
		w.mu.Unlock()
		if tracked {
			continue
		}

		if task.Status == model.TaskStatusPaused {
			// The new process has no memory of why it was paused, keep
			// going by default.
			if err := w.repo.ClearPauseRequest(ctx, task.ID); err != nil {
				w.logger.Errorf("Could not clear pause request on recovered task %s: %s", task.ID, err)
				continue
			}
			running := model.TaskStatusRunning
			msg := "Recovered after restart"
			if err := w.repo.UpdateTask(ctx, task.ID, storage.TaskUpdate{Status: &running, Message: &msg}); err != nil {
				w.logger.Errorf("Could not mark recovered task %s as running: %s", task.ID, err)
				continue
			}
		}

		w.logger.Infof("Recovering interrupted task %s (%s)", task.ID, task.Type)
		w.dispatch(ctx, task)
	}
}

// drain waits up to DrainTimeout for running tasks to exit on their own,
// then abandons whatever is left by cancelling the task context.
func (w *Worker) drain(tasksCancel context.CancelFunc) {
	w.logger.Infof("Worker shutting down, draining running tasks")

	deadline := time.Now().Add(w.cfg.DrainTimeout)
	for time.Now().Before(deadline) {
		if w.liveCount() == 0 {
			w.logger.Infof("Worker drained cleanly")
			return
		}
		time.Sleep(drainPollInterval)
	}

	w.logger.Warningf("Drain timeout reached, abandoning %d running tasks", w.liveCount())
	tasksCancel()
}

func (w *Worker) liveCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	live := 0
	for _, run := range w.running {
		if !run.finished() {
			live++
		}
	}

	return live
}

// RunningTasks returns the IDs of the tasks currently tracked as running.
func (w *Worker) RunningTasks() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make([]string, 0, len(w.running))
	for id, run := range w.running {
		if !run.finished() {
			ids = append(ids, id)
		}
	}

	return ids
}
