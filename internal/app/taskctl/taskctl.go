// Package taskctl implements the producer/consumer use cases over the task
// store: everything an API or CLI needs to create, inspect and control
// tasks while the worker runs them.
package taskctl

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/storage"
)

// ServiceConfig is the configuration for the task control service.
type ServiceConfig struct {
	Repository storage.TaskRepository
	// KnownTypes optionally restricts task creation to registered types so
	// typos fail at submission instead of at dispatch. Empty disables the
	// check (the producer and the worker may run in different processes).
	KnownTypes []string
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.TaskCtl"})
	return nil
}

// Service handles task submission and control business logic.
type Service struct {
	repo       storage.TaskRepository
	knownTypes map[string]bool
	logger     log.Logger
}

// NewService creates a new task control service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var known map[string]bool
	if len(cfg.KnownTypes) > 0 {
		known = make(map[string]bool, len(cfg.KnownTypes))
		for _, t := range cfg.KnownTypes {
			known[t] = true
		}
	}

	return &Service{
		repo:       cfg.Repository,
		knownTypes: known,
		logger:     cfg.Logger,
	}, nil
}

// Create submits a new pending task and returns it.
func (s *Service) Create(ctx context.Context, taskType string, params, metadata json.RawMessage) (*model.Task, error) {
	if taskType == "" {
		return nil, fmt.Errorf("task type is required: %w", model.ErrNotValid)
	}
	if s.knownTypes != nil && !s.knownTypes[taskType] {
		return nil, fmt.Errorf("unknown task type %q: %w", taskType, model.ErrNotValid)
	}
	if params != nil && !json.Valid(params) {
		return nil, fmt.Errorf("params must be valid JSON: %w", model.ErrNotValid)
	}
	if metadata != nil && !json.Valid(metadata) {
		return nil, fmt.Errorf("metadata must be valid JSON: %w", model.ErrNotValid)
	}

	taskID, err := s.repo.CreateTask(ctx, taskType, params, metadata)
	if err != nil {
		return nil, fmt.Errorf("could not create task: %w", err)
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not read back created task: %w", err)
	}

	s.logger.Infof("Created task %s (%s)", taskID, taskType)
	return task, nil
}

// Get returns a task by ID.
func (s *Service) Get(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	return task, nil
}

// GetCheckpoint returns the checkpoint of a task, or nil when none exists.
func (s *Service) GetCheckpoint(ctx context.Context, taskID string) (*model.Checkpoint, error) {
	cp, err := s.repo.LoadCheckpoint(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not load checkpoint: %w", err)
	}

	return cp, nil
}

// List returns tasks ordered by creation time descending.
func (s *Service) List(ctx context.Context, status *model.TaskStatus, limit int) ([]model.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	return tasks, nil
}

// Stop requests a cooperative stop. Pending tasks stop immediately, running
// ones at the next iteration boundary.
func (s *Service) Stop(ctx context.Context, taskID string) error {
	if err := s.repo.RequestStop(ctx, taskID); err != nil {
		return fmt.Errorf("could not request stop: %w", err)
	}

	s.logger.Infof("Requested stop for task %s", taskID)
	return nil
}

// Pause requests a cooperative pause on a running task.
func (s *Service) Pause(ctx context.Context, taskID string) error {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}
	if task.Status != model.TaskStatusRunning {
		return fmt.Errorf("task %s is not running: %w", taskID, model.ErrNotValid)
	}

	if err := s.repo.RequestPause(ctx, taskID); err != nil {
		return fmt.Errorf("could not request pause: %w", err)
	}

	s.logger.Infof("Requested pause for task %s", taskID)
	return nil
}

// Resume clears a pause and sets a paused task back to running.
func (s *Service) Resume(ctx context.Context, taskID string) error {
	if err := s.repo.ResumeTask(ctx, taskID); err != nil {
		return fmt.Errorf("could not resume task: %w", err)
	}

	s.logger.Infof("Resumed task %s", taskID)
	return nil
}

// Delete removes a task, its checkpoint and its control flags. Live tasks
// cannot be deleted, stop them first.
func (s *Service) Delete(ctx context.Context, taskID string) error {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}
	if task.Status == model.TaskStatusRunning || task.Status == model.TaskStatusPaused {
		return fmt.Errorf("task %s is still active: %w", taskID, model.ErrNotValid)
	}

	if err := s.repo.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("could not delete task: %w", err)
	}

	s.logger.Infof("Deleted task %s", taskID)
	return nil
}
