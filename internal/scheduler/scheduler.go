// Package scheduler enqueues recurring sync tasks on cron expressions.
// It only submits pending tasks, execution stays with the worker.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/storage"
)

// Schedule is a single recurring task submission.
type Schedule struct {
	Name     string
	Cron     string
	TaskType string
	Params   json.RawMessage
}

// Config is the configuration for the scheduler.
type Config struct {
	Repository storage.TaskRepository
	Schedules  []Schedule
	Logger     log.Logger
}

func (c *Config) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	for _, s := range c.Schedules {
		if s.Cron == "" || s.TaskType == "" {
			return fmt.Errorf("schedule %q needs a cron expression and a task type", s.Name)
		}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "scheduler.Scheduler"})
	return nil
}

// Scheduler submits tasks on a cron timetable.
type Scheduler struct {
	repo   storage.TaskRepository
	cron   *cron.Cron
	logger log.Logger
}

// New creates a new scheduler with all schedules registered.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Scheduler{
		repo:   cfg.Repository,
		cron:   cron.New(),
		logger: cfg.Logger,
	}

	for _, sch := range cfg.Schedules {
		sch := sch
		_, err := s.cron.AddFunc(sch.Cron, func() { s.enqueue(sch) })
		if err != nil {
			return nil, fmt.Errorf("could not register schedule %q: %w", sch.Name, err)
		}
		s.logger.Infof("Registered schedule %q (%s) for %s", sch.Name, sch.Cron, sch.TaskType)
	}

	return s, nil
}

// Run starts the cron timetable and blocks until the context is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// enqueue submits a schedule's task unless one of the same type is already
// queued or in flight, overlapping syncs of the same kind are pointless.
func (s *Scheduler) enqueue(sch Schedule) {
	ctx := context.Background()
	logger := s.logger.WithValues(log.Kv{"schedule": sch.Name, "task-type": sch.TaskType})

	live, err := s.hasLiveOfType(ctx, sch.TaskType)
	if err != nil {
		logger.Errorf("Could not check live tasks: %s", err)
		return
	}
	if live {
		logger.Warningf("Skipping schedule, a %s task is already queued or active", sch.TaskType)
		return
	}

	taskID, err := s.repo.CreateTask(ctx, sch.TaskType, sch.Params, nil)
	if err != nil {
		logger.Errorf("Could not enqueue task: %s", err)
		return
	}

	logger.Infof("Enqueued task %s", taskID)
}

func (s *Scheduler) hasLiveOfType(ctx context.Context, taskType string) (bool, error) {
	unfinished, err := s.repo.ListUnfinishedTasks(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range unfinished {
		if t.Type == taskType {
			return true, nil
		}
	}

	pending := model.TaskStatusPending
	queued, err := s.repo.ListTasks(ctx, &pending, 0)
	if err != nil {
		return false, err
	}
	for _, t := range queued {
		if t.Type == taskType {
			return true, nil
		}
	}

	return false, nil
}
