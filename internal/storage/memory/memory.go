package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/storage"
)

// TaskRepositoryConfig is the configuration for the memory task repository.
type TaskRepositoryConfig struct {
	Logger log.Logger
}

func (c *TaskRepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// TaskRepository is an in-memory implementation of storage.TaskRepository.
// Mainly used on tests.
type TaskRepository struct {
	tasks       map[string]model.Task
	checkpoints map[string]model.Checkpoint
	order       []string // task IDs in creation order
	mu          sync.RWMutex
	logger      log.Logger
}

// NewTaskRepository creates a new memory task repository.
func NewTaskRepository(cfg TaskRepositoryConfig) (*TaskRepository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &TaskRepository{
		tasks:       map[string]model.Task{},
		checkpoints: map[string]model.Checkpoint{},
		logger:      cfg.Logger,
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

	r.mu.Lock()
	defer r.mu.Unlock()

	taskID := ulid.Make().String()
	r.tasks[taskID] = model.Task{
		ID:        taskID,
		Type:      taskType,
		Status:    model.TaskStatusPending,
		Params:    params,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	r.order = append(r.order, taskID)

	r.logger.Debugf("Created task %s (%s)", taskID, taskType)
	return taskID, nil
}

// GetTask retrieves a task by ID.
func (r *TaskRepository) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	taskCopy := task
	return &taskCopy, nil
}

// UpdateTask merges the given fields into the task. No-op on missing tasks
// and on status changes for tasks already in a terminal state.
func (r *TaskRepository) UpdateTask(ctx context.Context, taskID string, update storage.TaskUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil
	}

	if update.Status != nil {
		if task.Status.IsTerminal() {
			return nil
		}
		task.Status = *update.Status
		if update.Status.IsTerminal() {
			now := time.Now().UTC()
			task.CompletedAt = &now
		}
	}
	if update.Progress != nil {
		task.Progress = *update.Progress
	}
	if update.CurrentIndex != nil {
		task.CurrentIndex = *update.CurrentIndex
	}
	if update.TotalItems != nil {
		task.TotalItems = *update.TotalItems
	}
	if update.Message != nil {
		task.Message = *update.Message
	}
	if update.Error != nil {
		task.Error = *update.Error
	}
	if update.Result != nil {
		task.Result = update.Result
	}

	r.tasks[taskID] = task
	return nil
}

// ListTasks returns tasks ordered by creation time descending.
func (r *TaskRepository) ListTasks(ctx context.Context, status *model.TaskStatus, limit int) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tasks []model.Task
	for i := len(r.order) - 1; i >= 0; i-- {
		task, ok := r.tasks[r.order[i]]
		if !ok {
			continue
		}
		if status != nil && task.Status != *status {
			continue
		}
		tasks = append(tasks, task)
		if limit > 0 && len(tasks) >= limit {
			break
		}
	}

	return tasks, nil
}

// NextPendingTask returns the oldest pending task, or nil when none.
func (r *TaskRepository) NextPendingTask(ctx context.Context) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		task, ok := r.tasks[id]
		if !ok || task.Status != model.TaskStatusPending {
			continue
		}
		taskCopy := task
		return &taskCopy, nil
	}

	return nil, nil
}

// DeleteTask removes the task and its checkpoint. Idempotent.
func (r *TaskRepository) DeleteTask(ctx context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tasks, taskID)
	delete(r.checkpoints, taskID)

	return nil
}

// SaveCheckpoint creates or overwrites the checkpoint of a task.
func (r *TaskRepository) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp.UpdatedAt = time.Now().UTC()
	r.checkpoints[cp.TaskID] = cp

	return nil
}

// LoadCheckpoint returns the checkpoint of a task, or nil when none exists.
func (r *TaskRepository) LoadCheckpoint(ctx context.Context, taskID string) (*model.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp, ok := r.checkpoints[taskID]
	if !ok {
		return nil, nil
	}

	cpCopy := cp
	return &cpCopy, nil
}

// DeleteCheckpoint removes the checkpoint of a task. Idempotent.
func (r *TaskRepository) DeleteCheckpoint(ctx context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.checkpoints, taskID)

	return nil
}

// IncrementStats atomically adds delta to one of the task counters.
func (r *TaskRepository) IncrementStats(ctx context.Context, taskID string, key model.StatKey, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil
	}

	switch key {
	case model.StatSuccess:
		task.Stats.Success += delta
	case model.StatFailed:
		task.Stats.Failed += delta
	case model.StatSkipped:
		task.Stats.Skipped += delta
	default:
		return fmt.Errorf("unknown stat key %q: %w", key, model.ErrNotValid)
	}

	r.tasks[taskID] = task
	return nil
}

// ResetStats overwrites all task counters with the given snapshot.
func (r *TaskRepository) ResetStats(ctx context.Context, taskID string, stats model.TaskStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil
	}

	task.Stats = stats
	r.tasks[taskID] = task
	return nil
}

// RequestStop raises the stop flag, stopping pending tasks directly.
func (r *TaskRepository) RequestStop(ctx context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	if task.Status == model.TaskStatusPending {
		now := time.Now().UTC()
		task.Status = model.TaskStatusStopped
		task.Message = "Stopped before start"
		task.CompletedAt = &now
	} else {
		task.StopRequested = true
	}

	r.tasks[taskID] = task
	return nil
}

// RequestPause raises the pause flag.
func (r *TaskRepository) RequestPause(ctx context.Context, taskID string) error {
	return r.setFlag(taskID, func(t *model.Task) { t.PauseRequested = true })
}

// IsStopRequested checks the stop flag.
func (r *TaskRepository) IsStopRequested(ctx context.Context, taskID string) (bool, error) {
	return r.getFlag(taskID, func(t model.Task) bool { return t.StopRequested })
}

// IsPauseRequested checks the pause flag.
func (r *TaskRepository) IsPauseRequested(ctx context.Context, taskID string) (bool, error) {
	return r.getFlag(taskID, func(t model.Task) bool { return t.PauseRequested })
}

// ClearStopRequest lowers the stop flag.
func (r *TaskRepository) ClearStopRequest(ctx context.Context, taskID string) error {
	return r.setFlag(taskID, func(t *model.Task) { t.StopRequested = false })
}

// ClearPauseRequest lowers the pause flag.
func (r *TaskRepository) ClearPauseRequest(ctx context.Context, taskID string) error {
	return r.setFlag(taskID, func(t *model.Task) { t.PauseRequested = false })
}

// ResumeTask clears the pause flag and flips a paused task back to running.
func (r *TaskRepository) ResumeTask(ctx context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok || task.Status != model.TaskStatusPaused {
		return fmt.Errorf("task %s is not paused: %w", taskID, model.ErrNotValid)
	}

	task.Status = model.TaskStatusRunning
	task.PauseRequested = false
	r.tasks[taskID] = task

	return nil
}

// HasActiveTask returns the oldest running or paused task, or nil.
func (r *TaskRepository) HasActiveTask(ctx context.Context) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		task, ok := r.tasks[id]
		if !ok {
			continue
		}
		if task.Status == model.TaskStatusRunning || task.Status == model.TaskStatusPaused {
			taskCopy := task
			return &taskCopy, nil
		}
	}

	return nil, nil
}

// ListUnfinishedTasks returns all running and paused tasks in creation order.
func (r *TaskRepository) ListUnfinishedTasks(ctx context.Context) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tasks []model.Task
	for _, id := range r.order {
		task, ok := r.tasks[id]
		if !ok {
			continue
		}
		if task.Status == model.TaskStatusRunning || task.Status == model.TaskStatusPaused {
			tasks = append(tasks, task)
		}
	}

	return tasks, nil
}

func (r *TaskRepository) setFlag(taskID string, set func(*model.Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	set(&task)
	r.tasks[taskID] = task
	return nil
}

func (r *TaskRepository) getFlag(taskID string, get func(model.Task) bool) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return false, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	return get(task), nil
}

// MarketRepository is an in-memory implementation of storage.MarketRepository.
type MarketRepository struct {
	symbols map[string]model.Symbol
	prices  map[string]model.PriceBar       // keyed by code/date
	reports map[string]model.FinancialReport // keyed by code/period
	mu      sync.RWMutex
}

// NewMarketRepository creates a new memory market repository.
func NewMarketRepository() *MarketRepository {
	return &MarketRepository{
		symbols: map[string]model.Symbol{},
		prices:  map[string]model.PriceBar{},
		reports: map[string]model.FinancialReport{},
	}
}

// UpsertSymbols inserts or updates the given symbols. The industry field is
// owned by SetSymbolIndustry and preserved on update.
func (r *MarketRepository) UpsertSymbols(ctx context.Context, symbols []model.Symbol) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range symbols {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid symbol: %w", err)
		}
		if existing, ok := r.symbols[s.Code]; ok && s.Industry == "" {
			s.Industry = existing.Industry
		}
		r.symbols[s.Code] = s
	}

	return nil
}

// ListSymbols returns all known symbols ordered by code.
func (r *MarketRepository) ListSymbols(ctx context.Context) ([]model.Symbol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]model.Symbol, 0, len(r.symbols))
	for _, s := range r.symbols {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Code < symbols[j].Code })

	return symbols, nil
}

// SetSymbolIndustry updates the industry classification of a symbol.
func (r *MarketRepository) SetSymbolIndustry(ctx context.Context, code, industry string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.symbols[code]
	if !ok {
		return fmt.Errorf("symbol %s: %w", code, model.ErrNotFound)
	}

	s.Industry = industry
	r.symbols[code] = s
	return nil
}

// UpsertDailyPrices inserts or overwrites daily bars.
func (r *MarketRepository) UpsertDailyPrices(ctx context.Context, bars []model.PriceBar) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("invalid price bar: %w", err)
		}
		r.prices[b.Code+"/"+b.Date] = b
	}

	return nil
}

// UpsertFinancialReport inserts or overwrites one financial report.
func (r *MarketRepository) UpsertFinancialReport(ctx context.Context, report model.FinancialReport) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("invalid report: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports[report.Code+"/"+report.Period] = report
	return nil
}

// PriceCount returns the number of stored bars. Test helper.
func (r *MarketRepository) PriceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.prices)
}

// ReportCount returns the number of stored reports. Test helper.
func (r *MarketRepository) ReportCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.reports)
}
