package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/storage"
)

// Handler is the pluggable unit of work implementing one task type. Handlers
// communicate their outcome through the store (status, progress, stats,
// result, error); a returned error means the run blew up and the dispatch
// boundary moves the task to failed.
type Handler func(ctx context.Context, store storage.TaskRepository, taskID string, params json.RawMessage) error

// Registry maps task types to handlers. It is built at process startup and
// injected into the worker, there is no process-wide registry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds a handler for a task type.
func (r *Registry) Register(taskType string, h Handler) error {
	if taskType == "" {
		return fmt.Errorf("task type is required: %w", model.ErrNotValid)
	}
	if h == nil {
		return fmt.Errorf("handler is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[taskType]; ok {
		return fmt.Errorf("handler for %q: %w", taskType, model.ErrAlreadyExists)
	}
	r.handlers[taskType] = h

	return nil
}

// Get returns the handler registered for a task type.
func (r *Registry) Get(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[taskType]
	return h, ok
}

// Types returns the registered task types sorted by name.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)

	return types
}
