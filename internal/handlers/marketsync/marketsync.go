// Package marketsync implements the data synchronization task handlers:
// daily prices, industry classification and financial reports.
package marketsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/provider"
	"github.com/stockd/stockd/internal/storage"
	"github.com/stockd/stockd/internal/worker"
)

// Task types handled by this package.
const (
	TaskTypePrices   = "sync_prices"
	TaskTypeIndustry = "sync_industry"
	TaskTypeReports  = "sync_reports"
)

// Config is the shared configuration of the market sync handlers.
type Config struct {
	Provider provider.Provider
	Market   storage.MarketRepository
	Logger   log.Logger
	// CheckpointEvery overrides the per-handler checkpoint cadences when
	// greater than zero.
	CheckpointEvery int
}

func (c *Config) defaults() error {
	if c.Provider == nil {
		return fmt.Errorf("provider is required")
	}
	if c.Market == nil {
		return fmt.Errorf("market repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

// Register wires all market sync handlers into a registry.
func Register(reg *worker.Registry, cfg Config) error {
	prices, err := NewPrices(cfg)
	if err != nil {
		return fmt.Errorf("could not create prices handler: %w", err)
	}
	industry, err := NewIndustry(cfg)
	if err != nil {
		return fmt.Errorf("could not create industry handler: %w", err)
	}
	reports, err := NewReports(cfg)
	if err != nil {
		return fmt.Errorf("could not create reports handler: %w", err)
	}

	for taskType, h := range map[string]worker.Handler{
		TaskTypePrices:   prices.Handle,
		TaskTypeIndustry: industry.Handle,
		TaskTypeReports:  reports.Handle,
	} {
		if err := reg.Register(taskType, h); err != nil {
			return fmt.Errorf("could not register %q: %w", taskType, err)
		}
	}

	return nil
}

// resolveSymbols turns the optional symbol list of a task's params into the
// concrete iteration space. An empty list means the whole known universe,
// fetched from the provider when the local table is still empty.
func resolveSymbols(ctx context.Context, p provider.Provider, market storage.MarketRepository, requested []string) ([]model.Symbol, error) {
	if len(requested) > 0 {
		symbols := make([]model.Symbol, 0, len(requested))
		for _, code := range requested {
			symbols = append(symbols, model.Symbol{Code: code})
		}
		return symbols, nil
	}

	symbols, err := market.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list symbols: %w", err)
	}
	if len(symbols) > 0 {
		return symbols, nil
	}

	symbols, err = p.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch symbol universe: %w", err)
	}
	if err := market.UpsertSymbols(ctx, symbols); err != nil {
		return nil, fmt.Errorf("could not store symbol universe: %w", err)
	}

	return symbols, nil
}

// failTask marks a task failed with a descriptive cause. Used for fail-fast
// param validation, configuration errors never bubble as handler errors.
func failTask(ctx context.Context, store storage.TaskRepository, taskID, cause string) error {
	failed := model.TaskStatusFailed
	msg := "Task failed"
	err := store.UpdateTask(ctx, taskID, storage.TaskUpdate{
		Status:  &failed,
		Error:   &cause,
		Message: &msg,
	})
	if err != nil {
		return fmt.Errorf("could not mark task as failed: %w", err)
	}

	return nil
}

// syncResult is the terminal result payload of every sync handler.
type syncResult struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// completeTask finalizes a successful run: result payload, full progress and
// completed status. The runner already deleted the checkpoint.
func completeTask(ctx context.Context, store storage.TaskRepository, taskID string, res syncResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("could not marshal result: %w", err)
	}

	completed := model.TaskStatusCompleted
	progress := 100
	msg := fmt.Sprintf("Completed: %d ok, %d failed, %d skipped", res.Success, res.Failed, res.Skipped)
	err = store.UpdateTask(ctx, taskID, storage.TaskUpdate{
		Status:   &completed,
		Progress: &progress,
		Message:  &msg,
		Result:   payload,
	})
	if err != nil {
		return fmt.Errorf("could not mark task as completed: %w", err)
	}

	return nil
}
