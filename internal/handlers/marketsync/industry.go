package marketsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/provider"
	"github.com/stockd/stockd/internal/runner"
	"github.com/stockd/stockd/internal/storage"
)

// Classifications change rarely and each item is a single small request, a
// wider cadence than the prices handler is fine here.
const industryCheckpointEvery = 25

// IndustryParams is the input of a sync_industry task.
type IndustryParams struct {
	// Symbols restricts the sync to the given codes. Empty means all.
	Symbols []string `json:"symbols"`
}

// Industry is the handler syncing industry classifications.
type Industry struct {
	provider        provider.Provider
	market          storage.MarketRepository
	logger          log.Logger
	checkpointEvery int
}

// NewIndustry creates a new industry classification sync handler.
func NewIndustry(cfg Config) (*Industry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	every := cfg.CheckpointEvery
	if every <= 0 {
		every = industryCheckpointEvery
	}

	return &Industry{
		provider:        cfg.Provider,
		market:          cfg.Market,
		logger:          cfg.Logger.WithValues(log.Kv{"svc": "marketsync.Industry"}),
		checkpointEvery: every,
	}, nil
}

// Handle runs one sync_industry task to completion, stop or failure.
func (h *Industry) Handle(ctx context.Context, store storage.TaskRepository, taskID string, params json.RawMessage) error {
	var p IndustryParams
	if err := json.Unmarshal(params, &p); err != nil {
		return failTask(ctx, store, taskID, fmt.Sprintf("invalid params: %s", err))
	}

	symbols, err := resolveSymbols(ctx, h.provider, h.market, p.Symbols)
	if err != nil {
		return fmt.Errorf("could not resolve symbols: %w", err)
	}

	res, err := runner.Run(ctx, runner.Config{
		Store:           store,
		TaskID:          taskID,
		TotalItems:      len(symbols),
		CheckpointEvery: h.checkpointEvery,
		Logger:          h.logger,
		ProcessItem: func(ctx context.Context, i int) error {
			code := symbols[i].Code
			industry, err := h.provider.Industry(ctx, code)
			if err != nil {
				return fmt.Errorf("could not fetch industry for %s: %w", code, err)
			}
			if industry == "" {
				return runner.ErrSkipItem
			}
			if err := h.market.SetSymbolIndustry(ctx, code, industry); err != nil {
				return fmt.Errorf("could not store industry for %s: %w", code, err)
			}
			return nil
		},
		Describe: func(done, total int) string {
			return fmt.Sprintf("Classified %d/%d symbols", done, total)
		},
	})
	if err != nil {
		return fmt.Errorf("industry sync run failed: %w", err)
	}
	if res.Stopped {
		return nil
	}

	return completeTask(ctx, store, taskID, syncResult{
		Total:   len(symbols),
		Success: res.Stats.Success,
		Failed:  res.Stats.Failed,
		Skipped: res.Stats.Skipped,
	})
}
