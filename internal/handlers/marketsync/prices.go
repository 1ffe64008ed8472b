package marketsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/provider"
	"github.com/stockd/stockd/internal/runner"
	"github.com/stockd/stockd/internal/storage"
)

// pricesCheckpointEvery is the default save cadence of the prices handler.
// Bars are cheap to refetch, so a coarse interval keeps write overhead low.
const pricesCheckpointEvery = 10

// PricesParams is the input of a sync_prices task.
type PricesParams struct {
	// Symbols restricts the sync to the given codes. Empty means all.
	Symbols []string `json:"symbols"`
	// Since is the first trade date to fetch, YYYY-MM-DD. Empty means the
	// provider's full history.
	Since string `json:"since"`
}

func (p *PricesParams) validate() error {
	if p.Since != "" {
		if _, err := time.Parse("2006-01-02", p.Since); err != nil {
			return fmt.Errorf("invalid since date %q, want YYYY-MM-DD", p.Since)
		}
	}
	return nil
}

// Prices is the handler syncing daily price bars for the symbol universe.
type Prices struct {
	provider        provider.Provider
	market          storage.MarketRepository
	logger          log.Logger
	checkpointEvery int
}

// NewPrices creates a new daily prices sync handler.
func NewPrices(cfg Config) (*Prices, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	every := cfg.CheckpointEvery
	if every <= 0 {
		every = pricesCheckpointEvery
	}

	return &Prices{
		provider:        cfg.Provider,
		market:          cfg.Market,
		logger:          cfg.Logger.WithValues(log.Kv{"svc": "marketsync.Prices"}),
		checkpointEvery: every,
	}, nil
}

// Handle runs one sync_prices task to completion, stop or failure.
func (h *Prices) Handle(ctx context.Context, store storage.TaskRepository, taskID string, params json.RawMessage) error {
	var p PricesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return failTask(ctx, store, taskID, fmt.Sprintf("invalid params: %s", err))
	}
	if err := p.validate(); err != nil {
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
			bars, err := h.provider.DailyBars(ctx, code, p.Since)
			if err != nil {
				return fmt.Errorf("could not fetch bars for %s: %w", code, err)
			}
			if len(bars) == 0 {
				return runner.ErrSkipItem
			}
			if err := h.market.UpsertDailyPrices(ctx, bars); err != nil {
				return fmt.Errorf("could not store bars for %s: %w", code, err)
			}
			return nil
		},
		Describe: func(done, total int) string {
			return fmt.Sprintf("Synced prices for %d/%d symbols", done, total)
		},
	})
	if err != nil {
		return fmt.Errorf("price sync run failed: %w", err)
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
