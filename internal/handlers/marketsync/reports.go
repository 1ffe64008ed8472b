package marketsync

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/provider"
	"github.com/stockd/stockd/internal/runner"
	"github.com/stockd/stockd/internal/storage"
)

// Report fetches are the slowest provider calls, checkpoint tighter so an
// interruption loses little work.
const reportsCheckpointEvery = 5

var periodRegexp = regexp.MustCompile(`^\d{4}Q[1-4]$`)

// ReportsParams is the input of a sync_reports task.
type ReportsParams struct {
	// Period is the report period to fetch, e.g. "2026Q2". Required.
	Period string `json:"period"`
	// Symbols restricts the sync to the given codes. Empty means all.
	Symbols []string `json:"symbols"`
}

func (p *ReportsParams) validate() error {
	if p.Period == "" {
		return fmt.Errorf("period is required")
	}
	if !periodRegexp.MatchString(p.Period) {
		return fmt.Errorf("invalid period %q, want YYYYQn", p.Period)
	}
	return nil
}

// Reports is the handler syncing periodic financial reports.
type Reports struct {
	provider        provider.Provider
	market          storage.MarketRepository
	logger          log.Logger
	checkpointEvery int
}

// NewReports creates a new financial reports sync handler.
func NewReports(cfg Config) (*Reports, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	every := cfg.CheckpointEvery
	if every <= 0 {
		every = reportsCheckpointEvery
	}

	return &Reports{
		provider:        cfg.Provider,
		market:          cfg.Market,
		logger:          cfg.Logger.WithValues(log.Kv{"svc": "marketsync.Reports"}),
		checkpointEvery: every,
	}, nil
}

// Handle runs one sync_reports task to completion, stop or failure.
func (h *Reports) Handle(ctx context.Context, store storage.TaskRepository, taskID string, params json.RawMessage) error {
	var p ReportsParams
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
		Stage:           p.Period,
		CheckpointEvery: h.checkpointEvery,
		Logger:          h.logger,
		ProcessItem: func(ctx context.Context, i int) error {
			code := symbols[i].Code
			report, err := h.provider.FinancialReport(ctx, code, p.Period)
			if err != nil {
				return fmt.Errorf("could not fetch report for %s: %w", code, err)
			}
			if err := h.market.UpsertFinancialReport(ctx, *report); err != nil {
				return fmt.Errorf("could not store report for %s: %w", code, err)
			}
			return nil
		},
		Describe: func(done, total int) string {
			return fmt.Sprintf("Synced %s reports for %d/%d symbols", p.Period, done, total)
		},
	})
	if err != nil {
		return fmt.Errorf("report sync run failed: %w", err)
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
