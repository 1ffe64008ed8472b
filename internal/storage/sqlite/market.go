package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
)

// MarketRepositoryConfig is the configuration for the SQLite market repository.
type MarketRepositoryConfig struct {
	DB     *sql.DB
	Logger log.Logger
}

func (c *MarketRepositoryConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.MarketRepository"})
	return nil
}

// MarketRepository is a SQLite implementation of storage.MarketRepository.
type MarketRepository struct {
	db     *sql.DB
	logger log.Logger
}

// NewMarketRepository creates a new SQLite market repository.
func NewMarketRepository(cfg MarketRepositoryConfig) (*MarketRepository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &MarketRepository{
		db:     cfg.DB,
		logger: cfg.Logger,
	}, nil
}

// UpsertSymbols inserts or updates the given symbols in one transaction.
func (r *MarketRepository) UpsertSymbols(ctx context.Context, symbols []model.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO symbols (code, name, industry, exchange)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			exchange = excluded.exchange
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range symbols {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid symbol: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, s.Code, s.Name, s.Industry, s.Exchange); err != nil {
			return fmt.Errorf("could not upsert symbol %s: %w", s.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Upserted %d symbols", len(symbols))
	return nil
}

// ListSymbols returns all known symbols ordered by code.
func (r *MarketRepository) ListSymbols(ctx context.Context) ([]model.Symbol, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, name, industry, exchange FROM symbols ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("could not query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []model.Symbol
	for rows.Next() {
		var s model.Symbol
		if err := rows.Scan(&s.Code, &s.Name, &s.Industry, &s.Exchange); err != nil {
			return nil, fmt.Errorf("could not scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate symbols: %w", err)
	}

	return symbols, nil
}

// SetSymbolIndustry updates the industry classification of a symbol.
func (r *MarketRepository) SetSymbolIndustry(ctx context.Context, code, industry string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE symbols SET industry = ? WHERE code = ?`, industry, code)
	if err != nil {
		return fmt.Errorf("could not update symbol industry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("symbol %s: %w", code, model.ErrNotFound)
	}

	return nil
}

// UpsertDailyPrices inserts or overwrites daily bars in one transaction.
func (r *MarketRepository) UpsertDailyPrices(ctx context.Context, bars []model.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO daily_prices (code, trade_date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, trade_date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("invalid price bar: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, b.Code, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("could not upsert price bar %s/%s: %w", b.Code, b.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// UpsertFinancialReport inserts or overwrites one financial report.
func (r *MarketRepository) UpsertFinancialReport(ctx context.Context, report model.FinancialReport) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("invalid report: %w", err)
	}

	query := `
		INSERT INTO financial_reports (code, period, revenue, net_income, eps)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (code, period) DO UPDATE SET
			revenue = excluded.revenue,
			net_income = excluded.net_income,
			eps = excluded.eps
	`
	if _, err := r.db.ExecContext(ctx, query, report.Code, report.Period, report.Revenue, report.NetIncome, report.EPS); err != nil {
		return fmt.Errorf("could not upsert report %s/%s: %w", report.Code, report.Period, err)
	}

	return nil
}
