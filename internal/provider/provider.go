// Package provider abstracts the third-party financial data API the sync
// handlers pull from.
package provider

import (
	"context"

	"github.com/stockd/stockd/internal/model"
)

// Provider is the read-only client for an equity market data source. Calls
// may block on network I/O, use the context for cancellation.
type Provider interface {
	// Symbols returns the full listed-equity universe of the source.
	Symbols(ctx context.Context) ([]model.Symbol, error)
	// DailyBars returns the daily OHLCV bars of a symbol since the given
	// date (inclusive, YYYY-MM-DD, empty means full history).
	DailyBars(ctx context.Context, code, since string) ([]model.PriceBar, error)
	// Industry returns the industry classification of a symbol.
	Industry(ctx context.Context, code string) (string, error)
	// FinancialReport returns one periodic report of a symbol.
	FinancialReport(ctx context.Context, code, period string) (*model.FinancialReport, error)
}
