package model

import "fmt"

// Symbol is one listed equity known to the system.
type Symbol struct {
	Code     string // exchange-qualified code, e.g. "600519.SH"
	Name     string
	Industry string
	Exchange string
}

// Validate validates a symbol record.
func (s *Symbol) Validate() error {
	if s.Code == "" {
		return fmt.Errorf("symbol code is required: %w", ErrNotValid)
	}
	return nil
}

// PriceBar is one daily OHLCV bar for a symbol.
type PriceBar struct {
	Code   string
	Date   string // trade date in YYYY-MM-DD
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Validate validates a price bar.
func (b *PriceBar) Validate() error {
	if b.Code == "" {
		return fmt.Errorf("price bar symbol code is required: %w", ErrNotValid)
	}
	if b.Date == "" {
		return fmt.Errorf("price bar date is required: %w", ErrNotValid)
	}
	return nil
}

// FinancialReport is one periodic financial report snapshot for a symbol.
type FinancialReport struct {
	Code      string
	Period    string // report period, e.g. "2026Q2"
	Revenue   float64
	NetIncome float64
	EPS       float64
}

// Validate validates a financial report.
func (r *FinancialReport) Validate() error {
	if r.Code == "" {
		return fmt.Errorf("report symbol code is required: %w", ErrNotValid)
	}
	if r.Period == "" {
		return fmt.Errorf("report period is required: %w", ErrNotValid)
	}
	return nil
}
