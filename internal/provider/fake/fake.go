// Package fake provides an in-memory Provider implementation for tests and
// offline development.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/stockd/stockd/internal/model"
)

// Provider is a configurable fake data source. Zero value is usable.
type Provider struct {
	mu sync.Mutex

	SymbolList []model.Symbol
	Bars       map[string][]model.PriceBar       // keyed by code
	Industries map[string]string                 // keyed by code
	Reports    map[string]model.FinancialReport  // keyed by code/period
	FailCodes  map[string]bool                   // calls for these codes fail

	barCalls int
}

// Symbols returns the configured symbol universe.
func (p *Provider) Symbols(ctx context.Context) ([]model.Symbol, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]model.Symbol{}, p.SymbolList...), nil
}

// DailyBars returns the configured bars for a code.
func (p *Provider) DailyBars(ctx context.Context, code, since string) ([]model.PriceBar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.barCalls++
	if p.FailCodes[code] {
		return nil, fmt.Errorf("fake provider failure for %s", code)
	}

	return append([]model.PriceBar{}, p.Bars[code]...), nil
}

// Industry returns the configured industry for a code.
func (p *Provider) Industry(ctx context.Context, code string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailCodes[code] {
		return "", fmt.Errorf("fake provider failure for %s", code)
	}

	return p.Industries[code], nil
}

// FinancialReport returns the configured report for a code and period.
func (p *Provider) FinancialReport(ctx context.Context, code, period string) (*model.FinancialReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailCodes[code] {
		return nil, fmt.Errorf("fake provider failure for %s", code)
	}

	r, ok := p.Reports[code+"/"+period]
	if !ok {
		return nil, fmt.Errorf("no report for %s/%s", code, period)
	}

	return &r, nil
}

// BarCalls returns how many times DailyBars was called.
func (p *Provider) BarCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.barCalls
}
