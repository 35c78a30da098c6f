// Package feed implements core.HistoryProvider over in-memory series, CSV
// files and Binance klines.
package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"backtest_engine/internal/core"
	apperrors "backtest_engine/pkg/errors"
)

// MemoryProvider serves pre-loaded series. Used by tests and by callers
// that assemble data themselves.
type MemoryProvider struct {
	bars  map[string][]*core.Bar
	ticks map[string][]*core.Tick
}

var _ core.HistoryProvider = (*MemoryProvider)(nil)

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		bars:  make(map[string][]*core.Bar),
		ticks: make(map[string][]*core.Tick),
	}
}

// AddBars registers bars for a symbol, keeping the series time-ordered.
func (p *MemoryProvider) AddBars(symbol string, bars ...*core.Bar) {
	p.bars[symbol] = append(p.bars[symbol], bars...)
	sort.SliceStable(p.bars[symbol], func(i, j int) bool {
		return p.bars[symbol][i].Datetime.Before(p.bars[symbol][j].Datetime)
	})
}

// AddTicks registers ticks for a symbol, keeping the series time-ordered.
func (p *MemoryProvider) AddTicks(symbol string, ticks ...*core.Tick) {
	p.ticks[symbol] = append(p.ticks[symbol], ticks...)
	sort.SliceStable(p.ticks[symbol], func(i, j int) bool {
		return p.ticks[symbol][i].Datetime.Before(p.ticks[symbol][j].Datetime)
	})
}

// Bars returns the symbol's bars with start <= datetime <= end.
func (p *MemoryProvider) Bars(ctx context.Context, symbol string, start, end time.Time) ([]*core.Bar, error) {
	series, ok := p.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("bars for %s: %w", symbol, apperrors.ErrUnknownSymbol)
	}
	return window(series, start, end, func(b *core.Bar) time.Time { return b.Datetime }), nil
}

// Ticks returns the symbol's ticks with start <= datetime <= end.
func (p *MemoryProvider) Ticks(ctx context.Context, symbol string, start, end time.Time) ([]*core.Tick, error) {
	series, ok := p.ticks[symbol]
	if !ok {
		return nil, fmt.Errorf("ticks for %s: %w", symbol, apperrors.ErrUnknownSymbol)
	}
	return window(series, start, end, func(t *core.Tick) time.Time { return t.Datetime }), nil
}

func window[T any](series []T, start, end time.Time, at func(T) time.Time) []T {
	out := make([]T, 0, len(series))
	for _, record := range series {
		ts := at(record)
		if ts.Before(start) || ts.After(end) {
			continue
		}
		out = append(out, record)
	}
	return out
}
