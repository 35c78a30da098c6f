package feed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"backtest_engine/internal/core"
	apperrors "backtest_engine/pkg/errors"
)

// csvTime parses the datetime column. Exported history is RFC3339; the two
// fallback layouts cover hand-edited fixtures.
type csvTime struct{ time.Time }

var csvTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func (t *csvTime) UnmarshalCSV(field string) error {
	field = strings.TrimSpace(field)
	for _, layout := range csvTimeLayouts {
		if parsed, err := time.Parse(layout, field); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable datetime %q", field)
}

// csvDecimal decodes numeric cells; an empty cell stays zero.
type csvDecimal struct{ decimal.Decimal }

func (d *csvDecimal) UnmarshalCSV(field string) error {
	field = strings.TrimSpace(field)
	if field == "" {
		d.Decimal = decimal.Decimal{}
		return nil
	}
	parsed, err := decimal.NewFromString(field)
	if err != nil {
		return err
	}
	d.Decimal = parsed
	return nil
}

type csvBarRow struct {
	Datetime     csvTime    `csv:"datetime"`
	Open         csvDecimal `csv:"open"`
	High         csvDecimal `csv:"high"`
	Low          csvDecimal `csv:"low"`
	Close        csvDecimal `csv:"close"`
	Volume       csvDecimal `csv:"volume"`
	OpenInterest csvDecimal `csv:"open_interest"`
}

type csvTickRow struct {
	Datetime     csvTime    `csv:"datetime"`
	LastPrice    csvDecimal `csv:"last_price"`
	BidPrice     csvDecimal `csv:"bid_price"`
	AskPrice     csvDecimal `csv:"ask_price"`
	Volume       csvDecimal `csv:"volume"`
	OpenInterest csvDecimal `csv:"open_interest"`
}

// CSVProvider serves history from per-symbol files under one directory:
// bars from <symbol>.csv, ticks from <symbol>.ticks.csv. Files are parsed
// once and cached, so repeated optimizer assignments do not reread them.
type CSVProvider struct {
	dir    string
	logger core.ILogger

	mu    sync.Mutex
	bars  map[string][]*core.Bar
	ticks map[string][]*core.Tick
}

var _ core.HistoryProvider = (*CSVProvider)(nil)

func NewCSVProvider(dir string, logger core.ILogger) *CSVProvider {
	return &CSVProvider{
		dir:    dir,
		logger: logger.WithField("component", "csv_feed"),
		bars:   make(map[string][]*core.Bar),
		ticks:  make(map[string][]*core.Tick),
	}
}

func (p *CSVProvider) Bars(ctx context.Context, symbol string, start, end time.Time) ([]*core.Bar, error) {
	series, err := p.loadBars(symbol)
	if err != nil {
		return nil, err
	}
	return window(series, start, end, func(b *core.Bar) time.Time { return b.Datetime }), nil
}

func (p *CSVProvider) Ticks(ctx context.Context, symbol string, start, end time.Time) ([]*core.Tick, error) {
	series, err := p.loadTicks(symbol)
	if err != nil {
		return nil, err
	}
	return window(series, start, end, func(t *core.Tick) time.Time { return t.Datetime }), nil
}

func (p *CSVProvider) loadBars(symbol string) ([]*core.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.bars[symbol]; ok {
		return cached, nil
	}

	path := filepath.Join(p.dir, symbol+".csv")
	rows, err := readRows[csvBarRow](symbol, path)
	if err != nil {
		return nil, err
	}

	bars := make([]*core.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, &core.Bar{
			Symbol:       symbol,
			Datetime:     row.Datetime.Time,
			Open:         row.Open.Decimal,
			High:         row.High.Decimal,
			Low:          row.Low.Decimal,
			Close:        row.Close.Decimal,
			Volume:       row.Volume.Decimal,
			OpenInterest: row.OpenInterest.Decimal,
		})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Datetime.Before(bars[j].Datetime) })

	p.logger.Debug("bar file loaded", "symbol", symbol, "path", path, "rows", len(bars))
	p.bars[symbol] = bars
	return bars, nil
}

func (p *CSVProvider) loadTicks(symbol string) ([]*core.Tick, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.ticks[symbol]; ok {
		return cached, nil
	}

	path := filepath.Join(p.dir, symbol+".ticks.csv")
	rows, err := readRows[csvTickRow](symbol, path)
	if err != nil {
		return nil, err
	}

	ticks := make([]*core.Tick, 0, len(rows))
	for _, row := range rows {
		ticks = append(ticks, &core.Tick{
			Symbol:       symbol,
			Datetime:     row.Datetime.Time,
			LastPrice:    row.LastPrice.Decimal,
			BidPrice1:    row.BidPrice.Decimal,
			AskPrice1:    row.AskPrice.Decimal,
			Volume:       row.Volume.Decimal,
			OpenInterest: row.OpenInterest.Decimal,
		})
	}
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Datetime.Before(ticks[j].Datetime) })

	p.logger.Debug("tick file loaded", "symbol", symbol, "path", path, "rows", len(ticks))
	p.ticks[symbol] = ticks
	return ticks, nil
}

func readRows[T any](symbol, path string) ([]*T, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no history file %s: %w", path, apperrors.ErrUnknownSymbol)
	}
	if err != nil {
		return nil, fmt.Errorf("open history for %s: %w", symbol, err)
	}
	defer f.Close()

	var rows []*T
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}
