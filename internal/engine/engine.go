// Package engine replays historical market data through a simulated
// exchange and a strategy, producing trade-level and daily results. One
// Engine value runs one replay; counters and working sets are never shared.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"backtest_engine/internal/accounting"
	"backtest_engine/internal/core"
	"backtest_engine/internal/replay"
	"backtest_engine/internal/stats"
	apperrors "backtest_engine/pkg/errors"
	"backtest_engine/pkg/telemetry"
)

// Config is the runtime configuration of one replay.
type Config struct {
	Mode      core.MarketMode
	Symbols   []string
	Start     time.Time
	End       time.Time
	InitDays  int
	Capital   decimal.Decimal
	PriceTick decimal.Decimal
	Cost      accounting.CostModel
}

// RunReport bundles everything a finished replay produced.
type RunReport struct {
	Metrics    *stats.Metrics
	Days       []stats.DayStats
	Summary    *accounting.Summary
	RoundTrips []accounting.RoundTrip
	Trades     []*core.Trade
}

// Engine drives one replay. It implements core.Broker for the strategy it
// hosts. Not safe for concurrent use; the run is strictly sequential.
type Engine struct {
	cfg      Config
	provider core.HistoryProvider
	strategy core.Strategy
	logger   core.ILogger

	now     time.Time
	trading bool

	currentBars  map[string]*core.Bar
	currentTicks map[string]*core.Tick
	lastBars     map[string]*core.Bar
	lastTicks    map[string]*core.Tick
	warmupBars   map[string][]*core.Bar
	warmupTicks  map[string][]*core.Tick

	orderSeq int64
	stopSeq  int64
	tradeSeq int64

	workingOrders map[string]*core.Order
	orders        map[string]*core.Order
	workingStops  map[string]*core.StopOrder
	stops         map[string]*core.StopOrder

	trades    []*core.Trade
	positions map[string]int64

	accountant *accounting.Accountant
	ledger     *accounting.DailyLedger

	progress func(done, total int)
}

func New(cfg Config, provider core.HistoryProvider, strategy core.Strategy, logger core.ILogger) *Engine {
	return &Engine{
		cfg:           cfg,
		provider:      provider,
		strategy:      strategy,
		logger:        logger,
		currentBars:   make(map[string]*core.Bar),
		currentTicks:  make(map[string]*core.Tick),
		lastBars:      make(map[string]*core.Bar),
		lastTicks:     make(map[string]*core.Tick),
		warmupBars:    make(map[string][]*core.Bar),
		warmupTicks:   make(map[string][]*core.Tick),
		workingOrders: make(map[string]*core.Order),
		orders:        make(map[string]*core.Order),
		workingStops:  make(map[string]*core.StopOrder),
		stops:         make(map[string]*core.StopOrder),
		positions:     make(map[string]int64),
		accountant:    accounting.NewAccountant(cfg.Cost),
		ledger:        accounting.NewDailyLedger(cfg.Cost),
	}
}

// SetProgress installs a callback invoked after every joint snapshot with
// the number of records consumed and the total.
func (e *Engine) SetProgress(fn func(done, total int)) {
	e.progress = fn
}

// Run replays the configured window and returns the report. A run with no
// fills returns ErrNoTrades.
func (e *Engine) Run(ctx context.Context) (*RunReport, error) {
	started := time.Now()
	telemetry.RunsTotal.Inc()

	report, err := e.run(ctx)
	telemetry.RunDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		telemetry.RunFailuresTotal.Inc()
		return nil, err
	}
	e.logger.Info("replay finished",
		"strategy", e.strategy.Name(),
		"trades", len(e.trades),
		"orders", len(e.orders),
		"totalNetPnl", report.Metrics.TotalNetPnl,
		"sharpeRatio", report.Metrics.SharpeRatio,
		"duration", time.Since(started).String(),
	)
	return report, nil
}

func (e *Engine) run(ctx context.Context) (*RunReport, error) {
	if len(e.cfg.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured: %w", apperrors.ErrNoData)
	}
	if !e.cfg.Start.Before(e.cfg.End) {
		return nil, fmt.Errorf("window %s..%s: %w", e.cfg.Start, e.cfg.End, apperrors.ErrInvalidRange)
	}

	e.logger.Info("starting replay",
		"strategy", e.strategy.Name(),
		"mode", e.cfg.Mode.String(),
		"symbols", e.cfg.Symbols,
		"start", e.cfg.Start.Format(time.RFC3339),
		"end", e.cfg.End.Format(time.RFC3339),
	)

	switch e.cfg.Mode {
	case core.BarMode:
		if err := e.replayBars(ctx); err != nil {
			return nil, err
		}
	case core.TickMode:
		if err := e.replayTicks(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("market mode %q: %w", e.cfg.Mode, apperrors.ErrBadInterval)
	}

	e.strategy.OnStop()
	telemetry.TradesTotal.Add(float64(len(e.trades)))

	return e.report()
}

func (e *Engine) warmupStart() time.Time {
	return e.cfg.Start.Add(-time.Duration(e.cfg.InitDays) * 24 * time.Hour)
}

func (e *Engine) replayBars(ctx context.Context) error {
	series, err := loadSeries(ctx, e.cfg.Symbols, func(ctx context.Context, symbol string) ([]*core.Bar, error) {
		return e.provider.Bars(ctx, symbol, e.warmupStart(), e.cfg.End)
	})
	if err != nil {
		return err
	}

	replaySeries := make(map[string][]*core.Bar, len(series))
	for symbol, bars := range series {
		cut := 0
		for cut < len(bars) && bars[cut].Datetime.Before(e.cfg.Start) {
			cut++
		}
		e.warmupBars[symbol] = bars[:cut]
		replaySeries[symbol] = bars[cut:]
	}

	stream := replay.NewBarSynchronizer(replaySeries)
	if stream.Total() == 0 {
		return fmt.Errorf("no bars in %s..%s: %w", e.cfg.Start, e.cfg.End, apperrors.ErrNoData)
	}
	e.logger.Info("bars loaded", "records", stream.Total(), "symbols", len(replaySeries))

	e.strategy.OnInit(e)
	e.trading = true
	e.strategy.OnStart()

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("replay interrupted: %w", err)
		}
		snapshot, ok := stream.Next()
		if !ok {
			return nil
		}
		e.playBars(snapshot)
		if e.progress != nil {
			e.progress(stream.Consumed(), stream.Total())
		}
	}
}

func (e *Engine) replayTicks(ctx context.Context) error {
	series, err := loadSeries(ctx, e.cfg.Symbols, func(ctx context.Context, symbol string) ([]*core.Tick, error) {
		return e.provider.Ticks(ctx, symbol, e.warmupStart(), e.cfg.End)
	})
	if err != nil {
		return err
	}

	replaySeries := make(map[string][]*core.Tick, len(series))
	for symbol, ticks := range series {
		cut := 0
		for cut < len(ticks) && ticks[cut].Datetime.Before(e.cfg.Start) {
			cut++
		}
		e.warmupTicks[symbol] = ticks[:cut]
		replaySeries[symbol] = ticks[cut:]
	}

	stream := replay.NewTickSynchronizer(replaySeries)
	if stream.Total() == 0 {
		return fmt.Errorf("no ticks in %s..%s: %w", e.cfg.Start, e.cfg.End, apperrors.ErrNoData)
	}
	e.logger.Info("ticks loaded", "records", stream.Total(), "symbols", len(replaySeries))

	e.strategy.OnInit(e)
	e.trading = true
	e.strategy.OnStart()

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("replay interrupted: %w", err)
		}
		snapshot, ok := stream.Next()
		if !ok {
			return nil
		}
		e.playTicks(snapshot)
		if e.progress != nil {
			e.progress(stream.Consumed(), stream.Total())
		}
	}
}

func loadSeries[T any](ctx context.Context, symbols []string, fetch func(context.Context, string) ([]T, error)) (map[string][]T, error) {
	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	series := make(map[string][]T, len(symbols))
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			records, err := fetch(ctx, symbol)
			if err != nil {
				return fmt.Errorf("load history for %s: %w", symbol, err)
			}
			mu.Lock()
			series[symbol] = records
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return series, nil
}

// playBars processes one joint bar snapshot: settle resting orders, then
// stop orders, then hand the snapshot to the strategy, then mark closes.
func (e *Engine) playBars(snapshot map[string]*core.Bar) {
	e.currentBars = snapshot
	for symbol, bar := range snapshot {
		e.lastBars[symbol] = bar
		e.now = bar.Datetime
	}

	e.crossLimitOrders()
	e.crossStopOrders()
	e.strategy.OnBar(snapshot)

	for symbol, bar := range snapshot {
		e.ledger.MarkClose(symbol, bar.Datetime, bar.Close)
	}
}

func (e *Engine) playTicks(snapshot map[string]*core.Tick) {
	e.currentTicks = snapshot
	for symbol, tick := range snapshot {
		e.lastTicks[symbol] = tick
		e.now = tick.Datetime
	}

	e.crossLimitOrders()
	e.crossStopOrders()
	e.strategy.OnTick(snapshot)

	for symbol, tick := range snapshot {
		e.ledger.MarkClose(symbol, tick.Datetime, tick.LastPrice)
	}
}

// finalMarks returns the last seen price per symbol, used to force-close
// residual lots when the replay ends.
func (e *Engine) finalMarks() map[string]decimal.Decimal {
	marks := make(map[string]decimal.Decimal)
	if e.cfg.Mode == core.TickMode {
		for symbol, tick := range e.lastTicks {
			marks[symbol] = tick.LastPrice
		}
		return marks
	}
	for symbol, bar := range e.lastBars {
		marks[symbol] = bar.Close
	}
	return marks
}

func (e *Engine) report() (*RunReport, error) {
	if len(e.trades) == 0 {
		return nil, apperrors.ErrNoTrades
	}

	e.accountant.CloseAll(e.finalMarks(), e.now)
	trips := e.accountant.RoundTrips()

	summary, err := accounting.Summarize(trips)
	if err != nil {
		return nil, err
	}

	metrics, days, err := stats.Calculate(e.ledger.Settle(), e.cfg.Capital.InexactFloat64())
	if err != nil {
		return nil, err
	}

	return &RunReport{
		Metrics:    metrics,
		Days:       days,
		Summary:    summary,
		RoundTrips: trips,
		Trades:     e.trades,
	}, nil
}
