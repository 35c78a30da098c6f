package bootstrap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"backtest_engine/internal/accounting"
	"backtest_engine/internal/core"
	"backtest_engine/internal/engine"
	"backtest_engine/internal/feed"
	"backtest_engine/internal/optimize"
	"backtest_engine/internal/store"
	"backtest_engine/internal/strategy"
)

// ReplayConfig maps the data, costs and engine sections onto one replay.
func (a *App) ReplayConfig() (engine.Config, error) {
	mode, err := core.ParseMarketMode(a.Cfg.Data.Mode)
	if err != nil {
		return engine.Config{}, err
	}
	start, end, err := a.Cfg.Data.Window()
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		Mode:      mode,
		Symbols:   a.Cfg.Data.Symbols,
		Start:     start,
		End:       end,
		InitDays:  a.Cfg.Data.InitDays,
		Capital:   decimal.NewFromFloat(a.Cfg.Engine.Capital),
		PriceTick: decimal.NewFromFloat(a.Cfg.Costs.PriceTick),
		Cost: accounting.CostModel{
			Size:     decimal.NewFromFloat(a.Cfg.Costs.Size),
			Rate:     decimal.NewFromFloat(a.Cfg.Costs.Rate),
			Slippage: decimal.NewFromFloat(a.Cfg.Costs.Slippage),
		},
	}, nil
}

// NewProvider builds the configured history source.
func (a *App) NewProvider() (core.HistoryProvider, error) {
	switch strings.ToLower(a.Cfg.Data.Provider) {
	case "memory":
		return feed.NewMemoryProvider(), nil
	case "csv":
		return feed.NewCSVProvider(a.Cfg.Data.CSVDir, a.Logger), nil
	case "binance":
		b := a.Cfg.Data.Binance
		return feed.NewBinanceProvider(feed.BinanceConfig{
			BaseURL:   b.BaseURL,
			Interval:  b.Interval,
			APIKey:    string(b.APIKey),
			SecretKey: string(b.SecretKey),
			RateLimit: b.RateLimit,
		}, a.Logger)
	default:
		return nil, fmt.Errorf("unknown history provider %q", a.Cfg.Data.Provider)
	}
}

// NewStore builds the configured run store.
func (a *App) NewStore() (store.ResultStore, error) {
	switch strings.ToLower(a.Cfg.Store.Driver) {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(a.Cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.Cfg.Store.Driver)
	}
}

// NewStrategy builds the configured strategy for a single run.
func (a *App) NewStrategy() (core.Strategy, error) {
	switch a.Cfg.Strategy.Name {
	case "double_sma":
		return strategy.NewDoubleSMA(a.strategyConfig()), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", a.Cfg.Strategy.Name)
	}
}

// StrategyFactory returns the constructor the optimizer calls once per
// assignment, with the config section as the base the grid overrides.
func (a *App) StrategyFactory() (optimize.StrategyFactory, error) {
	switch a.Cfg.Strategy.Name {
	case "double_sma":
		return strategy.Factory(a.strategyConfig()), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", a.Cfg.Strategy.Name)
	}
}

func (a *App) strategyConfig() strategy.DoubleSMAConfig {
	s := a.Cfg.Strategy
	return strategy.DoubleSMAConfig{
		Symbol:          s.Symbol,
		FastWindow:      s.FastWindow,
		SlowWindow:      s.SlowWindow,
		Volume:          s.Volume,
		StopLossPercent: s.StopLossPercent,
	}
}

// Grid expands the optimizer section into a parameter grid. Names are added
// in sorted order so a study enumerates identically across runs.
func (a *App) Grid() (*optimize.Grid, error) {
	opt := a.Cfg.Optimizer
	if len(opt.Parameters) == 0 {
		return nil, fmt.Errorf("optimizer.parameters is empty")
	}

	names := make([]string, 0, len(opt.Parameters))
	for name := range opt.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	grid := optimize.NewGrid()
	for _, name := range names {
		p := opt.Parameters[name]
		if p.Fixed() {
			grid.Add(name, *p.Value)
			continue
		}
		if err := grid.AddRange(name, p.Start, p.End, p.Step); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
	}
	grid.SetTarget(opt.Target)
	return grid, nil
}
