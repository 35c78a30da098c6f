package strategy

import (
	"github.com/shopspring/decimal"

	"backtest_engine/internal/core"
	"backtest_engine/pkg/tradingutils"
)

// DoubleSMAConfig parameterizes the crossover strategy.
type DoubleSMAConfig struct {
	Symbol     string
	FastWindow int
	SlowWindow int
	Volume     int64
	// StopLossPercent places a protective stop this far from every entry
	// fill. Zero disables stop exits.
	StopLossPercent float64
}

func (c DoubleSMAConfig) withDefaults() DoubleSMAConfig {
	if c.FastWindow <= 0 {
		c.FastWindow = 5
	}
	if c.SlowWindow <= 0 {
		c.SlowWindow = 20
	}
	if c.Volume <= 0 {
		c.Volume = 1
	}
	return c
}

// DoubleSMA trades fast/slow moving-average crossovers: a golden cross goes
// long (covering any short first) and a death cross goes short (selling any
// long first). Warmup bars seed the averages so a cross on the first replay
// bar is already tradable.
type DoubleSMA struct {
	Base

	cfg    DoubleSMAConfig
	broker core.Broker
	closes []float64
	stopID string
}

var _ core.Strategy = (*DoubleSMA)(nil)

func NewDoubleSMA(cfg DoubleSMAConfig) *DoubleSMA {
	return &DoubleSMA{cfg: cfg.withDefaults()}
}

// Factory adapts the strategy to the optimizer: recognized parameters
// (fast, slow, volume, stopLoss) override the base configuration per
// assignment.
func Factory(base DoubleSMAConfig) func(params map[string]float64) core.Strategy {
	return func(params map[string]float64) core.Strategy {
		cfg := base
		if v, ok := params["fast"]; ok {
			cfg.FastWindow = int(v)
		}
		if v, ok := params["slow"]; ok {
			cfg.SlowWindow = int(v)
		}
		if v, ok := params["volume"]; ok {
			cfg.Volume = int64(v)
		}
		if v, ok := params["stopLoss"]; ok {
			cfg.StopLossPercent = v
		}
		return NewDoubleSMA(cfg)
	}
}

func (s *DoubleSMA) Name() string { return "double_sma" }

func (s *DoubleSMA) OnInit(b core.Broker) {
	s.broker = b
	for _, bar := range b.WarmupBars(s.cfg.Symbol) {
		s.closes = append(s.closes, bar.Close.InexactFloat64())
	}
}

func (s *DoubleSMA) OnBar(snapshot map[string]*core.Bar) {
	bar, ok := snapshot[s.cfg.Symbol]
	if !ok {
		return
	}
	s.closes = append(s.closes, bar.Close.InexactFloat64())

	// one extra sample so the previous averages exist for cross detection
	if len(s.closes) <= s.cfg.SlowWindow {
		return
	}

	fast, slow := s.averages(0)
	prevFast, prevSlow := s.averages(1)
	crossOver := fast > slow && prevFast <= prevSlow
	crossBelow := fast < slow && prevFast >= prevSlow
	if !crossOver && !crossBelow {
		return
	}

	pos := s.broker.Position(s.cfg.Symbol)
	price := bar.Close
	if crossOver {
		if pos < 0 {
			s.broker.SendOrder(s.cfg.Symbol, core.OrderCover, price, -pos)
		}
		if pos <= 0 {
			s.broker.SendOrder(s.cfg.Symbol, core.OrderBuy, price, s.cfg.Volume)
		}
		return
	}
	if pos > 0 {
		s.broker.SendOrder(s.cfg.Symbol, core.OrderSell, price, pos)
	}
	if pos >= 0 {
		s.broker.SendOrder(s.cfg.Symbol, core.OrderShort, price, s.cfg.Volume)
	}
}

// OnTrade maintains the protective stop: every fill clears the previous
// stop, and every entry fill arms a fresh one around its own price.
func (s *DoubleSMA) OnTrade(trade *core.Trade) {
	if s.cfg.StopLossPercent <= 0 || trade.Symbol != s.cfg.Symbol {
		return
	}

	if s.stopID != "" {
		s.broker.CancelStopOrder(s.stopID)
		s.stopID = ""
	}
	if trade.Offset != core.OffsetOpen {
		return
	}

	offset := trade.Price.Mul(decimal.NewFromFloat(s.cfg.StopLossPercent / 100))
	var ids []string
	if trade.Direction == core.DirectionLong {
		ids = s.broker.SendStopOrder(s.cfg.Symbol, core.OrderSell, trade.Price.Sub(offset), trade.Volume)
	} else {
		ids = s.broker.SendStopOrder(s.cfg.Symbol, core.OrderCover, trade.Price.Add(offset), trade.Volume)
	}
	if len(ids) > 0 {
		s.stopID = ids[0]
	}
}

// averages returns the fast and slow simple moving averages ending `back`
// bars before the latest close.
func (s *DoubleSMA) averages(back int) (fast, slow float64) {
	end := len(s.closes) - back
	fast = tradingutils.Mean(s.closes[end-s.cfg.FastWindow : end])
	slow = tradingutils.Mean(s.closes[end-s.cfg.SlowWindow : end])
	return fast, slow
}
