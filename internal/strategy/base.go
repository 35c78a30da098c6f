// Package strategy hosts the strategies shipped with the engine.
package strategy

import "backtest_engine/internal/core"

// Base is a no-op core.Strategy for embedding. Concrete strategies override
// only the callbacks they care about.
type Base struct{}

var _ core.Strategy = Base{}

func (Base) Name() string                 { return "base" }
func (Base) OnInit(core.Broker)           {}
func (Base) OnStart()                     {}
func (Base) OnStop()                      {}
func (Base) OnBar(map[string]*core.Bar)   {}
func (Base) OnTick(map[string]*core.Tick) {}
func (Base) OnOrder(*core.Order)          {}
func (Base) OnTrade(*core.Trade)          {}
func (Base) OnStopOrder(*core.StopOrder)  {}
