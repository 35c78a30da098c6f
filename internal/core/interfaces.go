// Package core defines the shared data model and interfaces for the backtesting system
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// HistoryProvider supplies ordered historical market data, pre-filtered to
// the requested window. Implementations must return records sorted by
// ascending datetime.
type HistoryProvider interface {
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]*Bar, error)
	Ticks(ctx context.Context, symbol string, start, end time.Time) ([]*Tick, error)
}

// Strategy receives lifecycle and market events from the replay pipeline.
// Callbacks run on the replay goroutine, one event at a time.
type Strategy interface {
	Name() string
	OnInit(broker Broker)
	OnStart()
	OnStop()
	OnBar(snapshot map[string]*Bar)
	OnTick(snapshot map[string]*Tick)
	OnOrder(order *Order)
	OnTrade(trade *Trade)
	OnStopOrder(stopOrder *StopOrder)
}

// Broker is the order placement surface exposed to a strategy. Placement
// calls are accepted only during the trading phase of the run; outside it
// they return no ids and have no effect.
type Broker interface {
	SendOrder(symbol string, kind OrderKind, price decimal.Decimal, volume int64) []string
	CancelOrder(orderID string)
	SendStopOrder(symbol string, kind OrderKind, price decimal.Decimal, volume int64) []string
	CancelStopOrder(stopOrderID string)
	CancelAll()
	Position(symbol string) int64
	WarmupBars(symbol string) []*Bar
	WarmupTicks(symbol string) []*Tick
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
