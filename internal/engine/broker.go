package engine

import (
	"strconv"

	"github.com/shopspring/decimal"

	"backtest_engine/internal/core"
	"backtest_engine/pkg/tradingutils"
)

// The Engine is the broker its strategy trades against. Placement is
// accepted only once the run has entered the trading phase; outside it the
// send methods return no ids and register nothing.

var _ core.Broker = (*Engine)(nil)

func (e *Engine) SendOrder(symbol string, kind core.OrderKind, price decimal.Decimal, volume int64) []string {
	if !e.trading {
		return nil
	}
	direction, offset := kind.Split()

	e.orderSeq++
	order := &core.Order{
		ID:          strconv.FormatInt(e.orderSeq, 10),
		Seq:         e.orderSeq,
		Symbol:      symbol,
		Direction:   direction,
		Offset:      offset,
		Price:       tradingutils.RoundToTick(price, e.cfg.PriceTick),
		TotalVolume: volume,
		Status:      core.StatusSubmitted,
		OrderTime:   e.now,
	}
	e.workingOrders[order.ID] = order
	e.orders[order.ID] = order
	return []string{order.ID}
}

func (e *Engine) CancelOrder(id string) {
	order, ok := e.workingOrders[id]
	if !ok {
		return
	}
	order.Status = core.StatusCancelled
	order.CancelTime = e.now
	e.strategy.OnOrder(order)
	delete(e.workingOrders, id)
}

func (e *Engine) SendStopOrder(symbol string, kind core.OrderKind, price decimal.Decimal, volume int64) []string {
	if !e.trading {
		return nil
	}
	direction, offset := kind.Split()

	e.stopSeq++
	stop := &core.StopOrder{
		ID:        core.StopOrderPrefix + strconv.FormatInt(e.stopSeq, 10),
		Seq:       e.stopSeq,
		Symbol:    symbol,
		Direction: direction,
		Offset:    offset,
		Price:     tradingutils.RoundToTick(price, e.cfg.PriceTick),
		Volume:    volume,
		Status:    core.StopOrderWaiting,
	}
	e.workingStops[stop.ID] = stop
	e.stops[stop.ID] = stop
	e.strategy.OnStopOrder(stop)
	return []string{stop.ID}
}

func (e *Engine) CancelStopOrder(id string) {
	stop, ok := e.workingStops[id]
	if !ok {
		return
	}
	stop.Status = core.StopOrderCancelled
	delete(e.workingStops, id)
	e.strategy.OnStopOrder(stop)
}

// CancelAll withdraws every working order and stop order, oldest first.
func (e *Engine) CancelAll() {
	for _, order := range e.workingOrdersBySeq() {
		e.CancelOrder(order.ID)
	}
	for _, stop := range e.workingStopsBySeq() {
		e.CancelStopOrder(stop.ID)
	}
}

func (e *Engine) Position(symbol string) int64 {
	return e.positions[symbol]
}

// WarmupBars returns the bars loaded ahead of the replay window for
// indicator seeding. The slice is shared; callers must not mutate it.
func (e *Engine) WarmupBars(symbol string) []*core.Bar {
	return e.warmupBars[symbol]
}

func (e *Engine) WarmupTicks(symbol string) []*core.Tick {
	return e.warmupTicks[symbol]
}
