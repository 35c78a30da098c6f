package engine

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"backtest_engine/internal/core"
)

// Both crossing passes walk the working sets in ascending submission
// sequence so that trade ids come out identical run after run. Orders whose
// instrument is absent from the current snapshot are left untouched.

func (e *Engine) workingOrdersBySeq() []*core.Order {
	orders := make([]*core.Order, 0, len(e.workingOrders))
	for _, order := range e.workingOrders {
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })
	return orders
}

func (e *Engine) workingStopsBySeq() []*core.StopOrder {
	stops := make([]*core.StopOrder, 0, len(e.workingStops))
	for _, stop := range e.workingStops {
		stops = append(stops, stop)
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i].Seq < stops[j].Seq })
	return stops
}

// limitCrossPrices resolves the crossing and best prices for a resting
// order's instrument. In bar mode a buy crosses against the low and settles
// no better than the open; in tick mode both sides cross against the
// touch.
func (e *Engine) limitCrossPrices(symbol string) (buyCross, sellCross, buyBest, sellBest decimal.Decimal, ok bool) {
	if e.cfg.Mode == core.TickMode {
		tick, found := e.currentTicks[symbol]
		if !found {
			return
		}
		return tick.AskPrice1, tick.BidPrice1, tick.AskPrice1, tick.BidPrice1, true
	}
	bar, found := e.currentBars[symbol]
	if !found {
		return
	}
	return bar.Low, bar.High, bar.Open, bar.Open, true
}

// stopCrossPrices resolves the trigger and best prices for a stop order's
// instrument. In bar mode a long stop arms against the high and a short
// against the low.
func (e *Engine) stopCrossPrices(symbol string) (buyCross, sellCross, best decimal.Decimal, ok bool) {
	if e.cfg.Mode == core.TickMode {
		tick, found := e.currentTicks[symbol]
		if !found {
			return
		}
		return tick.LastPrice, tick.LastPrice, tick.LastPrice, true
	}
	bar, found := e.currentBars[symbol]
	if !found {
		return
	}
	return bar.High, bar.Low, bar.Open, true
}

func (e *Engine) crossLimitOrders() {
	for _, order := range e.workingOrdersBySeq() {
		if _, live := e.workingOrders[order.ID]; !live {
			continue // cancelled by a callback earlier in this pass
		}
		buyCross, sellCross, buyBest, sellBest, ok := e.limitCrossPrices(order.Symbol)
		if !ok {
			continue
		}

		if order.Status == core.StatusSubmitted {
			order.Status = core.StatusNotTraded
			e.strategy.OnOrder(order)
		}

		buyCrossed := order.Direction == core.DirectionLong &&
			order.Price.GreaterThanOrEqual(buyCross) &&
			buyCross.IsPositive()
		sellCrossed := order.Direction == core.DirectionShort &&
			order.Price.LessThanOrEqual(sellCross) &&
			sellCross.IsPositive()
		if !buyCrossed && !sellCrossed {
			continue
		}

		var fill decimal.Decimal
		if buyCrossed {
			fill = decimal.Min(order.Price, buyBest)
		} else {
			fill = decimal.Max(order.Price, sellBest)
		}

		trade := e.emitTrade(order.ID, order.Symbol, order.Direction, order.Offset, fill, order.TotalVolume)
		e.strategy.OnTrade(trade)

		order.TradedVolume = order.TotalVolume
		order.Status = core.StatusAllTraded
		e.strategy.OnOrder(order)
		delete(e.workingOrders, order.ID)
	}
}

func (e *Engine) crossStopOrders() {
	for _, stop := range e.workingStopsBySeq() {
		if _, live := e.workingStops[stop.ID]; !live {
			continue
		}
		buyCross, sellCross, best, ok := e.stopCrossPrices(stop.Symbol)
		if !ok {
			continue
		}

		buyTriggered := stop.Direction == core.DirectionLong &&
			stop.Price.LessThanOrEqual(buyCross)
		sellTriggered := stop.Direction == core.DirectionShort &&
			stop.Price.GreaterThanOrEqual(sellCross)
		if !buyTriggered && !sellTriggered {
			continue
		}

		stop.Status = core.StopOrderTriggered
		delete(e.workingStops, stop.ID)

		var fill decimal.Decimal
		if buyTriggered {
			fill = decimal.Max(best, stop.Price)
		} else {
			fill = decimal.Min(best, stop.Price)
		}

		// the trade id is allocated before the synthesized order's id
		trade := e.emitTrade("", stop.Symbol, stop.Direction, stop.Offset, fill, stop.Volume)

		e.orderSeq++
		order := &core.Order{
			ID:           strconv.FormatInt(e.orderSeq, 10),
			Seq:          e.orderSeq,
			Symbol:       stop.Symbol,
			Direction:    stop.Direction,
			Offset:       stop.Offset,
			Price:        stop.Price,
			TotalVolume:  stop.Volume,
			TradedVolume: stop.Volume,
			Status:       core.StatusAllTraded,
			OrderTime:    e.now,
		}
		e.orders[order.ID] = order
		trade.OrderID = order.ID

		e.strategy.OnStopOrder(stop)
		e.strategy.OnOrder(order)
		e.strategy.OnTrade(trade)
	}
}

// emitTrade mutates the position, registers the trade with the books and
// returns it. Callbacks are the caller's responsibility so each pass keeps
// its own event order.
func (e *Engine) emitTrade(orderID, symbol string, direction core.Direction, offset core.Offset, price decimal.Decimal, volume int64) *core.Trade {
	e.tradeSeq++
	trade := &core.Trade{
		ID:        strconv.FormatInt(e.tradeSeq, 10),
		OrderID:   orderID,
		Symbol:    symbol,
		Direction: direction,
		Offset:    offset,
		Price:     price,
		Volume:    volume,
		Timestamp: e.now,
	}

	if direction == core.DirectionLong {
		e.positions[symbol] += volume
	} else {
		e.positions[symbol] -= volume
	}

	e.trades = append(e.trades, trade)
	e.accountant.OnTrade(trade)
	e.ledger.AddTrade(trade)
	return trade
}
