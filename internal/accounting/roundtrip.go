// Package accounting turns the raw trade stream of a replay into realized
// round trips and calendar-day results.
package accounting

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"backtest_engine/internal/core"
)

var two = decimal.NewFromInt(2)

// CostModel carries the contract multiplier and per-trade cost parameters.
// CommissionFn and SlippageFn override the default formulas when set.
type CostModel struct {
	Size     decimal.Decimal // contract multiplier, 1 when unset
	Rate     decimal.Decimal // commission rate applied to turnover
	Slippage decimal.Decimal // cost per unit per leg

	CommissionFn func(turnover, rate decimal.Decimal) decimal.Decimal
	SlippageFn   func(slippage, size decimal.Decimal, volume int64) decimal.Decimal
}

func (c CostModel) contractSize() decimal.Decimal {
	if c.Size.IsZero() {
		return decimal.NewFromInt(1)
	}
	return c.Size
}

// LegTurnover is the single-leg notional of one trade.
func (c CostModel) LegTurnover(price decimal.Decimal, volume int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(volume)).Mul(c.contractSize())
}

// LegCommission prices one leg's commission from its turnover.
func (c CostModel) LegCommission(turnover decimal.Decimal) decimal.Decimal {
	if c.CommissionFn != nil {
		return c.CommissionFn(turnover, c.Rate)
	}
	return turnover.Mul(c.Rate)
}

// LegSlippage prices one leg's slippage cost.
func (c CostModel) LegSlippage(volume int64) decimal.Decimal {
	if c.SlippageFn != nil {
		return c.SlippageFn(c.Slippage, c.contractSize(), volume)
	}
	return c.Slippage.Mul(c.contractSize()).Mul(decimal.NewFromInt(volume))
}

// RoundTrip is one realized entry/exit pair. Volume is signed by the side
// that was closed: positive when long lots were closed, negative for short.
type RoundTrip struct {
	Symbol     string
	EntryPrice decimal.Decimal
	EntryTime  time.Time
	ExitPrice  decimal.Decimal
	ExitTime   time.Time
	Volume     int64
	Turnover   decimal.Decimal
	Commission decimal.Decimal
	Slippage   decimal.Decimal
	Pnl        decimal.Decimal
}

func (c CostModel) newRoundTrip(symbol string, entryPrice decimal.Decimal, entryTime time.Time, exitPrice decimal.Decimal, exitTime time.Time, volume int64) RoundTrip {
	size := c.contractSize()
	absVolume := volume
	if absVolume < 0 {
		absVolume = -absVolume
	}
	abs := decimal.NewFromInt(absVolume)

	turnover := entryPrice.Add(exitPrice).Mul(size).Mul(abs)
	commission := c.LegCommission(turnover)

	var slip decimal.Decimal
	if c.SlippageFn != nil {
		slip = c.SlippageFn(c.Slippage, size, volume)
	} else {
		slip = c.Slippage.Mul(two).Mul(size).Mul(abs)
	}

	pnl := exitPrice.Sub(entryPrice).
		Mul(decimal.NewFromInt(volume)).
		Mul(size).
		Sub(commission).
		Sub(slip)

	return RoundTrip{
		Symbol:     symbol,
		EntryPrice: entryPrice,
		EntryTime:  entryTime,
		ExitPrice:  exitPrice,
		ExitTime:   exitTime,
		Volume:     volume,
		Turnover:   turnover,
		Commission: commission,
		Slippage:   slip,
		Pnl:        pnl,
	}
}

// lot is an open position parcel waiting for an offsetting trade.
type lot struct {
	price     decimal.Decimal
	time      time.Time
	remaining int64
}

type instrumentBook struct {
	longs  []lot
	shorts []lot
}

// Accountant pairs trades into round trips with independent FIFO lot queues
// per instrument. Trades must be fed in emission order.
type Accountant struct {
	cost  CostModel
	books map[string]*instrumentBook
	trips []RoundTrip
}

func NewAccountant(cost CostModel) *Accountant {
	return &Accountant{
		cost:  cost,
		books: make(map[string]*instrumentBook),
	}
}

func (a *Accountant) book(symbol string) *instrumentBook {
	b, ok := a.books[symbol]
	if !ok {
		b = &instrumentBook{}
		a.books[symbol] = b
	}
	return b
}

// OnTrade folds one trade into the instrument's lot queues. A trade first
// consumes opposite-side lots front to back; any remainder opens a new lot
// on its own side.
func (a *Accountant) OnTrade(t *core.Trade) {
	b := a.book(t.Symbol)

	opposite := &b.shorts
	same := &b.longs
	sign := int64(-1) // closing short lots
	if t.Direction == core.DirectionShort {
		opposite = &b.longs
		same = &b.shorts
		sign = 1 // closing long lots
	}

	remaining := t.Volume
	for remaining > 0 && len(*opposite) > 0 {
		head := &(*opposite)[0]
		closed := remaining
		if head.remaining < closed {
			closed = head.remaining
		}
		a.trips = append(a.trips, a.cost.newRoundTrip(
			t.Symbol, head.price, head.time, t.Price, t.Timestamp, sign*closed))
		head.remaining -= closed
		remaining -= closed
		if head.remaining == 0 {
			*opposite = (*opposite)[1:]
		}
	}
	if remaining > 0 {
		*same = append(*same, lot{price: t.Price, time: t.Timestamp, remaining: remaining})
	}
}

// CloseAll force-closes every residual lot against the instrument's final
// mark price at the given time. Instruments with no mark are skipped.
func (a *Accountant) CloseAll(marks map[string]decimal.Decimal, at time.Time) {
	symbols := make([]string, 0, len(a.books))
	for symbol := range a.books {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		mark, ok := marks[symbol]
		if !ok {
			continue
		}
		b := a.books[symbol]
		for _, l := range b.longs {
			a.trips = append(a.trips, a.cost.newRoundTrip(
				symbol, l.price, l.time, mark, at, l.remaining))
		}
		for _, l := range b.shorts {
			a.trips = append(a.trips, a.cost.newRoundTrip(
				symbol, l.price, l.time, mark, at, -l.remaining))
		}
		b.longs = nil
		b.shorts = nil
	}
}

// OpenVolume reports the unclosed lot volume for a symbol, longs positive.
func (a *Accountant) OpenVolume(symbol string) int64 {
	b, ok := a.books[symbol]
	if !ok {
		return 0
	}
	var v int64
	for _, l := range b.longs {
		v += l.remaining
	}
	for _, l := range b.shorts {
		v -= l.remaining
	}
	return v
}

// RoundTrips returns every realized round trip in emission order.
func (a *Accountant) RoundTrips() []RoundTrip {
	return a.trips
}
