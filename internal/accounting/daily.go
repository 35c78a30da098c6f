package accounting

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"backtest_engine/internal/core"
)

// DailyResult is one instrument's settlement for one calendar date.
type DailyResult struct {
	Date          time.Time
	ClosePrice    decimal.Decimal
	PreviousClose decimal.Decimal
	OpenPosition  int64
	ClosePosition int64
	Trades        []*core.Trade
	TradeCount    int

	TradingPnl  decimal.Decimal
	PositionPnl decimal.Decimal
	// PositionReturn is the log-return series used for Kelly sizing. NaN on
	// an instrument's first date, where no previous close exists.
	PositionReturn float64
	Turnover       decimal.Decimal
	Commission     decimal.Decimal
	Slippage       decimal.Decimal
	TotalPnl       decimal.Decimal
	NetPnl         decimal.Decimal
}

// settle prices the day once its previous close and opening position are
// known. Recomputes from scratch, so re-settling is safe.
func (d *DailyResult) settle(previousClose decimal.Decimal, openPosition int64, cost CostModel) {
	size := cost.contractSize()

	d.PreviousClose = previousClose
	d.OpenPosition = openPosition
	d.ClosePosition = openPosition
	d.TradeCount = len(d.Trades)

	d.PositionPnl = decimal.NewFromInt(openPosition).
		Mul(d.ClosePrice.Sub(previousClose)).
		Mul(size)

	if previousClose.IsZero() {
		d.PositionReturn = math.NaN()
	} else {
		closeLog := math.Log(d.ClosePrice.InexactFloat64())
		d.PositionReturn = float64(openPosition) * (closeLog - math.Log(previousClose.InexactFloat64()))
		for _, t := range d.Trades {
			posChange := t.Volume
			if t.Direction == core.DirectionShort {
				posChange = -t.Volume
			}
			d.PositionReturn += float64(posChange) * (closeLog - math.Log(t.Price.InexactFloat64()))
		}
	}

	d.TradingPnl = decimal.Zero
	d.Turnover = decimal.Zero
	d.Commission = decimal.Zero
	d.Slippage = decimal.Zero
	for _, t := range d.Trades {
		posChange := t.Volume
		if t.Direction == core.DirectionShort {
			posChange = -t.Volume
		}
		d.ClosePosition += posChange
		d.TradingPnl = d.TradingPnl.Add(decimal.NewFromInt(posChange).
			Mul(d.ClosePrice.Sub(t.Price)).
			Mul(size))

		legTurnover := cost.LegTurnover(t.Price, t.Volume)
		d.Turnover = d.Turnover.Add(legTurnover)
		d.Commission = d.Commission.Add(cost.LegCommission(legTurnover))
		d.Slippage = d.Slippage.Add(cost.LegSlippage(t.Volume))
	}

	d.TotalPnl = d.TradingPnl.Add(d.PositionPnl)
	d.NetPnl = d.TotalPnl.Sub(d.Commission).Sub(d.Slippage)
}

// PortfolioDay sums every instrument's settlement for one calendar date.
type PortfolioDay struct {
	Date           time.Time
	TradingPnl     decimal.Decimal
	PositionPnl    decimal.Decimal
	TotalPnl       decimal.Decimal
	Turnover       decimal.Decimal
	Commission     decimal.Decimal
	Slippage       decimal.Decimal
	NetPnl         decimal.Decimal
	PositionReturn float64
	TradeCount     int
}

type dailyBook struct {
	keys    []string
	results map[string]*DailyResult
}

func (b *dailyBook) bucket(dt time.Time) *DailyResult {
	key := dt.Format("2006-01-02")
	if d, ok := b.results[key]; ok {
		return d
	}
	y, m, day := dt.Date()
	d := &DailyResult{Date: time.Date(y, m, day, 0, 0, 0, 0, time.UTC)}
	b.keys = append(b.keys, key)
	b.results[key] = d
	return d
}

// DailyLedger buckets close marks and trades by instrument and calendar
// date during a replay, then settles the buckets into a portfolio series.
type DailyLedger struct {
	cost  CostModel
	books map[string]*dailyBook
}

func NewDailyLedger(cost CostModel) *DailyLedger {
	return &DailyLedger{
		cost:  cost,
		books: make(map[string]*dailyBook),
	}
}

func (l *DailyLedger) book(symbol string) *dailyBook {
	b, ok := l.books[symbol]
	if !ok {
		b = &dailyBook{results: make(map[string]*DailyResult)}
		l.books[symbol] = b
	}
	return b
}

// MarkClose records the latest mark price for a symbol's current date. The
// last mark of the day stands as its close.
func (l *DailyLedger) MarkClose(symbol string, dt time.Time, price decimal.Decimal) {
	l.book(symbol).bucket(dt).ClosePrice = price
}

// AddTrade appends a fill to its instrument's date bucket.
func (l *DailyLedger) AddTrade(t *core.Trade) {
	b := l.book(t.Symbol).bucket(t.Timestamp)
	b.Trades = append(b.Trades, t)
}

// InstrumentDays settles and returns one instrument's series in
// chronological order. Previous close and open position chain through the
// series starting from zero.
func (l *DailyLedger) InstrumentDays(symbol string) []*DailyResult {
	b, ok := l.books[symbol]
	if !ok {
		return nil
	}
	previousClose := decimal.Zero
	var openPosition int64
	days := make([]*DailyResult, 0, len(b.keys))
	for _, key := range b.keys {
		d := b.results[key]
		d.settle(previousClose, openPosition, l.cost)
		previousClose = d.ClosePrice
		openPosition = d.ClosePosition
		days = append(days, d)
	}
	return days
}

// Settle settles every instrument and sums the results by date into one
// portfolio series, sorted ascending. Dates an instrument did not trade on
// contribute nothing for it; the position-return sum is NaN only when no
// instrument has a valid value that date.
func (l *DailyLedger) Settle() []*PortfolioDay {
	symbols := make([]string, 0, len(l.books))
	for symbol := range l.books {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	merged := make(map[string]*PortfolioDay)
	var keys []string
	for _, symbol := range symbols {
		for _, d := range l.InstrumentDays(symbol) {
			key := d.Date.Format("2006-01-02")
			p, ok := merged[key]
			if !ok {
				p = &PortfolioDay{Date: d.Date, PositionReturn: math.NaN()}
				merged[key] = p
				keys = append(keys, key)
			}
			p.TradingPnl = p.TradingPnl.Add(d.TradingPnl)
			p.PositionPnl = p.PositionPnl.Add(d.PositionPnl)
			p.TotalPnl = p.TotalPnl.Add(d.TotalPnl)
			p.Turnover = p.Turnover.Add(d.Turnover)
			p.Commission = p.Commission.Add(d.Commission)
			p.Slippage = p.Slippage.Add(d.Slippage)
			p.NetPnl = p.NetPnl.Add(d.NetPnl)
			p.TradeCount += d.TradeCount
			if !math.IsNaN(d.PositionReturn) {
				if math.IsNaN(p.PositionReturn) {
					p.PositionReturn = d.PositionReturn
				} else {
					p.PositionReturn += d.PositionReturn
				}
			}
		}
	}

	sort.Strings(keys)
	days := make([]*PortfolioDay, 0, len(keys))
	for _, key := range keys {
		days = append(days, merged[key])
	}
	return days
}
