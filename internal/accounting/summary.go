package accounting

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "backtest_engine/pkg/errors"
)

// Summary aggregates realized round trips into trade-level statistics. The
// capital curve starts at zero and moves only on realized pnl.
type Summary struct {
	TotalRoundTrips int
	TotalPnl        decimal.Decimal
	TotalTurnover   decimal.Decimal
	TotalCommission decimal.Decimal
	TotalSlippage   decimal.Decimal

	WinningCount    int
	LosingCount     int
	WinningRate     float64 // percent, a zero-pnl trip counts as a win
	AverageWinning  decimal.Decimal
	AverageLosing   decimal.Decimal
	ProfitLossRatio float64

	Times       []time.Time
	Pnl         []decimal.Decimal
	Capital     []decimal.Decimal
	Drawdown    []decimal.Decimal
	MaxDrawdown decimal.Decimal
}

// Summarize walks the round trips in order, building the capital and
// drawdown curves. Returns ErrNoTrades when there is nothing to summarize.
func Summarize(trips []RoundTrip) (*Summary, error) {
	if len(trips) == 0 {
		return nil, apperrors.ErrNoTrades
	}

	s := &Summary{
		TotalRoundTrips: len(trips),
		Times:           make([]time.Time, 0, len(trips)),
		Pnl:             make([]decimal.Decimal, 0, len(trips)),
		Capital:         make([]decimal.Decimal, 0, len(trips)),
		Drawdown:        make([]decimal.Decimal, 0, len(trips)),
	}

	capital := decimal.Zero
	maxCapital := decimal.Zero
	totalWinning := decimal.Zero
	totalLosing := decimal.Zero

	for _, trip := range trips {
		capital = capital.Add(trip.Pnl)
		if capital.GreaterThan(maxCapital) {
			maxCapital = capital
		}
		drawdown := capital.Sub(maxCapital)
		if drawdown.LessThan(s.MaxDrawdown) {
			s.MaxDrawdown = drawdown
		}

		s.Times = append(s.Times, trip.ExitTime)
		s.Pnl = append(s.Pnl, trip.Pnl)
		s.Capital = append(s.Capital, capital)
		s.Drawdown = append(s.Drawdown, drawdown)

		s.TotalTurnover = s.TotalTurnover.Add(trip.Turnover)
		s.TotalCommission = s.TotalCommission.Add(trip.Commission)
		s.TotalSlippage = s.TotalSlippage.Add(trip.Slippage)

		if trip.Pnl.GreaterThanOrEqual(decimal.Zero) {
			s.WinningCount++
			totalWinning = totalWinning.Add(trip.Pnl)
		} else {
			s.LosingCount++
			totalLosing = totalLosing.Add(trip.Pnl)
		}
	}
	s.TotalPnl = capital

	s.WinningRate = float64(s.WinningCount) / float64(s.TotalRoundTrips) * 100
	if s.WinningCount > 0 {
		s.AverageWinning = totalWinning.Div(decimal.NewFromInt(int64(s.WinningCount)))
	}
	if s.LosingCount > 0 {
		s.AverageLosing = totalLosing.Div(decimal.NewFromInt(int64(s.LosingCount)))
	}
	if !s.AverageLosing.IsZero() {
		s.ProfitLossRatio = s.AverageWinning.Neg().Div(s.AverageLosing).InexactFloat64()
	}

	return s, nil
}
