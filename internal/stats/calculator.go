// Package stats reduces a portfolio's daily settlement series to the
// headline performance metrics of a run.
package stats

import (
	"math"
	"time"

	"backtest_engine/internal/accounting"
	apperrors "backtest_engine/pkg/errors"
	"backtest_engine/pkg/tradingutils"
)

const (
	tradingDaysPerYear = 240
	riskFreeRate       = 0.04
)

// Metrics is the flat result of one run. Everything numeric is float64;
// the decimal layer ends at the daily series.
type Metrics struct {
	StartDate time.Time
	EndDate   time.Time

	TotalDays  int
	ProfitDays int
	LossDays   int

	Capital    float64
	EndBalance float64

	MaxDrawdown            float64
	MaxDrawdownPercent     float64
	LongestFlatDrawdownRun int

	TotalNetPnl     float64
	DailyNetPnl     float64
	TotalCommission float64
	DailyCommission float64
	TotalSlippage   float64
	DailySlippage   float64
	TotalTurnover   float64
	DailyTurnover   float64
	TotalTradeCount int
	DailyTradeCount float64

	TotalReturn      float64
	AnnualizedReturn float64
	DailyReturn      float64
	ReturnStd        float64
	SharpeRatio      float64

	KellyMeanReturn     float64
	KellyReturnStd      float64
	KellyExcessReturn   float64
	SharpeExcessKelly   float64
	SharpeKelly         float64
	KellyExcessFraction float64
	KellyFraction       float64

	CompoundedExcessLevered float64
	CompoundedLevered       float64
	CompoundedUnlevered     float64
}

// Value looks a metric up by name, returning 0 for unknown names. Used by
// the optimizer to rank assignments on a configured target.
func (m *Metrics) Value(name string) float64 {
	switch name {
	case "capital":
		return m.Capital
	case "endBalance":
		return m.EndBalance
	case "totalDays":
		return float64(m.TotalDays)
	case "profitDays":
		return float64(m.ProfitDays)
	case "lossDays":
		return float64(m.LossDays)
	case "maxDrawdown":
		return m.MaxDrawdown
	case "maxDrawdownPercent":
		return m.MaxDrawdownPercent
	case "longestFlatDrawdownRun":
		return float64(m.LongestFlatDrawdownRun)
	case "totalNetPnl":
		return m.TotalNetPnl
	case "dailyNetPnl":
		return m.DailyNetPnl
	case "totalCommission":
		return m.TotalCommission
	case "dailyCommission":
		return m.DailyCommission
	case "totalSlippage":
		return m.TotalSlippage
	case "dailySlippage":
		return m.DailySlippage
	case "totalTurnover":
		return m.TotalTurnover
	case "dailyTurnover":
		return m.DailyTurnover
	case "totalTradeCount":
		return float64(m.TotalTradeCount)
	case "dailyTradeCount":
		return m.DailyTradeCount
	case "totalReturn":
		return m.TotalReturn
	case "annualizedReturn":
		return m.AnnualizedReturn
	case "dailyReturn":
		return m.DailyReturn
	case "returnStd":
		return m.ReturnStd
	case "sharpeRatio":
		return m.SharpeRatio
	case "kellyMeanReturn":
		return m.KellyMeanReturn
	case "kellyReturnStd":
		return m.KellyReturnStd
	case "kellyExcessReturn":
		return m.KellyExcessReturn
	case "sharpeExcessKelly":
		return m.SharpeExcessKelly
	case "sharpeKelly":
		return m.SharpeKelly
	case "kellyExcessFraction":
		return m.KellyExcessFraction
	case "kellyFraction":
		return m.KellyFraction
	case "compoundedExcessLevered":
		return m.CompoundedExcessLevered
	case "compoundedLevered":
		return m.CompoundedLevered
	case "compoundedUnlevered":
		return m.CompoundedUnlevered
	}
	return 0
}

// DayStats is one day of the balance curve, kept for rendering and
// persistence.
type DayStats struct {
	Date            time.Time
	Balance         float64
	Drawdown        float64
	DrawdownPercent float64
	NetPnl          float64
	Return          float64
}

// Calculate reduces the settled portfolio series to Metrics plus the
// per-day balance curve. Returns ErrNoData when the series is empty.
func Calculate(days []*accounting.PortfolioDay, capital float64) (*Metrics, []DayStats, error) {
	if len(days) == 0 {
		return nil, nil, apperrors.ErrNoData
	}

	m := &Metrics{
		StartDate: days[0].Date,
		EndDate:   days[len(days)-1].Date,
		TotalDays: len(days),
		Capital:   capital,
	}

	curve := make([]DayStats, 0, len(days))
	returns := make([]float64, 0, len(days))
	kelly := make([]float64, 0, len(days))

	balance := capital
	prevBalance := capital
	highWaterMark := math.Inf(-1)

	for i, day := range days {
		netPnl := day.NetPnl.InexactFloat64()
		balance += netPnl
		if balance > highWaterMark {
			highWaterMark = balance
		}
		drawdown := balance - highWaterMark
		ddPercent := 0.0
		if highWaterMark > 0 {
			ddPercent = drawdown / highWaterMark * 100
		}

		dayReturn := 0.0
		if i > 0 && balance > 0 && prevBalance > 0 {
			dayReturn = math.Log(balance) - math.Log(prevBalance)
		}
		prevBalance = balance
		returns = append(returns, dayReturn)
		kelly = append(kelly, day.PositionReturn)

		if netPnl > 0 {
			m.ProfitDays++
		} else if netPnl < 0 {
			m.LossDays++
		}
		if drawdown < m.MaxDrawdown {
			m.MaxDrawdown = drawdown
		}
		if ddPercent < m.MaxDrawdownPercent {
			m.MaxDrawdownPercent = ddPercent
		}

		m.TotalNetPnl += netPnl
		m.TotalCommission += day.Commission.InexactFloat64()
		m.TotalSlippage += day.Slippage.InexactFloat64()
		m.TotalTurnover += day.Turnover.InexactFloat64()
		m.TotalTradeCount += day.TradeCount

		curve = append(curve, DayStats{
			Date:            day.Date,
			Balance:         balance,
			Drawdown:        drawdown,
			DrawdownPercent: ddPercent,
			NetPnl:          netPnl,
			Return:          dayReturn,
		})
	}

	run := 0
	for _, day := range curve {
		if day.Drawdown == 0 {
			run++
			if run > m.LongestFlatDrawdownRun {
				m.LongestFlatDrawdownRun = run
			}
		} else {
			run = 0
		}
	}

	totalDays := float64(m.TotalDays)
	m.EndBalance = balance
	m.DailyNetPnl = m.TotalNetPnl / totalDays
	m.DailyCommission = m.TotalCommission / totalDays
	m.DailySlippage = m.TotalSlippage / totalDays
	m.DailyTurnover = m.TotalTurnover / totalDays
	m.DailyTradeCount = float64(m.TotalTradeCount) / totalDays

	if capital > 0 {
		m.TotalReturn = (balance/capital - 1) * 100
	}
	m.AnnualizedReturn = m.TotalReturn / totalDays * tradingDaysPerYear

	m.DailyReturn = tradingutils.Mean(returns) * 100
	m.ReturnStd = tradingutils.SampleStd(returns) * 100
	if m.ReturnStd > 0 {
		m.SharpeRatio = m.DailyReturn / m.ReturnStd * math.Sqrt(tradingDaysPerYear)
	}

	validKelly := tradingutils.DropNaN(kelly)
	if len(validKelly) >= 2 {
		m.KellyMeanReturn = tradingutils.Mean(validKelly) * tradingDaysPerYear
		m.KellyReturnStd = tradingutils.SampleStd(validKelly) * math.Sqrt(tradingDaysPerYear)
		m.KellyExcessReturn = m.KellyMeanReturn - riskFreeRate
		if m.KellyReturnStd > 0 {
			m.SharpeExcessKelly = m.KellyExcessReturn / m.KellyReturnStd
			m.SharpeKelly = m.KellyMeanReturn / m.KellyReturnStd
			variance := m.KellyReturnStd * m.KellyReturnStd
			m.KellyExcessFraction = m.KellyExcessReturn / variance
			m.KellyFraction = m.KellyMeanReturn / variance
		}
		m.CompoundedExcessLevered = riskFreeRate + m.SharpeExcessKelly*m.SharpeExcessKelly/2
		m.CompoundedLevered = riskFreeRate + m.SharpeKelly*m.SharpeKelly/2
		m.CompoundedUnlevered = m.KellyMeanReturn - m.KellyReturnStd*m.KellyReturnStd/2
	}

	return m, curve, nil
}
