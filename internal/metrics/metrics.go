// Package metrics computes performance statistics from a closed-trade
// ledger and an equity curve. All functions are pure; empty inputs yield
// zero-valued statistics, never NaN or Inf.
package metrics

import (
	"math"

	"github.com/manisahni/optionslab-sub000/internal/models"
)

const tradingDaysPerYear = 252.0

// Metrics is the full statistics block for one backtest run.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
	AverageWin       float64 `json:"average_win"`
	AverageLoss      float64 `json:"average_loss"`
	ProfitFactor     float64 `json:"profit_factor"`
	TotalPnL         float64 `json:"total_pnl"`
	DeltaCompliance  float64 `json:"delta_compliance"`
}

// ComplianceTarget defines the entry-delta band used for the compliance
// statistic: the fraction of trades whose entry delta matched the configured
// target within tolerance.
type ComplianceTarget struct {
	Delta     float64
	Tolerance float64
}

// Compute derives all statistics from the trade ledger and equity curve.
func Compute(trades []models.ClosedTrade, equity []models.EquityPoint, target ComplianceTarget) Metrics {
	var m Metrics
	m.TotalTrades = len(trades)

	var grossWin, grossLoss float64
	compliant := 0
	for _, t := range trades {
		m.TotalPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			m.WinningTrades++
			grossWin += t.RealizedPnL
		} else {
			m.LosingTrades++
			grossLoss -= t.RealizedPnL
		}
		if target.Tolerance > 0 &&
			math.Abs(math.Abs(t.EntryGreeks.Delta)-target.Delta) <= target.Tolerance {
			compliant++
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
		m.DeltaCompliance = float64(compliant) / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AverageWin = grossWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = grossLoss / float64(m.LosingTrades)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	}

	if len(equity) > 0 {
		first := equity[0].TotalValue
		last := equity[len(equity)-1].TotalValue
		if first > 0 {
			m.TotalReturn = last/first - 1
			years := float64(len(equity)) / tradingDaysPerYear
			if years > 0 && last > 0 {
				m.AnnualizedReturn = math.Pow(last/first, 1/years) - 1
			}
		}
		m.MaxDrawdown = maxDrawdown(equity)

		returns := dailyReturns(equity)
		m.SharpeRatio = sharpe(returns)
		m.SortinoRatio = sortino(returns)
	}

	return m
}

// dailyReturns converts the equity curve into simple daily returns.
func dailyReturns(equity []models.EquityPoint) []float64 {
	var returns []float64
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].TotalValue
		if prev > 0 {
			returns = append(returns, equity[i].TotalValue/prev-1)
		}
	}
	return returns
}

// sharpe is the annualized mean/stddev of daily returns (zero risk-free rate).
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	sd := stddev(returns, m)
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(tradingDaysPerYear)
}

// sortino annualizes mean return over downside deviation.
func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	var downSum float64
	downCount := 0
	for _, r := range returns {
		if r < 0 {
			downSum += r * r
			downCount++
		}
	}
	if downCount == 0 {
		return 0
	}
	dd := math.Sqrt(downSum / float64(len(returns)))
	if dd == 0 {
		return 0
	}
	return m / dd * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown returns the largest peak-to-trough decline of the equity
// curve as a positive fraction.
func maxDrawdown(equity []models.EquityPoint) float64 {
	var peak, worst float64
	for _, p := range equity {
		if p.TotalValue > peak {
			peak = p.TotalValue
		}
		if peak > 0 {
			dd := (peak - p.TotalValue) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
