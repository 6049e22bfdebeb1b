package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/manisahni/optionslab-sub000/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func trade(pnl, entryDelta float64) models.ClosedTrade {
	return models.ClosedTrade{
		RealizedPnL: pnl,
		EntryGreeks: models.Greeks{Delta: entryDelta},
	}
}

func curve(values ...float64) []models.EquityPoint {
	points := make([]models.EquityPoint, len(values))
	day := date(2024, 3, 15)
	for i, v := range values {
		points[i] = models.EquityPoint{Date: day.AddDate(0, 0, i), TotalValue: v}
	}
	return points
}

func TestCompute_ZeroTrades(t *testing.T) {
	m := Compute(nil, nil, ComplianceTarget{})

	// Everything must be a well-defined zero, never NaN.
	checks := map[string]float64{
		"TotalReturn":     m.TotalReturn,
		"Annualized":      m.AnnualizedReturn,
		"Sharpe":          m.SharpeRatio,
		"Sortino":         m.SortinoRatio,
		"MaxDrawdown":     m.MaxDrawdown,
		"WinRate":         m.WinRate,
		"AverageWin":      m.AverageWin,
		"AverageLoss":     m.AverageLoss,
		"ProfitFactor":    m.ProfitFactor,
		"TotalPnL":        m.TotalPnL,
		"DeltaCompliance": m.DeltaCompliance,
	}
	for name, v := range checks {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s = %v with zero trades, want a finite zero", name, v)
		}
		if v != 0 {
			t.Errorf("%s = %v with zero trades, want 0", name, v)
		}
	}
	if m.TotalTrades != 0 {
		t.Errorf("TotalTrades = %d, want 0", m.TotalTrades)
	}
}

func TestCompute_TradeStats(t *testing.T) {
	trades := []models.ClosedTrade{
		trade(200, 0.31),
		trade(100, 0.29),
		trade(-150, 0.50),
		trade(0, 0.30), // flat counts as a loss
	}
	m := Compute(trades, nil, ComplianceTarget{Delta: 0.30, Tolerance: 0.05})

	if m.TotalTrades != 4 || m.WinningTrades != 2 || m.LosingTrades != 2 {
		t.Errorf("Counts = %d/%d/%d, want 4/2/2", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	}
	if m.WinRate != 0.5 {
		t.Errorf("WinRate = %v, want 0.5", m.WinRate)
	}
	if m.AverageWin != 150 {
		t.Errorf("AverageWin = %v, want 150", m.AverageWin)
	}
	if m.AverageLoss != 75 {
		t.Errorf("AverageLoss = %v, want 75", m.AverageLoss)
	}
	if m.TotalPnL != 150 {
		t.Errorf("TotalPnL = %v, want 150", m.TotalPnL)
	}
	if m.ProfitFactor != 2 {
		t.Errorf("ProfitFactor = %v, want 2", m.ProfitFactor)
	}
	// Entry deltas 0.31, 0.29, 0.30 are within 0.30±0.05; 0.50 is not.
	if m.DeltaCompliance != 0.75 {
		t.Errorf("DeltaCompliance = %v, want 0.75", m.DeltaCompliance)
	}
}

func TestCompute_AllWinners(t *testing.T) {
	trades := []models.ClosedTrade{trade(100, 0.30), trade(50, 0.30)}
	m := Compute(trades, nil, ComplianceTarget{})

	if m.WinRate != 1 {
		t.Errorf("WinRate = %v, want 1", m.WinRate)
	}
	// No losses: profit factor stays at its zero default rather than Inf.
	if math.IsInf(m.ProfitFactor, 0) || m.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0 with no losses", m.ProfitFactor)
	}
	if m.AverageLoss != 0 {
		t.Errorf("AverageLoss = %v, want 0", m.AverageLoss)
	}
}

func TestCompute_Returns(t *testing.T) {
	// 10000 -> 11000 over the run: +10% total.
	m := Compute(nil, curve(10000, 10500, 10200, 11000), ComplianceTarget{})

	if math.Abs(m.TotalReturn-0.10) > 1e-9 {
		t.Errorf("TotalReturn = %v, want 0.10", m.TotalReturn)
	}
	if m.AnnualizedReturn <= m.TotalReturn {
		t.Errorf("Annualized %v should exceed total %v for a sub-year run",
			m.AnnualizedReturn, m.TotalReturn)
	}
}

func TestMaxDrawdown(t *testing.T) {
	// Peak 12000, trough 9000: 25% drawdown.
	m := Compute(nil, curve(10000, 12000, 9000, 11000), ComplianceTarget{})
	if math.Abs(m.MaxDrawdown-0.25) > 1e-9 {
		t.Errorf("MaxDrawdown = %v, want 0.25", m.MaxDrawdown)
	}

	// Monotonic growth has no drawdown.
	m = Compute(nil, curve(10000, 10100, 10200), ComplianceTarget{})
	if m.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %v, want 0 for a rising curve", m.MaxDrawdown)
	}
}

func TestSharpeAndSortino(t *testing.T) {
	t.Run("flat curve", func(t *testing.T) {
		m := Compute(nil, curve(10000, 10000, 10000, 10000), ComplianceTarget{})
		if m.SharpeRatio != 0 || m.SortinoRatio != 0 {
			t.Errorf("Flat curve Sharpe/Sortino = %v/%v, want 0/0", m.SharpeRatio, m.SortinoRatio)
		}
	})

	t.Run("volatile positive drift", func(t *testing.T) {
		m := Compute(nil, curve(10000, 10200, 10100, 10400, 10300, 10600), ComplianceTarget{})
		if m.SharpeRatio <= 0 {
			t.Errorf("Sharpe = %v, want > 0 for positive drift", m.SharpeRatio)
		}
		if m.SortinoRatio <= 0 {
			t.Errorf("Sortino = %v, want > 0 for positive drift", m.SortinoRatio)
		}
		if math.IsNaN(m.SharpeRatio) || math.IsNaN(m.SortinoRatio) {
			t.Error("Ratios must never be NaN")
		}
	})

	t.Run("no down days", func(t *testing.T) {
		m := Compute(nil, curve(10000, 10100, 10250, 10400), ComplianceTarget{})
		if m.SortinoRatio != 0 {
			t.Errorf("Sortino = %v, want 0 when there is no downside", m.SortinoRatio)
		}
	})
}

func TestCompute_SingleEquityPoint(t *testing.T) {
	m := Compute(nil, curve(10000), ComplianceTarget{})
	if m.TotalReturn != 0 || m.SharpeRatio != 0 {
		t.Errorf("Single-point curve should yield zero stats, got %+v", m)
	}
}
