// Package filter implements the market-condition entry gate: regime and
// technical checks over the underlying's recent price history.
package filter

import (
	"fmt"
	"math"
	"strings"

	"github.com/manisahni/optionslab-sub000/internal/config"
)

// Decision is the outcome of the entry gate for one day.
type Decision struct {
	Allow  bool
	Reason string
}

// Filter evaluates the configured sub-filters against the underlying's
// price history. It is stateless: every call is a pure function of the
// history it is handed and the configuration it was built with.
type Filter struct {
	cfg *config.FilterConfig
}

// New builds a Filter from the optional market_filters config section.
// A nil section disables gating entirely.
func New(cfg *config.FilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

// AllowEntry evaluates all enabled sub-filters against closes, the ascending
// series of underlying closes up to and including the current day. With mode
// "all" every enabled sub-filter must pass; with "any" one suffices. A
// sub-filter without enough history passes with an "insufficient history"
// rationale rather than blocking the day.
func (f *Filter) AllowEntry(closes []float64) Decision {
	if f.cfg == nil {
		return Decision{Allow: true, Reason: "no market filters configured"}
	}

	type verdict struct {
		name   string
		allow  bool
		reason string
	}
	var verdicts []verdict

	if t := f.cfg.Trend; t != nil && t.Enabled {
		allow, reason := f.trendAllows(closes, t)
		verdicts = append(verdicts, verdict{"trend", allow, reason})
	}
	if r := f.cfg.RSI; r != nil && r.Enabled {
		allow, reason := f.rsiAllows(closes, r)
		verdicts = append(verdicts, verdict{"rsi", allow, reason})
	}
	if b := f.cfg.Bollinger; b != nil && b.Enabled {
		allow, reason := f.bollingerAllows(closes, b)
		verdicts = append(verdicts, verdict{"bollinger", allow, reason})
	}
	if v := f.cfg.VolRegime; v != nil && v.Enabled {
		allow, reason := f.volRegimeAllows(closes, v)
		verdicts = append(verdicts, verdict{"vol_regime", allow, reason})
	}

	if len(verdicts) == 0 {
		return Decision{Allow: true, Reason: "no market filters enabled"}
	}

	reasons := make([]string, 0, len(verdicts))
	passed := 0
	for _, v := range verdicts {
		if v.allow {
			passed++
		}
		reasons = append(reasons, fmt.Sprintf("%s: %s", v.name, v.reason))
	}
	combined := strings.Join(reasons, "; ")

	if f.cfg.Mode == "any" {
		return Decision{Allow: passed > 0, Reason: combined}
	}
	return Decision{Allow: passed == len(verdicts), Reason: combined}
}

// trendAllows passes when the spot trades at or above its window SMA.
func (f *Filter) trendAllows(closes []float64, cfg *config.TrendConfig) (bool, string) {
	if len(closes) < cfg.SMAWindow {
		return true, "insufficient history"
	}
	sma := mean(closes[len(closes)-cfg.SMAWindow:])
	spot := closes[len(closes)-1]
	if spot >= sma {
		return true, fmt.Sprintf("spot %.2f >= sma(%d) %.2f", spot, cfg.SMAWindow, sma)
	}
	return false, fmt.Sprintf("spot %.2f < sma(%d) %.2f", spot, cfg.SMAWindow, sma)
}

// rsiAllows passes when the RSI oscillator sits inside [min, max].
func (f *Filter) rsiAllows(closes []float64, cfg *config.RSIConfig) (bool, string) {
	if len(closes) < cfg.Window+1 {
		return true, "insufficient history"
	}
	rsi := RSI(closes, cfg.Window)
	if rsi >= cfg.Min && rsi <= cfg.Max {
		return true, fmt.Sprintf("rsi(%d) %.1f within [%.1f,%.1f]", cfg.Window, rsi, cfg.Min, cfg.Max)
	}
	return false, fmt.Sprintf("rsi(%d) %.1f outside [%.1f,%.1f]", cfg.Window, rsi, cfg.Min, cfg.Max)
}

// bollingerAllows passes when the spot sits inside its k-sigma bands, i.e.
// the underlying is not overextended in either direction.
func (f *Filter) bollingerAllows(closes []float64, cfg *config.BollingerConfig) (bool, string) {
	if len(closes) < cfg.Window {
		return true, "insufficient history"
	}
	window := closes[len(closes)-cfg.Window:]
	mid := mean(window)
	sd := stddev(window, mid)
	upper := mid + cfg.K*sd
	lower := mid - cfg.K*sd
	spot := closes[len(closes)-1]
	if spot >= lower && spot <= upper {
		return true, fmt.Sprintf("spot %.2f within bands [%.2f,%.2f]", spot, lower, upper)
	}
	return false, fmt.Sprintf("spot %.2f outside bands [%.2f,%.2f]", spot, lower, upper)
}

// volRegimeAllows passes when the current realized vol sits inside the
// configured percentile band of its own rolling history.
func (f *Filter) volRegimeAllows(closes []float64, cfg *config.VolRegimeConfig) (bool, string) {
	// Need window returns per vol reading plus a window of readings to rank.
	need := 2*cfg.Window + 1
	if len(closes) < need {
		return true, "insufficient history"
	}

	vols := realizedVolSeries(closes, cfg.Window)
	current := vols[len(vols)-1]
	history := vols
	if len(history) > cfg.Window {
		history = history[len(history)-cfg.Window:]
	}
	pct := percentileRank(history, current)
	if pct >= cfg.MinPercentile && pct <= cfg.MaxPercentile {
		return true, fmt.Sprintf("vol percentile %.0f within [%.0f,%.0f]", pct, cfg.MinPercentile, cfg.MaxPercentile)
	}
	return false, fmt.Sprintf("vol percentile %.0f outside [%.0f,%.0f]", pct, cfg.MinPercentile, cfg.MaxPercentile)
}

// RSI computes the simple-average relative strength index over the last
// window changes in closes. Requires len(closes) >= window+1.
func RSI(closes []float64, window int) float64 {
	var gains, losses float64
	start := len(closes) - window
	for i := start; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// realizedVolSeries returns the annualized rolling realized vol of the log
// returns of closes, one reading per day once the window fills.
func realizedVolSeries(closes []float64, window int) []float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 && closes[i] > 0 {
			returns = append(returns, math.Log(closes[i]/closes[i-1]))
		} else {
			returns = append(returns, 0)
		}
	}
	var vols []float64
	for i := window; i <= len(returns); i++ {
		w := returns[i-window : i]
		m := mean(w)
		vols = append(vols, stddev(w, m)*math.Sqrt(252))
	}
	return vols
}

// percentileRank returns the percentage of values at or below x.
func percentileRank(values []float64, x float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v <= x {
			count++
		}
	}
	return float64(count) / float64(len(values)) * 100
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
