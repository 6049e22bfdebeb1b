// Package selector finds the best-matching entry contract in a day's chain
// snapshot and sizes the position from available capital.
package selector

import (
	"fmt"
	"math"

	"github.com/manisahni/optionslab-sub000/internal/config"
	"github.com/manisahni/optionslab-sub000/internal/models"
)

const sharesPerContract = 100.0

// Selection is a confirmed entry candidate with its computed size.
type Selection struct {
	Quote     models.OptionQuote
	FillPrice float64
	Contracts int
	EntryCost float64
	Relaxed   bool // liquidity filter was dropped on the second pass
}

// Selector applies the configured entry criteria to a chain snapshot.
type Selector struct {
	selection config.SelectionConfig
	risk      config.RiskConfig
}

// New builds a Selector from the strategy's selection and risk settings.
func New(selection config.SelectionConfig, risk config.RiskConfig) *Selector {
	return &Selector{selection: selection, risk: risk}
}

// Select returns the single best entry candidate and its size, or nil with a
// rationale when no trade should happen today. A nil selection is an
// expected outcome, never an error.
//
// Candidates are filtered by option type bias, quote sanity, liquidity, and
// DTE, then ranked by distance from the target delta (ties: narrower spread,
// then higher volume). When a delta tolerance is configured and the best
// candidate misses it, the liquidity filter is relaxed once and the closest
// match of the second pass wins regardless of tolerance. The two-pass order
// is a strategy contract: changing it changes trade counts.
func (s *Selector) Select(snap *models.ChainSnapshot, cash float64) (*Selection, string) {
	best := s.bestCandidate(snap, false)

	tolerance := s.selection.Delta.Tolerance
	relaxed := false
	if tolerance > 0 {
		if best == nil || math.Abs(math.Abs(best.Greeks.Delta)-s.selection.Delta.Target) > tolerance {
			if second := s.bestCandidate(snap, true); second != nil {
				// Relaxation only counts when it surfaced a contract the
				// strict pass had excluded.
				relaxed = second != best
				best = second
			}
		}
	}

	if best == nil {
		return nil, "no contract matched selection criteria"
	}

	fill := fillPrice(best)
	if fill <= 0 {
		return nil, fmt.Sprintf("candidate %s has no usable price", best.ContractKey())
	}

	contracts := s.contractsFor(cash, fill)
	if contracts <= 0 {
		return nil, fmt.Sprintf("insufficient capital for %s at %.2f", best.ContractKey(), fill)
	}

	cost := fill*float64(contracts)*sharesPerContract + s.risk.CommissionPerContract*float64(contracts)
	if cost > cash {
		return nil, fmt.Sprintf("entry cost %.2f exceeds cash %.2f", cost, cash)
	}

	rationale := fmt.Sprintf("selected %s delta %.3f (target %.3f)",
		best.ContractKey(), best.Greeks.Delta, s.selection.Delta.Target)
	if relaxed {
		rationale += ", liquidity filter relaxed"
	}
	return &Selection{
		Quote:     *best,
		FillPrice: fill,
		Contracts: contracts,
		EntryCost: cost,
		Relaxed:   relaxed,
	}, rationale
}

// bestCandidate scans the snapshot for the closest-delta contract that
// passes the entry filters. relaxLiquidity drops the volume/spread floor.
func (s *Selector) bestCandidate(snap *models.ChainSnapshot, relaxLiquidity bool) *models.OptionQuote {
	var best *models.OptionQuote
	bestDiff := math.MaxFloat64

	for i := range snap.Quotes {
		q := &snap.Quotes[i]
		if !s.admits(q, snap, relaxLiquidity) {
			continue
		}

		diff := math.Abs(math.Abs(q.Greeks.Delta) - s.selection.Delta.Target)
		switch {
		case diff < bestDiff:
			best, bestDiff = q, diff
		case diff == bestDiff && best != nil:
			// Ties: narrower spread, then higher volume.
			if q.SpreadPct() < best.SpreadPct() ||
				(q.SpreadPct() == best.SpreadPct() && q.Volume > best.Volume) {
				best = q
			}
		}
	}
	return best
}

func (s *Selector) admits(q *models.OptionQuote, snap *models.ChainSnapshot, relaxLiquidity bool) bool {
	if q.Anomalous() {
		return false
	}

	typeOK := false
	for _, t := range s.selection.OptionTypes() {
		if q.Type == t {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return false
	}

	absDelta := math.Abs(q.Greeks.Delta)
	if absDelta < s.selection.Delta.Min || absDelta > s.selection.Delta.Max {
		return false
	}

	dte := q.DTE(snap.Date)
	if dte < s.selection.DTE.Min || dte > s.selection.DTE.Max {
		return false
	}

	if !relaxLiquidity {
		if q.Volume < s.selection.Liquidity.MinVolume {
			return false
		}
		if q.SpreadPct() > s.selection.Liquidity.MaxSpreadPct {
			return false
		}
	}
	return true
}

// contractsFor sizes the position: floor(cash × fraction / (fill × 100)).
// Zero or negative fill prices yield 0 contracts; the guard prevents
// division errors and phantom trades.
func (s *Selector) contractsFor(cash, fill float64) int {
	if fill <= 0 || cash <= 0 {
		return 0
	}
	allocated := cash * s.risk.PositionSizeFraction
	return int(math.Floor(allocated / (fill * sharesPerContract)))
}

// fillPrice is the simulated entry fill: the ask when one exists, otherwise
// the midpoint, otherwise the last trade.
func fillPrice(q *models.OptionQuote) float64 {
	if q.Ask > 0 {
		return q.Ask
	}
	return q.Mid()
}
