// Package positions owns the daily mark-to-market and Greeks bookkeeping
// for open positions.
package positions

import (
	"time"

	"github.com/manisahni/optionslab-sub000/internal/models"
)

const sharesPerContract = 100.0

// MarkResult reports how a position was marked for one day.
type MarkResult struct {
	Stale bool // contract missing from the snapshot; prior mark carried forward
	Mark  float64
}

// Tracker updates open positions against daily snapshots. The Greeks history
// is append-only: exactly one entry per simulated day held, entry day
// included, and entries are never rewritten.
type Tracker struct{}

// New creates a Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Seed initializes a freshly opened position's mark and records its entry-day
// Greeks snapshot from the fill quote.
func (t *Tracker) Seed(pos *models.Position, quote *models.OptionQuote, spot float64, date time.Time) {
	pos.CurrentMark = quote.Mid()
	pos.UnrealizedPnL = pos.CurrentValue() - pos.EntryCost
	pos.GreeksHistory = append(pos.GreeksHistory, models.GreeksSnapshot{
		Date:   date,
		Spot:   spot,
		Mark:   pos.CurrentMark,
		Greeks: quote.Greeks,
		IV:     quote.IV,
	})
}

// MarkToMarket looks up the position's exact contract in the day's snapshot,
// updates the mark and unrealized P&L, and appends the day's Greeks entry.
// When the contract is missing (a data gap for that one contract) the prior
// mark and Greeks carry forward and the entry is flagged stale.
func (t *Tracker) MarkToMarket(pos *models.Position, snap *models.ChainSnapshot) MarkResult {
	quote := snap.Find(pos.Type, pos.Strike, pos.Expiration)
	if quote == nil {
		t.CarryForward(pos, snap.Date, snap.UnderlyingPrice)
		return MarkResult{Stale: true, Mark: pos.CurrentMark}
	}

	mark := quote.Mid()
	if mark <= 0 {
		// A present-but-unpriced row is treated like a missing one.
		t.CarryForward(pos, snap.Date, snap.UnderlyingPrice)
		return MarkResult{Stale: true, Mark: pos.CurrentMark}
	}

	pos.CurrentMark = mark
	pos.UnrealizedPnL = pos.CurrentValue() - pos.EntryCost
	pos.GreeksHistory = append(pos.GreeksHistory, models.GreeksSnapshot{
		Date:   snap.Date,
		Spot:   snap.UnderlyingPrice,
		Mark:   mark,
		Greeks: quote.Greeks,
		IV:     quote.IV,
	})
	return MarkResult{Stale: false, Mark: mark}
}

// CarryForward appends a stale Greeks entry reusing the prior day's values,
// keeping the one-entry-per-day invariant across data gaps.
func (t *Tracker) CarryForward(pos *models.Position, date time.Time, spot float64) {
	entry := models.GreeksSnapshot{
		Date:  date,
		Spot:  spot,
		Mark:  pos.CurrentMark,
		Stale: true,
	}
	if last := pos.LastGreeks(); last != nil {
		entry.Greeks = last.Greeks
		entry.IV = last.IV
		if spot == 0 {
			entry.Spot = last.Spot
		}
	}
	pos.GreeksHistory = append(pos.GreeksHistory, entry)
	pos.UnrealizedPnL = pos.CurrentValue() - pos.EntryCost
}
