// Package recorder converts position lifecycles into immutable trade
// records and maintains the run's append-only audit trail.
package recorder

import (
	"fmt"
	"time"

	"github.com/manisahni/optionslab-sub000/internal/models"
)

const sharesPerContract = 100.0

// Audit event types. Every entry, exit, and skipped-entry decision produces
// one audit line; the final report must be reconstructible from them.
const (
	EventEntry     = "entry"
	EventExit      = "exit"
	EventSkip      = "skip_entry"
	EventDataGap   = "data_gap"
	EventStaleMark = "stale_mark"
	EventAnomaly   = "quote_anomaly"
)

// Recorder accumulates the closed-trade ledger and the audit log for one run.
type Recorder struct {
	trades []models.ClosedTrade
	audit  []string
}

// New creates an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// Audit appends one structured line to the audit trail.
func (r *Recorder) Audit(date time.Time, event, detail string) {
	r.audit = append(r.audit, fmt.Sprintf("%s | %s | %s", date.Format("2006-01-02"), event, detail))
}

// RecordOpen logs a confirmed entry.
func (r *Recorder) RecordOpen(pos *models.Position, rationale string) {
	r.Audit(pos.EntryDate, EventEntry, fmt.Sprintf("%s | qty=%d fill=%.2f cost=%.2f | %s",
		pos.ContractKey(), pos.Contracts, pos.EntryFill, pos.EntryCost, rationale))
}

// RecordSkip logs a day where no entry happened, with its rationale.
func (r *Recorder) RecordSkip(date time.Time, rationale string) {
	r.Audit(date, EventSkip, rationale)
}

// RecordClose converts a closing position into an immutable ClosedTrade,
// appends it to the ledger, and logs the exit. The ledger identities hold by
// construction: realized P&L is exit value minus entry cost, and the
// percentage return is realized over entry cost.
func (r *Recorder) RecordClose(pos *models.Position, reason models.ExitReason,
	exitFill float64, exitDate time.Time, detail string) models.ClosedTrade {

	realized := exitFill*float64(pos.Contracts)*sharesPerContract - pos.EntryCost
	pct := 0.0
	if pos.EntryCost != 0 {
		pct = realized / pos.EntryCost
	}

	trade := models.ClosedTrade{
		ID:            pos.ID,
		Symbol:        pos.Symbol,
		Type:          pos.Type,
		Strike:        pos.Strike,
		Expiration:    pos.Expiration,
		EntryDate:     pos.EntryDate,
		EntryFill:     pos.EntryFill,
		Contracts:     pos.Contracts,
		EntryCost:     pos.EntryCost,
		EntryGreeks:   pos.EntryGreeks,
		EntryIV:       pos.EntryIV,
		EntrySpot:     pos.EntrySpot,
		ExitDate:      exitDate,
		ExitFill:      exitFill,
		RealizedPnL:   realized,
		PnLPct:        pct,
		HoldingDays:   models.DaysBetween(pos.EntryDate, exitDate) + 1,
		Reason:        reason,
		GreeksHistory: pos.GreeksHistory,
	}
	if last := pos.LastGreeks(); last != nil {
		trade.ExitGreeks = last.Greeks
		trade.ExitIV = last.IV
	}

	r.trades = append(r.trades, trade)
	r.Audit(exitDate, EventExit, fmt.Sprintf("%s | reason=%s fill=%.2f pnl=%.2f (%.1f%%) | %s",
		pos.ContractKey(), reason, exitFill, realized, pct*100, detail))
	return trade
}

// Trades returns the closed-trade ledger in close order.
func (r *Recorder) Trades() []models.ClosedTrade {
	return r.trades
}

// AuditLog returns the append-only audit trail.
func (r *Recorder) AuditLog() []string {
	return r.audit
}
