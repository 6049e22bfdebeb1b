package models

import (
	"fmt"
	"time"
)

// ExitReason identifies which exit rule closed a position.
type ExitReason string

const (
	// ExitReasonProfitTarget indicates the position reached its profit target
	ExitReasonProfitTarget ExitReason = "profit_target"
	// ExitReasonStopLoss indicates the position hit its stop loss
	ExitReasonStopLoss ExitReason = "stop_loss"
	// ExitReasonDeltaStop indicates the position's delta decayed below its floor
	ExitReasonDeltaStop ExitReason = "delta_stop"
	// ExitReasonIndicatorExit indicates a technical-indicator exit fired
	ExitReasonIndicatorExit ExitReason = "indicator_exit"
	// ExitReasonTimeStop indicates the position reached its DTE exit threshold
	ExitReasonTimeStop ExitReason = "time_stop"
	// ExitReasonExpiration indicates the contract expired
	ExitReasonExpiration ExitReason = "expiration"
	// ExitReasonEndOfPeriod indicates a force close on the final simulated day
	ExitReasonEndOfPeriod ExitReason = "end_of_period"
)

// GreeksSnapshot is one entry in a position's daily Greeks history.
type GreeksSnapshot struct {
	Date   time.Time `json:"date"`
	Spot   float64   `json:"spot"`
	Mark   float64   `json:"mark"`
	Greeks Greeks    `json:"greeks"`
	IV     float64   `json:"iv"`
	Stale  bool      `json:"stale,omitempty"`
}

// Position represents a single long option position owned by the engine.
// The Greeks history is append-only: one entry per simulated day held,
// inclusive of the entry day.
type Position struct {
	ID            string           `json:"id"`
	Symbol        string           `json:"symbol"`
	Type          OptionType       `json:"type"`
	Strike        float64          `json:"strike"`
	Expiration    time.Time        `json:"expiration"`
	EntryDate     time.Time        `json:"entry_date"`
	EntryFill     float64          `json:"entry_fill"`
	Contracts     int              `json:"contracts"`
	EntryCost     float64          `json:"entry_cost"`
	CurrentMark   float64          `json:"current_mark"`
	UnrealizedPnL float64          `json:"unrealized_pnl"`
	EntryGreeks   Greeks           `json:"entry_greeks"`
	EntryIV       float64          `json:"entry_iv"`
	EntrySpot     float64          `json:"entry_spot"`
	GreeksHistory []GreeksSnapshot `json:"greeks_history"`
	Open          bool             `json:"open"`
}

// ContractKey returns the canonical identity string for the position's contract.
func (p *Position) ContractKey() string {
	return ContractKey(p.Type, p.Strike, p.Expiration)
}

// CurrentValue returns the dollar value of the position at its current mark.
func (p *Position) CurrentValue() float64 {
	return p.CurrentMark * float64(p.Contracts) * sharesPerContract
}

// DTEAt returns days to expiration as of the given date.
func (p *Position) DTEAt(date time.Time) int {
	return DaysBetween(date, p.Expiration)
}

// LastGreeks returns the most recent Greeks history entry, or nil when the
// history is empty.
func (p *Position) LastGreeks() *GreeksSnapshot {
	if len(p.GreeksHistory) == 0 {
		return nil
	}
	return &p.GreeksHistory[len(p.GreeksHistory)-1]
}

// Validate ensures the position data is consistent with strong invariants.
func (p *Position) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position has empty ID")
	}
	if !p.Type.Valid() {
		return fmt.Errorf("position %s: invalid option type %q", p.ID, p.Type)
	}
	if p.Open && p.Contracts <= 0 {
		return fmt.Errorf("position %s: Contracts must be > 0 while open (current: %d)", p.ID, p.Contracts)
	}
	if p.EntryCost <= 0 {
		return fmt.Errorf("position %s: EntryCost must be positive (current: %.2f)", p.ID, p.EntryCost)
	}
	if p.EntryDate.IsZero() {
		return fmt.Errorf("position %s: EntryDate must be set", p.ID)
	}
	if len(p.GreeksHistory) == 0 {
		return fmt.Errorf("position %s: GreeksHistory must include the entry day", p.ID)
	}
	return nil
}

// ClosedTrade is the immutable record produced when a position closes.
type ClosedTrade struct {
	ID            string           `json:"id"`
	Symbol        string           `json:"symbol"`
	Type          OptionType       `json:"type"`
	Strike        float64          `json:"strike"`
	Expiration    time.Time        `json:"expiration"`
	EntryDate     time.Time        `json:"entry_date"`
	EntryFill     float64          `json:"entry_fill"`
	Contracts     int              `json:"contracts"`
	EntryCost     float64          `json:"entry_cost"`
	EntryGreeks   Greeks           `json:"entry_greeks"`
	EntryIV       float64          `json:"entry_iv"`
	EntrySpot     float64          `json:"entry_spot"`
	ExitDate      time.Time        `json:"exit_date"`
	ExitFill      float64          `json:"exit_fill"`
	ExitGreeks    Greeks           `json:"exit_greeks"`
	ExitIV        float64          `json:"exit_iv"`
	RealizedPnL   float64          `json:"realized_pnl"`
	PnLPct        float64          `json:"pnl_pct"`
	HoldingDays   int              `json:"holding_days"`
	Reason        ExitReason       `json:"reason"`
	GreeksHistory []GreeksSnapshot `json:"greeks_history"`
}

// ExitValue returns the dollar proceeds of the closing fill.
func (t *ClosedTrade) ExitValue() float64 {
	return t.ExitFill * float64(t.Contracts) * sharesPerContract
}

// EquityPoint is one day's portfolio accounting entry.
type EquityPoint struct {
	Date       time.Time `json:"date"`
	Cash       float64   `json:"cash"`
	OpenValue  float64   `json:"open_value"`
	TotalValue float64   `json:"total_value"`
}
