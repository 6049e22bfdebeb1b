// Package models defines the core domain types for the backtest engine:
// option chain snapshots, positions, closed trades, and equity points.
package models

import (
	"fmt"
	"time"
)

const sharesPerContract = 100.0

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// Greeks holds the option sensitivity values for a single quote.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// OptionQuote is a single option chain row for one contract on one date.
type OptionQuote struct {
	Strike       float64    `json:"strike"`
	Expiration   time.Time  `json:"expiration"`
	Type         OptionType `json:"type"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Last         float64    `json:"last"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
	Greeks       Greeks     `json:"greeks"`
	IV           float64    `json:"iv"`
}

// Mid returns the bid/ask midpoint, falling back to the last price when the
// quote has no two-sided market.
func (q *OptionQuote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// SpreadPct returns the bid/ask spread as a fraction of the midpoint.
// Quotes without a usable midpoint report a spread of 1.0 (100%).
func (q *OptionQuote) SpreadPct() float64 {
	mid := q.Mid()
	if mid <= 0 {
		return 1.0
	}
	return (q.Ask - q.Bid) / mid
}

// Anomalous reports whether the quote is internally inconsistent
// (crossed market or negative prices) and must not be traded against.
func (q *OptionQuote) Anomalous() bool {
	return q.Bid < 0 || q.Ask < 0 || q.Last < 0 || (q.Bid > 0 && q.Ask > 0 && q.Bid > q.Ask)
}

// DTE returns the whole days from the given date to the quote's expiration.
// Expired contracts report 0.
func (q *OptionQuote) DTE(from time.Time) int {
	return DaysBetween(from, q.Expiration)
}

// ContractKey returns the canonical identity string for the quoted contract.
func (q *OptionQuote) ContractKey() string {
	return ContractKey(q.Type, q.Strike, q.Expiration)
}

// ContractKey formats a contract identity (type, strike, expiration) as a
// stable string usable as a lookup key.
func ContractKey(typ OptionType, strike float64, expiration time.Time) string {
	return fmt.Sprintf("%s-%.2f-%s", typ, strike, expiration.Format("2006-01-02"))
}

// DaysBetween returns the whole days from one date to another, floored at 0.
func DaysBetween(from, to time.Time) int {
	f := from.UTC().Truncate(24 * time.Hour)
	t := to.UTC().Truncate(24 * time.Hour)
	d := int(t.Sub(f).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// ChainSnapshot holds the full option chain and underlying price for one
// trading date. Quotes keep the order the provider loaded them in.
type ChainSnapshot struct {
	Date            time.Time     `json:"date"`
	UnderlyingPrice float64       `json:"underlying_price"`
	Quotes          []OptionQuote `json:"quotes"`
}

// Find returns the quote for the exact contract identity, or nil if the
// snapshot has no row for it.
func (s *ChainSnapshot) Find(typ OptionType, strike float64, expiration time.Time) *OptionQuote {
	key := ContractKey(typ, strike, expiration)
	for i := range s.Quotes {
		if s.Quotes[i].ContractKey() == key {
			return &s.Quotes[i]
		}
	}
	return nil
}
