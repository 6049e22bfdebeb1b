package models

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMid(t *testing.T) {
	tests := []struct {
		name  string
		quote OptionQuote
		want  float64
	}{
		{"two-sided market", OptionQuote{Bid: 1.00, Ask: 1.10, Last: 2.00}, 1.05},
		{"no bid falls back to last", OptionQuote{Bid: 0, Ask: 1.10, Last: 0.90}, 0.90},
		{"no market at all", OptionQuote{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.quote.Mid(); got != tt.want {
				t.Errorf("Mid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpreadPct(t *testing.T) {
	q := OptionQuote{Bid: 0.95, Ask: 1.05}
	if got := q.SpreadPct(); got < 0.0999 || got > 0.1001 {
		t.Errorf("SpreadPct() = %v, want 0.10", got)
	}

	empty := OptionQuote{}
	if got := empty.SpreadPct(); got != 1.0 {
		t.Errorf("SpreadPct() on empty quote = %v, want 1.0", got)
	}
}

func TestAnomalous(t *testing.T) {
	tests := []struct {
		name  string
		quote OptionQuote
		want  bool
	}{
		{"clean quote", OptionQuote{Bid: 1.00, Ask: 1.10}, false},
		{"crossed market", OptionQuote{Bid: 1.20, Ask: 1.10}, true},
		{"negative bid", OptionQuote{Bid: -0.05, Ask: 1.10}, true},
		{"negative last", OptionQuote{Last: -1}, true},
		{"one-sided quote is fine", OptionQuote{Ask: 1.10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.quote.Anomalous(); got != tt.want {
				t.Errorf("Anomalous() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{"same day", date(2024, 3, 15), date(2024, 3, 15), 0},
		{"forward", date(2024, 3, 15), date(2024, 4, 29), 45},
		{"past floors at zero", date(2024, 3, 15), date(2024, 3, 10), 0},
		{"time of day ignored", date(2024, 3, 15).Add(15 * time.Hour), date(2024, 3, 16), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(tt.from, tt.to); got != tt.want {
				t.Errorf("DaysBetween() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestContractKey(t *testing.T) {
	key := ContractKey(OptionTypeCall, 450, date(2024, 4, 19))
	want := "call-450.00-2024-04-19"
	if key != want {
		t.Errorf("ContractKey() = %q, want %q", key, want)
	}

	// Float strikes that differ beyond two decimals collapse to one key.
	if ContractKey(OptionTypePut, 450.001, date(2024, 4, 19)) !=
		ContractKey(OptionTypePut, 450.0, date(2024, 4, 19)) {
		t.Error("Expected sub-cent strikes to share a contract key")
	}
}

func TestSnapshotFind(t *testing.T) {
	exp := date(2024, 4, 19)
	snap := &ChainSnapshot{
		Date:            date(2024, 3, 15),
		UnderlyingPrice: 450,
		Quotes: []OptionQuote{
			{Type: OptionTypeCall, Strike: 450, Expiration: exp, Bid: 5.00, Ask: 5.20},
			{Type: OptionTypePut, Strike: 450, Expiration: exp, Bid: 4.80, Ask: 5.00},
		},
	}

	q := snap.Find(OptionTypePut, 450, exp)
	if q == nil {
		t.Fatal("Expected to find the put, got nil")
	}
	if q.Bid != 4.80 {
		t.Errorf("Found wrong quote: bid = %v", q.Bid)
	}

	if snap.Find(OptionTypeCall, 455, exp) != nil {
		t.Error("Expected nil for a strike not in the chain")
	}
}

func TestPositionValue(t *testing.T) {
	p := &Position{
		ID:          "p1",
		Type:        OptionTypeCall,
		Strike:      450,
		Expiration:  date(2024, 4, 19),
		EntryDate:   date(2024, 3, 15),
		Contracts:   2,
		EntryCost:   1000,
		CurrentMark: 5.50,
		Open:        true,
	}

	if got := p.CurrentValue(); got != 1100 {
		t.Errorf("CurrentValue() = %v, want 1100", got)
	}
	if got := p.DTEAt(date(2024, 4, 12)); got != 7 {
		t.Errorf("DTEAt() = %d, want 7", got)
	}
	if p.LastGreeks() != nil {
		t.Error("Expected nil LastGreeks with empty history")
	}

	p.GreeksHistory = append(p.GreeksHistory,
		GreeksSnapshot{Date: date(2024, 3, 15), Mark: 5.25},
		GreeksSnapshot{Date: date(2024, 3, 16), Mark: 5.50},
	)
	last := p.LastGreeks()
	if last == nil || !last.Date.Equal(date(2024, 3, 16)) {
		t.Errorf("LastGreeks() = %+v, want the 2024-03-16 entry", last)
	}
}

func TestPositionValidate(t *testing.T) {
	valid := func() *Position {
		return &Position{
			ID:         "p1",
			Type:       OptionTypeCall,
			Strike:     450,
			Expiration: date(2024, 4, 19),
			EntryDate:  date(2024, 3, 15),
			Contracts:  1,
			EntryCost:  500,
			Open:       true,
			GreeksHistory: []GreeksSnapshot{
				{Date: date(2024, 3, 15)},
			},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("Expected valid position, got: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Position)
	}{
		{"empty id", func(p *Position) { p.ID = "" }},
		{"bad type", func(p *Position) { p.Type = "strangle" }},
		{"open with zero contracts", func(p *Position) { p.Contracts = 0 }},
		{"zero entry cost", func(p *Position) { p.EntryCost = 0 }},
		{"zero entry date", func(p *Position) { p.EntryDate = time.Time{} }},
		{"empty greeks history", func(p *Position) { p.GreeksHistory = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			if err := p.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestClosedTradeExitValue(t *testing.T) {
	trade := &ClosedTrade{ExitFill: 7.50, Contracts: 2}
	if got := trade.ExitValue(); got != 1500 {
		t.Errorf("ExitValue() = %v, want 1500", got)
	}
}
