// Package marketdata provides historical option-chain snapshot providers
// for the backtest engine: in-memory, CSV, and Parquet backed, plus a
// network fetcher that downloads chains for later offline runs.
package marketdata

import (
	"errors"
	"sort"
	"time"

	"github.com/manisahni/optionslab-sub000/internal/models"
)

// ErrNoSnapshot is returned when a trading date has no chain snapshot.
// Callers treat it as a recoverable data gap, not a failure.
var ErrNoSnapshot = errors.New("no snapshot for date")

// Provider is a pure lookup of historical chain snapshots keyed by date.
// TradingDates returns the covered dates in strictly ascending order;
// Snapshot never returns rows dated after the requested date.
type Provider interface {
	TradingDates() []time.Time
	Snapshot(date time.Time) (*models.ChainSnapshot, error)
}

// MemoryProvider serves snapshots from an in-memory map. It is the fixture
// provider for tests and the target the file loaders decode into.
type MemoryProvider struct {
	snapshots map[string]*models.ChainSnapshot
	dates     []time.Time
	gaps      map[string]bool
}

// NewMemoryProvider builds a provider over the given snapshots. Snapshot
// order does not matter; dates are deduplicated and sorted ascending.
func NewMemoryProvider(snapshots []*models.ChainSnapshot) *MemoryProvider {
	p := &MemoryProvider{
		snapshots: make(map[string]*models.ChainSnapshot, len(snapshots)),
		gaps:      make(map[string]bool),
	}
	for _, s := range snapshots {
		key := dateKey(s.Date)
		if _, dup := p.snapshots[key]; !dup {
			p.dates = append(p.dates, s.Date.UTC().Truncate(24*time.Hour))
		}
		p.snapshots[key] = s
	}
	sort.Slice(p.dates, func(i, j int) bool { return p.dates[i].Before(p.dates[j]) })
	return p
}

// AddGapDate registers a trading date that has no snapshot. The date shows
// up in TradingDates but Snapshot reports ErrNoSnapshot for it.
func (p *MemoryProvider) AddGapDate(date time.Time) {
	key := dateKey(date)
	if _, exists := p.snapshots[key]; exists {
		return
	}
	if !p.gaps[key] {
		p.gaps[key] = true
		p.dates = append(p.dates, date.UTC().Truncate(24*time.Hour))
		sort.Slice(p.dates, func(i, j int) bool { return p.dates[i].Before(p.dates[j]) })
	}
}

// TradingDates returns all covered dates in ascending order.
func (p *MemoryProvider) TradingDates() []time.Time {
	out := make([]time.Time, len(p.dates))
	copy(out, p.dates)
	return out
}

// Snapshot returns the chain snapshot for the given date.
func (p *MemoryProvider) Snapshot(date time.Time) (*models.ChainSnapshot, error) {
	s, ok := p.snapshots[dateKey(date)]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return s, nil
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Compile-time interface checks.
var _ Provider = (*MemoryProvider)(nil)
