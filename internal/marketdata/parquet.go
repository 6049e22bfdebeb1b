package marketdata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/manisahni/optionslab-sub000/internal/models"
)

// ChainRecord is the Parquet schema for chain snapshot rows. It mirrors the
// CSV column layout; timestamps are Unix milliseconds.
type ChainRecord struct {
	Date            int64   `parquet:"date,timestamp(millisecond)"`
	UnderlyingPrice float64 `parquet:"underlying_price"`
	Strike          float64 `parquet:"strike"`
	Expiration      int64   `parquet:"expiration,timestamp(millisecond)"`
	Right           string  `parquet:"right"`
	Bid             float64 `parquet:"bid"`
	Ask             float64 `parquet:"ask"`
	Close           float64 `parquet:"close"`
	Volume          int64   `parquet:"volume"`
	OpenInterest    int64   `parquet:"open_interest"`
	Delta           float64 `parquet:"delta"`
	Gamma           float64 `parquet:"gamma"`
	Theta           float64 `parquet:"theta"`
	Vega            float64 `parquet:"vega"`
	IV              float64 `parquet:"implied_volatility"`
}

// LoadParquet reads a chain snapshot Parquet file and returns a provider
// over its contents.
func LoadParquet(path string) (*MemoryProvider, error) {
	records, err := parquet.ReadFile[ChainRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading parquet snapshots: %w", err)
	}

	byDate := make(map[string]*models.ChainSnapshot)
	var keys []string
	for _, r := range records {
		typ, err := parseRight(r.Right)
		if err != nil {
			return nil, fmt.Errorf("parquet snapshot row: %w", err)
		}
		date := time.UnixMilli(r.Date).UTC().Truncate(24 * time.Hour)
		key := dateKey(date)
		snap, ok := byDate[key]
		if !ok {
			snap = &models.ChainSnapshot{Date: date, UnderlyingPrice: r.UnderlyingPrice}
			byDate[key] = snap
			keys = append(keys, key)
		}
		snap.Quotes = append(snap.Quotes, models.OptionQuote{
			Strike:       r.Strike,
			Expiration:   time.UnixMilli(r.Expiration).UTC().Truncate(24 * time.Hour),
			Type:         typ,
			Bid:          r.Bid,
			Ask:          r.Ask,
			Last:         r.Close,
			Volume:       r.Volume,
			OpenInterest: r.OpenInterest,
			Greeks:       models.Greeks{Delta: r.Delta, Gamma: r.Gamma, Theta: r.Theta, Vega: r.Vega},
			IV:           r.IV,
		})
	}

	sort.Strings(keys)
	snapshots := make([]*models.ChainSnapshot, 0, len(keys))
	for _, key := range keys {
		snapshots = append(snapshots, byDate[key])
	}
	return NewMemoryProvider(snapshots), nil
}

// WriteParquet writes snapshots as a single Parquet file in the ChainRecord
// schema, creating parent directories as needed.
func WriteParquet(path string, snapshots []*models.ChainSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var records []ChainRecord
	for _, snap := range snapshots {
		for i := range snap.Quotes {
			q := &snap.Quotes[i]
			records = append(records, ChainRecord{
				Date:            snap.Date.UTC().UnixMilli(),
				UnderlyingPrice: snap.UnderlyingPrice,
				Strike:          q.Strike,
				Expiration:      q.Expiration.UTC().UnixMilli(),
				Right:           rightFor(q.Type),
				Bid:             q.Bid,
				Ask:             q.Ask,
				Close:           q.Last,
				Volume:          q.Volume,
				OpenInterest:    q.OpenInterest,
				Delta:           q.Greeks.Delta,
				Gamma:           q.Greeks.Gamma,
				Theta:           q.Greeks.Theta,
				Vega:            q.Greeks.Vega,
				IV:              q.IV,
			})
		}
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing parquet snapshots: %w", err)
	}
	return nil
}
