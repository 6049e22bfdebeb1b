package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/manisahni/optionslab-sub000/internal/models"
)

// csvColumns is the required header for chain snapshot files. Strike values
// must already be normalized to currency units by whatever produced the file.
var csvColumns = []string{
	"date", "underlying_price", "strike", "expiration", "right",
	"bid", "ask", "close", "volume", "open_interest",
	"delta", "gamma", "theta", "vega", "implied_volatility",
}

// LoadCSV reads a chain snapshot file (one row per contract per date) and
// returns a provider over its contents.
func LoadCSV(path string) (*MemoryProvider, error) {
	f, err := os.Open(path) // #nosec G304 -- path is a user-provided data file
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(f)
}

// ReadCSV parses chain snapshot rows from r and groups them by date.
func ReadCSV(r io.Reader) (*MemoryProvider, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot header: %w", err)
	}
	col, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*models.ChainSnapshot)
	var order []string

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading snapshot row %d: %w", line, err)
		}
		line++

		row, err := parseRow(record, col)
		if err != nil {
			return nil, fmt.Errorf("snapshot row %d: %w", line, err)
		}

		key := dateKey(row.date)
		snap, ok := byDate[key]
		if !ok {
			snap = &models.ChainSnapshot{Date: row.date, UnderlyingPrice: row.underlying}
			byDate[key] = snap
			order = append(order, key)
		}
		snap.Quotes = append(snap.Quotes, row.quote)
	}

	snapshots := make([]*models.ChainSnapshot, 0, len(order))
	for _, key := range order {
		snapshots = append(snapshots, byDate[key])
	}
	return NewMemoryProvider(snapshots), nil
}

// WriteCSV writes snapshots in the canonical column layout, one row per
// contract per date. Used by the fetcher and by tests.
func WriteCSV(w io.Writer, snapshots []*models.ChainSnapshot) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("writing snapshot header: %w", err)
	}
	for _, snap := range snapshots {
		for i := range snap.Quotes {
			q := &snap.Quotes[i]
			record := []string{
				snap.Date.UTC().Format("2006-01-02"),
				formatFloat(snap.UnderlyingPrice),
				formatFloat(q.Strike),
				q.Expiration.UTC().Format("2006-01-02"),
				rightFor(q.Type),
				formatFloat(q.Bid),
				formatFloat(q.Ask),
				formatFloat(q.Last),
				strconv.FormatInt(q.Volume, 10),
				strconv.FormatInt(q.OpenInterest, 10),
				formatFloat(q.Greeks.Delta),
				formatFloat(q.Greeks.Gamma),
				formatFloat(q.Greeks.Theta),
				formatFloat(q.Greeks.Vega),
				formatFloat(q.IV),
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("writing snapshot row: %w", err)
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

type csvRow struct {
	date       time.Time
	underlying float64
	quote      models.OptionQuote
}

func columnIndex(header []string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range csvColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("snapshot file missing column %q", name)
		}
	}
	return col, nil
}

func parseRow(record []string, col map[string]int) (csvRow, error) {
	var row csvRow
	var err error

	field := func(name string) string { return strings.TrimSpace(record[col[name]]) }

	row.date, err = time.Parse("2006-01-02", field("date"))
	if err != nil {
		return row, fmt.Errorf("bad date %q: %w", field("date"), err)
	}
	row.underlying, err = parseFloat(field("underlying_price"))
	if err != nil {
		return row, fmt.Errorf("bad underlying_price: %w", err)
	}

	q := &row.quote
	q.Strike, err = parseFloat(field("strike"))
	if err != nil {
		return row, fmt.Errorf("bad strike: %w", err)
	}
	q.Expiration, err = time.Parse("2006-01-02", field("expiration"))
	if err != nil {
		return row, fmt.Errorf("bad expiration %q: %w", field("expiration"), err)
	}
	q.Type, err = parseRight(field("right"))
	if err != nil {
		return row, err
	}
	if q.Bid, err = parseFloat(field("bid")); err != nil {
		return row, fmt.Errorf("bad bid: %w", err)
	}
	if q.Ask, err = parseFloat(field("ask")); err != nil {
		return row, fmt.Errorf("bad ask: %w", err)
	}
	if q.Last, err = parseFloat(field("close")); err != nil {
		return row, fmt.Errorf("bad close: %w", err)
	}
	if q.Volume, err = strconv.ParseInt(field("volume"), 10, 64); err != nil {
		return row, fmt.Errorf("bad volume: %w", err)
	}
	if q.OpenInterest, err = strconv.ParseInt(field("open_interest"), 10, 64); err != nil {
		return row, fmt.Errorf("bad open_interest: %w", err)
	}
	if q.Greeks.Delta, err = parseFloat(field("delta")); err != nil {
		return row, fmt.Errorf("bad delta: %w", err)
	}
	if q.Greeks.Gamma, err = parseFloat(field("gamma")); err != nil {
		return row, fmt.Errorf("bad gamma: %w", err)
	}
	if q.Greeks.Theta, err = parseFloat(field("theta")); err != nil {
		return row, fmt.Errorf("bad theta: %w", err)
	}
	if q.Greeks.Vega, err = parseFloat(field("vega")); err != nil {
		return row, fmt.Errorf("bad vega: %w", err)
	}
	if q.IV, err = parseFloat(field("implied_volatility")); err != nil {
		return row, fmt.Errorf("bad implied_volatility: %w", err)
	}
	return row, nil
}

func parseRight(s string) (models.OptionType, error) {
	switch strings.ToLower(s) {
	case "c", "call":
		return models.OptionTypeCall, nil
	case "p", "put":
		return models.OptionTypePut, nil
	default:
		return "", fmt.Errorf("bad right %q: want C/P or call/put", s)
	}
}

func rightFor(t models.OptionType) string {
	if t == models.OptionTypePut {
		return "P"
	}
	return "C"
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
