// Package report exports run results as CSV and JSON files for external
// analysis and visualization tooling.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/manisahni/optionslab-sub000/internal/engine"
	"github.com/manisahni/optionslab-sub000/internal/models"
)

// WriteAll writes trades.csv, equity.csv, audit.log, and result.json for
// one run under dir, creating it as needed.
func WriteAll(dir string, result *engine.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"trades.csv", func(w io.Writer) error { return WriteTradesCSV(w, result.Trades) }},
		{"equity.csv", func(w io.Writer) error { return WriteEquityCSV(w, result.EquityCurve) }},
		{"audit.log", func(w io.Writer) error { return WriteAuditLog(w, result.AuditLog) }},
		{"result.json", func(w io.Writer) error { return WriteResultJSON(w, result) }},
	}
	for _, spec := range writers {
		if err := writeFile(filepath.Join(dir, spec.name), spec.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path) // #nosec G304 -- path is under a user-provided report dir
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WriteTradesCSV writes the closed-trade ledger, one row per trade.
func WriteTradesCSV(w io.Writer, trades []models.ClosedTrade) error {
	writer := csv.NewWriter(w)
	header := []string{
		"id", "symbol", "type", "strike", "expiration",
		"entry_date", "entry_fill", "contracts", "entry_cost", "entry_delta", "entry_iv",
		"exit_date", "exit_fill", "exit_delta", "exit_iv",
		"realized_pnl", "pnl_pct", "holding_days", "reason",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		record := []string{
			t.ID,
			t.Symbol,
			string(t.Type),
			formatFloat(t.Strike),
			t.Expiration.Format("2006-01-02"),
			t.EntryDate.Format("2006-01-02"),
			formatFloat(t.EntryFill),
			strconv.Itoa(t.Contracts),
			formatFloat(t.EntryCost),
			formatFloat(t.EntryGreeks.Delta),
			formatFloat(t.EntryIV),
			t.ExitDate.Format("2006-01-02"),
			formatFloat(t.ExitFill),
			formatFloat(t.ExitGreeks.Delta),
			formatFloat(t.ExitIV),
			formatFloat(t.RealizedPnL),
			formatFloat(t.PnLPct),
			strconv.Itoa(t.HoldingDays),
			string(t.Reason),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteEquityCSV writes the daily equity curve.
func WriteEquityCSV(w io.Writer, equity []models.EquityPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"date", "cash", "open_value", "total_value"}); err != nil {
		return err
	}
	for _, p := range equity {
		record := []string{
			p.Date.Format("2006-01-02"),
			formatFloat(p.Cash),
			formatFloat(p.OpenValue),
			formatFloat(p.TotalValue),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteAuditLog writes the audit trail, one line per decision.
func WriteAuditLog(w io.Writer, audit []string) error {
	for _, line := range audit {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteResultJSON writes the full result object, indented for humans.
func WriteResultJSON(w io.Writer, result *engine.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
