package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/manisahni/optionslab-sub000/internal/engine"
	"github.com/manisahni/optionslab-sub000/internal/models"
)

func sampleResult() *engine.Result {
	entry := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	exit := time.Date(2024, 3, 22, 0, 0, 0, 0, time.UTC)
	return &engine.Result{
		Symbol:         "SPY",
		StartDate:      entry,
		EndDate:        exit,
		InitialCapital: 10000,
		FinalValue:     10250,
		Trades: []models.ClosedTrade{
			{
				ID: "t1", Symbol: "SPY", Type: models.OptionTypeCall,
				Strike: 455, Expiration: time.Date(2024, 4, 19, 0, 0, 0, 0, time.UTC),
				EntryDate: entry, EntryFill: 5.00, Contracts: 1, EntryCost: 500,
				ExitDate: exit, ExitFill: 7.50, RealizedPnL: 250, PnLPct: 0.5,
				HoldingDays: 8, Reason: models.ExitReasonProfitTarget,
			},
		},
		EquityCurve: []models.EquityPoint{
			{Date: entry, Cash: 9500, OpenValue: 500, TotalValue: 10000},
			{Date: exit, Cash: 10250, TotalValue: 10250},
		},
		AuditLog: []string{
			"2024-03-15 | entry | call-455.00-2024-04-19",
			"2024-03-22 | exit | reason=profit_target",
		},
	}
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	if err := WriteAll(dir, sampleResult()); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	for _, name := range []string{"trades.csv", "equity.csv", "audit.log", "result.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}

	t.Run("trades csv", func(t *testing.T) {
		f, err := os.Open(filepath.Join(dir, "trades.csv"))
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()

		rows, err := csv.NewReader(f).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 2 {
			t.Fatalf("Expected header + 1 trade, got %d rows", len(rows))
		}
		if rows[0][0] != "id" || rows[0][len(rows[0])-1] != "reason" {
			t.Errorf("Unexpected header: %v", rows[0])
		}
		row := rows[1]
		if row[0] != "t1" || row[len(row)-1] != "profit_target" {
			t.Errorf("Unexpected trade row: %v", row)
		}
	})

	t.Run("equity csv", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "equity.csv"))
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("Expected header + 2 points, got %d lines", len(lines))
		}
		if lines[0] != "date,cash,open_value,total_value" {
			t.Errorf("Unexpected equity header: %q", lines[0])
		}
	})

	t.Run("audit log verbatim", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "audit.log"))
		if err != nil {
			t.Fatal(err)
		}
		want := strings.Join(sampleResult().AuditLog, "\n") + "\n"
		if string(data) != want {
			t.Errorf("Audit log altered on export:\n%q\nwant\n%q", data, want)
		}
	})

	t.Run("result json round trips", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "result.json"))
		if err != nil {
			t.Fatal(err)
		}
		var got engine.Result
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("result.json does not parse: %v", err)
		}
		if got.Symbol != "SPY" || got.FinalValue != 10250 || len(got.Trades) != 1 {
			t.Errorf("result.json lost fields: %+v", got)
		}
	})
}

func TestWriteAll_EmptyRun(t *testing.T) {
	dir := t.TempDir()
	result := &engine.Result{Symbol: "SPY", InitialCapital: 10000, FinalValue: 10000}
	if err := WriteAll(dir, result); err != nil {
		t.Fatalf("WriteAll on an empty run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "trades.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 1 {
		t.Errorf("Expected a header-only trades.csv, got %d lines", len(lines))
	}
}
