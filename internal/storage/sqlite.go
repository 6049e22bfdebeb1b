package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/manisahni/optionslab-sub000/internal/engine"
	"github.com/manisahni/optionslab-sub000/internal/metrics"
	"github.com/manisahni/optionslab-sub000/internal/models"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Interface = (*SQLiteStore)(nil)

// ErrRunNotFound is returned when the requested run id does not exist.
var ErrRunNotFound = fmt.Errorf("run not found")

const dateLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	start_date      TEXT NOT NULL,
	end_date        TEXT NOT NULL,
	initial_capital REAL NOT NULL,
	final_value     REAL NOT NULL,
	total_trades    INTEGER NOT NULL,
	metrics_json    TEXT NOT NULL,
	audit_log       TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	seq          INTEGER NOT NULL,
	trade_json   TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS equity_points (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	date        TEXT NOT NULL,
	cash        REAL NOT NULL,
	open_value  REAL NOT NULL,
	total_value REAL NOT NULL,
	PRIMARY KEY (run_id, date)
);
`

// SQLiteStore implements Interface backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun stores a completed run atomically and returns its assigned id.
func (s *SQLiteStore) SaveRun(ctx context.Context, result *engine.Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("nil result")
	}
	id := uuid.New().String()

	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return "", fmt.Errorf("marshal metrics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, symbol, start_date, end_date, initial_capital, final_value, total_trades, metrics_json, audit_log, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		result.Symbol,
		result.StartDate.UTC().Format(dateLayout),
		result.EndDate.UTC().Format(dateLayout),
		result.InitialCapital,
		result.FinalValue,
		len(result.Trades),
		string(metricsJSON),
		strings.Join(result.AuditLog, "\n"),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, trade := range result.Trades {
		tradeJSON, err := json.Marshal(trade)
		if err != nil {
			return "", fmt.Errorf("marshal trade %s: %w", trade.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trades (run_id, seq, trade_json) VALUES (?, ?, ?)`,
			id, i, string(tradeJSON),
		); err != nil {
			return "", fmt.Errorf("insert trade %s: %w", trade.ID, err)
		}
	}

	for _, pt := range result.EquityCurve {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO equity_points (run_id, date, cash, open_value, total_value) VALUES (?, ?, ?, ?, ?)`,
			id, pt.Date.UTC().Format(dateLayout), pt.Cash, pt.OpenValue, pt.TotalValue,
		); err != nil {
			return "", fmt.Errorf("insert equity point %s: %w", pt.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run %s: %w", id, err)
	}
	return id, nil
}

// ListRuns returns stored run headers, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, start_date, end_date, initial_capital, final_value, total_trades, metrics_json, created_at
		 FROM runs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *summary)
	}
	return runs, rows.Err()
}

// GetRun returns one run header by id, or ErrRunNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, start_date, end_date, initial_capital, final_value, total_trades, metrics_json, created_at
		 FROM runs WHERE id = ?`, id)
	summary, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// LoadTrades returns a run's closed-trade ledger in close order.
func (s *SQLiteStore) LoadTrades(ctx context.Context, id string) ([]models.ClosedTrade, error) {
	if err := s.ensureRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT trade_json FROM trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.ClosedTrade
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		var trade models.ClosedTrade
		if err := json.Unmarshal([]byte(raw), &trade); err != nil {
			return nil, fmt.Errorf("unmarshal trade: %w", err)
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// LoadEquity returns a run's equity curve in date order.
func (s *SQLiteStore) LoadEquity(ctx context.Context, id string) ([]models.EquityPoint, error) {
	if err := s.ensureRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, cash, open_value, total_value FROM equity_points WHERE run_id = ? ORDER BY date`, id)
	if err != nil {
		return nil, fmt.Errorf("query equity points: %w", err)
	}
	defer rows.Close()

	var curve []models.EquityPoint
	for rows.Next() {
		var dateStr string
		var pt models.EquityPoint
		if err := rows.Scan(&dateStr, &pt.Cash, &pt.OpenValue, &pt.TotalValue); err != nil {
			return nil, fmt.Errorf("scan equity point: %w", err)
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse equity date %q: %w", dateStr, err)
		}
		pt.Date = date
		curve = append(curve, pt)
	}
	return curve, rows.Err()
}

// LoadAuditLog returns a run's audit trail.
func (s *SQLiteStore) LoadAuditLog(ctx context.Context, id string) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT audit_log FROM runs WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	return strings.Split(raw, "\n"), nil
}

func (s *SQLiteStore) ensureRun(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrRunNotFound
	}
	return err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunSummary, error) {
	var (
		summary                     RunSummary
		startStr, endStr, createdAt string
		metricsJSON                 string
	)
	err := row.Scan(&summary.ID, &summary.Symbol, &startStr, &endStr,
		&summary.InitialCapital, &summary.FinalValue, &summary.TotalTrades,
		&metricsJSON, &createdAt)
	if err != nil {
		return nil, err
	}
	if summary.StartDate, err = time.Parse(dateLayout, startStr); err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", startStr, err)
	}
	if summary.EndDate, err = time.Parse(dateLayout, endStr); err != nil {
		return nil, fmt.Errorf("parse end date %q: %w", endStr, err)
	}
	if summary.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	var m metrics.Metrics
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	summary.Metrics = m
	return &summary, nil
}
