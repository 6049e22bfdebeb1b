// Package storage persists completed backtest runs so they can be compared
// and served after the process exits.
package storage

import (
	"context"
	"time"

	"github.com/manisahni/optionslab-sub000/internal/engine"
	"github.com/manisahni/optionslab-sub000/internal/metrics"
	"github.com/manisahni/optionslab-sub000/internal/models"
)

// RunSummary is the stored header for one completed run.
type RunSummary struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	InitialCapital float64         `json:"initial_capital"`
	FinalValue     float64         `json:"final_value"`
	TotalTrades    int             `json:"total_trades"`
	Metrics        metrics.Metrics `json:"metrics"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Interface defines run persistence operations.
type Interface interface {
	// SaveRun stores a completed run and returns its assigned id.
	SaveRun(ctx context.Context, result *engine.Result) (string, error)
	// ListRuns returns stored run headers, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)
	// GetRun returns one run header by id.
	GetRun(ctx context.Context, id string) (*RunSummary, error)
	// LoadTrades returns a run's closed-trade ledger in close order.
	LoadTrades(ctx context.Context, id string) ([]models.ClosedTrade, error)
	// LoadEquity returns a run's equity curve in date order.
	LoadEquity(ctx context.Context, id string) ([]models.EquityPoint, error)
	// LoadAuditLog returns a run's audit trail.
	LoadAuditLog(ctx context.Context, id string) ([]string, error)
	// Close releases the underlying store.
	Close() error
}
