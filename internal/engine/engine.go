// Package engine implements the backtest orchestrator: the single-threaded
// day loop that drives filtering, selection, position tracking, exit
// evaluation, and equity accounting over a historical snapshot sequence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/manisahni/optionslab-sub000/internal/config"
	"github.com/manisahni/optionslab-sub000/internal/exits"
	"github.com/manisahni/optionslab-sub000/internal/filter"
	"github.com/manisahni/optionslab-sub000/internal/marketdata"
	"github.com/manisahni/optionslab-sub000/internal/metrics"
	"github.com/manisahni/optionslab-sub000/internal/models"
	"github.com/manisahni/optionslab-sub000/internal/positions"
	"github.com/manisahni/optionslab-sub000/internal/recorder"
	"github.com/manisahni/optionslab-sub000/internal/selector"
)

// positionIDNamespace seeds deterministic position ids: the same config and
// data always mint the same ids, which keeps full runs byte-reproducible.
var positionIDNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Result is the complete output of one backtest run. It is fully
// reconstructible from the audit log.
type Result struct {
	Symbol         string               `json:"symbol"`
	StartDate      time.Time            `json:"start_date"`
	EndDate        time.Time            `json:"end_date"`
	InitialCapital float64              `json:"initial_capital"`
	FinalValue     float64              `json:"final_value"`
	Trades         []models.ClosedTrade `json:"trades"`
	EquityCurve    []models.EquityPoint `json:"equity_curve"`
	Metrics        metrics.Metrics      `json:"metrics"`
	AuditLog       []string             `json:"audit_log"`
}

// Engine runs one backtest. Engines are single-use and single-threaded: the
// day loop is the only control flow, and all mutable state (open positions,
// cash) is owned here. Parallelism belongs across engines, never inside one.
type Engine struct {
	cfg      *config.Config
	provider marketdata.Provider
	logger   *logrus.Logger

	gate      *filter.Filter
	selector  *selector.Selector
	tracker   *positions.Tracker
	evaluator *exits.Evaluator
	recorder  *recorder.Recorder

	cash    float64
	open    map[string]*models.Position
	openIDs []string // stable iteration order for the open set
	closes  []float64
	seq     int
}

// New validates the configuration and builds a ready-to-run Engine.
// Configuration errors are fatal here, before the first simulated day.
func New(cfg *config.Config, provider marketdata.Provider, logger *logrus.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if provider == nil {
		return nil, errors.New("nil snapshot provider")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Engine{
		cfg:       cfg,
		provider:  provider,
		logger:    logger,
		gate:      filter.New(cfg.Strategy.MarketFilters),
		selector:  selector.New(cfg.Strategy.OptionSelection, cfg.Risk),
		tracker:   positions.New(),
		evaluator: exits.New(&cfg.Strategy),
		recorder:  recorder.New(),
		cash:      cfg.Risk.InitialCapital,
		open:      make(map[string]*models.Position),
	}, nil
}

// Run executes the full simulation and returns its result. Recoverable
// conditions (data gaps, no candidate, stale quotes) become audit entries;
// a completed run always returns a result, possibly with zero trades.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	dates := e.provider.TradingDates()
	if len(dates) == 0 {
		return nil, errors.New("snapshot provider has no trading dates")
	}

	e.logger.WithFields(logrus.Fields{
		"symbol": e.cfg.Strategy.Symbol,
		"days":   len(dates),
		"start":  dates[0].Format("2006-01-02"),
		"end":    dates[len(dates)-1].Format("2006-01-02"),
	}).Info("starting backtest")

	var equity []models.EquityPoint
	lastIdx := len(dates) - 1

	for i, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snap, err := e.provider.Snapshot(date)
		if err != nil {
			if errors.Is(err, marketdata.ErrNoSnapshot) {
				e.handleGapDay(date)
				// The period still ends on a gap day: close whatever is
				// open at the carried-forward mark.
				if i == lastIdx {
					e.forceCloseAll(date)
				}
				equity = append(equity, e.equityPoint(date))
				continue
			}
			return nil, fmt.Errorf("loading snapshot for %s: %w", date.Format("2006-01-02"), err)
		}

		e.closes = append(e.closes, snap.UnderlyingPrice)

		// 1. Advance marks and Greeks for every open position.
		e.markAll(snap)

		// 2. Evaluate exits over a stable snapshot of the open set;
		//    closures apply after the iteration completes.
		e.evaluateExits(snap)

		// 3. New entries, unless at capacity or gated out.
		e.tryEntry(snap)

		// Final day: everything still open closes at today's mark before
		// metrics are computed.
		if i == lastIdx {
			e.forceCloseAll(date)
		}

		// 4. One equity point per simulated day.
		equity = append(equity, e.equityPoint(date))
	}

	result := &Result{
		Symbol:         e.cfg.Strategy.Symbol,
		StartDate:      dates[0],
		EndDate:        dates[lastIdx],
		InitialCapital: e.cfg.Risk.InitialCapital,
		FinalValue:     equity[len(equity)-1].TotalValue,
		Trades:         e.recorder.Trades(),
		EquityCurve:    equity,
		AuditLog:       e.recorder.AuditLog(),
	}
	result.Metrics = metrics.Compute(result.Trades, result.EquityCurve, metrics.ComplianceTarget{
		Delta:     e.cfg.Strategy.OptionSelection.Delta.Target,
		Tolerance: e.cfg.Strategy.OptionSelection.Delta.Tolerance,
	})

	e.logger.WithFields(logrus.Fields{
		"trades":      len(result.Trades),
		"final_value": result.FinalValue,
	}).Info("backtest complete")
	return result, nil
}

// handleGapDay carries open positions forward across a missing snapshot.
// No entries and no exits happen without quotes.
func (e *Engine) handleGapDay(date time.Time) {
	e.recorder.Audit(date, recorder.EventDataGap, "no snapshot, marks carried forward")
	for _, id := range e.openIDs {
		e.tracker.CarryForward(e.open[id], date, 0)
	}
}

func (e *Engine) markAll(snap *models.ChainSnapshot) {
	for _, id := range e.openIDs {
		pos := e.open[id]
		res := e.tracker.MarkToMarket(pos, snap)
		if res.Stale {
			e.recorder.Audit(snap.Date, recorder.EventStaleMark,
				fmt.Sprintf("%s | prior mark %.2f carried forward", pos.ContractKey(), res.Mark))
		}
	}
}

func (e *Engine) evaluateExits(snap *models.ChainSnapshot) {
	var closed []string
	for _, id := range e.openIDs {
		pos := e.open[id]
		verdict := e.evaluator.Evaluate(pos, snap.Date)
		if verdict == nil {
			continue
		}
		e.closePosition(pos, verdict.Reason, snap.Date, verdict.Detail)
		closed = append(closed, id)
	}
	e.removeClosed(closed)
}

// closePosition fills the exit at the day's mark and settles cash. Cash
// changes only here and at entry.
func (e *Engine) closePosition(pos *models.Position, reason models.ExitReason, date time.Time, detail string) {
	exitFill := pos.CurrentMark
	e.cash += pos.CurrentValue()
	pos.Open = false
	e.recorder.RecordClose(pos, reason, exitFill, date, detail)
}

func (e *Engine) removeClosed(ids []string) {
	if len(ids) == 0 {
		return
	}
	closed := make(map[string]bool, len(ids))
	for _, id := range ids {
		closed[id] = true
		delete(e.open, id)
	}
	remaining := e.openIDs[:0]
	for _, id := range e.openIDs {
		if !closed[id] {
			remaining = append(remaining, id)
		}
	}
	e.openIDs = remaining
}

func (e *Engine) canEnter() bool {
	return len(e.openIDs) < e.cfg.Risk.MaxConcurrentPositions
}

func (e *Engine) tryEntry(snap *models.ChainSnapshot) {
	if !e.canEnter() {
		e.recorder.RecordSkip(snap.Date, fmt.Sprintf("at max concurrent positions (%d)",
			e.cfg.Risk.MaxConcurrentPositions))
		return
	}

	decision := e.gate.AllowEntry(e.closes)
	if !decision.Allow {
		e.recorder.RecordSkip(snap.Date, fmt.Sprintf("market filter denied entry: %s", decision.Reason))
		return
	}

	sel, rationale := e.selector.Select(snap, e.cash)
	if sel == nil {
		e.recorder.RecordSkip(snap.Date, rationale)
		return
	}

	pos := e.openPosition(snap, sel)
	e.recorder.RecordOpen(pos, rationale)
	e.logger.WithFields(logrus.Fields{
		"contract": pos.ContractKey(),
		"qty":      pos.Contracts,
		"cost":     pos.EntryCost,
	}).Debug("opened position")
}

func (e *Engine) openPosition(snap *models.ChainSnapshot, sel *selector.Selection) *models.Position {
	e.seq++
	id := uuid.NewSHA1(positionIDNamespace, []byte(fmt.Sprintf("%s|%s|%d",
		e.cfg.Strategy.Symbol, snap.Date.Format("2006-01-02"), e.seq))).String()

	pos := &models.Position{
		ID:          id,
		Symbol:      e.cfg.Strategy.Symbol,
		Type:        sel.Quote.Type,
		Strike:      sel.Quote.Strike,
		Expiration:  sel.Quote.Expiration,
		EntryDate:   snap.Date,
		EntryFill:   sel.FillPrice,
		Contracts:   sel.Contracts,
		EntryCost:   sel.EntryCost,
		EntryGreeks: sel.Quote.Greeks,
		EntryIV:     sel.Quote.IV,
		EntrySpot:   snap.UnderlyingPrice,
		Open:        true,
	}
	e.tracker.Seed(pos, &sel.Quote, snap.UnderlyingPrice, snap.Date)

	e.cash -= pos.EntryCost
	e.open[id] = pos
	e.openIDs = append(e.openIDs, id)
	return pos
}

// forceCloseAll closes every remaining position at its current mark on the
// final simulated day.
func (e *Engine) forceCloseAll(date time.Time) {
	if len(e.openIDs) == 0 {
		return
	}
	ids := make([]string, len(e.openIDs))
	copy(ids, e.openIDs)
	for _, id := range ids {
		e.closePosition(e.open[id], models.ExitReasonEndOfPeriod, date, "end of simulated period")
	}
	e.removeClosed(ids)
}

func (e *Engine) equityPoint(date time.Time) models.EquityPoint {
	var openValue float64
	for _, id := range e.openIDs {
		openValue += e.open[id].CurrentValue()
	}
	return models.EquityPoint{
		Date:       date,
		Cash:       e.cash,
		OpenValue:  openValue,
		TotalValue: e.cash + openValue,
	}
}
