// Package exits implements the priority-ordered exit rule evaluation for
// open positions.
package exits

import (
	"fmt"
	"math"
	"time"

	"github.com/manisahni/optionslab-sub000/internal/config"
	"github.com/manisahni/optionslab-sub000/internal/models"
)

// Verdict is a fired exit: the winning rule's reason and a rationale string
// for the audit log.
type Verdict struct {
	Reason models.ExitReason
	Detail string
}

// Rule is one exit predicate. Rules are pure: they read position state and
// never mutate it.
type Rule interface {
	Name() models.ExitReason
	Fires(pos *models.Position, date time.Time) (bool, string)
}

// Evaluator checks an ordered rule list against a position once per day.
// The order is fixed by priority, not by config order: profit target and
// stop loss first, then the delta stop, then indicator exits, then the time
// stop, with forced expiration always last. The first rule that fires wins
// and no further rules are checked.
type Evaluator struct {
	rules []Rule
}

// New compiles the configured exit rules into an Evaluator. Unknown
// conditions were already rejected by config validation. The implicit
// expiration rule is appended as the lowest-priority rule.
func New(strategy *config.StrategyConfig) *Evaluator {
	var rules []Rule
	if r := strategy.ExitRule(config.ConditionProfitTarget); r != nil {
		rules = append(rules, profitTarget{pct: r.Threshold})
	}
	if r := strategy.ExitRule(config.ConditionStopLoss); r != nil {
		rules = append(rules, stopLoss{pct: r.Threshold})
	}
	if r := strategy.ExitRule(config.ConditionDeltaStop); r != nil {
		rules = append(rules, deltaStop{floor: r.Threshold})
	}
	if r := strategy.ExitRule(config.ConditionIndicatorExit); r != nil {
		rules = append(rules, indicatorExit{ivDrop: r.Threshold})
	}
	if r := strategy.ExitRule(config.ConditionTimeStop); r != nil {
		rules = append(rules, timeStop{maxDTE: r.MaxDTE})
	}
	rules = append(rules, expiration{})
	return &Evaluator{rules: rules}
}

// Evaluate returns the first rule that fires for the position today, or nil
// when the position stays open.
func (e *Evaluator) Evaluate(pos *models.Position, date time.Time) *Verdict {
	for _, rule := range e.rules {
		if fired, detail := rule.Fires(pos, date); fired {
			return &Verdict{Reason: rule.Name(), Detail: detail}
		}
	}
	return nil
}

// profitTarget fires when the position's value reaches entry cost × (1+pct).
type profitTarget struct {
	pct float64
}

func (r profitTarget) Name() models.ExitReason { return models.ExitReasonProfitTarget }

func (r profitTarget) Fires(pos *models.Position, _ time.Time) (bool, string) {
	target := pos.EntryCost * (1 + r.pct)
	if pos.CurrentValue() >= target {
		return true, fmt.Sprintf("value %.2f >= target %.2f", pos.CurrentValue(), target)
	}
	return false, ""
}

// stopLoss fires when the position's value falls to entry cost × (1−pct).
type stopLoss struct {
	pct float64
}

func (r stopLoss) Name() models.ExitReason { return models.ExitReasonStopLoss }

func (r stopLoss) Fires(pos *models.Position, _ time.Time) (bool, string) {
	floor := pos.EntryCost * (1 - r.pct)
	if pos.CurrentValue() <= floor {
		return true, fmt.Sprintf("value %.2f <= floor %.2f", pos.CurrentValue(), floor)
	}
	return false, ""
}

// deltaStop fires when the position's delta decays to or below the floor.
type deltaStop struct {
	floor float64
}

func (r deltaStop) Name() models.ExitReason { return models.ExitReasonDeltaStop }

func (r deltaStop) Fires(pos *models.Position, _ time.Time) (bool, string) {
	last := pos.LastGreeks()
	if last == nil {
		return false, ""
	}
	delta := math.Abs(last.Greeks.Delta)
	if delta <= r.floor {
		return true, fmt.Sprintf("delta %.3f <= floor %.3f", delta, r.floor)
	}
	return false, ""
}

// indicatorExit fires when implied volatility has declined from the entry
// reading by the configured fraction (an IV-crush exit).
type indicatorExit struct {
	ivDrop float64
}

func (r indicatorExit) Name() models.ExitReason { return models.ExitReasonIndicatorExit }

func (r indicatorExit) Fires(pos *models.Position, _ time.Time) (bool, string) {
	last := pos.LastGreeks()
	if last == nil || pos.EntryIV <= 0 {
		return false, ""
	}
	threshold := pos.EntryIV * (1 - r.ivDrop)
	if last.IV <= threshold {
		return true, fmt.Sprintf("iv %.3f <= %.3f (entry %.3f)", last.IV, threshold, pos.EntryIV)
	}
	return false, ""
}

// timeStop fires when the position's remaining DTE reaches the threshold.
type timeStop struct {
	maxDTE int
}

func (r timeStop) Name() models.ExitReason { return models.ExitReasonTimeStop }

func (r timeStop) Fires(pos *models.Position, date time.Time) (bool, string) {
	dte := pos.DTEAt(date)
	if dte <= r.maxDTE {
		return true, fmt.Sprintf("dte %d <= max %d", dte, r.maxDTE)
	}
	return false, ""
}

// expiration is the implicit lowest-priority rule: a contract at 0 DTE must
// close regardless of configuration.
type expiration struct{}

func (r expiration) Name() models.ExitReason { return models.ExitReasonExpiration }

func (r expiration) Fires(pos *models.Position, date time.Time) (bool, string) {
	if pos.DTEAt(date) <= 0 {
		return true, "contract expired"
	}
	return false, ""
}
