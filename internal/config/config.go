// Package config provides strategy configuration loading and validation
// for the backtest engine.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/manisahni/optionslab-sub000/internal/models"
	yaml "gopkg.in/yaml.v3"
)

// Exit rule condition names. The order rules appear in the config selects
// which are active, never the order they are checked in; evaluation priority
// is fixed by the exits package.
const (
	ConditionProfitTarget  = "profit_target"
	ConditionStopLoss      = "stop_loss"
	ConditionDeltaStop     = "delta_stop"
	ConditionIndicatorExit = "indicator_exit"
	ConditionTimeStop      = "time_stop"
)

// Defaults applied by normalize when fields are unset.
const (
	defaultMaxSpreadPct    = 0.25
	defaultCommission      = 0.65
	defaultMaxPositions    = 1
	defaultVolRegimeWindow = 20
)

// Config represents the complete strategy configuration for one run.
type Config struct {
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`
}

// StrategyConfig defines option selection, exits, and market filters.
type StrategyConfig struct {
	Symbol          string           `yaml:"symbol"`
	OptionSelection SelectionConfig  `yaml:"option_selection"`
	ExitRules       []ExitRuleConfig `yaml:"exit_rules"`
	MarketFilters   *FilterConfig    `yaml:"market_filters,omitempty"`
}

// SelectionConfig defines how entry candidates are chosen from the chain.
type SelectionConfig struct {
	Type      string          `yaml:"type"` // call | put | either
	Delta     DeltaConfig     `yaml:"delta"`
	DTE       DTEConfig       `yaml:"dte"`
	Liquidity LiquidityConfig `yaml:"liquidity"`
}

// DeltaConfig defines the delta target band for entry candidates.
type DeltaConfig struct {
	Target    float64 `yaml:"target"`
	Tolerance float64 `yaml:"tolerance"`
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
}

// DTEConfig defines the days-to-expiration band for entry candidates.
type DTEConfig struct {
	Target int `yaml:"target"`
	Min    int `yaml:"min"`
	Max    int `yaml:"max"`
}

// LiquidityConfig defines the liquidity floor for entry candidates.
type LiquidityConfig struct {
	MinVolume    int64   `yaml:"min_volume"`
	MaxSpreadPct float64 `yaml:"max_spread_pct"`
}

// ExitRuleConfig enables one exit condition with its threshold.
// Threshold semantics depend on the condition:
//
//	profit_target  — fractional gain on entry cost (0.50 = +50%)
//	stop_loss      — fractional loss on entry cost (0.50 = -50%)
//	delta_stop     — absolute delta floor
//	indicator_exit — fractional IV decline from entry (0.30 = IV down 30%)
//	time_stop      — uses MaxDTE instead of Threshold
type ExitRuleConfig struct {
	Condition string  `yaml:"condition"`
	Threshold float64 `yaml:"threshold,omitempty"`
	MaxDTE    int     `yaml:"max_dte,omitempty"`
}

// FilterConfig defines the optional market-regime entry gate.
type FilterConfig struct {
	Mode      string           `yaml:"mode"` // all | any
	Trend     *TrendConfig     `yaml:"trend,omitempty"`
	RSI       *RSIConfig       `yaml:"rsi,omitempty"`
	Bollinger *BollingerConfig `yaml:"bollinger,omitempty"`
	VolRegime *VolRegimeConfig `yaml:"vol_regime,omitempty"`
}

// TrendConfig gates entries on the underlying trading above its SMA.
type TrendConfig struct {
	Enabled   bool `yaml:"enabled"`
	SMAWindow int  `yaml:"sma_window"`
}

// RSIConfig gates entries on the RSI oscillator staying inside a band.
type RSIConfig struct {
	Enabled bool    `yaml:"enabled"`
	Window  int     `yaml:"window"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

// BollingerConfig gates entries on the underlying staying inside its bands.
type BollingerConfig struct {
	Enabled bool    `yaml:"enabled"`
	Window  int     `yaml:"window"`
	K       float64 `yaml:"k"`
}

// VolRegimeConfig gates entries on the realized-vol percentile bucket.
type VolRegimeConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Window        int     `yaml:"window"`
	MinPercentile float64 `yaml:"min_percentile"`
	MaxPercentile float64 `yaml:"max_percentile"`
}

// RiskConfig defines capital, sizing, and commission parameters.
type RiskConfig struct {
	InitialCapital         float64 `yaml:"initial_capital"`
	PositionSizeFraction   float64 `yaml:"position_size_fraction"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	CommissionPerContract  float64 `yaml:"commission_per_contract"`
}

// Load reads and parses the strategy configuration file from the given path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// OptionTypes returns the contract types the selection bias admits.
func (s *SelectionConfig) OptionTypes() []models.OptionType {
	switch s.Type {
	case "call":
		return []models.OptionType{models.OptionTypeCall}
	case "put":
		return []models.OptionType{models.OptionTypePut}
	default:
		return []models.OptionType{models.OptionTypeCall, models.OptionTypePut}
	}
}

// ExitRule returns the configured rule for the named condition, or nil when
// the condition is not enabled.
func (s *StrategyConfig) ExitRule(condition string) *ExitRuleConfig {
	for i := range s.ExitRules {
		if s.ExitRules[i].Condition == condition {
			return &s.ExitRules[i]
		}
	}
	return nil
}

// Validate checks that all configuration values are valid and internally
// consistent. Validation failures are fatal: the engine must refuse to run.
func (c *Config) Validate() error {
	c.normalize()

	if c.Strategy.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}

	sel := &c.Strategy.OptionSelection
	switch sel.Type {
	case "call", "put", "either":
	default:
		return fmt.Errorf("strategy.option_selection.type must be 'call', 'put', or 'either'")
	}
	if sel.Delta.Target <= 0 || sel.Delta.Target >= 1 {
		return fmt.Errorf("strategy.option_selection.delta.target must be in (0,1)")
	}
	if sel.Delta.Tolerance < 0 {
		return fmt.Errorf("strategy.option_selection.delta.tolerance must be >= 0")
	}
	if sel.Delta.Min < 0 || sel.Delta.Max <= 0 || sel.Delta.Min > sel.Delta.Max {
		return fmt.Errorf("strategy.option_selection.delta min/max must satisfy 0 <= min <= max")
	}
	if sel.DTE.Min <= 0 || sel.DTE.Max <= 0 || sel.DTE.Min > sel.DTE.Max {
		return fmt.Errorf("strategy.option_selection.dte must be [min,max] with positive values and min <= max")
	}
	if sel.DTE.Target < sel.DTE.Min || sel.DTE.Target > sel.DTE.Max {
		return fmt.Errorf("strategy.option_selection.dte.target (%d) must be within dte range [%d,%d]",
			sel.DTE.Target, sel.DTE.Min, sel.DTE.Max)
	}
	if sel.Liquidity.MinVolume < 0 {
		return fmt.Errorf("strategy.option_selection.liquidity.min_volume must be >= 0")
	}
	if sel.Liquidity.MaxSpreadPct <= 0 {
		return fmt.Errorf("strategy.option_selection.liquidity.max_spread_pct must be > 0")
	}

	if len(c.Strategy.ExitRules) == 0 {
		return fmt.Errorf("strategy.exit_rules must contain at least one rule")
	}
	seen := make(map[string]bool, len(c.Strategy.ExitRules))
	for i, rule := range c.Strategy.ExitRules {
		if seen[rule.Condition] {
			return fmt.Errorf("strategy.exit_rules[%d]: duplicate condition %q", i, rule.Condition)
		}
		seen[rule.Condition] = true
		switch rule.Condition {
		case ConditionProfitTarget, ConditionStopLoss, ConditionIndicatorExit:
			if rule.Threshold <= 0 {
				return fmt.Errorf("strategy.exit_rules[%d] (%s): threshold must be > 0", i, rule.Condition)
			}
		case ConditionDeltaStop:
			if rule.Threshold <= 0 || rule.Threshold >= 1 {
				return fmt.Errorf("strategy.exit_rules[%d] (delta_stop): threshold must be in (0,1)", i)
			}
		case ConditionTimeStop:
			if rule.MaxDTE <= 0 {
				return fmt.Errorf("strategy.exit_rules[%d] (time_stop): max_dte must be > 0", i)
			}
		default:
			return fmt.Errorf("strategy.exit_rules[%d]: unknown condition %q", i, rule.Condition)
		}
	}

	if f := c.Strategy.MarketFilters; f != nil {
		if f.Mode != "all" && f.Mode != "any" {
			return fmt.Errorf("strategy.market_filters.mode must be 'all' or 'any'")
		}
		if f.Trend != nil && f.Trend.Enabled && f.Trend.SMAWindow <= 1 {
			return fmt.Errorf("strategy.market_filters.trend.sma_window must be > 1")
		}
		if f.RSI != nil && f.RSI.Enabled {
			if f.RSI.Window <= 1 {
				return fmt.Errorf("strategy.market_filters.rsi.window must be > 1")
			}
			if f.RSI.Min < 0 || f.RSI.Max > 100 || f.RSI.Min >= f.RSI.Max {
				return fmt.Errorf("strategy.market_filters.rsi min/max must satisfy 0 <= min < max <= 100")
			}
		}
		if f.Bollinger != nil && f.Bollinger.Enabled {
			if f.Bollinger.Window <= 1 {
				return fmt.Errorf("strategy.market_filters.bollinger.window must be > 1")
			}
			if f.Bollinger.K <= 0 {
				return fmt.Errorf("strategy.market_filters.bollinger.k must be > 0")
			}
		}
		if f.VolRegime != nil && f.VolRegime.Enabled {
			if f.VolRegime.Window <= 1 {
				return fmt.Errorf("strategy.market_filters.vol_regime.window must be > 1")
			}
			if f.VolRegime.MinPercentile < 0 || f.VolRegime.MaxPercentile > 100 ||
				f.VolRegime.MinPercentile >= f.VolRegime.MaxPercentile {
				return fmt.Errorf("strategy.market_filters.vol_regime percentiles must satisfy 0 <= min < max <= 100")
			}
		}
	}

	if c.Risk.InitialCapital <= 0 {
		return fmt.Errorf("risk.initial_capital must be > 0")
	}
	if c.Risk.PositionSizeFraction <= 0 || c.Risk.PositionSizeFraction > 1.0 {
		return fmt.Errorf("risk.position_size_fraction must be between 0 and 1.0")
	}
	if c.Risk.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("risk.max_concurrent_positions must be > 0")
	}
	if c.Risk.CommissionPerContract < 0 {
		return fmt.Errorf("risk.commission_per_contract must be >= 0")
	}

	return nil
}

// normalize sets default values for optional fields before validation.
func (c *Config) normalize() {
	if c.Strategy.OptionSelection.Type == "" {
		c.Strategy.OptionSelection.Type = "either"
	}
	if c.Strategy.OptionSelection.Liquidity.MaxSpreadPct == 0 {
		c.Strategy.OptionSelection.Liquidity.MaxSpreadPct = defaultMaxSpreadPct
	}
	if c.Risk.MaxConcurrentPositions == 0 {
		c.Risk.MaxConcurrentPositions = defaultMaxPositions
	}
	if c.Risk.CommissionPerContract == 0 {
		c.Risk.CommissionPerContract = defaultCommission
	}
	if f := c.Strategy.MarketFilters; f != nil {
		if f.Mode == "" {
			f.Mode = "all"
		}
		if f.VolRegime != nil && f.VolRegime.Enabled && f.VolRegime.Window == 0 {
			f.VolRegime.Window = defaultVolRegimeWindow
		}
	}
}
