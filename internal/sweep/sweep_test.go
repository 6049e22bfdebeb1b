package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manisahni/optionslab-sub000/internal/config"
	"github.com/manisahni/optionslab-sub000/internal/marketdata"
	"github.com/manisahni/optionslab-sub000/internal/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func sweepConfig(profitTarget float64) *config.Config {
	return &config.Config{
		Strategy: config.StrategyConfig{
			Symbol: "SPY",
			OptionSelection: config.SelectionConfig{
				Type:      "call",
				Delta:     config.DeltaConfig{Target: 0.30, Tolerance: 0.05, Min: 0.10, Max: 0.60},
				DTE:       config.DTEConfig{Target: 45, Min: 30, Max: 60},
				Liquidity: config.LiquidityConfig{MinVolume: 10, MaxSpreadPct: 0.25},
			},
			ExitRules: []config.ExitRuleConfig{
				{Condition: config.ConditionProfitTarget, Threshold: profitTarget},
			},
		},
		Risk: config.RiskConfig{
			InitialCapital:         10000,
			PositionSizeFraction:   0.05,
			MaxConcurrentPositions: 1,
			CommissionPerContract:  0.65,
		},
	}
}

func fixtureFactory() ProviderFactory {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	expiry := day.AddDate(0, 0, 45)
	snap := &models.ChainSnapshot{
		Date:            day,
		UnderlyingPrice: 450,
		Quotes: []models.OptionQuote{
			{
				Type: models.OptionTypeCall, Strike: 455, Expiration: expiry,
				Bid: 4.90, Ask: 5.00, Last: 4.95, Volume: 100, OpenInterest: 500,
				Greeks: models.Greeks{Delta: 0.30}, IV: 0.22,
			},
		},
	}
	return func() (marketdata.Provider, error) {
		return marketdata.NewMemoryProvider([]*models.ChainSnapshot{snap}), nil
	}
}

func TestRun_OutcomesInInputOrder(t *testing.T) {
	specs := []NamedConfig{
		{Name: "pt25", Config: sweepConfig(0.25)},
		{Name: "pt50", Config: sweepConfig(0.50)},
		{Name: "pt75", Config: sweepConfig(0.75)},
	}

	outcomes, err := Run(context.Background(), specs, fixtureFactory(), 2, quietLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Name != specs[i].Name {
			t.Errorf("Outcome %d = %q, want %q", i, o.Name, specs[i].Name)
		}
		if o.Err != nil {
			t.Errorf("Outcome %q failed: %v", o.Name, o.Err)
		}
		if o.Result == nil || len(o.Result.Trades) != 1 {
			t.Errorf("Outcome %q missing its result", o.Name)
		}
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	bad := sweepConfig(0.50)
	bad.Risk.InitialCapital = -1 // fails engine validation

	specs := []NamedConfig{
		{Name: "good", Config: sweepConfig(0.50)},
		{Name: "bad", Config: bad},
	}

	outcomes, err := Run(context.Background(), specs, fixtureFactory(), 1, quietLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcomes[0].Err != nil {
		t.Errorf("Good run should not be affected, got: %v", outcomes[0].Err)
	}
	if outcomes[1].Err == nil {
		t.Error("Expected the invalid config to fail its own run")
	}
}

func TestRun_FactoryError(t *testing.T) {
	factoryErr := errors.New("dataset missing")
	factory := func() (marketdata.Provider, error) { return nil, factoryErr }

	outcomes, err := Run(context.Background(), []NamedConfig{
		{Name: "only", Config: sweepConfig(0.50)},
	}, factory, 1, quietLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(outcomes[0].Err, factoryErr) {
		t.Errorf("Expected the factory error on the outcome, got %v", outcomes[0].Err)
	}
}

func TestRun_SuccessReturnsNilError(t *testing.T) {
	// Wait cancels the group's derived context even on success; only the
	// caller's context may turn a clean sweep into an error.
	outcomes, err := Run(context.Background(), []NamedConfig{
		{Name: "only", Config: sweepConfig(0.50)},
	}, fixtureFactory(), 1, quietLogger())
	if err != nil {
		t.Fatalf("Expected nil error after a clean sweep, got %v", err)
	}
	if outcomes[0].Err != nil || outcomes[0].Result == nil {
		t.Errorf("Expected a successful outcome, got %+v", outcomes[0])
	}
}

func TestRun_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, []NamedConfig{
		{Name: "only", Config: sweepConfig(0.50)},
	}, fixtureFactory(), 1, quietLogger())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected the caller's cancellation to surface, got %v", err)
	}
}

func TestRun_ZeroParallelismClamped(t *testing.T) {
	outcomes, err := Run(context.Background(), []NamedConfig{
		{Name: "only", Config: sweepConfig(0.50)},
	}, fixtureFactory(), 0, quietLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcomes[0].Err != nil {
		t.Errorf("Expected the run to succeed with clamped parallelism, got %v", outcomes[0].Err)
	}
}
