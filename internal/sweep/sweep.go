// Package sweep runs independent backtest configurations in parallel.
// Parallelism is across runs only: every run gets its own engine and its
// own provider handle, with no shared mutable state between runs.
package sweep

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/manisahni/optionslab-sub000/internal/config"
	"github.com/manisahni/optionslab-sub000/internal/engine"
	"github.com/manisahni/optionslab-sub000/internal/marketdata"
)

// NamedConfig is one sweep entry: a label plus its strategy configuration.
type NamedConfig struct {
	Name   string
	Config *config.Config
}

// Outcome is one sweep entry's result. Err is set when that run failed;
// other runs are unaffected.
type Outcome struct {
	Name   string
	Result *engine.Result
	Err    error
}

// ProviderFactory returns a fresh snapshot provider for one run. Factories
// let file-backed providers be re-opened per run rather than shared.
type ProviderFactory func() (marketdata.Provider, error)

// Run executes every configuration with at most parallelism concurrent
// engines and returns outcomes in input order. Configuration errors are
// captured per entry; only context cancellation aborts the whole sweep.
func Run(ctx context.Context, specs []NamedConfig, factory ProviderFactory,
	parallelism int, logger *logrus.Logger) ([]Outcome, error) {

	if parallelism <= 0 {
		parallelism = 1
	}
	if logger == nil {
		logger = logrus.New()
	}

	outcomes := make([]Outcome, len(specs))
	// Wait cancels the derived context on return, so only the caller's
	// context decides whether the sweep as a whole was aborted.
	g, runCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, spec := range specs {
		g.Go(func() error {
			outcomes[i] = runOne(runCtx, spec, factory, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, ctx.Err()
}

func runOne(ctx context.Context, spec NamedConfig, factory ProviderFactory, logger *logrus.Logger) Outcome {
	out := Outcome{Name: spec.Name}

	provider, err := factory()
	if err != nil {
		out.Err = err
		return out
	}

	eng, err := engine.New(spec.Config, provider, logger)
	if err != nil {
		out.Err = err
		return out
	}

	result, err := eng.Run(ctx)
	if err != nil {
		out.Err = err
		return out
	}
	out.Result = result

	logger.WithFields(logrus.Fields{
		"run":    spec.Name,
		"trades": len(result.Trades),
	}).Info("sweep run complete")
	return out
}
