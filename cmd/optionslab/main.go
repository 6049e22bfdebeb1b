// Command optionslab is the backtest command line interface: it runs single
// backtests and parameter sweeps over historical option-chain files, fetches
// and generates datasets, and serves stored results.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/manisahni/optionslab-sub000/internal/config"
	"github.com/manisahni/optionslab-sub000/internal/dashboard"
	"github.com/manisahni/optionslab-sub000/internal/engine"
	"github.com/manisahni/optionslab-sub000/internal/marketdata"
	"github.com/manisahni/optionslab-sub000/internal/models"
	"github.com/manisahni/optionslab-sub000/internal/report"
	"github.com/manisahni/optionslab-sub000/internal/storage"
	"github.com/manisahni/optionslab-sub000/internal/sweep"
)

var Version = "dev"

// Settings are process-level knobs read from the environment; strategy
// parameters always come from the YAML config.
type Settings struct {
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	DataDir    string `envconfig:"DATA_DIR" default:"data"`
	DBPath     string `envconfig:"DB_PATH" default:"optionslab.db"`
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	APIBaseURL string `envconfig:"API_BASE_URL"`
	APIKey     string `envconfig:"API_KEY"`
	AuthToken  string `envconfig:"AUTH_TOKEN"`
}

var (
	settings Settings
	logger   = logrus.New()
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	if err := envconfig.Process("optionslab", &settings); err != nil {
		logger.WithError(err).Fatal("Failed to read environment settings")
	}
	setupLogger()

	app := cli.NewApp()
	app.Name = "optionslab"
	app.Usage = "options backtest engine"
	app.Version = Version

	app.Commands = []cli.Command{
		runCMD,
		sweepCMD,
		exportCMD,
		fetchCMD,
		generateCMD,
		serveCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger() {
	level, err := logrus.ParseLevel(strings.ToLower(settings.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

var (
	runCMD = cli.Command{
		Name:      "run",
		Usage:     "run one backtest",
		Action:    runAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "config, c", Value: "config.yaml", Usage: "strategy configuration file"},
			cli.StringFlag{Name: "data, d", Usage: "option-chain dataset (.csv or .parquet)"},
			cli.StringFlag{Name: "out, o", Value: "results", Usage: "report output directory"},
			cli.BoolFlag{Name: "save", Usage: "persist the run to the results database"},
		},
		Description: `Run a single backtest over a historical dataset and write reports.`,
	}
	sweepCMD = cli.Command{
		Name:      "sweep",
		Usage:     "run several configurations in parallel",
		Action:    sweepAction,
		ArgsUsage: "CONFIG...",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "data, d", Usage: "option-chain dataset (.csv or .parquet)"},
			cli.StringFlag{Name: "out, o", Value: "results", Usage: "report output directory"},
			cli.IntFlag{Name: "parallel, p", Value: 4, Usage: "max concurrent backtests"},
			cli.BoolFlag{Name: "save", Usage: "persist each run to the results database"},
		},
		Description: `Run every named configuration against the same dataset and write one
report directory per configuration.`,
	}
	exportCMD = cli.Command{
		Name:      "export",
		Usage:     "write reports for a saved run",
		Action:    exportAction,
		ArgsUsage: "RUN_ID",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "out, o", Value: "results", Usage: "report output directory"},
		},
		Description: `Load a previously saved run from the results database and write the
same report files a live run produces.`,
	}
	fetchCMD = cli.Command{
		Name:      "fetch",
		Usage:     "download historical option chains",
		Action:    fetchAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "symbol, s", Value: "SPY", Usage: "underlying symbol"},
			cli.StringFlag{Name: "start", Usage: "first trading date (YYYY-MM-DD)"},
			cli.StringFlag{Name: "end", Usage: "last trading date (YYYY-MM-DD)"},
		},
		Description: `Fetch daily option-chain snapshots from the market data API and save
them as CSV under the data directory.`,
	}
	generateCMD = cli.Command{
		Name:      "generate",
		Usage:     "write a synthetic dataset",
		Action:    generateAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "out, o", Value: "data/synthetic.csv", Usage: "output file (.csv or .parquet)"},
			cli.IntFlag{Name: "days", Value: 252, Usage: "number of trading days"},
			cli.Int64Flag{Name: "seed", Value: 1, Usage: "random seed"},
		},
		Description: `Generate a deterministic synthetic option-chain dataset for testing
strategies without real market data.`,
	}
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "serve stored runs over HTTP",
		Action:      serveAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Serve the results database as a JSON API.`,
	}
)

func runAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	provider, err := openProvider(c.String("data"))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	eng, err := engine.New(cfg, provider, logger)
	if err != nil {
		return err
	}
	result, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	if err := report.WriteAll(c.String("out"), result); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"trades":      len(result.Trades),
		"final_value": fmt.Sprintf("%.2f", result.FinalValue),
	}).Info("Backtest complete")

	if c.Bool("save") {
		return saveResult(ctx, result)
	}
	return nil
}

func sweepAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("sweep requires at least one configuration file")
	}

	specs := make([]sweep.NamedConfig, 0, c.NArg())
	for _, path := range c.Args() {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		specs = append(specs, sweep.NamedConfig{Name: name, Config: cfg})
	}

	dataPath := c.String("data")
	factory := func() (marketdata.Provider, error) {
		return openProvider(dataPath)
	}

	ctx, cancel := signalContext()
	defer cancel()

	outcomes, err := sweep.Run(ctx, specs, factory, c.Int("parallel"), logger)
	if err != nil {
		return err
	}

	var failed int
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			logger.WithError(outcome.Err).WithField("run", outcome.Name).Error("Sweep run failed")
			failed++
			continue
		}
		dir := filepath.Join(c.String("out"), outcome.Name)
		if err := report.WriteAll(dir, outcome.Result); err != nil {
			return err
		}
		if c.Bool("save") {
			if err := saveResult(ctx, outcome.Result); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sweep runs failed", failed, len(outcomes))
	}
	return nil
}

func exportAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("export requires exactly one run id")
	}
	id := c.Args().First()

	store, err := storage.NewSQLiteStore(settings.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	trades, err := store.LoadTrades(ctx, id)
	if err != nil {
		return err
	}
	equity, err := store.LoadEquity(ctx, id)
	if err != nil {
		return err
	}
	audit, err := store.LoadAuditLog(ctx, id)
	if err != nil {
		return err
	}

	result := &engine.Result{
		Symbol:         summary.Symbol,
		StartDate:      summary.StartDate,
		EndDate:        summary.EndDate,
		InitialCapital: summary.InitialCapital,
		FinalValue:     summary.FinalValue,
		Trades:         trades,
		EquityCurve:    equity,
		Metrics:        summary.Metrics,
		AuditLog:       audit,
	}
	if err := report.WriteAll(c.String("out"), result); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"run_id": id, "out": c.String("out")}).Info("Run exported")
	return nil
}

func fetchAction(c *cli.Context) error {
	if settings.APIBaseURL == "" || settings.APIKey == "" {
		return fmt.Errorf("fetch requires OPTIONSLAB_API_BASE_URL and OPTIONSLAB_API_KEY")
	}
	start, err := parseDate(c.String("start"))
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := parseDate(c.String("end"))
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fetcher := marketdata.NewFetcher(marketdata.DefaultFetcherConfig(settings.APIBaseURL, settings.APIKey), logger)
	path, err := fetcher.FetchRange(ctx, c.String("symbol"), start, end, settings.DataDir)
	if err != nil {
		return err
	}
	logger.WithField("path", path).Info("Dataset saved")
	return nil
}

func generateAction(c *cli.Context) error {
	cfg := marketdata.DefaultSyntheticConfig()
	cfg.Days = c.Int("days")
	cfg.Seed = c.Int64("seed")
	provider := marketdata.GenerateSynthetic(cfg)

	snapshots := make([]*models.ChainSnapshot, 0, cfg.Days)
	for _, date := range provider.TradingDates() {
		snap, err := provider.Snapshot(date)
		if err != nil {
			return err
		}
		snapshots = append(snapshots, snap)
	}

	out := c.String("out")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if strings.HasSuffix(out, ".parquet") {
		if err := marketdata.WriteParquet(out, snapshots); err != nil {
			return err
		}
	} else {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := marketdata.WriteCSV(f, snapshots); err != nil {
			return err
		}
	}
	logger.WithFields(logrus.Fields{"path": out, "days": len(snapshots)}).Info("Synthetic dataset written")
	return nil
}

func serveAction(_ *cli.Context) error {
	store, err := storage.NewSQLiteStore(settings.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	server := dashboard.NewServer(dashboard.Config{
		Addr:      settings.ListenAddr,
		AuthToken: settings.AuthToken,
	}, store, logger)

	ctx, cancel := signalContext()
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	}
}

func saveResult(ctx context.Context, result *engine.Result) error {
	store, err := storage.NewSQLiteStore(settings.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.SaveRun(ctx, result)
	if err != nil {
		return err
	}
	logger.WithField("run_id", id).Info("Run saved")
	return nil
}

// openProvider loads a dataset by extension, or the default synthetic
// dataset when no path is given.
func openProvider(path string) (marketdata.Provider, error) {
	if path == "" {
		logger.Warn("No dataset given, using synthetic data")
		return marketdata.GenerateSynthetic(marketdata.DefaultSyntheticConfig()), nil
	}
	if strings.HasSuffix(path, ".parquet") {
		return marketdata.LoadParquet(path)
	}
	return marketdata.LoadCSV(path)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	return time.Parse("2006-01-02", s)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
