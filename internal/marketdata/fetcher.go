package marketdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/manisahni/optionslab-sub000/internal/models"
)

// FetcherConfig configures the historical chain downloader.
type FetcherConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultFetcherConfig returns conservative transport settings.
func DefaultFetcherConfig(baseURL, apiKey string) FetcherConfig {
	return FetcherConfig{
		BaseURL:        baseURL,
		APIKey:         apiKey,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// chainResponse is the vendor payload for one date's chain.
type chainResponse struct {
	Date            string     `json:"date"`
	UnderlyingPrice float64    `json:"underlying_price"`
	Rows            []chainRow `json:"rows"`
}

type chainRow struct {
	Strike       float64 `json:"strike"`
	Expiration   string  `json:"expiration"`
	Right        string  `json:"right"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Close        float64 `json:"close"`
	Volume       int64   `json:"volume"`
	OpenInterest int64   `json:"open_interest"`
	Delta        float64 `json:"delta"`
	Gamma        float64 `json:"gamma"`
	Theta        float64 `json:"theta"`
	Vega         float64 `json:"vega"`
	IV           float64 `json:"implied_volatility"`
}

// Fetcher downloads historical chain snapshots from a market-data vendor
// and writes them to local CSV files for offline runs. All network calls go
// through a circuit breaker; individual requests retry with bounded backoff.
type Fetcher struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	config  FetcherConfig
	logger  *logrus.Logger
}

// NewFetcher creates a chain downloader for the given vendor endpoint.
func NewFetcher(cfg FetcherConfig, logger *logrus.Logger) *Fetcher {
	if logger == nil {
		logger = logrus.New()
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIKey)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ChainFetcher",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
	})

	return &Fetcher{client: client, breaker: breaker, config: cfg, logger: logger}
}

// FetchDay downloads the chain snapshot for one symbol and date.
func (f *Fetcher) FetchDay(ctx context.Context, symbol string, date time.Time) (*models.ChainSnapshot, error) {
	res, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetchWithRetry(ctx, symbol, date)
	})
	if err != nil {
		return nil, err
	}
	return res.(*models.ChainSnapshot), nil
}

// FetchRange downloads snapshots for every weekday in [start, end] and
// writes them as one CSV file under dataDir. Days the vendor has no data
// for are skipped with a log line, matching the engine's data-gap handling.
func (f *Fetcher) FetchRange(ctx context.Context, symbol string, start, end time.Time, dataDir string) (string, error) {
	var snapshots []*models.ChainSnapshot
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}
		snap, err := f.FetchDay(ctx, symbol, date)
		if err != nil {
			f.logger.WithError(err).WithField("date", date.Format("2006-01-02")).
				Warn("no chain for date, skipping")
			continue
		}
		snapshots = append(snapshots, snap)
	}
	if len(snapshots) == 0 {
		return "", fmt.Errorf("no chain data fetched for %s between %s and %s",
			symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	path := filepath.Join(dataDir, fmt.Sprintf("%s_%s_%s.csv",
		symbol, start.Format("20060102"), end.Format("20060102")))
	out, err := os.Create(path) // #nosec G304 -- path is derived from user-provided dataDir
	if err != nil {
		return "", fmt.Errorf("creating snapshot file: %w", err)
	}
	defer func() { _ = out.Close() }()

	if err := WriteCSV(out, snapshots); err != nil {
		return "", err
	}
	f.logger.WithFields(logrus.Fields{"path": path, "days": len(snapshots)}).Info("chain history written")
	return path, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, symbol string, date time.Time) (*models.ChainSnapshot, error) {
	var lastErr error
	backoff := f.config.InitialBackoff

	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > f.config.MaxBackoff {
				backoff = f.config.MaxBackoff
			}
		}

		snap, err := f.fetchOnce(ctx, symbol, date)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		f.logger.WithError(err).WithFields(logrus.Fields{
			"symbol":  symbol,
			"date":    date.Format("2006-01-02"),
			"attempt": attempt + 1,
		}).Warn("chain fetch failed")
	}
	return nil, fmt.Errorf("fetching chain for %s on %s: %w",
		symbol, date.Format("2006-01-02"), lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, symbol string, date time.Time) (*models.ChainSnapshot, error) {
	var payload chainResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"date":   date.Format("2006-01-02"),
			"greeks": "true",
		}).
		SetResult(&payload).
		Get("/v1/markets/options/chains/history")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("chain history request returned %s", resp.Status())
	}

	snap := &models.ChainSnapshot{
		Date:            date.UTC().Truncate(24 * time.Hour),
		UnderlyingPrice: payload.UnderlyingPrice,
	}
	for _, row := range payload.Rows {
		typ, err := parseRight(row.Right)
		if err != nil {
			return nil, err
		}
		expiration, err := time.Parse("2006-01-02", row.Expiration)
		if err != nil {
			return nil, fmt.Errorf("bad expiration %q: %w", row.Expiration, err)
		}
		snap.Quotes = append(snap.Quotes, models.OptionQuote{
			Strike:       row.Strike,
			Expiration:   expiration,
			Type:         typ,
			Bid:          row.Bid,
			Ask:          row.Ask,
			Last:         row.Close,
			Volume:       row.Volume,
			OpenInterest: row.OpenInterest,
			Greeks:       models.Greeks{Delta: row.Delta, Gamma: row.Gamma, Theta: row.Theta, Vega: row.Vega},
			IV:           row.IV,
		})
	}
	if len(snap.Quotes) == 0 {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}
