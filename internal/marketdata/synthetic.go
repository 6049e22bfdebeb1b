package marketdata

import (
	"math"
	"math/rand"
	"time"

	"github.com/manisahni/optionslab-sub000/internal/models"
)

// SyntheticConfig controls the deterministic chain generator.
type SyntheticConfig struct {
	Seed       int64
	StartDate  time.Time
	Days       int
	StartPrice float64
	DailyVol   float64 // daily return stddev, e.g. 0.01
	BaseIV     float64 // e.g. 0.20
	StrikeStep float64 // e.g. 5.0
	Strikes    int     // strikes on each side of spot
	Expiries   []int   // DTE ladder at generation, e.g. [30, 45, 60]
}

// DefaultSyntheticConfig returns generator settings that resemble a liquid
// large-cap underlying around $450.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Seed:       1,
		StartDate:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Days:       252,
		StartPrice: 450.0,
		DailyVol:   0.01,
		BaseIV:     0.20,
		StrikeStep: 5.0,
		Strikes:    10,
		Expiries:   []int{30, 45, 60},
	}
}

// GenerateSynthetic produces a deterministic snapshot series: a seeded
// random walk for the underlying with a fresh expiry ladder each day.
// The same config always yields byte-identical snapshots.
func GenerateSynthetic(cfg SyntheticConfig) *MemoryProvider {
	rng := rand.New(rand.NewSource(cfg.Seed)) // #nosec G404 -- deterministic fixture data, not security sensitive
	price := cfg.StartPrice
	iv := cfg.BaseIV

	snapshots := make([]*models.ChainSnapshot, 0, cfg.Days)
	date := cfg.StartDate
	for day := 0; day < cfg.Days; day++ {
		// Skip weekends so the series looks like trading days.
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}

		price *= 1 + rng.NormFloat64()*cfg.DailyVol
		iv = math.Max(0.08, iv+rng.NormFloat64()*0.01)

		snap := &models.ChainSnapshot{Date: date, UnderlyingPrice: price}
		atm := math.Round(price/cfg.StrikeStep) * cfg.StrikeStep
		for _, dte := range cfg.Expiries {
			expiration := date.AddDate(0, 0, dte)
			for k := -cfg.Strikes; k <= cfg.Strikes; k++ {
				strike := atm + float64(k)*cfg.StrikeStep
				if strike <= 0 {
					continue
				}
				snap.Quotes = append(snap.Quotes,
					syntheticQuote(rng, models.OptionTypeCall, price, strike, expiration, dte, iv),
					syntheticQuote(rng, models.OptionTypePut, price, strike, expiration, dte, iv),
				)
			}
		}
		snapshots = append(snapshots, snap)
		date = date.AddDate(0, 0, 1)
	}
	return NewMemoryProvider(snapshots)
}

// syntheticQuote prices one contract with a normal-CDF delta approximation.
// Close enough for fixtures; the engine only needs internally consistent rows.
func syntheticQuote(rng *rand.Rand, typ models.OptionType, spot, strike float64,
	expiration time.Time, dte int, iv float64) models.OptionQuote {

	t := math.Max(float64(dte)/365.0, 1.0/365.0)
	sigma := iv * math.Sqrt(t)
	d1 := (math.Log(spot/strike) + 0.5*sigma*sigma) / sigma

	callDelta := normCDF(d1)
	delta := callDelta
	if typ == models.OptionTypePut {
		delta = callDelta - 1
	}

	// Intrinsic plus a crude time-value hump peaking at the money.
	var intrinsic float64
	if typ == models.OptionTypeCall {
		intrinsic = math.Max(0, spot-strike)
	} else {
		intrinsic = math.Max(0, strike-spot)
	}
	timeValue := spot * sigma * 0.4 * math.Exp(-0.5*d1*d1)
	mid := math.Max(0.05, intrinsic+timeValue)

	spread := math.Max(0.02, mid*0.02)
	volume := int64(50 + rng.Intn(5000))

	return models.OptionQuote{
		Strike:       strike,
		Expiration:   expiration,
		Type:         typ,
		Bid:          round2(mid - spread/2),
		Ask:          round2(mid + spread/2),
		Last:         round2(mid),
		Volume:       volume,
		OpenInterest: volume * 10,
		Greeks: models.Greeks{
			Delta: delta,
			Gamma: math.Exp(-0.5*d1*d1) / (spot * sigma * math.Sqrt(2*math.Pi)),
			Theta: -timeValue / math.Max(float64(dte), 1),
			Vega:  spot * math.Sqrt(t) * math.Exp(-0.5*d1*d1) / math.Sqrt(2*math.Pi) / 100,
		},
		IV: iv,
	}
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
