package risk

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// GBMParams are annualized geometric-Brownian-motion parameters calibrated
// from realized log returns.
type GBMParams struct {
	Drift float64 // annualized mu
	Vol   float64 // annualized sigma
}

// Calibrate fits drift and volatility from a log-return series and the
// number of samples per year the series was observed at.
func Calibrate(returns []float64, samplesPerYear float64) (GBMParams, error) {
	if len(returns) < 2 {
		return GBMParams{}, fmt.Errorf("calibration needs at least 2 returns, got %d", len(returns))
	}
	if samplesPerYear <= 0 {
		return GBMParams{}, fmt.Errorf("samplesPerYear must be positive, got %f", samplesPerYear)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	sigma := math.Sqrt(variance * samplesPerYear)
	// mu from the log-return mean: E[log return] = (mu - sigma^2/2) * dt
	mu := mean*samplesPerYear + sigma*sigma/2

	return GBMParams{Drift: mu, Vol: sigma}, nil
}

// SimConfig controls the Monte Carlo run. The seed is a versioned input so
// replaying the event log reproduces identical risk numbers.
type SimConfig struct {
	Paths        int
	HorizonYears float64
	Seed         int64
}

func DefaultSimConfig() SimConfig {
	return SimConfig{
		Paths:        10_000,
		HorizonYears: 1.0,
		Seed:         1,
	}
}

// SimulateTerminal draws terminal prices under GBM:
// S_T = S_0 * exp((mu - sigma^2/2) * T + sigma * sqrt(T) * Z).
// The returned slice is sorted ascending.
func SimulateTerminal(spot float64, p GBMParams, cfg SimConfig) ([]float64, error) {
	if spot <= 0 {
		return nil, fmt.Errorf("spot must be positive, got %f", spot)
	}
	if cfg.Paths <= 0 {
		return nil, fmt.Errorf("paths must be positive, got %d", cfg.Paths)
	}
	if cfg.HorizonYears <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %f", cfg.HorizonYears)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	drift := (p.Drift - p.Vol*p.Vol/2) * cfg.HorizonYears
	diffusion := p.Vol * math.Sqrt(cfg.HorizonYears)

	terminals := make([]float64, cfg.Paths)
	for i := range terminals {
		z := rng.NormFloat64()
		terminals[i] = spot * math.Exp(drift+diffusion*z)
	}
	sort.Float64s(terminals)
	return terminals, nil
}

// TailRisk is the quantile and tail-average loss of an exposure over the
// simulation horizon.
type TailRisk struct {
	VaR               int64 // loss at the confidence quantile
	ExpectedShortfall int64 // average loss beyond the quantile
}

// ComputeTailRisk runs the Monte Carlo and converts the loss distribution
// of the given exposure (fixed-point stablecoin amount) into VaR and
// Expected Shortfall at the given confidence (e.g. 0.99).
func ComputeTailRisk(exposure int64, spot float64, p GBMParams, cfg SimConfig, confidence float64) (TailRisk, error) {
	if exposure < 0 {
		return TailRisk{}, fmt.Errorf("exposure must be non-negative, got %d", exposure)
	}
	if confidence <= 0 || confidence >= 1 {
		return TailRisk{}, fmt.Errorf("confidence must be in (0,1), got %f", confidence)
	}
	if exposure == 0 {
		return TailRisk{}, nil
	}

	terminals, err := SimulateTerminal(spot, p, cfg)
	if err != nil {
		return TailRisk{}, err
	}

	// Loss fraction per path: relative drawdown of the terminal price,
	// floored at zero (gains are not negative losses for capital purposes).
	losses := make([]float64, len(terminals))
	for i, t := range terminals {
		frac := (spot - t) / spot
		if frac < 0 {
			frac = 0
		}
		losses[i] = frac
	}
	// terminals sorted ascending → losses sorted descending
	idx := int(float64(len(losses)) * (1 - confidence))
	if idx >= len(losses) {
		idx = len(losses) - 1
	}

	varFrac := losses[idx]
	tailSum := 0.0
	for i := 0; i <= idx; i++ {
		tailSum += losses[i]
	}
	esFrac := tailSum / float64(idx+1)

	return TailRisk{
		VaR:               int64(varFrac * float64(exposure)),
		ExpectedShortfall: int64(esFrac * float64(exposure)),
	}, nil
}

// CalibrateFromMetrics is a convenience binding: fits GBM params for an
// asset straight from the bounded history.
func CalibrateFromMetrics(m *Metrics, asset string) (GBMParams, error) {
	returns := m.LogReturns(asset)
	perYear := m.samplesPerYear(asset)
	return Calibrate(returns, perYear)
}
