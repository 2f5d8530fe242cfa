// Package premium prices the deposit premium from a weighted, EMA-smoothed
// risk score with a hysteresis band to suppress rate thrash.
package premium

import (
	"fmt"

	fpmath "TrancheVault/internal/math"

	"github.com/rs/zerolog"
)

// Weights allocate the risk score across its components, in bps.
// The components must always sum to exactly 10000.
type Weights struct {
	Volatility     int64
	Utilization    int64
	LiquidationFrq int64
	LiquidityDepth int64
	Correlation    int64
	LossMomentum   int64
}

func (w Weights) sum() int64 {
	return w.Volatility + w.Utilization + w.LiquidationFrq +
		w.LiquidityDepth + w.Correlation + w.LossMomentum
}

// Validate enforces the weight-sum invariant.
func (w Weights) Validate() error {
	if s := w.sum(); s != fpmath.BpsScale {
		return fmt.Errorf("premium weights must sum to %d bps, got %d", fpmath.BpsScale, s)
	}
	return nil
}

// Weight regimes. Higher recent losses shift weight toward correlation,
// liquidity and volatility: clustered and illiquid risk is penalized more
// after losses.
var (
	baseWeights = Weights{
		Volatility:     2_500,
		Utilization:    2_000,
		LiquidationFrq: 1_500,
		LiquidityDepth: 1_500,
		Correlation:    1_500,
		LossMomentum:   1_000,
	}
	elevatedWeights = Weights{ // recent losses > 2%
		Volatility:     2_800,
		Utilization:    1_500,
		LiquidationFrq: 1_200,
		LiquidityDepth: 1_800,
		Correlation:    1_800,
		LossMomentum:   900,
	}
	stressedWeights = Weights{ // recent losses > 5%
		Volatility:     3_000,
		Utilization:    1_000,
		LiquidationFrq: 1_000,
		LiquidityDepth: 2_000,
		Correlation:    2_200,
		LossMomentum:   800,
	}
)

const (
	lossShiftElevatedBps = 200 // 2%
	lossShiftStressedBps = 500 // 5%
)

// Config holds the pricing parameters, all rates in bps.
type Config struct {
	BaseRateBps     int64
	RiskMultiplier  int64 // rate = base + multiplier * score / 10000
	SmoothingAlpha  int64 // EMA alpha in bps
	HysteresisBand  int64 // min rate delta before a new rate applies
	EpochDurationUs int64
	MaxRateBps      int64 // hard ceiling, also caps governance overrides
	LossWindowUs    int64 // loss-momentum decay window
}

func DefaultConfig() Config {
	return Config{
		BaseRateBps:     50,
		RiskMultiplier:  2_000,
		SmoothingAlpha:  3_000,
		HysteresisBand:  10,
		EpochDurationUs: 24 * 3600 * 1_000_000,
		MaxRateBps:      1_000,
		LossWindowUs:    7 * 24 * 3600 * 1_000_000,
	}
}

// Inputs are the observed risk components for one update, in bps.
type Inputs struct {
	VolatilityBps     int64 // annualized realized vol
	UtilizationBps    int64 // reserved / total pool
	LiquidationFrqBps int64 // normalized liquidation frequency
	LiquidityDepthBps int64 // DEX slippage proxy, higher = thinner
	CorrelationBps    int64 // |Pearson| across covered assets
	LossMomentumBps   int64 // filled in by the engine when zero
}

type lossRecord struct {
	lossBps     int64
	timestampUs int64
}

// Engine computes and holds the current premium rate.
type Engine struct {
	cfg Config
	log zerolog.Logger

	currentRateBps int64
	smoothedScore  int64
	lastUpdateUs   int64
	hasUpdated     bool

	losses []lossRecord
}

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:            cfg,
		log:            log,
		currentRateBps: cfg.BaseRateBps,
	}
}

// CurrentRateBps returns the rate applied to deposits.
func (e *Engine) CurrentRateBps() int64 {
	return e.currentRateBps
}

// RecordLoss feeds the loss-momentum signal. lossBps is the realized loss
// relative to pool value.
func (e *Engine) RecordLoss(lossBps int64, nowUs int64) {
	if lossBps <= 0 {
		return
	}
	e.losses = append(e.losses, lossRecord{lossBps: lossBps, timestampUs: nowUs})
	e.pruneLosses(nowUs)
}

func (e *Engine) pruneLosses(nowUs int64) {
	cutoff := nowUs - e.cfg.LossWindowUs
	kept := e.losses[:0]
	for _, l := range e.losses {
		if l.timestampUs > cutoff {
			kept = append(kept, l)
		}
	}
	e.losses = kept
}

// lossMomentumBps is the linearly time-decayed sum of window losses.
func (e *Engine) lossMomentumBps(nowUs int64) int64 {
	var momentum int64
	for _, l := range e.losses {
		age := nowUs - l.timestampUs
		if age < 0 || age >= e.cfg.LossWindowUs {
			continue
		}
		weightBps := fpmath.BpsScale - fpmath.MulDiv(age, fpmath.BpsScale, e.cfg.LossWindowUs)
		momentum += fpmath.BpsOf(l.lossBps, weightBps)
	}
	if momentum > fpmath.BpsScale {
		momentum = fpmath.BpsScale
	}
	return momentum
}

// recentLossBps is the undecayed window sum, used for weight shifting.
func (e *Engine) recentLossBps(nowUs int64) int64 {
	var total int64
	for _, l := range e.losses {
		if nowUs-l.timestampUs < e.cfg.LossWindowUs {
			total += l.lossBps
		}
	}
	return total
}

// activeWeights re-derives the weight regime from recent losses.
func (e *Engine) activeWeights(nowUs int64) Weights {
	recent := e.recentLossBps(nowUs)
	w := baseWeights
	switch {
	case recent > lossShiftStressedBps:
		w = stressedWeights
	case recent > lossShiftElevatedBps:
		w = elevatedWeights
	}
	if err := w.Validate(); err != nil {
		panic(fmt.Sprintf("FATAL: %v", err))
	}
	return w
}

func clampBps(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > fpmath.BpsScale {
		return fpmath.BpsScale
	}
	return v
}

// riskScore computes the weighted component sum, in bps.
func riskScore(w Weights, in Inputs) int64 {
	score := fpmath.BpsOf(clampBps(in.VolatilityBps), w.Volatility)
	score += fpmath.BpsOf(clampBps(in.UtilizationBps), w.Utilization)
	score += fpmath.BpsOf(clampBps(in.LiquidationFrqBps), w.LiquidationFrq)
	score += fpmath.BpsOf(clampBps(in.LiquidityDepthBps), w.LiquidityDepth)
	score += fpmath.BpsOf(clampBps(in.CorrelationBps), w.Correlation)
	score += fpmath.BpsOf(clampBps(in.LossMomentumBps), w.LossMomentum)
	return score
}

// UpdatePremiums recomputes the premium rate. It is a no-op until the epoch
// duration has elapsed since the last update, and the recomputed rate is
// applied only when it moves past the hysteresis band.
// Returns the applied flag and the rate now in force.
func (e *Engine) UpdatePremiums(in Inputs, nowUs int64) (bool, int64) {
	if e.hasUpdated && nowUs-e.lastUpdateUs < e.cfg.EpochDurationUs {
		return false, e.currentRateBps
	}

	e.pruneLosses(nowUs)
	if in.LossMomentumBps == 0 {
		in.LossMomentumBps = e.lossMomentumBps(nowUs)
	}

	weights := e.activeWeights(nowUs)
	raw := riskScore(weights, in)

	smoothed := raw
	if e.hasUpdated {
		smoothed = fpmath.BpsOf(raw, e.cfg.SmoothingAlpha) +
			fpmath.BpsOf(e.smoothedScore, fpmath.BpsScale-e.cfg.SmoothingAlpha)
	}

	rate := e.cfg.BaseRateBps + fpmath.MulDiv(e.cfg.RiskMultiplier, smoothed, fpmath.BpsScale)
	if rate > e.cfg.MaxRateBps {
		rate = e.cfg.MaxRateBps
	}

	e.smoothedScore = smoothed
	e.lastUpdateUs = nowUs
	e.hasUpdated = true

	delta := rate - e.currentRateBps
	if delta < 0 {
		delta = -delta
	}
	if delta <= e.cfg.HysteresisBand {
		e.log.Debug().
			Int64("raw_score", raw).
			Int64("smoothed", smoothed).
			Int64("candidate_bps", rate).
			Int64("current_bps", e.currentRateBps).
			Msg("premium update within hysteresis band")
		return false, e.currentRateBps
	}

	e.log.Info().
		Int64("old_bps", e.currentRateBps).
		Int64("new_bps", rate).
		Int64("smoothed_score", smoothed).
		Msg("premium rate updated")
	e.currentRateBps = rate
	return true, rate
}

// ForceRate is the governance override. It bypasses smoothing and
// hysteresis but never the hard ceiling.
func (e *Engine) ForceRate(rateBps int64) error {
	if rateBps < 0 {
		return fmt.Errorf("premium rate must be non-negative, got %d", rateBps)
	}
	if rateBps > e.cfg.MaxRateBps {
		return fmt.Errorf("premium rate %d exceeds ceiling %d", rateBps, e.cfg.MaxRateBps)
	}
	e.log.Warn().Int64("rate_bps", rateBps).Msg("premium rate force-set by governance")
	e.currentRateBps = rateBps
	return nil
}
