// Package adequacy compares the pool's available capital against a
// VaR-backed requirement and drives the circuit breaker.
package adequacy

import (
	"fmt"

	fpmath "TrancheVault/internal/math"
	"TrancheVault/internal/risk"

	"github.com/rs/zerolog"
)

// State is the breaker state machine.
type State int32

const (
	StateNormal State = iota
	StateCircuitBreakerActive
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateCircuitBreakerActive:
		return "CIRCUIT_BREAKER_ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Config holds the capital-requirement parameters, ratios in bps.
type Config struct {
	PauseThresholdBps     int64 // trip the breaker below this capital ratio
	TargetCapitalRatioBps int64 // breaker resets at or above this ratio
	MinCapitalRatioBps    int64 // floor for the liquidation pre-check
	TailCushionBps        int64 // cushion applied to current capital
	AvgDiscountBps        int64 // average liquidation collateral discount
	StressMultiplierBps   int64 // applied to the max observed loss
	MaxLiqProbabilityBps  int64 // cap on the frequency estimate
	MinCheckIntervalUs    int64 // rate limit between adequacy checks
	VaRConfidence         float64
	Sim                   risk.SimConfig
}

func DefaultConfig() Config {
	return Config{
		PauseThresholdBps:     10_500,
		TargetCapitalRatioBps: 12_000,
		MinCapitalRatioBps:    10_000,
		TailCushionBps:        500,
		AvgDiscountBps:        1_500,
		StressMultiplierBps:   15_000, // 1.5x
		MaxLiqProbabilityBps:  5_000,  // 50%
		MinCheckIntervalUs:    3_600 * 1_000_000,
		VaRConfidence:         0.99,
		Sim:                   risk.DefaultSimConfig(),
	}
}

func (c Config) Validate() error {
	if c.PauseThresholdBps <= 0 || c.TargetCapitalRatioBps <= c.PauseThresholdBps {
		return fmt.Errorf("target ratio (%d) must exceed pause threshold (%d) and both must be positive",
			c.TargetCapitalRatioBps, c.PauseThresholdBps)
	}
	if c.MinCapitalRatioBps <= 0 {
		return fmt.Errorf("min capital ratio must be positive, got %d", c.MinCapitalRatioBps)
	}
	if c.MaxLiqProbabilityBps <= 0 || c.MaxLiqProbabilityBps > fpmath.BpsScale {
		return fmt.Errorf("max liquidation probability out of range: %d", c.MaxLiqProbabilityBps)
	}
	return nil
}

// Monitor tracks liquidation history and the breaker state.
type Monitor struct {
	cfg Config
	log zerolog.Logger

	state       State
	lastCheckUs int64
	hasChecked  bool

	eventCount      int64
	firstEventUs    int64
	lastEventUs     int64
	maxObservedLoss int64
}

func NewMonitor(cfg Config, log zerolog.Logger) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{cfg: cfg, log: log, state: StateNormal}, nil
}

// State returns the current breaker state.
func (m *Monitor) State() State {
	return m.state
}

// SimConfig exposes the Monte Carlo settings for callers running the
// simulation themselves.
func (m *Monitor) SimConfig() risk.SimConfig {
	return m.cfg.Sim
}

// VaRConfidence exposes the configured confidence level.
func (m *Monitor) VaRConfidence() float64 {
	return m.cfg.VaRConfidence
}

// RecordLiquidationEvent feeds the frequency estimate.
func (m *Monitor) RecordLiquidationEvent(nowUs int64) {
	if m.eventCount == 0 {
		m.firstEventUs = nowUs
	}
	m.eventCount++
	m.lastEventUs = nowUs
}

// RecordLoss feeds the stress buffer with the worst observed loss.
func (m *Monitor) RecordLoss(amount int64) {
	if amount > m.maxObservedLoss {
		m.maxObservedLoss = amount
	}
}

const yearUs = int64(365 * 24 * 3600) * 1_000_000

// LiquidationProbabilityBps is a simplified annualized Poisson-style
// frequency estimate from historical event counts, capped by config.
func (m *Monitor) LiquidationProbabilityBps(nowUs int64) int64 {
	if m.eventCount == 0 {
		return 0
	}
	spanUs := nowUs - m.firstEventUs
	if spanUs < yearUs {
		spanUs = yearUs // annualize over at least one year of exposure
	}
	perYear := fpmath.MulDiv(m.eventCount, yearUs, spanUs)
	prob := perYear * 100 // events/year → bps, 1 event ≈ 1%
	if prob > m.cfg.MaxLiqProbabilityBps {
		prob = m.cfg.MaxLiqProbabilityBps
	}
	return prob
}

// RequiredCapital computes the capital requirement:
// expected-loss term + tail cushion + max(VaR, ES) + stressed worst loss.
func (m *Monitor) RequiredCapital(debtExposure, currentCapital int64, tail risk.TailRisk, nowUs int64) int64 {
	liqProb := m.LiquidationProbabilityBps(nowUs)

	// liqProb × exposure × (1 - avgDiscount) / 10000²
	expected := fpmath.MulDiv(liqProb, debtExposure, fpmath.BpsScale)
	expected = fpmath.MulDiv(expected, fpmath.BpsScale-m.cfg.AvgDiscountBps, fpmath.BpsScale)

	cushion := fpmath.BpsOf(currentCapital, m.cfg.TailCushionBps)

	tailTerm := tail.VaR
	if tail.ExpectedShortfall > tailTerm {
		tailTerm = tail.ExpectedShortfall
	}

	stress := fpmath.MulDiv(m.maxObservedLoss, m.cfg.StressMultiplierBps, fpmath.BpsScale)

	return expected + cushion + tailTerm + stress
}

// CapitalRatioBps computes available/required in bps. A zero requirement
// means the pool is trivially adequate.
func CapitalRatioBps(available, required int64) int64 {
	if required <= 0 {
		return fpmath.BpsScale * 10
	}
	return fpmath.MulDiv(available, fpmath.BpsScale, required)
}

// CheckCapitalAdequacy evaluates the breaker transition. Checks are
// rate-limited to bound compute cost and damp oscillation from noisy
// inputs; a skipped check returns the standing state with checked=false.
func (m *Monitor) CheckCapitalAdequacy(available, required int64, nowUs int64) (State, bool) {
	if m.hasChecked && nowUs-m.lastCheckUs < m.cfg.MinCheckIntervalUs {
		return m.state, false
	}
	m.lastCheckUs = nowUs
	m.hasChecked = true

	ratio := CapitalRatioBps(available, required)

	switch m.state {
	case StateNormal:
		if ratio < m.cfg.PauseThresholdBps {
			m.state = StateCircuitBreakerActive
			m.log.Warn().
				Int64("ratio_bps", ratio).
				Int64("available", available).
				Int64("required", required).
				Msg("capital ratio below pause threshold, circuit breaker tripped")
		}
	case StateCircuitBreakerActive:
		if ratio >= m.cfg.TargetCapitalRatioBps {
			m.state = StateNormal
			m.log.Info().
				Int64("ratio_bps", ratio).
				Msg("capital ratio recovered, circuit breaker reset")
		}
	}

	return m.state, true
}

// CanExecuteLiquidation is a pure pre-check: it simulates the
// post-liquidation capital position and rejects when the resulting ratio
// would fall below the minimum, or when the breaker is already tripped.
// It never mutates monitor state.
func (m *Monitor) CanExecuteLiquidation(available, required, cost int64) bool {
	if m.state == StateCircuitBreakerActive {
		return false
	}
	if cost < 0 || cost > available {
		return false
	}
	return CapitalRatioBps(available-cost, required) >= m.cfg.MinCapitalRatioBps
}
