package risk

import (
	"fmt"
	"math"

	fpmath "TrancheVault/internal/math"
)

// Config bounds the per-asset price history and gates oracle quality.
type Config struct {
	MaxSamples       int   // ring capacity per asset
	MaxStalenessUs   int64 // reject reads older than this
	MinConfidenceBps int64 // reject oracle samples below this confidence
}

func DefaultConfig() Config {
	return Config{
		MaxSamples:       256,
		MaxStalenessUs:   15 * 60 * 1_000_000, // 15 minutes
		MinConfidenceBps: 9_000,
	}
}

// Sample is one observed oracle price.
type Sample struct {
	Price         int64 // PriceConfig scale
	ConfidenceBps int64
	TimestampUs   int64
}

type series struct {
	samples []Sample // ring, oldest first once full
	head    int
	full    bool
}

func (s *series) push(p Sample, capacity int) {
	if len(s.samples) < capacity && !s.full {
		s.samples = append(s.samples, p)
		if len(s.samples) == capacity {
			s.full = true
		}
		return
	}
	s.samples[s.head] = p
	s.head = (s.head + 1) % len(s.samples)
}

// ordered returns samples oldest-first.
func (s *series) ordered() []Sample {
	if !s.full {
		return s.samples
	}
	out := make([]Sample, 0, len(s.samples))
	out = append(out, s.samples[s.head:]...)
	out = append(out, s.samples[:s.head]...)
	return out
}

func (s *series) latest() (Sample, bool) {
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	if !s.full {
		return s.samples[len(s.samples)-1], true
	}
	idx := s.head - 1
	if idx < 0 {
		idx = len(s.samples) - 1
	}
	return s.samples[idx], true
}

// Metrics maintains bounded price history per asset and derives realized
// volatility and cross-asset correlation from it.
type Metrics struct {
	cfg    Config
	assets map[string]*series
}

func NewMetrics(cfg Config) *Metrics {
	return &Metrics{
		cfg:    cfg,
		assets: make(map[string]*series),
	}
}

// Record stores an oracle sample. Samples below the confidence floor are
// rejected as integrity failures rather than silently degraded.
func (m *Metrics) Record(asset string, sample Sample) error {
	if sample.Price <= 0 {
		return fmt.Errorf("non-positive price for %s: %d", asset, sample.Price)
	}
	if sample.ConfidenceBps < m.cfg.MinConfidenceBps {
		return fmt.Errorf("oracle confidence %d bps below floor %d for %s",
			sample.ConfidenceBps, m.cfg.MinConfidenceBps, asset)
	}

	s, ok := m.assets[asset]
	if !ok {
		s = &series{samples: make([]Sample, 0, m.cfg.MaxSamples)}
		m.assets[asset] = s
	}
	s.push(sample, m.cfg.MaxSamples)
	return nil
}

// LatestPrice returns the most recent sample, rejecting stale reads.
func (m *Metrics) LatestPrice(asset string, nowUs int64) (Sample, error) {
	s, ok := m.assets[asset]
	if !ok {
		return Sample{}, fmt.Errorf("no price history for %s", asset)
	}
	latest, ok := s.latest()
	if !ok {
		return Sample{}, fmt.Errorf("no price history for %s", asset)
	}
	if nowUs-latest.TimestampUs > m.cfg.MaxStalenessUs {
		return Sample{}, fmt.Errorf("stale price for %s: age %dus", asset, nowUs-latest.TimestampUs)
	}
	return latest, nil
}

// SampleCount returns how many samples are held for an asset.
func (m *Metrics) SampleCount(asset string) int {
	s, ok := m.assets[asset]
	if !ok {
		return 0
	}
	return len(s.samples)
}

// LogReturns computes consecutive log returns, oldest first.
func (m *Metrics) LogReturns(asset string) []float64 {
	s, ok := m.assets[asset]
	if !ok {
		return nil
	}
	ordered := s.ordered()
	if len(ordered) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(ordered)-1)
	for i := 1; i < len(ordered); i++ {
		returns = append(returns, math.Log(float64(ordered[i].Price)/float64(ordered[i-1].Price)))
	}
	return returns
}

// samplesPerYear estimates the annualization factor from observed spacing.
func (m *Metrics) samplesPerYear(asset string) float64 {
	s, ok := m.assets[asset]
	if !ok {
		return 0
	}
	ordered := s.ordered()
	if len(ordered) < 2 {
		return 0
	}
	spanUs := ordered[len(ordered)-1].TimestampUs - ordered[0].TimestampUs
	if spanUs <= 0 {
		return 0
	}
	avgGapUs := float64(spanUs) / float64(len(ordered)-1)
	const yearUs = 365.0 * 24 * 3600 * 1e6
	return yearUs / avgGapUs
}

// RealizedVolBps returns annualized realized volatility in bps.
// Returns 0 when the history is too short to estimate.
func (m *Metrics) RealizedVolBps(asset string) int64 {
	returns := m.LogReturns(asset)
	if len(returns) < 2 {
		return 0
	}
	perYear := m.samplesPerYear(asset)
	if perYear <= 0 {
		return 0
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

	annualized := math.Sqrt(variance * perYear)
	return int64(annualized * float64(fpmath.BpsScale))
}

// CorrelationBps computes the Pearson correlation of two assets' log
// returns, in bps (-10000..10000). Series are aligned from the tail; the
// shorter history bounds the window. Returns 0 when either side is too short.
func (m *Metrics) CorrelationBps(assetA, assetB string) int64 {
	ra := m.LogReturns(assetA)
	rb := m.LogReturns(assetB)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	if n < 2 {
		return 0
	}
	ra = ra[len(ra)-n:]
	rb = rb[len(rb)-n:]

	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += ra[i]
		meanB += rb[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := ra[i] - meanA
		db := rb[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}

	corr := cov / math.Sqrt(varA*varB)
	return int64(corr * float64(fpmath.BpsScale))
}
