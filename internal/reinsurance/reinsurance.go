// Package reinsurance manages the external backstop layer: registered
// providers allocate capital against senior-tranche shortfalls, earn
// premiums on it, and are drawn pro-rata when a covered loss is proven.
package reinsurance

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	fpmath "TrancheVault/internal/math"
)

// RequestStatus is the lifecycle state of a coverage request.
type RequestStatus int32

const (
	RequestPending RequestStatus = iota
	RequestApproved
	RequestPaidOut
	RequestRejected
	RequestExpired
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "PENDING"
	case RequestApproved:
		return "APPROVED"
	case RequestPaidOut:
		return "PAID_OUT"
	case RequestRejected:
		return "REJECTED"
	case RequestExpired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// Provider is one registered reinsurer.
type Provider struct {
	ID               string
	AllocatedCapital int64
	CoverageLimit    int64 // max draw per request
	PremiumRateBps   int64 // annualized, on allocated capital
	TrustScoreBps    int64
	Active           bool
}

// Draw is one provider's share of a payout.
type Draw struct {
	ProviderID string
	Amount     int64
}

// CoverageRequest tracks one claim from request through settlement.
type CoverageRequest struct {
	ID             uuid.UUID
	Amount         int64
	LossProof      [32]byte
	Status         RequestStatus
	RequestedUs    int64
	ExpiresUs      int64
	ApprovedAmount int64
	Draws          []Draw
}

// Config bounds claim behavior.
type Config struct {
	// RequestValidityUs is how long a pending request stays claimable.
	RequestValidityUs int64
	// MinTrustScoreBps excludes low-trust providers from payouts.
	MinTrustScoreBps int64
}

func DefaultConfig() Config {
	return Config{
		RequestValidityUs: 7 * 24 * 3600 * 1_000_000,
		MinTrustScoreBps:  5_000,
	}
}

func (c Config) Validate() error {
	if c.RequestValidityUs <= 0 {
		return fmt.Errorf("request validity must be positive, got %d", c.RequestValidityUs)
	}
	if c.MinTrustScoreBps < 0 || c.MinTrustScoreBps > fpmath.BpsScale {
		return fmt.Errorf("min trust score out of range: %d", c.MinTrustScoreBps)
	}
	return nil
}

// Module is the reinsurance state. Single-threaded access.
type Module struct {
	cfg       Config
	log       zerolog.Logger
	providers map[string]*Provider
	order     []string // registration order, for deterministic pro-rata
	requests  map[uuid.UUID]*CoverageRequest
	proofs    map[[32]byte]int64 // recorded loss proof -> loss amount
}

func NewModule(cfg Config, log zerolog.Logger) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reinsurance config: %w", err)
	}
	return &Module{
		cfg:       cfg,
		log:       log,
		providers: make(map[string]*Provider),
		requests:  make(map[uuid.UUID]*CoverageRequest),
		proofs:    make(map[[32]byte]int64),
	}, nil
}

// ============================================================================
// Providers
// ============================================================================

// RegisterProvider adds or tops up a provider.
func (m *Module) RegisterProvider(p Provider) error {
	if p.ID == "" {
		return fmt.Errorf("provider id must not be empty")
	}
	if p.AllocatedCapital <= 0 {
		return fmt.Errorf("allocated capital must be positive, got %d", p.AllocatedCapital)
	}
	if p.CoverageLimit <= 0 || p.CoverageLimit > p.AllocatedCapital {
		return fmt.Errorf("coverage limit %d must be in (0, %d]", p.CoverageLimit, p.AllocatedCapital)
	}
	if p.PremiumRateBps < 0 || p.PremiumRateBps > fpmath.BpsScale {
		return fmt.Errorf("premium rate out of range: %d", p.PremiumRateBps)
	}
	if p.TrustScoreBps < 0 || p.TrustScoreBps > fpmath.BpsScale {
		return fmt.Errorf("trust score out of range: %d", p.TrustScoreBps)
	}
	if existing, ok := m.providers[p.ID]; ok {
		existing.AllocatedCapital += p.AllocatedCapital
		if p.CoverageLimit > existing.CoverageLimit {
			existing.CoverageLimit = p.CoverageLimit
		}
		return nil
	}
	cp := p
	cp.Active = true
	m.providers[p.ID] = &cp
	m.order = append(m.order, p.ID)
	m.log.Info().
		Str("provider", p.ID).
		Int64("capital", p.AllocatedCapital).
		Int64("premium_rate_bps", p.PremiumRateBps).
		Msg("reinsurance provider registered")
	return nil
}

// SetProviderActive toggles a provider in or out of the payout set.
func (m *Module) SetProviderActive(id string, active bool) error {
	p, ok := m.providers[id]
	if !ok {
		return fmt.Errorf("unknown provider %s", id)
	}
	p.Active = active
	return nil
}

// TotalCapacity sums the capital of providers eligible for payouts.
func (m *Module) TotalCapacity() int64 {
	var total int64
	for _, id := range m.order {
		p := m.providers[id]
		if p.Active && p.TrustScoreBps >= m.cfg.MinTrustScoreBps {
			total += p.AllocatedCapital
		}
	}
	return total
}

// Providers returns a sorted copy of the provider set.
func (m *Module) Providers() []Provider {
	out := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============================================================================
// Loss proofs
// ============================================================================

// LossProof binds a claim to a specific recorded loss event.
func LossProof(asset string, lossAmount, sequence int64) [32]byte {
	h := sha256.New()
	h.Write([]byte(asset))
	h.Write([]byte{0})
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(lossAmount))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(sequence))
	h.Write(buf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// RecordLossProof registers a loss the pool actually took, making claims
// against it verifiable.
func (m *Module) RecordLossProof(proof [32]byte, lossAmount int64) {
	m.proofs[proof] = lossAmount
}

// ============================================================================
// Coverage lifecycle
// ============================================================================

// RequestCoverage opens a claim for a proven loss.
func (m *Module) RequestCoverage(id uuid.UUID, amount int64, proof [32]byte, nowUs int64) error {
	if amount <= 0 {
		return fmt.Errorf("coverage amount must be positive, got %d", amount)
	}
	if _, exists := m.requests[id]; exists {
		return fmt.Errorf("coverage request %s already exists", id)
	}
	m.requests[id] = &CoverageRequest{
		ID:          id,
		Amount:      amount,
		LossProof:   proof,
		Status:      RequestPending,
		RequestedUs: nowUs,
		ExpiresUs:   nowUs + m.cfg.RequestValidityUs,
	}
	m.log.Info().
		Str("request", id.String()).
		Int64("amount", amount).
		Msg("coverage requested")
	return nil
}

// ApproveRequest verifies the loss proof and moves the claim to APPROVED.
// The approved amount is clamped to the proven loss and to available
// reinsurance capacity.
func (m *Module) ApproveRequest(id uuid.UUID, nowUs int64) (int64, error) {
	req, ok := m.requests[id]
	if !ok {
		return 0, fmt.Errorf("unknown coverage request %s", id)
	}
	if m.expireIfStale(req, nowUs) {
		return 0, fmt.Errorf("coverage request %s expired", id)
	}
	if req.Status != RequestPending {
		return 0, fmt.Errorf("coverage request %s is %s, want PENDING", id, req.Status)
	}
	provenLoss, known := m.proofs[req.LossProof]
	if !known {
		req.Status = RequestRejected
		return 0, fmt.Errorf("coverage request %s: loss proof not recognized", id)
	}
	approved := req.Amount
	if approved > provenLoss {
		approved = provenLoss
	}
	if capacity := m.TotalCapacity(); approved > capacity {
		approved = capacity
	}
	if approved <= 0 {
		req.Status = RequestRejected
		return 0, fmt.Errorf("coverage request %s: no claimable amount", id)
	}
	req.Status = RequestApproved
	req.ApprovedAmount = approved
	m.log.Info().
		Str("request", id.String()).
		Int64("approved", approved).
		Msg("coverage approved")
	return approved, nil
}

// SettleRequest draws the approved amount pro-rata from eligible providers
// and returns the per-provider draws. Provider capital shrinks by the draw.
func (m *Module) SettleRequest(id uuid.UUID, nowUs int64) ([]Draw, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("unknown coverage request %s", id)
	}
	if m.expireIfStale(req, nowUs) {
		return nil, fmt.Errorf("coverage request %s expired", id)
	}
	if req.Status != RequestApproved {
		return nil, fmt.Errorf("coverage request %s is %s, want APPROVED", id, req.Status)
	}

	eligible := make([]*Provider, 0, len(m.order))
	var capacity int64
	for _, pid := range m.order {
		p := m.providers[pid]
		if p.Active && p.TrustScoreBps >= m.cfg.MinTrustScoreBps && p.AllocatedCapital > 0 {
			eligible = append(eligible, p)
			capacity += p.AllocatedCapital
		}
	}
	if capacity < req.ApprovedAmount {
		return nil, fmt.Errorf(
			"coverage request %s: capacity %d below approved %d", id, capacity, req.ApprovedAmount)
	}

	// Pro-rata by allocated capital, rounded down; the last eligible
	// provider absorbs the rounding remainder so the draws sum exactly.
	draws := make([]Draw, 0, len(eligible))
	var drawn int64
	for i, p := range eligible {
		share := fpmath.MulDiv(req.ApprovedAmount, p.AllocatedCapital, capacity)
		if i == len(eligible)-1 {
			share = req.ApprovedAmount - drawn
		}
		if share > p.CoverageLimit {
			share = p.CoverageLimit
		}
		if share > p.AllocatedCapital {
			share = p.AllocatedCapital
		}
		if share == 0 {
			continue
		}
		p.AllocatedCapital -= share
		drawn += share
		draws = append(draws, Draw{ProviderID: p.ID, Amount: share})
	}
	if drawn < req.ApprovedAmount {
		// Per-provider coverage limits bit into the pro-rata split.
		req.ApprovedAmount = drawn
	}
	req.Status = RequestPaidOut
	req.Draws = draws
	m.log.Info().
		Str("request", id.String()).
		Int64("paid", drawn).
		Int("providers", len(draws)).
		Msg("coverage paid out")
	return draws, nil
}

func (m *Module) expireIfStale(req *CoverageRequest, nowUs int64) bool {
	if req.Status != RequestPending && req.Status != RequestApproved {
		return false
	}
	if nowUs <= req.ExpiresUs {
		return false
	}
	req.Status = RequestExpired
	return true
}

// Request looks up one claim.
func (m *Module) Request(id uuid.UUID) (CoverageRequest, bool) {
	req, ok := m.requests[id]
	if !ok {
		return CoverageRequest{}, false
	}
	return *req, true
}

// ============================================================================
// Premiums
// ============================================================================

// AccruePremiums computes the premium owed to each provider for a period,
// annualized on allocated capital. The caller settles the amounts through
// the ledger.
func (m *Module) AccruePremiums(periodUs int64) []Draw {
	const yearUs = int64(365 * 24 * 3600 * 1_000_000)
	if periodUs <= 0 {
		return nil
	}
	out := make([]Draw, 0, len(m.order))
	for _, pid := range m.order {
		p := m.providers[pid]
		if !p.Active || p.AllocatedCapital <= 0 {
			continue
		}
		annual := fpmath.BpsOf(p.AllocatedCapital, p.PremiumRateBps)
		owed := fpmath.MulDiv(annual, periodUs, yearUs)
		if owed > 0 {
			out = append(out, Draw{ProviderID: pid, Amount: owed})
		}
	}
	return out
}

// VerifyProof reports whether a proof matches a recorded loss of at least
// the claimed amount.
func (m *Module) VerifyProof(proof [32]byte, claimed int64) bool {
	loss, ok := m.proofs[proof]
	return ok && loss >= claimed && !bytes.Equal(proof[:], make([]byte, 32))
}
