// Package purchase implements the commit-reveal state machine for buying
// liquidated collateral. A keeper first commits a hash of the liquidation
// parameters, then reveals them in a later block. The two-phase flow stops
// mempool observers from front-running the pool's liquidation fills.
package purchase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"TrancheVault/internal/external"
	fpmath "TrancheVault/internal/math"
)

// Status is the lifecycle state of one purchase attempt.
type Status int32

const (
	StatusPending Status = iota
	StatusExecuting
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusExecuting:
		return "EXECUTING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// Attempt is one committed purchase.
type Attempt struct {
	ExecutionID  [32]byte
	Target       string
	Keeper       string
	Asset        string
	Commitment   [32]byte
	ReservedCost int64
	Status       Status
	CommitBlock  int64
	CommittedUs  int64
}

// Reveal carries the parameters whose hash was committed.
type Reveal struct {
	Protocol         string
	Borrower         string
	CollateralAsset  string
	DebtAsset        string
	DebtToCover      int64
	MinCollateralOut int64
}

// Reserver escrows pool funds against a pending purchase. Consume burns the
// reservation when the purchase settles; Release returns it to the pool.
type Reserver interface {
	Reserve(asset string, amount int64) error
	Release(asset string, amount int64)
	Consume(asset string, amount int64) error
}

// CollateralSink receives acquired collateral.
type CollateralSink interface {
	LockCollateral(execID [32]byte, asset string, amount, entryPrice, nowUs int64) error
}

// Config bounds the reveal timing.
type Config struct {
	// RevealMinBlocks is the minimum block gap between commit and reveal.
	RevealMinBlocks int64
	// RevealWindowBlocks is the maximum block gap; older commitments are
	// dead and can only be cancelled.
	RevealWindowBlocks int64
	// ExecDeadlineUs bounds how long the flash execution may take.
	ExecDeadlineUs int64
}

func DefaultConfig() Config {
	return Config{
		RevealMinBlocks:    1,
		RevealWindowBlocks: 10,
		ExecDeadlineUs:     5 * 60 * 1_000_000,
	}
}

func (c Config) Validate() error {
	if c.RevealMinBlocks < 1 {
		return fmt.Errorf("reveal min blocks must be >= 1, got %d", c.RevealMinBlocks)
	}
	if c.RevealWindowBlocks < c.RevealMinBlocks {
		return fmt.Errorf("reveal window %d shorter than min gap %d", c.RevealWindowBlocks, c.RevealMinBlocks)
	}
	if c.ExecDeadlineUs <= 0 {
		return fmt.Errorf("exec deadline must be positive, got %d", c.ExecDeadlineUs)
	}
	return nil
}

// Machine runs purchase attempts through their lifecycle. Single-threaded:
// every entry point is called from the pipeline goroutine.
type Machine struct {
	cfg      Config
	log      zerolog.Logger
	reserver Reserver
	executor external.LiquidationExecutor
	keepers  external.KeeperRegistry
	sink     CollateralSink

	attempts  map[[32]byte]*Attempt
	processed map[string]bool // targets liquidated once, ever
	finalized map[[32]byte]bool
	nonce     uint64
}

func NewMachine(cfg Config, reserver Reserver, executor external.LiquidationExecutor, keepers external.KeeperRegistry, sink CollateralSink, log zerolog.Logger) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid purchase config: %w", err)
	}
	return &Machine{
		cfg:       cfg,
		log:       log,
		reserver:  reserver,
		executor:  executor,
		keepers:   keepers,
		sink:      sink,
		attempts:  make(map[[32]byte]*Attempt),
		processed: make(map[string]bool),
		finalized: make(map[[32]byte]bool),
	}, nil
}

// DeriveCommitment computes the hash a keeper must commit before revealing.
// The salt keeps the preimage unguessable even when the liquidation
// parameters are publicly observable.
func DeriveCommitment(target string, r Reveal, salt [32]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(target))
	h.Write([]byte{0})
	h.Write([]byte(r.Protocol))
	h.Write([]byte{0})
	h.Write([]byte(r.Borrower))
	h.Write([]byte{0})
	h.Write([]byte(r.CollateralAsset))
	h.Write([]byte{0})
	h.Write([]byte(r.DebtAsset))
	h.Write([]byte{0})
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(r.DebtToCover))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(r.MinCollateralOut))
	h.Write(buf[:])
	h.Write(salt[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// AttemptPurchase reserves funds and records a pending commitment. The
// returned execution ID keys every later call for this attempt.
func (m *Machine) AttemptPurchase(keeper, target, asset string, commitment [32]byte, expectedCost, block, nowUs int64) ([32]byte, error) {
	var zero [32]byte
	if !m.keepers.IsAuthorized(keeper) {
		return zero, fmt.Errorf("keeper %s is not authorized", keeper)
	}
	if m.processed[target] {
		return zero, fmt.Errorf("target %s already processed", target)
	}
	if expectedCost <= 0 {
		return zero, fmt.Errorf("expected cost must be positive, got %d", expectedCost)
	}
	if err := m.reserver.Reserve(asset, expectedCost); err != nil {
		return zero, fmt.Errorf("reserving %d %s: %w", expectedCost, asset, err)
	}

	execID := m.deriveExecutionID(commitment, nowUs)
	m.attempts[execID] = &Attempt{
		ExecutionID:  execID,
		Target:       target,
		Keeper:       keeper,
		Asset:        asset,
		Commitment:   commitment,
		ReservedCost: expectedCost,
		Status:       StatusPending,
		CommitBlock:  block,
		CommittedUs:  nowUs,
	}
	m.processed[target] = true

	m.log.Info().
		Hex("execution_id", execID[:8]).
		Str("keeper", keeper).
		Str("target", target).
		Int64("reserved", expectedCost).
		Int64("block", block).
		Msg("purchase committed")
	return execID, nil
}

func (m *Machine) deriveExecutionID(commitment [32]byte, nowUs int64) [32]byte {
	h := sha256.New()
	h.Write(commitment[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(nowUs))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], m.nonce)
	h.Write(buf[:])
	m.nonce++
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// FinalizePurchase reveals the committed parameters and executes the
// liquidation. State moves to EXECUTING before the external call so a crash
// mid-execution can never leave the attempt replayable.
func (m *Machine) FinalizePurchase(ctx context.Context, execID [32]byte, reveal Reveal, salt [32]byte, block, nowUs int64) (external.LiquidationResult, error) {
	a, ok := m.attempts[execID]
	if !ok {
		return external.LiquidationResult{}, fmt.Errorf("unknown execution id %x", execID[:8])
	}
	if m.finalized[execID] {
		return external.LiquidationResult{}, fmt.Errorf("execution %x already finalized", execID[:8])
	}
	if a.Status != StatusPending {
		return external.LiquidationResult{}, fmt.Errorf("execution %x is %s, want PENDING", execID[:8], a.Status)
	}
	gap := block - a.CommitBlock
	if gap < m.cfg.RevealMinBlocks {
		return external.LiquidationResult{}, fmt.Errorf("reveal too early: block gap %d < %d", gap, m.cfg.RevealMinBlocks)
	}
	if gap > m.cfg.RevealWindowBlocks {
		return external.LiquidationResult{}, fmt.Errorf("commitment expired: block gap %d > %d", gap, m.cfg.RevealWindowBlocks)
	}
	derived := DeriveCommitment(a.Target, reveal, salt)
	if !bytes.Equal(derived[:], a.Commitment[:]) {
		return external.LiquidationResult{}, fmt.Errorf("reveal does not match commitment for %x", execID[:8])
	}

	a.Status = StatusExecuting
	m.finalized[execID] = true

	res, err := m.executor.Liquidate(ctx, external.LiquidationOrder{
		Protocol:         reveal.Protocol,
		Target:           a.Target,
		Borrower:         reveal.Borrower,
		CollateralAsset:  reveal.CollateralAsset,
		DebtAsset:        reveal.DebtAsset,
		DebtToCover:      reveal.DebtToCover,
		MinCollateralOut: reveal.MinCollateralOut,
		DeadlineUs:       nowUs + m.cfg.ExecDeadlineUs,
	})
	if err != nil {
		a.Status = StatusFailed
		m.reserver.Release(a.Asset, a.ReservedCost)
		m.log.Warn().
			Hex("execution_id", execID[:8]).
			Err(err).
			Msg("purchase execution failed")
		return external.LiquidationResult{}, fmt.Errorf("executing liquidation %x: %w", execID[:8], err)
	}
	if res.CollateralReceived < reveal.MinCollateralOut {
		a.Status = StatusFailed
		m.reserver.Release(a.Asset, a.ReservedCost)
		return external.LiquidationResult{}, fmt.Errorf(
			"collateral %d below minimum %d for %x",
			res.CollateralReceived, reveal.MinCollateralOut, execID[:8])
	}

	entryPrice := int64(0)
	if res.CollateralReceived > 0 {
		// Cost basis per unit, bps-scaled: what the pool effectively paid.
		entryPrice = fpmath.MulDiv(a.ReservedCost, 10_000, res.CollateralReceived)
	}
	if err := m.sink.LockCollateral(execID, res.CollateralAsset, res.CollateralReceived, entryPrice, nowUs); err != nil {
		a.Status = StatusFailed
		m.reserver.Release(a.Asset, a.ReservedCost)
		return external.LiquidationResult{}, fmt.Errorf("locking collateral for %x: %w", execID[:8], err)
	}
	if err := m.reserver.Consume(a.Asset, a.ReservedCost); err != nil {
		// Reservation bookkeeping is local state; a consume failure here
		// means the reserver lost track of funds it reserved for us.
		panic(fmt.Sprintf("FATAL: consume of reserved funds failed for %x: %v", execID[:8], err))
	}
	a.Status = StatusCompleted

	m.log.Info().
		Hex("execution_id", execID[:8]).
		Str("collateral_asset", res.CollateralAsset).
		Int64("collateral_received", res.CollateralReceived).
		Int64("debt_paid", res.DebtPaid).
		Msg("purchase completed")
	return res, nil
}

// CancelPurchase releases a pending reservation. Only the committing keeper
// may cancel; a cancelled target stays processed so the same liquidation
// cannot be re-committed by someone else replaying the parameters.
func (m *Machine) CancelPurchase(execID [32]byte, keeper string) error {
	a, ok := m.attempts[execID]
	if !ok {
		return fmt.Errorf("unknown execution id %x", execID[:8])
	}
	if a.Keeper != keeper {
		return fmt.Errorf("keeper %s did not commit %x", keeper, execID[:8])
	}
	if a.Status != StatusPending {
		return fmt.Errorf("execution %x is %s, want PENDING", execID[:8], a.Status)
	}
	a.Status = StatusCancelled
	m.reserver.Release(a.Asset, a.ReservedCost)
	m.log.Info().
		Hex("execution_id", execID[:8]).
		Str("keeper", keeper).
		Msg("purchase cancelled")
	return nil
}

// Attempt looks up one purchase by execution ID.
func (m *Machine) Attempt(execID [32]byte) (Attempt, bool) {
	a, ok := m.attempts[execID]
	if !ok {
		return Attempt{}, false
	}
	return *a, true
}

// PendingCount reports how many attempts still hold reservations.
func (m *Machine) PendingCount() int {
	n := 0
	for _, a := range m.attempts {
		if a.Status == StatusPending {
			n++
		}
	}
	return n
}

// PendingAttempts returns a copy of every attempt still awaiting reveal,
// ordered by commit time for stable listings.
func (m *Machine) PendingAttempts() []Attempt {
	var out []Attempt
	for _, a := range m.attempts {
		if a.Status == StatusPending {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CommittedUs < out[j].CommittedUs
	})
	return out
}
