// Package pool is the orchestrator: it owns the tranche share registry, the
// FIFO withdrawal queue, fund reservations and the shutdown switch, and it
// drives every capital movement through the journal ledger so the zero-sum
// invariant covers the whole pool.
package pool

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"TrancheVault/internal/ledger"
	fpmath "TrancheVault/internal/math"
	"TrancheVault/internal/reinsurance"
	"TrancheVault/internal/tranche"
)

// Config bounds pool behavior. All rates in bps, all durations in
// microseconds.
type Config struct {
	// DustFloor rejects deposits too small to mint a meaningful share.
	DustFloor int64
	// FirstDepositCeiling caps the first deposit into an empty tranche so
	// a single depositor cannot seed a manipulable share price.
	FirstDepositCeiling int64
	// MaxExposureBps caps one user's share of a tranche.
	MaxExposureBps int64
	// DepositFeeBps is the initial premium fee; the premium engine updates
	// it each epoch.
	DepositFeeBps int64
	// WithdrawDelayUs is the minimum age of a request before fulfillment.
	WithdrawDelayUs int64
	// CooldownUs is the minimum gap between a holder's deposit and their
	// next withdrawal request, and between successive requests.
	CooldownUs int64
	// MaxEpochWithdrawBps caps total value withdrawn per epoch as a
	// fraction of the tranche's value.
	MaxEpochWithdrawBps int64
	// EpochDurationUs is the withdrawal-cap accounting window.
	EpochDurationUs int64
	// ShutdownDelayUs is the wind-down window between initiateShutdown and
	// the first redeemable emergency withdrawal.
	ShutdownDelayUs int64
	// ReinsuranceDeductibleBps is retained by the pool before any claim.
	ReinsuranceDeductibleBps int64
}

func DefaultConfig() Config {
	return Config{
		DustFloor:                1_000,
		FirstDepositCeiling:      10_000_000,
		MaxExposureBps:           5_000,
		DepositFeeBps:            50,
		WithdrawDelayUs:          24 * 3600 * 1_000_000,
		CooldownUs:               3600 * 1_000_000,
		MaxEpochWithdrawBps:      2_500,
		EpochDurationUs:          24 * 3600 * 1_000_000,
		ShutdownDelayUs:          48 * 3600 * 1_000_000,
		ReinsuranceDeductibleBps: 500,
	}
}

func (c Config) Validate() error {
	if c.DustFloor <= 0 {
		return fmt.Errorf("dust floor must be positive, got %d", c.DustFloor)
	}
	if c.FirstDepositCeiling < c.DustFloor {
		return fmt.Errorf("first deposit ceiling %d below dust floor %d", c.FirstDepositCeiling, c.DustFloor)
	}
	if c.MaxExposureBps <= 0 || c.MaxExposureBps > fpmath.BpsScale {
		return fmt.Errorf("max exposure out of range: %d", c.MaxExposureBps)
	}
	if c.DepositFeeBps < 0 || c.DepositFeeBps >= fpmath.BpsScale {
		return fmt.Errorf("deposit fee out of range: %d", c.DepositFeeBps)
	}
	if c.WithdrawDelayUs < 0 || c.CooldownUs < 0 || c.ShutdownDelayUs < 0 {
		return fmt.Errorf("durations must be non-negative")
	}
	if c.MaxEpochWithdrawBps <= 0 || c.MaxEpochWithdrawBps > fpmath.BpsScale {
		return fmt.Errorf("epoch withdraw cap out of range: %d", c.MaxEpochWithdrawBps)
	}
	if c.EpochDurationUs <= 0 {
		return fmt.Errorf("epoch duration must be positive, got %d", c.EpochDurationUs)
	}
	if c.ReinsuranceDeductibleBps < 0 || c.ReinsuranceDeductibleBps >= fpmath.BpsScale {
		return fmt.Errorf("reinsurance deductible out of range: %d", c.ReinsuranceDeductibleBps)
	}
	return nil
}

type epochWindow struct {
	startUs   int64
	withdrawn int64
}

// epochKey scopes a withdrawal-cap window to one tranche: a junior run
// must not consume room sized on senior capital.
type epochKey struct {
	asset   ledger.AssetID
	tranche tranche.ID
}

// holderKey tracks per-holder deposit recency for the withdrawal guards.
type holderKey struct {
	user    uuid.UUID
	asset   ledger.AssetID
	tranche tranche.ID
}

// Pool is the orchestrator. Single-threaded: all entry points are called
// from the pipeline goroutine; the core never reads the wall clock.
type Pool struct {
	cfg       Config
	log       zerolog.Logger
	tracker   *ledger.BalanceTracker
	generator *ledger.JournalGenerator
	validator *ledger.InvariantValidator
	shares    *ShareRegistry
	reins     *reinsurance.Module

	queues       map[ledger.AssetID]*withdrawQueue
	reserved     map[ledger.AssetID]int64
	epochs       map[epochKey]*epochWindow
	lastDepUs    map[holderKey]int64
	lastDepBlock map[holderKey]int64
	lastReqUs    map[uuid.UUID]int64
	lastReqBlock map[uuid.UUID]int64
	fulfilled    map[uuid.UUID]bool

	feeBps     int64
	shutdown   bool
	shutdownUs int64

	// OnBatch receives every applied batch, for persistence and outbound
	// publication. Nil is valid.
	OnBatch func(*ledger.Batch)
}

func New(cfg Config, tracker *ledger.BalanceTracker, generator *ledger.JournalGenerator, reins *reinsurance.Module, log zerolog.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}
	return &Pool{
		cfg:          cfg,
		log:          log,
		tracker:      tracker,
		generator:    generator,
		validator:    ledger.NewInvariantValidator(tracker),
		shares:       NewShareRegistry(),
		reins:        reins,
		queues:       make(map[ledger.AssetID]*withdrawQueue),
		reserved:     make(map[ledger.AssetID]int64),
		epochs:       make(map[epochKey]*epochWindow),
		lastDepUs:    make(map[holderKey]int64),
		lastDepBlock: make(map[holderKey]int64),
		lastReqUs:    make(map[uuid.UUID]int64),
		lastReqBlock: make(map[uuid.UUID]int64),
		fulfilled:    make(map[uuid.UUID]bool),
		feeBps:       cfg.DepositFeeBps,
	}, nil
}

// State assembles the tranche view for one asset from the ledger and the
// share registry.
func (p *Pool) State(assetID ledger.AssetID) tranche.State {
	senior := p.tracker.SeniorValue(assetID)
	junior := p.tracker.JuniorValue(assetID)
	return tranche.State{
		SeniorValue:  senior,
		JuniorValue:  junior,
		SeniorShares: p.shares.TotalShares(assetID, tranche.Senior),
		JuniorShares: p.shares.TotalShares(assetID, tranche.Junior),
		TotalValue:   senior + junior,
	}
}

// SetDepositFeeBps is called by the premium engine when a new rate applies.
func (p *Pool) SetDepositFeeBps(bps int64) error {
	if bps < 0 || bps >= fpmath.BpsScale {
		return fmt.Errorf("deposit fee out of range: %d", bps)
	}
	p.feeBps = bps
	return nil
}

// DepositFeeBps returns the active premium fee rate.
func (p *Pool) DepositFeeBps() int64 {
	return p.feeBps
}

// Shares exposes the registry for queries and snapshots.
func (p *Pool) Shares() *ShareRegistry {
	return p.shares
}

func (p *Pool) queue(assetID ledger.AssetID) *withdrawQueue {
	q, ok := p.queues[assetID]
	if !ok {
		q = newWithdrawQueue()
		p.queues[assetID] = q
	}
	return q
}

// applyBatch pushes a batch through the ledger and re-checks the invariants
// that must hold after every event. Invariant failure is unrecoverable.
func (p *Pool) applyBatch(batch *ledger.Batch, assetID ledger.AssetID) error {
	if err := p.validator.ValidateBatchBalance(batch); err != nil {
		return fmt.Errorf("batch validation: %w", err)
	}
	if err := p.tracker.ApplyBatch(batch); err != nil {
		return fmt.Errorf("applying batch: %w", err)
	}
	if err := p.validator.ValidateTrancheAccounts(assetID); err != nil {
		panic(fmt.Sprintf("FATAL: tranche invariant violated after batch %s: %v", batch.BatchID, err))
	}
	if err := p.validator.ValidateGlobalBalance(); err != nil {
		panic(fmt.Sprintf("FATAL: global balance invariant violated after batch %s: %v", batch.BatchID, err))
	}
	if err := p.shares.ValidateConservation(); err != nil {
		panic(fmt.Sprintf("FATAL: %v", err))
	}
	if p.OnBatch != nil {
		p.OnBatch(batch)
	}
	return nil
}

// ============================================================================
// Deposits
// ============================================================================

// Deposit mints tranche shares for a confirmed transfer. The premium fee is
// deducted up front; shares are minted against the net amount at the
// current tranche NAV.
func (p *Pool) Deposit(eventRef string, user uuid.UUID, assetID ledger.AssetID, id tranche.ID, amount, nowUs, block int64) (int64, error) {
	if p.shutdown {
		return 0, fmt.Errorf("pool is shut down")
	}
	if amount < p.cfg.DustFloor {
		return 0, fmt.Errorf("deposit %d below dust floor %d", amount, p.cfg.DustFloor)
	}

	state := p.State(assetID)
	trancheValue := state.Value(id)
	totalShares := state.Shares(id)

	if totalShares == 0 && amount > p.cfg.FirstDepositCeiling {
		return 0, fmt.Errorf("first deposit %d exceeds ceiling %d", amount, p.cfg.FirstDepositCeiling)
	}

	fee := fpmath.BpsOf(amount, p.feeBps)
	net := amount - fee
	if net <= 0 {
		return 0, fmt.Errorf("deposit consumed by fee: amount=%d fee=%d", amount, fee)
	}

	shares := fpmath.SharesForDeposit(net, totalShares, trancheValue)
	if shares <= 0 {
		return 0, fmt.Errorf("deposit of %d mints no shares at current NAV", net)
	}

	// Exposure check on the post-deposit position. The first deposit into
	// an empty tranche is exempt (it is always 100%) and bounded by the
	// ceiling instead.
	if totalShares > 0 {
		userShares := p.shares.Shares(user, assetID, id) + shares
		newTotal := totalShares + shares
		if fpmath.MulDiv(userShares, fpmath.BpsScale, newTotal) > p.cfg.MaxExposureBps {
			return 0, fmt.Errorf("deposit would put user above %d bps of tranche", p.cfg.MaxExposureBps)
		}
	}

	batch, err := p.generator.GenerateDeposit(eventRef, assetID, id == tranche.Senior, net, fee, nowUs)
	if err != nil {
		return 0, fmt.Errorf("generating deposit batch: %w", err)
	}
	if err := p.shares.Mint(user, assetID, id, shares); err != nil {
		return 0, fmt.Errorf("minting shares: %w", err)
	}
	if err := p.applyBatch(batch, assetID); err != nil {
		return 0, err
	}

	// Withdrawal requests are gated on the holder's most recent deposit,
	// so a deposit cannot be round-tripped within the same block or
	// before the cooldown runs out.
	k := holderKey{user, assetID, id}
	p.lastDepUs[k] = nowUs
	p.lastDepBlock[k] = block

	p.log.Info().
		Str("event_ref", eventRef).
		Str("user", user.String()).
		Str("tranche", id.String()).
		Int64("amount", amount).
		Int64("fee", fee).
		Int64("shares", shares).
		Msg("deposit applied")
	return shares, nil
}

// ============================================================================
// Withdrawals
// ============================================================================

// RequestWithdraw queues a redemption. Shares stay locked in the queue; the
// user must wait out the delay before fulfillment.
func (p *Pool) RequestWithdraw(requestID, user uuid.UUID, assetID ledger.AssetID, id tranche.ID, shares, nowUs, block int64) error {
	if p.shutdown {
		return fmt.Errorf("pool is shut down; use emergency withdrawal")
	}
	if shares <= 0 {
		return fmt.Errorf("withdraw shares must be positive, got %d", shares)
	}
	q := p.queue(assetID)
	if q.contains(requestID) {
		return fmt.Errorf("withdraw request %s already queued", requestID)
	}

	available := p.shares.Shares(user, assetID, id) - q.queuedShares(user, assetID, id)
	if available < shares {
		return fmt.Errorf("insufficient unqueued shares: have %d, requested %d", available, shares)
	}

	// Guard against same-block deposit/withdraw round trips: the request
	// must land in a later block than the holder's last deposit and wait
	// out the cooldown from it.
	k := holderKey{user, assetID, id}
	if depBlock, ok := p.lastDepBlock[k]; ok {
		if block <= depBlock {
			return fmt.Errorf("withdraw request must arrive in a later block than deposit block %d", depBlock)
		}
		if nowUs-p.lastDepUs[k] < p.cfg.CooldownUs {
			return fmt.Errorf("deposit cooldown: %dus remaining", p.cfg.CooldownUs-(nowUs-p.lastDepUs[k]))
		}
	}

	if last, ok := p.lastReqUs[user]; ok {
		if nowUs-last < p.cfg.CooldownUs {
			return fmt.Errorf("withdraw cooldown: %dus remaining", p.cfg.CooldownUs-(nowUs-last))
		}
		if block <= p.lastReqBlock[user] {
			return fmt.Errorf("withdraw request must arrive in a later block than %d", p.lastReqBlock[user])
		}
	}

	q.push(WithdrawRequest{
		RequestID:      requestID,
		User:           user,
		AssetID:        assetID,
		Tranche:        id,
		Shares:         shares,
		RequestedUs:    nowUs,
		RequestedBlock: block,
	})
	p.lastReqUs[user] = nowUs
	p.lastReqBlock[user] = block

	p.log.Info().
		Str("request", requestID.String()).
		Str("user", user.String()).
		Str("tranche", id.String()).
		Int64("shares", shares).
		Msg("withdrawal queued")
	return nil
}

// epochRoom returns how much value may still leave one tranche this epoch.
// The cap is sized on the tranche's own value, not the pool.
func (p *Pool) epochRoom(assetID ledger.AssetID, id tranche.ID, nowUs int64) int64 {
	k := epochKey{assetID, id}
	w, ok := p.epochs[k]
	if !ok || nowUs-w.startUs >= p.cfg.EpochDurationUs {
		w = &epochWindow{startUs: nowUs}
		p.epochs[k] = w
	}
	capAmount := fpmath.BpsOf(p.State(assetID).Value(id), p.cfg.MaxEpochWithdrawBps)
	room := capAmount - w.withdrawn
	if room < 0 {
		room = 0
	}
	return room
}

// FulfillResult describes one settled withdrawal.
type FulfillResult struct {
	RequestID    uuid.UUID
	SharesBurned int64
	Paid         int64
	Restricted   bool
}

// FulfillWithdraw settles one queued request after the delay. Fulfillment
// is clamped to the epoch withdrawal cap: a clamped request is partially
// filled and the remainder stays queued. Re-fulfilling a settled request is
// a no-op error, not a double payout.
func (p *Pool) FulfillWithdraw(requestID uuid.UUID, nowUs int64) (FulfillResult, error) {
	if p.shutdown {
		return FulfillResult{}, fmt.Errorf("pool is shut down")
	}
	if p.fulfilled[requestID] {
		return FulfillResult{}, fmt.Errorf("request %s already fulfilled", requestID)
	}

	var req WithdrawRequest
	var q *withdrawQueue
	found := false
	for _, queue := range p.queues {
		if r, ok := queue.get(requestID); ok {
			req, q, found = r, queue, true
			break
		}
	}
	if !found {
		return FulfillResult{}, fmt.Errorf("unknown withdraw request %s", requestID)
	}
	if nowUs-req.RequestedUs < p.cfg.WithdrawDelayUs {
		return FulfillResult{}, fmt.Errorf("request %s not yet mature: %dus remaining",
			requestID, p.cfg.WithdrawDelayUs-(nowUs-req.RequestedUs))
	}

	res, err := p.settleRequest(req, q, p.epochRoom(req.AssetID, req.Tranche, nowUs), nowUs)
	if err != nil {
		return FulfillResult{}, err
	}
	if res.SharesBurned == req.Shares {
		p.fulfilled[requestID] = true
	}
	return res, nil
}

// settleRequest burns shares and pays the entitlement, clamped to room.
func (p *Pool) settleRequest(req WithdrawRequest, q *withdrawQueue, room, nowUs int64) (FulfillResult, error) {
	state := p.State(req.AssetID)
	w := tranche.CalculateWithdrawal(state, req.Shares, req.Tranche)
	if w.Entitlement <= 0 {
		// Shares worth nothing: burn them and close the request.
		if err := p.shares.Burn(req.User, req.AssetID, req.Tranche, req.Shares); err != nil {
			return FulfillResult{}, err
		}
		q.remove(req.RequestID)
		return FulfillResult{RequestID: req.RequestID, SharesBurned: req.Shares, Restricted: w.Restricted}, nil
	}

	sharesToBurn := req.Shares
	payout := w.Entitlement
	if payout > room {
		if room <= 0 {
			return FulfillResult{}, fmt.Errorf("epoch withdrawal cap exhausted")
		}
		// Partial fill: burn the share fraction the room can pay.
		sharesToBurn = fpmath.MulDiv(req.Shares, room, w.Entitlement)
		if sharesToBurn <= 0 {
			return FulfillResult{}, fmt.Errorf("epoch withdrawal cap exhausted")
		}
		payout = tranche.CalculateWithdrawal(state, sharesToBurn, req.Tranche).Entitlement
		if payout <= 0 {
			return FulfillResult{}, fmt.Errorf("epoch withdrawal cap exhausted")
		}
	}

	batch, err := p.generator.GenerateWithdrawal(
		req.RequestID.String(), req.AssetID, req.Tranche == tranche.Senior, payout, false, nowUs)
	if err != nil {
		return FulfillResult{}, fmt.Errorf("generating withdrawal batch: %w", err)
	}
	if err := p.shares.Burn(req.User, req.AssetID, req.Tranche, sharesToBurn); err != nil {
		return FulfillResult{}, fmt.Errorf("burning shares: %w", err)
	}
	if err := p.applyBatch(batch, req.AssetID); err != nil {
		return FulfillResult{}, err
	}

	q.reduce(req.RequestID, sharesToBurn)
	p.epochs[epochKey{req.AssetID, req.Tranche}].withdrawn += payout

	p.log.Info().
		Str("request", req.RequestID.String()).
		Str("tranche", req.Tranche.String()).
		Int64("shares_burned", sharesToBurn).
		Int64("paid", payout).
		Bool("restricted", w.Restricted).
		Msg("withdrawal fulfilled")
	return FulfillResult{
		RequestID:    req.RequestID,
		SharesBurned: sharesToBurn,
		Paid:         payout,
		Restricted:   w.Restricted,
	}, nil
}

// BatchFulfillWithdrawals settles every mature request in one pass,
// scaling each payout by maxAmount / totalEntitlement. Epoch liquidity is
// shared pro-rata across the whole FIFO queue rather than drained by its
// head, so a liquidity run cannot starve later requesters. Partially
// filled requests keep their place with reduced shares; drained requests
// are removed from the queue.
func (p *Pool) BatchFulfillWithdrawals(assetID ledger.AssetID, maxAmount, nowUs int64) ([]FulfillResult, error) {
	if p.shutdown {
		return nil, fmt.Errorf("pool is shut down")
	}
	if maxAmount <= 0 {
		return nil, fmt.Errorf("max amount must be positive, got %d", maxAmount)
	}

	q := p.queue(assetID)
	state := p.State(assetID)
	rooms := map[tranche.ID]int64{
		tranche.Senior: p.epochRoom(assetID, tranche.Senior, nowUs),
		tranche.Junior: p.epochRoom(assetID, tranche.Junior, nowUs),
	}

	// Snapshot entitlements for every mature request, then scale them by
	// a single pool-wide ratio.
	type dueRequest struct {
		req WithdrawRequest
		ent int64
	}
	var mature []dueRequest
	var total int64
	for _, req := range q.pending() {
		if nowUs-req.RequestedUs < p.cfg.WithdrawDelayUs {
			continue
		}
		ent := tranche.CalculateWithdrawal(state, req.Shares, req.Tranche).Entitlement
		mature = append(mature, dueRequest{req, ent})
		total += ent
	}

	effective := maxAmount
	if effective > total {
		effective = total
	}

	results := make([]FulfillResult, 0, len(mature))
	for _, d := range mature {
		if d.ent <= 0 {
			// Worthless shares: burn them and close the request.
			res, err := p.settleRequest(d.req, q, 0, nowUs)
			if err != nil {
				return results, err
			}
			p.fulfilled[d.req.RequestID] = true
			results = append(results, res)
			continue
		}
		alloc := fpmath.MulDiv(d.ent, effective, total)
		if alloc > rooms[d.req.Tranche] {
			alloc = rooms[d.req.Tranche]
		}
		if alloc <= 0 {
			continue
		}
		res, err := p.settleRequest(d.req, q, alloc, nowUs)
		if err != nil {
			// Rounding left an allocation too small to burn a share;
			// the request waits for the next batch.
			continue
		}
		if res.SharesBurned == d.req.Shares {
			p.fulfilled[d.req.RequestID] = true
		}
		rooms[d.req.Tranche] -= res.Paid
		results = append(results, res)
	}
	return results, nil
}

// PreviewWithdraw computes the current entitlement for burning shares
// without mutating anything.
func (p *Pool) PreviewWithdraw(assetID ledger.AssetID, id tranche.ID, shares int64) tranche.Withdrawal {
	return tranche.CalculateWithdrawal(p.State(assetID), shares, id)
}

// PendingWithdrawals returns the FIFO queue for an asset.
func (p *Pool) PendingWithdrawals(assetID ledger.AssetID) []WithdrawRequest {
	return p.queue(assetID).pending()
}
