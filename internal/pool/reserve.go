package pool

import (
	"fmt"

	"github.com/google/uuid"

	"TrancheVault/internal/ledger"
	"TrancheVault/internal/tranche"
)

// The pool implements purchase.Reserver: pending liquidation purchases
// escrow pool funds so concurrent commitments cannot oversubscribe capital.
// Reservations are a counter against the ledger's pool value, not ledger
// movements; value only moves when a purchase settles or a claim pays out.

func (p *Pool) assetID(asset string) (ledger.AssetID, error) {
	id, ok := ledger.GetAssetID(asset)
	if !ok {
		return 0, fmt.Errorf("unsupported asset %q", asset)
	}
	return id, nil
}

// Reserve escrows amount against the unreserved pool value.
func (p *Pool) Reserve(asset string, amount int64) error {
	if p.shutdown {
		return fmt.Errorf("pool is shut down")
	}
	if amount <= 0 {
		return fmt.Errorf("reserve amount must be positive, got %d", amount)
	}
	id, err := p.assetID(asset)
	if err != nil {
		return err
	}
	available := p.tracker.TotalPool(id) - p.reserved[id]
	if amount > available {
		return fmt.Errorf("reserve %d exceeds unreserved pool %d", amount, available)
	}
	p.reserved[id] += amount
	return nil
}

// Release returns an unused reservation to the pool.
func (p *Pool) Release(asset string, amount int64) {
	id, err := p.assetID(asset)
	if err != nil || amount <= 0 {
		return
	}
	p.reserved[id] -= amount
	if p.reserved[id] < 0 {
		panic(fmt.Sprintf("FATAL: reservation underflow for %s: %d", asset, p.reserved[id]))
	}
}

// Consume burns a reservation when the purchase settles. The cash became
// collateral at cost, a value-neutral swap: the ledger keeps carrying it at
// cost basis until distribution realizes the edge as profit or loss.
func (p *Pool) Consume(asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("consume amount must be positive, got %d", amount)
	}
	id, err := p.assetID(asset)
	if err != nil {
		return err
	}
	if p.reserved[id] < amount {
		return fmt.Errorf("consume %d exceeds reservation %d for %s", amount, p.reserved[id], asset)
	}
	p.reserved[id] -= amount
	return nil
}

// Reserved reports the outstanding reservation for an asset.
func (p *Pool) Reserved(assetID ledger.AssetID) int64 {
	return p.reserved[assetID]
}

// ============================================================================
// Shutdown
// ============================================================================

// InitiateShutdown permanently switches the pool to wind-down: deposits and
// queued withdrawals stop, and emergency withdrawals open once the delay
// window elapses. There is no way back.
func (p *Pool) InitiateShutdown(initiator, reason string, nowUs int64) error {
	if p.shutdown {
		return fmt.Errorf("pool already shut down at %d", p.shutdownUs)
	}
	p.shutdown = true
	p.shutdownUs = nowUs
	p.log.Error().
		Str("initiator", initiator).
		Str("reason", reason).
		Int64("redeemable_at_us", nowUs+p.cfg.ShutdownDelayUs).
		Msg("pool shutdown initiated")
	return nil
}

// IsShutdown reports wind-down mode.
func (p *Pool) IsShutdown() bool {
	return p.shutdown
}

// EmergencyWithdraw redeems shares during wind-down, bypassing the queue,
// the fulfillment delay and the epoch cap. Redemption opens only after the
// shutdown delay window: the window is the last chance for governance to
// act before capital leaves. Haircut rules still apply: an impaired junior
// buffer still discounts senior exits. The user's queued requests for the
// tranche are purged so locked shares become redeemable.
func (p *Pool) EmergencyWithdraw(requestID, user uuid.UUID, assetID ledger.AssetID, id tranche.ID, shares, nowUs int64) (int64, error) {
	if !p.shutdown {
		return 0, fmt.Errorf("emergency withdrawal requires shutdown")
	}
	if nowUs < p.shutdownUs+p.cfg.ShutdownDelayUs {
		return 0, fmt.Errorf("emergency withdrawal opens at %d: %dus remaining",
			p.shutdownUs+p.cfg.ShutdownDelayUs, p.shutdownUs+p.cfg.ShutdownDelayUs-nowUs)
	}
	if shares <= 0 {
		return 0, fmt.Errorf("withdraw shares must be positive, got %d", shares)
	}
	if p.fulfilled[requestID] {
		return 0, fmt.Errorf("request %s already fulfilled", requestID)
	}
	held := p.shares.Shares(user, assetID, id)
	if held < shares {
		return 0, fmt.Errorf("insufficient shares: have %d, redeeming %d", held, shares)
	}

	// Drop the user's queued requests; emergency redemption supersedes them.
	q := p.queue(assetID)
	for _, req := range q.pending() {
		if req.User == user && req.Tranche == id {
			q.remove(req.RequestID)
		}
	}

	w := tranche.CalculateWithdrawal(p.State(assetID), shares, id)
	var batch *ledger.Batch
	if w.Entitlement > 0 {
		var err error
		batch, err = p.generator.GenerateWithdrawal(
			requestID.String(), assetID, id == tranche.Senior, w.Entitlement, true, nowUs)
		if err != nil {
			return 0, fmt.Errorf("generating emergency withdrawal batch: %w", err)
		}
	}
	if err := p.shares.Burn(user, assetID, id, shares); err != nil {
		return 0, fmt.Errorf("burning shares: %w", err)
	}
	if batch != nil {
		if err := p.applyBatch(batch, assetID); err != nil {
			return 0, err
		}
	}
	p.fulfilled[requestID] = true

	p.log.Warn().
		Str("request", requestID.String()).
		Str("user", user.String()).
		Str("tranche", id.String()).
		Int64("shares", shares).
		Int64("paid", w.Entitlement).
		Msg("emergency withdrawal")
	return w.Entitlement, nil
}
