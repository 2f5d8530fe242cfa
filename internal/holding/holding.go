// Package holding tracks collateral acquired through liquidation purchases
// while it waits for distribution. Each lock records its entry price so the
// distribution pipeline can compute realized edge against acquisition cost.
package holding

import (
	"fmt"

	fpmath "TrancheVault/internal/math"
)

// Lock is one tranche of held collateral.
type Lock struct {
	Asset       string
	Amount      int64
	EntryPrice  int64
	PeakPrice   int64
	AcquiredUs  int64
	ExecutionID [32]byte
}

// Registry is the in-memory lock table. Single-threaded access.
type Registry struct {
	locks []Lock
}

func NewRegistry() *Registry {
	return &Registry{}
}

// LockCollateral records newly acquired collateral.
func (r *Registry) LockCollateral(execID [32]byte, asset string, amount, entryPrice, nowUs int64) error {
	if amount <= 0 {
		return fmt.Errorf("lock amount must be positive, got %d", amount)
	}
	if entryPrice <= 0 {
		return fmt.Errorf("entry price must be positive, got %d", entryPrice)
	}
	r.locks = append(r.locks, Lock{
		Asset:       asset,
		Amount:      amount,
		EntryPrice:  entryPrice,
		PeakPrice:   entryPrice,
		AcquiredUs:  nowUs,
		ExecutionID: execID,
	})
	return nil
}

// MarkPrice updates peak tracking for every lock in the asset.
func (r *Registry) MarkPrice(asset string, price int64) {
	for i := range r.locks {
		if r.locks[i].Asset == asset && price > r.locks[i].PeakPrice {
			r.locks[i].PeakPrice = price
		}
	}
}

// Release removes up to amount of the asset FIFO and returns the
// cost basis of the released collateral.
func (r *Registry) Release(asset string, amount int64) (costBasis int64, err error) {
	if amount <= 0 {
		return 0, fmt.Errorf("release amount must be positive, got %d", amount)
	}
	remaining := amount
	kept := r.locks[:0]
	for _, l := range r.locks {
		if l.Asset != asset || remaining == 0 {
			kept = append(kept, l)
			continue
		}
		take := l.Amount
		if take > remaining {
			take = remaining
		}
		costBasis += fpmath.MulDiv(take, l.EntryPrice, fpmath.BpsScale)
		l.Amount -= take
		remaining -= take
		if l.Amount > 0 {
			kept = append(kept, l)
		}
	}
	r.locks = kept
	if remaining > 0 {
		return 0, fmt.Errorf("insufficient held %s: short by %d", asset, remaining)
	}
	return costBasis, nil
}

// HeldAmount sums locked amounts for one asset.
func (r *Registry) HeldAmount(asset string) int64 {
	var total int64
	for _, l := range r.locks {
		if l.Asset == asset {
			total += l.Amount
		}
	}
	return total
}

// MarkValue values all holdings of an asset at the given price.
func (r *Registry) MarkValue(asset string, price int64) int64 {
	return fpmath.MulDiv(r.HeldAmount(asset), price, fpmath.BpsScale)
}

// Locks returns a copy of the lock table for snapshots and queries.
func (r *Registry) Locks() []Lock {
	out := make([]Lock, len(r.locks))
	copy(out, r.locks)
	return out
}

// Restore replaces the lock table from a snapshot.
func (r *Registry) Restore(locks []Lock) {
	r.locks = make([]Lock, len(locks))
	copy(r.locks, locks)
}
