package ledger

import (
	"fmt"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === Tranche value queries ===

// SeniorValue returns the senior tranche value for an asset.
func (bt *BalanceTracker) SeniorValue(assetID AssetID) int64 {
	return bt.GetBalance(SeniorAccount(assetID))
}

// JuniorValue returns the junior tranche value for an asset.
func (bt *BalanceTracker) JuniorValue(assetID AssetID) int64 {
	return bt.GetBalance(JuniorAccount(assetID))
}

// TotalPool returns senior + junior value for an asset.
func (bt *BalanceTracker) TotalPool(assetID AssetID) int64 {
	return bt.SeniorValue(assetID) + bt.JuniorValue(assetID)
}

// PremiumFees returns accumulated deposit premium fees for an asset.
func (bt *BalanceTracker) PremiumFees(assetID AssetID) int64 {
	return bt.GetBalance(NewSystemAccountKey(SubTypePremiumFees, assetID))
}

// === Invariant checks ===

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ValidateTrancheNonNegative checks both tranche accounts for an asset
func (bt *BalanceTracker) ValidateTrancheNonNegative(assetID AssetID) error {
	if err := bt.ValidateNonNegative(SeniorAccount(assetID)); err != nil {
		return err
	}
	return bt.ValidateNonNegative(JuniorAccount(assetID))
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances from a snapshot (recovery path).
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}
