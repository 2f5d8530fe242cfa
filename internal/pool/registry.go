package pool

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"TrancheVault/internal/ledger"
	"TrancheVault/internal/tranche"
)

type shareKey struct {
	user    uuid.UUID
	assetID ledger.AssetID
	id      tranche.ID
}

// ShareRegistry tracks per-user share holdings. The ledger carries tranche
// VALUE; shares live here. Invariant: for every (asset, tranche) the user
// shares sum exactly to the tracked total.
type ShareRegistry struct {
	holdings map[shareKey]int64
	totals   map[totalKey]int64
}

type totalKey struct {
	assetID ledger.AssetID
	id      tranche.ID
}

func NewShareRegistry() *ShareRegistry {
	return &ShareRegistry{
		holdings: make(map[shareKey]int64),
		totals:   make(map[totalKey]int64),
	}
}

// Mint credits newly issued shares to a user.
func (r *ShareRegistry) Mint(user uuid.UUID, assetID ledger.AssetID, id tranche.ID, shares int64) error {
	if shares <= 0 {
		return fmt.Errorf("mint shares must be positive, got %d", shares)
	}
	r.holdings[shareKey{user, assetID, id}] += shares
	r.totals[totalKey{assetID, id}] += shares
	return nil
}

// Burn removes shares from a user.
func (r *ShareRegistry) Burn(user uuid.UUID, assetID ledger.AssetID, id tranche.ID, shares int64) error {
	if shares <= 0 {
		return fmt.Errorf("burn shares must be positive, got %d", shares)
	}
	k := shareKey{user, assetID, id}
	held := r.holdings[k]
	if held < shares {
		return fmt.Errorf("burn exceeds holding: user %s holds %d, burning %d", user, held, shares)
	}
	if held == shares {
		delete(r.holdings, k)
	} else {
		r.holdings[k] = held - shares
	}
	r.totals[totalKey{assetID, id}] -= shares
	return nil
}

// Shares returns a user's holding in one tranche.
func (r *ShareRegistry) Shares(user uuid.UUID, assetID ledger.AssetID, id tranche.ID) int64 {
	return r.holdings[shareKey{user, assetID, id}]
}

// TotalShares returns the outstanding share count for a tranche.
func (r *ShareRegistry) TotalShares(assetID ledger.AssetID, id tranche.ID) int64 {
	return r.totals[totalKey{assetID, id}]
}

// ValidateConservation re-sums holdings against the tracked totals.
func (r *ShareRegistry) ValidateConservation() error {
	recomputed := make(map[totalKey]int64)
	for k, v := range r.holdings {
		recomputed[totalKey{k.assetID, k.id}] += v
	}
	for k, total := range r.totals {
		if recomputed[k] != total {
			return fmt.Errorf("share conservation violated for asset %d %s: holdings sum %d, total %d",
				k.assetID, k.id, recomputed[k], total)
		}
	}
	for k, sum := range recomputed {
		if r.totals[k] != sum {
			return fmt.Errorf("share conservation violated for asset %d %s: holdings sum %d, total %d",
				k.assetID, k.id, sum, r.totals[k])
		}
	}
	return nil
}

// Holding is one user's position, for snapshots.
type Holding struct {
	User    uuid.UUID
	AssetID ledger.AssetID
	Tranche tranche.ID
	Shares  int64
}

// Snapshot returns all holdings in deterministic order.
func (r *ShareRegistry) Snapshot() []Holding {
	out := make([]Holding, 0, len(r.holdings))
	for k, v := range r.holdings {
		out = append(out, Holding{User: k.user, AssetID: k.assetID, Tranche: k.id, Shares: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].User != out[j].User {
			return out[i].User.String() < out[j].User.String()
		}
		if out[i].AssetID != out[j].AssetID {
			return out[i].AssetID < out[j].AssetID
		}
		return out[i].Tranche < out[j].Tranche
	})
	return out
}

// Restore replaces the registry contents from a snapshot.
func (r *ShareRegistry) Restore(holdings []Holding) {
	r.holdings = make(map[shareKey]int64, len(holdings))
	r.totals = make(map[totalKey]int64)
	for _, h := range holdings {
		r.holdings[shareKey{h.User, h.AssetID, h.Tranche}] = h.Shares
		r.totals[totalKey{h.AssetID, h.Tranche}] += h.Shares
	}
}
