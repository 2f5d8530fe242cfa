package pool

import (
	"github.com/google/uuid"

	"TrancheVault/internal/ledger"
	"TrancheVault/internal/tranche"
)

// EpochSnapshot is one tranche-scoped withdrawal-cap window.
type EpochSnapshot struct {
	Asset     ledger.AssetID `json:"asset"`
	Tranche   tranche.ID     `json:"tranche"`
	StartUs   int64          `json:"start_us"`
	Withdrawn int64          `json:"withdrawn"`
}

// DepositMark records a holder's most recent deposit for the withdrawal
// block and cooldown guards.
type DepositMark struct {
	User        uuid.UUID      `json:"user"`
	Asset       ledger.AssetID `json:"asset"`
	Tranche     tranche.ID     `json:"tranche"`
	TimestampUs int64          `json:"timestamp_us"`
	Block       int64          `json:"block"`
}

// Snapshot is the serializable pool state outside the ledger: queue
// contents, reservations, epoch windows, rate limits and the shutdown
// switch. Balances and shares are snapshotted by their own owners.
type Snapshot struct {
	Queues           map[ledger.AssetID][]WithdrawRequest `json:"queues"`
	Reserved         map[ledger.AssetID]int64             `json:"reserved"`
	Epochs           []EpochSnapshot                      `json:"epochs"`
	LastDeposits     []DepositMark                        `json:"last_deposits"`
	LastRequestUs    map[uuid.UUID]int64                  `json:"last_request_us"`
	LastRequestBlock map[uuid.UUID]int64                  `json:"last_request_block"`
	Fulfilled        []uuid.UUID                          `json:"fulfilled"`
	FeeBps           int64                                `json:"fee_bps"`
	Shutdown         bool                                 `json:"shutdown"`
	ShutdownUs       int64                                `json:"shutdown_us"`
}

// Snapshot captures the pool's non-ledger state for persistence.
func (p *Pool) Snapshot() Snapshot {
	snap := Snapshot{
		Queues:           make(map[ledger.AssetID][]WithdrawRequest, len(p.queues)),
		Reserved:         make(map[ledger.AssetID]int64, len(p.reserved)),
		Epochs:           make([]EpochSnapshot, 0, len(p.epochs)),
		LastDeposits:     make([]DepositMark, 0, len(p.lastDepUs)),
		LastRequestUs:    make(map[uuid.UUID]int64, len(p.lastReqUs)),
		LastRequestBlock: make(map[uuid.UUID]int64, len(p.lastReqBlock)),
		FeeBps:           p.feeBps,
		Shutdown:         p.shutdown,
		ShutdownUs:       p.shutdownUs,
	}

	for assetID, q := range p.queues {
		snap.Queues[assetID] = q.pending()
	}
	for assetID, amount := range p.reserved {
		snap.Reserved[assetID] = amount
	}
	for k, w := range p.epochs {
		snap.Epochs = append(snap.Epochs, EpochSnapshot{
			Asset:     k.asset,
			Tranche:   k.tranche,
			StartUs:   w.startUs,
			Withdrawn: w.withdrawn,
		})
	}
	for k, ts := range p.lastDepUs {
		snap.LastDeposits = append(snap.LastDeposits, DepositMark{
			User:        k.user,
			Asset:       k.asset,
			Tranche:     k.tranche,
			TimestampUs: ts,
			Block:       p.lastDepBlock[k],
		})
	}
	for id, ts := range p.lastReqUs {
		snap.LastRequestUs[id] = ts
	}
	for id, block := range p.lastReqBlock {
		snap.LastRequestBlock[id] = block
	}
	for id, done := range p.fulfilled {
		if done {
			snap.Fulfilled = append(snap.Fulfilled, id)
		}
	}
	return snap
}

// RestoreSnapshot replaces the pool's non-ledger state (recovery path).
func (p *Pool) RestoreSnapshot(snap Snapshot) {
	p.queues = make(map[ledger.AssetID]*withdrawQueue, len(snap.Queues))
	for assetID, requests := range snap.Queues {
		q := newWithdrawQueue()
		for _, req := range requests {
			q.push(req)
		}
		p.queues[assetID] = q
	}

	p.reserved = make(map[ledger.AssetID]int64, len(snap.Reserved))
	for assetID, amount := range snap.Reserved {
		p.reserved[assetID] = amount
	}

	p.epochs = make(map[epochKey]*epochWindow, len(snap.Epochs))
	for _, e := range snap.Epochs {
		p.epochs[epochKey{e.Asset, e.Tranche}] = &epochWindow{
			startUs:   e.StartUs,
			withdrawn: e.Withdrawn,
		}
	}

	p.lastDepUs = make(map[holderKey]int64, len(snap.LastDeposits))
	p.lastDepBlock = make(map[holderKey]int64, len(snap.LastDeposits))
	for _, d := range snap.LastDeposits {
		k := holderKey{d.User, d.Asset, d.Tranche}
		p.lastDepUs[k] = d.TimestampUs
		p.lastDepBlock[k] = d.Block
	}

	p.lastReqUs = make(map[uuid.UUID]int64, len(snap.LastRequestUs))
	for id, ts := range snap.LastRequestUs {
		p.lastReqUs[id] = ts
	}
	p.lastReqBlock = make(map[uuid.UUID]int64, len(snap.LastRequestBlock))
	for id, block := range snap.LastRequestBlock {
		p.lastReqBlock[id] = block
	}

	p.fulfilled = make(map[uuid.UUID]bool, len(snap.Fulfilled))
	for _, id := range snap.Fulfilled {
		p.fulfilled[id] = true
	}

	p.feeBps = snap.FeeBps
	p.shutdown = snap.Shutdown
	p.shutdownUs = snap.ShutdownUs
}
