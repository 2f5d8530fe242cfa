package pool

import (
	"github.com/google/uuid"

	"TrancheVault/internal/ledger"
	"TrancheVault/internal/tranche"
)

// WithdrawRequest is one queued redemption. Shares named here stay locked
// against further requests until fulfillment or the request is drained to
// zero by partial batch fills.
type WithdrawRequest struct {
	RequestID      uuid.UUID
	User           uuid.UUID
	AssetID        ledger.AssetID
	Tranche        tranche.ID
	Shares         int64
	RequestedUs    int64
	RequestedBlock int64
}

// withdrawQueue is strictly FIFO per asset.
type withdrawQueue struct {
	requests []WithdrawRequest
	index    map[uuid.UUID]bool
}

func newWithdrawQueue() *withdrawQueue {
	return &withdrawQueue{index: make(map[uuid.UUID]bool)}
}

func (q *withdrawQueue) push(req WithdrawRequest) {
	q.requests = append(q.requests, req)
	q.index[req.RequestID] = true
}

func (q *withdrawQueue) contains(id uuid.UUID) bool {
	return q.index[id]
}

func (q *withdrawQueue) get(id uuid.UUID) (WithdrawRequest, bool) {
	for _, req := range q.requests {
		if req.RequestID == id {
			return req, true
		}
	}
	return WithdrawRequest{}, false
}

// reduce shrinks a request in place after a partial fill; a request drained
// to zero is removed. FIFO order of the survivors is preserved.
func (q *withdrawQueue) reduce(id uuid.UUID, sharesFilled int64) {
	kept := q.requests[:0]
	for _, req := range q.requests {
		if req.RequestID == id {
			req.Shares -= sharesFilled
			if req.Shares <= 0 {
				delete(q.index, id)
				continue
			}
		}
		kept = append(kept, req)
	}
	q.requests = kept
}

func (q *withdrawQueue) remove(id uuid.UUID) {
	kept := q.requests[:0]
	for _, req := range q.requests {
		if req.RequestID == id {
			delete(q.index, id)
			continue
		}
		kept = append(kept, req)
	}
	q.requests = kept
}

// pending returns the queue in FIFO order (copy).
func (q *withdrawQueue) pending() []WithdrawRequest {
	out := make([]WithdrawRequest, len(q.requests))
	copy(out, q.requests)
	return out
}

// queuedShares sums locked shares for one user and tranche.
func (q *withdrawQueue) queuedShares(user uuid.UUID, assetID ledger.AssetID, id tranche.ID) int64 {
	var total int64
	for _, req := range q.requests {
		if req.User == user && req.AssetID == assetID && req.Tranche == id {
			total += req.Shares
		}
	}
	return total
}

func (q *withdrawQueue) len() int {
	return len(q.requests)
}
