package projection

import (
	"strings"
	"sync"
)

// LossHistoryEntry records one waterfall distribution.
type LossHistoryEntry struct {
	Asset      string `json:"asset"`
	SeniorLoss int64  `json:"senior_loss"`
	JuniorLoss int64  `json:"junior_loss"`
	Sequence   int64  `json:"sequence"`
	Timestamp  int64  `json:"timestamp"`
}

// LossHistoryProjection maintains a queryable in-memory history of
// waterfall distributions, derived from loss journal entries.
type LossHistoryProjection struct {
	mu      sync.RWMutex
	entries []LossHistoryEntry
}

func NewLossHistoryProjection() *LossHistoryProjection {
	return &LossHistoryProjection{
		entries: make([]LossHistoryEntry, 0),
	}
}

// Record derives the per-tranche split from the journal entries of one
// loss event and appends it to the history.
func (p *LossHistoryProjection) Record(asset string, sequence, timestamp int64, journals []JournalEntry) {
	entry := LossHistoryEntry{
		Asset:     asset,
		Sequence:  sequence,
		Timestamp: timestamp,
	}

	for _, j := range journals {
		switch {
		case strings.Contains(j.CreditAccount, ":senior:") || strings.Contains(j.DebitAccount, ":senior:"):
			entry.SeniorLoss += j.Amount
		case strings.Contains(j.CreditAccount, ":junior:") || strings.Contains(j.DebitAccount, ":junior:"):
			entry.JuniorLoss += j.Amount
		}
	}

	p.mu.Lock()
	p.entries = append(p.entries, entry)
	p.mu.Unlock()
}

// QueryByAsset returns the most recent waterfall distributions for an asset.
func (p *LossHistoryProjection) QueryByAsset(asset string, limit int) []LossHistoryEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]LossHistoryEntry, 0)
	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Asset == asset {
			result = append(result, p.entries[i])
		}
	}

	return result
}
