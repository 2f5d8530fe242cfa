package query

// TrancheStateResponse represents per-asset pool state for API queries.
type TrancheStateResponse struct {
	Asset string `json:"asset"`

	// Ledger balances (from projected journal entries)
	SeniorValue int64 `json:"senior_value"`
	JuniorValue int64 `json:"junior_value"`
	PremiumFees int64 `json:"premium_fees"`
	TotalValue  int64 `json:"total_value"` // senior + junior

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last projected event sequence
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// EventRecord represents an event-log row for API queries.
type EventRecord struct {
	Sequence       int64   `json:"sequence"`
	EventType      string  `json:"event_type"`
	IdempotencyKey string  `json:"idempotency_key"`
	Asset          *string `json:"asset,omitempty"`
	Payload        string  `json:"payload"`
	SourceSequence int64   `json:"source_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
