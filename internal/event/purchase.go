package event

import (
	"encoding/hex"
	"fmt"
)

// PurchaseCommitted opens a commit-reveal liquidation purchase.
type PurchaseCommitted struct {
	Keeper       string   `json:"keeper"`
	Target       string   `json:"target"`
	AssetID      string   `json:"asset"`
	Commitment   [32]byte `json:"commitment"`
	ExpectedCost int64    `json:"expected_cost"`
	Sequence     int64    `json:"sequence"`
	Block        int64    `json:"block"`
	TimestampUs  int64    `json:"timestamp_us"`
}

func (p *PurchaseCommitted) IdempotencyKey() string {
	return fmt.Sprintf("commit:%s", hex.EncodeToString(p.Commitment[:]))
}

func (p *PurchaseCommitted) EventType() EventType {
	return EventTypePurchaseCommitted
}

func (p *PurchaseCommitted) Asset() *string {
	return &p.AssetID
}

func (p *PurchaseCommitted) SourceSequence() int64 {
	return p.Sequence
}

// PurchaseRevealed finalizes a committed purchase with the preimage.
type PurchaseRevealed struct {
	ExecutionID      [32]byte `json:"execution_id"`
	AssetID          string   `json:"asset"`
	Protocol         string   `json:"protocol"`
	Borrower         string   `json:"borrower"`
	CollateralAsset  string   `json:"collateral_asset"`
	DebtAsset        string   `json:"debt_asset"`
	DebtToCover      int64    `json:"debt_to_cover"`
	MinCollateralOut int64    `json:"min_collateral_out"`
	Salt             [32]byte `json:"salt"`
	Sequence         int64    `json:"sequence"`
	Block            int64    `json:"block"`
	TimestampUs      int64    `json:"timestamp_us"`
}

func (p *PurchaseRevealed) IdempotencyKey() string {
	return fmt.Sprintf("reveal:%s", hex.EncodeToString(p.ExecutionID[:]))
}

func (p *PurchaseRevealed) EventType() EventType {
	return EventTypePurchaseRevealed
}

func (p *PurchaseRevealed) Asset() *string {
	return &p.AssetID
}

func (p *PurchaseRevealed) SourceSequence() int64 {
	return p.Sequence
}

// PurchaseCancelled abandons a pending commitment.
type PurchaseCancelled struct {
	ExecutionID [32]byte `json:"execution_id"`
	Keeper      string   `json:"keeper"`
	AssetID     string   `json:"asset"`
	Sequence    int64    `json:"sequence"`
	TimestampUs int64    `json:"timestamp_us"`
}

func (p *PurchaseCancelled) IdempotencyKey() string {
	return fmt.Sprintf("cancel:%s", hex.EncodeToString(p.ExecutionID[:]))
}

func (p *PurchaseCancelled) EventType() EventType {
	return EventTypePurchaseCancelled
}

func (p *PurchaseCancelled) Asset() *string {
	return &p.AssetID
}

func (p *PurchaseCancelled) SourceSequence() int64 {
	return p.Sequence
}
