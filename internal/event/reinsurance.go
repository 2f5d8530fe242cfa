package event

import (
	"fmt"

	"github.com/google/uuid"
)

// CoverageRequested opens a reinsurance claim for a proven loss.
type CoverageRequested struct {
	RequestID   uuid.UUID `json:"request_id"`
	AssetID     string    `json:"asset"`
	Amount      int64     `json:"amount"`
	LossProof   [32]byte  `json:"loss_proof"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (c *CoverageRequested) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *CoverageRequested) EventType() EventType {
	return EventTypeCoverageRequested
}

func (c *CoverageRequested) Asset() *string {
	return &c.AssetID
}

func (c *CoverageRequested) SourceSequence() int64 {
	return c.Sequence
}

// CoverageApproved verifies a claim's loss proof.
type CoverageApproved struct {
	RequestID   uuid.UUID `json:"request_id"`
	AssetID     string    `json:"asset"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (c *CoverageApproved) IdempotencyKey() string {
	return fmt.Sprintf("%s:approve", c.RequestID)
}

func (c *CoverageApproved) EventType() EventType {
	return EventTypeCoverageApproved
}

func (c *CoverageApproved) Asset() *string {
	return &c.AssetID
}

func (c *CoverageApproved) SourceSequence() int64 {
	return c.Sequence
}

// CoverageInjected settles an approved claim into the junior tranche.
type CoverageInjected struct {
	RequestID   uuid.UUID `json:"request_id"`
	AssetID     string    `json:"asset"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (c *CoverageInjected) IdempotencyKey() string {
	return fmt.Sprintf("%s:inject", c.RequestID)
}

func (c *CoverageInjected) EventType() EventType {
	return EventTypeCoverageInjected
}

func (c *CoverageInjected) Asset() *string {
	return &c.AssetID
}

func (c *CoverageInjected) SourceSequence() int64 {
	return c.Sequence
}
