package event

import "github.com/google/uuid"

// DepositReceived is a confirmed depositor transfer into one tranche.
type DepositReceived struct {
	DepositID   uuid.UUID `json:"deposit_id"`
	UserID      uuid.UUID `json:"user_id"`
	AssetID     string    `json:"asset"`
	Tranche     int32     `json:"tranche"` // 0 = senior, 1 = junior
	Amount      int64     `json:"amount"`  // Fixed-point
	Sequence    int64     `json:"sequence"`
	Block       int64     `json:"block"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (d *DepositReceived) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *DepositReceived) EventType() EventType {
	return EventTypeDepositReceived
}

func (d *DepositReceived) Asset() *string {
	return &d.AssetID
}

func (d *DepositReceived) SourceSequence() int64 {
	return d.Sequence
}
