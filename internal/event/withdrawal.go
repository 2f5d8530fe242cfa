package event

import (
	"fmt"

	"github.com/google/uuid"
)

// WithdrawRequested queues a share redemption.
type WithdrawRequested struct {
	RequestID   uuid.UUID `json:"request_id"`
	UserID      uuid.UUID `json:"user_id"`
	AssetID     string    `json:"asset"`
	Tranche     int32     `json:"tranche"`
	Shares      int64     `json:"shares"`
	Sequence    int64     `json:"sequence"`
	Block       int64     `json:"block"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (w *WithdrawRequested) IdempotencyKey() string {
	return w.RequestID.String()
}

func (w *WithdrawRequested) EventType() EventType {
	return EventTypeWithdrawRequested
}

func (w *WithdrawRequested) Asset() *string {
	return &w.AssetID
}

func (w *WithdrawRequested) SourceSequence() int64 {
	return w.Sequence
}

// WithdrawFulfill settles one queued request after its delay.
type WithdrawFulfill struct {
	RequestID   uuid.UUID `json:"request_id"`
	AssetID     string    `json:"asset"`
	Sequence    int64     `json:"sequence"`
	Block       int64     `json:"block"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (w *WithdrawFulfill) IdempotencyKey() string {
	return fmt.Sprintf("%s:fulfill", w.RequestID)
}

func (w *WithdrawFulfill) EventType() EventType {
	return EventTypeWithdrawFulfill
}

func (w *WithdrawFulfill) Asset() *string {
	return &w.AssetID
}

func (w *WithdrawFulfill) SourceSequence() int64 {
	return w.Sequence
}

// WithdrawBatchFulfill settles every mature request, splitting MaxAmount
// pro-rata across the queue by entitlement.
type WithdrawBatchFulfill struct {
	BatchID     uuid.UUID `json:"batch_id"`
	AssetID     string    `json:"asset"`
	MaxAmount   int64     `json:"max_amount"`
	Sequence    int64     `json:"sequence"`
	Block       int64     `json:"block"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (w *WithdrawBatchFulfill) IdempotencyKey() string {
	return fmt.Sprintf("%s:batch", w.BatchID)
}

func (w *WithdrawBatchFulfill) EventType() EventType {
	return EventTypeWithdrawBatchFulfill
}

func (w *WithdrawBatchFulfill) Asset() *string {
	return &w.AssetID
}

func (w *WithdrawBatchFulfill) SourceSequence() int64 {
	return w.Sequence
}

// EmergencyWithdrawal redeems shares immediately after shutdown, skipping
// the queue and the delay.
type EmergencyWithdrawal struct {
	RequestID   uuid.UUID `json:"request_id"`
	UserID      uuid.UUID `json:"user_id"`
	AssetID     string    `json:"asset"`
	Tranche     int32     `json:"tranche"`
	Shares      int64     `json:"shares"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (w *EmergencyWithdrawal) IdempotencyKey() string {
	return fmt.Sprintf("%s:emergency", w.RequestID)
}

func (w *EmergencyWithdrawal) EventType() EventType {
	return EventTypeEmergencyWithdrawal
}

func (w *EmergencyWithdrawal) Asset() *string {
	return &w.AssetID
}

func (w *EmergencyWithdrawal) SourceSequence() int64 {
	return w.Sequence
}
