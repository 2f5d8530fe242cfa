package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDepositReceived
	EventTypeWithdrawRequested
	EventTypeWithdrawFulfill
	EventTypeWithdrawBatchFulfill
	EventTypeLossRecorded
	EventTypeProfitRecorded
	EventTypePurchaseCommitted
	EventTypePurchaseRevealed
	EventTypePurchaseCancelled
	EventTypeOraclePriceUpdate
	EventTypePremiumEpochTick
	EventTypeCoverageRequested
	EventTypeCoverageApproved
	EventTypeCoverageInjected
	EventTypeShutdownInitiated
	EventTypeEmergencyWithdrawal
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Stablecoin context (nullable for global events)
	Asset *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Asset returns the stablecoin context (nil for global events)
	Asset() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeDepositReceived:
		return "DepositReceived"
	case EventTypeWithdrawRequested:
		return "WithdrawRequested"
	case EventTypeWithdrawFulfill:
		return "WithdrawFulfill"
	case EventTypeWithdrawBatchFulfill:
		return "WithdrawBatchFulfill"
	case EventTypeLossRecorded:
		return "LossRecorded"
	case EventTypeProfitRecorded:
		return "ProfitRecorded"
	case EventTypePurchaseCommitted:
		return "PurchaseCommitted"
	case EventTypePurchaseRevealed:
		return "PurchaseRevealed"
	case EventTypePurchaseCancelled:
		return "PurchaseCancelled"
	case EventTypeOraclePriceUpdate:
		return "OraclePriceUpdate"
	case EventTypePremiumEpochTick:
		return "PremiumEpochTick"
	case EventTypeCoverageRequested:
		return "CoverageRequested"
	case EventTypeCoverageApproved:
		return "CoverageApproved"
	case EventTypeCoverageInjected:
		return "CoverageInjected"
	case EventTypeShutdownInitiated:
		return "ShutdownInitiated"
	case EventTypeEmergencyWithdrawal:
		return "EmergencyWithdrawal"
	default:
		return "Unknown"
	}
}
