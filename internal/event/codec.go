package event

import (
	"encoding/json"
	"fmt"
)

// TypeFromString maps the persisted event_type column back to its discriminator.
func TypeFromString(s string) EventType {
	switch s {
	case "DepositReceived":
		return EventTypeDepositReceived
	case "WithdrawRequested":
		return EventTypeWithdrawRequested
	case "WithdrawFulfill":
		return EventTypeWithdrawFulfill
	case "WithdrawBatchFulfill":
		return EventTypeWithdrawBatchFulfill
	case "LossRecorded":
		return EventTypeLossRecorded
	case "ProfitRecorded":
		return EventTypeProfitRecorded
	case "PurchaseCommitted":
		return EventTypePurchaseCommitted
	case "PurchaseRevealed":
		return EventTypePurchaseRevealed
	case "PurchaseCancelled":
		return EventTypePurchaseCancelled
	case "OraclePriceUpdate":
		return EventTypeOraclePriceUpdate
	case "PremiumEpochTick":
		return EventTypePremiumEpochTick
	case "CoverageRequested":
		return EventTypeCoverageRequested
	case "CoverageApproved":
		return EventTypeCoverageApproved
	case "CoverageInjected":
		return EventTypeCoverageInjected
	case "ShutdownInitiated":
		return EventTypeShutdownInitiated
	case "EmergencyWithdrawal":
		return EventTypeEmergencyWithdrawal
	default:
		return EventTypeUnknown
	}
}

// Decode unmarshals a persisted payload into its typed event. Used during
// replay from the event log, where payloads were produced by Encode.
func Decode(et EventType, data []byte) (Event, error) {
	var evt Event
	switch et {
	case EventTypeDepositReceived:
		evt = &DepositReceived{}
	case EventTypeWithdrawRequested:
		evt = &WithdrawRequested{}
	case EventTypeWithdrawFulfill:
		evt = &WithdrawFulfill{}
	case EventTypeWithdrawBatchFulfill:
		evt = &WithdrawBatchFulfill{}
	case EventTypeLossRecorded:
		evt = &LossRecorded{}
	case EventTypeProfitRecorded:
		evt = &ProfitRecorded{}
	case EventTypePurchaseCommitted:
		evt = &PurchaseCommitted{}
	case EventTypePurchaseRevealed:
		evt = &PurchaseRevealed{}
	case EventTypePurchaseCancelled:
		evt = &PurchaseCancelled{}
	case EventTypeOraclePriceUpdate:
		evt = &OraclePriceUpdate{}
	case EventTypePremiumEpochTick:
		evt = &PremiumEpochTick{}
	case EventTypeCoverageRequested:
		evt = &CoverageRequested{}
	case EventTypeCoverageApproved:
		evt = &CoverageApproved{}
	case EventTypeCoverageInjected:
		evt = &CoverageInjected{}
	case EventTypeShutdownInitiated:
		evt = &ShutdownInitiated{}
	case EventTypeEmergencyWithdrawal:
		evt = &EmergencyWithdrawal{}
	default:
		return nil, fmt.Errorf("decode: unknown event type %d", et)
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return evt, nil
}

// Encode serializes an event payload for the event log.
func Encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventType(), err)
	}
	return data, nil
}
