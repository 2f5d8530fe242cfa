package ingestion

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"TrancheVault/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending them to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "DepositReceived":
		return parseDepositReceived(raw.Data)
	case "WithdrawRequested":
		return parseWithdrawRequested(raw.Data)
	case "WithdrawFulfill":
		return parseWithdrawFulfill(raw.Data)
	case "WithdrawBatchFulfill":
		return parseWithdrawBatchFulfill(raw.Data)
	case "EmergencyWithdrawal":
		return parseEmergencyWithdrawal(raw.Data)
	case "LossRecorded":
		return parseLossRecorded(raw.Data)
	case "ProfitRecorded":
		return parseProfitRecorded(raw.Data)
	case "PurchaseCommitted":
		return parsePurchaseCommitted(raw.Data)
	case "PurchaseRevealed":
		return parsePurchaseRevealed(raw.Data)
	case "PurchaseCancelled":
		return parsePurchaseCancelled(raw.Data)
	case "OraclePriceUpdate":
		return parseOraclePriceUpdate(raw.Data)
	case "PremiumEpochTick":
		return parsePremiumEpochTick(raw.Data)
	case "CoverageRequested":
		return parseCoverageRequested(raw.Data)
	case "CoverageApproved":
		return parseCoverageApproved(raw.Data)
	case "CoverageInjected":
		return parseCoverageInjected(raw.Data)
	case "ShutdownInitiated":
		return parseShutdownInitiated(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// parseHash32 decodes a 64-char hex string into a fixed 32-byte array.
func parseHash32(s, field string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("parse %s: %w", field, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("parse %s: want 32 bytes, got %d", field, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type depositJSON struct {
	DepositID   string `json:"deposit_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Tranche     int32  `json:"tranche"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	Block       int64  `json:"block"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDepositReceived(data []byte) (*event.DepositReceived, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DepositReceived: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.DepositReceived{
		DepositID:   depositID,
		UserID:      userID,
		AssetID:     j.Asset,
		Tranche:     j.Tranche,
		Amount:      j.Amount,
		Sequence:    j.Sequence,
		Block:       j.Block,
		TimestampUs: j.TimestampUs,
	}, nil
}

type withdrawRequestJSON struct {
	RequestID   string `json:"request_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Tranche     int32  `json:"tranche"`
	Shares      int64  `json:"shares"`
	Sequence    int64  `json:"sequence"`
	Block       int64  `json:"block"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWithdrawRequested(data []byte) (*event.WithdrawRequested, error) {
	var j withdrawRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.WithdrawRequested{
		RequestID:   requestID,
		UserID:      userID,
		AssetID:     j.Asset,
		Tranche:     j.Tranche,
		Shares:      j.Shares,
		Sequence:    j.Sequence,
		Block:       j.Block,
		TimestampUs: j.TimestampUs,
	}, nil
}

type withdrawFulfillJSON struct {
	RequestID   string `json:"request_id"`
	Asset       string `json:"asset"`
	Sequence    int64  `json:"sequence"`
	Block       int64  `json:"block"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWithdrawFulfill(data []byte) (*event.WithdrawFulfill, error) {
	var j withdrawFulfillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawFulfill: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.WithdrawFulfill{
		RequestID:   requestID,
		AssetID:     j.Asset,
		Sequence:    j.Sequence,
		Block:       j.Block,
		TimestampUs: j.TimestampUs,
	}, nil
}

type withdrawBatchJSON struct {
	BatchID     string `json:"batch_id"`
	Asset       string `json:"asset"`
	MaxAmount   int64  `json:"max_amount"`
	Sequence    int64  `json:"sequence"`
	Block       int64  `json:"block"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWithdrawBatchFulfill(data []byte) (*event.WithdrawBatchFulfill, error) {
	var j withdrawBatchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawBatchFulfill: %w", err)
	}
	batchID, err := uuid.Parse(j.BatchID)
	if err != nil {
		return nil, fmt.Errorf("parse batch_id: %w", err)
	}
	return &event.WithdrawBatchFulfill{
		BatchID:     batchID,
		AssetID:     j.Asset,
		MaxAmount:   j.MaxAmount,
		Sequence:    j.Sequence,
		Block:       j.Block,
		TimestampUs: j.TimestampUs,
	}, nil
}

func parseEmergencyWithdrawal(data []byte) (*event.EmergencyWithdrawal, error) {
	var j withdrawRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse EmergencyWithdrawal: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.EmergencyWithdrawal{
		RequestID:   requestID,
		UserID:      userID,
		AssetID:     j.Asset,
		Tranche:     j.Tranche,
		Shares:      j.Shares,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

type pnlJSON struct {
	EventID     string `json:"event_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseLossRecorded(data []byte) (*event.LossRecorded, error) {
	var j pnlJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LossRecorded: %w", err)
	}
	lossID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	return &event.LossRecorded{
		LossID:      lossID,
		AssetID:     j.Asset,
		Amount:      j.Amount,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

func parseProfitRecorded(data []byte) (*event.ProfitRecorded, error) {
	var j pnlJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ProfitRecorded: %w", err)
	}
	profitID, err := uuid.Parse(j.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event_id: %w", err)
	}
	return &event.ProfitRecorded{
		ProfitID:    profitID,
		AssetID:     j.Asset,
		Amount:      j.Amount,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

type purchaseCommitJSON struct {
	Keeper       string `json:"keeper"`
	Target       string `json:"target"`
	Asset        string `json:"asset"`
	Commitment   string `json:"commitment"` // hex, 32 bytes
	ExpectedCost int64  `json:"expected_cost"`
	Sequence     int64  `json:"sequence"`
	Block        int64  `json:"block"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parsePurchaseCommitted(data []byte) (*event.PurchaseCommitted, error) {
	var j purchaseCommitJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PurchaseCommitted: %w", err)
	}
	commitment, err := parseHash32(j.Commitment, "commitment")
	if err != nil {
		return nil, err
	}
	return &event.PurchaseCommitted{
		Keeper:       j.Keeper,
		Target:       j.Target,
		AssetID:      j.Asset,
		Commitment:   commitment,
		ExpectedCost: j.ExpectedCost,
		Sequence:     j.Sequence,
		Block:        j.Block,
		TimestampUs:  j.TimestampUs,
	}, nil
}

type purchaseRevealJSON struct {
	ExecutionID      string `json:"execution_id"` // hex, 32 bytes
	Asset            string `json:"asset"`
	Protocol         string `json:"protocol"`
	Borrower         string `json:"borrower"`
	CollateralAsset  string `json:"collateral_asset"`
	DebtAsset        string `json:"debt_asset"`
	DebtToCover      int64  `json:"debt_to_cover"`
	MinCollateralOut int64  `json:"min_collateral_out"`
	Salt             string `json:"salt"` // hex, 32 bytes
	Sequence         int64  `json:"sequence"`
	Block            int64  `json:"block"`
	TimestampUs      int64  `json:"timestamp_us"`
}

func parsePurchaseRevealed(data []byte) (*event.PurchaseRevealed, error) {
	var j purchaseRevealJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PurchaseRevealed: %w", err)
	}
	execID, err := parseHash32(j.ExecutionID, "execution_id")
	if err != nil {
		return nil, err
	}
	salt, err := parseHash32(j.Salt, "salt")
	if err != nil {
		return nil, err
	}
	return &event.PurchaseRevealed{
		ExecutionID:      execID,
		AssetID:          j.Asset,
		Protocol:         j.Protocol,
		Borrower:         j.Borrower,
		CollateralAsset:  j.CollateralAsset,
		DebtAsset:        j.DebtAsset,
		DebtToCover:      j.DebtToCover,
		MinCollateralOut: j.MinCollateralOut,
		Salt:             salt,
		Sequence:         j.Sequence,
		Block:            j.Block,
		TimestampUs:      j.TimestampUs,
	}, nil
}

type purchaseCancelJSON struct {
	ExecutionID string `json:"execution_id"` // hex, 32 bytes
	Keeper      string `json:"keeper"`
	Asset       string `json:"asset"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePurchaseCancelled(data []byte) (*event.PurchaseCancelled, error) {
	var j purchaseCancelJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PurchaseCancelled: %w", err)
	}
	execID, err := parseHash32(j.ExecutionID, "execution_id")
	if err != nil {
		return nil, err
	}
	return &event.PurchaseCancelled{
		ExecutionID: execID,
		Keeper:      j.Keeper,
		AssetID:     j.Asset,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

type oraclePriceJSON struct {
	Asset         string `json:"asset"`
	Price         int64  `json:"price"`
	ConfidenceBps int64  `json:"confidence_bps"`
	TimestampUs   int64  `json:"timestamp_us"`
	Sequence      int64  `json:"sequence"`
}

func parseOraclePriceUpdate(data []byte) (*event.OraclePriceUpdate, error) {
	var j oraclePriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OraclePriceUpdate: %w", err)
	}
	return &event.OraclePriceUpdate{
		AssetID:       j.Asset,
		Price:         j.Price,
		ConfidenceBps: j.ConfidenceBps,
		TimestampUs:   j.TimestampUs,
		Sequence:      j.Sequence,
	}, nil
}

type epochTickJSON struct {
	TimestampUs int64 `json:"timestamp_us"`
	Block       int64 `json:"block"`
	Sequence    int64 `json:"sequence"`
}

func parsePremiumEpochTick(data []byte) (*event.PremiumEpochTick, error) {
	var j epochTickJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PremiumEpochTick: %w", err)
	}
	return &event.PremiumEpochTick{
		TimestampUs: j.TimestampUs,
		Block:       j.Block,
		Sequence:    j.Sequence,
	}, nil
}

type coverageRequestJSON struct {
	RequestID   string `json:"request_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	LossProof   string `json:"loss_proof"` // hex, 32 bytes
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCoverageRequested(data []byte) (*event.CoverageRequested, error) {
	var j coverageRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CoverageRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	proof, err := parseHash32(j.LossProof, "loss_proof")
	if err != nil {
		return nil, err
	}
	return &event.CoverageRequested{
		RequestID:   requestID,
		AssetID:     j.Asset,
		Amount:      j.Amount,
		LossProof:   proof,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

type coverageRefJSON struct {
	RequestID   string `json:"request_id"`
	Asset       string `json:"asset"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCoverageApproved(data []byte) (*event.CoverageApproved, error) {
	var j coverageRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CoverageApproved: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.CoverageApproved{
		RequestID:   requestID,
		AssetID:     j.Asset,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

func parseCoverageInjected(data []byte) (*event.CoverageInjected, error) {
	var j coverageRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CoverageInjected: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.CoverageInjected{
		RequestID:   requestID,
		AssetID:     j.Asset,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

type shutdownJSON struct {
	Initiator   string `json:"initiator"`
	Reason      string `json:"reason"`
	TimestampUs int64  `json:"timestamp_us"`
	Sequence    int64  `json:"sequence"`
}

func parseShutdownInitiated(data []byte) (*event.ShutdownInitiated, error) {
	var j shutdownJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ShutdownInitiated: %w", err)
	}
	return &event.ShutdownInitiated{
		Initiator:   j.Initiator,
		Reason:      j.Reason,
		TimestampUs: j.TimestampUs,
		Sequence:    j.Sequence,
	}, nil
}
