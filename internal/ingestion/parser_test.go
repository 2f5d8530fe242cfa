package ingestion_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"TrancheVault/internal/event"
	"TrancheVault/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseDepositReceived(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "USDC",
		"tranche":      int32(1),
		"amount":       int64(1_000_000),
		"sequence":     int64(7),
		"block":        int64(120),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "DepositReceived")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dep, ok := evt.(*event.DepositReceived)
	if !ok {
		t.Fatalf("expected *event.DepositReceived, got %T", evt)
	}

	if dep.AssetID != "USDC" {
		t.Errorf("asset: got %s, want USDC", dep.AssetID)
	}
	if dep.Tranche != 1 {
		t.Errorf("tranche: got %d, want 1", dep.Tranche)
	}
	if dep.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", dep.Amount)
	}
	if dep.Sequence != 7 {
		t.Errorf("sequence: got %d, want 7", dep.Sequence)
	}
	if dep.EventType() != event.EventTypeDepositReceived {
		t.Errorf("event type: got %v, want DepositReceived", dep.EventType())
	}
}

func TestParseWithdrawRequested(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "USDT",
		"tranche":      int32(0),
		"shares":       int64(250_000),
		"sequence":     int64(3),
		"block":        int64(50),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "WithdrawRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wr, ok := evt.(*event.WithdrawRequested)
	if !ok {
		t.Fatalf("expected *event.WithdrawRequested, got %T", evt)
	}

	if wr.Shares != 250_000 {
		t.Errorf("shares: got %d, want 250_000", wr.Shares)
	}
	if wr.Tranche != 0 {
		t.Errorf("tranche: got %d, want 0", wr.Tranche)
	}
}

func TestParseWithdrawBatchFulfill(t *testing.T) {
	payload := map[string]interface{}{
		"batch_id":     "770e8400-e29b-41d4-a716-446655440002",
		"asset":        "DAI",
		"max_amount":   int64(250_000),
		"sequence":     int64(9),
		"block":        int64(200),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "WithdrawBatchFulfill")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wb, ok := evt.(*event.WithdrawBatchFulfill)
	if !ok {
		t.Fatalf("expected *event.WithdrawBatchFulfill, got %T", evt)
	}

	if wb.MaxAmount != 250_000 {
		t.Errorf("max_amount: got %d, want 250000", wb.MaxAmount)
	}
	if wb.AssetID != "DAI" {
		t.Errorf("asset: got %s, want DAI", wb.AssetID)
	}
}

func TestParseLossRecorded(t *testing.T) {
	payload := map[string]interface{}{
		"event_id":     "550e8400-e29b-41d4-a716-446655440000",
		"asset":        "USDC",
		"amount":       int64(60_000),
		"sequence":     int64(11),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "LossRecorded")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	loss, ok := evt.(*event.LossRecorded)
	if !ok {
		t.Fatalf("expected *event.LossRecorded, got %T", evt)
	}

	if loss.Amount != 60_000 {
		t.Errorf("amount: got %d, want 60_000", loss.Amount)
	}
	if loss.EventType() != event.EventTypeLossRecorded {
		t.Errorf("event type: got %v, want LossRecorded", loss.EventType())
	}
}

func TestParsePurchaseCommitted(t *testing.T) {
	payload := map[string]interface{}{
		"keeper":        "keeper-1",
		"target":        "0xdeadbeef",
		"asset":         "USDC",
		"commitment":    strings.Repeat("ab", 32),
		"expected_cost": int64(100_000),
		"sequence":      int64(4),
		"block":         int64(88),
		"timestamp_us":  int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PurchaseCommitted")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pc, ok := evt.(*event.PurchaseCommitted)
	if !ok {
		t.Fatalf("expected *event.PurchaseCommitted, got %T", evt)
	}

	if pc.Keeper != "keeper-1" {
		t.Errorf("keeper: got %s, want keeper-1", pc.Keeper)
	}
	if pc.Commitment[0] != 0xab || pc.Commitment[31] != 0xab {
		t.Errorf("commitment bytes not decoded: %x", pc.Commitment)
	}
	if pc.ExpectedCost != 100_000 {
		t.Errorf("expected_cost: got %d, want 100_000", pc.ExpectedCost)
	}
}

func TestParsePurchaseRevealed(t *testing.T) {
	payload := map[string]interface{}{
		"execution_id":       strings.Repeat("01", 32),
		"asset":              "USDC",
		"protocol":           "aave-v3",
		"borrower":           "0xb0rrower",
		"collateral_asset":   "ETH",
		"debt_asset":         "USDC",
		"debt_to_cover":      int64(90_000),
		"min_collateral_out": int64(50_000),
		"salt":               strings.Repeat("ff", 32),
		"sequence":           int64(5),
		"block":              int64(90),
		"timestamp_us":       int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PurchaseRevealed")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pr, ok := evt.(*event.PurchaseRevealed)
	if !ok {
		t.Fatalf("expected *event.PurchaseRevealed, got %T", evt)
	}

	if pr.ExecutionID[31] != 0x01 {
		t.Errorf("execution_id bytes not decoded: %x", pr.ExecutionID)
	}
	if pr.Salt[0] != 0xff {
		t.Errorf("salt bytes not decoded: %x", pr.Salt)
	}
	if pr.Protocol != "aave-v3" {
		t.Errorf("protocol: got %s, want aave-v3", pr.Protocol)
	}
	if pr.DebtToCover != 90_000 {
		t.Errorf("debt_to_cover: got %d, want 90_000", pr.DebtToCover)
	}
}

func TestParseOraclePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"asset":          "ETH",
		"price":          int64(3_000_00),
		"confidence_bps": int64(25),
		"timestamp_us":   int64(1700000000000000),
		"sequence":       int64(42),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "OraclePriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := evt.(*event.OraclePriceUpdate)
	if !ok {
		t.Fatalf("expected *event.OraclePriceUpdate, got %T", evt)
	}

	if pu.Price != 3_000_00 {
		t.Errorf("price: got %d, want 3_000_00", pu.Price)
	}
	if pu.ConfidenceBps != 25 {
		t.Errorf("confidence_bps: got %d, want 25", pu.ConfidenceBps)
	}
	if pu.SourceSequence() != 42 {
		t.Errorf("sequence: got %d, want 42", pu.SourceSequence())
	}
}

func TestParseCoverageRequested(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"asset":        "USDC",
		"amount":       int64(40_000),
		"loss_proof":   strings.Repeat("0a", 32),
		"sequence":     int64(13),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CoverageRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cr, ok := evt.(*event.CoverageRequested)
	if !ok {
		t.Fatalf("expected *event.CoverageRequested, got %T", evt)
	}

	if cr.Amount != 40_000 {
		t.Errorf("amount: got %d, want 40_000", cr.Amount)
	}
	if cr.LossProof[0] != 0x0a {
		t.Errorf("loss_proof bytes not decoded: %x", cr.LossProof)
	}
}

func TestParseShutdownInitiated(t *testing.T) {
	payload := map[string]interface{}{
		"initiator":    "guardian-1",
		"reason":       "oracle divergence",
		"timestamp_us": int64(1700000000000000),
		"sequence":     int64(99),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ShutdownInitiated")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sd, ok := evt.(*event.ShutdownInitiated)
	if !ok {
		t.Fatalf("expected *event.ShutdownInitiated, got %T", evt)
	}

	if sd.Initiator != "guardian-1" {
		t.Errorf("initiator: got %s, want guardian-1", sd.Initiator)
	}
	if sd.Asset() != nil {
		t.Error("shutdown should be a global event")
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "DepositReceived")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "not-a-uuid",
		"user_id":      "also-not-a-uuid",
		"asset":        "USDC",
		"tranche":      int32(0),
		"amount":       int64(1),
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "DepositReceived")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

func TestParseBadCommitmentHex_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"keeper":        "keeper-1",
		"target":        "0xdeadbeef",
		"asset":         "USDC",
		"commitment":    "zzzz",
		"expected_cost": int64(1),
		"sequence":      int64(0),
		"timestamp_us":  int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "PurchaseCommitted")
	if err == nil {
		t.Fatal("expected error for invalid commitment hex")
	}
}

func TestParseShortCommitmentHex_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"keeper":        "keeper-1",
		"target":        "0xdeadbeef",
		"asset":         "USDC",
		"commitment":    "abcd",
		"expected_cost": int64(1),
		"sequence":      int64(0),
		"timestamp_us":  int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "PurchaseCommitted")
	if err == nil {
		t.Fatal("expected error for short commitment")
	}
}
