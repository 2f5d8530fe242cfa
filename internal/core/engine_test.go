package core_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"TrancheVault/internal/adequacy"
	"TrancheVault/internal/core"
	"TrancheVault/internal/event"
	"TrancheVault/internal/external"
	fpmath "TrancheVault/internal/math"
	"TrancheVault/internal/pool"
	"TrancheVault/internal/premium"
	"TrancheVault/internal/purchase"
	"TrancheVault/internal/reinsurance"
	"TrancheVault/internal/tranche"
)

// --- Test helpers ---

type fakeLiquidationExecutor struct {
	result external.LiquidationResult
	err    error
	calls  int
}

func (f *fakeLiquidationExecutor) Liquidate(_ context.Context, order external.LiquidationOrder) (external.LiquidationResult, error) {
	f.calls++
	if f.err != nil {
		return external.LiquidationResult{}, f.err
	}
	res := f.result
	if res.CollateralAsset == "" {
		res.CollateralAsset = order.CollateralAsset
	}
	return res, f.err
}

// newTestCore creates a DeterministicCore with buffered channels, no DB
// checker and a fee-free pool so payout assertions stay round.
func newTestCore(t *testing.T, exec external.LiquidationExecutor) (*core.DeterministicCore, chan core.CoreOutput, chan core.CoreOutput) {
	t.Helper()

	poolCfg := pool.DefaultConfig()
	poolCfg.DepositFeeBps = 0
	poolCfg.MaxExposureBps = fpmath.BpsScale
	poolCfg.FirstDepositCeiling = 1_000_000_000
	poolCfg.WithdrawDelayUs = 1_000
	poolCfg.CooldownUs = 0
	poolCfg.MaxEpochWithdrawBps = fpmath.BpsScale

	persistChan := make(chan core.CoreOutput, 1024)
	projChan := make(chan core.CoreOutput, 1024)

	c, err := core.NewDeterministicCore(
		core.DefaultEngineConfig(),
		0,
		poolCfg,
		purchase.DefaultConfig(),
		premium.DefaultConfig(),
		adequacy.DefaultConfig(),
		reinsurance.DefaultConfig(),
		core.Deps{Executor: exec},
		persistChan, projChan,
		nil,
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("NewDeterministicCore failed: %v", err)
	}
	return c, persistChan, projChan
}

func mustDeposit(userID uuid.UUID, asset string, id tranche.ID, amount, seq int64) *event.DepositReceived {
	return &event.DepositReceived{
		DepositID:   uuid.New(),
		UserID:      userID,
		AssetID:     asset,
		Tranche:     int32(id),
		Amount:      amount,
		Sequence:    seq,
		Block:       seq,
		TimestampUs: 1_000_000 + seq*1_000,
	}
}

func mustWithdrawRequest(reqID, userID uuid.UUID, asset string, id tranche.ID, shares, seq int64) *event.WithdrawRequested {
	return &event.WithdrawRequested{
		RequestID:   reqID,
		UserID:      userID,
		AssetID:     asset,
		Tranche:     int32(id),
		Shares:      shares,
		Sequence:    seq,
		Block:       seq,
		TimestampUs: 1_000_000 + seq*1_000,
	}
}

func mustLoss(asset string, amount, seq int64) *event.LossRecorded {
	return &event.LossRecorded{
		LossID:      uuid.New(),
		AssetID:     asset,
		Amount:      amount,
		Sequence:    seq,
		TimestampUs: 1_000_000 + seq*1_000,
	}
}

func mustProfit(asset string, amount, seq int64) *event.ProfitRecorded {
	return &event.ProfitRecorded{
		ProfitID:    uuid.New(),
		AssetID:     asset,
		Amount:      amount,
		Sequence:    seq,
		TimestampUs: 1_000_000 + seq*1_000,
	}
}

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

// ============================================================================
// Test: Deposit Flow
// ============================================================================

func TestDeposit_MintsSharesAndEmits(t *testing.T) {
	c, persistCh, _ := newTestCore(t, &fakeLiquidationExecutor{})
	userID := uuid.New()

	err := c.ProcessEvent(mustDeposit(userID, "USDC", tranche.Senior, 1_000_000, 0))
	if err != nil {
		t.Fatalf("ProcessEvent failed: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}

	batch := outputs[0].Batch
	if batch == nil || len(batch.Journals) != 1 {
		t.Fatalf("expected 1 journal for fee-free deposit, got %+v", batch)
	}
	if batch.Journals[0].Amount != 1_000_000 {
		t.Errorf("expected amount 1_000_000, got %d", batch.Journals[0].Amount)
	}

	if got := c.Pool().Shares().Shares(userID, 1, tranche.Senior); got != 1_000_000 {
		t.Errorf("expected 1_000_000 shares, got %d", got)
	}
}

func TestMultipleDeposits_SequencesMonotonic(t *testing.T) {
	c, persistCh, _ := newTestCore(t, &fakeLiquidationExecutor{})
	userID := uuid.New()

	for i := int64(0); i < 5; i++ {
		if err := c.ProcessEvent(mustDeposit(userID, "USDC", tranche.Junior, 100_000, i)); err != nil {
			t.Fatalf("ProcessEvent %d failed: %v", i, err)
		}
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 5 {
		t.Fatalf("expected 5 outputs, got %d", len(outputs))
	}
	for i, o := range outputs {
		if o.Envelope.Sequence != int64(i) {
			t.Errorf("output %d: expected sequence %d, got %d", i, i, o.Envelope.Sequence)
		}
	}
	if c.Sequence() != 5 {
		t.Errorf("expected core sequence 5, got %d", c.Sequence())
	}
}

// ============================================================================
// Test: Idempotency & Ordering
// ============================================================================

func TestDuplicateEvent_SkippedSilently(t *testing.T) {
	c, persistCh, _ := newTestCore(t, &fakeLiquidationExecutor{})
	evt := mustDeposit(uuid.New(), "USDC", tranche.Senior, 500_000, 0)

	if err := c.ProcessEvent(evt); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := c.ProcessEvent(evt); err != nil {
		t.Fatalf("redelivery should be silently skipped, got: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output after redelivery, got %d", len(outputs))
	}
	if got := c.Tracker().SeniorValue(1); got != 500_000 {
		t.Errorf("redelivery double-applied: senior value %d", got)
	}
}

func TestReplayMode_BypassesDedup(t *testing.T) {
	c, persistCh, _ := newTestCore(t, &fakeLiquidationExecutor{})
	evt := mustDeposit(uuid.New(), "USDC", tranche.Senior, 500_000, 0)

	// Simulate recovery: the event's key is already in the hot tier (as it
	// would be in the Postgres tier after persistence), but the log replay
	// must still apply it to rebuild state.
	c.WarmIdempotency([]string{evt.EventType().String() + ":" + evt.IdempotencyKey()})

	c.SetReplayMode(true)
	if err := c.ProcessEvent(evt); err != nil {
		t.Fatalf("replay delivery failed: %v", err)
	}
	c.SetReplayMode(false)

	if got := c.Tracker().SeniorValue(1); got != 500_000 {
		t.Fatalf("replay did not apply: senior value %d", got)
	}

	// Live redelivery after replay is deduped again.
	if err := c.ProcessEvent(evt); err != nil {
		t.Fatalf("post-replay redelivery should be silently skipped, got: %v", err)
	}
	if outputs := drainOutputs(persistCh); len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if got := c.Tracker().SeniorValue(1); got != 500_000 {
		t.Errorf("post-replay redelivery double-applied: senior value %d", got)
	}
}

func TestSequenceGap_Rejected(t *testing.T) {
	c, _, _ := newTestCore(t, &fakeLiquidationExecutor{})
	userID := uuid.New()

	if err := c.ProcessEvent(mustDeposit(userID, "USDC", tranche.Senior, 100_000, 0)); err != nil {
		t.Fatalf("seq 0 failed: %v", err)
	}
	// Skip seq 1.
	err := c.ProcessEvent(mustDeposit(userID, "USDC", tranche.Senior, 100_000, 2))
	if err == nil {
		t.Fatal("expected sequence gap rejection")
	}
}

func TestOutOfOrderNewEvent_Rejected(t *testing.T) {
	c, _, _ := newTestCore(t, &fakeLiquidationExecutor{})
	userID := uuid.New()

	if err := c.ProcessEvent(mustDeposit(userID, "USDC", tranche.Senior, 100_000, 0)); err != nil {
		t.Fatalf("seq 0 failed: %v", err)
	}
	if err := c.ProcessEvent(mustDeposit(userID, "USDC", tranche.Senior, 100_000, 1)); err != nil {
		t.Fatalf("seq 1 failed: %v", err)
	}

	// A NEW event (fresh idempotency key) with a stale sequence.
	err := c.ProcessEvent(mustDeposit(userID, "USDC", tranche.Senior, 100_000, 0))
	if err == nil {
		t.Fatal("expected out-of-order rejection for new event at stale sequence")
	}
}

func TestPriceUpdates_GapsTolerated(t *testing.T) {
	c, persistCh, _ := newTestCore(t, &fakeLiquidationExecutor{})

	for _, seq := range []int64{0, 1, 7, 20} {
		evt := &event.OraclePriceUpdate{
			AssetID:       "ETH",
			Price:         200_000, // 2000.00 at price scale
			ConfidenceBps: 30,
			TimestampUs:   1_000_000 + seq*1_000,
			Sequence:      seq,
		}
		if err := c.ProcessEvent(evt); err != nil {
			t.Fatalf("price seq %d rejected: %v", seq, err)
		}
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 4 {
		t.Fatalf("expected 4 envelopes, got %d", len(outputs))
	}
	for _, o := range outputs {
		if o.Batch != nil {
			t.Error("price update should not produce a ledger batch")
		}
	}
}

// ============================================================================
// Test: State Hash Chain
// ============================================================================

func TestStateHashChain_Links(t *testing.T) {
	c, persistCh, _ := newTestCore(t, &fakeLiquidationExecutor{})
	userID := uuid.New()

	for i := int64(0); i < 3; i++ {
		if err := c.ProcessEvent(mustDeposit(userID, "USDC", tranche.Senior, 100_000, i)); err != nil {
			t.Fatalf("deposit %d failed: %v", i, err)
		}
	}

	outputs := drainOutputs(persistCh)
	for i := 1; i < len(outputs); i++ {
		if outputs[i].Envelope.PrevHash != outputs[i-1].Envelope.StateHash {
			t.Errorf("envelope %d prev hash does not chain to envelope %d state hash", i, i-1)
		}
	}
	if c.StateHash() != outputs[len(outputs)-1].Envelope.StateHash {
		t.Error("core state hash should match the last emitted envelope")
	}
}

// ============================================================================
// Test: Withdrawal Flow
// ============================================================================

func TestWithdrawLifecycle_ThroughPipeline(t *testing.T) {
	c, persistCh, _ := newTestCore(t, &fakeLiquidationExecutor{})
	userID := uuid.New()
	reqID := uuid.New()

	if err := c.ProcessEvent(mustDeposit(userID, "USDC", tranche.Junior, 1_000_000, 0)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := c.ProcessEvent(mustWithdrawRequest(reqID, userID, "USDC", tranche.Junior, 400_000, 1)); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	drainOutputs(persistCh)

	// Fulfill after the delay has elapsed.
	fulfill := &event.WithdrawFulfill{
		RequestID:   reqID,
		AssetID:     "USDC",
		Sequence:    2,
		TimestampUs: 1_000_000 + 1*1_000 + 2_000,
	}
	if err := c.ProcessEvent(fulfill); err != nil {
		t.Fatalf("fulfill failed: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if outputs[0].Batch == nil {
		t.Fatal("fulfillment should produce a ledger batch")
	}

	if got := c.Tracker().JuniorValue(1); got != 600_000 {
		t.Errorf("expected junior value 600_000 after payout, got %d", got)
	}
	if got := c.Pool().Shares().Shares(userID, 1, tranche.Junior); got != 600_000 {
		t.Errorf("expected 600_000 shares remaining, got %d", got)
	}
}

// ============================================================================
// Test: Loss & Profit Routing
// ============================================================================

func TestLoss_JuniorAbsorbsFirst(t *testing.T) {
	c, _, _ := newTestCore(t, &fakeLiquidationExecutor{})
	senior := uuid.New()
	junior := uuid.New()

	if err := c.ProcessEvent(mustDeposit(senior, "USDC", tranche.Senior, 900_000, 0)); err != nil {
		t.Fatalf("senior deposit failed: %v", err)
	}
	if err := c.ProcessEvent(mustDeposit(junior, "USDC", tranche.Junior, 100_000, 1)); err != nil {
		t.Fatalf("junior deposit failed: %v", err)
	}

	if err := c.ProcessEvent(mustLoss("USDC", 60_000, 2)); err != nil {
		t.Fatalf("loss failed: %v", err)
	}

	if got := c.Tracker().JuniorValue(1); got != 40_000 {
		t.Errorf("expected junior 40_000 after loss, got %d", got)
	}
	if got := c.Tracker().SeniorValue(1); got != 900_000 {
		t.Errorf("senior should be untouched, got %d", got)
	}
}

func TestProfit_SplitsAfterRestoration(t *testing.T) {
	c, _, _ := newTestCore(t, &fakeLiquidationExecutor{})
	senior := uuid.New()
	junior := uuid.New()

	if err := c.ProcessEvent(mustDeposit(senior, "USDC", tranche.Senior, 900_000, 0)); err != nil {
		t.Fatalf("senior deposit failed: %v", err)
	}
	if err := c.ProcessEvent(mustDeposit(junior, "USDC", tranche.Junior, 100_000, 1)); err != nil {
		t.Fatalf("junior deposit failed: %v", err)
	}
	if err := c.ProcessEvent(mustProfit("USDC", 50_000, 2)); err != nil {
		t.Fatalf("profit failed: %v", err)
	}

	// Junior at par: 80/20 split.
	if got := c.Tracker().SeniorValue(1); got != 940_000 {
		t.Errorf("expected senior 940_000, got %d", got)
	}
	if got := c.Tracker().JuniorValue(1); got != 110_000 {
		t.Errorf("expected junior 110_000, got %d", got)
	}
}

// ============================================================================
// Test: Commit-Reveal Purchases
// ============================================================================

func TestPurchaseCommitReveal_Settles(t *testing.T) {
	exec := &fakeLiquidationExecutor{
		result: external.LiquidationResult{CollateralReceived: 60_000, DebtPaid: 100_000},
	}
	c, _, _ := newTestCore(t, exec)
	c.Authorizer().Grant("keeper-1", pool.CapKeeper)

	if err := c.ProcessEvent(mustDeposit(uuid.New(), "USDC", tranche.Senior, 1_000_000, 0)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	reveal := purchase.Reveal{
		Protocol:         "aave-v3",
		Borrower:         "0xdeadbeef",
		CollateralAsset:  "ETH",
		DebtAsset:        "USDC",
		DebtToCover:      100_000,
		MinCollateralOut: 50_000,
	}
	var salt [32]byte
	salt[0] = 0x42
	commitment := purchase.DeriveCommitment("target-1", reveal, salt)

	commit := &event.PurchaseCommitted{
		Keeper:       "keeper-1",
		Target:       "target-1",
		AssetID:      "USDC",
		Commitment:   commitment,
		ExpectedCost: 100_000,
		Sequence:     1,
		Block:        100,
		TimestampUs:  2_000_000,
	}
	if err := c.ProcessEvent(commit); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if got := c.Pool().Reserved(1); got != 100_000 {
		t.Fatalf("expected 100_000 reserved after commit, got %d", got)
	}

	att, ok := findPendingAttempt(c)
	if !ok {
		t.Fatal("no pending attempt after commit")
	}

	revealEvt := &event.PurchaseRevealed{
		ExecutionID:      att.ExecutionID,
		AssetID:          "USDC",
		Protocol:         reveal.Protocol,
		Borrower:         reveal.Borrower,
		CollateralAsset:  reveal.CollateralAsset,
		DebtAsset:        reveal.DebtAsset,
		DebtToCover:      reveal.DebtToCover,
		MinCollateralOut: reveal.MinCollateralOut,
		Salt:             salt,
		Sequence:         2,
		Block:            102,
		TimestampUs:      3_000_000,
	}
	if err := c.ProcessEvent(revealEvt); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}

	if exec.calls != 1 {
		t.Errorf("expected 1 executor call, got %d", exec.calls)
	}
	if got := c.Pool().Reserved(1); got != 0 {
		t.Errorf("reservation should be consumed, got %d", got)
	}
	if got := c.Holdings().HeldAmount("ETH"); got != 60_000 {
		t.Errorf("expected 60_000 collateral held, got %d", got)
	}
	// Value-neutral swap: the ledger still carries the full pool.
	if got := c.Tracker().TotalPool(1); got != 1_000_000 {
		t.Errorf("pool value should be unchanged at cost basis, got %d", got)
	}
}

func TestPurchaseCommit_UnauthorizedKeeperRejected(t *testing.T) {
	c, _, _ := newTestCore(t, &fakeLiquidationExecutor{})

	if err := c.ProcessEvent(mustDeposit(uuid.New(), "USDC", tranche.Senior, 1_000_000, 0)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	commit := &event.PurchaseCommitted{
		Keeper:       "nobody",
		Target:       "target-1",
		AssetID:      "USDC",
		ExpectedCost: 100_000,
		Sequence:     1,
		Block:        100,
		TimestampUs:  2_000_000,
	}
	if err := c.ProcessEvent(commit); err == nil {
		t.Fatal("expected rejection for unauthorized keeper")
	}
}

func TestPurchaseCommit_CostBeyondPoolRejected(t *testing.T) {
	c, _, _ := newTestCore(t, &fakeLiquidationExecutor{})
	c.Authorizer().Grant("keeper-1", pool.CapKeeper)

	if err := c.ProcessEvent(mustDeposit(uuid.New(), "USDC", tranche.Senior, 50_000, 0)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	commit := &event.PurchaseCommitted{
		Keeper:       "keeper-1",
		Target:       "target-1",
		AssetID:      "USDC",
		ExpectedCost: 100_000,
		Sequence:     1,
		Block:        100,
		TimestampUs:  2_000_000,
	}
	if err := c.ProcessEvent(commit); err == nil {
		t.Fatal("expected capital gate rejection when cost exceeds the pool")
	}
}

// findPendingAttempt scans the derived execution IDs the machine assigned.
func findPendingAttempt(c *core.DeterministicCore) (purchase.Attempt, bool) {
	for _, o := range c.Purchases().PendingAttempts() {
		if o.Status == purchase.StatusPending {
			return o, true
		}
	}
	return purchase.Attempt{}, false
}

// ============================================================================
// Test: Shutdown & Governance
// ============================================================================

func TestShutdown_RequiresGovernance(t *testing.T) {
	c, _, _ := newTestCore(t, &fakeLiquidationExecutor{})

	evt := &event.ShutdownInitiated{
		Initiator:   "random-user",
		Reason:      "test",
		TimestampUs: 5_000_000,
		Sequence:    0,
	}
	if err := c.ProcessEvent(evt); err == nil {
		t.Fatal("expected rejection without governance capability")
	}

	c.Authorizer().Grant("guardian", pool.CapGovernance)
	evt2 := &event.ShutdownInitiated{
		Initiator:   "guardian",
		Reason:      "migration",
		TimestampUs: 6_000_000,
		Sequence:    1,
	}
	if err := c.ProcessEvent(evt2); err != nil {
		t.Fatalf("governance shutdown failed: %v", err)
	}
	if !c.Pool().IsShutdown() {
		t.Error("pool should be shut down")
	}

	// Deposits rejected after shutdown.
	err := c.ProcessEvent(mustDeposit(uuid.New(), "USDC", tranche.Senior, 100_000, 0))
	if err == nil {
		t.Error("deposit should be rejected after shutdown")
	}
}

// ============================================================================
// Test: Epoch Tick
// ============================================================================

func TestEpochTick_WithoutHistoryStillApplies(t *testing.T) {
	c, persistCh, _ := newTestCore(t, &fakeLiquidationExecutor{})

	tick := &event.PremiumEpochTick{
		TimestampUs: 10_000_000,
		Block:       500,
		Sequence:    0,
	}
	if err := c.ProcessEvent(tick); err != nil {
		t.Fatalf("epoch tick failed: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 envelope for epoch tick, got %d", len(outputs))
	}
	// Without price history the adequacy check is skipped; the breaker
	// must not trip on a missing model.
	if c.AdequacyState() != adequacy.StateNormal {
		t.Errorf("breaker should stay NORMAL, got %s", c.AdequacyState())
	}
}

// ============================================================================
// Test: Unknown asset
// ============================================================================

func TestUnknownAsset_Rejected(t *testing.T) {
	c, _, _ := newTestCore(t, &fakeLiquidationExecutor{})

	err := c.ProcessEvent(mustDeposit(uuid.New(), "DOGE", tranche.Senior, 100_000, 0))
	if err == nil {
		t.Fatal("expected rejection for unsupported asset")
	}
}
