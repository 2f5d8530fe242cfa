package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"TrancheVault/internal/adequacy"
	"TrancheVault/internal/event"
	"TrancheVault/internal/external"
	"TrancheVault/internal/holding"
	"TrancheVault/internal/ledger"
	fpmath "TrancheVault/internal/math"
	"TrancheVault/internal/observability"
	"TrancheVault/internal/pool"
	"TrancheVault/internal/premium"
	"TrancheVault/internal/purchase"
	"TrancheVault/internal/reinsurance"
	"TrancheVault/internal/risk"
	"TrancheVault/internal/tranche"
)

// EngineConfig bounds the pipeline itself; the domain modules carry their
// own configs.
type EngineConfig struct {
	// IdempotencyCapacity is the hot-tier LRU size.
	IdempotencyCapacity int
	// RiskAssets are the collateral assets whose price series drive GBM
	// calibration and the correlation input. The first entry is the
	// primary exposure asset.
	RiskAssets []string
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		IdempotencyCapacity: 1_000_000,
		RiskAssets:          []string{"ETH", "WBTC"},
	}
}

func (c EngineConfig) Validate() error {
	if c.IdempotencyCapacity <= 0 {
		return fmt.Errorf("idempotency capacity must be positive, got %d", c.IdempotencyCapacity)
	}
	if len(c.RiskAssets) == 0 {
		return fmt.Errorf("at least one risk asset is required")
	}
	return nil
}

// DeterministicCore is the single-threaded event processor. It never reads
// the wall clock for domain logic: every timestamp is a versioned input.
type DeterministicCore struct {
	cfg      EngineConfig
	sequence int64
	hasher   *StateHasher

	tracker   *ledger.BalanceTracker
	validator *ledger.InvariantValidator
	pool      *pool.Pool
	auth      *pool.Authorizer
	purchases *purchase.Machine
	holdings  *holding.Registry
	reins     *reinsurance.Module
	premiums  *premium.Engine
	monitor   *adequacy.Monitor
	riskData  *risk.Metrics

	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics
	log               zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput

	// Batches the pool applied while dispatching the current event.
	pendingBatches []*ledger.Batch

	// Capital requirement from the last adequacy evaluation; gates
	// purchase commitments between epoch ticks.
	lastRequired int64

	// Last premium accrual point for reinsurance settlements.
	lastAccrualUs int64

	// Replay mode bypasses the idempotency check: replayed events are
	// already in the Postgres tier, but the event log holds no duplicates
	// (unique constraints), so dedup would skip every replayed event.
	replayMode bool
}

// CoreOutput is one applied event: the envelope for the event log, the
// ledger batch it produced (nil for state-only events) and the canonical
// state delta bytes.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte
}

// Deps are the externally-provided collaborators: the liquidation path and
// the cold idempotency tier.
type Deps struct {
	Executor  external.LiquidationExecutor
	DBChecker DBIdempotencyChecker
}

func NewDeterministicCore(
	cfg EngineConfig,
	startSequence int64,
	poolCfg pool.Config,
	purchaseCfg purchase.Config,
	premiumCfg premium.Config,
	adequacyCfg adequacy.Config,
	reinsCfg reinsurance.Config,
	deps Deps,
	persistChan, projectionChan chan<- CoreOutput,
	metrics *observability.Metrics,
	log zerolog.Logger,
) (*DeterministicCore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	tracker := ledger.NewBalanceTracker()
	generator := ledger.NewJournalGenerator(startSequence, tracker)

	reins, err := reinsurance.NewModule(reinsCfg, log)
	if err != nil {
		return nil, err
	}

	p, err := pool.New(poolCfg, tracker, generator, reins, log)
	if err != nil {
		return nil, err
	}

	auth := pool.NewAuthorizer()
	holdings := holding.NewRegistry()

	machine, err := purchase.NewMachine(purchaseCfg, p, deps.Executor, auth, holdings, log)
	if err != nil {
		return nil, err
	}

	monitor, err := adequacy.NewMonitor(adequacyCfg, log)
	if err != nil {
		return nil, err
	}

	c := &DeterministicCore{
		cfg:               cfg,
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		tracker:           tracker,
		validator:         ledger.NewInvariantValidator(tracker),
		pool:              p,
		auth:              auth,
		purchases:         machine,
		holdings:          holdings,
		reins:             reins,
		premiums:          premium.NewEngine(premiumCfg, log),
		monitor:           monitor,
		riskData:          risk.NewMetrics(risk.DefaultConfig()),
		idempotency:       NewIdempotencyChecker(cfg.IdempotencyCapacity, deps.DBChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		log:               log,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}

	// The pool applies and validates its own batches; the engine only
	// collects them for hashing, persistence and publication.
	p.OnBatch = func(b *ledger.Batch) {
		c.pendingBatches = append(c.pendingBatches, b)
	}

	return c, nil
}

// ProcessEvent is the main processing pipeline.
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: idempotency check (two-tier), skipped during replay.
	isDuplicate := !c.replayMode && c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: sequence validation. Oracle prices are snapshots, not
	// ledger mutations, so their gaps are tolerated.
	if priceEvt, ok := evt.(*event.OraclePriceUpdate); ok {
		if err := c.sequenceValidator.ValidatePriceSequence(priceEvt.AssetID, priceEvt.Sequence); err != nil {
			return err
		}
	} else {
		partition := c.getPartition(evt)
		if err := c.sequenceValidator.ValidateSequence(partition, evt.SourceSequence(), idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: dispatch. The pool validates and applies its batches
	// internally and hands them back through OnBatch.
	c.pendingBatches = c.pendingBatches[:0]
	if err := c.dispatchEvent(evt); err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "dispatch").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: hash and envelope each applied batch. Events that moved no
	// value (price updates, purchase commits, some epoch ticks) still get
	// one envelope so the event log is complete.
	batches := c.pendingBatches
	if len(batches) == 0 {
		batches = []*ledger.Batch{nil}
	}

	payload, err := event.Encode(evt)
	if err != nil {
		return fmt.Errorf("payload encode failed: %w", err)
	}

	outputs := make([]CoreOutput, 0, len(batches))
	for _, batch := range batches {
		stateDigest := c.computeStateDigest(batch)
		prevHash := c.hasher.GetPrevHash()
		stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

		envelope := &event.EventEnvelope{
			Sequence:       c.sequence,
			IdempotencyKey: idempotencyKey,
			EventType:      evt.EventType(),
			Asset:          evt.Asset(),
			Timestamp:      c.getEventTimestamp(evt),
			SourceSequence: evt.SourceSequence(),
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       prevHash,
		}

		outputs = append(outputs, CoreOutput{
			Envelope:   envelope,
			Batch:      batch,
			StateDelta: stateDigest,
		})
		c.sequence++
	}

	// Step 5: post-checks. The pool already panics on per-batch tranche
	// violations; the periodic global zero-sum check catches anything
	// that slipped through composition.
	if c.sequence > 0 && c.sequence%1000 == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
		}
	}

	// Step 6: emit. Persistence uses a blocking send so no applied event
	// is ever lost; projections drop on full and rebuild from the log.
	for _, output := range outputs {
		c.persistChan <- output

		select {
		case c.projectionChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.OutboundDrops.Inc()
			}
		}
	}

	// Step 7: mark processed.
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) error {
	switch e := evt.(type) {
	case *event.DepositReceived:
		return c.handleDeposit(e)
	case *event.WithdrawRequested:
		return c.handleWithdrawRequest(e)
	case *event.WithdrawFulfill:
		return c.handleWithdrawFulfill(e)
	case *event.WithdrawBatchFulfill:
		return c.handleWithdrawBatch(e)
	case *event.LossRecorded:
		return c.handleLoss(e)
	case *event.ProfitRecorded:
		return c.handleProfit(e)
	case *event.PurchaseCommitted:
		return c.handlePurchaseCommit(e)
	case *event.PurchaseRevealed:
		return c.handlePurchaseReveal(e)
	case *event.PurchaseCancelled:
		return c.purchases.CancelPurchase(e.ExecutionID, e.Keeper)
	case *event.OraclePriceUpdate:
		return c.handlePriceUpdate(e)
	case *event.PremiumEpochTick:
		return c.handleEpochTick(e)
	case *event.CoverageRequested:
		return c.reins.RequestCoverage(e.RequestID, e.Amount, e.LossProof, e.TimestampUs)
	case *event.CoverageApproved:
		_, err := c.pool.ApproveCoverage(e.RequestID, e.TimestampUs)
		return err
	case *event.CoverageInjected:
		return c.handleCoverageInject(e)
	case *event.ShutdownInitiated:
		return c.handleShutdown(e)
	case *event.EmergencyWithdrawal:
		return c.handleEmergencyWithdrawal(e)
	default:
		return fmt.Errorf("unhandled event type %T", evt)
	}
}

func (c *DeterministicCore) handleDeposit(e *event.DepositReceived) error {
	assetID, ok := ledger.GetAssetID(e.AssetID)
	if !ok {
		return fmt.Errorf("unknown asset: %s", e.AssetID)
	}

	shares, err := c.pool.Deposit(e.IdempotencyKey(), e.UserID, assetID, tranche.ID(e.Tranche), e.Amount, e.TimestampUs, e.Block)
	if err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.DepositsApplied.WithLabelValues(e.AssetID, tranche.ID(e.Tranche).String()).Inc()
	}
	c.log.Debug().
		Str("asset", e.AssetID).
		Int64("amount", e.Amount).
		Int64("shares", shares).
		Msg("deposit applied")
	return nil
}

func (c *DeterministicCore) handleWithdrawRequest(e *event.WithdrawRequested) error {
	assetID, ok := ledger.GetAssetID(e.AssetID)
	if !ok {
		return fmt.Errorf("unknown asset: %s", e.AssetID)
	}
	return c.pool.RequestWithdraw(e.RequestID, e.UserID, assetID, tranche.ID(e.Tranche), e.Shares, e.TimestampUs, e.Block)
}

func (c *DeterministicCore) handleWithdrawFulfill(e *event.WithdrawFulfill) error {
	res, err := c.pool.FulfillWithdraw(e.RequestID, e.TimestampUs)
	if err != nil {
		return err
	}
	c.recordFulfillment(e.AssetID, res)
	return nil
}

func (c *DeterministicCore) handleWithdrawBatch(e *event.WithdrawBatchFulfill) error {
	assetID, ok := ledger.GetAssetID(e.AssetID)
	if !ok {
		return fmt.Errorf("unknown asset: %s", e.AssetID)
	}
	results, err := c.pool.BatchFulfillWithdrawals(assetID, e.MaxAmount, e.TimestampUs)
	if err != nil {
		return err
	}
	for _, res := range results {
		c.recordFulfillment(e.AssetID, res)
	}
	return nil
}

func (c *DeterministicCore) recordFulfillment(asset string, res pool.FulfillResult) {
	if c.metrics == nil {
		return
	}
	mode := "full"
	if res.Restricted {
		mode = "restricted"
	}
	c.metrics.WithdrawalsSettled.WithLabelValues(asset, mode).Inc()
}

func (c *DeterministicCore) handleLoss(e *event.LossRecorded) error {
	assetID, ok := ledger.GetAssetID(e.AssetID)
	if !ok {
		return fmt.Errorf("unknown asset: %s", e.AssetID)
	}

	poolBefore := c.tracker.TotalPool(assetID)

	outcome, err := c.pool.RecordLoss(e.IdempotencyKey(), assetID, e.Amount, e.Sequence, e.TimestampUs)
	if err != nil {
		return err
	}

	// Feed the risk models. Loss momentum is measured against the
	// pre-loss pool so a wipeout registers as 10000 bps, not infinity.
	c.monitor.RecordLoss(outcome.AppliedLoss)
	if poolBefore > 0 {
		c.premiums.RecordLoss(fpmath.MulDiv(outcome.AppliedLoss, fpmath.BpsScale, poolBefore), e.TimestampUs)
	}

	if c.metrics != nil {
		c.metrics.LossesDistributed.WithLabelValues(e.AssetID, "senior").Add(float64(outcome.Split.SeniorLoss))
		c.metrics.LossesDistributed.WithLabelValues(e.AssetID, "junior").Add(float64(outcome.Split.JuniorLoss))
		if outcome.CoverageAmount > 0 {
			c.metrics.CoverageRequests.WithLabelValues("opened").Inc()
		}
	}
	return nil
}

func (c *DeterministicCore) handleProfit(e *event.ProfitRecorded) error {
	assetID, ok := ledger.GetAssetID(e.AssetID)
	if !ok {
		return fmt.Errorf("unknown asset: %s", e.AssetID)
	}

	split, err := c.pool.RecordProfit(e.IdempotencyKey(), assetID, e.Amount, e.TimestampUs)
	if err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.ProfitsDistributed.WithLabelValues(e.AssetID, "senior").Add(float64(split.SeniorProfit))
		c.metrics.ProfitsDistributed.WithLabelValues(e.AssetID, "junior").Add(float64(split.JuniorProfit))
	}
	return nil
}

func (c *DeterministicCore) handlePurchaseCommit(e *event.PurchaseCommitted) error {
	assetID, ok := ledger.GetAssetID(e.AssetID)
	if !ok {
		return fmt.Errorf("unknown asset: %s", e.AssetID)
	}

	// Capital gate: the post-purchase ratio must stay above the minimum
	// and the breaker must be idle. Uses the requirement from the last
	// epoch evaluation.
	available := c.tracker.TotalPool(assetID) - c.pool.Reserved(assetID)
	if !c.monitor.CanExecuteLiquidation(available, c.lastRequired, e.ExpectedCost) {
		if c.metrics != nil {
			c.metrics.PurchasesFailed.WithLabelValues("capital_gate").Inc()
		}
		return fmt.Errorf("purchase rejected by capital gate: available=%d required=%d cost=%d",
			available, c.lastRequired, e.ExpectedCost)
	}

	execID, err := c.purchases.AttemptPurchase(e.Keeper, e.Target, e.AssetID, e.Commitment, e.ExpectedCost, e.Block, e.TimestampUs)
	if err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.PurchasesCommitted.Inc()
		c.metrics.ReservedFunds.WithLabelValues(e.AssetID).Set(float64(c.pool.Reserved(assetID)))
	}
	c.log.Info().
		Hex("execution_id", execID[:8]).
		Str("keeper", e.Keeper).
		Str("target", e.Target).
		Int64("cost", e.ExpectedCost).
		Msg("purchase committed")
	return nil
}

func (c *DeterministicCore) handlePurchaseReveal(e *event.PurchaseRevealed) error {
	reveal := purchase.Reveal{
		Protocol:         e.Protocol,
		Borrower:         e.Borrower,
		CollateralAsset:  e.CollateralAsset,
		DebtAsset:        e.DebtAsset,
		DebtToCover:      e.DebtToCover,
		MinCollateralOut: e.MinCollateralOut,
	}

	res, err := c.purchases.FinalizePurchase(context.Background(), e.ExecutionID, reveal, e.Salt, e.Block, e.TimestampUs)
	if err != nil {
		if c.metrics != nil {
			c.metrics.PurchasesFailed.WithLabelValues("reveal").Inc()
		}
		return err
	}

	c.monitor.RecordLiquidationEvent(e.TimestampUs)
	if c.metrics != nil {
		c.metrics.PurchasesCompleted.Inc()
	}
	c.log.Info().
		Hex("execution_id", e.ExecutionID[:8]).
		Str("collateral", res.CollateralAsset).
		Int64("received", res.CollateralReceived).
		Int64("debt_paid", res.DebtPaid).
		Msg("purchase settled")
	return nil
}

func (c *DeterministicCore) handlePriceUpdate(e *event.OraclePriceUpdate) error {
	if err := c.riskData.Record(e.AssetID, risk.Sample{
		Price:         e.Price,
		ConfidenceBps: e.ConfidenceBps,
		TimestampUs:   e.TimestampUs,
	}); err != nil {
		return err
	}
	c.holdings.MarkPrice(e.AssetID, e.Price)
	return nil
}

// handleEpochTick reprices the premium and re-evaluates capital adequacy.
func (c *DeterministicCore) handleEpochTick(e *event.PremiumEpochTick) error {
	nowUs := e.TimestampUs
	primary := c.cfg.RiskAssets[0]

	// Utilization and available capital across all stablecoins.
	var totalPool, totalReserved int64
	for _, name := range ledger.SupportedAssets() {
		assetID, _ := ledger.GetAssetID(name)
		totalPool += c.tracker.TotalPool(assetID)
		totalReserved += c.pool.Reserved(assetID)
	}

	utilization := int64(0)
	if totalPool > 0 {
		utilization = fpmath.MulDiv(totalReserved, fpmath.BpsScale, totalPool)
	}

	// Thinner markets report wider oracle confidence intervals; the
	// latest confidence doubles as the liquidity-depth proxy.
	depth := int64(0)
	if sample, err := c.riskData.LatestPrice(primary, nowUs); err == nil {
		depth = sample.ConfidenceBps
	}

	correlation := int64(0)
	if len(c.cfg.RiskAssets) > 1 {
		correlation = c.riskData.CorrelationBps(primary, c.cfg.RiskAssets[1])
	}

	in := premium.Inputs{
		VolatilityBps:     c.riskData.RealizedVolBps(primary),
		UtilizationBps:    utilization,
		LiquidationFrqBps: c.monitor.LiquidationProbabilityBps(nowUs),
		LiquidityDepthBps: depth,
		CorrelationBps:    correlation,
	}

	changed, rate := c.premiums.UpdatePremiums(in, nowUs)
	if changed {
		if err := c.pool.SetDepositFeeBps(rate); err != nil {
			return err
		}
	}
	if c.metrics != nil {
		c.metrics.PremiumRateBps.Set(float64(c.pool.DepositFeeBps()))
	}

	c.evaluateCapitalAdequacy(nowUs, totalPool, totalReserved, primary)
	return nil
}

// evaluateCapitalAdequacy runs the GBM tail-risk estimate and the breaker
// transition. An uncalibratable model (too little price history) skips the
// check entirely rather than tripping the breaker on a guess.
func (c *DeterministicCore) evaluateCapitalAdequacy(nowUs int64, totalPool, totalReserved int64, primary string) {
	params, err := risk.CalibrateFromMetrics(c.riskData, primary)
	if err != nil {
		c.log.Warn().Err(err).
			Str("asset", primary).
			Msg("skipping adequacy check, GBM calibration unavailable")
		return
	}

	sample, err := c.riskData.LatestPrice(primary, nowUs)
	if err != nil {
		c.log.Warn().Err(err).Str("asset", primary).Msg("skipping adequacy check, no fresh price")
		return
	}
	spot := float64(sample.Price) / float64(fpmath.PriceConfig.Scale)

	// Exposure at risk: reserved purchase funds plus the mark value of
	// held collateral.
	exposure := totalReserved + c.holdings.MarkValue(primary, sample.Price)

	tail, err := risk.ComputeTailRisk(exposure, spot, params, c.monitor.SimConfig(), c.monitor.VaRConfidence())
	if err != nil {
		c.log.Warn().Err(err).Msg("skipping adequacy check, tail risk simulation failed")
		return
	}

	required := c.monitor.RequiredCapital(exposure, totalPool, tail, nowUs)
	c.lastRequired = required

	state, checked := c.monitor.CheckCapitalAdequacy(totalPool, required, nowUs)
	if !checked {
		return
	}

	if c.metrics != nil {
		c.metrics.CapitalRatioBps.Set(float64(adequacy.CapitalRatioBps(totalPool, required)))
		if state == adequacy.StateCircuitBreakerActive {
			c.metrics.CircuitBreakerActive.Set(1)
		} else {
			c.metrics.CircuitBreakerActive.Set(0)
		}
	}
}

func (c *DeterministicCore) handleCoverageInject(e *event.CoverageInjected) error {
	assetID, ok := ledger.GetAssetID(e.AssetID)
	if !ok {
		return fmt.Errorf("unknown asset: %s", e.AssetID)
	}

	periodUs := int64(0)
	if c.lastAccrualUs > 0 && e.TimestampUs > c.lastAccrualUs {
		periodUs = e.TimestampUs - c.lastAccrualUs
	}

	payout, err := c.pool.InjectCoverage(e.RequestID, assetID, periodUs, e.TimestampUs)
	if err != nil {
		return err
	}
	c.lastAccrualUs = e.TimestampUs

	if c.metrics != nil {
		c.metrics.CoverageRequests.WithLabelValues("settled").Inc()
		c.metrics.ReinsuranceCapacity.Set(float64(c.reins.TotalCapacity()))
	}
	c.log.Info().
		Str("request_id", e.RequestID.String()).
		Int64("payout", payout).
		Msg("reinsurance coverage injected")
	return nil
}

func (c *DeterministicCore) handleShutdown(e *event.ShutdownInitiated) error {
	if !c.auth.Allowed(e.Initiator, pool.CapGovernance) {
		return fmt.Errorf("initiator %s lacks governance capability", e.Initiator)
	}
	return c.pool.InitiateShutdown(e.Initiator, e.Reason, e.TimestampUs)
}

func (c *DeterministicCore) handleEmergencyWithdrawal(e *event.EmergencyWithdrawal) error {
	assetID, ok := ledger.GetAssetID(e.AssetID)
	if !ok {
		return fmt.Errorf("unknown asset: %s", e.AssetID)
	}

	paid, err := c.pool.EmergencyWithdraw(e.RequestID, e.UserID, assetID, tranche.ID(e.Tranche), e.Shares, e.TimestampUs)
	if err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.WithdrawalsSettled.WithLabelValues(e.AssetID, "emergency").Inc()
	}
	c.log.Info().
		Str("asset", e.AssetID).
		Int64("paid", paid).
		Msg("emergency withdrawal settled")
	return nil
}

// getPartition determines the partition key for sequence validation.
func (c *DeterministicCore) getPartition(evt event.Event) string {
	if asset := evt.Asset(); asset != nil {
		return fmt.Sprintf("asset:%s", *asset)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from the event. The
// core never calls time.Now() for domain state.
func (c *DeterministicCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.DepositReceived:
		return time.UnixMicro(e.TimestampUs)
	case *event.WithdrawRequested:
		return time.UnixMicro(e.TimestampUs)
	case *event.WithdrawFulfill:
		return time.UnixMicro(e.TimestampUs)
	case *event.WithdrawBatchFulfill:
		return time.UnixMicro(e.TimestampUs)
	case *event.LossRecorded:
		return time.UnixMicro(e.TimestampUs)
	case *event.ProfitRecorded:
		return time.UnixMicro(e.TimestampUs)
	case *event.PurchaseCommitted:
		return time.UnixMicro(e.TimestampUs)
	case *event.PurchaseRevealed:
		return time.UnixMicro(e.TimestampUs)
	case *event.PurchaseCancelled:
		return time.UnixMicro(e.TimestampUs)
	case *event.OraclePriceUpdate:
		return time.UnixMicro(e.TimestampUs)
	case *event.PremiumEpochTick:
		return time.UnixMicro(e.TimestampUs)
	case *event.CoverageRequested:
		return time.UnixMicro(e.TimestampUs)
	case *event.CoverageApproved:
		return time.UnixMicro(e.TimestampUs)
	case *event.CoverageInjected:
		return time.UnixMicro(e.TimestampUs)
	case *event.ShutdownInitiated:
		return time.UnixMicro(e.TimestampUs)
	case *event.EmergencyWithdrawal:
		return time.UnixMicro(e.TimestampUs)
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T", evt))
	}
}

// computeStateDigest builds canonical bytes over the accounts the batch
// touched: len-prefixed account path followed by the post-apply balance.
func (c *DeterministicCore) computeStateDigest(batch *ledger.Batch) []byte {
	affected := make(map[ledger.AccountKey]bool)
	if batch != nil {
		for _, j := range batch.Journals {
			affected[j.DebitAccount] = true
			affected[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64)
	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, c.tracker.GetBalance(key))
	}
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// --- Read accessors for the query and server layers ---

func (c *DeterministicCore) Sequence() int64 {
	return c.sequence
}

func (c *DeterministicCore) Pool() *pool.Pool {
	return c.pool
}

func (c *DeterministicCore) Authorizer() *pool.Authorizer {
	return c.auth
}

func (c *DeterministicCore) Purchases() *purchase.Machine {
	return c.purchases
}

func (c *DeterministicCore) Holdings() *holding.Registry {
	return c.holdings
}

func (c *DeterministicCore) Reinsurance() *reinsurance.Module {
	return c.reins
}

func (c *DeterministicCore) Tracker() *ledger.BalanceTracker {
	return c.tracker
}

func (c *DeterministicCore) AdequacyState() adequacy.State {
	return c.monitor.State()
}

func (c *DeterministicCore) PremiumRateBps() int64 {
	return c.premiums.CurrentRateBps()
}

func (c *DeterministicCore) StateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// --- Recovery hooks ---

// RestoreSequence positions the pipeline after replay.
func (c *DeterministicCore) RestoreSequence(seq int64) {
	c.sequence = seq
}

// RestorePrevHash re-anchors the hash chain from the last persisted
// envelope.
func (c *DeterministicCore) RestorePrevHash(hash [32]byte) {
	c.hasher.SetPrevHash(hash)
}

// SetReplayMode toggles log replay: on, events skip the duplicate check
// but are still marked processed so live traffic dedups against them.
func (c *DeterministicCore) SetReplayMode(on bool) {
	c.replayMode = on
}

// RestorePartition seeds expected source sequences during recovery.
func (c *DeterministicCore) RestorePartition(partition string, seq int64) {
	c.sequenceValidator.SetExpectedSequence(partition, seq)
}

// WarmIdempotency preloads recent keys into the hot tier.
func (c *DeterministicCore) WarmIdempotency(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// maxSnapshotKeys caps the idempotency keys exported per snapshot so
// snapshot rows stay bounded; older keys resolve via the Postgres tier.
const maxSnapshotKeys = 100_000

// SnapshotState is the engine's full in-memory state for persistence.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Shares          []pool.Holding
	Pool            pool.Snapshot
	CollateralLocks []holding.Lock
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// CreateSnapshotState captures the current in-memory state. Must be called
// from the processing goroutine between events.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	keys := c.idempotency.lru.Keys()
	if len(keys) > maxSnapshotKeys {
		keys = keys[:maxSnapshotKeys]
	}

	return &SnapshotState{
		Sequence:        c.sequence,
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.tracker.Snapshot(),
		Shares:          c.pool.Shares().Snapshot(),
		Pool:            c.pool.Snapshot(),
		CollateralLocks: c.holdings.Locks(),
		SequenceState:   c.sequenceValidator.Snapshot(),
		IdempotencyKeys: keys,
	}
}

// RestoreFromSnapshot rebuilds the in-memory state from a snapshot before
// replay resumes. Must be called before the first ProcessEvent.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence
	c.hasher.SetPrevHash(snap.StateHash)
	c.tracker.Restore(snap.Balances)
	c.pool.Shares().Restore(snap.Shares)
	c.pool.RestoreSnapshot(snap.Pool)
	c.holdings.Restore(snap.CollateralLocks)
	for partition, seq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, seq)
	}
	c.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)
}
