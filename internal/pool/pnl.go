package pool

import (
	"fmt"

	"github.com/google/uuid"

	"TrancheVault/internal/ledger"
	fpmath "TrancheVault/internal/math"
	"TrancheVault/internal/reinsurance"
	"TrancheVault/internal/tranche"
)

// LossOutcome reports how a realized loss landed.
type LossOutcome struct {
	Split           tranche.LossSplit
	AppliedLoss     int64
	CoverageRequest uuid.UUID // Nil when no claim was opened
	CoverageAmount  int64
}

// RecordLoss pushes a realized loss through the waterfall and the ledger.
// A loss beyond the pool's total value is clamped; the uncovered remainder
// is externalized and only logged. When the post-loss senior NAV breaches
// the impairment threshold a reinsurance claim is opened automatically,
// net of the pool deductible.
func (p *Pool) RecordLoss(eventRef string, assetID ledger.AssetID, amount, sequence, nowUs int64) (LossOutcome, error) {
	if amount <= 0 {
		return LossOutcome{}, fmt.Errorf("loss amount must be positive, got %d", amount)
	}

	state := p.State(assetID)
	poolBefore := state.TotalValue
	applied := amount
	if applied > poolBefore {
		applied = poolBefore
		p.log.Error().
			Str("event_ref", eventRef).
			Int64("loss", amount).
			Int64("pool", poolBefore).
			Msg("loss exceeds pool value; clamping")
	}
	if applied == 0 {
		return LossOutcome{}, fmt.Errorf("pool is empty; loss of %d cannot be absorbed", amount)
	}

	split := tranche.DistributeLoss(state, applied)
	batch, err := p.generator.GenerateLoss(eventRef, assetID, split.SeniorLoss, split.JuniorLoss, nowUs)
	if err != nil {
		return LossOutcome{}, fmt.Errorf("generating loss batch: %w", err)
	}
	if err := p.applyBatch(batch, assetID); err != nil {
		return LossOutcome{}, err
	}

	outcome := LossOutcome{Split: split, AppliedLoss: applied}

	if p.reins != nil {
		assetName, _ := ledger.GetAssetName(assetID)
		proof := reinsurance.LossProof(assetName, applied, sequence)
		p.reins.RecordLossProof(proof, applied)

		if split.ReinsuranceNeeded {
			// The pool retains a deductible sized on pre-loss capital.
			deductible := fpmath.BpsOf(poolBefore, p.cfg.ReinsuranceDeductibleBps)
			coverage := applied - deductible
			if coverage > 0 {
				reqID := uuid.New()
				if err := p.reins.RequestCoverage(reqID, coverage, proof, nowUs); err != nil {
					p.log.Error().Err(err).Msg("opening reinsurance claim failed")
				} else {
					outcome.CoverageRequest = reqID
					outcome.CoverageAmount = coverage
				}
			}
		}
	}

	p.log.Warn().
		Str("event_ref", eventRef).
		Int64("loss", applied).
		Int64("senior_loss", split.SeniorLoss).
		Int64("junior_loss", split.JuniorLoss).
		Bool("reinsurance", split.ReinsuranceNeeded).
		Msg("loss recorded")
	return outcome, nil
}

// RecordProfit pushes a realized profit through the waterfall and the
// ledger. Restoration of an impaired junior tranche is tagged distinctly in
// the journal so wind-down accounting can separate recovery from upside.
func (p *Pool) RecordProfit(eventRef string, assetID ledger.AssetID, amount, nowUs int64) (tranche.ProfitSplit, error) {
	if amount <= 0 {
		return tranche.ProfitSplit{}, fmt.Errorf("profit amount must be positive, got %d", amount)
	}

	state := p.State(assetID)
	split := tranche.DistributeProfit(state, amount)
	if split.SeniorProfit == 0 && split.JuniorProfit == 0 {
		return split, fmt.Errorf("profit of %d is unallocatable: no shares outstanding", amount)
	}

	juniorImpaired := state.JuniorShares > 0 && state.JuniorNAV() < fpmath.ParNAV
	batch, err := p.generator.GenerateProfit(eventRef, assetID, split.SeniorProfit, split.JuniorProfit, juniorImpaired, nowUs)
	if err != nil {
		return tranche.ProfitSplit{}, fmt.Errorf("generating profit batch: %w", err)
	}
	if err := p.applyBatch(batch, assetID); err != nil {
		return tranche.ProfitSplit{}, err
	}

	p.log.Info().
		Str("event_ref", eventRef).
		Int64("profit", amount).
		Int64("senior", split.SeniorProfit).
		Int64("junior", split.JuniorProfit).
		Msg("profit recorded")
	return split, nil
}

// ApproveCoverage verifies a claim's loss proof against recorded losses.
func (p *Pool) ApproveCoverage(requestID uuid.UUID, nowUs int64) (int64, error) {
	if p.reins == nil {
		return 0, fmt.Errorf("reinsurance is not configured")
	}
	return p.reins.ApproveRequest(requestID, nowUs)
}

// InjectCoverage settles an approved claim: the payout restores the junior
// tranche, and the premium owed to providers for the accrual period leaves
// the fee account in the same batch.
func (p *Pool) InjectCoverage(requestID uuid.UUID, assetID ledger.AssetID, periodUs, nowUs int64) (int64, error) {
	if p.reins == nil {
		return 0, fmt.Errorf("reinsurance is not configured")
	}

	draws, err := p.reins.SettleRequest(requestID, nowUs)
	if err != nil {
		return 0, fmt.Errorf("settling coverage: %w", err)
	}
	var payout int64
	for _, d := range draws {
		payout += d.Amount
	}
	if payout <= 0 {
		return 0, fmt.Errorf("coverage %s settled to zero", requestID)
	}

	var premium int64
	for _, d := range p.reins.AccruePremiums(periodUs) {
		premium += d.Amount
	}
	// Premiums are paid from accumulated fees; never dip into tranche
	// capital for them.
	if fees := p.tracker.PremiumFees(assetID); premium > fees {
		premium = fees
	}

	batch, err := p.generator.GenerateReinsuranceSettlement(requestID.String(), assetID, payout, premium, nowUs)
	if err != nil {
		return 0, fmt.Errorf("generating reinsurance batch: %w", err)
	}
	if err := p.applyBatch(batch, assetID); err != nil {
		return 0, err
	}

	p.log.Info().
		Str("request", requestID.String()).
		Int64("payout", payout).
		Int64("premium", premium).
		Msg("reinsurance coverage injected")
	return payout, nil
}
