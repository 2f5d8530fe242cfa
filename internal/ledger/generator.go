package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from pool operations
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence aligns the generator with the engine sequence after recovery.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64, capacity int) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, capacity),
	}
}

func (jg *JournalGenerator) addJournal(
	b *Batch,
	debit, credit AccountKey,
	assetID AssetID,
	amount int64,
	jt JournalType,
) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateDeposit creates journals for a tranche deposit.
// Moves funds: external:depositors → system:{tranche} (net amount), plus
// external:depositors → system:premium_fees for the deducted fee.
func (jg *JournalGenerator) GenerateDeposit(
	eventRef string,
	assetID AssetID,
	senior bool,
	netAmount, feeAmount int64,
	timestamp int64,
) (*Batch, error) {
	if netAmount <= 0 {
		return nil, fmt.Errorf("deposit net amount must be positive, got %d", netAmount)
	}

	batch := jg.newBatch(eventRef, timestamp, 2)

	trancheAcct := JuniorAccount(assetID)
	if senior {
		trancheAcct = SeniorAccount(assetID)
	}

	jg.addJournal(batch,
		trancheAcct,
		NewExternalAccountKey(SubTypeExternalDepositors, assetID),
		assetID, netAmount, JournalTypeDeposit)

	if feeAmount > 0 {
		jg.addJournal(batch,
			NewSystemAccountKey(SubTypePremiumFees, assetID),
			NewExternalAccountKey(SubTypeExternalDepositors, assetID),
			assetID, feeAmount, JournalTypeDepositFee)
	}

	jg.sequence++
	return batch, nil
}

// GenerateWithdrawal creates journals for a fulfilled withdrawal.
// Moves funds: system:{tranche} → external:depositors.
// Pre-check: tranche account must cover the entitlement.
func (jg *JournalGenerator) GenerateWithdrawal(
	eventRef string,
	assetID AssetID,
	senior bool,
	entitlement int64,
	emergency bool,
	timestamp int64,
) (*Batch, error) {
	if entitlement <= 0 {
		return nil, fmt.Errorf("withdrawal entitlement must be positive, got %d", entitlement)
	}

	trancheAcct := JuniorAccount(assetID)
	if senior {
		trancheAcct = SeniorAccount(assetID)
	}

	if held := jg.balanceTracker.GetBalance(trancheAcct); held < entitlement {
		return nil, fmt.Errorf("withdrawal pre-check failed: %s holds %d, need %d",
			trancheAcct.AccountPath(), held, entitlement)
	}

	jt := JournalTypeWithdrawal
	if emergency {
		jt = JournalTypeEmergencyWithdrawal
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.addJournal(batch,
		NewExternalAccountKey(SubTypeExternalDepositors, assetID),
		trancheAcct,
		assetID, entitlement, jt)

	jg.sequence++
	return batch, nil
}

// GenerateLoss creates journals distributing a realized loss across tranches.
// Moves funds: system:{junior,senior} → external:liquidation.
func (jg *JournalGenerator) GenerateLoss(
	eventRef string,
	assetID AssetID,
	seniorLoss, juniorLoss int64,
	timestamp int64,
) (*Batch, error) {
	if seniorLoss < 0 || juniorLoss < 0 {
		return nil, fmt.Errorf("loss amounts must be non-negative: senior=%d junior=%d", seniorLoss, juniorLoss)
	}
	if seniorLoss == 0 && juniorLoss == 0 {
		return nil, fmt.Errorf("loss batch requires at least one non-zero leg")
	}

	batch := jg.newBatch(eventRef, timestamp, 2)
	liq := NewExternalAccountKey(SubTypeExternalLiquidation, assetID)

	if juniorLoss > 0 {
		jg.addJournal(batch, liq, JuniorAccount(assetID), assetID, juniorLoss, JournalTypeLoss)
	}
	if seniorLoss > 0 {
		jg.addJournal(batch, liq, SeniorAccount(assetID), assetID, seniorLoss, JournalTypeLoss)
	}

	jg.sequence++
	return batch, nil
}

// GenerateProfit creates journals distributing a realized profit.
// Moves funds: external:liquidation → system:{senior,junior}.
// The junior leg is tagged Restoration when it restores an impaired tranche.
func (jg *JournalGenerator) GenerateProfit(
	eventRef string,
	assetID AssetID,
	seniorProfit, juniorProfit int64,
	juniorImpaired bool,
	timestamp int64,
) (*Batch, error) {
	if seniorProfit < 0 || juniorProfit < 0 {
		return nil, fmt.Errorf("profit amounts must be non-negative: senior=%d junior=%d", seniorProfit, juniorProfit)
	}
	if seniorProfit == 0 && juniorProfit == 0 {
		return nil, fmt.Errorf("profit batch requires at least one non-zero leg")
	}

	batch := jg.newBatch(eventRef, timestamp, 2)
	liq := NewExternalAccountKey(SubTypeExternalLiquidation, assetID)

	if seniorProfit > 0 {
		jg.addJournal(batch, SeniorAccount(assetID), liq, assetID, seniorProfit, JournalTypeProfit)
	}
	if juniorProfit > 0 {
		jt := JournalTypeProfit
		if juniorImpaired {
			jt = JournalTypeRestoration
		}
		jg.addJournal(batch, JuniorAccount(assetID), liq, assetID, juniorProfit, jt)
	}

	jg.sequence++
	return batch, nil
}

// GenerateReinsuranceSettlement creates journals for an approved coverage
// payout and the premium owed to providers in the same balanced batch, so
// the net capital effect is explicit in the ledger rather than implied.
// Payout restores the junior first-loss buffer; the premium is paid out of
// accumulated premium fees.
func (jg *JournalGenerator) GenerateReinsuranceSettlement(
	eventRef string,
	assetID AssetID,
	payout, premium int64,
	timestamp int64,
) (*Batch, error) {
	if payout <= 0 {
		return nil, fmt.Errorf("reinsurance payout must be positive, got %d", payout)
	}
	if premium < 0 {
		return nil, fmt.Errorf("reinsurance premium must be non-negative, got %d", premium)
	}

	batch := jg.newBatch(eventRef, timestamp, 2)
	reins := NewExternalAccountKey(SubTypeExternalReinsurers, assetID)

	jg.addJournal(batch, JuniorAccount(assetID), reins, assetID, payout, JournalTypeReinsurancePayout)

	if premium > 0 {
		fees := NewSystemAccountKey(SubTypePremiumFees, assetID)
		if held := jg.balanceTracker.GetBalance(fees); held < premium {
			return nil, fmt.Errorf("reinsurance premium pre-check failed: fees hold %d, need %d", held, premium)
		}
		jg.addJournal(batch, reins, fees, assetID, premium, JournalTypeReinsurancePremium)
	}

	jg.sequence++
	return batch, nil
}
