package tranche

import (
	fpmath "TrancheVault/internal/math"
)

// Waterfall constants, in bps of par.
const (
	// ImpairmentThreshold is the NAV below which a tranche counts as
	// impaired for reinsurance and withdrawal-haircut purposes.
	ImpairmentThreshold int64 = 8_000

	// SeniorProfitShareBps is the senior share of profit once the junior
	// tranche is at or above par.
	SeniorProfitShareBps int64 = 8_000

	// HaircutDivisor spreads half of the junior impairment ratio onto
	// senior withdrawals.
	HaircutDivisor int64 = 20_000
)

// LossSplit is the result of pushing a realized loss through the waterfall.
type LossSplit struct {
	SeniorLoss        int64
	JuniorLoss        int64
	ReinsuranceNeeded bool
}

// DistributeLoss applies junior-first-loss ordering: junior absorbs the loss
// up to its full value, the remainder hits senior. ReinsuranceNeeded is set
// when the post-loss senior NAV falls below the impairment threshold.
// Total over well-formed input; loss == 0 is a no-op.
func DistributeLoss(s State, loss int64) LossSplit {
	if loss <= 0 {
		return LossSplit{}
	}

	split := LossSplit{}
	if loss <= s.JuniorValue {
		split.JuniorLoss = loss
	} else {
		split.JuniorLoss = s.JuniorValue
		split.SeniorLoss = loss - s.JuniorValue
	}

	if split.SeniorLoss > 0 && s.SeniorShares > 0 {
		remaining := s.SeniorValue - split.SeniorLoss
		if remaining < 0 {
			remaining = 0
		}
		if fpmath.NAVBps(remaining, s.SeniorShares) < ImpairmentThreshold {
			split.ReinsuranceNeeded = true
		}
	}

	return split
}

// ProfitSplit is the result of pushing a realized profit through the waterfall.
type ProfitSplit struct {
	SeniorProfit int64
	JuniorProfit int64
}

// DistributeProfit routes profit through the restoration-before-split rule:
//
//   - neither tranche has shares: profit is unallocatable, both zero
//   - only senior has shares: senior takes 100%
//   - junior below par: the par deficit is restored first; the excess is
//     split 80/20 only if restoration reaches par, otherwise the whole
//     excess continues to junior
//   - junior at or above par: standard 80/20 split
//
// The still-impaired branch intentionally routes 100% of excess to junior
// even when junior is nearly healthy.
func DistributeProfit(s State, profit int64) ProfitSplit {
	if profit <= 0 {
		return ProfitSplit{}
	}
	if s.SeniorShares == 0 && s.JuniorShares == 0 {
		return ProfitSplit{}
	}
	if s.JuniorShares == 0 {
		return ProfitSplit{SeniorProfit: profit}
	}

	juniorNAV := fpmath.NAVBps(s.JuniorValue, s.JuniorShares)
	if juniorNAV >= fpmath.ParNAV {
		senior := fpmath.BpsOf(profit, SeniorProfitShareBps)
		return ProfitSplit{SeniorProfit: senior, JuniorProfit: profit - senior}
	}

	// Junior impaired: restore to par before any senior upside.
	// At par one share is worth one unit of value, so the shares-implied
	// par value is the share count itself.
	parValue := s.JuniorShares
	deficit := parValue - s.JuniorValue
	if profit <= deficit {
		return ProfitSplit{JuniorProfit: profit}
	}

	excess := profit - deficit
	restoredNAV := fpmath.NAVBps(s.JuniorValue+deficit, s.JuniorShares)
	if restoredNAV < fpmath.ParNAV {
		// Restoration fell short of par: the excess keeps flowing to
		// junior, senior earns nothing yet.
		return ProfitSplit{JuniorProfit: profit}
	}

	senior := fpmath.BpsOf(excess, SeniorProfitShareBps)
	return ProfitSplit{
		SeniorProfit: senior,
		JuniorProfit: deficit + (excess - senior),
	}
}

// Withdrawal is the entitlement computed for burning shares of one tranche.
type Withdrawal struct {
	Entitlement int64
	Restricted  bool
}

// CalculateWithdrawal computes the payout for burning the given shares.
// Junior withdrawals are pure pro-rata. Senior withdrawals take a haircut
// proportional to half the junior impairment ratio whenever junior NAV is
// below the impairment threshold, so senior holders cannot exit at par while
// their loss buffer is damaged.
func CalculateWithdrawal(s State, shares int64, id ID) Withdrawal {
	if shares <= 0 {
		return Withdrawal{}
	}

	if id == Junior {
		if s.JuniorShares == 0 {
			return Withdrawal{}
		}
		return Withdrawal{Entitlement: fpmath.ProRata(shares, s.JuniorValue, s.JuniorShares)}
	}

	if s.SeniorShares == 0 {
		return Withdrawal{}
	}

	juniorNAV := int64(fpmath.ParNAV)
	if s.JuniorShares > 0 {
		juniorNAV = fpmath.NAVBps(s.JuniorValue, s.JuniorShares)
	}

	if juniorNAV >= ImpairmentThreshold {
		return Withdrawal{Entitlement: fpmath.ProRata(shares, s.SeniorValue, s.SeniorShares)}
	}

	haircut := fpmath.MulDiv(fpmath.ParNAV-juniorNAV, s.SeniorValue, HaircutDivisor)
	effective := s.SeniorValue - haircut
	if effective < 0 {
		effective = 0
	}
	return Withdrawal{
		Entitlement: fpmath.ProRata(shares, effective, s.SeniorShares),
		Restricted:  true,
	}
}
