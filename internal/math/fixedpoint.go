package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // 0.000001 stablecoin units
	PriceConfig  = DecimalConfig{DecimalPrecision: 2, Scale: 100}         // 0.01
	RateConfig   = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // 0.00000001
)

// BpsScale is the basis-point denominator: 10000 bps = 100%.
const BpsScale int64 = 10_000

// ParNAV is the par net-asset-value of one tranche share, in bps.
const ParNAV int64 = 10_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	// Apply rounding
	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			// remainder > half: round up
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			// remainder == half and even denominator: round to even
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// MulDiv computes a * b / denominator through int128 with round-down.
// Round-down is the ledger default: the pool never pays out a rounding unit
// it does not hold.
func MulDiv(a, b, denominator int64) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denominator, RoundDown)
	putInt128(num)
	return result
}

// BpsOf returns amount * bps / 10000.
func BpsOf(amount, bps int64) int64 {
	return MulDiv(amount, bps, BpsScale)
}

// NAVBps computes value-per-share in basis points of par.
// A tranche with no shares has no meaningful NAV; callers special-case
// shares == 0 before calling.
func NAVBps(value, shares int64) int64 {
	return MulDiv(value, ParNAV, shares)
}

// SharesForDeposit computes shares minted for a net deposit.
// First depositor into an empty tranche sets a 1:1 basis.
func SharesForDeposit(netAmount, totalShares, trancheValue int64) int64 {
	if totalShares == 0 {
		return netAmount
	}
	return MulDiv(netAmount, totalShares, trancheValue)
}

// ProRata computes shares * value / totalShares.
func ProRata(shares, value, totalShares int64) int64 {
	if totalShares == 0 {
		return 0
	}
	return MulDiv(shares, value, totalShares)
}
