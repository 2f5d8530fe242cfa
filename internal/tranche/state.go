package tranche

import (
	"fmt"

	fpmath "TrancheVault/internal/math"
)

// State is a transient snapshot of both tranches, computed from the ledger
// at each call site. All values are fixed-point stablecoin amounts, all
// shares are fixed-point share counts.
type State struct {
	SeniorValue  int64
	JuniorValue  int64
	SeniorShares int64
	JuniorShares int64
	TotalValue   int64
}

// SeniorNAV returns the senior tranche's value per share in bps of par.
// Par (10000) is returned for an empty tranche: an empty tranche is not
// impaired.
func (s State) SeniorNAV() int64 {
	if s.SeniorShares == 0 {
		return fpmath.ParNAV
	}
	return fpmath.NAVBps(s.SeniorValue, s.SeniorShares)
}

// JuniorNAV returns the junior tranche's value per share in bps of par.
func (s State) JuniorNAV() int64 {
	if s.JuniorShares == 0 {
		return fpmath.ParNAV
	}
	return fpmath.NAVBps(s.JuniorValue, s.JuniorShares)
}

// Validate checks the structural invariants of a snapshot:
// senior + junior == total, and value > 0 implies shares > 0.
func (s State) Validate() error {
	if s.SeniorValue < 0 || s.JuniorValue < 0 || s.SeniorShares < 0 || s.JuniorShares < 0 {
		return fmt.Errorf("negative tranche state: senior=%d/%d junior=%d/%d",
			s.SeniorValue, s.SeniorShares, s.JuniorValue, s.JuniorShares)
	}
	if s.SeniorValue+s.JuniorValue != s.TotalValue {
		return fmt.Errorf("value conservation violated: senior=%d + junior=%d != total=%d",
			s.SeniorValue, s.JuniorValue, s.TotalValue)
	}
	if s.SeniorValue > 0 && s.SeniorShares == 0 {
		return fmt.Errorf("senior tranche has value %d with zero shares", s.SeniorValue)
	}
	if s.JuniorValue > 0 && s.JuniorShares == 0 {
		return fmt.Errorf("junior tranche has value %d with zero shares", s.JuniorValue)
	}
	return nil
}

// Value returns the value of the given tranche.
func (s State) Value(id ID) int64 {
	if id == Senior {
		return s.SeniorValue
	}
	return s.JuniorValue
}

// Shares returns the outstanding shares of the given tranche.
func (s State) Shares(id ID) int64 {
	if id == Senior {
		return s.SeniorShares
	}
	return s.JuniorShares
}
