package ledger

import (
	"fmt"
	"strings"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeSystem AccountScope = iota
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// System sub-types: value held by the pool
	SubTypeSenior AccountSubType = iota
	SubTypeJunior
	SubTypePremiumFees

	// External sub-types: value boundary counterparts
	SubTypeExternalDepositors
	SubTypeExternalLiquidation
	SubTypeExternalReinsurers
)

// AssetID maps stablecoin strings to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDC": 1,
		"USDT": 2,
		"DAI":  3,
	}
	idToAsset = map[AssetID]string{
		1: "USDC",
		2: "USDT",
		3: "DAI",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// SupportedAssets returns all configured stablecoin names.
func SupportedAssets() []string {
	return []string{"USDC", "USDT", "DAI"}
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope   AccountScope
	SubType AccountSubType
	AssetID AssetID
}

// NewSystemAccountKey creates a key for pool-held value accounts
func NewSystemAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
		AssetID: assetID,
	}
}

// NewExternalAccountKey creates a key for boundary counterpart accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// SeniorAccount is the senior tranche value account for an asset.
func SeniorAccount(assetID AssetID) AccountKey {
	return NewSystemAccountKey(SubTypeSenior, assetID)
}

// JuniorAccount is the junior tranche value account for an asset.
func JuniorAccount(assetID AssetID) AccountKey {
	return NewSystemAccountKey(SubTypeJunior, assetID)
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath inverts AccountPath for snapshot restore.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	if len(parts) != 3 {
		return AccountKey{}, fmt.Errorf("malformed account path: %s", path)
	}

	var scope AccountScope
	switch parts[0] {
	case "system":
		scope = AccountScopeSystem
	case "external":
		scope = AccountScopeExternal
	default:
		return AccountKey{}, fmt.Errorf("unknown account scope: %s", parts[0])
	}

	var subType AccountSubType
	switch parts[1] {
	case "senior":
		subType = SubTypeSenior
	case "junior":
		subType = SubTypeJunior
	case "premium_fees":
		subType = SubTypePremiumFees
	case "depositors":
		subType = SubTypeExternalDepositors
	case "liquidation":
		subType = SubTypeExternalLiquidation
	case "reinsurers":
		subType = SubTypeExternalReinsurers
	default:
		return AccountKey{}, fmt.Errorf("unknown account sub-type: %s", parts[1])
	}

	assetID, ok := GetAssetID(parts[2])
	if !ok {
		return AccountKey{}, fmt.Errorf("unknown asset in account path: %s", parts[2])
	}

	return AccountKey{Scope: scope, SubType: subType, AssetID: assetID}, nil
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeSenior:
		return "senior"
	case SubTypeJunior:
		return "junior"
	case SubTypePremiumFees:
		return "premium_fees"
	case SubTypeExternalDepositors:
		return "depositors"
	case SubTypeExternalLiquidation:
		return "liquidation"
	case SubTypeExternalReinsurers:
		return "reinsurers"
	default:
		return "unknown"
	}
}
