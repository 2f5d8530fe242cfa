// Package external declares the collaborator surfaces the pool consumes.
// Implementations live outside the core; the orchestrator receives them as
// injected configuration rather than ambient globals.
package external

import (
	"context"
)

// YieldCustodian holds pooled capital and earns external yield on it.
type YieldCustodian interface {
	// Deposit forwards funds to the custodian, returning the credited amount.
	Deposit(ctx context.Context, asset string, amount int64) (int64, error)

	// Withdraw pulls funds back, returning the amount actually received.
	Withdraw(ctx context.Context, asset string, amount int64) (int64, error)

	// CurrentBalance reports the custodied balance for an asset.
	CurrentBalance(ctx context.Context, asset string) (int64, error)
}

// SwapQuote is a DEX quote request.
type SwapQuote struct {
	TokenIn  string
	TokenOut string
	FeeBps   int64
	AmountIn int64
}

// SwapParams executes a quoted swap with a slippage bound.
type SwapParams struct {
	TokenIn          string
	TokenOut         string
	FeeBps           int64
	AmountIn         int64
	AmountOutMinimum int64
	DeadlineUs       int64
}

// DexVenue quotes and executes swaps.
type DexVenue interface {
	Quote(ctx context.Context, q SwapQuote) (int64, error)
	Swap(ctx context.Context, p SwapParams) (int64, error)
}

// PriceQuote is an oracle read with its confidence.
type PriceQuote struct {
	Price         int64
	ConfidenceBps int64
	TimestampUs   int64
}

// PriceOracle aggregates multiple price sources with deviation and
// staleness checks.
type PriceOracle interface {
	GetPrice(ctx context.Context, asset string) (PriceQuote, error)
}

// FlashLender provides flash capital for liquidation execution. The lender
// invokes the supplied callback; principal plus premium must be repaid
// within the callback or the whole operation aborts.
type FlashLender interface {
	ExecuteFlashLoan(ctx context.Context, asset string, amount int64, opaqueData []byte, deadlineUs int64) error
}

// LiquidationOrder describes one protocol liquidation to execute.
type LiquidationOrder struct {
	Protocol         string // "aave", "compound", "liquity", "morpho"
	Target           string
	Borrower         string
	CollateralAsset  string
	DebtAsset        string
	DebtToCover      int64
	MinCollateralOut int64
	DeadlineUs       int64
}

// LiquidationResult reports what a completed liquidation produced.
type LiquidationResult struct {
	CollateralAsset    string
	CollateralReceived int64
	DebtPaid           int64
}

// LiquidationExecutor runs a flash-funded liquidation against a protocol
// adapter. The call is all-or-nothing: on error no partial execution
// persists.
type LiquidationExecutor interface {
	Liquidate(ctx context.Context, order LiquidationOrder) (LiquidationResult, error)
}

// KeeperRegistry authorizes liquidation keepers.
type KeeperRegistry interface {
	IsAuthorized(keeper string) bool
}

// StaticKeeperRegistry is the injected-configuration form of the registry.
type StaticKeeperRegistry struct {
	keepers map[string]bool
}

func NewStaticKeeperRegistry(keepers []string) *StaticKeeperRegistry {
	m := make(map[string]bool, len(keepers))
	for _, k := range keepers {
		m[k] = true
	}
	return &StaticKeeperRegistry{keepers: m}
}

func (r *StaticKeeperRegistry) IsAuthorized(keeper string) bool {
	return r.keepers[keeper]
}
