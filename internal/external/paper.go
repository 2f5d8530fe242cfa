package external

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// PaperExecutor simulates liquidation execution for environments without a
// chain connection. Fills at the order's minimum collateral bound, which is
// the conservative settlement the purchase machine already accounts for.
type PaperExecutor struct {
	log zerolog.Logger
}

func NewPaperExecutor(log zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{log: log}
}

func (e *PaperExecutor) Liquidate(ctx context.Context, order LiquidationOrder) (LiquidationResult, error) {
	if err := ctx.Err(); err != nil {
		return LiquidationResult{}, err
	}
	if order.DebtToCover <= 0 {
		return LiquidationResult{}, fmt.Errorf("debt to cover must be positive, got %d", order.DebtToCover)
	}

	e.log.Info().
		Str("protocol", order.Protocol).
		Str("borrower", order.Borrower).
		Int64("debt_to_cover", order.DebtToCover).
		Int64("min_collateral_out", order.MinCollateralOut).
		Msg("paper liquidation executed")

	return LiquidationResult{
		CollateralAsset:    order.CollateralAsset,
		CollateralReceived: order.MinCollateralOut,
		DebtPaid:           order.DebtToCover,
	}, nil
}
