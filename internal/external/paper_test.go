package external

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperExecutor_FillsAtMinimumBound(t *testing.T) {
	e := NewPaperExecutor(zerolog.Nop())

	res, err := e.Liquidate(context.Background(), LiquidationOrder{
		Protocol:         "aave",
		Borrower:         "0xabc",
		CollateralAsset:  "ETH",
		DebtAsset:        "USDC",
		DebtToCover:      100_000,
		MinCollateralOut: 55,
	})
	require.NoError(t, err)
	assert.Equal(t, "ETH", res.CollateralAsset)
	assert.Equal(t, int64(55), res.CollateralReceived)
	assert.Equal(t, int64(100_000), res.DebtPaid)
}

func TestPaperExecutor_RejectsNonPositiveDebt(t *testing.T) {
	e := NewPaperExecutor(zerolog.Nop())
	_, err := e.Liquidate(context.Background(), LiquidationOrder{DebtToCover: 0})
	assert.Error(t, err)
}

func TestPaperExecutor_HonorsCancelledContext(t *testing.T) {
	e := NewPaperExecutor(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Liquidate(ctx, LiquidationOrder{DebtToCover: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticKeeperRegistry(t *testing.T) {
	r := NewStaticKeeperRegistry([]string{"keeper-1", "keeper-2"})
	assert.True(t, r.IsAuthorized("keeper-1"))
	assert.False(t, r.IsAuthorized("keeper-9"))
}
