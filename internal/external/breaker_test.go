package external

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyOracle struct {
	quote PriceQuote
	err   error
	calls int
}

func (f *flakyOracle) GetPrice(_ context.Context, asset string) (PriceQuote, error) {
	f.calls++
	if f.err != nil {
		return PriceQuote{}, f.err
	}
	return f.quote, nil
}

type flakyCustodian struct {
	balance int64
	err     error
	calls   int
}

func (f *flakyCustodian) Deposit(_ context.Context, asset string, amount int64) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.balance += amount
	return amount, nil
}

func (f *flakyCustodian) Withdraw(_ context.Context, asset string, amount int64) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.balance -= amount
	return amount, nil
}

func (f *flakyCustodian) CurrentBalance(_ context.Context, asset string) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.balance, nil
}

func TestGuardedOracle_PassesThroughHealthyReads(t *testing.T) {
	inner := &flakyOracle{quote: PriceQuote{Price: 2500_00, ConfidenceBps: 50, TimestampUs: 1}}
	g := NewGuardedOracle(inner, zerolog.Nop())

	q, err := g.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, int64(2500_00), q.Price)
	assert.Equal(t, 1, inner.calls)
}

func TestGuardedOracle_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyOracle{err: errors.New("feed down")}
	g := NewGuardedOracle(inner, zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, err := g.GetPrice(context.Background(), "ETH")
		require.Error(t, err)
	}
	callsBeforeOpen := inner.calls

	// Open breaker fails fast without touching the oracle.
	_, err := g.GetPrice(context.Background(), "ETH")
	require.Error(t, err)
	assert.Equal(t, callsBeforeOpen, inner.calls)
}

func TestGuardedCustodian_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyCustodian{err: errors.New("custodian unreachable")}
	g := NewGuardedCustodian(inner, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := g.Deposit(context.Background(), "USDC", 1000)
		require.Error(t, err)
	}
	callsBeforeOpen := inner.calls

	_, err := g.Withdraw(context.Background(), "USDC", 500)
	require.Error(t, err)
	assert.Equal(t, callsBeforeOpen, inner.calls)
}

func TestGuardedCustodian_RoundTrip(t *testing.T) {
	inner := &flakyCustodian{}
	g := NewGuardedCustodian(inner, zerolog.Nop())
	ctx := context.Background()

	credited, err := g.Deposit(ctx, "USDC", 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), credited)

	received, err := g.Withdraw(ctx, "USDC", 4_000)
	require.NoError(t, err)
	assert.Equal(t, int64(4_000), received)

	bal, err := g.CurrentBalance(ctx, "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(6_000), bal)
}
