package external

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// GuardedOracle wraps a PriceOracle with a failure-counting breaker. When
// the underlying oracle misbehaves repeatedly the breaker opens and reads
// fail fast instead of stalling the pipeline; callers fall back to their
// conservative risk posture until the oracle recovers.
type GuardedOracle struct {
	inner   PriceOracle
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func NewGuardedOracle(inner PriceOracle, log zerolog.Logger) *GuardedOracle {
	g := &GuardedOracle{inner: inner, log: log}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "price_oracle",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("oracle breaker state change")
		},
	})
	return g
}

func (g *GuardedOracle) GetPrice(ctx context.Context, asset string) (PriceQuote, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetPrice(ctx, asset)
	})
	if err != nil {
		return PriceQuote{}, fmt.Errorf("oracle read for %s: %w", asset, err)
	}
	return out.(PriceQuote), nil
}

// GuardedCustodian wraps a YieldCustodian the same way. Deposits that fail
// fast keep funds in the pool's local balance rather than in limbo.
type GuardedCustodian struct {
	inner   YieldCustodian
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func NewGuardedCustodian(inner YieldCustodian, log zerolog.Logger) *GuardedCustodian {
	g := &GuardedCustodian{inner: inner, log: log}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "yield_custodian",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("custodian breaker state change")
		},
	})
	return g
}

func (g *GuardedCustodian) Deposit(ctx context.Context, asset string, amount int64) (int64, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Deposit(ctx, asset, amount)
	})
	if err != nil {
		return 0, fmt.Errorf("custodian deposit %d %s: %w", amount, asset, err)
	}
	return out.(int64), nil
}

func (g *GuardedCustodian) Withdraw(ctx context.Context, asset string, amount int64) (int64, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Withdraw(ctx, asset, amount)
	})
	if err != nil {
		return 0, fmt.Errorf("custodian withdraw %d %s: %w", amount, asset, err)
	}
	return out.(int64), nil
}

func (g *GuardedCustodian) CurrentBalance(ctx context.Context, asset string) (int64, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.CurrentBalance(ctx, asset)
	})
	if err != nil {
		return 0, fmt.Errorf("custodian balance %s: %w", asset, err)
	}
	return out.(int64), nil
}
