package pool

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrancheVault/internal/ledger"
	fpmath "TrancheVault/internal/math"
	"TrancheVault/internal/reinsurance"
	"TrancheVault/internal/tranche"
)

const usdc = ledger.AssetID(1)

const (
	hourUs = int64(3600 * 1_000_000)
	dayUs  = 24 * hourUs
)

func newTestPool(t *testing.T, cfg Config) (*Pool, *ledger.BalanceTracker, *reinsurance.Module) {
	t.Helper()
	tracker := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(1, tracker)
	reins, err := reinsurance.NewModule(reinsurance.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	p, err := New(cfg, tracker, gen, reins, zerolog.Nop())
	require.NoError(t, err)
	return p, tracker, reins
}

func feeFreeConfig() Config {
	cfg := DefaultConfig()
	cfg.DepositFeeBps = 0
	cfg.MaxExposureBps = fpmath.BpsScale
	cfg.FirstDepositCeiling = 1_000_000_000
	return cfg
}

// ============================================================================
// Deposits
// ============================================================================

func TestDepositMintsSharesAndRoutesFee(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.DepositFeeBps = 200
	p, tracker, _ := newTestPool(t, cfg)
	user := uuid.New()

	shares, err := p.Deposit("dep-1", user, usdc, tranche.Senior, 100_000, 1_000, 1)
	require.NoError(t, err)

	// 2% fee: 98_000 net, first deposit mints 1:1.
	assert.EqualValues(t, 98_000, shares)
	assert.EqualValues(t, 98_000, tracker.SeniorValue(usdc))
	assert.EqualValues(t, 2_000, tracker.PremiumFees(usdc))
	assert.EqualValues(t, 98_000, p.Shares().Shares(user, usdc, tranche.Senior))
}

func TestDepositRejectsDustAndFirstDepositCeiling(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.DustFloor = 1_000
	cfg.FirstDepositCeiling = 500_000
	p, _, _ := newTestPool(t, cfg)

	_, err := p.Deposit("dep-1", uuid.New(), usdc, tranche.Junior, 999, 1_000, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dust floor")

	_, err = p.Deposit("dep-2", uuid.New(), usdc, tranche.Junior, 500_001, 1_000, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ceiling")

	_, err = p.Deposit("dep-3", uuid.New(), usdc, tranche.Junior, 500_000, 1_000, 1)
	require.NoError(t, err)
}

func TestDepositEnforcesExposureCap(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.MaxExposureBps = 5_000
	p, _, _ := newTestPool(t, cfg)
	whale := uuid.New()

	// First deposit is exempt from the cap.
	_, err := p.Deposit("dep-1", whale, usdc, tranche.Senior, 100_000, 1_000, 1)
	require.NoError(t, err)

	// A second user balances the tranche.
	_, err = p.Deposit("dep-2", uuid.New(), usdc, tranche.Senior, 100_000, 2_000, 2)
	require.NoError(t, err)

	// The whale topping up past 50% of the tranche is rejected.
	_, err = p.Deposit("dep-3", whale, usdc, tranche.Senior, 10_000, 3_000, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bps of tranche")
}

func TestDepositPreviewRoundTrip(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.DepositFeeBps = 50
	p, _, _ := newTestPool(t, cfg)

	shares, err := p.Deposit("dep-1", uuid.New(), usdc, tranche.Junior, 200_000, 1_000, 1)
	require.NoError(t, err)

	// Withdrawing the minted shares immediately returns the net amount.
	w := p.PreviewWithdraw(usdc, tranche.Junior, shares)
	assert.EqualValues(t, 200_000-fpmath.BpsOf(200_000, 50), w.Entitlement)
	assert.False(t, w.Restricted)
}

// ============================================================================
// Withdrawal queue
// ============================================================================

func seedBothTranches(t *testing.T, p *Pool) (senior, junior uuid.UUID) {
	t.Helper()
	senior, junior = uuid.New(), uuid.New()
	_, err := p.Deposit("seed-s", senior, usdc, tranche.Senior, 450_000, 1_000, 1)
	require.NoError(t, err)
	_, err = p.Deposit("seed-j", junior, usdc, tranche.Junior, 50_000, 1_000, 1)
	require.NoError(t, err)
	return senior, junior
}

func TestRequestWithdrawValidations(t *testing.T) {
	p, _, _ := newTestPool(t, feeFreeConfig())
	seniorUser, _ := seedBothTranches(t, p) // deposits at ts 1_000, block 1

	// More shares than held.
	err := p.RequestWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 500_000, 1_000+hourUs, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient unqueued shares")

	req1 := uuid.New()
	require.NoError(t, p.RequestWithdraw(req1, seniorUser, usdc, tranche.Senior, 100_000, 1_000+hourUs, 2))

	// Duplicate request ID.
	err = p.RequestWithdraw(req1, seniorUser, usdc, tranche.Senior, 1_000, 1_000+3*hourUs, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already queued")

	// Request-to-request cooldown not elapsed.
	err = p.RequestWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 1_000, 1_000+hourUs+hourUs/2, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "withdraw cooldown")

	// Cooldown elapsed but same block as the previous request.
	err = p.RequestWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 1_000, 1_000+3*hourUs, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "later block")

	// Queued shares stay locked: 350k held free, 100k queued.
	err = p.RequestWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 400_000, 1_000+3*hourUs, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient unqueued shares")
}

func TestRequestWithdrawGatedOnDeposit(t *testing.T) {
	p, _, _ := newTestPool(t, feeFreeConfig())
	user := uuid.New()
	_, err := p.Deposit("dep-1", user, usdc, tranche.Senior, 100_000, 5_000, 10)
	require.NoError(t, err)

	// Same block and timestamp as the deposit: the round trip is blocked.
	err = p.RequestWithdraw(uuid.New(), user, usdc, tranche.Senior, 100_000, 5_000, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "later block than deposit block")

	// Next block, still inside the deposit cooldown.
	err = p.RequestWithdraw(uuid.New(), user, usdc, tranche.Senior, 100_000, 6_000, 11)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deposit cooldown")

	// Past the cooldown in a later block.
	require.NoError(t, p.RequestWithdraw(uuid.New(), user, usdc, tranche.Senior, 50_000, 5_000+hourUs, 11))

	// A fresh deposit re-arms the guard.
	_, err = p.Deposit("dep-2", user, usdc, tranche.Senior, 10_000, 5_000+hourUs+1, 12)
	require.NoError(t, err)
	err = p.RequestWithdraw(uuid.New(), user, usdc, tranche.Senior, 10_000, 5_000+hourUs+2, 13)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deposit cooldown")
}

func TestFulfillWithdrawDelayAndIdempotence(t *testing.T) {
	p, tracker, _ := newTestPool(t, feeFreeConfig())
	seniorUser, _ := seedBothTranches(t, p)

	req := uuid.New()
	reqAt := 1_000 + hourUs
	require.NoError(t, p.RequestWithdraw(req, seniorUser, usdc, tranche.Senior, 10_000, reqAt, 5))

	// Not yet mature.
	_, err := p.FulfillWithdraw(req, reqAt+dayUs-1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not yet mature")

	res, err := p.FulfillWithdraw(req, reqAt+dayUs)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000, res.SharesBurned)
	assert.EqualValues(t, 10_000, res.Paid) // par NAV
	assert.EqualValues(t, 440_000, tracker.SeniorValue(usdc))

	// Second call is rejected and changes nothing.
	_, err = p.FulfillWithdraw(req, reqAt+dayUs+1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already fulfilled")
	assert.EqualValues(t, 440_000, tracker.SeniorValue(usdc))
}

func TestFulfillWithdrawEpochCapPartialFill(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.MaxEpochWithdrawBps = 1_000 // 10% of the tranche per epoch
	p, _, _ := newTestPool(t, cfg)
	seniorUser, _ := seedBothTranches(t, p)

	req := uuid.New()
	reqAt := 1_000 + hourUs
	require.NoError(t, p.RequestWithdraw(req, seniorUser, usdc, tranche.Senior, 100_000, reqAt, 5))

	// Senior tranche 450k, cap 45k: the 100k entitlement fills partially.
	res, err := p.FulfillWithdraw(req, reqAt+dayUs)
	require.NoError(t, err)
	assert.EqualValues(t, 45_000, res.SharesBurned)
	assert.EqualValues(t, 45_000, res.Paid)

	// Remainder stays queued with reduced shares.
	pending := p.PendingWithdrawals(usdc)
	require.Len(t, pending, 1)
	assert.EqualValues(t, 55_000, pending[0].Shares)

	// Cap exhausted within the epoch.
	_, err = p.FulfillWithdraw(req, reqAt+dayUs+1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap exhausted")

	// Next epoch has fresh room.
	res, err = p.FulfillWithdraw(req, reqAt+2*dayUs+1)
	require.NoError(t, err)
	assert.Positive(t, res.Paid)
}

func TestFulfillWithdrawEpochCapScopedToTranche(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.MaxEpochWithdrawBps = 1_000
	p, _, _ := newTestPool(t, cfg)
	_, juniorUser := seedBothTranches(t, p)

	req := uuid.New()
	reqAt := 1_000 + hourUs
	require.NoError(t, p.RequestWithdraw(req, juniorUser, usdc, tranche.Junior, 50_000, reqAt, 5))

	// Junior room is 10% of junior's 50k, not of the 500k pool: a junior
	// run cannot burn room sized on senior capital.
	res, err := p.FulfillWithdraw(req, reqAt+dayUs)
	require.NoError(t, err)
	assert.EqualValues(t, 5_000, res.Paid)
	assert.EqualValues(t, 5_000, res.SharesBurned)

	_, err = p.FulfillWithdraw(req, reqAt+dayUs+1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap exhausted")
}

func TestBatchFulfillSplitsRoomProRata(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.CooldownUs = 0
	p, _, _ := newTestPool(t, cfg)
	alice, bob := uuid.New(), uuid.New()
	_, err := p.Deposit("dep-a", alice, usdc, tranche.Senior, 200_000, 1_000, 1)
	require.NoError(t, err)
	_, err = p.Deposit("dep-b", bob, usdc, tranche.Senior, 200_000, 1_000, 1)
	require.NoError(t, err)

	reqA, reqB := uuid.New(), uuid.New()
	require.NoError(t, p.RequestWithdraw(reqA, alice, usdc, tranche.Senior, 50_000, 2_000, 2))
	require.NoError(t, p.RequestWithdraw(reqB, bob, usdc, tranche.Senior, 50_000, 3_000, 3))

	// Two equal 50k entitlements against 50k of liquidity: the first
	// requester must not drain the whole batch, both get half.
	results, err := p.BatchFulfillWithdrawals(usdc, 50_000, dayUs+3_000)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, reqA, results[0].RequestID)
	assert.EqualValues(t, 25_000, results[0].Paid)
	assert.Equal(t, reqB, results[1].RequestID)
	assert.EqualValues(t, 25_000, results[1].Paid)

	// Both keep their queue slot with the unfilled half.
	pending := p.PendingWithdrawals(usdc)
	require.Len(t, pending, 2)
	assert.EqualValues(t, 25_000, pending[0].Shares)
	assert.EqualValues(t, 25_000, pending[1].Shares)
}

func TestBatchFulfillSkipsImmatureRequests(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.CooldownUs = 0
	p, _, _ := newTestPool(t, cfg)
	seniorUser, _ := seedBothTranches(t, p)

	old, fresh := uuid.New(), uuid.New()
	require.NoError(t, p.RequestWithdraw(old, seniorUser, usdc, tranche.Senior, 10_000, 2_000, 2))
	require.NoError(t, p.RequestWithdraw(fresh, seniorUser, usdc, tranche.Senior, 10_000, 2_000+hourUs, 3))

	results, err := p.BatchFulfillWithdrawals(usdc, 1_000_000, 2_000+dayUs+10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, old, results[0].RequestID)
	assert.EqualValues(t, 10_000, results[0].Paid)

	// The settled request leaves the queue, the immature one keeps its place.
	pending := p.PendingWithdrawals(usdc)
	require.Len(t, pending, 1)
	assert.Equal(t, fresh, pending[0].RequestID)
}

// ============================================================================
// Waterfall end-to-end
// ============================================================================

func TestProfitScenarioNinetyTenSplit(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.DepositFeeBps = 200
	p, tracker, _ := newTestPool(t, cfg)
	seniorUser, juniorUser := uuid.New(), uuid.New()

	sShares, err := p.Deposit("dep-s", seniorUser, usdc, tranche.Senior, 450_000, 1_000, 1)
	require.NoError(t, err)
	jShares, err := p.Deposit("dep-j", juniorUser, usdc, tranche.Junior, 50_000, 1_000, 1)
	require.NoError(t, err)
	require.EqualValues(t, 441_000, sShares)
	require.EqualValues(t, 49_000, jShares)

	split, err := p.RecordProfit("profit-1", usdc, 50_000, 2_000)
	require.NoError(t, err)
	assert.EqualValues(t, 40_000, split.SeniorProfit)
	assert.EqualValues(t, 10_000, split.JuniorProfit)

	// ROI on net capital: senior ~907 bps, junior ~2040 bps, junior wins.
	seniorROI := fpmath.MulDiv(split.SeniorProfit, fpmath.BpsScale, sShares)
	juniorROI := fpmath.MulDiv(split.JuniorProfit, fpmath.BpsScale, jShares)
	assert.EqualValues(t, 907, seniorROI)
	assert.EqualValues(t, 2_040, juniorROI)
	assert.Greater(t, juniorROI, seniorROI)

	// Value conservation through the ledger.
	assert.EqualValues(t, 441_000+40_000, tracker.SeniorValue(usdc))
	assert.EqualValues(t, 49_000+10_000, tracker.JuniorValue(usdc))
}

func TestLossScenarioTriggersReinsurance(t *testing.T) {
	p, tracker, reins := newTestPool(t, feeFreeConfig())
	_, err := p.Deposit("dep-s", uuid.New(), usdc, tranche.Senior, 200_000, 1_000, 1)
	require.NoError(t, err)
	_, err = p.Deposit("dep-j", uuid.New(), usdc, tranche.Junior, 20_000, 1_000, 1)
	require.NoError(t, err)

	out, err := p.RecordLoss("loss-1", usdc, 150_000, 42, 2_000)
	require.NoError(t, err)

	// Junior's 20k buffer is consumed first, senior takes the rest.
	assert.EqualValues(t, 20_000, out.Split.JuniorLoss)
	assert.EqualValues(t, 130_000, out.Split.SeniorLoss)
	assert.True(t, out.Split.ReinsuranceNeeded)
	assert.EqualValues(t, 0, tracker.JuniorValue(usdc))
	assert.EqualValues(t, 70_000, tracker.SeniorValue(usdc))

	// Coverage request nets out the 5% deductible on pre-loss capital:
	// 150_000 - 11_000 = 139_000.
	require.NotEqual(t, uuid.Nil, out.CoverageRequest)
	assert.EqualValues(t, 139_000, out.CoverageAmount)
	req, ok := reins.Request(out.CoverageRequest)
	require.True(t, ok)
	assert.EqualValues(t, 139_000, req.Amount)
}

func TestLossClampedToPoolValue(t *testing.T) {
	p, tracker, _ := newTestPool(t, feeFreeConfig())
	_, err := p.Deposit("dep-j", uuid.New(), usdc, tranche.Junior, 30_000, 1_000, 1)
	require.NoError(t, err)

	out, err := p.RecordLoss("loss-1", usdc, 90_000, 1, 2_000)
	require.NoError(t, err)
	assert.EqualValues(t, 30_000, out.AppliedLoss)
	assert.EqualValues(t, 0, tracker.TotalPool(usdc))
}

func TestCoverageInjectionRestoresJunior(t *testing.T) {
	p, tracker, reins := newTestPool(t, feeFreeConfig())
	require.NoError(t, reins.RegisterProvider(reinsurance.Provider{
		ID: "re-1", AllocatedCapital: 500_000, CoverageLimit: 500_000,
		PremiumRateBps: 300, TrustScoreBps: 9_000,
	}))

	// Fee deposits accumulate the premium pot the provider is paid from.
	require.NoError(t, p.SetDepositFeeBps(100))
	_, err := p.Deposit("dep-s", uuid.New(), usdc, tranche.Senior, 200_000, 1_000, 1)
	require.NoError(t, err)
	_, err = p.Deposit("dep-j", uuid.New(), usdc, tranche.Junior, 20_000, 1_000, 1)
	require.NoError(t, err)
	feesBefore := tracker.PremiumFees(usdc)
	require.Positive(t, feesBefore)

	out, err := p.RecordLoss("loss-1", usdc, 150_000, 42, 2_000)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, out.CoverageRequest)

	approved, err := p.ApproveCoverage(out.CoverageRequest, 3_000)
	require.NoError(t, err)
	require.Positive(t, approved)

	juniorBefore := tracker.JuniorValue(usdc)
	const yearUs = int64(365 * 24 * 3600 * 1_000_000)
	payout, err := p.InjectCoverage(out.CoverageRequest, usdc, yearUs/12, 4_000)
	require.NoError(t, err)
	assert.EqualValues(t, approved, payout)

	// Payout lands in junior; the premium leaves the fee pot, not tranche
	// capital.
	assert.EqualValues(t, juniorBefore+payout, tracker.JuniorValue(usdc))
	assert.Less(t, tracker.PremiumFees(usdc), feesBefore)
}

// ============================================================================
// Reservations
// ============================================================================

func TestReserveReleaseConsume(t *testing.T) {
	p, _, _ := newTestPool(t, feeFreeConfig())
	seedBothTranches(t, p)

	// Pool is 500k.
	require.NoError(t, p.Reserve("USDC", 400_000))
	assert.EqualValues(t, 400_000, p.Reserved(usdc))

	// Oversubscription rejected.
	err := p.Reserve("USDC", 200_000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds unreserved pool")

	p.Release("USDC", 150_000)
	assert.EqualValues(t, 250_000, p.Reserved(usdc))

	require.NoError(t, p.Consume("USDC", 250_000))
	assert.EqualValues(t, 0, p.Reserved(usdc))

	require.Error(t, p.Consume("USDC", 1))
	require.Error(t, p.Reserve("WBTC", 1))
}

// ============================================================================
// Shutdown
// ============================================================================

func TestShutdownBlocksNormalFlowAndOpensEmergency(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.ShutdownDelayUs = hourUs
	p, tracker, _ := newTestPool(t, cfg)
	seniorUser, _ := seedBothTranches(t, p)

	require.NoError(t, p.InitiateShutdown("governance", "oracle compromise", 5_000))
	require.Error(t, p.InitiateShutdown("governance", "again", 6_000))
	assert.True(t, p.IsShutdown())

	_, err := p.Deposit("dep-x", uuid.New(), usdc, tranche.Senior, 10_000, 6_000, 9)
	require.Error(t, err)
	err = p.RequestWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 1_000, 6_000, 9)
	require.Error(t, err)

	// Redemption stays closed until the wind-down window elapses.
	_, err = p.EmergencyWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 450_000, 6_000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opens at")
	_, err = p.EmergencyWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 450_000, 5_000+hourUs-1)
	require.Error(t, err)

	paid, err := p.EmergencyWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 450_000, 5_000+hourUs)
	require.NoError(t, err)
	assert.EqualValues(t, 450_000, paid)
	assert.EqualValues(t, 0, tracker.SeniorValue(usdc))
}

func TestEmergencyWithdrawRequiresShutdown(t *testing.T) {
	p, _, _ := newTestPool(t, feeFreeConfig())
	seniorUser, _ := seedBothTranches(t, p)

	_, err := p.EmergencyWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 1_000, 5_000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires shutdown")
}

func TestEmergencyWithdrawUnlocksQueuedShares(t *testing.T) {
	cfg := feeFreeConfig()
	cfg.CooldownUs = 0
	cfg.ShutdownDelayUs = hourUs
	p, _, _ := newTestPool(t, cfg)
	seniorUser, _ := seedBothTranches(t, p)

	require.NoError(t, p.RequestWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 450_000, 2_000, 2))
	require.NoError(t, p.InitiateShutdown("governance", "wind down", 3_000))

	// All shares redeemable despite the queued request.
	paid, err := p.EmergencyWithdraw(uuid.New(), seniorUser, usdc, tranche.Senior, 450_000, 3_000+hourUs)
	require.NoError(t, err)
	assert.EqualValues(t, 450_000, paid)
	assert.Empty(t, p.PendingWithdrawals(usdc))
}

// ============================================================================
// Authorizer
// ============================================================================

func TestAuthorizerGrants(t *testing.T) {
	a := NewAuthorizer()
	a.Grant("gov-1", CapGovernance)
	a.Grant("keeper-1", CapKeeper, CapOperator)

	assert.True(t, a.Allowed("gov-1", CapGovernance))
	assert.False(t, a.Allowed("gov-1", CapKeeper))
	assert.True(t, a.IsAuthorized("keeper-1"))
	assert.False(t, a.IsAuthorized("gov-1"))
	assert.Equal(t, []string{"keeper-1"}, a.Keepers())
}
