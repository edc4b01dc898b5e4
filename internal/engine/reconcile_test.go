package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomefi/vaultsync/internal/domain"
)

func big64(n int64) *big.Int { return big.NewInt(n) }

func assertAggregate(t *testing.T, agg Aggregate, matched, unmatchedYes, unmatchedNo int64) {
	t.Helper()
	assert.Equal(t, matched, agg.Matched.Int64(), "matched")
	assert.Equal(t, unmatchedYes, agg.UnmatchedYes.Int64(), "unmatchedYes")
	assert.Equal(t, unmatchedNo, agg.UnmatchedNo.Int64(), "unmatchedNo")
}

func TestReconcile_BalancedDeposit(t *testing.T) {
	agg, err := Reconcile(ZeroAggregate(), big64(100), big64(100))
	require.NoError(t, err)
	assertAggregate(t, agg, 100, 0, 0)
}

func TestReconcile_OneSidedDepositThenWithdrawal(t *testing.T) {
	agg, err := Reconcile(ZeroAggregate(), big64(100), big64(100))
	require.NoError(t, err)

	// +50 yes: overallYes=150, overallNo=100
	agg, err = Reconcile(agg, big64(50), big64(0))
	require.NoError(t, err)
	assertAggregate(t, agg, 100, 50, 0)

	// -30 yes: overallYes=120
	agg, err = Reconcile(agg, big64(-30), big64(0))
	require.NoError(t, err)
	assertAggregate(t, agg, 100, 20, 0)
}

func TestReconcile_MatchedShrinksOnWithdrawal(t *testing.T) {
	agg, err := Reconcile(ZeroAggregate(), big64(100), big64(0))
	require.NoError(t, err)
	assertAggregate(t, agg, 0, 100, 0)

	agg, err = Reconcile(agg, big64(0), big64(60))
	require.NoError(t, err)
	assertAggregate(t, agg, 60, 40, 0)

	agg, err = Reconcile(agg, big64(-40), big64(0))
	require.NoError(t, err)
	assertAggregate(t, agg, 60, 0, 0)
}

func TestReconcile_AtMostOneUnmatchedSideNonZero(t *testing.T) {
	cases := []struct{ yes, no int64 }{
		{100, 100}, {150, 100}, {100, 150}, {0, 50}, {50, 0}, {0, 0},
	}
	for _, tc := range cases {
		agg, err := Reconcile(ZeroAggregate(), big64(tc.yes), big64(tc.no))
		require.NoError(t, err)
		assert.False(t, agg.UnmatchedYes.Sign() > 0 && agg.UnmatchedNo.Sign() > 0,
			"yes=%d no=%d produced unmatched on both sides", tc.yes, tc.no)
	}
}

func TestReconcile_NegativeComponentViolatesInvariant(t *testing.T) {
	// Withdrawing more than was ever deposited.
	agg, err := Reconcile(ZeroAggregate(), big64(-10), big64(0))
	require.ErrorIs(t, err, domain.ErrInvariantViolated)
	// The computed state is still returned so callers can keep replaying.
	assert.Equal(t, int64(-10), agg.Matched.Int64())
}

func TestReconcile_DoesNotMutateInputs(t *testing.T) {
	cur := Aggregate{
		Matched:      big64(100),
		UnmatchedYes: big64(50),
		UnmatchedNo:  big64(0),
	}
	yesDelta := big64(-30)
	noDelta := big64(0)

	_, err := Reconcile(cur, yesDelta, noDelta)
	require.NoError(t, err)

	assert.Equal(t, int64(100), cur.Matched.Int64())
	assert.Equal(t, int64(50), cur.UnmatchedYes.Int64())
	assert.Equal(t, int64(-30), yesDelta.Int64())
}

func TestBalanceActivityDeltas_Deposit(t *testing.T) {
	a := domain.Activity{
		ID:   "0xabc-1",
		Type: "TokensDeposited",
		Info: []byte(`{"user":"0xu","yesAmount":"100","noAmount":"60"}`),
	}
	yes, no, ok, err := balanceActivityDeltas(a, domain.PositionNone)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), yes.Int64())
	assert.Equal(t, int64(60), no.Int64())
}

func TestBalanceActivityDeltas_WithdrawalNegates(t *testing.T) {
	a := domain.Activity{
		ID:   "0xabc-2",
		Type: "GenesisWithdrawn",
		Info: []byte(`{"user":"0xu","yesAmount":"40","noAmount":"0","slot":3}`),
	}
	yes, no, ok, err := balanceActivityDeltas(a, domain.PositionNone)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(-40), yes.Int64())
	assert.Equal(t, int64(0), no.Int64())
}

func TestBalanceActivityDeltas_RedemptionFollowsWinningSide(t *testing.T) {
	a := domain.Activity{
		ID:   "0xabc-3",
		Type: "WinningsRedeemed",
		Info: []byte(`{"user":"0xu","tokenAmount":"20","usdAmount":"19"}`),
	}

	yes, no, ok, err := balanceActivityDeltas(a, domain.PositionYes)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(-20), yes.Int64())
	assert.Equal(t, int64(0), no.Int64())

	yes, no, ok, err = balanceActivityDeltas(a, domain.PositionBoth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(-20), yes.Int64())
	assert.Equal(t, int64(-20), no.Int64())
}

func TestBalanceActivityDeltas_RedemptionBeforeFinalization(t *testing.T) {
	a := domain.Activity{
		ID:   "0xabc-4",
		Type: "WinningsRedeemed",
		Info: []byte(`{"user":"0xu","tokenAmount":"20","usdAmount":"19"}`),
	}
	_, _, ok, err := balanceActivityDeltas(a, domain.PositionNone)
	assert.False(t, ok)
	require.ErrorIs(t, err, domain.ErrInvariantViolated)
}

func TestBalanceActivityDeltas_LifecycleEventsAreNotBalanceAffecting(t *testing.T) {
	for _, typ := range []string{"VaultCreated", "SlotRegistered", "YieldHarvested", "VaultUnlocked", "PriceSubmitted"} {
		a := domain.Activity{ID: "0xabc-5", Type: typ, Info: []byte(`{}`)}
		_, _, ok, err := balanceActivityDeltas(a, domain.PositionNone)
		require.NoError(t, err, typ)
		assert.False(t, ok, typ)
	}
}
