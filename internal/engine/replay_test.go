package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomefi/vaultsync/internal/chain"
	"github.com/outcomefi/vaultsync/internal/domain"
)

func newReplayer(f *routerFixture, locks domain.LockManager) *Replayer {
	return NewReplayer(f.markets, f.activities, nil, locks, nil, discardLogger())
}

// seedHistory applies deposit(100y), deposit(60n), withdraw(40y) through the
// router, ending at matched=60, unmatchedYes=0, unmatchedNo=0.
func seedHistory(t *testing.T, f *routerFixture) {
	t.Helper()
	f.provision(t, 10)
	f.apply(t, f.rawLog(testVaultAddr, 11), chain.TokensDeposited{
		User: common.HexToAddress(testUserAddr), YesAmount: big.NewInt(100), NoAmount: big.NewInt(0),
	})
	f.apply(t, f.rawLog(testVaultAddr, 12), chain.TokensDeposited{
		User: common.HexToAddress(testUserAddr), YesAmount: big.NewInt(0), NoAmount: big.NewInt(60),
	})
	f.apply(t, f.rawLog(testVaultAddr, 13), chain.TokensWithdrawn{
		User: common.HexToAddress(testUserAddr), YesAmount: big.NewInt(40), NoAmount: big.NewInt(0),
	})
}

func TestReplayer_ReplayMatchesIncremental(t *testing.T) {
	f := newRouterFixture()
	seedHistory(t, f)

	res, err := newReplayer(f, nil).RecomputeMarket(context.Background(), testConditionID)
	require.NoError(t, err)

	assert.False(t, res.Drift, "incremental and replayed state must agree")
	assert.Equal(t, 4, res.Activities)

	m := f.market(t)
	assert.Equal(t, int64(60), m.MatchedTokens.Int64())
	assert.Equal(t, int64(0), m.UnmatchedYes.Int64())
	assert.Equal(t, int64(0), m.UnmatchedNo.Int64())
}

func TestReplayer_RepairsCorruptedAggregates(t *testing.T) {
	f := newRouterFixture()
	seedHistory(t, f)

	// Corrupt the stored aggregates out from under the ledger.
	require.NoError(t, f.markets.UpdateAggregates(context.Background(), testConditionID,
		big.NewInt(999), big.NewInt(5), big.NewInt(0)))

	res, err := newReplayer(f, nil).RecomputeMarket(context.Background(), testConditionID)
	require.NoError(t, err)
	assert.True(t, res.Drift)

	m := f.market(t)
	assert.Equal(t, int64(60), m.MatchedTokens.Int64())
	assert.Equal(t, int64(60), m.TVL.Int64())
	assert.Equal(t, int64(0), m.UnmatchedYes.Int64())
}

func TestReplayer_RedemptionUsesReplayedWinningPosition(t *testing.T) {
	f := newRouterFixture()
	f.provision(t, 10)
	f.apply(t, f.rawLog(testVaultAddr, 11), chain.TokensDeposited{
		User: common.HexToAddress(testUserAddr), YesAmount: big.NewInt(100), NoAmount: big.NewInt(100),
	})
	f.apply(t, f.rawLog(testVaultAddr, 20), chain.MarketFinalized{WinningPosition: 1})
	f.apply(t, f.rawLog(testVaultAddr, 21), chain.WinningsRedeemed{
		User:        common.HexToAddress(testUserAddr),
		TokenAmount: big.NewInt(20),
		USDAmount:   big.NewInt(19),
	})
	incremental := f.market(t)

	res, err := newReplayer(f, nil).RecomputeMarket(context.Background(), testConditionID)
	require.NoError(t, err)
	assert.False(t, res.Drift)

	replayed := f.market(t)
	assert.Zero(t, incremental.MatchedTokens.Cmp(replayed.MatchedTokens))
	assert.Zero(t, incremental.UnmatchedYes.Cmp(replayed.UnmatchedYes))
	assert.Zero(t, incremental.UnmatchedNo.Cmp(replayed.UnmatchedNo))
}

func TestReplayer_LockHeldSurfaces(t *testing.T) {
	f := newRouterFixture()
	seedHistory(t, f)

	locks := newMemLockManager()
	_, err := locks.Acquire(context.Background(), "recompute:"+testConditionID, replayLockTTL)
	require.NoError(t, err)

	_, err = newReplayer(f, locks).RecomputeMarket(context.Background(), testConditionID)
	require.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestReplayer_LockReleasedAfterRecompute(t *testing.T) {
	f := newRouterFixture()
	seedHistory(t, f)
	locks := newMemLockManager()
	rp := newReplayer(f, locks)

	_, err := rp.RecomputeMarket(context.Background(), testConditionID)
	require.NoError(t, err)

	// A second run must be able to take the lock again.
	_, err = rp.RecomputeMarket(context.Background(), testConditionID)
	require.NoError(t, err)
}

func TestReplayer_RecomputeAll(t *testing.T) {
	f := newRouterFixture()
	seedHistory(t, f)

	const otherCondition = "0x6666666666666666666666666666666666666666666666666666666666666666"
	const otherVault = "0x7777777777777777777777777777777777777777"
	f.apply(t, f.rawLog("0x9999999999999999999999999999999999999999", 30), chain.VaultCreated{
		ConditionID: common.HexToHash(otherCondition),
		Vault:       common.HexToAddress(otherVault),
		Creator:     common.HexToAddress(testUserAddr),
	})
	f.apply(t, f.rawLog(otherVault, 31), chain.TokensDeposited{
		User: common.HexToAddress(testOtherUser), YesAmount: big.NewInt(10), NoAmount: big.NewInt(10),
	})

	results, err := newReplayer(f, newMemLockManager()).RecomputeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.Drift, "market %s drifted", res.ConditionID)
	}
}
