package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/infestor/internal/chain"
)

func TestClaimAccountBroadcastsWhenAffordable(t *testing.T) {
	node := newFakeChain(4, 10)
	env := newTestEnv(t, node)

	var estimated *ClaimResult
	res, err := env.ClaimAccount(context.Background(), ClaimRequest{
		OnEstimate: func(r *ClaimResult) { estimated = r },
	})
	require.NoError(t, err)

	assert.Equal(t, ClaimOutcomeClaimed, res.Outcome)
	assert.Equal(t, int64(4), res.PendingBefore)
	assert.Equal(t, int64(5), res.PendingAfter)
	assert.InDelta(t, 10.0, res.ManaMM, 0.0001)
	assert.InDelta(t, 3.0, res.CostMM, 0.0001)
	assert.Equal(t, int64(3), res.Claimable)
	require.NotNil(t, estimated)

	require.Equal(t, 1, node.broadcastCount())
	op, ok := node.broadcasts[0].(*chain.ClaimAccountOperation)
	require.True(t, ok)
	assert.Equal(t, testCreator, op.Creator)
	assert.Equal(t, "0.000 STEEM", op.Fee.String())
	assert.Equal(t, testActiveKey, node.wifs[0])
}

func TestClaimAccountAbortsOnInsufficientMana(t *testing.T) {
	node := newFakeChain(4, 10)
	node.costs["claim_account"] = 12_000_000
	env := newTestEnv(t, node)
	env.ActiveKey = failingSource(t)

	res, err := env.ClaimAccount(context.Background(), ClaimRequest{})
	require.ErrorIs(t, err, ErrInsufficientMana)
	assert.Equal(t, ClaimOutcomeInsufficientRC, res.Outcome)
	assert.Equal(t, int64(0), res.Claimable)
	assert.Equal(t, 0, node.broadcastCount())
}

func TestClaimAccountRespectsMinimumRC(t *testing.T) {
	node := newFakeChain(4, 20)
	env := newTestEnv(t, node)
	env.ActiveKey = failingSource(t)

	res, err := env.ClaimAccount(context.Background(), ClaimRequest{MinimumRCPercent: 50})
	require.ErrorIs(t, err, ErrBelowMinimumRC)
	assert.Equal(t, ClaimOutcomeBelowMinimumRC, res.Outcome)
	assert.Equal(t, 0, node.broadcastCount())
}

func TestClaimAccountMinimumRCMet(t *testing.T) {
	node := newFakeChain(0, 60)
	env := newTestEnv(t, node)

	res, err := env.ClaimAccount(context.Background(), ClaimRequest{MinimumRCPercent: 50})
	require.NoError(t, err)
	assert.Equal(t, ClaimOutcomeClaimed, res.Outcome)
	assert.Equal(t, int64(1), res.PendingAfter)
}

func TestClaimAccountBroadcastFailure(t *testing.T) {
	node := newFakeChain(4, 10)
	node.broadcastErr = errors.New("node unavailable")
	env := newTestEnv(t, node)

	res, err := env.ClaimAccount(context.Background(), ClaimRequest{})
	require.ErrorIs(t, err, ErrBroadcast)
	assert.Empty(t, res.Outcome)
	assert.Equal(t, int64(0), res.PendingAfter)
}

func TestClaimAccountUnknownCreator(t *testing.T) {
	node := newFakeChain(4, 10)
	env := newTestEnv(t, node)
	env.Creator = "nobody"

	_, err := env.ClaimAccount(context.Background(), ClaimRequest{})
	require.ErrorIs(t, err, chain.ErrAccountNotFound)
}
