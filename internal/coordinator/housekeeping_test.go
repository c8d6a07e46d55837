package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swptgo/paycoord/internal/signals"
)

func TestFlushPaymentOrders(t *testing.T) {
	env := newTestEnv(t)
	offer := env.simpleOffer()

	// Finalize one order now, keep another one live.
	env.makeOrder(offer, 2, 1, -1, 1000)
	env.makeOrder(offer, 3, 1, -2, 2000)

	requests := env.signalsOfType(signals.TypePrepareTransfer)
	require.Len(t, requests, 2)
	require.NoError(t, env.prepare(env.lastPrepareRequest(), 333))

	// The winner is finalized successful; the competitor is finalized
	// as failed. Both carry today's finalization time.
	env.clock.Advance(10 * 24 * time.Hour)

	// A cutoff before the finalization deletes nothing.
	deleted, err := env.coord.FlushPaymentOrders(env.ctx, env.clock.Now().Add(-20*24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, deleted)

	deleted, err = env.coord.FlushPaymentOrders(env.ctx, env.clock.Now())
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	require.Nil(t, env.getOrder(offer, 2, 1))
	require.Nil(t, env.getOrder(offer, 3, 1))
}

func TestFlushPaymentOrdersKeepsLiveOrders(t *testing.T) {
	env := newTestEnv(t)
	offer := env.simpleOffer()
	env.makeOrder(offer, 2, 1, -1, 1000)

	env.clock.Advance(365 * 24 * time.Hour)
	deleted, err := env.coord.FlushPaymentOrders(env.ctx, env.clock.Now())
	require.NoError(t, err)
	require.Zero(t, deleted)

	require.NotNil(t, env.getOrder(offer, 2, 1))
}

func TestFlushPaymentOrdersCutoffIsInclusive(t *testing.T) {
	env := newTestEnv(t)
	offer := env.simpleOffer()
	env.makeOrder(offer, 2, 1, -1, 1000)
	require.NoError(t, env.prepare(env.lastPrepareRequest(), 333))

	order := env.getOrder(offer, 2, 1)
	require.True(t, order.Finalized())

	// Just before the finalization time nothing goes.
	deleted, err := env.coord.FlushPaymentOrders(env.ctx, order.FinalizedAt.Add(-time.Nanosecond))
	require.NoError(t, err)
	require.Zero(t, deleted)

	// A cutoff exactly equal to finalized_at deletes the order.
	deleted, err = env.coord.FlushPaymentOrders(env.ctx, *order.FinalizedAt)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}

func TestFlushPaymentProofsCutoffIsInclusive(t *testing.T) {
	env := newTestEnv(t)
	offer := env.simpleOffer()
	env.makeOrder(offer, 2, 1, -1, 1000)
	require.NoError(t, env.prepare(env.lastPrepareRequest(), 333))

	successes := env.signalsOfType(signals.TypeSuccessfulPayment)
	require.Len(t, successes, 1)
	var success signals.SuccessfulPayment
	env.decodeSignal(successes[0], &success)

	proof, err := env.store.Proofs().Get(env.ctx, offer.PayeeID, success.ProofID)
	require.NoError(t, err)
	require.NotNil(t, proof)

	deleted, err := env.coord.FlushPaymentProofs(env.ctx, proof.PaidAt.Add(-time.Nanosecond))
	require.NoError(t, err)
	require.Zero(t, deleted)

	// A cutoff exactly equal to paid_at deletes the proof.
	deleted, err = env.coord.FlushPaymentProofs(env.ctx, proof.PaidAt)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}

func TestFlushPaymentProofs(t *testing.T) {
	env := newTestEnv(t)

	offer := env.simpleOffer()
	env.makeOrder(offer, 2, 1, -1, 1000)
	require.NoError(t, env.prepare(env.lastPrepareRequest(), 333))

	env.clock.Advance(100 * 24 * time.Hour)

	other := env.simpleOffer()
	env.makeOrder(other, 2, 1, -1, 1000)
	require.NoError(t, env.prepare(env.lastPrepareRequest(), 444))

	// Only the old proof falls before the cutoff.
	deleted, err := env.coord.FlushPaymentProofs(env.ctx, env.clock.Now().Add(-50*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	deleted, err = env.coord.FlushPaymentProofs(env.ctx, env.clock.Now().Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}
