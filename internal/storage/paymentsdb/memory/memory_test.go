package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

func testOffer(payeeID int64) *paymentsdb.Offer {
	return &paymentsdb.Offer{
		PayeeID:       payeeID,
		OfferSecret:   []byte{1, 2, 3},
		DebtorIDs:     []int64{-1, -2},
		DebtorAmounts: []int64{1000, 2000},
		ValidUntil:    time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		Description:   json.RawMessage(`{"m":"t"}`),
		CreatedAt:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testOrder(payeeID, offerID, payerID int64, payerSeqnum int32, requestID int64) *paymentsdb.PaymentOrder {
	return &paymentsdb.PaymentOrder{
		PayeeID:              payeeID,
		OfferID:              offerID,
		PayerID:              payerID,
		PayerSeqnum:          payerSeqnum,
		CoordinatorRequestID: requestID,
		DebtorID:             -1,
		Amount:               1000,
		PayerNote:            json.RawMessage(`{}`),
		ProofSecret:          []byte("123"),
	}
}

func TestOfferRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()

	offer := testOffer(1)
	require.NoError(t, store.Offers().Create(ctx, offer))
	require.Equal(t, int64(1), offer.OfferID)

	found, err := store.Offers().Get(ctx, 1, offer.OfferID, paymentsdb.LockNone)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, offer.DebtorIDs, found.DebtorIDs)

	// The store hands out copies, not aliases.
	found.DebtorAmounts[0] = 9999
	again, err := store.Offers().Get(ctx, 1, offer.OfferID, paymentsdb.LockNone)
	require.NoError(t, err)
	require.Equal(t, int64(1000), again.DebtorAmounts[0])

	require.NoError(t, store.Offers().Delete(ctx, 1, offer.OfferID))
	gone, err := store.Offers().Get(ctx, 1, offer.OfferID, paymentsdb.LockNone)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestDuplicateOrderDetection(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.Orders().Create(ctx, testOrder(1, 1, 2, 1, 100)))

	// Same four-tuple.
	err := store.Orders().Create(ctx, testOrder(1, 1, 2, 1, 101))
	require.ErrorIs(t, err, paymentsdb.ErrDuplicateOrder)

	// Same coordinator request id under the same payee.
	err = store.Orders().Create(ctx, testOrder(1, 1, 3, 1, 100))
	require.ErrorIs(t, err, paymentsdb.ErrDuplicateOrder)

	// Different payee, same request id is fine.
	require.NoError(t, store.Orders().Create(ctx, testOrder(2, 1, 2, 1, 100)))
}

func TestGetByRequestID(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.Orders().Create(ctx, testOrder(1, 1, 2, 7, 100)))

	order, err := store.Orders().GetByRequestID(ctx, 1, 100, paymentsdb.LockNone)
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, int64(2), order.PayerID)
	require.Equal(t, int32(7), order.PayerSeqnum)

	order, err = store.Orders().GetByRequestID(ctx, 1, 999, paymentsdb.LockNone)
	require.NoError(t, err)
	require.Nil(t, order)
}

func TestListLiveByOfferOrdering(t *testing.T) {
	ctx := context.Background()
	store := New()

	finalized := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	done := testOrder(1, 1, 4, 1, 50)
	done.FinalizedAt = &finalized

	require.NoError(t, store.Orders().Create(ctx, testOrder(1, 1, 2, 1, 300)))
	require.NoError(t, store.Orders().Create(ctx, testOrder(1, 1, 3, 1, 100)))
	require.NoError(t, store.Orders().Create(ctx, done))
	require.NoError(t, store.Orders().Create(ctx, testOrder(2, 1, 2, 1, 100)))

	live, err := store.Orders().ListLiveByOffer(ctx, 1, 1, paymentsdb.LockNone)
	require.NoError(t, err)
	require.Len(t, live, 2)
	require.Equal(t, int64(100), live[0].CoordinatorRequestID)
	require.Equal(t, int64(300), live[1].CoordinatorRequestID)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	store := New()

	boom := errors.New("boom")
	err := store.WithTransaction(ctx, func(tx paymentsdb.TransactionContext) error {
		require.NoError(t, tx.Offers().Create(ctx, testOffer(1)))
		require.NoError(t, tx.Signals().Insert(ctx, &paymentsdb.OutboundSignal{
			MessageID:  "m1",
			SignalType: "created_offer",
			PayeeID:    1,
			Payload:    json.RawMessage(`{}`),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Neither the offer nor the signal survived.
	offer, err := store.Offers().Get(ctx, 1, 1, paymentsdb.LockNone)
	require.NoError(t, err)
	require.Nil(t, offer)

	pending, err := store.Signals().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestRequestIDSequenceDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	store := New()

	boom := errors.New("boom")
	err := store.WithTransaction(ctx, func(tx paymentsdb.TransactionContext) error {
		id, err := tx.NextCoordinatorRequestID(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), id)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.WithTransaction(ctx, func(tx paymentsdb.TransactionContext) error {
		id, err := tx.NextCoordinatorRequestID(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), id)
		return nil
	})
	require.NoError(t, err)
}

func TestSignalListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := New()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Signals().Insert(ctx, &paymentsdb.OutboundSignal{
			MessageID:  "m",
			SignalType: "created_offer",
			PayeeID:    1,
			Payload:    json.RawMessage(`{}`),
		}))
	}

	pending, err := store.Signals().ListPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, int64(1), pending[0].SignalID)
	require.Equal(t, int64(2), pending[1].SignalID)

	require.NoError(t, store.Signals().Delete(ctx, []int64{1, 2}))

	pending, err = store.Signals().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, int64(3), pending[0].SignalID)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.Close())

	require.ErrorIs(t, store.Ping(ctx), paymentsdb.ErrStoreClosed)
	require.ErrorIs(t, store.Offers().Create(ctx, testOffer(1)), paymentsdb.ErrStoreClosed)
	err := store.WithTransaction(ctx, func(paymentsdb.TransactionContext) error { return nil })
	require.ErrorIs(t, err, paymentsdb.ErrStoreClosed)
}
