package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swptgo/paycoord/internal/signals"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb/memory"
)

// manualClock is a controllable clock for time-dependent tests.
type manualClock struct {
	mu      sync.Mutex
	current time.Time
}

func newManualClock() *manualClock {
	return &manualClock{current: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// testEnv bundles a coordinator over a fresh in-memory store, with a
// manual clock and a deterministic secret source.
type testEnv struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	clock *manualClock
	coord *Coordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newManualClock()
	store := memory.New()
	coord := New(store, zap.NewNop(),
		WithClock(clock.Now),
		WithSecretSource(func(n int) ([]byte, error) {
			secret := make([]byte, n)
			for i := range secret {
				secret[i] = byte(i + 1)
			}
			return secret, nil
		}))
	return &testEnv{
		t:     t,
		ctx:   context.Background(),
		store: store,
		clock: clock,
		coord: coord,
	}
}

// signalsOfType returns the pending outbound signals with the given
// type, in insertion order.
func (env *testEnv) signalsOfType(signalType string) []*paymentsdb.OutboundSignal {
	env.t.Helper()
	pending, err := env.store.Signals().ListPending(env.ctx, 1000)
	require.NoError(env.t, err)

	var matching []*paymentsdb.OutboundSignal
	for _, signal := range pending {
		if signal.SignalType == signalType {
			matching = append(matching, signal)
		}
	}
	return matching
}

// decodeSignal unmarshals an outbound signal payload into v.
func (env *testEnv) decodeSignal(signal *paymentsdb.OutboundSignal, v any) {
	env.t.Helper()
	require.NoError(env.t, json.Unmarshal(signal.Payload, v))
}

// drainSignals deletes every pending outbound signal, so later
// assertions see only what the next operations emit.
func (env *testEnv) drainSignals() {
	env.t.Helper()
	pending, err := env.store.Signals().ListPending(env.ctx, 1000)
	require.NoError(env.t, err)
	ids := make([]int64, len(pending))
	for i, signal := range pending {
		ids[i] = signal.SignalID
	}
	require.NoError(env.t, env.store.Signals().Delete(env.ctx, ids))
}

// createOffer registers an offer with the given routes and returns it.
func (env *testEnv) createOffer(payeeID int64, debtorIDs, debtorAmounts []int64, validUntil time.Time, description json.RawMessage, reciprocalDebtorID *int64, reciprocalAmount int64) *paymentsdb.Offer {
	env.t.Helper()
	offer, err := env.coord.CreateOffer(env.ctx, CreateOfferArgs{
		PayeeID:            payeeID,
		AnnouncementID:     4567,
		DebtorIDs:          debtorIDs,
		DebtorAmounts:      debtorAmounts,
		ValidUntil:         validUntil,
		Description:        description,
		ReciprocalDebtorID: reciprocalDebtorID,
		ReciprocalAmount:   reciprocalAmount,
	})
	require.NoError(env.t, err)
	require.NotZero(env.t, offer.OfferID)
	return offer
}

// simpleOffer registers a plain two-route offer for payee 1.
func (env *testEnv) simpleOffer() *paymentsdb.Offer {
	env.t.Helper()
	return env.createOffer(1,
		[]int64{-1, -2}, []int64{1000, 2000},
		time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		json.RawMessage(`{"m":"t"}`), nil, 0)
}

// swapOffer registers a reciprocal (swap) offer for payee 1.
func (env *testEnv) swapOffer() *paymentsdb.Offer {
	env.t.Helper()
	reciprocalDebtor := int64(-3)
	return env.createOffer(1,
		[]int64{-1, -2}, []int64{1000, 2000},
		time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		nil, &reciprocalDebtor, 500)
}

// makeOrder places a payment order against the offer and returns the
// stored row.
func (env *testEnv) makeOrder(offer *paymentsdb.Offer, payerID int64, payerSeqnum int32, debtorID, amount int64) *paymentsdb.PaymentOrder {
	env.t.Helper()
	err := env.coord.MakePaymentOrder(env.ctx, MakePaymentOrderArgs{
		PayeeID:     offer.PayeeID,
		OfferID:     offer.OfferID,
		OfferSecret: offer.OfferSecret,
		PayerID:     payerID,
		PayerSeqnum: payerSeqnum,
		DebtorID:    debtorID,
		Amount:      amount,
		ProofSecret: []byte("123"),
		PayerNote:   json.RawMessage(`{"note":"thanks"}`),
	})
	require.NoError(env.t, err)
	return env.getOrder(offer, payerID, payerSeqnum)
}

func (env *testEnv) getOrder(offer *paymentsdb.Offer, payerID int64, payerSeqnum int32) *paymentsdb.PaymentOrder {
	env.t.Helper()
	order, err := env.store.Orders().Get(env.ctx, offer.PayeeID, offer.OfferID, payerID, payerSeqnum, paymentsdb.LockNone)
	require.NoError(env.t, err)
	return order
}

// prepare delivers the accounts service's prepared signal for the
// given prepare-transfer request.
func (env *testEnv) prepare(request signals.PrepareTransfer, transferID int64) error {
	env.t.Helper()
	return env.coord.OnPreparedTransfer(env.ctx, PreparedTransferArgs{
		DebtorID:             request.DebtorID,
		SenderID:             request.SenderID,
		TransferID:           transferID,
		CoordinatorType:      signals.CoordinatorType,
		CoordinatorID:        request.CoordinatorID,
		CoordinatorRequestID: request.CoordinatorRequestID,
		RecipientID:          request.RecipientID,
		SenderLockedAmount:   request.Amount,
		PreparedAt:           env.clock.Now(),
	})
}

// lastPrepareRequest returns the most recent PrepareTransfer emission.
func (env *testEnv) lastPrepareRequest() signals.PrepareTransfer {
	env.t.Helper()
	emitted := env.signalsOfType(signals.TypePrepareTransfer)
	require.NotEmpty(env.t, emitted)

	var request signals.PrepareTransfer
	env.decodeSignal(emitted[len(emitted)-1], &request)
	return request
}
