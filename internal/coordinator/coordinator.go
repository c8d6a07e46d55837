// Package coordinator implements the payments coordinator: the offer
// registry, the payment order engine and the transfer-signal handlers
// that drive two-phase, possibly reciprocal, transfers against the
// accounts service.
//
// Every state change runs inside one store transaction and appends its
// outbound messages to the signal log within that same transaction, so
// a state change and its announcements always land together.
package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/swptgo/paycoord/internal/secrets"
	"github.com/swptgo/paycoord/internal/signals"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// offerSecretSize is the number of random bytes in an offer secret.
const offerSecretSize = 16

// Coordinator owns every state change of offers, payment orders and
// payment proofs. Its methods are safe for concurrent use: the store's
// row locks serialize work touching the same offer.
type Coordinator struct {
	store     paymentsdb.Store
	log       *zap.Logger
	now       func() time.Time
	newSecret func(int) ([]byte, error)
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithSecretSource replaces the random secret generator.
func WithSecretSource(gen func(int) ([]byte, error)) Option {
	return func(c *Coordinator) { c.newSecret = gen }
}

// New creates a Coordinator on top of the given store.
func New(store paymentsdb.Store, log *zap.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		store:     store,
		log:       log,
		now:       time.Now,
		newSecret: secrets.Generate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// emit appends a signal to the outbound log inside tx.
func (c *Coordinator) emit(ctx context.Context, tx paymentsdb.TransactionContext, signalType string, payeeID int64, payload any) error {
	row, err := signals.NewRow(signalType, payeeID, payload, c.now().UTC())
	if err != nil {
		return err
	}
	return tx.Signals().Insert(ctx, row)
}

// emitFailedPayment appends a FailedPayment signal inside tx.
func (c *Coordinator) emitFailedPayment(ctx context.Context, tx paymentsdb.TransactionContext, payeeID, offerID, payerID int64, payerSeqnum int32, details json.RawMessage) error {
	return c.emit(ctx, tx, signals.TypeFailedPayment, payeeID, signals.FailedPayment{
		PayeeID:     payeeID,
		OfferID:     offerID,
		PayerID:     payerID,
		PayerSeqnum: payerSeqnum,
		Details:     details,
	})
}

// docPresent reports whether a raw JSON document is actually there:
// absent fields and JSON null both count as missing.
func docPresent(doc json.RawMessage) bool {
	return len(doc) > 0 && string(doc) != "null"
}
