// Package paymentsdb defines the durable store behind the payments
// coordinator: formal offers, payment orders, payment proofs and the
// outbound signal log, together with the transaction and row-locking
// primitives the coordinator relies on.
package paymentsdb

import (
	"context"
	"encoding/json"
	"time"
)

// LockMode selects the row-level lock taken when reading inside a
// transaction.
type LockMode int

const (
	// LockNone reads without locking.
	LockNone LockMode = iota
	// LockShared blocks concurrent exclusive lockers (FOR SHARE).
	LockShared
	// LockExclusive blocks all concurrent lockers (FOR UPDATE).
	LockExclusive
)

// Offer is a published formal offer: the payee's promise to deliver
// something if paid one of the announced amounts through the matching
// announced debtor before the offer expires. DebtorIDs and
// DebtorAmounts have equal length and pair up by position.
//
// Exactly one of Description and ReciprocalDebtorID is set. When
// ReciprocalDebtorID is set the offer is a swap: paying it obligates
// the payee to transfer ReciprocalAmount back to the payer through
// that debtor.
type Offer struct {
	PayeeID            int64
	OfferID            int64
	OfferSecret        []byte
	DebtorIDs          []int64
	DebtorAmounts      []int64
	ValidUntil         time.Time
	Description        json.RawMessage
	ReciprocalDebtorID *int64
	ReciprocalAmount   int64
	CreatedAt          time.Time
}

// IsSwap reports whether paying the offer obligates a reciprocal
// transfer from the payee back to the payer.
func (o *Offer) IsSwap() bool { return o.ReciprocalDebtorID != nil }

// PaymentOrder tracks one payer's attempt to pay an offer. The row is
// immutable except for the two transfer-id slots, FinalizedAt, and the
// clearing of PayerNote and ProofSecret at finalization.
//
// CoordinatorRequestID is strictly positive and unique per payee; the
// primary transfer leg is requested under +CoordinatorRequestID and
// the reciprocal leg under -CoordinatorRequestID.
type PaymentOrder struct {
	PayeeID              int64
	OfferID              int64
	PayerID              int64
	PayerSeqnum          int32
	CoordinatorRequestID int64
	DebtorID             int64
	Amount               int64
	ReciprocalDebtorID   *int64
	ReciprocalAmount     int64
	PayerNote            json.RawMessage
	ProofSecret          []byte
	PaymentTransferID    *int64
	ReciprocalTransferID *int64
	FinalizedAt          *time.Time
}

// Finalized reports whether the order has reached a terminal state.
func (o *PaymentOrder) Finalized() bool { return o.FinalizedAt != nil }

// PaymentProof is the permanent record of a successfully paid offer,
// carrying a snapshot of the offer fields that the offer's deletion
// would otherwise lose.
type PaymentProof struct {
	PayeeID            int64
	ProofID            int64
	ProofSecret        []byte
	PayerID            int64
	DebtorID           int64
	Amount             int64
	PayerNote          json.RawMessage
	ReciprocalDebtorID *int64
	ReciprocalAmount   int64
	PaidAt             time.Time
	OfferID            int64
	OfferCreatedAt     time.Time
	OfferDescription   json.RawMessage
}

// OutboundSignal is one row of the outbound signal log. Rows are
// inserted in the same transaction as the state change that produced
// them, and deleted by the relay after the broker confirms the
// publish. MessageID is a UUID stamped at insertion time so that
// consumers can deduplicate redeliveries.
type OutboundSignal struct {
	SignalID   int64
	MessageID  string
	SignalType string
	PayeeID    int64
	Payload    json.RawMessage
	InsertedAt time.Time
}

// OfferRepository stores formal offers.
type OfferRepository interface {
	// Create inserts the offer and fills in the store-assigned OfferID.
	Create(ctx context.Context, offer *Offer) error

	// Get returns the offer, or nil when no such row exists.
	Get(ctx context.Context, payeeID, offerID int64, lock LockMode) (*Offer, error)

	// Delete removes the offer. Deleting an absent offer is not an error.
	Delete(ctx context.Context, payeeID, offerID int64) error
}

// OrderRepository stores payment orders.
type OrderRepository interface {
	// Create inserts the order. A row with the same
	// (payee, offer, payer, seqnum) key, or the same
	// (payee, coordinator request id) pair, yields ErrDuplicateOrder.
	Create(ctx context.Context, order *PaymentOrder) error

	// Get returns the order with the given natural key, or nil.
	Get(ctx context.Context, payeeID, offerID, payerID int64, payerSeqnum int32, lock LockMode) (*PaymentOrder, error)

	// GetByRequestID returns the order holding the given coordinator
	// request id (always the positive form), or nil.
	GetByRequestID(ctx context.Context, payeeID, coordinatorRequestID int64, lock LockMode) (*PaymentOrder, error)

	// ListLiveByOffer returns the offer's non-finalized orders.
	ListLiveByOffer(ctx context.Context, payeeID, offerID int64, lock LockMode) ([]*PaymentOrder, error)

	// Update rewrites the mutable columns of an existing order.
	Update(ctx context.Context, order *PaymentOrder) error

	// DeleteFinalizedBefore removes orders finalized at or before the
	// cutoff and reports how many rows went away.
	DeleteFinalizedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProofRepository stores payment proofs.
type ProofRepository interface {
	// Create inserts the proof and fills in the store-assigned ProofID.
	Create(ctx context.Context, proof *PaymentProof) error

	// Get returns the proof, or nil when no such row exists.
	Get(ctx context.Context, payeeID, proofID int64) (*PaymentProof, error)

	// DeletePaidBefore removes proofs paid at or before the cutoff and
	// reports how many rows went away.
	DeletePaidBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SignalRepository stores the outbound signal log.
type SignalRepository interface {
	// Insert appends a signal and fills in the store-assigned SignalID.
	Insert(ctx context.Context, signal *OutboundSignal) error

	// ListPending returns up to limit signals in insertion order.
	ListPending(ctx context.Context, limit int) ([]*OutboundSignal, error)

	// Delete removes the signals with the given ids.
	Delete(ctx context.Context, signalIDs []int64) error
}

// TransactionContext gives repository access bound to a single store
// transaction. Reads taken with LockShared or LockExclusive hold their
// locks until the transaction ends.
type TransactionContext interface {
	Offers() OfferRepository
	Orders() OrderRepository
	Proofs() ProofRepository
	Signals() SignalRepository

	// NextCoordinatorRequestID draws the next value from the store's
	// coordinator request id sequence. Values are strictly positive
	// and never reused, even across rolled-back transactions.
	NextCoordinatorRequestID(ctx context.Context) (int64, error)

	Commit() error
	Rollback() error
}

// Store manages access to the repositories and transactions. The
// repository accessors on the store itself run outside any
// transaction and ignore lock modes; state-changing logic must go
// through WithTransaction.
type Store interface {
	Offers() OfferRepository
	Orders() OrderRepository
	Proofs() ProofRepository
	Signals() SignalRepository

	// WithTransaction runs fn inside a transaction, committing when fn
	// returns nil and rolling back when it returns an error or panics.
	WithTransaction(ctx context.Context, fn func(TransactionContext) error) error

	Ping(ctx context.Context) error
	Close() error
}
