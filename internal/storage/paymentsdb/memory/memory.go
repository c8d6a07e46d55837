// Package memory provides an in-memory paymentsdb.Store used by tests
// and by single-process runs that need no durability. Every
// transaction runs under one store-wide lock, which trivially
// satisfies the row-locking contract of the interface; lock modes are
// accepted and ignored.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

type offerKey struct {
	payeeID int64
	offerID int64
}

type orderKey struct {
	payeeID     int64
	offerID     int64
	payerID     int64
	payerSeqnum int32
}

type requestKey struct {
	payeeID   int64
	requestID int64
}

type proofKey struct {
	payeeID int64
	proofID int64
}

type tables struct {
	offers      map[offerKey]*paymentsdb.Offer
	orders      map[orderKey]*paymentsdb.PaymentOrder
	ordersByReq map[requestKey]orderKey
	proofs      map[proofKey]*paymentsdb.PaymentProof
	signals     []*paymentsdb.OutboundSignal
}

func newTables() *tables {
	return &tables{
		offers:      make(map[offerKey]*paymentsdb.Offer),
		orders:      make(map[orderKey]*paymentsdb.PaymentOrder),
		ordersByReq: make(map[requestKey]orderKey),
		proofs:      make(map[proofKey]*paymentsdb.PaymentProof),
	}
}

func (t *tables) clone() *tables {
	c := &tables{
		offers:      make(map[offerKey]*paymentsdb.Offer, len(t.offers)),
		orders:      make(map[orderKey]*paymentsdb.PaymentOrder, len(t.orders)),
		ordersByReq: make(map[requestKey]orderKey, len(t.ordersByReq)),
		proofs:      make(map[proofKey]*paymentsdb.PaymentProof, len(t.proofs)),
		signals:     make([]*paymentsdb.OutboundSignal, len(t.signals)),
	}
	for k, v := range t.offers {
		c.offers[k] = cloneOffer(v)
	}
	for k, v := range t.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range t.ordersByReq {
		c.ordersByReq[k] = v
	}
	for k, v := range t.proofs {
		c.proofs[k] = cloneProof(v)
	}
	for i, v := range t.signals {
		c.signals[i] = cloneSignal(v)
	}
	return c
}

// Store is the in-memory implementation of paymentsdb.Store.
type Store struct {
	mu     sync.Mutex
	closed bool

	// The serial counters live outside transaction snapshots: like
	// database sequences, they never roll back.
	nextOfferID   int64
	nextProofID   int64
	nextSignalID  int64
	nextRequestID int64

	tables *tables
}

var _ paymentsdb.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tables: newTables()}
}

// guard serializes access for non-transactional calls; transactional
// calls already hold the store lock.
func (s *Store) guard(inTx bool) (func(), error) {
	if inTx {
		return func() {}, nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, paymentsdb.ErrStoreClosed
	}
	return s.mu.Unlock, nil
}

// Offers implements paymentsdb.Store.
func (s *Store) Offers() paymentsdb.OfferRepository { return &offerRepository{store: s} }

// Orders implements paymentsdb.Store.
func (s *Store) Orders() paymentsdb.OrderRepository { return &orderRepository{store: s} }

// Proofs implements paymentsdb.Store.
func (s *Store) Proofs() paymentsdb.ProofRepository { return &proofRepository{store: s} }

// Signals implements paymentsdb.Store.
func (s *Store) Signals() paymentsdb.SignalRepository { return &signalRepository{store: s} }

// WithTransaction implements paymentsdb.Store. The whole state is
// snapshotted at the start and restored when fn fails or panics.
func (s *Store) WithTransaction(ctx context.Context, fn func(paymentsdb.TransactionContext) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return paymentsdb.ErrStoreClosed
	}

	snapshot := s.tables.clone()
	tx := &transactionContext{store: s}

	defer func() {
		if p := recover(); p != nil {
			s.tables = snapshot
			panic(p)
		}
	}()

	if err := fn(tx); err != nil || tx.rolledBack {
		s.tables = snapshot
		tx.done = true
		return err
	}
	tx.done = true
	return nil
}

// Ping implements paymentsdb.Store.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return paymentsdb.ErrStoreClosed
	}
	return nil
}

// Close implements paymentsdb.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type transactionContext struct {
	store      *Store
	done       bool
	rolledBack bool
}

func (t *transactionContext) Offers() paymentsdb.OfferRepository {
	return &offerRepository{store: t.store, inTx: true}
}

func (t *transactionContext) Orders() paymentsdb.OrderRepository {
	return &orderRepository{store: t.store, inTx: true}
}

func (t *transactionContext) Proofs() paymentsdb.ProofRepository {
	return &proofRepository{store: t.store, inTx: true}
}

func (t *transactionContext) Signals() paymentsdb.SignalRepository {
	return &signalRepository{store: t.store, inTx: true}
}

func (t *transactionContext) NextCoordinatorRequestID(ctx context.Context) (int64, error) {
	if t.done {
		return 0, paymentsdb.ErrTransactionClosed
	}
	t.store.nextRequestID++
	return t.store.nextRequestID, nil
}

func (t *transactionContext) Commit() error {
	if t.done {
		return paymentsdb.ErrTransactionClosed
	}
	t.done = true
	return nil
}

func (t *transactionContext) Rollback() error {
	if t.done {
		return paymentsdb.ErrTransactionClosed
	}
	t.done = true
	t.rolledBack = true
	return nil
}

type offerRepository struct {
	store *Store
	inTx  bool
}

func (r *offerRepository) Create(ctx context.Context, offer *paymentsdb.Offer) error {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return err
	}
	defer release()

	r.store.nextOfferID++
	offer.OfferID = r.store.nextOfferID
	r.store.tables.offers[offerKey{offer.PayeeID, offer.OfferID}] = cloneOffer(offer)
	return nil
}

func (r *offerRepository) Get(ctx context.Context, payeeID, offerID int64, _ paymentsdb.LockMode) (*paymentsdb.Offer, error) {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return nil, err
	}
	defer release()
	return cloneOffer(r.store.tables.offers[offerKey{payeeID, offerID}]), nil
}

func (r *offerRepository) Delete(ctx context.Context, payeeID, offerID int64) error {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return err
	}
	defer release()
	delete(r.store.tables.offers, offerKey{payeeID, offerID})
	return nil
}

type orderRepository struct {
	store *Store
	inTx  bool
}

func (r *orderRepository) Create(ctx context.Context, order *paymentsdb.PaymentOrder) error {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return err
	}
	defer release()

	t := r.store.tables
	key := orderKey{order.PayeeID, order.OfferID, order.PayerID, order.PayerSeqnum}
	reqKey := requestKey{order.PayeeID, order.CoordinatorRequestID}
	if _, exists := t.orders[key]; exists {
		return paymentsdb.NewDuplicateOrderError("orders.create", nil)
	}
	if _, exists := t.ordersByReq[reqKey]; exists {
		return paymentsdb.NewDuplicateOrderError("orders.create", nil)
	}
	t.orders[key] = cloneOrder(order)
	t.ordersByReq[reqKey] = key
	return nil
}

func (r *orderRepository) Get(ctx context.Context, payeeID, offerID, payerID int64, payerSeqnum int32, _ paymentsdb.LockMode) (*paymentsdb.PaymentOrder, error) {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return nil, err
	}
	defer release()
	return cloneOrder(r.store.tables.orders[orderKey{payeeID, offerID, payerID, payerSeqnum}]), nil
}

func (r *orderRepository) GetByRequestID(ctx context.Context, payeeID, coordinatorRequestID int64, _ paymentsdb.LockMode) (*paymentsdb.PaymentOrder, error) {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return nil, err
	}
	defer release()

	t := r.store.tables
	key, ok := t.ordersByReq[requestKey{payeeID, coordinatorRequestID}]
	if !ok {
		return nil, nil
	}
	return cloneOrder(t.orders[key]), nil
}

func (r *orderRepository) ListLiveByOffer(ctx context.Context, payeeID, offerID int64, _ paymentsdb.LockMode) ([]*paymentsdb.PaymentOrder, error) {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return nil, err
	}
	defer release()

	var live []*paymentsdb.PaymentOrder
	for _, order := range r.store.tables.orders {
		if order.PayeeID == payeeID && order.OfferID == offerID && !order.Finalized() {
			live = append(live, cloneOrder(order))
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].CoordinatorRequestID < live[j].CoordinatorRequestID
	})
	return live, nil
}

func (r *orderRepository) Update(ctx context.Context, order *paymentsdb.PaymentOrder) error {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return err
	}
	defer release()

	t := r.store.tables
	key := orderKey{order.PayeeID, order.OfferID, order.PayerID, order.PayerSeqnum}
	if _, exists := t.orders[key]; !exists {
		return paymentsdb.NewQueryError("orders.update", "no such payment order", nil)
	}
	t.orders[key] = cloneOrder(order)
	return nil
}

func (r *orderRepository) DeleteFinalizedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return 0, err
	}
	defer release()

	t := r.store.tables
	var deleted int64
	for key, order := range t.orders {
		if order.Finalized() && !order.FinalizedAt.After(cutoff) {
			delete(t.orders, key)
			delete(t.ordersByReq, requestKey{order.PayeeID, order.CoordinatorRequestID})
			deleted++
		}
	}
	return deleted, nil
}

type proofRepository struct {
	store *Store
	inTx  bool
}

func (r *proofRepository) Create(ctx context.Context, proof *paymentsdb.PaymentProof) error {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return err
	}
	defer release()

	r.store.nextProofID++
	proof.ProofID = r.store.nextProofID
	r.store.tables.proofs[proofKey{proof.PayeeID, proof.ProofID}] = cloneProof(proof)
	return nil
}

func (r *proofRepository) Get(ctx context.Context, payeeID, proofID int64) (*paymentsdb.PaymentProof, error) {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return nil, err
	}
	defer release()
	return cloneProof(r.store.tables.proofs[proofKey{payeeID, proofID}]), nil
}

func (r *proofRepository) DeletePaidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return 0, err
	}
	defer release()

	t := r.store.tables
	var deleted int64
	for key, proof := range t.proofs {
		if !proof.PaidAt.After(cutoff) {
			delete(t.proofs, key)
			deleted++
		}
	}
	return deleted, nil
}

type signalRepository struct {
	store *Store
	inTx  bool
}

func (r *signalRepository) Insert(ctx context.Context, signal *paymentsdb.OutboundSignal) error {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return err
	}
	defer release()

	r.store.nextSignalID++
	signal.SignalID = r.store.nextSignalID
	r.store.tables.signals = append(r.store.tables.signals, cloneSignal(signal))
	return nil
}

func (r *signalRepository) ListPending(ctx context.Context, limit int) ([]*paymentsdb.OutboundSignal, error) {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return nil, err
	}
	defer release()

	pending := r.store.tables.signals
	if limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}
	out := make([]*paymentsdb.OutboundSignal, len(pending))
	for i, signal := range pending {
		out[i] = cloneSignal(signal)
	}
	return out, nil
}

func (r *signalRepository) Delete(ctx context.Context, signalIDs []int64) error {
	release, err := r.store.guard(r.inTx)
	if err != nil {
		return err
	}
	defer release()

	drop := make(map[int64]bool, len(signalIDs))
	for _, id := range signalIDs {
		drop[id] = true
	}
	t := r.store.tables
	kept := t.signals[:0]
	for _, signal := range t.signals {
		if !drop[signal.SignalID] {
			kept = append(kept, signal)
		}
	}
	t.signals = kept
	return nil
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneOffer(o *paymentsdb.Offer) *paymentsdb.Offer {
	if o == nil {
		return nil
	}
	c := *o
	c.OfferSecret = append([]byte(nil), o.OfferSecret...)
	c.DebtorIDs = append([]int64(nil), o.DebtorIDs...)
	c.DebtorAmounts = append([]int64(nil), o.DebtorAmounts...)
	c.Description = append(json.RawMessage(nil), o.Description...)
	c.ReciprocalDebtorID = cloneInt64(o.ReciprocalDebtorID)
	return &c
}

func cloneOrder(o *paymentsdb.PaymentOrder) *paymentsdb.PaymentOrder {
	if o == nil {
		return nil
	}
	c := *o
	c.ReciprocalDebtorID = cloneInt64(o.ReciprocalDebtorID)
	c.PayerNote = append(json.RawMessage(nil), o.PayerNote...)
	c.ProofSecret = append([]byte(nil), o.ProofSecret...)
	c.PaymentTransferID = cloneInt64(o.PaymentTransferID)
	c.ReciprocalTransferID = cloneInt64(o.ReciprocalTransferID)
	c.FinalizedAt = cloneTime(o.FinalizedAt)
	return &c
}

func cloneProof(p *paymentsdb.PaymentProof) *paymentsdb.PaymentProof {
	if p == nil {
		return nil
	}
	c := *p
	c.ProofSecret = append([]byte(nil), p.ProofSecret...)
	c.PayerNote = append(json.RawMessage(nil), p.PayerNote...)
	c.ReciprocalDebtorID = cloneInt64(p.ReciprocalDebtorID)
	c.OfferDescription = append(json.RawMessage(nil), p.OfferDescription...)
	return &c
}

func cloneSignal(s *paymentsdb.OutboundSignal) *paymentsdb.OutboundSignal {
	if s == nil {
		return nil
	}
	c := *s
	c.Payload = append(json.RawMessage(nil), s.Payload...)
	return &c
}
