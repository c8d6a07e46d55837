package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// OrderRepository implements the OrderRepository interface for PostgreSQL
type OrderRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewOrderRepository creates a new PostgreSQL order repository
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// NewOrderRepositoryWithTx creates a new PostgreSQL order repository within a transaction
func NewOrderRepositoryWithTx(tx *sql.Tx) *OrderRepository {
	return &OrderRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *OrderRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const orderColumns = `payee_id, offer_id, payer_id, payer_seqnum, coordinator_request_id,
	debtor_id, amount, reciprocal_debtor_id, reciprocal_amount, payer_note,
	proof_secret, payment_transfer_id, reciprocal_transfer_id, finalized_at`

func (r *OrderRepository) Create(ctx context.Context, order *paymentsdb.PaymentOrder) error {
	query := `INSERT INTO payment_orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.getExecutor().ExecContext(ctx, query,
		order.PayeeID, order.OfferID, order.PayerID, order.PayerSeqnum,
		order.CoordinatorRequestID, order.DebtorID, order.Amount,
		nullInt64(order.ReciprocalDebtorID), order.ReciprocalAmount,
		nullJSON(order.PayerNote), order.ProofSecret,
		nullInt64(order.PaymentTransferID), nullInt64(order.ReciprocalTransferID),
		nullTime(order.FinalizedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return paymentsdb.NewDuplicateOrderError("orders.create", err)
		}
		return paymentsdb.NewQueryError("orders.create", "failed to insert payment order", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, payeeID, offerID, payerID int64, payerSeqnum int32, lock paymentsdb.LockMode) (*paymentsdb.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders
		WHERE payee_id = $1 AND offer_id = $2 AND payer_id = $3 AND payer_seqnum = $4` +
		lockClause(lock)

	row := r.getExecutor().QueryRowContext(ctx, query, payeeID, offerID, payerID, payerSeqnum)
	order, err := scanOrder(row)
	if err != nil {
		return nil, paymentsdb.NewQueryError("orders.get", "failed to query payment order", err)
	}
	return order, nil
}

func (r *OrderRepository) GetByRequestID(ctx context.Context, payeeID, coordinatorRequestID int64, lock paymentsdb.LockMode) (*paymentsdb.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders
		WHERE payee_id = $1 AND coordinator_request_id = $2` + lockClause(lock)

	row := r.getExecutor().QueryRowContext(ctx, query, payeeID, coordinatorRequestID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, paymentsdb.NewQueryError("orders.get_by_request_id", "failed to query payment order", err)
	}
	return order, nil
}

func (r *OrderRepository) ListLiveByOffer(ctx context.Context, payeeID, offerID int64, lock paymentsdb.LockMode) ([]*paymentsdb.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders
		WHERE payee_id = $1 AND offer_id = $2 AND finalized_at IS NULL
		ORDER BY coordinator_request_id` + lockClause(lock)

	rows, err := r.getExecutor().QueryContext(ctx, query, payeeID, offerID)
	if err != nil {
		return nil, paymentsdb.NewQueryError("orders.list_live_by_offer", "failed to query live payment orders", err)
	}
	defer rows.Close()

	var orders []*paymentsdb.PaymentOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, paymentsdb.NewQueryError("orders.list_live_by_offer", "failed to scan payment order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, paymentsdb.NewQueryError("orders.list_live_by_offer", "failed to iterate payment orders", err)
	}
	return orders, nil
}

func (r *OrderRepository) Update(ctx context.Context, order *paymentsdb.PaymentOrder) error {
	query := `UPDATE payment_orders SET
		payer_note = $5, proof_secret = $6, payment_transfer_id = $7,
		reciprocal_transfer_id = $8, finalized_at = $9
		WHERE payee_id = $1 AND offer_id = $2 AND payer_id = $3 AND payer_seqnum = $4`

	result, err := r.getExecutor().ExecContext(ctx, query,
		order.PayeeID, order.OfferID, order.PayerID, order.PayerSeqnum,
		nullJSON(order.PayerNote), order.ProofSecret,
		nullInt64(order.PaymentTransferID), nullInt64(order.ReciprocalTransferID),
		nullTime(order.FinalizedAt))
	if err != nil {
		return paymentsdb.NewQueryError("orders.update", "failed to update payment order", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return paymentsdb.NewQueryError("orders.update", "failed to read affected rows", err)
	}
	if affected == 0 {
		return paymentsdb.NewQueryError("orders.update", "no such payment order", nil)
	}
	return nil
}

func (r *OrderRepository) DeleteFinalizedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM payment_orders WHERE finalized_at IS NOT NULL AND finalized_at <= $1`

	result, err := r.getExecutor().ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, paymentsdb.NewQueryError("orders.delete_finalized_before", "failed to delete payment orders", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, paymentsdb.NewQueryError("orders.delete_finalized_before", "failed to read affected rows", err)
	}
	return deleted, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*paymentsdb.PaymentOrder, error) {
	var order paymentsdb.PaymentOrder
	var reciprocalDebtorID, paymentTransferID, reciprocalTransferID sql.NullInt64
	var payerNote, proofSecret []byte
	var finalizedAt sql.NullTime

	err := row.Scan(
		&order.PayeeID, &order.OfferID, &order.PayerID, &order.PayerSeqnum,
		&order.CoordinatorRequestID, &order.DebtorID, &order.Amount,
		&reciprocalDebtorID, &order.ReciprocalAmount, &payerNote,
		&proofSecret, &paymentTransferID, &reciprocalTransferID, &finalizedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	order.ReciprocalDebtorID = int64Ptr(reciprocalDebtorID)
	order.PayerNote = jsonValue(payerNote)
	order.ProofSecret = proofSecret
	order.PaymentTransferID = int64Ptr(paymentTransferID)
	order.ReciprocalTransferID = int64Ptr(reciprocalTransferID)
	order.FinalizedAt = timePtr(finalizedAt)
	return &order, nil
}
