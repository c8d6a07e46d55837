package postgres

import (
	"context"
	"database/sql"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// TransactionContext implements the TransactionContext interface for PostgreSQL
type TransactionContext struct {
	tx *sql.Tx

	// Repository instances for this transaction
	offerRepo  *OfferRepository
	orderRepo  *OrderRepository
	proofRepo  *ProofRepository
	signalRepo *SignalRepository
}

var _ paymentsdb.TransactionContext = (*TransactionContext)(nil)

// NewTransactionContext creates a new PostgreSQL transaction context
func NewTransactionContext(tx *sql.Tx) *TransactionContext {
	return &TransactionContext{
		tx:         tx,
		offerRepo:  NewOfferRepositoryWithTx(tx),
		orderRepo:  NewOrderRepositoryWithTx(tx),
		proofRepo:  NewProofRepositoryWithTx(tx),
		signalRepo: NewSignalRepositoryWithTx(tx),
	}
}

func (tc *TransactionContext) Offers() paymentsdb.OfferRepository   { return tc.offerRepo }
func (tc *TransactionContext) Orders() paymentsdb.OrderRepository   { return tc.orderRepo }
func (tc *TransactionContext) Proofs() paymentsdb.ProofRepository   { return tc.proofRepo }
func (tc *TransactionContext) Signals() paymentsdb.SignalRepository { return tc.signalRepo }

// NextCoordinatorRequestID draws the next value from the request id
// sequence. Sequences never roll back, so a value handed out here is
// burned even when the surrounding transaction aborts.
func (tc *TransactionContext) NextCoordinatorRequestID(ctx context.Context) (int64, error) {
	if tc.tx == nil {
		return 0, paymentsdb.ErrTransactionClosed
	}

	var id int64
	err := tc.tx.QueryRowContext(ctx, `SELECT nextval('coordinator_request_id_seq')`).Scan(&id)
	if err != nil {
		return 0, paymentsdb.NewQueryError("next_coordinator_request_id", "failed to draw request id", err)
	}
	return id, nil
}

func (tc *TransactionContext) Commit() error {
	if tc.tx == nil {
		return paymentsdb.ErrTransactionClosed
	}

	err := tc.tx.Commit()
	tc.tx = nil

	if err != nil {
		return paymentsdb.NewTransactionError("commit", "failed to commit transaction", err).WithCode("COMMIT_FAILED")
	}
	return nil
}

func (tc *TransactionContext) Rollback() error {
	if tc.tx == nil {
		return nil // Already rolled back or committed
	}

	err := tc.tx.Rollback()
	tc.tx = nil

	if err != nil {
		return paymentsdb.NewTransactionError("rollback", "failed to rollback transaction", err)
	}
	return nil
}
