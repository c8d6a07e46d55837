package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// ProofRepository implements the ProofRepository interface for PostgreSQL
type ProofRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewProofRepository creates a new PostgreSQL proof repository
func NewProofRepository(db *sql.DB) *ProofRepository {
	return &ProofRepository{db: db}
}

// NewProofRepositoryWithTx creates a new PostgreSQL proof repository within a transaction
func NewProofRepositoryWithTx(tx *sql.Tx) *ProofRepository {
	return &ProofRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *ProofRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *ProofRepository) Create(ctx context.Context, proof *paymentsdb.PaymentProof) error {
	query := `INSERT INTO payment_proofs
		(payee_id, proof_secret, payer_id, debtor_id, amount, payer_note,
		 reciprocal_debtor_id, reciprocal_amount, paid_at, offer_id,
		 offer_created_at, offer_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING proof_id`

	err := r.getExecutor().QueryRowContext(ctx, query,
		proof.PayeeID, proof.ProofSecret, proof.PayerID, proof.DebtorID,
		proof.Amount, nullJSON(proof.PayerNote),
		nullInt64(proof.ReciprocalDebtorID), proof.ReciprocalAmount,
		proof.PaidAt, proof.OfferID, proof.OfferCreatedAt,
		nullJSON(proof.OfferDescription),
	).Scan(&proof.ProofID)
	if err != nil {
		return paymentsdb.NewQueryError("proofs.create", "failed to insert payment proof", err)
	}
	return nil
}

func (r *ProofRepository) Get(ctx context.Context, payeeID, proofID int64) (*paymentsdb.PaymentProof, error) {
	query := `SELECT payee_id, proof_id, proof_secret, payer_id, debtor_id, amount,
		payer_note, reciprocal_debtor_id, reciprocal_amount, paid_at,
		offer_id, offer_created_at, offer_description
		FROM payment_proofs WHERE payee_id = $1 AND proof_id = $2`

	var proof paymentsdb.PaymentProof
	var payerNote, offerDescription []byte
	var reciprocalDebtorID sql.NullInt64

	err := r.getExecutor().QueryRowContext(ctx, query, payeeID, proofID).Scan(
		&proof.PayeeID, &proof.ProofID, &proof.ProofSecret, &proof.PayerID,
		&proof.DebtorID, &proof.Amount, &payerNote, &reciprocalDebtorID,
		&proof.ReciprocalAmount, &proof.PaidAt, &proof.OfferID,
		&proof.OfferCreatedAt, &offerDescription)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, paymentsdb.NewQueryError("proofs.get", "failed to query payment proof", err)
	}

	proof.PayerNote = jsonValue(payerNote)
	proof.ReciprocalDebtorID = int64Ptr(reciprocalDebtorID)
	proof.OfferDescription = jsonValue(offerDescription)
	proof.PaidAt = proof.PaidAt.UTC()
	proof.OfferCreatedAt = proof.OfferCreatedAt.UTC()
	return &proof, nil
}

func (r *ProofRepository) DeletePaidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM payment_proofs WHERE paid_at <= $1`

	result, err := r.getExecutor().ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, paymentsdb.NewQueryError("proofs.delete_paid_before", "failed to delete payment proofs", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, paymentsdb.NewQueryError("proofs.delete_paid_before", "failed to read affected rows", err)
	}
	return deleted, nil
}
