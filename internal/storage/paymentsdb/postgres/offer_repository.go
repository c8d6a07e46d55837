package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// OfferRepository implements the OfferRepository interface for PostgreSQL
type OfferRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewOfferRepository creates a new PostgreSQL offer repository
func NewOfferRepository(db *sql.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// NewOfferRepositoryWithTx creates a new PostgreSQL offer repository within a transaction
func NewOfferRepositoryWithTx(tx *sql.Tx) *OfferRepository {
	return &OfferRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *OfferRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *OfferRepository) Create(ctx context.Context, offer *paymentsdb.Offer) error {
	query := `INSERT INTO formal_offers
		(payee_id, offer_secret, debtor_ids, debtor_amounts, valid_until,
		 description, reciprocal_debtor_id, reciprocal_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING offer_id`

	err := r.getExecutor().QueryRowContext(ctx, query,
		offer.PayeeID, offer.OfferSecret,
		pq.Array(offer.DebtorIDs), pq.Array(offer.DebtorAmounts),
		offer.ValidUntil, nullJSON(offer.Description),
		nullInt64(offer.ReciprocalDebtorID), offer.ReciprocalAmount,
		offer.CreatedAt,
	).Scan(&offer.OfferID)
	if err != nil {
		return paymentsdb.NewQueryError("offers.create", "failed to insert offer", err)
	}
	return nil
}

func (r *OfferRepository) Get(ctx context.Context, payeeID, offerID int64, lock paymentsdb.LockMode) (*paymentsdb.Offer, error) {
	query := `SELECT payee_id, offer_id, offer_secret, debtor_ids, debtor_amounts,
		valid_until, description, reciprocal_debtor_id, reciprocal_amount, created_at
		FROM formal_offers WHERE payee_id = $1 AND offer_id = $2` + lockClause(lock)

	var offer paymentsdb.Offer
	var debtorIDs, debtorAmounts pq.Int64Array
	var description []byte
	var reciprocalDebtorID sql.NullInt64

	err := r.getExecutor().QueryRowContext(ctx, query, payeeID, offerID).Scan(
		&offer.PayeeID, &offer.OfferID, &offer.OfferSecret,
		&debtorIDs, &debtorAmounts,
		&offer.ValidUntil, &description, &reciprocalDebtorID,
		&offer.ReciprocalAmount, &offer.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, paymentsdb.NewQueryError("offers.get", "failed to query offer", err)
	}

	offer.DebtorIDs = []int64(debtorIDs)
	offer.DebtorAmounts = []int64(debtorAmounts)
	offer.Description = jsonValue(description)
	offer.ReciprocalDebtorID = int64Ptr(reciprocalDebtorID)
	offer.ValidUntil = offer.ValidUntil.UTC()
	offer.CreatedAt = offer.CreatedAt.UTC()
	return &offer, nil
}

func (r *OfferRepository) Delete(ctx context.Context, payeeID, offerID int64) error {
	query := `DELETE FROM formal_offers WHERE payee_id = $1 AND offer_id = $2`

	if _, err := r.getExecutor().ExecContext(ctx, query, payeeID, offerID); err != nil {
		return paymentsdb.NewQueryError("offers.delete", "failed to delete offer", err)
	}
	return nil
}
