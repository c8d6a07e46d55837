package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// SignalRepository implements the SignalRepository interface for PostgreSQL
type SignalRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewSignalRepository creates a new PostgreSQL signal repository
func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// NewSignalRepositoryWithTx creates a new PostgreSQL signal repository within a transaction
func NewSignalRepositoryWithTx(tx *sql.Tx) *SignalRepository {
	return &SignalRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *SignalRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *SignalRepository) Insert(ctx context.Context, signal *paymentsdb.OutboundSignal) error {
	query := `INSERT INTO outbound_signals
		(message_id, signal_type, payee_id, payload, inserted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING signal_id`

	err := r.getExecutor().QueryRowContext(ctx, query,
		signal.MessageID, signal.SignalType, signal.PayeeID,
		[]byte(signal.Payload), signal.InsertedAt,
	).Scan(&signal.SignalID)
	if err != nil {
		return paymentsdb.NewQueryError("signals.insert", "failed to insert outbound signal", err)
	}
	return nil
}

func (r *SignalRepository) ListPending(ctx context.Context, limit int) ([]*paymentsdb.OutboundSignal, error) {
	query := `SELECT signal_id, message_id, signal_type, payee_id, payload, inserted_at
		FROM outbound_signals ORDER BY signal_id LIMIT $1`

	rows, err := r.getExecutor().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, paymentsdb.NewQueryError("signals.list_pending", "failed to query outbound signals", err)
	}
	defer rows.Close()

	var signals []*paymentsdb.OutboundSignal
	for rows.Next() {
		var signal paymentsdb.OutboundSignal
		var payload []byte
		if err := rows.Scan(&signal.SignalID, &signal.MessageID, &signal.SignalType,
			&signal.PayeeID, &payload, &signal.InsertedAt); err != nil {
			return nil, paymentsdb.NewQueryError("signals.list_pending", "failed to scan outbound signal", err)
		}
		signal.Payload = jsonValue(payload)
		signal.InsertedAt = signal.InsertedAt.UTC()
		signals = append(signals, &signal)
	}
	if err := rows.Err(); err != nil {
		return nil, paymentsdb.NewQueryError("signals.list_pending", "failed to iterate outbound signals", err)
	}
	return signals, nil
}

func (r *SignalRepository) Delete(ctx context.Context, signalIDs []int64) error {
	if len(signalIDs) == 0 {
		return nil
	}

	query := `DELETE FROM outbound_signals WHERE signal_id = ANY($1)`

	if _, err := r.getExecutor().ExecContext(ctx, query, pq.Array(signalIDs)); err != nil {
		return paymentsdb.NewQueryError("signals.delete", "failed to delete outbound signals", err)
	}
	return nil
}
