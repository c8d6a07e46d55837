// Package postgres implements paymentsdb.Store on PostgreSQL. Row
// locks (FOR SHARE / FOR UPDATE) back the coordinator's locking
// discipline, and the unique indexes on payment orders turn creation
// races into ErrDuplicateOrder.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// Store implements the paymentsdb.Store interface for PostgreSQL
type Store struct {
	db     *sql.DB
	config *paymentsdb.Config
	log    *zap.Logger

	// Repository instances
	offerRepo  *OfferRepository
	orderRepo  *OrderRepository
	proofRepo  *ProofRepository
	signalRepo *SignalRepository
}

var _ paymentsdb.Store = (*Store)(nil)

// NewStore creates a new PostgreSQL store
func NewStore(config *paymentsdb.Config, log *zap.Logger) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, paymentsdb.NewConfigurationError("new_store", "invalid configuration", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Store{
		config: config,
		log:    log,
	}, nil
}

// Open opens the database connection and initializes the schema
func (s *Store) Open(ctx context.Context) error {
	connStr, err := s.config.BuildConnectionString()
	if err != nil {
		return paymentsdb.NewConfigurationError("open", "failed to build connection string", err)
	}

	sqlDB, err := sql.Open(s.config.Driver, connStr)
	if err != nil {
		return paymentsdb.NewConnectionError("open", "failed to open database connection", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(s.config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(s.config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(s.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(s.config.ConnMaxIdleTime)

	// Test connection
	ctxTimeout, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctxTimeout); err != nil {
		sqlDB.Close()
		return paymentsdb.NewConnectionError("open", "failed to ping database", err)
	}

	s.db = sqlDB

	if err := s.initSchema(ctx); err != nil {
		s.db.Close()
		s.db = nil
		return paymentsdb.NewSchemaError("open", "failed to initialize schema", err)
	}

	// Initialize repository instances
	s.offerRepo = NewOfferRepository(s.db)
	s.orderRepo = NewOrderRepository(s.db)
	s.proofRepo = NewProofRepository(s.db)
	s.signalRepo = NewSignalRepository(s.db)

	s.log.Info("store opened", zap.String("config", s.config.String()))
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	// Clear repository instances
	s.offerRepo = nil
	s.orderRepo = nil
	s.proofRepo = nil
	s.signalRepo = nil

	if err != nil {
		return paymentsdb.NewConnectionError("close", "failed to close database connection", err)
	}
	return nil
}

// Ping tests the database connection
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return paymentsdb.ErrStoreClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return paymentsdb.NewConnectionError("ping", "database ping failed", err)
	}
	return nil
}

func (s *Store) Offers() paymentsdb.OfferRepository   { return s.offerRepo }
func (s *Store) Orders() paymentsdb.OrderRepository   { return s.orderRepo }
func (s *Store) Proofs() paymentsdb.ProofRepository   { return s.proofRepo }
func (s *Store) Signals() paymentsdb.SignalRepository { return s.signalRepo }

// WithTransaction runs fn inside one database transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(paymentsdb.TransactionContext) error) error {
	if s.db == nil {
		return paymentsdb.ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return paymentsdb.NewTransactionError("begin", "failed to begin transaction", err)
	}

	tc := NewTransactionContext(tx)

	defer func() {
		if p := recover(); p != nil {
			tc.Rollback()
			panic(p)
		}
	}()

	if err := fn(tc); err != nil {
		if rbErr := tc.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	return tc.Commit()
}

// initSchema initializes the coordinator's tables, sequences and
// indexes. Offer and proof ids come from global sequences, which makes
// them monotonic per payee; coordinator request ids come from their
// own sequence and never repeat, even across rolled-back transactions.
func (s *Store) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS offer_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS proof_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS coordinator_request_id_seq`,

		`CREATE TABLE IF NOT EXISTS formal_offers (
			payee_id BIGINT NOT NULL,
			offer_id BIGINT NOT NULL DEFAULT nextval('offer_id_seq'),
			offer_secret BYTEA NOT NULL,
			debtor_ids BIGINT[] NOT NULL,
			debtor_amounts BIGINT[] NOT NULL,
			valid_until TIMESTAMP WITH TIME ZONE NOT NULL,
			description JSONB,
			reciprocal_debtor_id BIGINT,
			reciprocal_amount BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			PRIMARY KEY (payee_id, offer_id),
			CHECK (reciprocal_amount >= 0),
			CHECK (array_length(debtor_ids, 1) IS NOT DISTINCT FROM array_length(debtor_amounts, 1)),
			CHECK ((description IS NULL) != (reciprocal_debtor_id IS NULL))
		)`,

		`CREATE TABLE IF NOT EXISTS payment_orders (
			payee_id BIGINT NOT NULL,
			offer_id BIGINT NOT NULL,
			payer_id BIGINT NOT NULL,
			payer_seqnum INTEGER NOT NULL,
			coordinator_request_id BIGINT NOT NULL,
			debtor_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			reciprocal_debtor_id BIGINT,
			reciprocal_amount BIGINT NOT NULL DEFAULT 0,
			payer_note JSONB,
			proof_secret BYTEA,
			payment_transfer_id BIGINT,
			reciprocal_transfer_id BIGINT,
			finalized_at TIMESTAMP WITH TIME ZONE,
			PRIMARY KEY (payee_id, offer_id, payer_id, payer_seqnum),
			CHECK (coordinator_request_id > 0),
			CHECK (amount >= 0),
			CHECK (finalized_at IS NOT NULL OR (payer_note IS NOT NULL AND proof_secret IS NOT NULL))
		)`,

		`CREATE TABLE IF NOT EXISTS payment_proofs (
			payee_id BIGINT NOT NULL,
			proof_id BIGINT NOT NULL DEFAULT nextval('proof_id_seq'),
			proof_secret BYTEA NOT NULL,
			payer_id BIGINT NOT NULL,
			debtor_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			payer_note JSONB,
			reciprocal_debtor_id BIGINT,
			reciprocal_amount BIGINT NOT NULL DEFAULT 0,
			paid_at TIMESTAMP WITH TIME ZONE NOT NULL,
			offer_id BIGINT NOT NULL,
			offer_created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			offer_description JSONB,
			PRIMARY KEY (payee_id, proof_id)
		)`,

		`CREATE TABLE IF NOT EXISTS outbound_signals (
			signal_id BIGSERIAL PRIMARY KEY,
			message_id UUID NOT NULL,
			signal_type TEXT NOT NULL,
			payee_id BIGINT NOT NULL,
			payload JSONB NOT NULL,
			inserted_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_orders_request_id
			ON payment_orders(payee_id, coordinator_request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_orders_finalized_at
			ON payment_orders(finalized_at) WHERE finalized_at IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_payment_proofs_paid_at
			ON payment_proofs(payee_id, paid_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return paymentsdb.NewSchemaError("init_schema", "failed to execute schema query", err)
		}
	}
	return nil
}
