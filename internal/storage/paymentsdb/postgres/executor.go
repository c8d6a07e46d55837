package postgres

import (
	"context"
	"database/sql"
)

// executor abstracts over *sql.DB and *sql.Tx so repositories can run
// queries either directly or inside a transaction.
type executor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
