package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// uniqueViolation is the PostgreSQL error code for violating a unique
// constraint or a primary key.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// lockClause translates a lock mode into the trailing SQL clause.
func lockClause(lock paymentsdb.LockMode) string {
	switch lock {
	case paymentsdb.LockShared:
		return " FOR SHARE"
	case paymentsdb.LockExclusive:
		return " FOR UPDATE"
	default:
		return ""
	}
}

// nullInt64 converts an optional int64 for scanning and binding.
func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}

// nullTime converts an optional timestamp for scanning and binding.
func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	value := v.Time.UTC()
	return &value
}

// nullJSON converts an optional JSON document for binding. Empty
// documents are stored as SQL NULL rather than empty strings.
func nullJSON(doc json.RawMessage) any {
	if len(doc) == 0 {
		return nil
	}
	return []byte(doc)
}

func jsonValue(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}
