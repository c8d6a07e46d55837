package paymentsdb

import (
	"errors"
	"fmt"
	"strings"
)

// Error variables for the different categories of store errors
var (
	// Configuration errors
	ErrMissingHost           = errors.New("database host is required")
	ErrMissingDatabase       = errors.New("database name is required")
	ErrMissingUsername       = errors.New("database username is required")
	ErrInvalidPort           = errors.New("invalid database port")
	ErrInvalidDriver         = errors.New("invalid store driver")
	ErrInvalidMaxOpenConns   = errors.New("max open connections must be >= 0")
	ErrInvalidMaxIdleConns   = errors.New("max idle connections must be >= 0")
	ErrMaxIdleExceedsMaxOpen = errors.New("max idle connections cannot exceed max open connections")
	ErrInvalidTimeout        = errors.New("timeout must be positive")

	// Connection errors
	ErrStoreClosed      = errors.New("store is closed")
	ErrConnectionFailed = errors.New("failed to connect to the store")

	// Transaction errors
	ErrTransactionClosed = errors.New("transaction is closed")
	ErrCommitFailed      = errors.New("transaction commit failed")

	// Constraint errors
	ErrDuplicateOrder      = errors.New("duplicate payment order")
	ErrConstraintViolation = errors.New("store constraint violation")
)

// ErrorType represents the category of a store error
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeConfiguration
	ErrorTypeConnection
	ErrorTypeTransaction
	ErrorTypeConstraint
	ErrorTypeQuery
	ErrorTypeSchema
)

// StoreError carries the category, operation and cause of a store
// failure, plus whether retrying the enclosing transaction can help.
type StoreError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Code      string
	Retryable bool
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause error
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether the error matches one of the package's error
// variables or another StoreError with the same type and code.
func (e *StoreError) Is(target error) bool {
	if target == nil {
		return false
	}

	if se, ok := target.(*StoreError); ok {
		return e.Type == se.Type && e.Code == se.Code
	}

	switch target {
	case ErrDuplicateOrder:
		return e.Type == ErrorTypeConstraint && e.Code == "DUPLICATE_ORDER"
	case ErrConstraintViolation:
		return e.Type == ErrorTypeConstraint
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	case ErrTransactionClosed:
		return e.Type == ErrorTypeTransaction && e.Code == "TRANSACTION_CLOSED"
	case ErrCommitFailed:
		return e.Type == ErrorTypeTransaction && e.Code == "COMMIT_FAILED"
	}

	return false
}

// WithCode sets the error code
func (e *StoreError) WithCode(code string) *StoreError {
	e.Code = code
	return e
}

// NewStoreError creates a new StoreError
func NewStoreError(errorType ErrorType, operation, message string, cause error) *StoreError {
	return &StoreError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryableError(errorType, cause),
	}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeConfiguration, operation, message, cause)
}

// NewConnectionError creates a connection error
func NewConnectionError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeConnection, operation, message, cause)
}

// NewTransactionError creates a transaction error
func NewTransactionError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeTransaction, operation, message, cause)
}

// NewConstraintError creates a constraint error
func NewConstraintError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeConstraint, operation, message, cause)
}

// NewQueryError creates a query error
func NewQueryError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeQuery, operation, message, cause)
}

// NewSchemaError creates a schema error
func NewSchemaError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeSchema, operation, message, cause)
}

// NewDuplicateOrderError creates the constraint error reported when a
// payment order collides with an existing row.
func NewDuplicateOrderError(operation string, cause error) *StoreError {
	return NewConstraintError(operation, "duplicate payment order", cause).WithCode("DUPLICATE_ORDER")
}

func isRetryableError(errorType ErrorType, cause error) bool {
	switch errorType {
	case ErrorTypeConnection:
		return true
	case ErrorTypeTransaction, ErrorTypeQuery:
		if cause == nil {
			return false
		}
		msg := strings.ToLower(cause.Error())
		return strings.Contains(msg, "deadlock") ||
			strings.Contains(msg, "timeout") ||
			strings.Contains(msg, "serialize") ||
			strings.Contains(msg, "connection")
	default:
		return false
	}
}

// IsRetryable reports whether retrying the enclosing transaction could
// succeed. It understands StoreError and falls back to matching common
// driver message patterns.
func IsRetryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}

	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"deadlock",
		"timeout",
		"temporary failure",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsConstraintError checks if an error is a constraint error
func IsConstraintError(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Type == ErrorTypeConstraint
}

// IsConnectionError checks if an error is a connection error
func IsConnectionError(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Type == ErrorTypeConnection
}
