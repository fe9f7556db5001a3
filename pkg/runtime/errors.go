// Package runtime provides the database connection and error taxonomy.
package runtime

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a record is not found by callers
	// that must distinguish absence from failure. Unique lookups on
	// the session return a nil entity instead.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidModel is returned when an invalid model is provided.
	ErrInvalidModel = errors.New("invalid model")

	// ErrNoPrimaryKey is returned when a table has no primary key.
	ErrNoPrimaryKey = errors.New("no primary key defined")

	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("session already closed")

	// ErrNoConnection is returned when no database connection is available.
	ErrNoConnection = errors.New("no database connection")
)

// PostgreSQL error codes for integrity violations (class 23).
const (
	codeNotNullViolation    = "23502"
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
)

// IntegrityError reports a uniqueness, foreign key, required-field or
// check violation surfaced on flush. The surrounding transaction has
// already been rolled back when the caller sees it.
type IntegrityError struct {
	Code       string
	Constraint string
	Err        error
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("integrity violation (%s) on constraint %s: %v", e.Code, e.Constraint, e.Err)
	}
	return fmt.Sprintf("integrity violation (%s): %v", e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsUnique reports whether the violation was a unique constraint.
func (e *IntegrityError) IsUnique() bool {
	return e.Code == codeUniqueViolation
}

// IsForeignKey reports whether the violation was a foreign key constraint.
func (e *IntegrityError) IsForeignKey() bool {
	return e.Code == codeForeignKeyViolation
}

// ConnectionError reports a storage-layer connectivity failure. The
// core performs no retry; retry policy belongs to the caller.
type ConnectionError struct {
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failure: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// QueryError represents a query execution error.
type QueryError struct {
	Query string
	Err   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v\nQuery: %s", e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// MapError classifies a pgx error into the taxonomy. Integrity
// violations (SQLSTATE class 23) become IntegrityError; connection
// problems become ConnectionError; anything else passes through.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation:
			return &IntegrityError{
				Code:       pgErr.Code,
				Constraint: pgErr.ConstraintName,
				Err:        err,
			}
		}
		// Class 08 covers connection exceptions.
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return &ConnectionError{Err: err}
		}
		return err
	}
	if pgconn.Timeout(err) {
		return &ConnectionError{Err: err}
	}
	return err
}
