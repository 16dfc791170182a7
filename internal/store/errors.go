// Package store defines the persistence interfaces the sidecar exposes to
// its API layer, the shared result types, and the error taxonomy every
// backend implementation maps into.
package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrUnavailable signals a required collaborator (pool, embedding
	// provider) is not initialized. Never retried automatically.
	ErrUnavailable = errors.New("store: not initialized")

	// ErrNotFound signals a keyed lookup returned nothing. Searches with
	// zero hits return empty slices, not ErrNotFound.
	ErrNotFound = errors.New("store: not found")
)

// ValidationError rejects malformed input before any backend call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// BackendError wraps a storage or embedding backend failure.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backend wraps err as a BackendError unless it already carries taxonomy.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) || errors.As(err, &ve) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

// BatchError records one failed item in a partial-failure batch operation.
type BatchError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// uniqueViolation is the Postgres SQLSTATE for duplicate-key conditions.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres duplicate-key error.
// Upsert-or-ignore call sites treat this as benign.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
