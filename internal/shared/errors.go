// Package shared holds cross-cutting helpers used by every ledger module:
// the typed error taxonomy, the audit logger and the idempotency store.
package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationError reports rejected input (bad enum, bad date, blank comment).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown product, batch or LOT.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// InsufficientStockError carries both sides of a failed stock check so the
// operator sees the shortfall, not just that the operation failed.
type InsufficientStockError struct {
	RequestedG float64
	AvailableG float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %.0fg, available %.0fg", e.RequestedG, e.AvailableG)
}

// ConcurrencyError wraps a serialization or lock failure so callers can
// retry the whole operation.
type ConcurrencyError struct {
	Op  string
	Err error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s: concurrent update detected: %v", e.Op, e.Err)
}

func (e *ConcurrencyError) Unwrap() error { return e.Err }

// IsSerializationFailure reports whether err is a Postgres serialization or
// deadlock failure (40001, 40P01).
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
