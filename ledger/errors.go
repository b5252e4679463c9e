/*
errors.go - Centralized error types for the credit engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these onto HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors - Malformed or missing input
  2. Admission errors  - Overpayment against current balance
  3. Lifecycle errors  - Layaway action attempted from the wrong state
  4. Store errors      - Missing records, uniqueness violations

USAGE:
  Callers match with errors.Is / errors.As:

    if errors.Is(err, ledger.ErrOverpayment) { ... }

    var ope *ledger.OverpaymentError
    if errors.As(err, &ope) {
        // ope.Requested, ope.Outstanding
    }

SEE ALSO:
  - admission.go: Returns OverpaymentError and FieldError
  - statemachine.go: Returns TransitionError
  - store/sqlite: Returns ConflictError on duplicate client refs
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all malformed-input errors.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrOverpayment is returned when a payment exceeds the outstanding balance.
	ErrOverpayment = errors.New("payment exceeds outstanding balance")

	// ErrInvalidTransition is returned for layaway actions not permitted from
	// the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConflict is returned on uniqueness violations, e.g. a duplicate
	// client external reference.
	ErrConflict = errors.New("conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError reports a single invalid or missing input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }
func (e *FieldError) Unwrap() error { return ErrValidation }

// NotFoundError reports which record was missing.
type NotFoundError struct {
	Entity string // "client", "sale", "layaway", "payment"
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// OverpaymentError carries both the attempted amount and the balance it was
// checked against, so the caller can show the shortfall.
type OverpaymentError struct {
	Parent      ParentRef
	Requested   decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds outstanding balance of %s on %s",
		e.Requested.StringFixed(2), e.Outstanding.StringFixed(2), e.Parent.Key())
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// TransitionError reports the state a layaway action found it in.
type TransitionError struct {
	LayawayID string
	From      LayawayStatus
	To        LayawayStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("layaway %s cannot transition from %s to %s", e.LayawayID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is the caller's fault rather than
// a persistence failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
