/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The card package wraps these errors with domain context.

ERROR CATEGORIES:
  1. Rejection errors - Posting-level business rule violations
  2. Ledger errors - Entry persistence failures
  3. Lookup errors - Missing accounts/statements

REJECTIONS ARE NOT FAILURES:
  A rejected posting is a valid outcome: the ledger is untouched and the
  caller is told synchronously. Nothing in this engine is fatal at the
  account level; every anomaly resolves to a rejection or a best-effort
  reinterpretation of the instruction.

USAGE:
  if engine.IsRejection(err) {
      // surface batch-rejected status, no retry
  }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrPostingRejected is the root of all posting rejections.
	ErrPostingRejected = errors.New("posting rejected")

	// ErrEntryFailed is returned when an entry cannot be persisted.
	ErrEntryFailed = errors.New("entry failed")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrStatementNotFound is returned when a referenced statement doesn't exist.
	ErrStatementNotFound = errors.New("statement not found")
)

// =============================================================================
// REJECTION - Structured posting rejection
// =============================================================================

type RejectionCode string

const (
	RejectInsufficientAvailable RejectionCode = "insufficient_available_balance"
	RejectTypeLimitExceeded     RejectionCode = "transaction_type_limit_exceeded"
	RejectTimeWindowExpired     RejectionCode = "time_window_expired"
	RejectReferenceRepaid       RejectionCode = "transaction_reference_repaid"
	RejectUnknownReference      RejectionCode = "unknown_transaction_reference"
	RejectUnknownType           RejectionCode = "unknown_transaction_type"
	RejectOverlimitInUse        RejectionCode = "overlimit_in_use"
	RejectWrongDenomination     RejectionCode = "unsupported_denomination"
)

// RejectionError explains why a posting instruction was not committed.
// The ledger is unchanged; the decision is local to the single instruction.
type RejectionError struct {
	Code                RejectionCode
	ClientTransactionID ClientTransactionID
	Message             string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("posting rejected (%s): %s", e.Code, e.Message)
}

func (e *RejectionError) Unwrap() error {
	return ErrPostingRejected
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRejection returns true if the error is a posting rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrPostingRejected)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrStatementNotFound)
}
