package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Ledger
	ErrInvariantViolation  = errors.New("ledger invariant violated")
	ErrTransactionNotFound = fmt.Errorf("transaction: %w", ErrNotFound)
	ErrAlreadyRefunded     = errors.New("transaction already refunded")

	// Billing
	ErrOrderNotFound        = fmt.Errorf("order: %w", ErrNotFound)
	ErrSubscriptionNotFound = fmt.Errorf("subscription: %w", ErrNotFound)
	ErrAccountNotFound      = fmt.Errorf("account: %w", ErrNotFound)
	ErrAlreadyCharged       = errors.New("order already charged for this period")
	ErrOrderNotActive       = errors.New("order is not active")
	ErrBillingRunInProgress = errors.New("billing run already in progress")

	// Processor
	ErrProcessorTransient = errors.New("payment processor temporarily unavailable")
	ErrProcessorDeclined  = errors.New("payment declined")

	// Money moved at the processor but the ledger write did not commit.
	// Never retried automatically; requires operator reconciliation.
	ErrRecordAfterMoneyMoved = errors.New("processor operation succeeded but ledger write failed")

	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrFxRateUnavailable = errors.New("fx rate unavailable")
)

// InvariantViolationError describes which row of a pair broke the ledger
// equation and by how much.
type InvariantViolationError struct {
	Side     string
	Kind     string
	Expected int64
	Actual   int64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("ledger invariant violated on %s %s row: expected %d, got %d (diff %d)",
		e.Kind, e.Side, e.Expected, e.Actual, e.Actual-e.Expected)
}

func (e *InvariantViolationError) Unwrap() error { return ErrInvariantViolation }

// MoneyMovedError carries the processor reference of an operation whose
// ledger record failed to commit.
type MoneyMovedError struct {
	Operation   string
	ProcessorID string
	Err         error
}

func (e *MoneyMovedError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Operation, e.ProcessorID, ErrRecordAfterMoneyMoved, e.Err)
}

func (e *MoneyMovedError) Unwrap() []error { return []error{ErrRecordAfterMoneyMoved, e.Err} }
