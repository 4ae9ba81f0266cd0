package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates invalid caller input.
	ErrValidation = errors.New("validation failed")
	// ErrReferenceNotFound indicates a foreign key did not resolve.
	ErrReferenceNotFound = errors.New("referenced record not found")
	// ErrDuplicatePosting indicates an idempotency guard tripped, e.g. a
	// second PURCHASE ledger entry for the same purchase order placement.
	ErrDuplicatePosting = errors.New("posting already recorded")
	// ErrAlreadyProcessed indicates a one-shot workflow step ran twice.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrReceiptLineMismatch indicates a receipt line that does not pair
	// with a line on the referenced purchase order.
	ErrReceiptLineMismatch = errors.New("receipt line does not match purchase order line")
)

// InsufficientStockError is returned when a decrement exceeds the available
// quantity. Callers may retry with a smaller amount or restock first; the
// core never retries on its own.
type InsufficientStockError struct {
	Available float64
	Requested float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %.3f, requested %.3f", e.Available, e.Requested)
}

// InvalidStateError is returned when a workflow operation is attempted from
// a state that does not permit it.
type InvalidStateError struct {
	Entity   string
	Required string
	Actual   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: invalid state: required %s, actual %s", e.Entity, e.Required, e.Actual)
}

// IsInvalidState reports whether err carries an InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}
