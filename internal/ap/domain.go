package ap

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType enumerates supplier ledger transaction types.
type EntryType string

const (
	EntryPurchase        EntryType = "PURCHASE"
	EntryPayment         EntryType = "PAYMENT"
	EntryAdjustment      EntryType = "ADJUSTMENT"
	EntryCreditNote      EntryType = "CREDIT_NOTE"
	EntryDebitNote       EntryType = "DEBIT_NOTE"
	EntryMaterialReceipt EntryType = "MATERIAL_RECEIPT"
)

// PaymentStatus tracks settlement of a debit entry.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// LedgerEntry is an immutable, append-only row in the supplier ledger.
// Balance carries the running total: balance_n = balance_(n-1) + debit_n -
// credit_n for the same supplier, entries ordered by transaction date then
// insertion order. Corrections are posted as new entries, never edits.
type LedgerEntry struct {
	ID            int64
	SupplierID    int64
	POID          *int64
	Type          EntryType
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Balance       decimal.Decimal
	PaymentStatus PaymentStatus
	DueDate       *time.Time
	Description   string
	ActorID       int64
	At            time.Time
}

// PurchaseInput posts the debit side of a purchase order placement.
type PurchaseInput struct {
	SupplierID  int64
	POID        int64
	Amount      decimal.Decimal
	DueDate     *time.Time
	Description string
	ActorID     int64
}

// PaymentInput posts a credit for money paid to the supplier.
type PaymentInput struct {
	SupplierID  int64
	POID        *int64
	Amount      decimal.Decimal
	Method      string
	Description string
	ActorID     int64
}

// NoteInput posts an adjustment, credit note or debit note.
type NoteInput struct {
	SupplierID  int64
	POID        *int64
	Amount      decimal.Decimal
	Description string
	ActorID     int64
}

// StatementFilter narrows ledger statements.
type StatementFilter struct {
	SupplierID int64
	From       time.Time
	To         time.Time
	Limit      int
}

// SupplierBalance summarises the latest running balance per supplier.
type SupplierBalance struct {
	SupplierID int64
	Balance    decimal.Decimal
	AsOf       time.Time
}

var (
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("ap: amount must be positive")
	// ErrSupplierRequired indicates a missing supplier reference.
	ErrSupplierRequired = errors.New("ap: supplier required")
)
