package ap

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, filter StatementFilter) ([]LedgerEntry, error)
	Outstanding(ctx context.Context) ([]SupplierBalance, error)
}

// TxRepository exposes transactional ledger operations. LockSupplier must
// serialise concurrent postings for the same supplier so running balances
// never skip or double-count.
type TxRepository interface {
	LockSupplier(ctx context.Context, supplierID int64) error
	LastBalance(ctx context.Context, supplierID int64) (decimal.Decimal, error)
	HasPurchaseForPO(ctx context.Context, poID int64) (bool, error)
	InsertEntry(ctx context.Context, entry LedgerEntry) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts ledger postings.
type MetricsPort interface {
	LedgerPosted(ledger, txType string)
	LedgerRejected(ledger, reason string)
}

// Ledger owns the supplier money ledger. It tracks what is owed to each
// supplier independently of stock quantities.
type Ledger struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
}

// NewLedger builds the Ledger.
func NewLedger(repo RepositoryPort, audit AuditPort, metrics MetricsPort) *Ledger {
	return &Ledger{repo: repo, audit: audit, metrics: metrics}
}

// PostPurchase appends the PURCHASE debit for a purchase order placement.
// Exactly one PURCHASE entry may exist per PO; a second attempt fails with
// ErrDuplicatePosting and leaves the balance unchanged.
func (l *Ledger) PostPurchase(ctx context.Context, input PurchaseInput) (LedgerEntry, error) {
	if input.SupplierID == 0 {
		return LedgerEntry{}, ErrSupplierRequired
	}
	if input.POID == 0 {
		return LedgerEntry{}, fmt.Errorf("%w: purchase order required", shared.ErrValidation)
	}
	if !input.Amount.IsPositive() {
		return LedgerEntry{}, ErrInvalidAmount
	}
	entry := LedgerEntry{
		SupplierID:    input.SupplierID,
		POID:          &input.POID,
		Type:          EntryPurchase,
		Debit:         input.Amount,
		Credit:        decimal.Zero,
		PaymentStatus: PaymentPending,
		DueDate:       input.DueDate,
		Description:   input.Description,
		ActorID:       input.ActorID,
	}
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockSupplier(ctx, input.SupplierID); err != nil {
			return err
		}
		exists, err := tx.HasPurchaseForPO(ctx, input.POID)
		if err != nil {
			return err
		}
		if exists {
			if l.metrics != nil {
				l.metrics.LedgerRejected("supplier", "duplicate_purchase")
			}
			return fmt.Errorf("%w: purchase entry for PO %d", shared.ErrDuplicatePosting, input.POID)
		}
		return l.appendTx(ctx, tx, &entry)
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	l.recordAudit(ctx, input.ActorID, "SUPPLIER_PURCHASE_POST", entry.ID, map[string]any{
		"supplier_id": input.SupplierID, "po_id": input.POID, "debit": input.Amount.String(),
	})
	return entry, nil
}

// HasPurchaseForPO reports whether a PURCHASE entry already exists for the
// PO. Used by crash recovery in the placement flow.
func (l *Ledger) HasPurchaseForPO(ctx context.Context, poID int64) (bool, error) {
	var exists bool
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		exists, err = tx.HasPurchaseForPO(ctx, poID)
		return err
	})
	return exists, err
}

// RecordPayment appends a PAYMENT credit.
func (l *Ledger) RecordPayment(ctx context.Context, input PaymentInput) (LedgerEntry, error) {
	if input.SupplierID == 0 {
		return LedgerEntry{}, ErrSupplierRequired
	}
	if !input.Amount.IsPositive() {
		return LedgerEntry{}, ErrInvalidAmount
	}
	description := input.Description
	if input.Method != "" {
		description = fmt.Sprintf("%s (%s)", description, input.Method)
	}
	entry := LedgerEntry{
		SupplierID:    input.SupplierID,
		POID:          input.POID,
		Type:          EntryPayment,
		Debit:         decimal.Zero,
		Credit:        input.Amount,
		PaymentStatus: PaymentPaid,
		Description:   description,
		ActorID:       input.ActorID,
	}
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockSupplier(ctx, input.SupplierID); err != nil {
			return err
		}
		return l.appendTx(ctx, tx, &entry)
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	l.recordAudit(ctx, input.ActorID, "SUPPLIER_PAYMENT", entry.ID, map[string]any{
		"supplier_id": input.SupplierID, "credit": input.Amount.String(),
	})
	return entry, nil
}

// PostCreditNote appends a CREDIT_NOTE credit (value owed back to us).
func (l *Ledger) PostCreditNote(ctx context.Context, input NoteInput) (LedgerEntry, error) {
	return l.postNote(ctx, input, EntryCreditNote, decimal.Zero, input.Amount)
}

// PostDebitNote appends a DEBIT_NOTE debit (extra value owed to the supplier).
func (l *Ledger) PostDebitNote(ctx context.Context, input NoteInput) (LedgerEntry, error) {
	return l.postNote(ctx, input, EntryDebitNote, input.Amount, decimal.Zero)
}

// PostAdjustment appends a signed correction; positive amounts debit,
// negative amounts credit.
func (l *Ledger) PostAdjustment(ctx context.Context, input NoteInput) (LedgerEntry, error) {
	if input.Amount.IsZero() {
		return LedgerEntry{}, ErrInvalidAmount
	}
	if input.Amount.IsPositive() {
		return l.postNote(ctx, input, EntryAdjustment, input.Amount, decimal.Zero)
	}
	return l.postNote(ctx, input, EntryAdjustment, decimal.Zero, input.Amount.Neg())
}

func (l *Ledger) postNote(ctx context.Context, input NoteInput, entryType EntryType, debit, credit decimal.Decimal) (LedgerEntry, error) {
	if input.SupplierID == 0 {
		return LedgerEntry{}, ErrSupplierRequired
	}
	if debit.IsNegative() || credit.IsNegative() || (debit.IsZero() && credit.IsZero()) {
		return LedgerEntry{}, ErrInvalidAmount
	}
	entry := LedgerEntry{
		SupplierID:  input.SupplierID,
		POID:        input.POID,
		Type:        entryType,
		Debit:       debit,
		Credit:      credit,
		Description: input.Description,
		ActorID:     input.ActorID,
	}
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockSupplier(ctx, input.SupplierID); err != nil {
			return err
		}
		return l.appendTx(ctx, tx, &entry)
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	l.recordAudit(ctx, input.ActorID, fmt.Sprintf("SUPPLIER_%s", entryType), entry.ID, map[string]any{
		"supplier_id": input.SupplierID, "debit": debit.String(), "credit": credit.String(),
	})
	return entry, nil
}

func (l *Ledger) appendTx(ctx context.Context, tx TxRepository, entry *LedgerEntry) error {
	last, err := tx.LastBalance(ctx, entry.SupplierID)
	if err != nil {
		return err
	}
	entry.Balance = last.Add(entry.Debit).Sub(entry.Credit)
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	entry.ID, err = tx.InsertEntry(ctx, *entry)
	if err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.LedgerPosted("supplier", string(entry.Type))
	}
	return nil
}

// Statement lists entries for a supplier in (at, id) order.
func (l *Ledger) Statement(ctx context.Context, filter StatementFilter) ([]LedgerEntry, error) {
	if filter.SupplierID == 0 {
		return nil, ErrSupplierRequired
	}
	return l.repo.ListEntries(ctx, filter)
}

// Outstanding lists the latest balance per supplier.
func (l *Ledger) Outstanding(ctx context.Context) ([]SupplierBalance, error) {
	return l.repo.Outstanding(ctx)
}

// VerifyBalances checks the running-balance chain for one supplier's
// statement. A mismatch is a programming error, not a runtime condition.
func VerifyBalances(entries []LedgerEntry) error {
	running := decimal.Zero
	for i, entry := range entries {
		expected := running.Add(entry.Debit).Sub(entry.Credit)
		if !entry.Balance.Equal(expected) {
			return fmt.Errorf("ap: entry %d at position %d breaks the balance chain: expected %s, got %s",
				entry.ID, i, expected, entry.Balance)
		}
		running = entry.Balance
	}
	return nil
}

func (l *Ledger) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if l.audit == nil {
		return
	}
	_ = l.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "supplier_ledger", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
