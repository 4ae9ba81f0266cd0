package ap

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sitechain-erp/sitechain-erp/internal/platform/db"
)

// Repository persists the supplier ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction. When
// the context already carries one (PO placement posting its PURCHASE debit
// from inside the procurement transaction), the append joins it so the
// debit and the status flip commit atomically.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ap repository not initialised")
	}
	if tx, ok := db.TxFromContext(ctx); ok {
		return fn(ctx, &txRepository{tx: tx})
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(db.ContextWithTx(ctx, tx), wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const entryColumns = `id, supplier_id, po_id, entry_type, debit, credit, balance, payment_status, due_date, description, actor_id, occurred_at`

// ListEntries lists ledger entries for a supplier in (occurred_at, id) order.
func (r *Repository) ListEntries(ctx context.Context, filter StatementFilter) ([]LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM supplier_ledger_entries
WHERE supplier_id = $1
  AND occurred_at BETWEEN COALESCE(NULLIF($2::timestamptz, '0001-01-01'::timestamptz), '-infinity') AND COALESCE(NULLIF($3::timestamptz, '0001-01-01'::timestamptz), 'infinity')
ORDER BY occurred_at ASC, id ASC
LIMIT $4`, filter.SupplierID, filter.From, filter.To, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.SupplierID, &e.POID, &e.Type, &e.Debit, &e.Credit, &e.Balance,
			&e.PaymentStatus, &e.DueDate, &e.Description, &e.ActorID, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Outstanding returns the latest running balance per supplier.
func (r *Repository) Outstanding(ctx context.Context) ([]SupplierBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ON (supplier_id) supplier_id, balance, occurred_at
FROM supplier_ledger_entries
ORDER BY supplier_id, occurred_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := []SupplierBalance{}
	for rows.Next() {
		var b SupplierBalance
		if err := rows.Scan(&b.SupplierID, &b.Balance, &b.AsOf); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// LockSupplier serialises ledger appends for one supplier via a
// transaction-scoped advisory lock. Released automatically on commit or
// rollback.
func (t *txRepository) LockSupplier(ctx context.Context, supplierID int64) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(supplierLockClass), supplierLockKey(supplierID))
	return err
}

// supplierLockClass namespaces advisory locks for the supplier ledger.
const supplierLockClass = 4201

// supplierLockKey folds the full 64-bit id into the int4 lock key so ids
// past 2^32 do not alias onto low ids.
func supplierLockKey(supplierID int64) int32 {
	u := uint64(supplierID)
	return int32(uint32(u) ^ uint32(u>>32))
}

// LastBalance reads the most recent running balance for the supplier.
func (t *txRepository) LastBalance(ctx context.Context, supplierID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT balance FROM supplier_ledger_entries
WHERE supplier_id = $1
ORDER BY occurred_at DESC, id DESC
LIMIT 1`, supplierID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return balance, err
}

// HasPurchaseForPO reports whether a PURCHASE entry exists for the PO.
func (t *txRepository) HasPurchaseForPO(ctx context.Context, poID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM supplier_ledger_entries WHERE po_id = $1 AND entry_type = 'PURCHASE')`, poID).Scan(&exists)
	return exists, err
}

// InsertEntry appends one immutable ledger row.
func (t *txRepository) InsertEntry(ctx context.Context, e LedgerEntry) (int64, error) {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO supplier_ledger_entries (supplier_id, po_id, entry_type, debit, credit, balance, payment_status, due_date, description, actor_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11) RETURNING id`,
		e.SupplierID, e.POID, e.Type, e.Debit, e.Credit, e.Balance, string(e.PaymentStatus),
		e.DueDate, e.Description, e.ActorID, at).Scan(&id)
	return id, err
}
