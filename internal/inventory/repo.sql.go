package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitechain-erp/sitechain-erp/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
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

// WithTx executes the callback inside a repeatable-read transaction. A
// transaction already carried by the context (a procurement receipt
// verification posting stock, for example) is joined instead, so the
// inventory write commits or rolls back with its caller.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
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

const recordColumns = `id, item_id, project_id, warehouse_id, quantity, min_level, max_level, reorder_level, unit_cost, status, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.ItemID, &rec.ProjectID, &rec.WarehouseID, &rec.Quantity,
		&rec.MinLevel, &rec.MaxLevel, &rec.ReorderLevel, &rec.UnitCost, &rec.Status,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

// GetRecord fetches a record by tuple.
func (r *Repository) GetRecord(ctx context.Context, itemID, projectID, warehouseID int64) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventory_records
WHERE item_id=$1 AND project_id=$2 AND warehouse_id=$3`, itemID, projectID, warehouseID)
	return scanRecord(row)
}

// GetRecordByID fetches a record by id.
func (r *Repository) GetRecordByID(ctx context.Context, id int64) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventory_records WHERE id=$1`, id)
	return scanRecord(row)
}

// ListRecords lists records for a filter.
func (r *Repository) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM inventory_records
WHERE ($1 = 0 OR project_id = $1)
  AND ($2 = 0 OR warehouse_id = $2)
  AND ($3 = 0 OR item_id = $3)
  AND ($4 = '' OR status = $4)
ORDER BY id
LIMIT $5 OFFSET $6`, filter.ProjectID, filter.WarehouseID, filter.ItemID, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// LowStock lists active records at or below their reorder level.
func (r *Repository) LowStock(ctx context.Context, projectID int64) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM inventory_records
WHERE status = 'ACTIVE' AND reorder_level > 0 AND quantity <= reorder_level
  AND ($1 = 0 OR project_id = $1)
ORDER BY quantity ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetLedger lists ledger entries in (occurred_at, id) order.
func (r *Repository) GetLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT id, record_id, item_id, project_id, warehouse_id, tx_type, delta, qty_before, qty_after, ref, description, actor_id, occurred_at
FROM inventory_ledger_entries
WHERE ($1 = 0 OR item_id = $1)
  AND ($2 = 0 OR project_id = $2)
  AND ($3 = 0 OR warehouse_id = $3)
  AND occurred_at BETWEEN COALESCE(NULLIF($4::timestamptz, '0001-01-01'::timestamptz), '-infinity') AND COALESCE(NULLIF($5::timestamptz, '0001-01-01'::timestamptz), 'infinity')
ORDER BY occurred_at ASC, id ASC
LIMIT $6`, filter.ItemID, filter.ProjectID, filter.WarehouseID, filter.From, filter.To, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.RecordID, &e.ItemID, &e.ProjectID, &e.WarehouseID, &e.Type,
			&e.Delta, &e.QtyBefore, &e.QtyAfter, &e.Ref, &e.Description, &e.ActorID, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetIssue fetches one issue.
func (r *Repository) GetIssue(ctx context.Context, id int64) (MaterialIssue, error) {
	return scanIssue(r.pool.QueryRow(ctx, `SELECT id, item_id, project_id, warehouse_id, quantity, mrr_id, issued_to, note, actor_id, created_at
FROM material_issues WHERE id=$1`, id))
}

// GetReturn fetches one return.
func (r *Repository) GetReturn(ctx context.Context, id int64) (MaterialReturn, error) {
	return scanReturn(r.pool.QueryRow(ctx, `SELECT id, item_id, project_id, warehouse_id, quantity, issue_id, note, actor_id, created_at
FROM material_returns WHERE id=$1`, id))
}

// GetConsumption fetches one consumption.
func (r *Repository) GetConsumption(ctx context.Context, id int64) (MaterialConsumption, error) {
	return scanConsumption(r.pool.QueryRow(ctx, `SELECT id, item_id, project_id, warehouse_id, quantity, note, actor_id, created_at
FROM material_consumptions WHERE id=$1`, id))
}

func scanIssue(row pgx.Row) (MaterialIssue, error) {
	var issue MaterialIssue
	err := row.Scan(&issue.ID, &issue.ItemID, &issue.ProjectID, &issue.WarehouseID, &issue.Quantity,
		&issue.MrrID, &issue.IssuedTo, &issue.Note, &issue.ActorID, &issue.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MaterialIssue{}, ErrRecordNotFound
	}
	return issue, err
}

func scanReturn(row pgx.Row) (MaterialReturn, error) {
	var ret MaterialReturn
	err := row.Scan(&ret.ID, &ret.ItemID, &ret.ProjectID, &ret.WarehouseID, &ret.Quantity,
		&ret.IssueID, &ret.Note, &ret.ActorID, &ret.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MaterialReturn{}, ErrRecordNotFound
	}
	return ret, err
}

func scanConsumption(row pgx.Row) (MaterialConsumption, error) {
	var cons MaterialConsumption
	err := row.Scan(&cons.ID, &cons.ItemID, &cons.ProjectID, &cons.WarehouseID, &cons.Quantity,
		&cons.Note, &cons.ActorID, &cons.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MaterialConsumption{}, ErrRecordNotFound
	}
	return cons, err
}

// GetRecordForUpdate locks the record row for the duration of the transaction.
func (t *txRepository) GetRecordForUpdate(ctx context.Context, itemID, projectID, warehouseID int64) (Record, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventory_records
WHERE item_id=$1 AND project_id=$2 AND warehouse_id=$3 FOR UPDATE`, itemID, projectID, warehouseID)
	return scanRecord(row)
}

// InsertRecord inserts a record and returns its id.
func (t *txRepository) InsertRecord(ctx context.Context, rec Record) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_records (item_id, project_id, warehouse_id, quantity, min_level, max_level, reorder_level, unit_cost, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()) RETURNING id`,
		rec.ItemID, rec.ProjectID, rec.WarehouseID, rec.Quantity, rec.MinLevel, rec.MaxLevel,
		rec.ReorderLevel, rec.UnitCost, rec.Status).Scan(&id)
	return id, err
}

// UpdateRecord writes quantity, unit cost and status.
func (t *txRepository) UpdateRecord(ctx context.Context, rec Record) error {
	_, err := t.tx.Exec(ctx, `UPDATE inventory_records SET quantity=$2, unit_cost=$3, status=$4, updated_at=NOW() WHERE id=$1`,
		rec.ID, rec.Quantity, rec.UnitCost, rec.Status)
	return err
}

// InsertLedgerEntry appends one immutable ledger row.
func (t *txRepository) InsertLedgerEntry(ctx context.Context, e LedgerEntry) (int64, error) {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_ledger_entries (record_id, item_id, project_id, warehouse_id, tx_type, delta, qty_before, qty_after, ref, description, actor_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		e.RecordID, e.ItemID, e.ProjectID, e.WarehouseID, e.Type, e.Delta, e.QtyBefore, e.QtyAfter,
		e.Ref, e.Description, e.ActorID, at).Scan(&id)
	return id, err
}

// InsertIssue inserts an issue row.
func (t *txRepository) InsertIssue(ctx context.Context, issue MaterialIssue) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO material_issues (item_id, project_id, warehouse_id, quantity, mrr_id, issued_to, note, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW()) RETURNING id`,
		issue.ItemID, issue.ProjectID, issue.WarehouseID, issue.Quantity, issue.MrrID,
		issue.IssuedTo, issue.Note, issue.ActorID).Scan(&id)
	return id, err
}

// GetIssueForUpdate locks one issue row.
func (t *txRepository) GetIssueForUpdate(ctx context.Context, id int64) (MaterialIssue, error) {
	return scanIssue(t.tx.QueryRow(ctx, `SELECT id, item_id, project_id, warehouse_id, quantity, mrr_id, issued_to, note, actor_id, created_at
FROM material_issues WHERE id=$1 FOR UPDATE`, id))
}

// UpdateIssueQuantity writes the new quantity.
func (t *txRepository) UpdateIssueQuantity(ctx context.Context, id int64, qty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE material_issues SET quantity=$2 WHERE id=$1`, id, qty)
	return err
}

// DeleteIssue removes the issue row. Its ledger entries remain.
func (t *txRepository) DeleteIssue(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM material_issues WHERE id=$1`, id)
	return err
}

// InsertReturn inserts a return row.
func (t *txRepository) InsertReturn(ctx context.Context, ret MaterialReturn) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO material_returns (item_id, project_id, warehouse_id, quantity, issue_id, note, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		ret.ItemID, ret.ProjectID, ret.WarehouseID, ret.Quantity, ret.IssueID, ret.Note, ret.ActorID).Scan(&id)
	return id, err
}

// GetReturnForUpdate locks one return row.
func (t *txRepository) GetReturnForUpdate(ctx context.Context, id int64) (MaterialReturn, error) {
	return scanReturn(t.tx.QueryRow(ctx, `SELECT id, item_id, project_id, warehouse_id, quantity, issue_id, note, actor_id, created_at
FROM material_returns WHERE id=$1 FOR UPDATE`, id))
}

// UpdateReturnQuantity writes the new quantity.
func (t *txRepository) UpdateReturnQuantity(ctx context.Context, id int64, qty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE material_returns SET quantity=$2 WHERE id=$1`, id, qty)
	return err
}

// DeleteReturn removes the return row.
func (t *txRepository) DeleteReturn(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM material_returns WHERE id=$1`, id)
	return err
}

// InsertConsumption inserts a consumption row.
func (t *txRepository) InsertConsumption(ctx context.Context, cons MaterialConsumption) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO material_consumptions (item_id, project_id, warehouse_id, quantity, note, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id`,
		cons.ItemID, cons.ProjectID, cons.WarehouseID, cons.Quantity, cons.Note, cons.ActorID).Scan(&id)
	return id, err
}

// GetConsumptionForUpdate locks one consumption row.
func (t *txRepository) GetConsumptionForUpdate(ctx context.Context, id int64) (MaterialConsumption, error) {
	return scanConsumption(t.tx.QueryRow(ctx, `SELECT id, item_id, project_id, warehouse_id, quantity, note, actor_id, created_at
FROM material_consumptions WHERE id=$1 FOR UPDATE`, id))
}

// UpdateConsumptionQuantity writes the new quantity.
func (t *txRepository) UpdateConsumptionQuantity(ctx context.Context, id int64, qty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE material_consumptions SET quantity=$2 WHERE id=$1`, id, qty)
	return err
}

// DeleteConsumption removes the consumption row.
func (t *txRepository) DeleteConsumption(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM material_consumptions WHERE id=$1`, id)
	return err
}
