package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitechain-erp/sitechain-erp/internal/platform/db"
	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction. The transaction
// rides the context handed to the callback so downstream ledger ports
// (inventory, supplier) join it rather than committing independently.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if tx, ok := db.TxFromContext(ctx); ok {
		return fn(ctx, &txRepo{tx: tx})
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(db.ContextWithTx(ctx, tx), wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Fetch helpers

const mrrColumns = `id, number, project_id, component_id, subcontractor_id, status, required_by, notes, requested_by, approved_by, approved_at, reject_reason, created_at, updated_at`

// GetMrr returns the request and its lines.
func (r *Repository) GetMrr(ctx context.Context, id int64) (Mrr, []MrrItem, error) {
	var mrr Mrr
	err := r.pool.QueryRow(ctx, `SELECT `+mrrColumns+` FROM mrrs WHERE id = $1`, id).Scan(scanMrr(&mrr)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mrr{}, nil, fmt.Errorf("%w: mrr %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Mrr{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, mrr_id, item_id, qty, unit, notes FROM mrr_items WHERE mrr_id = $1 ORDER BY id`, id)
	if err != nil {
		return Mrr{}, nil, err
	}
	defer rows.Close()
	var items []MrrItem
	for rows.Next() {
		var item MrrItem
		if err := rows.Scan(&item.ID, &item.MrrID, &item.ItemID, &item.Qty, &item.Unit, &item.Notes); err != nil {
			return Mrr{}, nil, err
		}
		items = append(items, item)
	}
	return mrr, items, rows.Err()
}

// ListMrrs pages through requests.
func (r *Repository) ListMrrs(ctx context.Context, filter MrrFilter) ([]Mrr, int, error) {
	var clauses []string
	var args []any
	if filter.ProjectID != 0 {
		args = append(args, filter.ProjectID)
		clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM mrrs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.PageSize
	rows, err := r.pool.Query(ctx, `SELECT `+mrrColumns+` FROM mrrs`+where+fmt.Sprintf(` ORDER BY id DESC LIMIT %d OFFSET %d`, filter.PageSize, offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	mrrs := []Mrr{}
	for rows.Next() {
		var mrr Mrr
		if err := rows.Scan(scanMrr(&mrr)...); err != nil {
			return nil, 0, err
		}
		mrrs = append(mrrs, mrr)
	}
	return mrrs, total, rows.Err()
}

const poColumns = `id, number, supplier_id, project_id, mrr_id, status, subtotal, tax_amount, total_amount, expected_date, notes, created_by, approved_by, approved_at, placed_at, created_at, updated_at`
const poItemColumns = `id, po_id, item_id, qty_ordered, qty_received, unit, unit_price, cgst_rate, sgst_rate, igst_rate, line_total, cgst_amount, sgst_amount, igst_amount, notes`

// GetPO returns the order and its lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, []PurchaseOrderItem, error) {
	return getPO(ctx, r.pool, id, "")
}

// ListPOs pages through orders.
func (r *Repository) ListPOs(ctx context.Context, filter PoFilter) ([]PurchaseOrder, int, error) {
	var clauses []string
	var args []any
	if filter.ProjectID != 0 {
		args = append(args, filter.ProjectID)
		clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.SupplierID != 0 {
		args = append(args, filter.SupplierID)
		clauses = append(clauses, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.PageSize
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders`+where+fmt.Sprintf(` ORDER BY id DESC LIMIT %d OFFSET %d`, filter.PageSize, offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	pos := []PurchaseOrder{}
	for rows.Next() {
		var po PurchaseOrder
		if err := rows.Scan(scanPO(&po)...); err != nil {
			return nil, 0, err
		}
		pos = append(pos, po)
	}
	return pos, total, rows.Err()
}

const receiptColumns = `id, number, po_id, project_id, warehouse_id, status, notes, created_by, received_at, verified_by, verified_at, completed_at, inventory_posted_at, created_at, updated_at`
const receiptItemColumns = `id, receipt_id, po_item_id, item_id, qty_received, qty_actually_received, verified_qty, condition, unit_price, cgst_rate, sgst_rate, igst_rate, notes`

// GetReceipt returns the receipt and its lines.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (MaterialReceipt, []MaterialReceiptItem, error) {
	return getReceipt(ctx, r.pool, id, "")
}

// ListReceipts pages through receipts.
func (r *Repository) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]MaterialReceipt, int, error) {
	var clauses []string
	var args []any
	if filter.POID != 0 {
		args = append(args, filter.POID)
		clauses = append(clauses, fmt.Sprintf("po_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM material_receipts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.PageSize
	rows, err := r.pool.Query(ctx, `SELECT `+receiptColumns+` FROM material_receipts`+where+fmt.Sprintf(` ORDER BY id DESC LIMIT %d OFFSET %d`, filter.PageSize, offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	receipts := []MaterialReceipt{}
	for rows.Next() {
		var receipt MaterialReceipt
		if err := rows.Scan(scanReceipt(&receipt)...); err != nil {
			return nil, 0, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, total, rows.Err()
}

// HasOpenReceipt reports whether the PO has a receipt that is not yet
// completed.
func (r *Repository) HasOpenReceipt(ctx context.Context, poID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM material_receipts WHERE po_id = $1 AND status <> 'COMPLETED')`, poID,
	).Scan(&exists)
	return exists, err
}

// querier is satisfied by both the pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPO(ctx context.Context, q querier, id int64, lock string) (PurchaseOrder, []PurchaseOrderItem, error) {
	var po PurchaseOrder
	err := q.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`+lock, id).Scan(scanPO(&po)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, nil, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+poItemColumns+` FROM purchase_order_items WHERE po_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()
	var lines []PurchaseOrderItem
	for rows.Next() {
		var line PurchaseOrderItem
		if err := rows.Scan(scanPOItem(&line)...); err != nil {
			return PurchaseOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return po, lines, rows.Err()
}

func getReceipt(ctx context.Context, q querier, id int64, lock string) (MaterialReceipt, []MaterialReceiptItem, error) {
	var receipt MaterialReceipt
	err := q.QueryRow(ctx, `SELECT `+receiptColumns+` FROM material_receipts WHERE id = $1`+lock, id).Scan(scanReceipt(&receipt)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return MaterialReceipt{}, nil, fmt.Errorf("%w: material receipt %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return MaterialReceipt{}, nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+receiptItemColumns+` FROM material_receipt_items WHERE receipt_id = $1 ORDER BY id`, id)
	if err != nil {
		return MaterialReceipt{}, nil, err
	}
	defer rows.Close()
	var items []MaterialReceiptItem
	for rows.Next() {
		var item MaterialReceiptItem
		if err := rows.Scan(scanReceiptItem(&item)...); err != nil {
			return MaterialReceipt{}, nil, err
		}
		items = append(items, item)
	}
	return receipt, items, rows.Err()
}

func scanMrr(mrr *Mrr) []any {
	return []any{&mrr.ID, &mrr.Number, &mrr.ProjectID, &mrr.ComponentID, &mrr.SubcontractorID,
		&mrr.Status, &mrr.RequiredBy, &mrr.Notes, &mrr.RequestedBy, &mrr.ApprovedBy,
		&mrr.ApprovedAt, &mrr.RejectReason, &mrr.CreatedAt, &mrr.UpdatedAt}
}

func scanPO(po *PurchaseOrder) []any {
	return []any{&po.ID, &po.Number, &po.SupplierID, &po.ProjectID, &po.MrrID, &po.Status,
		&po.Subtotal, &po.TaxAmount, &po.TotalAmount, &po.ExpectedDate, &po.Notes,
		&po.CreatedBy, &po.ApprovedBy, &po.ApprovedAt, &po.PlacedAt, &po.CreatedAt, &po.UpdatedAt}
}

func scanPOItem(line *PurchaseOrderItem) []any {
	return []any{&line.ID, &line.POID, &line.ItemID, &line.QtyOrdered, &line.QtyReceived,
		&line.Unit, &line.UnitPrice, &line.CGSTRate, &line.SGSTRate, &line.IGSTRate,
		&line.LineTotal, &line.CGSTAmount, &line.SGSTAmount, &line.IGSTAmount, &line.Notes}
}

func scanReceipt(receipt *MaterialReceipt) []any {
	return []any{&receipt.ID, &receipt.Number, &receipt.POID, &receipt.ProjectID,
		&receipt.WarehouseID, &receipt.Status, &receipt.Notes, &receipt.CreatedBy,
		&receipt.ReceivedAt, &receipt.VerifiedBy, &receipt.VerifiedAt, &receipt.CompletedAt,
		&receipt.InventoryPostedAt, &receipt.CreatedAt, &receipt.UpdatedAt}
}

func scanReceiptItem(item *MaterialReceiptItem) []any {
	return []any{&item.ID, &item.ReceiptID, &item.POItemID, &item.ItemID, &item.QtyReceived,
		&item.QtyActuallyReceived, &item.VerifiedQty, &item.Condition, &item.UnitPrice,
		&item.CGSTRate, &item.SGSTRate, &item.IGSTRate, &item.Notes}
}
