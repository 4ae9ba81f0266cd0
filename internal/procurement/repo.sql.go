package procurement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

func (r *txRepo) InsertMrr(ctx context.Context, mrr Mrr) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO mrrs (number, project_id, component_id, subcontractor_id, status, required_by, notes, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		mrr.Number, mrr.ProjectID, mrr.ComponentID, mrr.SubcontractorID, mrr.Status, mrr.RequiredBy, mrr.Notes, mrr.RequestedBy,
	).Scan(&id)
	return id, err
}

func (r *txRepo) InsertMrrItem(ctx context.Context, item MrrItem) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO mrr_items (mrr_id, item_id, qty, unit, notes)
		VALUES ($1, $2, $3, $4, $5)`,
		item.MrrID, item.ItemID, item.Qty, item.Unit, item.Notes)
	return err
}

func (r *txRepo) DeleteMrrItems(ctx context.Context, mrrID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM mrr_items WHERE mrr_id = $1`, mrrID)
	return err
}

func (r *txRepo) UpdateMrrStatus(ctx context.Context, mrr Mrr) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE mrrs SET status = $2, approved_by = $3, approved_at = $4, reject_reason = $5, updated_at = now()
		WHERE id = $1`,
		mrr.ID, mrr.Status, mrr.ApprovedBy, mrr.ApprovedAt, mrr.RejectReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: mrr %d", shared.ErrNotFound, mrr.ID)
	}
	return nil
}

func (r *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (number, supplier_id, project_id, mrr_id, status, subtotal, tax_amount, total_amount, expected_date, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		po.Number, po.SupplierID, po.ProjectID, po.MrrID, po.Status, po.Subtotal, po.TaxAmount,
		po.TotalAmount, po.ExpectedDate, po.Notes, po.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, []PurchaseOrderItem, error) {
	return getPO(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txRepo) InsertPOItem(ctx context.Context, item PurchaseOrderItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO purchase_order_items (po_id, item_id, qty_ordered, qty_received, unit, unit_price, cgst_rate, sgst_rate, igst_rate, line_total, cgst_amount, sgst_amount, igst_amount, notes)
		VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		item.POID, item.ItemID, item.QtyOrdered, item.Unit, item.UnitPrice,
		item.CGSTRate, item.SGSTRate, item.IGSTRate,
		item.LineTotal, item.CGSTAmount, item.SGSTAmount, item.IGSTAmount, item.Notes,
	).Scan(&id)
	return id, err
}

func (r *txRepo) UpdatePOItem(ctx context.Context, item PurchaseOrderItem) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE purchase_order_items
		SET item_id = $3, qty_ordered = $4, unit = $5, unit_price = $6,
		    cgst_rate = $7, sgst_rate = $8, igst_rate = $9,
		    line_total = $10, cgst_amount = $11, sgst_amount = $12, igst_amount = $13, notes = $14
		WHERE id = $1 AND po_id = $2`,
		item.ID, item.POID, item.ItemID, item.QtyOrdered, item.Unit, item.UnitPrice,
		item.CGSTRate, item.SGSTRate, item.IGSTRate,
		item.LineTotal, item.CGSTAmount, item.SGSTAmount, item.IGSTAmount, item.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: po item %d", shared.ErrNotFound, item.ID)
	}
	return nil
}

func (r *txRepo) DeletePOItem(ctx context.Context, poID, itemID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE id = $1 AND po_id = $2`, itemID, poID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: po item %d", shared.ErrNotFound, itemID)
	}
	return nil
}

func (r *txRepo) UpdatePOTotals(ctx context.Context, poID int64, subtotal, tax, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE purchase_orders SET subtotal = $2, tax_amount = $3, total_amount = $4, updated_at = now()
		WHERE id = $1`,
		poID, subtotal, tax, total)
	return err
}

func (r *txRepo) UpdatePOStatus(ctx context.Context, po PurchaseOrder) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE purchase_orders SET status = $2, approved_by = $3, approved_at = $4, placed_at = $5, notes = $6, updated_at = now()
		WHERE id = $1`,
		po.ID, po.Status, po.ApprovedBy, po.ApprovedAt, po.PlacedAt, po.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, po.ID)
	}
	return nil
}

func (r *txRepo) AddPOItemReceived(ctx context.Context, poItemID int64, qty float64) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE purchase_order_items SET qty_received = qty_received + $2 WHERE id = $1`,
		poItemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: po item %d", shared.ErrNotFound, poItemID)
	}
	return nil
}

func (r *txRepo) InsertReceipt(ctx context.Context, receipt MaterialReceipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO material_receipts (number, po_id, project_id, warehouse_id, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		receipt.Number, receipt.POID, receipt.ProjectID, receipt.WarehouseID, receipt.Status, receipt.Notes, receipt.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *txRepo) InsertReceiptItem(ctx context.Context, item MaterialReceiptItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO material_receipt_items (receipt_id, po_item_id, item_id, qty_received, qty_actually_received, verified_qty, condition, unit_price, cgst_rate, sgst_rate, igst_rate, notes)
		VALUES ($1, $2, $3, $4, 0, 0, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		item.ReceiptID, item.POItemID, item.ItemID, item.QtyReceived, item.Condition,
		item.UnitPrice, item.CGSTRate, item.SGSTRate, item.IGSTRate, item.Notes,
	).Scan(&id)
	return id, err
}

func (r *txRepo) GetReceiptForUpdate(ctx context.Context, id int64) (MaterialReceipt, []MaterialReceiptItem, error) {
	return getReceipt(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txRepo) UpdateReceiptItemReceive(ctx context.Context, itemID int64, qty float64, condition LineCondition, notes string) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE material_receipt_items
		SET qty_actually_received = $2, condition = $3, notes = CASE WHEN $4 <> '' THEN $4 ELSE notes END
		WHERE id = $1`,
		itemID, qty, condition, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: receipt item %d", shared.ErrNotFound, itemID)
	}
	return nil
}

func (r *txRepo) UpdateReceiptItemVerified(ctx context.Context, itemID int64, verifiedQty float64) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE material_receipt_items SET verified_qty = $2 WHERE id = $1`,
		itemID, verifiedQty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: receipt item %d", shared.ErrNotFound, itemID)
	}
	return nil
}

func (r *txRepo) UpdateReceiptStatus(ctx context.Context, receipt MaterialReceipt) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE material_receipts
		SET status = $2, received_at = $3, verified_by = $4, verified_at = $5, completed_at = $6, inventory_posted_at = $7, updated_at = now()
		WHERE id = $1`,
		receipt.ID, receipt.Status, receipt.ReceivedAt, receipt.VerifiedBy, receipt.VerifiedAt,
		receipt.CompletedAt, receipt.InventoryPostedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: material receipt %d", shared.ErrNotFound, receipt.ID)
	}
	return nil
}
