package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/sitechain-erp/sitechain-erp/internal/inventory"
	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// CreateReceipt opens a PENDING receipt against an APPROVED or PLACED PO.
// Creating the receipt records paperwork only; neither the inventory store
// nor the PO line counters move here.
func (s *Service) CreateReceipt(ctx context.Context, input CreateReceiptInput) (MaterialReceipt, error) {
	if input.WarehouseID == 0 {
		return MaterialReceipt{}, fmt.Errorf("%w: warehouse required", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return MaterialReceipt{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	if s.refs != nil {
		if err := s.refs.WarehouseExists(ctx, input.WarehouseID); err != nil {
			return MaterialReceipt{}, err
		}
	}
	po, poLines, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		return MaterialReceipt{}, err
	}
	if po.Status != PoApproved && po.Status != PoPlaced && po.Status != PoPartiallyReceived {
		return MaterialReceipt{}, invalidPoState("APPROVED|PLACED|PARTIALLY_RECEIVED", po.Status)
	}
	open, err := s.repo.HasOpenReceipt(ctx, input.POID)
	if err != nil {
		return MaterialReceipt{}, err
	}
	if open {
		return MaterialReceipt{}, fmt.Errorf("%w: purchase order %s already has an open receipt", shared.ErrValidation, po.Number)
	}
	byID := make(map[int64]PurchaseOrderItem, len(poLines))
	for _, line := range poLines {
		byID[line.ID] = line
	}
	number, err := s.nextNumber(ctx, "RCPT")
	if err != nil {
		return MaterialReceipt{}, err
	}
	receipt := MaterialReceipt{
		Number: number, POID: input.POID, ProjectID: po.ProjectID,
		WarehouseID: input.WarehouseID, Status: ReceiptPending,
		Notes: input.Notes, CreatedBy: input.CreatedBy,
	}
	items := make([]MaterialReceiptItem, 0, len(input.Items))
	for _, line := range input.Items {
		poLine, ok := byID[line.POItemID]
		if !ok {
			return MaterialReceipt{}, fmt.Errorf("%w: po item %d not on purchase order %s", shared.ErrReceiptLineMismatch, line.POItemID, po.Number)
		}
		if line.QtyReceived <= 0 {
			return MaterialReceipt{}, fmt.Errorf("%w: received quantity must be positive", shared.ErrValidation)
		}
		item := MaterialReceiptItem{
			POItemID: line.POItemID, ItemID: poLine.ItemID, QtyReceived: line.QtyReceived,
			Condition: ConditionGood, UnitPrice: poLine.UnitPrice,
			CGSTRate: line.CGSTRate, SGSTRate: line.SGSTRate, IGSTRate: line.IGSTRate,
			Notes: line.Notes,
		}
		// zero rates inherit the PO line's rates
		if item.CGSTRate.IsZero() && item.SGSTRate.IsZero() && item.IGSTRate.IsZero() {
			item.CGSTRate, item.SGSTRate, item.IGSTRate = poLine.CGSTRate, poLine.SGSTRate, poLine.IGSTRate
		}
		items = append(items, item)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receiptID, err := tx.InsertReceipt(ctx, receipt)
		if err != nil {
			return err
		}
		receipt.ID = receiptID
		for i := range items {
			items[i].ReceiptID = receiptID
			if _, err := tx.InsertReceiptItem(ctx, items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return MaterialReceipt{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "RECEIPT_CREATE", "material_receipt", receipt.ID, map[string]any{
		"number": receipt.Number, "po": po.Number,
	})
	return receipt, nil
}

// ReceiveReceipt records the physically confirmed quantity and condition
// per line and moves the receipt to RECEIVED. Still no inventory effect.
func (s *Service) ReceiveReceipt(ctx context.Context, receiptID int64, lines []ReceiveLineInput, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, items, err := tx.GetReceiptForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if receipt.Status != ReceiptPending {
			return invalidReceiptState(string(ReceiptPending), receipt.Status)
		}
		byID := make(map[int64]MaterialReceiptItem, len(items))
		for _, item := range items {
			byID[item.ID] = item
		}
		for _, line := range lines {
			if _, ok := byID[line.ReceiptItemID]; !ok {
				return fmt.Errorf("%w: receipt item %d not on receipt %s", shared.ErrReceiptLineMismatch, line.ReceiptItemID, receipt.Number)
			}
			if line.QtyActuallyReceived < 0 {
				return fmt.Errorf("%w: confirmed quantity must not be negative", shared.ErrValidation)
			}
			condition := line.Condition
			if condition == "" {
				condition = ConditionGood
			}
			if err := tx.UpdateReceiptItemReceive(ctx, line.ReceiptItemID, line.QtyActuallyReceived, condition, line.Notes); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		receipt.Status = ReceiptReceived
		receipt.ReceivedAt = &now
		return tx.UpdateReceiptStatus(ctx, receipt)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "RECEIPT_RECEIVE", "material_receipt", receiptID, nil)
	return nil
}

// VerifyReceipt is the authoritative step that converts claimed deliveries
// into stocked inventory. For each line with a positive verified quantity
// it posts one PURCHASE ledger entry, increments the PO line's received
// counter and finally recomputes the PO's received status. REJECTED lines
// never post. Verifying twice fails with ErrAlreadyProcessed.
//
// The inventory postings join the receipt transaction via the context, so
// either every line is stocked and the receipt is APPROVED, or nothing
// moved at all.
func (s *Service) VerifyReceipt(ctx context.Context, input VerifyReceiptInput) error {
	var poNumber string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, items, err := tx.GetReceiptForUpdate(ctx, input.ReceiptID)
		if err != nil {
			return err
		}
		switch receipt.Status {
		case ReceiptApproved, ReceiptCompleted:
			return fmt.Errorf("%w: receipt %s already processed", shared.ErrAlreadyProcessed, receipt.Number)
		case ReceiptReceived:
		default:
			return invalidReceiptState(string(ReceiptReceived), receipt.Status)
		}
		po, poLines, err := tx.GetPOForUpdate(ctx, receipt.POID)
		if err != nil {
			return err
		}
		poNumber = po.Number
		itemsByID := make(map[int64]MaterialReceiptItem, len(items))
		for _, item := range items {
			itemsByID[item.ID] = item
		}
		poLinesByID := make(map[int64]PurchaseOrderItem, len(poLines))
		for _, line := range poLines {
			poLinesByID[line.ID] = line
		}
		// Validate every line before the first posting: a rejected line must
		// leave all state untouched, never a prefix of it stocked. The
		// over-receipt guard tracks what this verification already claims
		// per PO line, so two receipt lines against the same PO line cannot
		// slip past the ordered quantity one by one.
		type posting struct {
			item MaterialReceiptItem
			qty  float64
		}
		postings := make([]posting, 0, len(input.Lines))
		claimed := make(map[int64]float64)
		for _, line := range input.Lines {
			item, ok := itemsByID[line.ReceiptItemID]
			if !ok {
				return fmt.Errorf("%w: receipt item %d not on receipt %s", shared.ErrReceiptLineMismatch, line.ReceiptItemID, receipt.Number)
			}
			if line.VerifiedQty <= 0 || item.Condition == ConditionRejected {
				continue
			}
			poLine, ok := poLinesByID[item.POItemID]
			if !ok {
				return fmt.Errorf("%w: po item %d not on purchase order %s", shared.ErrReceiptLineMismatch, item.POItemID, poNumber)
			}
			total := poLine.QtyReceived + claimed[item.POItemID] + line.VerifiedQty
			if total > poLine.QtyOrdered+qtyEpsilon && !input.AllowOverReceipt {
				return fmt.Errorf("%w: verified quantity exceeds ordered quantity on po item %d", shared.ErrValidation, poLine.ID)
			}
			claimed[item.POItemID] += line.VerifiedQty
			postings = append(postings, posting{item: item, qty: line.VerifiedQty})
		}
		for _, p := range postings {
			if err := s.postReceiptLine(ctx, receipt, p.item, p.qty, input.ActorID); err != nil {
				return err
			}
			if err := tx.UpdateReceiptItemVerified(ctx, p.item.ID, p.qty); err != nil {
				return err
			}
			if err := tx.AddPOItemReceived(ctx, p.item.POItemID, p.qty); err != nil {
				return err
			}
		}
		_, poLines, err = tx.GetPOForUpdate(ctx, receipt.POID)
		if err != nil {
			return err
		}
		po.Status = receivedStatus(poLines)
		if err := tx.UpdatePOStatus(ctx, po); err != nil {
			return err
		}
		now := time.Now().UTC()
		receipt.Status = ReceiptApproved
		receipt.VerifiedBy = &input.ActorID
		receipt.VerifiedAt = &now
		receipt.InventoryPostedAt = &now
		return tx.UpdateReceiptStatus(ctx, receipt)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, input.ActorID, "RECEIPT_VERIFY", "material_receipt", input.ReceiptID, map[string]any{"po": poNumber})
	return nil
}

// CompleteReceipt closes the receipt administratively. When verification
// never ran and the post-on-complete policy is enabled it performs the
// inventory posting instead, using the confirmed quantities; a receipt
// posts at most once regardless of which step did it.
func (s *Service) CompleteReceipt(ctx context.Context, receiptID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, items, err := tx.GetReceiptForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		switch receipt.Status {
		case ReceiptCompleted:
			return fmt.Errorf("%w: receipt %s already completed", shared.ErrAlreadyProcessed, receipt.Number)
		case ReceiptReceived, ReceiptApproved:
		default:
			return invalidReceiptState("RECEIVED|APPROVED", receipt.Status)
		}
		now := time.Now().UTC()
		if receipt.InventoryPostedAt == nil && s.cfg.PostOnComplete {
			po, poLines, err := tx.GetPOForUpdate(ctx, receipt.POID)
			if err != nil {
				return err
			}
			poLinesByID := make(map[int64]PurchaseOrderItem, len(poLines))
			for _, line := range poLines {
				poLinesByID[line.ID] = line
			}
			// Same validate-then-post split as VerifyReceipt.
			type posting struct {
				item MaterialReceiptItem
				qty  float64
			}
			postings := make([]posting, 0, len(items))
			for _, item := range items {
				qty := item.QtyActuallyReceived
				if qty <= 0 {
					qty = item.QtyReceived
				}
				if qty <= 0 || item.Condition == ConditionRejected {
					continue
				}
				if _, ok := poLinesByID[item.POItemID]; !ok {
					return fmt.Errorf("%w: po item %d not on purchase order %s", shared.ErrReceiptLineMismatch, item.POItemID, po.Number)
				}
				postings = append(postings, posting{item: item, qty: qty})
			}
			for _, p := range postings {
				if err := s.postReceiptLine(ctx, receipt, p.item, p.qty, actorID); err != nil {
					return err
				}
				if err := tx.UpdateReceiptItemVerified(ctx, p.item.ID, p.qty); err != nil {
					return err
				}
				if err := tx.AddPOItemReceived(ctx, p.item.POItemID, p.qty); err != nil {
					return err
				}
			}
			_, poLines, err = tx.GetPOForUpdate(ctx, receipt.POID)
			if err != nil {
				return err
			}
			po.Status = receivedStatus(poLines)
			if err := tx.UpdatePOStatus(ctx, po); err != nil {
				return err
			}
			receipt.InventoryPostedAt = &now
		}
		receipt.Status = ReceiptCompleted
		receipt.CompletedAt = &now
		return tx.UpdateReceiptStatus(ctx, receipt)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "RECEIPT_COMPLETE", "material_receipt", receiptID, nil)
	return nil
}

func (s *Service) postReceiptLine(ctx context.Context, receipt MaterialReceipt, item MaterialReceiptItem, qty float64, actorID int64) error {
	if s.inventory == nil {
		return fmt.Errorf("procurement: inventory integration not configured")
	}
	_, _, err := s.inventory.ApplyChange(ctx, inventory.ChangeInput{
		ItemID:      item.ItemID,
		ProjectID:   receipt.ProjectID,
		WarehouseID: receipt.WarehouseID,
		Delta:       qty,
		Type:        inventory.TransactionPurchase,
		Ref:         fmt.Sprintf("RECEIPT-%d", receipt.ID),
		Description: fmt.Sprintf("receipt %s", receipt.Number),
		ActorID:     actorID,
		UnitCost:    item.UnitPrice,
	})
	return err
}

// GetReceipt returns the receipt with its lines.
func (s *Service) GetReceipt(ctx context.Context, receiptID int64) (MaterialReceipt, []MaterialReceiptItem, error) {
	return s.repo.GetReceipt(ctx, receiptID)
}

// ListReceipts pages through receipts.
func (s *Service) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]MaterialReceipt, shared.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	receipts, total, err := s.repo.ListReceipts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return receipts, shared.NewPagination(filter.Page, filter.PageSize, total), nil
}
