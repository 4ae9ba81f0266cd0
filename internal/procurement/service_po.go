package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sitechain-erp/sitechain-erp/internal/ap"
	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// CreatePO persists a DRAFT purchase order with priced lines. When derived
// from an MRR that MRR must be APPROVED.
func (s *Service) CreatePO(ctx context.Context, input CreatePoInput) (PurchaseOrder, error) {
	if input.SupplierID == 0 || input.ProjectID == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier and project required", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	if s.refs != nil {
		if err := s.refs.ProjectExists(ctx, input.ProjectID); err != nil {
			return PurchaseOrder{}, err
		}
	}
	if input.MrrID != nil {
		if err := s.MrrApproved(ctx, *input.MrrID); err != nil {
			return PurchaseOrder{}, err
		}
	}
	number, err := s.nextNumber(ctx, "PO")
	if err != nil {
		return PurchaseOrder{}, err
	}
	lines := make([]PurchaseOrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		line, err := buildPOLine(item)
		if err != nil {
			return PurchaseOrder{}, err
		}
		lines = append(lines, line)
	}
	subtotal, tax, total := poTotals(lines)
	po := PurchaseOrder{
		Number: number, SupplierID: input.SupplierID, ProjectID: input.ProjectID,
		MrrID: input.MrrID, Status: PoDraft, Subtotal: subtotal, TaxAmount: tax,
		TotalAmount: total, ExpectedDate: input.ExpectedDate, Notes: input.Notes,
		CreatedBy: input.CreatedBy,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		poID, err := tx.InsertPO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = poID
		for i := range lines {
			lines[i].POID = poID
			if _, err := tx.InsertPOItem(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "PO_CREATE", "purchase_order", po.ID, map[string]any{
		"number": po.Number, "total": po.TotalAmount.String(),
	})
	return po, nil
}

// AddPOLine appends a line to a DRAFT PO and recomputes totals.
func (s *Service) AddPOLine(ctx context.Context, poID int64, input PoItemInput, actorID int64) error {
	line, err := buildPOLine(input)
	if err != nil {
		return err
	}
	line.POID = poID
	return s.mutateDraftLines(ctx, poID, actorID, "PO_LINE_ADD", func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertPOItem(ctx, line)
		return err
	})
}

// UpdatePOLine reprices an existing line on a DRAFT PO and recomputes totals.
func (s *Service) UpdatePOLine(ctx context.Context, poID, lineID int64, input PoItemInput, actorID int64) error {
	line, err := buildPOLine(input)
	if err != nil {
		return err
	}
	line.ID = lineID
	line.POID = poID
	return s.mutateDraftLines(ctx, poID, actorID, "PO_LINE_UPDATE", func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOItem(ctx, line)
	})
}

// RemovePOLine deletes a line from a DRAFT PO and recomputes totals.
func (s *Service) RemovePOLine(ctx context.Context, poID, lineID int64, actorID int64) error {
	return s.mutateDraftLines(ctx, poID, actorID, "PO_LINE_REMOVE", func(ctx context.Context, tx TxRepository) error {
		return tx.DeletePOItem(ctx, poID, lineID)
	})
}

func (s *Service) mutateDraftLines(ctx context.Context, poID, actorID int64, action string, mutate func(context.Context, TxRepository) error) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, _, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != PoDraft {
			return invalidPoState(string(PoDraft), po.Status)
		}
		if err := mutate(ctx, tx); err != nil {
			return err
		}
		_, lines, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		subtotal, tax, total := poTotals(lines)
		return tx.UpdatePOTotals(ctx, poID, subtotal, tax, total)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, action, "purchase_order", poID, nil)
	return nil
}

// ApprovePO moves DRAFT to APPROVED, recording the approver.
func (s *Service) ApprovePO(ctx context.Context, poID, actorID int64) error {
	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if po.Status != PoDraft {
		return invalidPoState(string(PoDraft), po.Status)
	}
	now := time.Now().UTC()
	po.Status = PoApproved
	po.ApprovedBy = &actorID
	po.ApprovedAt = &now
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, po)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_APPROVE", "purchase_order", poID, map[string]any{"number": po.Number})
	return nil
}

// PlacePO moves APPROVED to PLACED and posts exactly one supplier-ledger
// PURCHASE debit for the PO total. The posting joins the placement
// transaction through the context, so the debit and the status flip commit
// atomically; the HasPurchaseForPO check additionally lets a retry complete
// a flip whose debit already exists from an earlier schema or import. A PO
// that is already PLACED fails with ErrDuplicatePosting.
func (s *Service) PlacePO(ctx context.Context, poID, actorID int64) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, _, err = tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status == PoPlaced {
			return fmt.Errorf("%w: purchase order %s already placed", shared.ErrDuplicatePosting, po.Number)
		}
		if po.Status != PoApproved {
			return invalidPoState(string(PoApproved), po.Status)
		}
		posted, err := s.ledger.HasPurchaseForPO(ctx, poID)
		if err != nil {
			return err
		}
		if !posted {
			_, err = s.ledger.PostPurchase(ctx, ap.PurchaseInput{
				SupplierID:  po.SupplierID,
				POID:        poID,
				Amount:      po.TotalAmount,
				Description: fmt.Sprintf("PO %s placed", po.Number),
				ActorID:     actorID,
			})
			if err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		po.Status = PoPlaced
		po.PlacedAt = &now
		return tx.UpdatePOStatus(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	if s.notifier != nil {
		if err := s.notifier.NotifySupplierPlaced(ctx, po.SupplierID, po.Number, po.TotalAmount); err != nil {
			slog.Warn("supplier notification enqueue failed", slog.String("po", po.Number), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actorID, "PO_PLACE", "purchase_order", poID, map[string]any{
		"number": po.Number, "total": po.TotalAmount.String(),
	})
	return po, nil
}

// CancelPO cancels a PO that has not received goods yet. Cancelling a
// PLACED order reverses its PURCHASE debit with a credit note in the same
// transaction: the ledger is append-only, so the supplier balance is
// corrected by a compensating entry, never by deleting the debit.
func (s *Service) CancelPO(ctx context.Context, poID, actorID int64, reason string) error {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, _, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		number = po.Number
		switch po.Status {
		case PoDraft, PoApproved, PoPlaced:
		default:
			return invalidPoState("DRAFT|APPROVED|PLACED", po.Status)
		}
		if po.Status == PoPlaced {
			_, err = s.ledger.PostCreditNote(ctx, ap.NoteInput{
				SupplierID:  po.SupplierID,
				POID:        &poID,
				Amount:      po.TotalAmount,
				Description: fmt.Sprintf("reversal: PO %s cancelled", po.Number),
				ActorID:     actorID,
			})
			if err != nil {
				return err
			}
		}
		po.Status = PoCancelled
		if reason != "" {
			po.Notes = reason
		}
		return tx.UpdatePOStatus(ctx, po)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_CANCEL", "purchase_order", poID, map[string]any{
		"number": number, "reason": reason,
	})
	return nil
}

// ClosePO closes a fully received PO.
func (s *Service) ClosePO(ctx context.Context, poID, actorID int64) error {
	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if po.Status != PoFullyReceived {
		return invalidPoState(string(PoFullyReceived), po.Status)
	}
	po.Status = PoClosed
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, po)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_CLOSE", "purchase_order", poID, nil)
	return nil
}

// GetPO returns the order with its lines.
func (s *Service) GetPO(ctx context.Context, poID int64) (PurchaseOrder, []PurchaseOrderItem, error) {
	return s.repo.GetPO(ctx, poID)
}

// ListPOs pages through orders.
func (s *Service) ListPOs(ctx context.Context, filter PoFilter) ([]PurchaseOrder, shared.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	pos, total, err := s.repo.ListPOs(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return pos, shared.NewPagination(filter.Page, filter.PageSize, total), nil
}

// receivedStatus derives the post-verification status from line counters.
func receivedStatus(lines []PurchaseOrderItem) PoStatus {
	var ordered, received float64
	for _, line := range lines {
		ordered += line.QtyOrdered
		received += line.QtyReceived
	}
	if received <= 0 {
		return PoPlaced
	}
	if received+qtyEpsilon >= ordered {
		return PoFullyReceived
	}
	return PoPartiallyReceived
}

const qtyEpsilon = 1e-4

func buildPOLine(input PoItemInput) (PurchaseOrderItem, error) {
	if input.ItemID == 0 {
		return PurchaseOrderItem{}, fmt.Errorf("%w: line item required", shared.ErrValidation)
	}
	if input.Qty <= 0 || math.IsNaN(input.Qty) || math.IsInf(input.Qty, 0) {
		return PurchaseOrderItem{}, fmt.Errorf("%w: line quantity must be positive", shared.ErrValidation)
	}
	if input.UnitPrice.IsNegative() {
		return PurchaseOrderItem{}, fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
	}
	if input.CGSTRate.IsNegative() || input.SGSTRate.IsNegative() || input.IGSTRate.IsNegative() {
		return PurchaseOrderItem{}, fmt.Errorf("%w: GST rates must not be negative", shared.ErrValidation)
	}
	line := PurchaseOrderItem{
		ItemID: input.ItemID, QtyOrdered: input.Qty, Unit: input.Unit,
		UnitPrice: input.UnitPrice, CGSTRate: input.CGSTRate, SGSTRate: input.SGSTRate,
		IGSTRate: input.IGSTRate, Notes: input.Notes,
	}
	priceLine(&line)
	return line, nil
}
