package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// CreateMrr persists a DRAFT request with its lines.
func (s *Service) CreateMrr(ctx context.Context, input CreateMrrInput) (Mrr, error) {
	if input.ProjectID == 0 {
		return Mrr{}, fmt.Errorf("%w: project required", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return Mrr{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	if err := s.checkMrrRefs(ctx, input); err != nil {
		return Mrr{}, err
	}
	number, err := s.nextNumber(ctx, "MRR")
	if err != nil {
		return Mrr{}, err
	}
	mrr := Mrr{
		Number: number, ProjectID: input.ProjectID, ComponentID: input.ComponentID,
		SubcontractorID: input.SubcontractorID, Status: MrrDraft, RequiredBy: input.RequiredBy,
		Notes: input.Notes, RequestedBy: input.RequestedBy,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mrrID, err := tx.InsertMrr(ctx, mrr)
		if err != nil {
			return err
		}
		mrr.ID = mrrID
		return insertMrrItems(ctx, tx, mrrID, input.Items)
	})
	if err != nil {
		return Mrr{}, err
	}
	s.recordAudit(ctx, input.RequestedBy, "MRR_CREATE", "mrr", mrr.ID, map[string]any{"number": mrr.Number})
	return mrr, nil
}

// UpdateMrrItems replaces the request lines. DRAFT only.
func (s *Service) UpdateMrrItems(ctx context.Context, mrrID int64, items []MrrItemInput, actorID int64) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	mrr, _, err := s.repo.GetMrr(ctx, mrrID)
	if err != nil {
		return err
	}
	if mrr.Status != MrrDraft {
		return invalidMrrState(MrrDraft, mrr.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteMrrItems(ctx, mrrID); err != nil {
			return err
		}
		return insertMrrItems(ctx, tx, mrrID, items)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "MRR_ITEMS_UPDATE", "mrr", mrrID, nil)
	return nil
}

// SubmitMrr moves DRAFT to SUBMITTED.
func (s *Service) SubmitMrr(ctx context.Context, mrrID int64, actorID int64) error {
	return s.transitionMrr(ctx, mrrID, actorID, MrrDraft, func(mrr *Mrr) {
		mrr.Status = MrrSubmitted
	}, "MRR_SUBMIT")
}

// ApproveMrr moves SUBMITTED to APPROVED, recording the approver.
func (s *Service) ApproveMrr(ctx context.Context, mrrID int64, actorID int64) error {
	now := time.Now().UTC()
	return s.transitionMrr(ctx, mrrID, actorID, MrrSubmitted, func(mrr *Mrr) {
		mrr.Status = MrrApproved
		mrr.ApprovedBy = &actorID
		mrr.ApprovedAt = &now
	}, "MRR_APPROVE")
}

// RejectMrr moves SUBMITTED to REJECTED with a mandatory reason.
func (s *Service) RejectMrr(ctx context.Context, mrrID int64, actorID int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: rejection reason required", shared.ErrValidation)
	}
	return s.transitionMrr(ctx, mrrID, actorID, MrrSubmitted, func(mrr *Mrr) {
		mrr.Status = MrrRejected
		mrr.RejectReason = reason
	}, "MRR_REJECT")
}

func (s *Service) transitionMrr(ctx context.Context, mrrID, actorID int64, required MrrStatus, apply func(*Mrr), action string) error {
	mrr, _, err := s.repo.GetMrr(ctx, mrrID)
	if err != nil {
		return err
	}
	if mrr.Status != required {
		return invalidMrrState(required, mrr.Status)
	}
	apply(&mrr)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateMrrStatus(ctx, mrr)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, action, "mrr", mrrID, map[string]any{"status": mrr.Status})
	return nil
}

// GetMrr returns the request with its lines.
func (s *Service) GetMrr(ctx context.Context, mrrID int64) (Mrr, []MrrItem, error) {
	return s.repo.GetMrr(ctx, mrrID)
}

// ListMrrs pages through requests.
func (s *Service) ListMrrs(ctx context.Context, filter MrrFilter) ([]Mrr, shared.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	mrrs, total, err := s.repo.ListMrrs(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return mrrs, shared.NewPagination(filter.Page, filter.PageSize, total), nil
}

func (s *Service) checkMrrRefs(ctx context.Context, input CreateMrrInput) error {
	if s.refs == nil {
		return nil
	}
	if err := s.refs.ProjectExists(ctx, input.ProjectID); err != nil {
		return err
	}
	if input.ComponentID != nil {
		if err := s.refs.ComponentExists(ctx, *input.ComponentID); err != nil {
			return err
		}
	}
	if input.SubcontractorID != nil {
		if err := s.refs.SubcontractorExists(ctx, *input.SubcontractorID); err != nil {
			return err
		}
	}
	return nil
}

func insertMrrItems(ctx context.Context, tx TxRepository, mrrID int64, items []MrrItemInput) error {
	for _, item := range items {
		if item.ItemID == 0 || item.Qty <= 0 {
			return fmt.Errorf("%w: line item and positive quantity required", shared.ErrValidation)
		}
		err := tx.InsertMrrItem(ctx, MrrItem{MrrID: mrrID, ItemID: item.ItemID, Qty: item.Qty, Unit: item.Unit, Notes: item.Notes})
		if err != nil {
			return err
		}
	}
	return nil
}
