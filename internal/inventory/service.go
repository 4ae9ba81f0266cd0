package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// qtyEpsilon absorbs float drift when comparing quantities.
const qtyEpsilon = 1e-4

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRecord(ctx context.Context, itemID, projectID, warehouseID int64) (Record, error)
	GetRecordByID(ctx context.Context, id int64) (Record, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error)
	LowStock(ctx context.Context, projectID int64) ([]Record, error)
	GetLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
	GetIssue(ctx context.Context, id int64) (MaterialIssue, error)
	GetReturn(ctx context.Context, id int64) (MaterialReturn, error)
	GetConsumption(ctx context.Context, id int64) (MaterialConsumption, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetRecordForUpdate(ctx context.Context, itemID, projectID, warehouseID int64) (Record, error)
	InsertRecord(ctx context.Context, record Record) (int64, error)
	UpdateRecord(ctx context.Context, record Record) error
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error)
	InsertIssue(ctx context.Context, issue MaterialIssue) (int64, error)
	GetIssueForUpdate(ctx context.Context, id int64) (MaterialIssue, error)
	UpdateIssueQuantity(ctx context.Context, id int64, qty float64) error
	DeleteIssue(ctx context.Context, id int64) error
	InsertReturn(ctx context.Context, ret MaterialReturn) (int64, error)
	GetReturnForUpdate(ctx context.Context, id int64) (MaterialReturn, error)
	UpdateReturnQuantity(ctx context.Context, id int64, qty float64) error
	DeleteReturn(ctx context.Context, id int64) error
	InsertConsumption(ctx context.Context, cons MaterialConsumption) (int64, error)
	GetConsumptionForUpdate(ctx context.Context, id int64) (MaterialConsumption, error)
	UpdateConsumptionQuantity(ctx context.Context, id int64, qty float64) error
	DeleteConsumption(ctx context.Context, id int64) error
}

// MrrGate checks that a material requirement request permits issuing.
// Implemented by the procurement service; wired after construction to avoid
// a package cycle.
type MrrGate interface {
	MrrApproved(ctx context.Context, mrrID int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReferencePort validates project/warehouse foreign keys at the boundary.
type ReferencePort interface {
	ProjectExists(ctx context.Context, id int64) error
	WarehouseExists(ctx context.Context, id int64) error
}

// MetricsPort counts ledger postings.
type MetricsPort interface {
	LedgerPosted(ledger, txType string)
	LedgerRejected(ledger, reason string)
}

// Service owns the inventory store and ledger. ApplyChange is the single
// sanctioned mutation path for stock; issue, return, consumption, restock,
// adjustment and receipt verification all funnel through it so replaying a
// record's ledger always reproduces its quantity.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	refs    ReferencePort
	metrics MetricsPort
	gate    MrrGate
}

// NewService builds the Service.
func NewService(repo RepositoryPort, audit AuditPort, refs ReferencePort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, refs: refs, metrics: metrics}
}

// SetMrrGate wires the requirement-request gate. Late-bound because the
// procurement service is constructed after the inventory service.
func (s *Service) SetMrrGate(gate MrrGate) {
	s.gate = gate
}

// CreateRecord registers an (item, project, warehouse) stock pool. Initial
// quantity, when present, posts as a RESTOCK ledger entry so the replay
// invariant covers the record from its first unit.
func (s *Service) CreateRecord(ctx context.Context, input CreateRecordInput) (Record, error) {
	if input.ItemID == 0 || input.ProjectID == 0 || input.WarehouseID == 0 {
		return Record{}, fmt.Errorf("%w: item, project and warehouse required", shared.ErrValidation)
	}
	if input.InitialQty < 0 {
		return Record{}, ErrInvalidQuantity
	}
	if err := s.checkRefs(ctx, input.ProjectID, input.WarehouseID); err != nil {
		return Record{}, err
	}
	var created Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.GetRecordForUpdate(ctx, input.ItemID, input.ProjectID, input.WarehouseID)
		if err == nil {
			return ErrRecordExists
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return err
		}
		record := Record{
			ItemID:       input.ItemID,
			ProjectID:    input.ProjectID,
			WarehouseID:  input.WarehouseID,
			Quantity:     0,
			MinLevel:     input.MinLevel,
			MaxLevel:     input.MaxLevel,
			ReorderLevel: input.ReorderLevel,
			UnitCost:     input.UnitCost,
			Status:       RecordStatusActive,
		}
		id, err := tx.InsertRecord(ctx, record)
		if err != nil {
			return err
		}
		record.ID = id
		created = record
		if input.InitialQty > 0 {
			created, _, err = s.applyChangeTx(ctx, tx, ChangeInput{
				ItemID:      input.ItemID,
				ProjectID:   input.ProjectID,
				WarehouseID: input.WarehouseID,
				Delta:       input.InitialQty,
				Type:        TransactionRestock,
				Ref:         fmt.Sprintf("RECORD-CREATE-%d", id),
				Description: "initial stock",
				ActorID:     input.ActorID,
				UnitCost:    input.UnitCost,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	s.recordAudit(ctx, input.ActorID, "INVENTORY_RECORD_CREATE", created.ID, map[string]any{
		"item_id": input.ItemID, "project_id": input.ProjectID, "warehouse_id": input.WarehouseID, "initial_qty": input.InitialQty,
	})
	return created, nil
}

// ApplyChange atomically mutates quantity-on-hand and appends exactly one
// ledger entry with before/after snapshots. Negative deltas exceeding the
// available quantity fail with InsufficientStockError and leave state
// untouched.
func (s *Service) ApplyChange(ctx context.Context, input ChangeInput) (Record, LedgerEntry, error) {
	var (
		record Record
		entry  LedgerEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		record, entry, err = s.applyChangeTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return Record{}, LedgerEntry{}, err
	}
	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("INVENTORY_%s", input.Type), record.ID, map[string]any{
		"delta": input.Delta, "ref": input.Ref, "qty_after": entry.QtyAfter,
	})
	return record, entry, nil
}

// applyChangeTx runs the mutation inside the caller's transaction so
// operation rows (issue, return, ...) and their ledger entries commit
// together.
func (s *Service) applyChangeTx(ctx context.Context, tx TxRepository, input ChangeInput) (Record, LedgerEntry, error) {
	if input.ItemID == 0 || input.ProjectID == 0 || input.WarehouseID == 0 {
		return Record{}, LedgerEntry{}, fmt.Errorf("%w: item, project and warehouse required", shared.ErrValidation)
	}
	if math.Abs(input.Delta) < qtyEpsilon {
		return Record{}, LedgerEntry{}, ErrInvalidQuantity
	}
	switch input.Type {
	case TransactionPurchase, TransactionIssue, TransactionReturn, TransactionConsumption, TransactionAdjustment, TransactionRestock:
	default:
		return Record{}, LedgerEntry{}, fmt.Errorf("%w: unknown transaction type %q", shared.ErrValidation, input.Type)
	}

	record, err := tx.GetRecordForUpdate(ctx, input.ItemID, input.ProjectID, input.WarehouseID)
	if errors.Is(err, ErrRecordNotFound) {
		if input.Delta < 0 {
			s.rejected(string(input.Type))
			return Record{}, LedgerEntry{}, &shared.InsufficientStockError{Available: 0, Requested: -input.Delta}
		}
		record = Record{
			ItemID:      input.ItemID,
			ProjectID:   input.ProjectID,
			WarehouseID: input.WarehouseID,
			UnitCost:    input.UnitCost,
			Status:      RecordStatusActive,
		}
		record.ID, err = tx.InsertRecord(ctx, record)
		if err != nil {
			return Record{}, LedgerEntry{}, err
		}
	} else if err != nil {
		return Record{}, LedgerEntry{}, err
	}
	if record.Status == RecordStatusDiscontinued {
		return Record{}, LedgerEntry{}, ErrRecordNotActive
	}

	before := record.Quantity
	after := before + input.Delta
	if after < -qtyEpsilon {
		s.rejected(string(input.Type))
		return Record{}, LedgerEntry{}, &shared.InsufficientStockError{Available: before, Requested: -input.Delta}
	}
	if math.Abs(after) < qtyEpsilon {
		after = 0
	}

	record.Quantity = after
	if input.Delta > 0 && !input.UnitCost.IsZero() {
		record.UnitCost = input.UnitCost
	}
	if err := tx.UpdateRecord(ctx, record); err != nil {
		return Record{}, LedgerEntry{}, err
	}

	entry := LedgerEntry{
		RecordID:    record.ID,
		ItemID:      input.ItemID,
		ProjectID:   input.ProjectID,
		WarehouseID: input.WarehouseID,
		Type:        input.Type,
		Delta:       input.Delta,
		QtyBefore:   before,
		QtyAfter:    after,
		Ref:         input.Ref,
		Description: input.Description,
		ActorID:     input.ActorID,
		At:          time.Now().UTC(),
	}
	entry.ID, err = tx.InsertLedgerEntry(ctx, entry)
	if err != nil {
		return Record{}, LedgerEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.LedgerPosted("inventory", string(input.Type))
	}
	return record, entry, nil
}

// Restock replenishes a record outside the receipt flow.
func (s *Service) Restock(ctx context.Context, itemID, projectID, warehouseID int64, qty float64, unitCost decimal.Decimal, actorID int64, note string) (Record, error) {
	if qty <= 0 {
		return Record{}, ErrInvalidQuantity
	}
	record, _, err := s.ApplyChange(ctx, ChangeInput{
		ItemID: itemID, ProjectID: projectID, WarehouseID: warehouseID,
		Delta: qty, Type: TransactionRestock, Ref: "RESTOCK",
		Description: note, ActorID: actorID, UnitCost: unitCost,
	})
	return record, err
}

// Adjust posts a manual correction with either sign.
func (s *Service) Adjust(ctx context.Context, itemID, projectID, warehouseID int64, delta float64, actorID int64, note string) (Record, error) {
	record, _, err := s.ApplyChange(ctx, ChangeInput{
		ItemID: itemID, ProjectID: projectID, WarehouseID: warehouseID,
		Delta: delta, Type: TransactionAdjustment, Ref: "ADJUSTMENT",
		Description: note, ActorID: actorID,
	})
	return record, err
}

// CreateIssue hands stock out. Requires available quantity and, when tied
// to a requirement request, that the request is approved.
func (s *Service) CreateIssue(ctx context.Context, input IssueInput) (MaterialIssue, error) {
	if input.Quantity <= 0 {
		return MaterialIssue{}, ErrInvalidQuantity
	}
	if input.MrrID != nil {
		if s.gate == nil {
			return MaterialIssue{}, errors.New("inventory: requirement request gate not configured")
		}
		if err := s.gate.MrrApproved(ctx, *input.MrrID); err != nil {
			return MaterialIssue{}, err
		}
	}
	issue := MaterialIssue{
		ItemID: input.ItemID, ProjectID: input.ProjectID, WarehouseID: input.WarehouseID,
		Quantity: input.Quantity, MrrID: input.MrrID, IssuedTo: input.IssuedTo,
		Note: input.Note, ActorID: input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertIssue(ctx, issue)
		if err != nil {
			return err
		}
		issue.ID = id
		_, _, err = s.applyChangeTx(ctx, tx, ChangeInput{
			ItemID: input.ItemID, ProjectID: input.ProjectID, WarehouseID: input.WarehouseID,
			Delta: -input.Quantity, Type: TransactionIssue,
			Ref: fmt.Sprintf("ISSUE-%d", id), Description: input.Note, ActorID: input.ActorID,
		})
		return err
	})
	if err != nil {
		return MaterialIssue{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ISSUE_CREATE", issue.ID, map[string]any{"qty": input.Quantity, "issued_to": input.IssuedTo})
	return issue, nil
}

// UpdateIssue changes an issue's quantity, posting a compensating delta of
// (new - old) rather than the raw new quantity.
func (s *Service) UpdateIssue(ctx context.Context, id int64, newQty float64, actorID int64) error {
	if newQty <= 0 {
		return ErrInvalidQuantity
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		issue, err := tx.GetIssueForUpdate(ctx, id)
		if err != nil {
			return err
		}
		diff := newQty - issue.Quantity
		if math.Abs(diff) < qtyEpsilon {
			return nil
		}
		if err := tx.UpdateIssueQuantity(ctx, id, newQty); err != nil {
			return err
		}
		_, _, err = s.applyChangeTx(ctx, tx, ChangeInput{
			ItemID: issue.ItemID, ProjectID: issue.ProjectID, WarehouseID: issue.WarehouseID,
			Delta: -diff, Type: TransactionIssue,
			Ref: fmt.Sprintf("ISSUE-UPDATE-%d", id), Description: "issue quantity changed", ActorID: actorID,
		})
		return err
	})
}

// DeleteIssue reverses the issue in full. The original ledger entry stays;
// the restoration is a new entry with a distinct causal reference.
func (s *Service) DeleteIssue(ctx context.Context, id int64, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		issue, err := tx.GetIssueForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteIssue(ctx, id); err != nil {
			return err
		}
		_, _, err = s.applyChangeTx(ctx, tx, ChangeInput{
			ItemID: issue.ItemID, ProjectID: issue.ProjectID, WarehouseID: issue.WarehouseID,
			Delta: issue.Quantity, Type: TransactionIssue,
			Ref: fmt.Sprintf("ISSUE-DELETE-%d", id), Description: "issue deleted", ActorID: actorID,
		})
		return err
	})
}

// CreateReturn brings stock back into the pool.
func (s *Service) CreateReturn(ctx context.Context, input ReturnInput) (MaterialReturn, error) {
	if input.Quantity <= 0 {
		return MaterialReturn{}, ErrInvalidQuantity
	}
	ret := MaterialReturn{
		ItemID: input.ItemID, ProjectID: input.ProjectID, WarehouseID: input.WarehouseID,
		Quantity: input.Quantity, IssueID: input.IssueID, Note: input.Note, ActorID: input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertReturn(ctx, ret)
		if err != nil {
			return err
		}
		ret.ID = id
		_, _, err = s.applyChangeTx(ctx, tx, ChangeInput{
			ItemID: input.ItemID, ProjectID: input.ProjectID, WarehouseID: input.WarehouseID,
			Delta: input.Quantity, Type: TransactionReturn,
			Ref: fmt.Sprintf("RETURN-%d", id), Description: input.Note, ActorID: input.ActorID,
		})
		return err
	})
	if err != nil {
		return MaterialReturn{}, err
	}
	s.recordAudit(ctx, input.ActorID, "RETURN_CREATE", ret.ID, map[string]any{"qty": input.Quantity})
	return ret, nil
}

// UpdateReturn changes a return's quantity with a compensating delta.
func (s *Service) UpdateReturn(ctx context.Context, id int64, newQty float64, actorID int64) error {
	if newQty <= 0 {
		return ErrInvalidQuantity
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		diff := newQty - ret.Quantity
		if math.Abs(diff) < qtyEpsilon {
			return nil
		}
		if err := tx.UpdateReturnQuantity(ctx, id, newQty); err != nil {
			return err
		}
		_, _, err = s.applyChangeTx(ctx, tx, ChangeInput{
			ItemID: ret.ItemID, ProjectID: ret.ProjectID, WarehouseID: ret.WarehouseID,
			Delta: diff, Type: TransactionReturn,
			Ref: fmt.Sprintf("RETURN-UPDATE-%d", id), Description: "return quantity changed", ActorID: actorID,
		})
		return err
	})
}

// DeleteReturn reverses the return. Fails with InsufficientStockError when
// the returned stock has already been issued onward.
func (s *Service) DeleteReturn(ctx context.Context, id int64, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetReturnForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteReturn(ctx, id); err != nil {
			return err
		}
		_, _, err = s.applyChangeTx(ctx, tx, ChangeInput{
			ItemID: ret.ItemID, ProjectID: ret.ProjectID, WarehouseID: ret.WarehouseID,
			Delta: -ret.Quantity, Type: TransactionReturn,
			Ref: fmt.Sprintf("RETURN-DELETE-%d", id), Description: "return deleted", ActorID: actorID,
		})
		return err
	})
}

// CreateConsumption marks stock as used up on site.
func (s *Service) CreateConsumption(ctx context.Context, input ConsumptionInput) (MaterialConsumption, error) {
	if input.Quantity <= 0 {
		return MaterialConsumption{}, ErrInvalidQuantity
	}
	cons := MaterialConsumption{
		ItemID: input.ItemID, ProjectID: input.ProjectID, WarehouseID: input.WarehouseID,
		Quantity: input.Quantity, Note: input.Note, ActorID: input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertConsumption(ctx, cons)
		if err != nil {
			return err
		}
		cons.ID = id
		_, _, err = s.applyChangeTx(ctx, tx, ChangeInput{
			ItemID: input.ItemID, ProjectID: input.ProjectID, WarehouseID: input.WarehouseID,
			Delta: -input.Quantity, Type: TransactionConsumption,
			Ref: fmt.Sprintf("CONSUMPTION-%d", id), Description: input.Note, ActorID: input.ActorID,
		})
		return err
	})
	if err != nil {
		return MaterialConsumption{}, err
	}
	s.recordAudit(ctx, input.ActorID, "CONSUMPTION_CREATE", cons.ID, map[string]any{"qty": input.Quantity})
	return cons, nil
}

// UpdateConsumption changes a consumption's quantity with a compensating delta.
func (s *Service) UpdateConsumption(ctx context.Context, id int64, newQty float64, actorID int64) error {
	if newQty <= 0 {
		return ErrInvalidQuantity
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cons, err := tx.GetConsumptionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		diff := newQty - cons.Quantity
		if math.Abs(diff) < qtyEpsilon {
			return nil
		}
		if err := tx.UpdateConsumptionQuantity(ctx, id, newQty); err != nil {
			return err
		}
		_, _, err = s.applyChangeTx(ctx, tx, ChangeInput{
			ItemID: cons.ItemID, ProjectID: cons.ProjectID, WarehouseID: cons.WarehouseID,
			Delta: -diff, Type: TransactionConsumption,
			Ref: fmt.Sprintf("CONSUMPTION-UPDATE-%d", id), Description: "consumption quantity changed", ActorID: actorID,
		})
		return err
	})
}

// DeleteConsumption restores the consumed quantity.
func (s *Service) DeleteConsumption(ctx context.Context, id int64, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cons, err := tx.GetConsumptionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteConsumption(ctx, id); err != nil {
			return err
		}
		_, _, err = s.applyChangeTx(ctx, tx, ChangeInput{
			ItemID: cons.ItemID, ProjectID: cons.ProjectID, WarehouseID: cons.WarehouseID,
			Delta: cons.Quantity, Type: TransactionConsumption,
			Ref: fmt.Sprintf("CONSUMPTION-DELETE-%d", id), Description: "consumption deleted", ActorID: actorID,
		})
		return err
	})
}

// GetRecord returns the record for the tuple.
func (s *Service) GetRecord(ctx context.Context, itemID, projectID, warehouseID int64) (Record, error) {
	return s.repo.GetRecord(ctx, itemID, projectID, warehouseID)
}

// ListRecords lists records by filter.
func (s *Service) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error) {
	return s.repo.ListRecords(ctx, filter)
}

// LowStock lists records at or below their reorder level.
func (s *Service) LowStock(ctx context.Context, projectID int64) ([]Record, error) {
	return s.repo.LowStock(ctx, projectID)
}

// Ledger lists ledger entries in (at, id) order.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	return s.repo.GetLedger(ctx, filter)
}

// GetIssue fetches one issue.
func (s *Service) GetIssue(ctx context.Context, id int64) (MaterialIssue, error) {
	return s.repo.GetIssue(ctx, id)
}

// GetReturn fetches one return.
func (s *Service) GetReturn(ctx context.Context, id int64) (MaterialReturn, error) {
	return s.repo.GetReturn(ctx, id)
}

// GetConsumption fetches one consumption.
func (s *Service) GetConsumption(ctx context.Context, id int64) (MaterialConsumption, error) {
	return s.repo.GetConsumption(ctx, id)
}

func (s *Service) checkRefs(ctx context.Context, projectID, warehouseID int64) error {
	if s.refs == nil {
		return nil
	}
	if err := s.refs.ProjectExists(ctx, projectID); err != nil {
		return err
	}
	return s.refs.WarehouseExists(ctx, warehouseID)
}

func (s *Service) rejected(reason string) {
	if s.metrics != nil {
		s.metrics.LedgerRejected("inventory", reason)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "inventory", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
