package procurement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sitechain-erp/sitechain-erp/internal/ap"
	"github.com/sitechain-erp/sitechain-erp/internal/inventory"
	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMrr(ctx context.Context, id int64) (Mrr, []MrrItem, error)
	ListMrrs(ctx context.Context, filter MrrFilter) ([]Mrr, int, error)
	GetPO(ctx context.Context, id int64) (PurchaseOrder, []PurchaseOrderItem, error)
	ListPOs(ctx context.Context, filter PoFilter) ([]PurchaseOrder, int, error)
	GetReceipt(ctx context.Context, id int64) (MaterialReceipt, []MaterialReceiptItem, error)
	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]MaterialReceipt, int, error)
	HasOpenReceipt(ctx context.Context, poID int64) (bool, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertMrr(ctx context.Context, mrr Mrr) (int64, error)
	InsertMrrItem(ctx context.Context, item MrrItem) error
	DeleteMrrItems(ctx context.Context, mrrID int64) error
	UpdateMrrStatus(ctx context.Context, mrr Mrr) error

	InsertPO(ctx context.Context, po PurchaseOrder) (int64, error)
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, []PurchaseOrderItem, error)
	InsertPOItem(ctx context.Context, item PurchaseOrderItem) (int64, error)
	UpdatePOItem(ctx context.Context, item PurchaseOrderItem) error
	DeletePOItem(ctx context.Context, poID, itemID int64) error
	UpdatePOTotals(ctx context.Context, poID int64, subtotal, tax, total decimal.Decimal) error
	UpdatePOStatus(ctx context.Context, po PurchaseOrder) error
	AddPOItemReceived(ctx context.Context, poItemID int64, qty float64) error

	InsertReceipt(ctx context.Context, receipt MaterialReceipt) (int64, error)
	InsertReceiptItem(ctx context.Context, item MaterialReceiptItem) (int64, error)
	GetReceiptForUpdate(ctx context.Context, id int64) (MaterialReceipt, []MaterialReceiptItem, error)
	UpdateReceiptItemReceive(ctx context.Context, itemID int64, qty float64, condition LineCondition, notes string) error
	UpdateReceiptItemVerified(ctx context.Context, itemID int64, verifiedQty float64) error
	UpdateReceiptStatus(ctx context.Context, receipt MaterialReceipt) error
}

// InventoryPort exposes the stock mutation path for receipt postings.
type InventoryPort interface {
	ApplyChange(ctx context.Context, input inventory.ChangeInput) (inventory.Record, inventory.LedgerEntry, error)
}

// LedgerPort exposes the supplier ledger integration for PO placement and
// its reversal when a placed order is cancelled.
type LedgerPort interface {
	PostPurchase(ctx context.Context, input ap.PurchaseInput) (ap.LedgerEntry, error)
	PostCreditNote(ctx context.Context, input ap.NoteInput) (ap.LedgerEntry, error)
	HasPurchaseForPO(ctx context.Context, poID int64) (bool, error)
}

// NotifierPort delivers best-effort supplier notifications after a PO is
// placed. Failures never affect the placement outcome.
type NotifierPort interface {
	NotifySupplierPlaced(ctx context.Context, supplierID int64, poNumber string, total decimal.Decimal) error
}

// CodePort issues sequential document codes.
type CodePort interface {
	Next(ctx context.Context, docPrefix string) (string, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReferencePort validates the opaque foreign keys used by MRRs and POs.
type ReferencePort interface {
	ProjectExists(ctx context.Context, id int64) error
	WarehouseExists(ctx context.Context, id int64) error
	ComponentExists(ctx context.Context, id int64) error
	SubcontractorExists(ctx context.Context, id int64) error
}

// Config carries procurement policy knobs.
type Config struct {
	// PostOnComplete lets CompleteReceipt stock inventory when the verify
	// step was skipped. At most one of verify/complete ever posts.
	PostOnComplete bool
}

// Service orchestrates the MRR, PO and material receipt workflows.
type Service struct {
	repo      RepositoryPort
	inventory InventoryPort
	ledger    LedgerPort
	notifier  NotifierPort
	codes     CodePort
	audit     AuditPort
	refs      ReferencePort
	cfg       Config
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, inv InventoryPort, ledger LedgerPort, codes CodePort, audit AuditPort, refs ReferencePort, cfg Config) *Service {
	return &Service{repo: repo, inventory: inv, ledger: ledger, codes: codes, audit: audit, refs: refs, cfg: cfg}
}

// SetNotifier wires the post-commit supplier notifier.
func (s *Service) SetNotifier(n NotifierPort) {
	s.notifier = n
}

// MrrApproved reports whether the MRR may be consumed by a PO or an
// MRR-flagged issue. Satisfies the inventory module's approval gate.
func (s *Service) MrrApproved(ctx context.Context, mrrID int64) error {
	mrr, _, err := s.repo.GetMrr(ctx, mrrID)
	if err != nil {
		return err
	}
	if mrr.Status != MrrApproved {
		return invalidMrrState(MrrApproved, mrr.Status)
	}
	return nil
}

func (s *Service) nextNumber(ctx context.Context, prefix string) (string, error) {
	if s.codes == nil {
		return "", fmt.Errorf("procurement: code sequence not configured")
	}
	return s.codes.Next(ctx, prefix)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
