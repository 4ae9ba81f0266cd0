package masterdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// RepositoryPort abstracts catalogue persistence.
type RepositoryPort interface {
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) (Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context, filter ListFilter) ([]Item, int, error)
	DeactivateItem(ctx context.Context, id int64) error

	InsertSupplier(ctx context.Context, supplier Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, supplier Supplier) (Supplier, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListSuppliers(ctx context.Context, filter ListFilter) ([]Supplier, int, error)
	DeactivateSupplier(ctx context.Context, id int64) error
}

// CodePort issues sequential document codes.
type CodePort interface {
	Next(ctx context.Context, docPrefix string) (string, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the item and supplier catalogues.
type Service struct {
	repo  RepositoryPort
	codes CodePort
	audit AuditPort
}

func NewService(repo RepositoryPort, codes CodePort, audit AuditPort) *Service {
	return &Service{repo: repo, codes: codes, audit: audit}
}

// CreateItem registers a catalogue item. An empty code gets the next
// sequential ITM code.
func (s *Service) CreateItem(ctx context.Context, input ItemInput, actorID int64) (Item, error) {
	if err := validateItem(input); err != nil {
		return Item{}, err
	}
	code := strings.TrimSpace(input.Code)
	if code == "" {
		var err error
		if code, err = s.codes.Next(ctx, "ITM"); err != nil {
			return Item{}, fmt.Errorf("masterdata: issue item code: %w", err)
		}
	}
	item, err := s.repo.InsertItem(ctx, Item{
		Code: code, Name: input.Name, Category: input.Category, Brand: input.Brand,
		Unit: input.Unit, HSNCode: input.HSNCode, Description: input.Description, IsActive: true,
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, actorID, "ITEM_CREATE", "item", item.ID, map[string]any{"code": item.Code})
	return item, nil
}

// UpdateItem replaces the mutable fields of an item. Code is immutable.
func (s *Service) UpdateItem(ctx context.Context, id int64, input ItemInput, actorID int64) (Item, error) {
	if err := validateItem(input); err != nil {
		return Item{}, err
	}
	current, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	current.Name = input.Name
	current.Category = input.Category
	current.Brand = input.Brand
	current.Unit = input.Unit
	current.HSNCode = input.HSNCode
	current.Description = input.Description
	item, err := s.repo.UpdateItem(ctx, current)
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, actorID, "ITEM_UPDATE", "item", item.ID, nil)
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, filter ListFilter) ([]Item, shared.Pagination, error) {
	filter = normalizeFilter(filter)
	items, total, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PageSize, total), nil
}

// DeactivateItem soft-deletes an item; existing documents keep referencing it.
func (s *Service) DeactivateItem(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.DeactivateItem(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ITEM_DEACTIVATE", "item", id, nil)
	return nil
}

// CreateSupplier registers a vendor. An empty code gets the next
// sequential SUP code.
func (s *Service) CreateSupplier(ctx context.Context, input SupplierInput, actorID int64) (Supplier, error) {
	if err := validateSupplier(input); err != nil {
		return Supplier{}, err
	}
	code := strings.TrimSpace(input.Code)
	if code == "" {
		var err error
		if code, err = s.codes.Next(ctx, "SUP"); err != nil {
			return Supplier{}, fmt.Errorf("masterdata: issue supplier code: %w", err)
		}
	}
	supplier, err := s.repo.InsertSupplier(ctx, Supplier{
		Code: code, Name: input.Name, GSTIN: input.GSTIN, ContactPerson: input.ContactPerson,
		Phone: input.Phone, Email: input.Email, Address: input.Address,
		PaymentTerms: input.PaymentTerms, IsActive: true,
	})
	if err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, actorID, "SUPPLIER_CREATE", "supplier", supplier.ID, map[string]any{"code": supplier.Code})
	return supplier, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, input SupplierInput, actorID int64) (Supplier, error) {
	if err := validateSupplier(input); err != nil {
		return Supplier{}, err
	}
	current, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	current.Name = input.Name
	current.GSTIN = input.GSTIN
	current.ContactPerson = input.ContactPerson
	current.Phone = input.Phone
	current.Email = input.Email
	current.Address = input.Address
	current.PaymentTerms = input.PaymentTerms
	supplier, err := s.repo.UpdateSupplier(ctx, current)
	if err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, actorID, "SUPPLIER_UPDATE", "supplier", supplier.ID, nil)
	return supplier, nil
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) ListSuppliers(ctx context.Context, filter ListFilter) ([]Supplier, shared.Pagination, error) {
	filter = normalizeFilter(filter)
	suppliers, total, err := s.repo.ListSuppliers(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return suppliers, shared.NewPagination(filter.Page, filter.PageSize, total), nil
}

func (s *Service) DeactivateSupplier(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.DeactivateSupplier(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "SUPPLIER_DEACTIVATE", "supplier", id, nil)
	return nil
}

// knownUnits is the closed list of measurement units accepted on site.
var knownUnits = map[string]bool{
	"nos": true, "bag": true, "kg": true, "tonne": true, "m": true,
	"sqm": true, "cum": true, "litre": true, "sheet": true, "roll": true,
	"set": true, "box": true,
}

func validateItem(input ItemInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: item name required", shared.ErrValidation)
	}
	unit := strings.ToLower(strings.TrimSpace(input.Unit))
	if unit == "" {
		return fmt.Errorf("%w: item unit required", shared.ErrValidation)
	}
	if !knownUnits[unit] {
		return fmt.Errorf("%w: unknown unit %q", shared.ErrValidation, input.Unit)
	}
	return nil
}

func validateSupplier(input SupplierInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: supplier name required", shared.ErrValidation)
	}
	return nil
}

func normalizeFilter(filter ListFilter) ListFilter {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return filter
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
