package masterdata

import (
	"errors"
	"time"
)

// Item is a catalogue material that inventory records and procurement
// documents reference by ID.
type Item struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	Unit        string    `json:"unit"`
	HSNCode     string    `json:"hsn_code"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Supplier is a vendor the procurement and supplier-ledger modules
// reference by ID.
type Supplier struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	GSTIN         string    `json:"gstin"`
	ContactPerson string    `json:"contact_person"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	PaymentTerms  string    `json:"payment_terms"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ItemInput carries create/update fields for an item.
type ItemInput struct {
	Code        string
	Name        string
	Category    string
	Brand       string
	Unit        string
	HSNCode     string
	Description string
}

// SupplierInput carries create/update fields for a supplier.
type SupplierInput struct {
	Code          string
	Name          string
	GSTIN         string
	ContactPerson string
	Phone         string
	Email         string
	Address       string
	PaymentTerms  string
}

// ListFilter narrows catalogue listings.
type ListFilter struct {
	Search     string
	Category   string
	OnlyActive bool
	Page       int
	PageSize   int
}

var (
	// ErrItemNotFound indicates the item does not exist.
	ErrItemNotFound = errors.New("masterdata: item not found")
	// ErrSupplierNotFound indicates the supplier does not exist.
	ErrSupplierNotFound = errors.New("masterdata: supplier not found")
	// ErrDuplicateCode indicates a code collision within a catalogue.
	ErrDuplicateCode = errors.New("masterdata: code already in use")
)
