package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// MrrStatus enumerates material requirement request states. Transitions
// only move forward; APPROVED and REJECTED are terminal.
type MrrStatus string

const (
	MrrDraft     MrrStatus = "DRAFT"
	MrrSubmitted MrrStatus = "SUBMITTED"
	MrrApproved  MrrStatus = "APPROVED"
	MrrRejected  MrrStatus = "REJECTED"
)

// Mrr is a project-scoped request for materials that gates procurement.
type Mrr struct {
	ID              int64      `json:"id"`
	Number          string     `json:"number"`
	ProjectID       int64      `json:"project_id"`
	ComponentID     *int64     `json:"component_id,omitempty"`
	SubcontractorID *int64     `json:"subcontractor_id,omitempty"`
	Status          MrrStatus  `json:"status"`
	RequiredBy      *time.Time `json:"required_by,omitempty"`
	Notes           string     `json:"notes"`
	RequestedBy     int64      `json:"requested_by"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectReason    string     `json:"reject_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MrrItem is one requested line on an MRR.
type MrrItem struct {
	ID     int64   `json:"id"`
	MrrID  int64   `json:"mrr_id"`
	ItemID int64   `json:"item_id"`
	Qty    float64 `json:"qty"`
	Unit   string  `json:"unit"`
	Notes  string  `json:"notes"`
}

// PoStatus enumerates purchase order states.
type PoStatus string

const (
	PoDraft             PoStatus = "DRAFT"
	PoApproved          PoStatus = "APPROVED"
	PoPlaced            PoStatus = "PLACED"
	PoPartiallyReceived PoStatus = "PARTIALLY_RECEIVED"
	PoFullyReceived     PoStatus = "FULLY_RECEIVED"
	PoClosed            PoStatus = "CLOSED"
	PoCancelled         PoStatus = "CANCELLED"
)

// PurchaseOrder is a supplier-facing procurement document, optionally
// derived from an approved MRR. Totals are always recomputed from the
// lines, never adjusted incrementally.
type PurchaseOrder struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	SupplierID   int64           `json:"supplier_id"`
	ProjectID    int64           `json:"project_id"`
	MrrID        *int64          `json:"mrr_id,omitempty"`
	Status       PoStatus        `json:"status"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	ExpectedDate *time.Time      `json:"expected_date,omitempty"`
	Notes        string          `json:"notes"`
	CreatedBy    int64           `json:"created_by"`
	ApprovedBy   *int64          `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	PlacedAt     *time.Time      `json:"placed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PurchaseOrderItem is one ordered line. QtyReceived accumulates across
// receipt verifications and may not exceed QtyOrdered unless over-receipt
// is explicitly allowed.
type PurchaseOrderItem struct {
	ID          int64           `json:"id"`
	POID        int64           `json:"po_id"`
	ItemID      int64           `json:"item_id"`
	QtyOrdered  float64         `json:"qty_ordered"`
	QtyReceived float64         `json:"qty_received"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CGSTRate    decimal.Decimal `json:"cgst_rate"`
	SGSTRate    decimal.Decimal `json:"sgst_rate"`
	IGSTRate    decimal.Decimal `json:"igst_rate"`
	LineTotal   decimal.Decimal `json:"line_total"`
	CGSTAmount  decimal.Decimal `json:"cgst_amount"`
	SGSTAmount  decimal.Decimal `json:"sgst_amount"`
	IGSTAmount  decimal.Decimal `json:"igst_amount"`
	Notes       string          `json:"notes"`
}

// ReceiptStatus enumerates material receipt states.
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "PENDING"
	ReceiptReceived  ReceiptStatus = "RECEIVED"
	ReceiptApproved  ReceiptStatus = "APPROVED"
	ReceiptCompleted ReceiptStatus = "COMPLETED"
)

// LineCondition records the physical state of a delivered line.
type LineCondition string

const (
	ConditionGood     LineCondition = "GOOD"
	ConditionDamaged  LineCondition = "DAMAGED"
	ConditionPartial  LineCondition = "PARTIAL"
	ConditionRejected LineCondition = "REJECTED"
)

// MaterialReceipt records one physical delivery against a PO. Inventory is
// mutated exactly once per receipt: normally at verification, or at
// completion when verification was skipped and the post-on-complete policy
// is enabled. InventoryPostedAt marks which step posted.
type MaterialReceipt struct {
	ID                int64         `json:"id"`
	Number            string        `json:"number"`
	POID              int64         `json:"po_id"`
	ProjectID         int64         `json:"project_id"`
	WarehouseID       int64         `json:"warehouse_id"`
	Status            ReceiptStatus `json:"status"`
	Notes             string        `json:"notes"`
	CreatedBy         int64         `json:"created_by"`
	ReceivedAt        *time.Time    `json:"received_at,omitempty"`
	VerifiedBy        *int64        `json:"verified_by,omitempty"`
	VerifiedAt        *time.Time    `json:"verified_at,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	InventoryPostedAt *time.Time    `json:"inventory_posted_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// MaterialReceiptItem is one delivered line. QtyReceived is the claimed
// paperwork figure, QtyActuallyReceived the physically confirmed one, and
// VerifiedQty the amount that actually stocks inventory.
type MaterialReceiptItem struct {
	ID                  int64           `json:"id"`
	ReceiptID           int64           `json:"receipt_id"`
	POItemID            int64           `json:"po_item_id"`
	ItemID              int64           `json:"item_id"`
	QtyReceived         float64         `json:"qty_received"`
	QtyActuallyReceived float64         `json:"qty_actually_received"`
	VerifiedQty         float64         `json:"verified_qty"`
	Condition           LineCondition   `json:"condition"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	CGSTRate            decimal.Decimal `json:"cgst_rate"`
	SGSTRate            decimal.Decimal `json:"sgst_rate"`
	IGSTRate            decimal.Decimal `json:"igst_rate"`
	Notes               string          `json:"notes"`
}

// CreateMrrInput creates a DRAFT MRR with its lines.
type CreateMrrInput struct {
	ProjectID       int64
	ComponentID     *int64
	SubcontractorID *int64
	RequiredBy      *time.Time
	Notes           string
	RequestedBy     int64
	Items           []MrrItemInput
}

// MrrItemInput is one requested line.
type MrrItemInput struct {
	ItemID int64
	Qty    float64
	Unit   string
	Notes  string
}

// CreatePoInput creates a DRAFT PO, optionally derived from an approved MRR.
type CreatePoInput struct {
	SupplierID   int64
	ProjectID    int64
	MrrID        *int64
	ExpectedDate *time.Time
	Notes        string
	CreatedBy    int64
	Items        []PoItemInput
}

// PoItemInput is one ordered line; rates are percentages.
type PoItemInput struct {
	ItemID    int64
	Qty       float64
	Unit      string
	UnitPrice decimal.Decimal
	CGSTRate  decimal.Decimal
	SGSTRate  decimal.Decimal
	IGSTRate  decimal.Decimal
	Notes     string
}

// CreateReceiptInput opens a receipt against a PO. Every line must pair
// with a PO line.
type CreateReceiptInput struct {
	POID        int64
	WarehouseID int64
	Notes       string
	CreatedBy   int64
	Items       []ReceiptItemInput
}

// ReceiptItemInput is one claimed delivery line. Zero rates inherit the PO
// line's rates.
type ReceiptItemInput struct {
	POItemID    int64
	QtyReceived float64
	CGSTRate    decimal.Decimal
	SGSTRate    decimal.Decimal
	IGSTRate    decimal.Decimal
	Notes       string
}

// ReceiveLineInput records the physically confirmed quantity and condition.
type ReceiveLineInput struct {
	ReceiptItemID       int64
	QtyActuallyReceived float64
	Condition           LineCondition
	Notes               string
}

// VerifyLineInput sets the quantity that stocks inventory for one line.
type VerifyLineInput struct {
	ReceiptItemID int64
	VerifiedQty   float64
}

// VerifyReceiptInput drives the verification step. AllowOverReceipt must be
// set explicitly for a PO line to exceed its ordered quantity.
type VerifyReceiptInput struct {
	ReceiptID        int64
	Lines            []VerifyLineInput
	AllowOverReceipt bool
	ActorID          int64
}

// MrrFilter narrows MRR listings.
type MrrFilter struct {
	ProjectID int64
	Status    MrrStatus
	Page      int
	PageSize  int
}

// PoFilter narrows PO listings.
type PoFilter struct {
	ProjectID  int64
	SupplierID int64
	Status     PoStatus
	Page       int
	PageSize   int
}

// ReceiptFilter narrows receipt listings.
type ReceiptFilter struct {
	POID     int64
	Status   ReceiptStatus
	Page     int
	PageSize int
}

func invalidMrrState(required, actual MrrStatus) error {
	return &shared.InvalidStateError{Entity: "mrr", Required: string(required), Actual: string(actual)}
}

func invalidPoState(required string, actual PoStatus) error {
	return &shared.InvalidStateError{Entity: "purchase_order", Required: required, Actual: string(actual)}
}

func invalidReceiptState(required string, actual ReceiptStatus) error {
	return &shared.InvalidStateError{Entity: "material_receipt", Required: required, Actual: string(actual)}
}
