package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates inventory ledger transaction types.
type TransactionType string

const (
	// TransactionPurchase records stock confirmed through receipt verification.
	TransactionPurchase TransactionType = "PURCHASE"
	// TransactionIssue records stock handed out to a project or subcontractor.
	TransactionIssue TransactionType = "ISSUE"
	// TransactionReturn records stock returned from the field.
	TransactionReturn TransactionType = "RETURN"
	// TransactionConsumption records stock used up on site.
	TransactionConsumption TransactionType = "CONSUMPTION"
	// TransactionAdjustment records a manual correction, either sign.
	TransactionAdjustment TransactionType = "ADJUSTMENT"
	// TransactionRestock records replenishment outside the receipt flow.
	TransactionRestock TransactionType = "RESTOCK"
)

// RecordStatus enumerates inventory record statuses.
type RecordStatus string

const (
	RecordStatusActive       RecordStatus = "ACTIVE"
	RecordStatusInactive     RecordStatus = "INACTIVE"
	RecordStatusDiscontinued RecordStatus = "DISCONTINUED"
)

// Record is the quantity-on-hand row for one (item, project, warehouse)
// tuple. The same item keeps independent stock pools per project and
// warehouse. Quantity changes only through the ledger posting path.
type Record struct {
	ID           int64
	ItemID       int64
	ProjectID    int64
	WarehouseID  int64
	Quantity     float64
	MinLevel     float64
	MaxLevel     float64
	ReorderLevel float64
	UnitCost     decimal.Decimal
	Status       RecordStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LedgerEntry is an immutable, append-only record of one quantity change.
// Replaying a record's entries in (At, ID) order must reproduce its current
// quantity exactly. Entries are never updated or deleted; reversals are new
// entries with the opposite sign.
type LedgerEntry struct {
	ID          int64
	RecordID    int64
	ItemID      int64
	ProjectID   int64
	WarehouseID int64
	Type        TransactionType
	Delta       float64
	QtyBefore   float64
	QtyAfter    float64
	Ref         string
	Description string
	ActorID     int64
	At          time.Time
}

// ChangeInput describes one quantity change routed through ApplyChange.
type ChangeInput struct {
	ItemID      int64
	ProjectID   int64
	WarehouseID int64
	Delta       float64
	Type        TransactionType
	Ref         string
	Description string
	ActorID     int64
	// UnitCost updates the record's unit cost on positive deltas when set.
	UnitCost decimal.Decimal
}

// CreateRecordInput seeds a new inventory record, optionally with initial
// stock (posted as a RESTOCK entry).
type CreateRecordInput struct {
	ItemID       int64
	ProjectID    int64
	WarehouseID  int64
	InitialQty   float64
	MinLevel     float64
	MaxLevel     float64
	ReorderLevel float64
	UnitCost     decimal.Decimal
	ActorID      int64
}

// MaterialIssue hands stock to a receiving party. Single-step operation;
// its only workflow obligation is the paired ledger entry.
type MaterialIssue struct {
	ID          int64
	ItemID      int64
	ProjectID   int64
	WarehouseID int64
	Quantity    float64
	MrrID       *int64
	IssuedTo    string
	Note        string
	ActorID     int64
	CreatedAt   time.Time
}

// MaterialReturn brings stock back, optionally referencing the originating
// issue for traceability.
type MaterialReturn struct {
	ID          int64
	ItemID      int64
	ProjectID   int64
	WarehouseID int64
	Quantity    float64
	IssueID     *int64
	Note        string
	ActorID     int64
	CreatedAt   time.Time
}

// MaterialConsumption marks stock as used up on site. Same shape as an
// issue without a receiving party.
type MaterialConsumption struct {
	ID          int64
	ItemID      int64
	ProjectID   int64
	WarehouseID int64
	Quantity    float64
	Note        string
	ActorID     int64
	CreatedAt   time.Time
}

// IssueInput describes an issue creation.
type IssueInput struct {
	ItemID      int64
	ProjectID   int64
	WarehouseID int64
	Quantity    float64
	MrrID       *int64
	IssuedTo    string
	Note        string
	ActorID     int64
}

// ReturnInput describes a return creation.
type ReturnInput struct {
	ItemID      int64
	ProjectID   int64
	WarehouseID int64
	Quantity    float64
	IssueID     *int64
	Note        string
	ActorID     int64
}

// ConsumptionInput describes a consumption creation.
type ConsumptionInput struct {
	ItemID      int64
	ProjectID   int64
	WarehouseID int64
	Quantity    float64
	Note        string
	ActorID     int64
}

// LedgerFilter narrows ledger listings.
type LedgerFilter struct {
	ItemID      int64
	ProjectID   int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// RecordFilter narrows record listings.
type RecordFilter struct {
	ProjectID   int64
	WarehouseID int64
	ItemID      int64
	Status      RecordStatus
	Limit       int
	Offset      int
}

var (
	// ErrRecordNotFound indicates no inventory record for the tuple.
	ErrRecordNotFound = errors.New("inventory: record not found")
	// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrRecordNotActive indicates a mutation on an inactive or
	// discontinued record.
	ErrRecordNotActive = errors.New("inventory: record is not active")
	// ErrRecordExists indicates the (item, project, warehouse) tuple is
	// already registered.
	ErrRecordExists = errors.New("inventory: record already exists")
)
