package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sitechain-erp/sitechain-erp/internal/ap"
	"github.com/sitechain-erp/sitechain-erp/internal/inventory"
)

// InventoryReader lists records and their ledger entries for replay.
type InventoryReader interface {
	ListRecords(ctx context.Context, filter inventory.RecordFilter) ([]inventory.Record, error)
	Ledger(ctx context.Context, filter inventory.LedgerFilter) ([]inventory.LedgerEntry, error)
}

// SupplierLedgerReader lists supplier statements for balance-chain checks.
type SupplierLedgerReader interface {
	Outstanding(ctx context.Context) ([]ap.SupplierBalance, error)
	Statement(ctx context.Context, filter ap.StatementFilter) ([]ap.LedgerEntry, error)
}

// LedgerIntegrityChecker replays both ledgers. A mismatch is a programming
// error, not an expected runtime condition, so it is logged loudly instead
// of being swallowed.
type LedgerIntegrityChecker struct {
	inventory InventoryReader
	suppliers SupplierLedgerReader
	logger    *slog.Logger
}

// NewLedgerIntegrityChecker constructs the checker.
func NewLedgerIntegrityChecker(inv InventoryReader, suppliers SupplierLedgerReader, logger *slog.Logger) *LedgerIntegrityChecker {
	return &LedgerIntegrityChecker{inventory: inv, suppliers: suppliers, logger: logger}
}

// Handler returns the Asynq handler for TaskTypeLedgerIntegrity.
func (c *LedgerIntegrityChecker) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return c.Run(ctx)
	}
}

// Run checks every inventory record against its ledger replay and every
// supplier statement against the running-balance chain.
func (c *LedgerIntegrityChecker) Run(ctx context.Context) error {
	var mismatches int

	records, err := c.inventory.ListRecords(ctx, inventory.RecordFilter{})
	if err != nil {
		return err
	}
	for _, record := range records {
		entries, err := c.inventory.Ledger(ctx, inventory.LedgerFilter{
			ItemID: record.ItemID, ProjectID: record.ProjectID, WarehouseID: record.WarehouseID,
		})
		if err != nil {
			return err
		}
		if err := inventory.CheckLedger(record, entries); err != nil {
			mismatches++
			c.logger.Error("inventory ledger replay mismatch",
				slog.Int64("record_id", record.ID),
				slog.Int64("item_id", record.ItemID),
				slog.Any("error", err))
		}
	}

	balances, err := c.suppliers.Outstanding(ctx)
	if err != nil {
		return err
	}
	for _, balance := range balances {
		entries, err := c.suppliers.Statement(ctx, ap.StatementFilter{SupplierID: balance.SupplierID})
		if err != nil {
			return err
		}
		if err := ap.VerifyBalances(entries); err != nil {
			mismatches++
			c.logger.Error("supplier balance chain mismatch",
				slog.Int64("supplier_id", balance.SupplierID),
				slog.Any("error", err))
		}
	}

	c.logger.Info("ledger integrity check finished",
		slog.Int("records", len(records)),
		slog.Int("suppliers", len(balances)),
		slog.Int("mismatches", mismatches))
	return nil
}
