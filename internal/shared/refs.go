package shared

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReferenceChecker validates foreign keys at the boundary of core
// operations. Projects, components and subcontractors are owned elsewhere;
// the ledger engine treats their ids as opaque and only needs existence.
type ReferenceChecker struct {
	pool *pgxpool.Pool
}

// NewReferenceChecker constructs the checker.
func NewReferenceChecker(pool *pgxpool.Pool) *ReferenceChecker {
	return &ReferenceChecker{pool: pool}
}

func (c *ReferenceChecker) exists(ctx context.Context, table string, id int64) error {
	if c == nil || c.pool == nil {
		return nil
	}
	if id == 0 {
		return fmt.Errorf("%w: %s id required", ErrReferenceNotFound, table)
	}
	var found bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", table)
	if err := c.pool.QueryRow(ctx, query, id).Scan(&found); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s %d", ErrReferenceNotFound, table, id)
	}
	return nil
}

// ProjectExists checks the projects registry.
func (c *ReferenceChecker) ProjectExists(ctx context.Context, id int64) error {
	return c.exists(ctx, "projects", id)
}

// WarehouseExists checks the warehouses registry.
func (c *ReferenceChecker) WarehouseExists(ctx context.Context, id int64) error {
	return c.exists(ctx, "warehouses", id)
}

// ComponentExists checks the project components registry.
func (c *ReferenceChecker) ComponentExists(ctx context.Context, id int64) error {
	return c.exists(ctx, "project_components", id)
}

// SubcontractorExists checks the subcontractors registry.
func (c *ReferenceChecker) SubcontractorExists(ctx context.Context, id int64) error {
	return c.exists(ctx, "subcontractors", id)
}
