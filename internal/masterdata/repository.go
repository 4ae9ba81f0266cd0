package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists catalogue entities.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, code, name, category, brand, unit, hsn_code, description, is_active, created_at, updated_at`

func (r *Repository) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO items (code, name, category, brand, unit, hsn_code, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+itemColumns,
		item.Code, item.Name, item.Category, item.Brand, item.Unit, item.HSNCode, item.Description, item.IsActive,
	).Scan(scanItem(&item)...)
	if err != nil {
		return Item{}, mapCodeConflict(err, "uq_items_code")
	}
	return item, nil
}

func (r *Repository) UpdateItem(ctx context.Context, item Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `
		UPDATE items SET name = $2, category = $3, brand = $4, unit = $5, hsn_code = $6, description = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+itemColumns,
		item.ID, item.Name, item.Category, item.Brand, item.Unit, item.HSNCode, item.Description,
	).Scan(scanItem(&item)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id).Scan(scanItem(&item)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

func (r *Repository) ListItems(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	where, args := itemPredicates(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM items`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.PageSize
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items`+where+fmt.Sprintf(` ORDER BY code LIMIT %d OFFSET %d`, filter.PageSize, offset),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(scanItem(&item)...); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *Repository) DeactivateItem(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

const supplierColumns = `id, code, name, gstin, contact_person, phone, email, address, payment_terms, is_active, created_at, updated_at`

func (r *Repository) InsertSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO suppliers (code, name, gstin, contact_person, phone, email, address, payment_terms, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+supplierColumns,
		s.Code, s.Name, s.GSTIN, s.ContactPerson, s.Phone, s.Email, s.Address, s.PaymentTerms, s.IsActive,
	).Scan(scanSupplier(&s)...)
	if err != nil {
		return Supplier{}, mapCodeConflict(err, "uq_suppliers_code")
	}
	return s, nil
}

func (r *Repository) UpdateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	err := r.pool.QueryRow(ctx, `
		UPDATE suppliers SET name = $2, gstin = $3, contact_person = $4, phone = $5, email = $6, address = $7, payment_terms = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+supplierColumns,
		s.ID, s.Name, s.GSTIN, s.ContactPerson, s.Phone, s.Email, s.Address, s.PaymentTerms,
	).Scan(scanSupplier(&s)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	if err != nil {
		return Supplier{}, err
	}
	return s, nil
}

func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id).Scan(scanSupplier(&s)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	if err != nil {
		return Supplier{}, err
	}
	return s, nil
}

func (r *Repository) ListSuppliers(ctx context.Context, filter ListFilter) ([]Supplier, int, error) {
	where, args := supplierPredicates(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM suppliers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.PageSize
	rows, err := r.pool.Query(ctx,
		`SELECT `+supplierColumns+` FROM suppliers`+where+fmt.Sprintf(` ORDER BY code LIMIT %d OFFSET %d`, filter.PageSize, offset),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	suppliers := []Supplier{}
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(scanSupplier(&s)...); err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *Repository) DeactivateSupplier(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE suppliers SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSupplierNotFound
	}
	return nil
}

func scanItem(item *Item) []any {
	return []any{&item.ID, &item.Code, &item.Name, &item.Category, &item.Brand, &item.Unit,
		&item.HSNCode, &item.Description, &item.IsActive, &item.CreatedAt, &item.UpdatedAt}
}

func scanSupplier(s *Supplier) []any {
	return []any{&s.ID, &s.Code, &s.Name, &s.GSTIN, &s.ContactPerson, &s.Phone, &s.Email,
		&s.Address, &s.PaymentTerms, &s.IsActive, &s.CreatedAt, &s.UpdatedAt}
}

func itemPredicates(filter ListFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args), len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.OnlyActive {
		clauses = append(clauses, "is_active")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func supplierPredicates(filter ListFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d OR gstin ILIKE $%d)", len(args), len(args), len(args)))
	}
	if filter.OnlyActive {
		clauses = append(clauses, "is_active")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func mapCodeConflict(err error, constraint string) error {
	if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == constraint {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, pgErr.ConstraintName)
	}
	return err
}
