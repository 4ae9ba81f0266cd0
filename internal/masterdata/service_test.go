package masterdata

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

type memoryRepo struct {
	items     map[int64]Item
	suppliers map[int64]Supplier
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]Item{}, suppliers: map[int64]Supplier{}}
}

func (r *memoryRepo) InsertItem(ctx context.Context, item Item) (Item, error) {
	for _, existing := range r.items {
		if existing.Code == item.Code {
			return Item{}, ErrDuplicateCode
		}
	}
	r.nextID++
	item.ID = r.nextID
	r.items[item.ID] = item
	return item, nil
}

func (r *memoryRepo) UpdateItem(ctx context.Context, item Item) (Item, error) {
	if _, ok := r.items[item.ID]; !ok {
		return Item{}, ErrItemNotFound
	}
	r.items[item.ID] = item
	return item, nil
}

func (r *memoryRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	item, ok := r.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) ListItems(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	out := []Item{}
	for _, item := range r.items {
		if filter.Search != "" && !strings.Contains(item.Name, filter.Search) {
			continue
		}
		if filter.OnlyActive && !item.IsActive {
			continue
		}
		out = append(out, item)
	}
	return out, len(out), nil
}

func (r *memoryRepo) DeactivateItem(ctx context.Context, id int64) error {
	item, ok := r.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.IsActive = false
	r.items[id] = item
	return nil
}

func (r *memoryRepo) InsertSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	for _, existing := range r.suppliers {
		if existing.Code == s.Code {
			return Supplier{}, ErrDuplicateCode
		}
	}
	r.nextID++
	s.ID = r.nextID
	r.suppliers[s.ID] = s
	return s, nil
}

func (r *memoryRepo) UpdateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	if _, ok := r.suppliers[s.ID]; !ok {
		return Supplier{}, ErrSupplierNotFound
	}
	r.suppliers[s.ID] = s
	return s, nil
}

func (r *memoryRepo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	s, ok := r.suppliers[id]
	if !ok {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, nil
}

func (r *memoryRepo) ListSuppliers(ctx context.Context, filter ListFilter) ([]Supplier, int, error) {
	out := []Supplier{}
	for _, s := range r.suppliers {
		if filter.OnlyActive && !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (r *memoryRepo) DeactivateSupplier(ctx context.Context, id int64) error {
	s, ok := r.suppliers[id]
	if !ok {
		return ErrSupplierNotFound
	}
	s.IsActive = false
	r.suppliers[id] = s
	return nil
}

type stubCodes struct {
	n int64
}

func (c *stubCodes) Next(ctx context.Context, prefix string) (string, error) {
	c.n++
	return fmt.Sprintf("%s%06d", prefix, c.n), nil
}

func TestCreateItemIssuesSequentialCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), &stubCodes{}, nil)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, ItemInput{Name: "TMT Bar 12mm", Category: "Steel", Unit: "kg"}, 1)
	require.NoError(t, err)
	require.Equal(t, "ITM000001", item.Code)
	require.True(t, item.IsActive)

	// an explicit code is kept as-is
	item, err = svc.CreateItem(ctx, ItemInput{Code: "CEM-43", Name: "OPC 43 Cement", Unit: "bag"}, 1)
	require.NoError(t, err)
	require.Equal(t, "CEM-43", item.Code)
}

func TestCreateItemRejectsDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), &stubCodes{}, nil)
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, ItemInput{Code: "CEM-43", Name: "OPC 43 Cement", Unit: "bag"}, 1)
	require.NoError(t, err)
	_, err = svc.CreateItem(ctx, ItemInput{Code: "CEM-43", Name: "Another Cement", Unit: "bag"}, 1)
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestItemValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), &stubCodes{}, nil)
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, ItemInput{Unit: "kg"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateItem(ctx, ItemInput{Name: "TMT Bar"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateItem(ctx, ItemInput{Name: "TMT Bar", Unit: "bucket"}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateItemKeepsCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), &stubCodes{}, nil)
	ctx := context.Background()

	created, err := svc.CreateItem(ctx, ItemInput{Name: "TMT Bar 12mm", Unit: "kg"}, 1)
	require.NoError(t, err)

	updated, err := svc.UpdateItem(ctx, created.ID, ItemInput{Code: "IGNORED", Name: "TMT Bar 16mm", Unit: "kg", Brand: "Tata"}, 1)
	require.NoError(t, err)
	require.Equal(t, created.Code, updated.Code)
	require.Equal(t, "TMT Bar 16mm", updated.Name)
	require.Equal(t, "Tata", updated.Brand)
}

func TestDeactivateItemIsSoftDelete(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &stubCodes{}, nil)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, ItemInput{Name: "TMT Bar 12mm", Unit: "kg"}, 1)
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateItem(ctx, item.ID, 1))

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	require.ErrorIs(t, svc.DeactivateItem(ctx, 999, 1), ErrItemNotFound)
}

func TestSupplierLifecycle(t *testing.T) {
	svc := NewService(newMemoryRepo(), &stubCodes{}, nil)
	ctx := context.Background()

	created, err := svc.CreateSupplier(ctx, SupplierInput{Name: "Shree Traders", GSTIN: "27AAAPL1234C1ZV"}, 1)
	require.NoError(t, err)
	require.Equal(t, "SUP000001", created.Code)

	updated, err := svc.UpdateSupplier(ctx, created.ID, SupplierInput{Name: "Shree Traders Pvt Ltd", GSTIN: created.GSTIN, PaymentTerms: "NET30"}, 1)
	require.NoError(t, err)
	require.Equal(t, "NET30", updated.PaymentTerms)

	require.NoError(t, svc.DeactivateSupplier(ctx, created.ID, 1))
	got, err := svc.GetSupplier(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	_, err = svc.CreateSupplier(ctx, SupplierInput{}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}
