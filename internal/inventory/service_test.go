package inventory

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

type memoryRepo struct {
	records      map[string]Record
	entries      []LedgerEntry
	issues       map[int64]MaterialIssue
	returns      map[int64]MaterialReturn
	consumptions map[int64]MaterialConsumption
	nextID       int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		records:      make(map[string]Record),
		issues:       make(map[int64]MaterialIssue),
		returns:      make(map[int64]MaterialReturn),
		consumptions: make(map[int64]MaterialConsumption),
	}
}

func tupleKey(itemID, projectID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d:%d", itemID, projectID, warehouseID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetRecord(ctx context.Context, itemID, projectID, warehouseID int64) (Record, error) {
	if rec, ok := r.records[tupleKey(itemID, projectID, warehouseID)]; ok {
		return rec, nil
	}
	return Record{}, ErrRecordNotFound
}

func (r *memoryRepo) GetRecordByID(ctx context.Context, id int64) (Record, error) {
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrRecordNotFound
}

func (r *memoryRepo) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error) {
	out := []Record{}
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *memoryRepo) LowStock(ctx context.Context, projectID int64) ([]Record, error) {
	out := []Record{}
	for _, rec := range r.records {
		if rec.ReorderLevel > 0 && rec.Quantity <= rec.ReorderLevel {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	out := []LedgerEntry{}
	for _, e := range r.entries {
		if filter.ItemID != 0 && e.ItemID != filter.ItemID {
			continue
		}
		if filter.ProjectID != 0 && e.ProjectID != filter.ProjectID {
			continue
		}
		if filter.WarehouseID != 0 && e.WarehouseID != filter.WarehouseID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepo) GetIssue(ctx context.Context, id int64) (MaterialIssue, error) {
	if issue, ok := r.issues[id]; ok {
		return issue, nil
	}
	return MaterialIssue{}, ErrRecordNotFound
}

func (r *memoryRepo) GetReturn(ctx context.Context, id int64) (MaterialReturn, error) {
	if ret, ok := r.returns[id]; ok {
		return ret, nil
	}
	return MaterialReturn{}, ErrRecordNotFound
}

func (r *memoryRepo) GetConsumption(ctx context.Context, id int64) (MaterialConsumption, error) {
	if cons, ok := r.consumptions[id]; ok {
		return cons, nil
	}
	return MaterialConsumption{}, ErrRecordNotFound
}

func (t *memoryTx) GetRecordForUpdate(ctx context.Context, itemID, projectID, warehouseID int64) (Record, error) {
	return t.repo.GetRecord(ctx, itemID, projectID, warehouseID)
}

func (t *memoryTx) InsertRecord(ctx context.Context, rec Record) (int64, error) {
	t.repo.nextID++
	rec.ID = t.repo.nextID
	rec.CreatedAt = time.Now()
	t.repo.records[tupleKey(rec.ItemID, rec.ProjectID, rec.WarehouseID)] = rec
	return rec.ID, nil
}

func (t *memoryTx) UpdateRecord(ctx context.Context, rec Record) error {
	t.repo.records[tupleKey(rec.ItemID, rec.ProjectID, rec.WarehouseID)] = rec
	return nil
}

func (t *memoryTx) InsertLedgerEntry(ctx context.Context, e LedgerEntry) (int64, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	t.repo.entries = append(t.repo.entries, e)
	return e.ID, nil
}

func (t *memoryTx) InsertIssue(ctx context.Context, issue MaterialIssue) (int64, error) {
	t.repo.nextID++
	issue.ID = t.repo.nextID
	t.repo.issues[issue.ID] = issue
	return issue.ID, nil
}

func (t *memoryTx) GetIssueForUpdate(ctx context.Context, id int64) (MaterialIssue, error) {
	return t.repo.GetIssue(ctx, id)
}

func (t *memoryTx) UpdateIssueQuantity(ctx context.Context, id int64, qty float64) error {
	issue := t.repo.issues[id]
	issue.Quantity = qty
	t.repo.issues[id] = issue
	return nil
}

func (t *memoryTx) DeleteIssue(ctx context.Context, id int64) error {
	delete(t.repo.issues, id)
	return nil
}

func (t *memoryTx) InsertReturn(ctx context.Context, ret MaterialReturn) (int64, error) {
	t.repo.nextID++
	ret.ID = t.repo.nextID
	t.repo.returns[ret.ID] = ret
	return ret.ID, nil
}

func (t *memoryTx) GetReturnForUpdate(ctx context.Context, id int64) (MaterialReturn, error) {
	return t.repo.GetReturn(ctx, id)
}

func (t *memoryTx) UpdateReturnQuantity(ctx context.Context, id int64, qty float64) error {
	ret := t.repo.returns[id]
	ret.Quantity = qty
	t.repo.returns[id] = ret
	return nil
}

func (t *memoryTx) DeleteReturn(ctx context.Context, id int64) error {
	delete(t.repo.returns, id)
	return nil
}

func (t *memoryTx) InsertConsumption(ctx context.Context, cons MaterialConsumption) (int64, error) {
	t.repo.nextID++
	cons.ID = t.repo.nextID
	t.repo.consumptions[cons.ID] = cons
	return cons.ID, nil
}

func (t *memoryTx) GetConsumptionForUpdate(ctx context.Context, id int64) (MaterialConsumption, error) {
	return t.repo.GetConsumption(ctx, id)
}

func (t *memoryTx) UpdateConsumptionQuantity(ctx context.Context, id int64, qty float64) error {
	cons := t.repo.consumptions[id]
	cons.Quantity = qty
	t.repo.consumptions[id] = cons
	return nil
}

func (t *memoryTx) DeleteConsumption(ctx context.Context, id int64) error {
	delete(t.repo.consumptions, id)
	return nil
}

type approvingGate struct{ err error }

func (g approvingGate) MrrApproved(ctx context.Context, mrrID int64) error { return g.err }

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, nil)
}

func seedRecord(t *testing.T, svc *Service, qty float64) Record {
	t.Helper()
	rec, err := svc.CreateRecord(context.Background(), CreateRecordInput{
		ItemID: 1, ProjectID: 1, WarehouseID: 1, InitialQty: qty,
		UnitCost: decimal.NewFromInt(50), ActorID: 7,
	})
	require.NoError(t, err)
	return rec
}

func TestIssueDecrementsAndRejectsOverdraw(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	seedRecord(t, svc, 100)

	_, err := svc.CreateIssue(ctx, IssueInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: 30, IssuedTo: "crew-a", ActorID: 7})
	require.NoError(t, err)

	rec, err := svc.GetRecord(ctx, 1, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 70, rec.Quantity, qtyEpsilon)

	entries, err := svc.Ledger(ctx, LedgerFilter{ItemID: 1})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	last := entries[len(entries)-1]
	require.Equal(t, TransactionIssue, last.Type)
	require.InDelta(t, -30, last.Delta, qtyEpsilon)
	require.InDelta(t, 100, last.QtyBefore, qtyEpsilon)
	require.InDelta(t, 70, last.QtyAfter, qtyEpsilon)

	_, err = svc.CreateIssue(ctx, IssueInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: 80, ActorID: 7})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.InDelta(t, 70, stockErr.Available, qtyEpsilon)
	require.InDelta(t, 80, stockErr.Requested, qtyEpsilon)

	rec, err = svc.GetRecord(ctx, 1, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 70, rec.Quantity, qtyEpsilon)
	entries, err = svc.Ledger(ctx, LedgerFilter{ItemID: 1})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestIssueUpdatePostsCompensatingDelta(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	seedRecord(t, svc, 100)
	issue, err := svc.CreateIssue(ctx, IssueInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: 30, ActorID: 7})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateIssue(ctx, issue.ID, 40, 7))
	rec, _ := svc.GetRecord(ctx, 1, 1, 1)
	require.InDelta(t, 60, rec.Quantity, qtyEpsilon)

	entries, _ := svc.Ledger(ctx, LedgerFilter{ItemID: 1})
	last := entries[len(entries)-1]
	require.InDelta(t, -10, last.Delta, qtyEpsilon)
	require.Equal(t, fmt.Sprintf("ISSUE-UPDATE-%d", issue.ID), last.Ref)

	require.NoError(t, svc.UpdateIssue(ctx, issue.ID, 25, 7))
	rec, _ = svc.GetRecord(ctx, 1, 1, 1)
	require.InDelta(t, 75, rec.Quantity, qtyEpsilon)
}

func TestIssueDeleteRestoresFully(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	seedRecord(t, svc, 100)
	issue, err := svc.CreateIssue(ctx, IssueInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: 30, ActorID: 7})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteIssue(ctx, issue.ID, 7))
	rec, _ := svc.GetRecord(ctx, 1, 1, 1)
	require.InDelta(t, 100, rec.Quantity, qtyEpsilon)

	entries, _ := svc.Ledger(ctx, LedgerFilter{ItemID: 1})
	last := entries[len(entries)-1]
	require.Equal(t, fmt.Sprintf("ISSUE-DELETE-%d", issue.ID), last.Ref)
	require.InDelta(t, 30, last.Delta, qtyEpsilon)

	_, err = svc.GetIssue(ctx, issue.ID)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMrrGateBlocksUnapprovedIssue(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	seedRecord(t, svc, 100)
	mrrID := int64(42)
	svc.SetMrrGate(approvingGate{err: &shared.InvalidStateError{Entity: "mrr", Required: "APPROVED", Actual: "SUBMITTED"}})

	_, err := svc.CreateIssue(ctx, IssueInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: 10, MrrID: &mrrID, ActorID: 7})
	require.True(t, shared.IsInvalidState(err))

	entries, _ := svc.Ledger(ctx, LedgerFilter{ItemID: 1})
	require.Len(t, entries, 1) // only the initial stock entry

	svc.SetMrrGate(approvingGate{})
	_, err = svc.CreateIssue(ctx, IssueInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: 10, MrrID: &mrrID, ActorID: 7})
	require.NoError(t, err)
}

func TestReturnAndConsumptionLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	seedRecord(t, svc, 50)

	ret, err := svc.CreateReturn(ctx, ReturnInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: 5, ActorID: 7})
	require.NoError(t, err)
	rec, _ := svc.GetRecord(ctx, 1, 1, 1)
	require.InDelta(t, 55, rec.Quantity, qtyEpsilon)

	require.NoError(t, svc.UpdateReturn(ctx, ret.ID, 8, 7))
	rec, _ = svc.GetRecord(ctx, 1, 1, 1)
	require.InDelta(t, 58, rec.Quantity, qtyEpsilon)

	require.NoError(t, svc.DeleteReturn(ctx, ret.ID, 7))
	rec, _ = svc.GetRecord(ctx, 1, 1, 1)
	require.InDelta(t, 50, rec.Quantity, qtyEpsilon)

	cons, err := svc.CreateConsumption(ctx, ConsumptionInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: 20, ActorID: 7})
	require.NoError(t, err)
	rec, _ = svc.GetRecord(ctx, 1, 1, 1)
	require.InDelta(t, 30, rec.Quantity, qtyEpsilon)

	require.NoError(t, svc.UpdateConsumption(ctx, cons.ID, 10, 7))
	rec, _ = svc.GetRecord(ctx, 1, 1, 1)
	require.InDelta(t, 40, rec.Quantity, qtyEpsilon)

	require.NoError(t, svc.DeleteConsumption(ctx, cons.ID, 7))
	rec, _ = svc.GetRecord(ctx, 1, 1, 1)
	require.InDelta(t, 50, rec.Quantity, qtyEpsilon)

	entries, _ := svc.Ledger(ctx, LedgerFilter{ItemID: 1})
	require.NoError(t, CheckLedger(rec, entries))
}

func TestDuplicateRecordRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	seedRecord(t, svc, 10)
	_, err := svc.CreateRecord(context.Background(), CreateRecordInput{ItemID: 1, ProjectID: 1, WarehouseID: 1})
	require.ErrorIs(t, err, ErrRecordExists)
}

func TestLedgerReplayInvariantUnderRandomOperations(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	seedRecord(t, svc, 200)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		qty := float64(rng.Intn(40) + 1)
		var err error
		switch rng.Intn(4) {
		case 0:
			_, err = svc.CreateIssue(ctx, IssueInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: qty, ActorID: 7})
		case 1:
			_, err = svc.CreateReturn(ctx, ReturnInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: qty, ActorID: 7})
		case 2:
			_, err = svc.CreateConsumption(ctx, ConsumptionInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Quantity: qty, ActorID: 7})
		default:
			_, err = svc.Restock(ctx, 1, 1, 1, qty, decimal.Zero, 7, "restock")
		}
		if err != nil {
			var stockErr *shared.InsufficientStockError
			require.True(t, errors.As(err, &stockErr), "unexpected error: %v", err)
		}

		rec, err := svc.GetRecord(ctx, 1, 1, 1)
		require.NoError(t, err)
		require.GreaterOrEqual(t, rec.Quantity, 0.0)

		entries, err := svc.Ledger(ctx, LedgerFilter{ItemID: 1})
		require.NoError(t, err)
		require.NoError(t, CheckLedger(rec, entries))
		require.InDelta(t, rec.Quantity, Replay(entries), qtyEpsilon)
	}
}

func TestDiscontinuedRecordRejectsMutation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	rec := seedRecord(t, svc, 10)
	rec.Status = RecordStatusDiscontinued
	repo.records[tupleKey(1, 1, 1)] = rec

	_, _, err := svc.ApplyChange(ctx, ChangeInput{ItemID: 1, ProjectID: 1, WarehouseID: 1, Delta: 5, Type: TransactionRestock, Ref: "RESTOCK", ActorID: 7})
	require.ErrorIs(t, err, ErrRecordNotActive)
}
