package ap

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

type memoryRepo struct {
	entries []LedgerEntry
	nextID  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListEntries(ctx context.Context, filter StatementFilter) ([]LedgerEntry, error) {
	out := []LedgerEntry{}
	for _, e := range r.entries {
		if e.SupplierID == filter.SupplierID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) Outstanding(ctx context.Context) ([]SupplierBalance, error) {
	latest := map[int64]LedgerEntry{}
	for _, e := range r.entries {
		latest[e.SupplierID] = e
	}
	out := []SupplierBalance{}
	for id, e := range latest {
		out = append(out, SupplierBalance{SupplierID: id, Balance: e.Balance, AsOf: e.At})
	}
	return out, nil
}

func (t *memoryTx) LockSupplier(ctx context.Context, supplierID int64) error { return nil }

func (t *memoryTx) LastBalance(ctx context.Context, supplierID int64) (decimal.Decimal, error) {
	for i := len(t.repo.entries) - 1; i >= 0; i-- {
		if t.repo.entries[i].SupplierID == supplierID {
			return t.repo.entries[i].Balance, nil
		}
	}
	return decimal.Zero, nil
}

func (t *memoryTx) HasPurchaseForPO(ctx context.Context, poID int64) (bool, error) {
	for _, e := range t.repo.entries {
		if e.Type == EntryPurchase && e.POID != nil && *e.POID == poID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertEntry(ctx context.Context, e LedgerEntry) (int64, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	if e.At.IsZero() {
		e.At = time.Now()
	}
	t.repo.entries = append(t.repo.entries, e)
	return e.ID, nil
}

func amount(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestPostPurchaseOncePerPO(t *testing.T) {
	repo := &memoryRepo{}
	ledger := NewLedger(repo, nil, nil)
	ctx := context.Background()

	entry, err := ledger.PostPurchase(ctx, PurchaseInput{SupplierID: 1, POID: 10, Amount: amount("590"), ActorID: 3})
	require.NoError(t, err)
	require.True(t, entry.Debit.Equal(amount("590")))
	require.True(t, entry.Balance.Equal(amount("590")))

	_, err = ledger.PostPurchase(ctx, PurchaseInput{SupplierID: 1, POID: 10, Amount: amount("590"), ActorID: 3})
	require.ErrorIs(t, err, shared.ErrDuplicatePosting)
	require.Len(t, repo.entries, 1)

	// another PO for the same supplier continues the chain
	entry, err = ledger.PostPurchase(ctx, PurchaseInput{SupplierID: 1, POID: 11, Amount: amount("410"), ActorID: 3})
	require.NoError(t, err)
	require.True(t, entry.Balance.Equal(amount("1000")))
}

func TestPaymentsAndNotesKeepBalanceChain(t *testing.T) {
	repo := &memoryRepo{}
	ledger := NewLedger(repo, nil, nil)
	ctx := context.Background()

	_, err := ledger.PostPurchase(ctx, PurchaseInput{SupplierID: 5, POID: 20, Amount: amount("1000"), ActorID: 3})
	require.NoError(t, err)

	pay, err := ledger.RecordPayment(ctx, PaymentInput{SupplierID: 5, Amount: amount("400"), Method: "NEFT", ActorID: 3})
	require.NoError(t, err)
	require.True(t, pay.Balance.Equal(amount("600")))

	dn, err := ledger.PostDebitNote(ctx, NoteInput{SupplierID: 5, Amount: amount("50"), Description: "freight", ActorID: 3})
	require.NoError(t, err)
	require.True(t, dn.Balance.Equal(amount("650")))

	cn, err := ledger.PostCreditNote(ctx, NoteInput{SupplierID: 5, Amount: amount("150"), Description: "damaged goods", ActorID: 3})
	require.NoError(t, err)
	require.True(t, cn.Balance.Equal(amount("500")))

	adj, err := ledger.PostAdjustment(ctx, NoteInput{SupplierID: 5, Amount: amount("-100"), ActorID: 3})
	require.NoError(t, err)
	require.True(t, adj.Balance.Equal(amount("400")))

	statement, err := ledger.Statement(ctx, StatementFilter{SupplierID: 5})
	require.NoError(t, err)
	require.Len(t, statement, 5)
	require.NoError(t, VerifyBalances(statement))
}

func TestLedgersPerSupplierAreIndependent(t *testing.T) {
	repo := &memoryRepo{}
	ledger := NewLedger(repo, nil, nil)
	ctx := context.Background()

	_, err := ledger.PostPurchase(ctx, PurchaseInput{SupplierID: 1, POID: 30, Amount: amount("100"), ActorID: 3})
	require.NoError(t, err)
	entry, err := ledger.PostPurchase(ctx, PurchaseInput{SupplierID: 2, POID: 31, Amount: amount("70"), ActorID: 3})
	require.NoError(t, err)
	require.True(t, entry.Balance.Equal(amount("70")))

	balances, err := ledger.Outstanding(ctx)
	require.NoError(t, err)
	require.Len(t, balances, 2)
}

func TestInvalidAmountsRejected(t *testing.T) {
	ledger := NewLedger(&memoryRepo{}, nil, nil)
	ctx := context.Background()

	_, err := ledger.PostPurchase(ctx, PurchaseInput{SupplierID: 1, POID: 1, Amount: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.RecordPayment(ctx, PaymentInput{SupplierID: 1, Amount: amount("-5")})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.PostAdjustment(ctx, NoteInput{SupplierID: 1, Amount: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.PostPurchase(ctx, PurchaseInput{POID: 1, Amount: amount("10")})
	require.ErrorIs(t, err, ErrSupplierRequired)
}

func TestVerifyBalancesDetectsBreaks(t *testing.T) {
	entries := []LedgerEntry{
		{ID: 1, Debit: amount("100"), Credit: decimal.Zero, Balance: amount("100")},
		{ID: 2, Debit: decimal.Zero, Credit: amount("30"), Balance: amount("80")}, // should be 70
	}
	require.Error(t, VerifyBalances(entries))
}
