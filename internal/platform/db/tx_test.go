package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type stubTx struct {
	pgx.Tx
	id int
}

func TestTxFromContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := TxFromContext(ctx)
	require.False(t, ok, "bare context must not carry a transaction")

	outer := &stubTx{id: 1}
	ctx = ContextWithTx(ctx, outer)
	got, ok := TxFromContext(ctx)
	require.True(t, ok)
	require.Same(t, outer, got)

	// A nested begin replaces the carried transaction only for its own
	// subtree; the outer context keeps the outer transaction.
	inner := &stubTx{id: 2}
	nested := ContextWithTx(ctx, inner)
	got, ok = TxFromContext(nested)
	require.True(t, ok)
	require.Same(t, inner, got)
	got, _ = TxFromContext(ctx)
	require.Same(t, outer, got)
}
