package shared

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSequenceCodesIncrement(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	codes := NewSequenceCodes(client, "test:seq")
	ctx := context.Background()

	first, err := codes.Next(ctx, "PO")
	require.NoError(t, err)
	require.Equal(t, "PO000001", first)

	second, err := codes.Next(ctx, "PO")
	require.NoError(t, err)
	require.Equal(t, "PO000002", second)

	other, err := codes.Next(ctx, "MRR")
	require.NoError(t, err)
	require.Equal(t, "MRR000001", other)
}

func TestSequenceCodesFallback(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	codes := NewSequenceCodes(client, "test:seq")
	mr.Close()

	code, err := codes.Next(context.Background(), "RCPT")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(code, "RCPT-"))
}

func TestSequenceCodesRequiresPrefix(t *testing.T) {
	codes := NewSequenceCodes(nil, "")
	_, err := codes.Next(context.Background(), "")
	require.Error(t, err)
}
