package ap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSupplierLockKeyUsesFullID(t *testing.T) {
	base := int64(7)
	aliased := base + (int64(1) << 32)

	require.NotEqual(t, supplierLockKey(base), supplierLockKey(aliased),
		"ids differing only in the high word must not share a lock key")
	require.Equal(t, supplierLockKey(base), supplierLockKey(base))
}
