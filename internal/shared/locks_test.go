package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocNumberLockKeyIsStablePerScope(t *testing.T) {
	a := DocNumberLockKey("sales_orders", "SO-202608-")
	b := DocNumberLockKey("sales_orders", "SO-202608-")
	require.Equal(t, a, b)
}

func TestDocNumberLockKeySeparatesScopes(t *testing.T) {
	sales := DocNumberLockKey("sales_orders", "SO-202608-")
	purchasing := DocNumberLockKey("purchase_orders", "PO-202608-")
	nextMonth := DocNumberLockKey("sales_orders", "SO-202609-")
	require.NotEqual(t, sales, purchasing)
	require.NotEqual(t, sales, nextMonth)
}
