package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTotalSumsQuantityTimesUnitPrice(t *testing.T) {
	lines := []Line{
		{Quantity: 10, UnitPrice: decimal.NewFromInt(100)},
		{Quantity: 5, UnitPrice: decimal.NewFromInt(50)},
	}
	require.True(t, Total(lines).Equal(decimal.NewFromInt(1250)))
}

func TestTotalOfNoLinesIsZero(t *testing.T) {
	require.True(t, Total(nil).Equal(decimal.Zero))
	require.True(t, Total([]Line{}).Equal(decimal.Zero))
}

func TestTotalIsIdempotent(t *testing.T) {
	lines := []Line{
		{Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
		{Quantity: 7, UnitPrice: decimal.RequireFromString("2.50")},
	}
	first := Total(lines)
	second := Total(lines)
	require.True(t, first.Equal(second))
	require.True(t, first.Equal(decimal.RequireFromString("77.47")))
}

func TestSubtotalFractionalPrices(t *testing.T) {
	line := Line{Quantity: 4, UnitPrice: decimal.RequireFromString("12.25")}
	require.True(t, line.Subtotal().Equal(decimal.NewFromInt(49)))
}
