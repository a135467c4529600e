package orders

import "github.com/shopspring/decimal"

// Line is the minimal view of an order item the totals arithmetic needs.
type Line struct {
	Quantity  int64
	UnitPrice decimal.Decimal
}

// Subtotal returns quantity × unit price for one line.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// Total sums subtotals over the current lines. An order with zero lines
// totals zero; summation is pure, so recalculating is idempotent by
// construction.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}
