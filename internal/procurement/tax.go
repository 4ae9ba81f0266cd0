package procurement

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// priceLine fills the derived amounts of a PO line from its quantity, unit
// price and GST rates: lineTotal = qty x price, each GST amount =
// lineTotal x rate / 100.
func priceLine(line *PurchaseOrderItem) {
	qty := decimal.NewFromFloat(line.QtyOrdered)
	line.LineTotal = qty.Mul(line.UnitPrice)
	line.CGSTAmount = line.LineTotal.Mul(line.CGSTRate).Div(hundred)
	line.SGSTAmount = line.LineTotal.Mul(line.SGSTRate).Div(hundred)
	line.IGSTAmount = line.LineTotal.Mul(line.IGSTRate).Div(hundred)
}

// poTotals sums subtotal, tax and total across lines. Always recomputed
// from scratch after any line change so totals never drift.
func poTotals(lines []PurchaseOrderItem) (subtotal, tax, total decimal.Decimal) {
	subtotal, tax = decimal.Zero, decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal)
		tax = tax.Add(line.CGSTAmount).Add(line.SGSTAmount).Add(line.IGSTAmount)
	}
	return subtotal, tax, subtotal.Add(tax)
}
