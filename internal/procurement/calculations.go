package procurement

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// costScale is the number of decimal places kept on allocated unit costs.
const costScale = 4

// CalculateLineTotals prices one ordered line. Discount applies to the gross
// amount and tax to the discounted amount.
func CalculateLineTotals(quantity int64, unitPrice, discountPercent, taxPercent decimal.Decimal) (discountAmount, taxAmount, lineTotal decimal.Decimal) {
	grossAmount := unitPrice.Mul(decimal.NewFromInt(quantity))
	discountAmount = grossAmount.Mul(discountPercent).Div(hundred)
	netAmount := grossAmount.Sub(discountAmount)
	taxAmount = netAmount.Mul(taxPercent).Div(hundred)
	lineTotal = netAmount.Add(taxAmount)
	return
}

// priceItems fills the computed amounts of every item and returns the order
// subtotal (net of discounts) and tax.
func priceItems(items []PurchaseOrderItem) (subtotal, tax decimal.Decimal) {
	for i := range items {
		item := &items[i]
		item.DiscountAmount, item.TaxAmount, item.LineTotal = CalculateLineTotals(item.OrderedQty, item.UnitPrice, item.DiscountPct, item.TaxPct)
		subtotal = subtotal.Add(item.LineTotal.Sub(item.TaxAmount))
		tax = tax.Add(item.TaxAmount)
	}
	return subtotal, tax
}

func applyGrandTotal(po *PurchaseOrder) {
	po.GrandTotal = po.Subtotal.Add(po.TaxAmount).Add(po.ShippingCost).Add(po.OtherCharges)
}

// receiveItem adds accepted quantity to a PO item and derives its status.
func receiveItem(item *PurchaseOrderItem, accepted int64) {
	item.ReceivedQty += accepted
	item.RemainingQty = item.OrderedQty - item.ReceivedQty
	switch {
	case item.RemainingQty <= 0:
		item.Status = POItemReceived
	case item.ReceivedQty > 0:
		item.Status = POItemPartiallyReceived
	default:
		item.Status = POItemPending
	}
}

// receiptStatus derives the order status after a receipt. closed is true when
// every item is fully received.
func receiptStatus(current POStatus, items []PurchaseOrderItem) (status POStatus, closed bool) {
	if len(items) == 0 {
		return current, false
	}
	all := true
	some := false
	for _, item := range items {
		if item.RemainingQty > 0 {
			all = false
		}
		if item.ReceivedQty > 0 {
			some = true
		}
	}
	switch {
	case all:
		return POStatusReceived, true
	case some:
		return POStatusPartiallyReceived, false
	default:
		return current, false
	}
}

// totalFees sums the fee fields of a breakdown.
func (c CostBreakdown) totalFees() decimal.Decimal {
	return c.ShippingFee.Add(c.CustomsFee).Add(c.InsuranceFee).Add(c.HandlingFee).Add(c.OtherFees)
}

// allocateLandedCost spreads the breakdown fees evenly per received unit,
// fills each item's landed cost and line total, and completes the breakdown
// totals. Items without receipts carry no allocation.
func allocateLandedCost(items []GRNItem, breakdown *CostBreakdown) {
	var fees decimal.Decimal
	if breakdown != nil {
		fees = breakdown.totalFees()
	}
	var received, accepted int64
	for _, item := range items {
		received += item.ReceivedQty
		accepted += item.AcceptedQty
	}
	perUnit := decimal.Zero
	if received > 0 && !fees.IsZero() {
		perUnit = fees.Div(decimal.NewFromInt(received))
	}
	var total decimal.Decimal
	for i := range items {
		item := &items[i]
		item.LandedCost = item.UnitCost.Add(perUnit).Round(costScale)
		item.LineTotal = item.LandedCost.Mul(decimal.NewFromInt(item.AcceptedQty))
		total = total.Add(item.LineTotal)
	}
	if breakdown == nil {
		return
	}
	breakdown.TotalFees = fees
	breakdown.TotalLandedCost = total
	breakdown.CostPerUnit = decimal.Zero
	if accepted > 0 {
		breakdown.CostPerUnit = total.Div(decimal.NewFromInt(accepted)).Round(costScale)
	}
}

func hasDiscrepancies(items []GRNItem) bool {
	for _, item := range items {
		if item.RejectedQty > 0 {
			return true
		}
	}
	return false
}
