package procurement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateLineTotals(t *testing.T) {
	cases := []struct {
		name                         string
		qty                          int64
		price, disc, tax             string
		wantDisc, wantTax, wantTotal string
	}{
		{"plain", 4, "2.5", "0", "0", "0", "0", "10"},
		{"discount then tax", 10, "50", "10", "11", "50", "49.5", "499.5"},
		{"zero quantity", 0, "99", "5", "10", "0", "0", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			disc, tax, total := CalculateLineTotals(tc.qty, dec(tc.price), dec(tc.disc), dec(tc.tax))
			assert.True(t, disc.Equal(dec(tc.wantDisc)), disc.String())
			assert.True(t, tax.Equal(dec(tc.wantTax)), tax.String())
			assert.True(t, total.Equal(dec(tc.wantTotal)), total.String())
		})
	}
}

func TestReceiptStatus(t *testing.T) {
	items := []PurchaseOrderItem{{OrderedQty: 10, RemainingQty: 10}, {OrderedQty: 5, RemainingQty: 5}}
	status, closed := receiptStatus(POStatusApproved, items)
	require.Equal(t, POStatusApproved, status)
	require.False(t, closed)

	receiveItem(&items[0], 10)
	require.Equal(t, POItemReceived, items[0].Status)
	status, closed = receiptStatus(POStatusApproved, items)
	require.Equal(t, POStatusPartiallyReceived, status)
	require.False(t, closed)

	receiveItem(&items[1], 2)
	require.Equal(t, POItemPartiallyReceived, items[1].Status)
	require.EqualValues(t, 3, items[1].RemainingQty)
	receiveItem(&items[1], 3)
	status, closed = receiptStatus(POStatusPartiallyReceived, items)
	require.Equal(t, POStatusReceived, status)
	require.True(t, closed)
}

func TestAllocateLandedCostWithoutFees(t *testing.T) {
	items := []GRNItem{{ReceivedQty: 3, AcceptedQty: 2, UnitCost: dec("1.23456")}}
	allocateLandedCost(items, nil)
	assert.True(t, items[0].LandedCost.Equal(dec("1.2346")), items[0].LandedCost.String())
	assert.True(t, items[0].LineTotal.Equal(dec("2.4692")), items[0].LineTotal.String())

	breakdown := &CostBreakdown{}
	allocateLandedCost(items, breakdown)
	assert.True(t, breakdown.TotalFees.IsZero())
	assert.True(t, breakdown.CostPerUnit.Equal(dec("1.2346")))
}

func TestHasDiscrepancies(t *testing.T) {
	require.False(t, hasDiscrepancies([]GRNItem{{ReceivedQty: 2, AcceptedQty: 2}}))
	require.True(t, hasDiscrepancies([]GRNItem{{ReceivedQty: 2, AcceptedQty: 1, RejectedQty: 1}}))
}
