package procurement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func receiveAgainst(po PurchaseOrder, received, accepted, rejected int64) CreateGRNInput {
	return CreateGRNInput{
		POID: po.ID,
		Items: []GRNItemInput{{
			POItemID:    &po.Items[0].ID,
			ReceivedQty: received,
			AcceptedQty: accepted,
			RejectedQty: rejected,
			UnitCost:    po.Items[0].UnitPrice,
		}},
	}
}

func TestGoodsReceiptReconcilesPurchaseOrder(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	po := approvedPO(t, svc, simplePO(100, "10"))

	grn, err := svc.CreateGoodsReceipt(ctx, receiveAgainst(po, 100, 90, 10), 4)
	require.NoError(t, err)
	require.Equal(t, "GRN-2025-06-0001", grn.Number)
	require.Equal(t, GRNStatusPending, grn.Status)
	require.Equal(t, InspectionPending, grn.InspectionStatus)
	require.True(t, grn.HasDiscrepancies)
	require.EqualValues(t, po.SupplierID, grn.SupplierID)
	require.Equal(t, "Widget", grn.Items[0].ProductName)
	require.EqualValues(t, 100, grn.Items[0].OrderedQty)
	require.True(t, grn.Items[0].LineTotal.Equal(dec("900")), grn.Items[0].LineTotal.String())

	stored, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusPartiallyReceived, stored.Status)
	item := stored.Items[0]
	require.EqualValues(t, 90, item.ReceivedQty)
	require.EqualValues(t, 10, item.RemainingQty)
	require.Equal(t, POItemPartiallyReceived, item.Status)
	require.Nil(t, stored.ClosedAt)

	_, err = svc.CreateGoodsReceipt(ctx, receiveAgainst(po, 10, 10, 0), 4)
	require.NoError(t, err)
	stored, err = svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, stored.Status)
	require.Equal(t, POItemReceived, stored.Items[0].Status)
	require.EqualValues(t, 0, stored.Items[0].RemainingQty)
	require.NotNil(t, stored.ClosedAt)

	_, err = svc.CreateGoodsReceipt(ctx, receiveAgainst(po, 1, 1, 0), 4)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestApproveGoodsReceiptCreatesStock(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()
	po := approvedPO(t, svc, simplePO(100, "10"))
	input := receiveAgainst(po, 100, 90, 10)
	input.Items[0].BatchNumber = "LOT-7"
	grn, err := svc.CreateGoodsReceipt(ctx, input, 4)
	require.NoError(t, err)

	approved, err := svc.ApproveGoodsReceipt(ctx, grn.ID, 5, false)
	require.NoError(t, err)
	require.Equal(t, GRNStatusApproved, approved.Status)
	require.EqualValues(t, 5, *approved.ApprovedBy)

	stocks := repo.stock.Stocks()
	require.Len(t, stocks, 1)
	require.EqualValues(t, 90, stocks[0].ReceivedQuantity)
	require.True(t, stocks[0].UnitCost.Equal(dec("10")))
	require.Equal(t, "W-1", stocks[0].SKU)

	history := repo.stock.Histories()
	require.Len(t, history, 1)
	assert.Equal(t, inventory.DirectionIn, history[0].Direction)
	assert.Equal(t, inventory.SourceReceipt, history[0].Source)
	assert.EqualValues(t, 0, history[0].QtyBefore)
	assert.EqualValues(t, 90, history[0].QtyChange)
	assert.EqualValues(t, 90, history[0].QtyAfter)

	batches := repo.stock.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "LOT-7", batches[0].BatchNumber)
	assert.EqualValues(t, 90, batches[0].InitialQty)

	stored, err := svc.GetGoodsReceipt(ctx, grn.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Items[0].StockID)
	require.Equal(t, stocks[0].ID, *stored.Items[0].StockID)

	_, err = svc.ApproveGoodsReceipt(ctx, grn.ID, 5, false)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Len(t, repo.stock.Stocks(), 1)
	require.Contains(t, notifier.types(), shared.EventGRNApproved)
}

func TestApproveGoodsReceiptIsAllOrNothing(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	input := simplePO(10, "2")
	input.Items = append(input.Items, POItemInput{ProductName: "Gadget", SKU: "G-1", OrderedQty: 5, UnitPrice: dec("3")})
	po := approvedPO(t, svc, input)

	grn, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{
		POID: po.ID,
		Items: []GRNItemInput{
			{POItemID: &po.Items[0].ID, ReceivedQty: 10, AcceptedQty: 10, UnitCost: dec("2")},
			{POItemID: &po.Items[1].ID, ReceivedQty: 5, AcceptedQty: 5, UnitCost: dec("3")},
		},
	}, 1)
	require.NoError(t, err)

	for _, method := range []string{"LinkGRNItemStock", "InsertHistory"} {
		repo.failOn(method, 2)
		_, err = svc.ApproveGoodsReceipt(ctx, grn.ID, 2, false)
		require.True(t, errors.Is(err, errInjected), method)

		require.Empty(t, repo.stock.Stocks(), method)
		require.Empty(t, repo.stock.Histories(), method)
		stored, err := svc.GetGoodsReceipt(ctx, grn.ID)
		require.NoError(t, err)
		require.Equal(t, GRNStatusPending, stored.Status, method)
		for _, item := range stored.Items {
			require.Nil(t, item.StockID, method)
		}
		delete(repo.failAt, method)
	}

	_, err = svc.ApproveGoodsReceipt(ctx, grn.ID, 2, false)
	require.NoError(t, err)
	require.Len(t, repo.stock.Stocks(), 2)
	require.Len(t, repo.stock.Histories(), 2)
}

func TestApproveGoodsReceiptSkipsFullyRejectedLines(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	po := approvedPO(t, svc, simplePO(10, "2"))

	grn, err := svc.CreateGoodsReceipt(ctx, receiveAgainst(po, 10, 0, 10), 1)
	require.NoError(t, err)
	_, err = svc.ApproveGoodsReceipt(ctx, grn.ID, 2, false)
	require.NoError(t, err)
	require.Empty(t, repo.stock.Stocks())
}

func TestCreateGoodsReceiptRejectsInconsistentQuantities(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	po := approvedPO(t, svc, simplePO(10, "1"))

	cases := map[string]CreateGRNInput{
		"accepted plus rejected above received": receiveAgainst(po, 5, 4, 2),
		"received above ordered":                receiveAgainst(po, 11, 11, 0),
		"zero received":                         receiveAgainst(po, 0, 0, 0),
		"no items":                              {POID: po.ID},
	}
	for name, input := range cases {
		_, err := svc.CreateGoodsReceipt(ctx, input, 1)
		require.ErrorIs(t, err, shared.ErrInvalidInput, name)
	}

	foreign := int64(9999)
	input := receiveAgainst(po, 1, 1, 0)
	input.Items[0].POItemID = &foreign
	_, err := svc.CreateGoodsReceipt(ctx, input, 1)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	require.Empty(t, repo.grns)
	stored, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, stored.Items[0].ReceivedQty)
	require.Equal(t, POStatusApproved, stored.Status)
}

func TestCreateGoodsReceiptRejectsOverReceipt(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	po := approvedPO(t, svc, simplePO(100, "10"))

	_, err := svc.CreateGoodsReceipt(ctx, receiveAgainst(po, 90, 90, 0), 1)
	require.NoError(t, err)

	_, err = svc.CreateGoodsReceipt(ctx, receiveAgainst(po, 20, 20, 0), 1)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	require.Len(t, repo.grns, 1)

	stored, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.EqualValues(t, 90, stored.Items[0].ReceivedQty)
	require.EqualValues(t, 10, stored.Items[0].RemainingQty)
}

func TestCreateGoodsReceiptRequiresApprovedOrder(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	draft, err := svc.CreatePurchaseOrder(ctx, simplePO(10, "1"), 1)
	require.NoError(t, err)

	_, err = svc.CreateGoodsReceipt(ctx, receiveAgainst(draft, 1, 1, 0), 1)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = svc.CreateGoodsReceipt(ctx, CreateGRNInput{POID: 404, Items: []GRNItemInput{{ProductName: "x", ReceivedQty: 1}}}, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateGoodsReceiptRollsBackPOItemUpdates(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	input := simplePO(10, "2")
	input.Items = append(input.Items, POItemInput{ProductName: "Gadget", OrderedQty: 5, UnitPrice: dec("3")})
	po := approvedPO(t, svc, input)
	repo.failOn("UpdatePurchaseOrderItem", 2)

	_, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{
		POID: po.ID,
		Items: []GRNItemInput{
			{POItemID: &po.Items[0].ID, ReceivedQty: 10, AcceptedQty: 10},
			{POItemID: &po.Items[1].ID, ReceivedQty: 5, AcceptedQty: 5},
		},
	}, 1)
	require.True(t, errors.Is(err, errInjected))
	require.Empty(t, repo.grns)
	stored, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, stored.Items[0].ReceivedQty)
	require.Equal(t, POStatusApproved, stored.Status)
}

func TestLandedCostAllocation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	input := simplePO(10, "5")
	input.Items = append(input.Items, POItemInput{ProductName: "Gadget", OrderedQty: 30, UnitPrice: dec("8")})
	po := approvedPO(t, svc, input)

	grn, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{
		POID: po.ID,
		Items: []GRNItemInput{
			{POItemID: &po.Items[0].ID, ReceivedQty: 10, AcceptedQty: 10, UnitCost: dec("5")},
			{POItemID: &po.Items[1].ID, ReceivedQty: 30, AcceptedQty: 25, RejectedQty: 5, UnitCost: dec("8")},
		},
		CostBreakdown: &CostBreakdownInput{ShippingFee: dec("30"), CustomsFee: dec("10")},
	}, 1)
	require.NoError(t, err)

	first, second := grn.Items[0], grn.Items[1]
	assert.True(t, first.LandedCost.Equal(dec("6")), first.LandedCost.String())
	assert.True(t, second.LandedCost.Equal(dec("9")), second.LandedCost.String())
	for _, item := range grn.Items {
		assert.True(t, item.LineTotal.Equal(item.LandedCost.Mul(decimal.NewFromInt(item.AcceptedQty))))
		assert.True(t, item.LandedCost.GreaterThanOrEqual(item.UnitCost))
	}

	cb := grn.CostBreakdown
	require.NotNil(t, cb)
	assert.True(t, cb.TotalFees.Equal(dec("40")), cb.TotalFees.String())
	assert.True(t, cb.TotalLandedCost.Equal(dec("285")), cb.TotalLandedCost.String())
	assert.True(t, cb.CostPerUnit.Equal(dec("8.1429")), cb.CostPerUnit.String())

	stored, err := svc.GetGoodsReceipt(ctx, grn.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CostBreakdown)
	assert.True(t, stored.CostBreakdown.TotalLandedCost.Equal(dec("285")))
}

func TestRejectGoodsReceipt(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	po := approvedPO(t, svc, simplePO(10, "1"))
	grn, err := svc.CreateGoodsReceipt(ctx, receiveAgainst(po, 10, 10, 0), 1)
	require.NoError(t, err)

	_, err = svc.RejectGoodsReceipt(ctx, grn.ID, "  ", 2)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	rejected, err := svc.RejectGoodsReceipt(ctx, grn.ID, "damaged pallets", 2)
	require.NoError(t, err)
	require.Equal(t, GRNStatusRejected, rejected.Status)
	require.Equal(t, "damaged pallets", rejected.RejectionReason)

	_, err = svc.ApproveGoodsReceipt(ctx, grn.ID, 2, false)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = svc.RejectGoodsReceipt(ctx, grn.ID, "twice", 2)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Empty(t, repo.stock.Stocks())
}

func TestUpdateInspection(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	po := approvedPO(t, svc, simplePO(10, "1"))
	grn, err := svc.CreateGoodsReceipt(ctx, receiveAgainst(po, 10, 8, 2), 1)
	require.NoError(t, err)

	updated, err := svc.UpdateInspection(ctx, grn.ID, UpdateInspectionInput{Status: InspectionPartial, Notes: "2 cracked"}, 6)
	require.NoError(t, err)
	require.Equal(t, InspectionPartial, updated.InspectionStatus)
	require.Equal(t, GRNStatusPending, updated.Status)
	require.EqualValues(t, 6, *updated.InspectedBy)
	require.Equal(t, fixedNow, *updated.InspectedAt)

	_, err = svc.UpdateInspection(ctx, grn.ID, UpdateInspectionInput{Status: "GREAT"}, 6)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	page, err := svc.ListGoodsReceipts(ctx, GRNFilter{InspectionStatus: string(InspectionPartial)})
	require.NoError(t, err)
	require.Equal(t, 1, page.Meta.Total)
}

func TestGoodsReceiptWithoutPOItemLink(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	po := approvedPO(t, svc, simplePO(10, "1"))

	expiry := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	grn, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{
		POID:  po.ID,
		Items: []GRNItemInput{{ProductName: "Free sample", ReceivedQty: 2, AcceptedQty: 2, ExpiryDate: &expiry}},
	}, 1)
	require.NoError(t, err)
	require.Nil(t, grn.Items[0].POItemID)

	stored, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusApproved, stored.Status)
	require.EqualValues(t, 0, stored.Items[0].ReceivedQty)
}
