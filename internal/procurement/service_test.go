package procurement

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func simplePO(qty int64, price string) CreatePOInput {
	return CreatePOInput{
		SupplierID: 1,
		Items:      []POItemInput{{ProductName: "Widget", SKU: "W-1", OrderedQty: qty, UnitPrice: dec(price)}},
	}
}

func approvedPO(t *testing.T, svc *Service, input CreatePOInput) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := svc.CreatePurchaseOrder(ctx, input, 7)
	require.NoError(t, err)
	_, err = svc.SubmitPurchaseOrder(ctx, po.ID, 7)
	require.NoError(t, err)
	po, err = svc.ApprovePurchaseOrder(ctx, po.ID, 8, false)
	require.NoError(t, err)
	return po
}

func TestPurchaseOrderLifecycle(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()

	po, err := svc.CreatePurchaseOrder(ctx, simplePO(100, "10"), 7)
	require.NoError(t, err)
	require.Equal(t, "PO-2025-06-0001", po.Number)
	require.Equal(t, POStatusDraft, po.Status)
	require.True(t, po.Subtotal.Equal(dec("1000")), po.Subtotal.String())
	require.True(t, po.GrandTotal.Equal(dec("1000")), po.GrandTotal.String())
	require.Len(t, po.Items, 1)
	require.EqualValues(t, 100, po.Items[0].RemainingQty)

	po, err = svc.SubmitPurchaseOrder(ctx, po.ID, 7)
	require.NoError(t, err)
	require.Equal(t, POStatusPendingApproval, po.Status)

	po, err = svc.ApprovePurchaseOrder(ctx, po.ID, 8, true)
	require.NoError(t, err)
	require.Equal(t, POStatusApproved, po.Status)
	require.NotNil(t, po.ApprovedBy)
	require.EqualValues(t, 8, *po.ApprovedBy)
	require.Equal(t, fixedNow, *po.ApprovedAt)

	require.Len(t, repo.approvals, 2)
	assert.Equal(t, shared.ApprovalSubmit, repo.approvals[0].Action)
	assert.Equal(t, shared.ApprovalApprove, repo.approvals[1].Action)
	assert.True(t, repo.approvals[1].IsAdmin)
	assert.Equal(t, []shared.EventType{
		shared.EventPurchaseOrderCreated,
		shared.EventPurchaseOrderSubmitted,
		shared.EventPurchaseOrderApproved,
	}, notifier.types())
}

func TestCreatePurchaseOrderTotals(t *testing.T) {
	svc, _, _ := newTestService()
	input := CreatePOInput{
		SupplierID:   1,
		ShippingCost: dec("25"),
		OtherCharges: dec("5"),
		Items: []POItemInput{
			{ProductName: "Cable", OrderedQty: 10, UnitPrice: dec("50"), DiscountPct: dec("10"), TaxPct: dec("11")},
			{ProductName: "Plug", OrderedQty: 4, UnitPrice: dec("2.5")},
		},
	}

	po, err := svc.CreatePurchaseOrder(context.Background(), input, 1)
	require.NoError(t, err)

	cable := po.Items[0]
	assert.True(t, cable.DiscountAmount.Equal(dec("50")), cable.DiscountAmount.String())
	assert.True(t, cable.TaxAmount.Equal(dec("49.5")), cable.TaxAmount.String())
	assert.True(t, cable.LineTotal.Equal(dec("499.5")), cable.LineTotal.String())
	assert.True(t, po.Subtotal.Equal(dec("460")), po.Subtotal.String())
	assert.True(t, po.TaxAmount.Equal(dec("49.5")), po.TaxAmount.String())
	assert.True(t, po.GrandTotal.Equal(dec("539.5")), po.GrandTotal.String())
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreatePurchaseOrder(ctx, CreatePOInput{SupplierID: 1}, 1)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	input := simplePO(1, "10")
	input.SupplierID = 99
	_, err = svc.CreatePurchaseOrder(ctx, input, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreatePurchaseOrder(ctx, simplePO(0, "10"), 1)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.CreatePurchaseOrder(ctx, simplePO(1, "-1"), 1)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	require.Empty(t, repo.pos)
}

func TestCreatePurchaseOrderRollsBackOnItemFailure(t *testing.T) {
	svc, repo, notifier := newTestService()
	repo.failOn("InsertPurchaseOrderItem", 2)
	input := simplePO(1, "10")
	input.Items = append(input.Items, POItemInput{ProductName: "Other", OrderedQty: 2, UnitPrice: dec("1")})

	_, err := svc.CreatePurchaseOrder(context.Background(), input, 1)
	require.True(t, errors.Is(err, errInjected))
	require.Empty(t, repo.pos)
	require.Empty(t, notifier.types())
}

func TestPurchaseOrderTransitionsAreGuarded(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	po, err := svc.CreatePurchaseOrder(ctx, simplePO(5, "1"), 1)
	require.NoError(t, err)

	_, err = svc.ApprovePurchaseOrder(ctx, po.ID, 2, false)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = svc.SubmitPurchaseOrder(ctx, po.ID, 1)
	require.NoError(t, err)
	_, err = svc.SubmitPurchaseOrder(ctx, po.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = svc.SubmitPurchaseOrder(ctx, 404, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdatePurchaseOrderReplacesItems(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	po, err := svc.CreatePurchaseOrder(ctx, simplePO(100, "10"), 1)
	require.NoError(t, err)
	oldItemID := po.Items[0].ID

	notes := "revised"
	updated, err := svc.UpdatePurchaseOrder(ctx, po.ID, UpdatePOInput{
		Notes: &notes,
		Items: []POItemInput{
			{ProductName: "Gadget", OrderedQty: 3, UnitPrice: dec("20")},
			{ProductName: "Gizmo", OrderedQty: 1, UnitPrice: dec("5")},
		},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, "revised", updated.Notes)
	require.True(t, updated.GrandTotal.Equal(dec("65")), updated.GrandTotal.String())

	stored, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	for _, item := range stored.Items {
		require.NotEqual(t, oldItemID, item.ID)
	}
	require.Len(t, repo.pos, 1)
}

func TestUpdatePurchaseOrderChargesOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	po, err := svc.CreatePurchaseOrder(ctx, simplePO(10, "10"), 1)
	require.NoError(t, err)

	shipping := dec("12.5")
	updated, err := svc.UpdatePurchaseOrder(ctx, po.ID, UpdatePOInput{ShippingCost: &shipping}, 1)
	require.NoError(t, err)
	require.True(t, updated.GrandTotal.Equal(dec("112.5")), updated.GrandTotal.String())
	require.Len(t, updated.Items, 1)

	_, err = svc.UpdatePurchaseOrder(ctx, po.ID, UpdatePOInput{Items: []POItemInput{}}, 1)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestUpdatePurchaseOrderRequiresDraft(t *testing.T) {
	svc, _, _ := newTestService()
	po := approvedPO(t, svc, simplePO(1, "1"))
	notes := "late"
	_, err := svc.UpdatePurchaseOrder(context.Background(), po.ID, UpdatePOInput{Notes: &notes}, 1)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCancelPurchaseOrder(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	po := approvedPO(t, svc, simplePO(10, "1"))
	cancelled, err := svc.CancelPurchaseOrder(ctx, po.ID, "supplier out of business", 3)
	require.NoError(t, err)
	require.Equal(t, POStatusCancelled, cancelled.Status)
	require.Equal(t, "supplier out of business", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = svc.CancelPurchaseOrder(ctx, po.ID, "again", 3)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestCancelPurchaseOrderBlockedByReceipt(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	po := approvedPO(t, svc, simplePO(10, "1"))

	_, err := svc.CreateGoodsReceipt(ctx, CreateGRNInput{
		POID:  po.ID,
		Items: []GRNItemInput{{POItemID: &po.Items[0].ID, ReceivedQty: 1, AcceptedQty: 1, UnitCost: dec("1")}},
	}, 1)
	require.NoError(t, err)

	_, err = svc.CancelPurchaseOrder(ctx, po.ID, "changed mind", 1)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestRemovePurchaseOrder(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	draft, err := svc.CreatePurchaseOrder(ctx, simplePO(1, "1"), 1)
	require.NoError(t, err)
	require.NoError(t, svc.RemovePurchaseOrder(ctx, draft.ID, 1))
	_, err = svc.GetPurchaseOrder(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Contains(t, notifier.types(), shared.EventPurchaseOrderDeleted)

	approved := approvedPO(t, svc, simplePO(1, "1"))
	err = svc.RemovePurchaseOrder(ctx, approved.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestListPurchaseOrders(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.CreatePurchaseOrder(ctx, simplePO(1, "1"), 1)
		require.NoError(t, err)
	}
	approvedPO(t, svc, simplePO(1, "1"))

	page, err := svc.ListPurchaseOrders(ctx, POFilter{ListFilter: shared.ListFilter{Status: string(POStatusDraft), Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	require.Equal(t, shared.Pagination{Total: 3, Page: 1, Limit: 2, TotalPages: 2}, page.Meta)
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	svc, repo, notifier := newTestService()
	notifier.err = errors.New("broker unavailable")

	po, err := svc.CreatePurchaseOrder(context.Background(), simplePO(1, "1"), 1)
	require.NoError(t, err)
	require.Contains(t, repo.pos, po.ID)
}
