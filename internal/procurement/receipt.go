package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// GRNItemInput describes one received line.
type GRNItemInput struct {
	POItemID        *int64          `json:"poItemId"`
	ProductName     string          `json:"productName"`
	SKU             string          `json:"sku"`
	OrderedQty      int64           `json:"orderedQty" validate:"gte=0"`
	ReceivedQty     int64           `json:"receivedQty" validate:"gt=0"`
	AcceptedQty     int64           `json:"acceptedQty" validate:"gte=0"`
	RejectedQty     int64           `json:"rejectedQty" validate:"gte=0"`
	RejectionReason string          `json:"rejectionReason"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	BatchNumber     string          `json:"batchNumber"`
	SerialNumbers   []string        `json:"serialNumbers"`
	ManufactureDate *time.Time      `json:"manufactureDate"`
	ExpiryDate      *time.Time      `json:"expiryDate"`
}

// CostBreakdownInput carries receipt-level fees.
type CostBreakdownInput struct {
	ShippingFee  decimal.Decimal `json:"shippingFee"`
	CustomsFee   decimal.Decimal `json:"customsFee"`
	InsuranceFee decimal.Decimal `json:"insuranceFee"`
	HandlingFee  decimal.Decimal `json:"handlingFee"`
	OtherFees    decimal.Decimal `json:"otherFees"`
}

// CreateGRNInput describes GRN creation.
type CreateGRNInput struct {
	POID          int64               `json:"poId" validate:"gt=0"`
	ReceivedDate  time.Time           `json:"receivedDate"`
	Notes         string              `json:"notes"`
	Items         []GRNItemInput      `json:"items" validate:"min=1,dive"`
	CostBreakdown *CostBreakdownInput `json:"costBreakdown"`
}

// UpdateInspectionInput records an inspection outcome.
type UpdateInspectionInput struct {
	Status InspectionStatus `json:"inspectionStatus" validate:"required,oneof=PENDING IN_PROGRESS PASSED FAILED PARTIAL"`
	Notes  string           `json:"inspectionNotes"`
}

// CreateGoodsReceipt records received goods against an approved order. The
// GRN, its items and cost breakdown, the PO item quantities and the PO status
// are written in one transaction.
func (s *Service) CreateGoodsReceipt(ctx context.Context, input CreateGRNInput, actorID int64) (GoodsReceivingNote, error) {
	if err := shared.Validate(input); err != nil {
		return GoodsReceivingNote{}, err
	}
	breakdown, err := buildBreakdown(input.CostBreakdown)
	if err != nil {
		return GoodsReceivingNote{}, err
	}

	now := s.now()
	grn := GoodsReceivingNote{
		POID:             input.POID,
		Status:           GRNStatusPending,
		InspectionStatus: InspectionPending,
		ReceivedDate:     defaultTime(input.ReceivedDate, now),
		ReceivedBy:       actorID,
		Notes:            input.Notes,
		CostBreakdown:    breakdown,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	var po PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseOrderForUpdate(ctx, input.POID)
		if err != nil {
			return err
		}
		if !po.Status.Receivable() {
			return fmt.Errorf("%w: purchase order %s is %s, receipts need APPROVED or PARTIALLY_RECEIVED", shared.ErrInvalidTransition, po.Number, po.Status)
		}
		items, err := reconcileItems(input.Items, po.Items)
		if err != nil {
			return err
		}
		allocateLandedCost(items, grn.CostBreakdown)
		grn.SupplierID = po.SupplierID
		grn.PONumber = po.Number
		grn.HasDiscrepancies = hasDiscrepancies(items)

		if grn.Number, err = tx.NextNumber(ctx, sequence.Monthly(sequence.PrefixGoodsReceipt, now)); err != nil {
			return err
		}
		if grn.ID, err = tx.InsertGoodsReceipt(ctx, grn); err != nil {
			return err
		}
		for i := range items {
			items[i].GRNID = grn.ID
			if items[i].ID, err = tx.InsertGRNItem(ctx, items[i]); err != nil {
				return err
			}
		}
		grn.Items = items
		if grn.CostBreakdown != nil {
			if err := tx.InsertCostBreakdown(ctx, grn.ID, *grn.CostBreakdown); err != nil {
				return err
			}
		}
		return s.applyReceipt(ctx, tx, &po, items)
	})
	if err != nil {
		return GoodsReceivingNote{}, err
	}
	s.effects.Committed(ctx, actorID, "GRN_CREATE", shared.EventGRNCreated, grn.ID, map[string]any{
		"number":            grn.Number,
		"po_id":             po.ID,
		"po_status":         string(po.Status),
		"has_discrepancies": grn.HasDiscrepancies,
	})
	return grn, nil
}

// applyReceipt adds accepted quantities to the referenced PO items and
// re-derives the order status.
func (s *Service) applyReceipt(ctx context.Context, tx TxRepository, po *PurchaseOrder, items []GRNItem) error {
	index := make(map[int64]int, len(po.Items))
	for i, item := range po.Items {
		index[item.ID] = i
	}
	for _, item := range items {
		if item.POItemID == nil {
			continue
		}
		poItem := &po.Items[index[*item.POItemID]]
		if item.AcceptedQty > poItem.RemainingQty {
			return fmt.Errorf("%w: accepted %d of %q exceeds remaining %d", shared.ErrInvalidInput, item.AcceptedQty, poItem.ProductName, poItem.RemainingQty)
		}
		receiveItem(poItem, item.AcceptedQty)
		if err := tx.UpdatePurchaseOrderItem(ctx, *poItem); err != nil {
			return err
		}
	}
	status, closed := receiptStatus(po.Status, po.Items)
	if status == po.Status {
		return nil
	}
	now := s.now()
	po.Status = status
	po.UpdatedAt = now
	if closed {
		po.ClosedAt = &now
	}
	return tx.UpdatePurchaseOrder(ctx, *po)
}

// ApproveGoodsReceipt turns every accepted line into stock. Stock, batch and
// history rows for all lines commit together with the status change.
func (s *Service) ApproveGoodsReceipt(ctx context.Context, id, approverID int64, isAdmin bool) (GoodsReceivingNote, error) {
	var grn GoodsReceivingNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		grn, err = tx.GetGoodsReceiptForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusPending {
			return fmt.Errorf("%w: cannot approve goods receiving note %s in status %s", shared.ErrInvalidTransition, grn.Number, grn.Status)
		}
		for i := range grn.Items {
			item := &grn.Items[i]
			if item.AcceptedQty <= 0 {
				continue
			}
			stock, err := s.ledger.Receive(ctx, tx.Stock(), inventory.ReceiptInput{
				GRNID:           grn.ID,
				GRNItemID:       item.ID,
				SKU:             item.SKU,
				ProductName:     item.ProductName,
				Qty:             item.AcceptedQty,
				UnitCost:        item.LandedCost,
				BatchNumber:     item.BatchNumber,
				SerialNumbers:   item.SerialNumbers,
				ManufactureDate: item.ManufactureDate,
				ExpiryDate:      item.ExpiryDate,
				ActorID:         approverID,
				Note:            fmt.Sprintf("GRN %s", grn.Number),
			})
			if err != nil {
				return err
			}
			if err := tx.LinkGRNItemStock(ctx, item.ID, stock.ID); err != nil {
				return err
			}
			item.StockID = &stock.ID
		}
		now := s.now()
		grn.Status = GRNStatusApproved
		grn.ApprovedBy = &approverID
		grn.ApprovedAt = &now
		grn.UpdatedAt = now
		if err := tx.UpdateGoodsReceipt(ctx, grn); err != nil {
			return err
		}
		return tx.RecordApproval(ctx, shared.ApprovalLog{Module: moduleGRN, RefID: id, ActorID: approverID, IsAdmin: isAdmin, Action: shared.ApprovalApprove, Note: fmt.Sprintf("GRN %s approved", grn.Number), At: now})
	})
	if err != nil {
		return GoodsReceivingNote{}, err
	}
	s.effects.Committed(ctx, approverID, "GRN_APPROVE", shared.EventGRNApproved, id, map[string]any{"number": grn.Number, "is_admin": isAdmin})
	return grn, nil
}

// RejectGoodsReceipt rejects a PENDING receipt.
func (s *Service) RejectGoodsReceipt(ctx context.Context, id int64, reason string, actorID int64) (GoodsReceivingNote, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return GoodsReceivingNote{}, fmt.Errorf("%w: rejection reason is required", shared.ErrInvalidInput)
	}
	var grn GoodsReceivingNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		grn, err = tx.GetGoodsReceiptForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusPending {
			return fmt.Errorf("%w: cannot reject goods receiving note %s in status %s", shared.ErrInvalidTransition, grn.Number, grn.Status)
		}
		now := s.now()
		grn.Status = GRNStatusRejected
		grn.RejectionReason = reason
		grn.UpdatedAt = now
		if err := tx.UpdateGoodsReceipt(ctx, grn); err != nil {
			return err
		}
		return tx.RecordApproval(ctx, shared.ApprovalLog{Module: moduleGRN, RefID: id, ActorID: actorID, Action: shared.ApprovalReject, Note: reason, At: now})
	})
	if err != nil {
		return GoodsReceivingNote{}, err
	}
	s.effects.Committed(ctx, actorID, "GRN_REJECT", shared.EventGRNRejected, id, map[string]any{"number": grn.Number, "reason": reason})
	return grn, nil
}

// UpdateInspection records an inspection outcome without touching the
// approval status.
func (s *Service) UpdateInspection(ctx context.Context, id int64, input UpdateInspectionInput, actorID int64) (GoodsReceivingNote, error) {
	if err := shared.Validate(input); err != nil {
		return GoodsReceivingNote{}, err
	}
	var grn GoodsReceivingNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		grn, err = tx.GetGoodsReceiptForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		grn.InspectionStatus = input.Status
		grn.InspectionNotes = input.Notes
		grn.InspectedBy = &actorID
		grn.InspectedAt = &now
		grn.UpdatedAt = now
		return tx.UpdateGoodsReceipt(ctx, grn)
	})
	if err != nil {
		return GoodsReceivingNote{}, err
	}
	s.effects.Committed(ctx, actorID, "GRN_INSPECT", shared.EventGRNInspected, id, map[string]any{"number": grn.Number, "inspection_status": string(input.Status)})
	return grn, nil
}

// GetGoodsReceipt returns a receipt with items and cost breakdown.
func (s *Service) GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceivingNote, error) {
	return s.repo.GetGoodsReceipt(ctx, id)
}

// GoodsReceiptApprovals returns the approval trail of a receipt, oldest first.
func (s *Service) GoodsReceiptApprovals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.GetGoodsReceipt(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListApprovals(ctx, moduleGRN, id)
}

// ListGoodsReceipts returns a page of receipts.
func (s *Service) ListGoodsReceipts(ctx context.Context, filter GRNFilter) (shared.Page[GoodsReceivingNote], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	rows, total, err := s.repo.ListGoodsReceipts(ctx, filter)
	if err != nil {
		return shared.Page[GoodsReceivingNote]{}, err
	}
	return shared.NewPage(rows, total, filter.ListFilter), nil
}

// reconcileItems builds GRN items, filling line details from the referenced
// PO item, and rejects inconsistent quantities.
func reconcileItems(inputs []GRNItemInput, poItems []PurchaseOrderItem) ([]GRNItem, error) {
	byID := make(map[int64]PurchaseOrderItem, len(poItems))
	for _, item := range poItems {
		byID[item.ID] = item
	}
	items := make([]GRNItem, 0, len(inputs))
	for i, in := range inputs {
		item := GRNItem{
			POItemID:        in.POItemID,
			ProductName:     in.ProductName,
			SKU:             in.SKU,
			OrderedQty:      in.OrderedQty,
			ReceivedQty:     in.ReceivedQty,
			AcceptedQty:     in.AcceptedQty,
			RejectedQty:     in.RejectedQty,
			RejectionReason: in.RejectionReason,
			UnitCost:        in.UnitCost,
			BatchNumber:     in.BatchNumber,
			SerialNumbers:   in.SerialNumbers,
			ManufactureDate: in.ManufactureDate,
			ExpiryDate:      in.ExpiryDate,
		}
		if in.POItemID != nil {
			poItem, ok := byID[*in.POItemID]
			if !ok {
				return nil, fmt.Errorf("%w: items[%d] purchase order item %d does not belong to this order", shared.ErrInvalidInput, i, *in.POItemID)
			}
			if item.ProductName == "" {
				item.ProductName = poItem.ProductName
			}
			if item.SKU == "" {
				item.SKU = poItem.SKU
			}
			if item.OrderedQty == 0 {
				item.OrderedQty = poItem.OrderedQty
			}
		}
		if item.ProductName == "" {
			return nil, fmt.Errorf("%w: items[%d] product name is required", shared.ErrInvalidInput, i)
		}
		if item.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: items[%d] unit cost must not be negative", shared.ErrInvalidInput, i)
		}
		if item.AcceptedQty+item.RejectedQty > item.ReceivedQty {
			return nil, fmt.Errorf("%w: items[%d] accepted %d plus rejected %d exceeds received %d", shared.ErrInvalidInput, i, item.AcceptedQty, item.RejectedQty, item.ReceivedQty)
		}
		if item.OrderedQty > 0 && item.ReceivedQty > item.OrderedQty {
			return nil, fmt.Errorf("%w: items[%d] received %d exceeds ordered %d", shared.ErrInvalidInput, i, item.ReceivedQty, item.OrderedQty)
		}
		items = append(items, item)
	}
	return items, nil
}

func buildBreakdown(input *CostBreakdownInput) (*CostBreakdown, error) {
	if input == nil {
		return nil, nil
	}
	for _, fee := range []decimal.Decimal{input.ShippingFee, input.CustomsFee, input.InsuranceFee, input.HandlingFee, input.OtherFees} {
		if fee.IsNegative() {
			return nil, fmt.Errorf("%w: cost breakdown fees must not be negative", shared.ErrInvalidInput)
		}
	}
	return &CostBreakdown{
		ShippingFee:  input.ShippingFee,
		CustomsFee:   input.CustomsFee,
		InsuranceFee: input.InsuranceFee,
		HandlingFee:  input.HandlingFee,
		OtherFees:    input.OtherFees,
	}, nil
}
