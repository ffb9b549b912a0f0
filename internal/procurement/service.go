package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, filter POFilter) ([]PurchaseOrder, int, error)
	GetGoodsReceipt(ctx context.Context, id int64) (GoodsReceivingNote, error)
	ListGoodsReceipts(ctx context.Context, filter GRNFilter) ([]GoodsReceivingNote, int, error)
	ListApprovals(ctx context.Context, module string, refID int64) ([]shared.ApprovalLog, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextNumber(ctx context.Context, key sequence.Key) (string, error)
	Stock() inventory.TxRepository
	RecordApproval(ctx context.Context, log shared.ApprovalLog) error

	GetPurchaseOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	UpdatePurchaseOrder(ctx context.Context, po PurchaseOrder) error
	DeletePurchaseOrder(ctx context.Context, id int64) error
	InsertPurchaseOrderItem(ctx context.Context, item PurchaseOrderItem) (int64, error)
	UpdatePurchaseOrderItem(ctx context.Context, item PurchaseOrderItem) error
	DeletePurchaseOrderItems(ctx context.Context, poID int64) error
	CountReceiptItems(ctx context.Context, poID int64) (int, error)

	GetGoodsReceiptForUpdate(ctx context.Context, id int64) (GoodsReceivingNote, error)
	InsertGoodsReceipt(ctx context.Context, grn GoodsReceivingNote) (int64, error)
	UpdateGoodsReceipt(ctx context.Context, grn GoodsReceivingNote) error
	InsertGRNItem(ctx context.Context, item GRNItem) (int64, error)
	InsertCostBreakdown(ctx context.Context, grnID int64, breakdown CostBreakdown) error
	LinkGRNItemStock(ctx context.Context, itemID, stockID int64) error
}

// SupplierPort checks supplier references.
type SupplierPort interface {
	EnsureExists(ctx context.Context, id int64) error
}

// Service orchestrates purchase orders and goods receipts.
type Service struct {
	repo      RepositoryPort
	suppliers SupplierPort
	ledger    *inventory.Ledger
	effects   shared.Effects
	now       func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, suppliers SupplierPort, audit shared.AuditRecorder, notifier shared.Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		suppliers: suppliers,
		ledger:    inventory.NewLedger(),
		effects:   shared.Effects{Entity: "procurement", Audit: audit, Notifier: notifier, Logger: logger},
		now:       time.Now,
	}
}

// POItemInput describes one ordered line.
type POItemInput struct {
	ProductName string          `json:"productName" validate:"required"`
	SKU         string          `json:"sku"`
	OrderedQty  int64           `json:"orderedQty" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	DiscountPct decimal.Decimal `json:"discountPct"`
	TaxPct      decimal.Decimal `json:"taxPct"`
}

// CreatePOInput describes creation payload.
type CreatePOInput struct {
	SupplierID   int64           `json:"supplierId" validate:"gt=0"`
	OrderDate    time.Time       `json:"orderDate"`
	ExpectedDate *time.Time      `json:"expectedDate"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	OtherCharges decimal.Decimal `json:"otherCharges"`
	Notes        string          `json:"notes"`
	Items        []POItemInput   `json:"items" validate:"min=1,dive"`
}

// UpdatePOInput patches a draft order. Nil fields are left unchanged; a
// non-nil Items replaces every existing item.
type UpdatePOInput struct {
	SupplierID   *int64           `json:"supplierId"`
	OrderDate    *time.Time       `json:"orderDate"`
	ExpectedDate *time.Time       `json:"expectedDate"`
	ShippingCost *decimal.Decimal `json:"shippingCost"`
	OtherCharges *decimal.Decimal `json:"otherCharges"`
	Notes        *string          `json:"notes"`
	Items        []POItemInput    `json:"items" validate:"omitempty,dive"`
}

// CreatePurchaseOrder persists a DRAFT order with a generated number.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput, actorID int64) (PurchaseOrder, error) {
	if err := shared.Validate(input); err != nil {
		return PurchaseOrder{}, err
	}
	if err := validateCharges(input.ShippingCost, input.OtherCharges); err != nil {
		return PurchaseOrder{}, err
	}
	items, err := buildItems(input.Items)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := s.suppliers.EnsureExists(ctx, input.SupplierID); err != nil {
		return PurchaseOrder{}, err
	}

	now := s.now()
	po := PurchaseOrder{
		SupplierID:   input.SupplierID,
		Status:       POStatusDraft,
		OrderDate:    defaultTime(input.OrderDate, now),
		ExpectedDate: input.ExpectedDate,
		ShippingCost: input.ShippingCost,
		OtherCharges: input.OtherCharges,
		Notes:        input.Notes,
		CreatedBy:    actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	po.Subtotal, po.TaxAmount = priceItems(items)
	applyGrandTotal(&po)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, sequence.Monthly(sequence.PrefixPurchaseOrder, now))
		if err != nil {
			return err
		}
		po.Number = number
		id, err := tx.InsertPurchaseOrder(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		return insertItems(ctx, tx, id, items)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = items
	s.effects.Committed(ctx, actorID, "PO_CREATE", shared.EventPurchaseOrderCreated, po.ID, map[string]any{"number": po.Number, "grand_total": po.GrandTotal.String()})
	return po, nil
}

// SubmitPurchaseOrder moves a DRAFT order to PENDING_APPROVAL.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return transitionError(po, "submit")
		}
		po.Status = POStatusPendingApproval
		po.UpdatedAt = s.now()
		if err := tx.UpdatePurchaseOrder(ctx, po); err != nil {
			return err
		}
		return tx.RecordApproval(ctx, shared.ApprovalLog{Module: modulePO, RefID: id, ActorID: actorID, Action: shared.ApprovalSubmit, Note: fmt.Sprintf("PO %s submitted", po.Number), At: po.UpdatedAt})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.effects.Committed(ctx, actorID, "PO_SUBMIT", shared.EventPurchaseOrderSubmitted, id, map[string]any{"number": po.Number})
	return po, nil
}

// ApprovePurchaseOrder moves a PENDING_APPROVAL order to APPROVED and records
// the approver. isAdmin is kept in the approval trail only.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, id, approverID int64, isAdmin bool) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if po.Status != POStatusPendingApproval {
			return transitionError(po, "approve")
		}
		now := s.now()
		po.Status = POStatusApproved
		po.ApprovedBy = &approverID
		po.ApprovedAt = &now
		po.UpdatedAt = now
		if err := tx.UpdatePurchaseOrder(ctx, po); err != nil {
			return err
		}
		return tx.RecordApproval(ctx, shared.ApprovalLog{Module: modulePO, RefID: id, ActorID: approverID, IsAdmin: isAdmin, Action: shared.ApprovalApprove, Note: fmt.Sprintf("PO %s approved", po.Number), At: now})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.effects.Committed(ctx, approverID, "PO_APPROVE", shared.EventPurchaseOrderApproved, id, map[string]any{"number": po.Number, "is_admin": isAdmin})
	return po, nil
}

// UpdatePurchaseOrder patches a DRAFT order.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, id int64, input UpdatePOInput, actorID int64) (PurchaseOrder, error) {
	if err := shared.Validate(input); err != nil {
		return PurchaseOrder{}, err
	}
	var items []PurchaseOrderItem
	if input.Items != nil {
		if len(input.Items) == 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: purchase order requires at least one item", shared.ErrInvalidInput)
		}
		var err error
		if items, err = buildItems(input.Items); err != nil {
			return PurchaseOrder{}, err
		}
	}
	if input.ShippingCost != nil || input.OtherCharges != nil {
		if err := validateCharges(deref(input.ShippingCost), deref(input.OtherCharges)); err != nil {
			return PurchaseOrder{}, err
		}
	}
	if input.SupplierID != nil {
		if err := s.suppliers.EnsureExists(ctx, *input.SupplierID); err != nil {
			return PurchaseOrder{}, err
		}
	}

	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return transitionError(po, "update")
		}
		if input.SupplierID != nil {
			po.SupplierID = *input.SupplierID
		}
		if input.OrderDate != nil {
			po.OrderDate = *input.OrderDate
		}
		if input.ExpectedDate != nil {
			po.ExpectedDate = input.ExpectedDate
		}
		if input.ShippingCost != nil {
			po.ShippingCost = *input.ShippingCost
		}
		if input.OtherCharges != nil {
			po.OtherCharges = *input.OtherCharges
		}
		if input.Notes != nil {
			po.Notes = *input.Notes
		}
		if items != nil {
			if err := tx.DeletePurchaseOrderItems(ctx, id); err != nil {
				return err
			}
			po.Subtotal, po.TaxAmount = priceItems(items)
			if err := insertItems(ctx, tx, id, items); err != nil {
				return err
			}
			po.Items = items
		}
		applyGrandTotal(&po)
		po.UpdatedAt = s.now()
		return tx.UpdatePurchaseOrder(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.effects.Committed(ctx, actorID, "PO_UPDATE", shared.EventPurchaseOrderUpdated, id, map[string]any{"number": po.Number, "items_replaced": items != nil})
	return po, nil
}

// CancelPurchaseOrder cancels an order that never received goods.
func (s *Service) CancelPurchaseOrder(ctx context.Context, id int64, reason string, actorID int64) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPurchaseOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !po.Status.Cancellable() {
			return transitionError(po, "cancel")
		}
		receipts, err := tx.CountReceiptItems(ctx, id)
		if err != nil {
			return err
		}
		if receipts > 0 {
			return fmt.Errorf("%w: purchase order %s has %d received items", shared.ErrInvalidTransition, po.Number, receipts)
		}
		now := s.now()
		po.Status = POStatusCancelled
		po.CancellationReason = reason
		po.CancelledAt = &now
		po.UpdatedAt = now
		if err := tx.UpdatePurchaseOrder(ctx, po); err != nil {
			return err
		}
		return tx.RecordApproval(ctx, shared.ApprovalLog{Module: modulePO, RefID: id, ActorID: actorID, Action: shared.ApprovalCancel, Note: reason, At: now})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.effects.Committed(ctx, actorID, "PO_CANCEL", shared.EventPurchaseOrderCancelled, id, map[string]any{"number": po.Number, "reason": reason})
	return po, nil
}

// RemovePurchaseOrder hard deletes a DRAFT order and its items.
func (s *Service) RemovePurchaseOrder(ctx context.Context, id, actorID int64) error {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPurchaseOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return transitionError(po, "delete")
		}
		number = po.Number
		return tx.DeletePurchaseOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.effects.Committed(ctx, actorID, "PO_DELETE", shared.EventPurchaseOrderDeleted, id, map[string]any{"number": number})
	return nil
}

// GetPurchaseOrder returns an order with its items.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// PurchaseOrderApprovals returns the approval trail of an order, oldest first.
func (s *Service) PurchaseOrderApprovals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.GetPurchaseOrder(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListApprovals(ctx, modulePO, id)
}

// ListPurchaseOrders returns a page of orders.
func (s *Service) ListPurchaseOrders(ctx context.Context, filter POFilter) (shared.Page[PurchaseOrder], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	rows, total, err := s.repo.ListPurchaseOrders(ctx, filter)
	if err != nil {
		return shared.Page[PurchaseOrder]{}, err
	}
	return shared.NewPage(rows, total, filter.ListFilter), nil
}

func buildItems(inputs []POItemInput) ([]PurchaseOrderItem, error) {
	items := make([]PurchaseOrderItem, 0, len(inputs))
	for i, in := range inputs {
		if in.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: items[%d] unit price must not be negative", shared.ErrInvalidInput, i)
		}
		if in.DiscountPct.IsNegative() || in.DiscountPct.GreaterThan(hundred) {
			return nil, fmt.Errorf("%w: items[%d] discount must be between 0 and 100", shared.ErrInvalidInput, i)
		}
		if in.TaxPct.IsNegative() {
			return nil, fmt.Errorf("%w: items[%d] tax must not be negative", shared.ErrInvalidInput, i)
		}
		items = append(items, PurchaseOrderItem{
			ProductName:  in.ProductName,
			SKU:          in.SKU,
			OrderedQty:   in.OrderedQty,
			RemainingQty: in.OrderedQty,
			UnitPrice:    in.UnitPrice,
			DiscountPct:  in.DiscountPct,
			TaxPct:       in.TaxPct,
			Status:       POItemPending,
		})
	}
	return items, nil
}

func insertItems(ctx context.Context, tx TxRepository, poID int64, items []PurchaseOrderItem) error {
	for i := range items {
		items[i].POID = poID
		id, err := tx.InsertPurchaseOrderItem(ctx, items[i])
		if err != nil {
			return err
		}
		items[i].ID = id
	}
	return nil
}

func validateCharges(shipping, other decimal.Decimal) error {
	if shipping.IsNegative() || other.IsNegative() {
		return fmt.Errorf("%w: charges must not be negative", shared.ErrInvalidInput)
	}
	return nil
}

func transitionError(po PurchaseOrder, action string) error {
	return fmt.Errorf("%w: cannot %s purchase order %s in status %s", shared.ErrInvalidTransition, action, po.Number, po.Status)
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func defaultTime(value, fallback time.Time) time.Time {
	if value.IsZero() {
		return fallback
	}
	return value
}
