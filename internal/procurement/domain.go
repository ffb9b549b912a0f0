package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// POStatus is the purchase order lifecycle status.
type POStatus string

const (
	POStatusDraft             POStatus = "DRAFT"
	POStatusPendingApproval   POStatus = "PENDING_APPROVAL"
	POStatusApproved          POStatus = "APPROVED"
	POStatusPartiallyReceived POStatus = "PARTIALLY_RECEIVED"
	POStatusReceived          POStatus = "RECEIVED"
	POStatusCancelled         POStatus = "CANCELLED"
)

// Cancellable reports whether the status permits cancellation.
func (s POStatus) Cancellable() bool {
	return s == POStatusDraft || s == POStatusPendingApproval || s == POStatusApproved
}

// Receivable reports whether a GRN may be created against the status.
func (s POStatus) Receivable() bool {
	return s == POStatusApproved || s == POStatusPartiallyReceived
}

// POItemStatus tracks receipt progress of one line.
type POItemStatus string

const (
	POItemPending           POItemStatus = "PENDING"
	POItemPartiallyReceived POItemStatus = "PARTIALLY_RECEIVED"
	POItemReceived          POItemStatus = "RECEIVED"
)

// GRNStatus is the goods receipt approval status.
type GRNStatus string

const (
	GRNStatusPending  GRNStatus = "PENDING"
	GRNStatusApproved GRNStatus = "APPROVED"
	GRNStatusRejected GRNStatus = "REJECTED"
)

// InspectionStatus is tracked independently of GRNStatus.
type InspectionStatus string

const (
	InspectionPending    InspectionStatus = "PENDING"
	InspectionInProgress InspectionStatus = "IN_PROGRESS"
	InspectionPassed     InspectionStatus = "PASSED"
	InspectionFailed     InspectionStatus = "FAILED"
	InspectionPartial    InspectionStatus = "PARTIAL"
)

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID                 int64               `json:"id"`
	Number             string              `json:"number"`
	SupplierID         int64               `json:"supplierId"`
	SupplierName       string              `json:"supplierName,omitempty"`
	Status             POStatus            `json:"status"`
	OrderDate          time.Time           `json:"orderDate"`
	ExpectedDate       *time.Time          `json:"expectedDate,omitempty"`
	Subtotal           decimal.Decimal     `json:"subtotal"`
	TaxAmount          decimal.Decimal     `json:"taxAmount"`
	ShippingCost       decimal.Decimal     `json:"shippingCost"`
	OtherCharges       decimal.Decimal     `json:"otherCharges"`
	GrandTotal         decimal.Decimal     `json:"grandTotal"`
	ApprovedBy         *int64              `json:"approvedBy,omitempty"`
	ApprovedAt         *time.Time          `json:"approvedAt,omitempty"`
	ClosedAt           *time.Time          `json:"closedAt,omitempty"`
	CancellationReason string              `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time          `json:"cancelledAt,omitempty"`
	Notes              string              `json:"notes,omitempty"`
	CreatedBy          int64               `json:"createdBy"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
	Items              []PurchaseOrderItem `json:"items"`
}

// PurchaseOrderItem is one ordered line.
type PurchaseOrderItem struct {
	ID             int64           `json:"id"`
	POID           int64           `json:"poId"`
	ProductName    string          `json:"productName"`
	SKU            string          `json:"sku"`
	OrderedQty     int64           `json:"orderedQty"`
	ReceivedQty    int64           `json:"receivedQty"`
	RemainingQty   int64           `json:"remainingQty"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	DiscountPct    decimal.Decimal `json:"discountPct"`
	TaxPct         decimal.Decimal `json:"taxPct"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	LineTotal      decimal.Decimal `json:"lineTotal"`
	Status         POItemStatus    `json:"status"`
}

// GoodsReceivingNote records goods received against a purchase order.
type GoodsReceivingNote struct {
	ID               int64            `json:"id"`
	Number           string           `json:"number"`
	POID             int64            `json:"poId"`
	PONumber         string           `json:"poNumber,omitempty"`
	SupplierID       int64            `json:"supplierId"`
	Status           GRNStatus        `json:"status"`
	InspectionStatus InspectionStatus `json:"inspectionStatus"`
	InspectionNotes  string           `json:"inspectionNotes,omitempty"`
	InspectedBy      *int64           `json:"inspectedBy,omitempty"`
	InspectedAt      *time.Time       `json:"inspectedAt,omitempty"`
	HasDiscrepancies bool             `json:"hasDiscrepancies"`
	ReceivedDate     time.Time        `json:"receivedDate"`
	ReceivedBy       int64            `json:"receivedBy"`
	ApprovedBy       *int64           `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time       `json:"approvedAt,omitempty"`
	RejectionReason  string           `json:"rejectionReason,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	Items            []GRNItem        `json:"items"`
	CostBreakdown    *CostBreakdown   `json:"costBreakdown,omitempty"`
}

// GRNItem is one received line.
type GRNItem struct {
	ID              int64           `json:"id"`
	GRNID           int64           `json:"grnId"`
	POItemID        *int64          `json:"poItemId,omitempty"`
	ProductName     string          `json:"productName"`
	SKU             string          `json:"sku"`
	OrderedQty      int64           `json:"orderedQty"`
	ReceivedQty     int64           `json:"receivedQty"`
	AcceptedQty     int64           `json:"acceptedQty"`
	RejectedQty     int64           `json:"rejectedQty"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	LandedCost      decimal.Decimal `json:"landedCost"`
	LineTotal       decimal.Decimal `json:"lineTotal"`
	BatchNumber     string          `json:"batchNumber,omitempty"`
	SerialNumbers   []string        `json:"serialNumbers,omitempty"`
	ManufactureDate *time.Time      `json:"manufactureDate,omitempty"`
	ExpiryDate      *time.Time      `json:"expiryDate,omitempty"`
	StockID         *int64          `json:"stockId,omitempty"`
}

// CostBreakdown holds the receipt-level fees allocated into landed cost.
type CostBreakdown struct {
	ShippingFee     decimal.Decimal `json:"shippingFee"`
	CustomsFee      decimal.Decimal `json:"customsFee"`
	InsuranceFee    decimal.Decimal `json:"insuranceFee"`
	HandlingFee     decimal.Decimal `json:"handlingFee"`
	OtherFees       decimal.Decimal `json:"otherFees"`
	TotalFees       decimal.Decimal `json:"totalFees"`
	TotalLandedCost decimal.Decimal `json:"totalLandedCost"`
	CostPerUnit     decimal.Decimal `json:"costPerUnit"`
}

// POFilter narrows purchase order listings.
type POFilter struct {
	shared.ListFilter
	SupplierID int64
}

// GRNFilter narrows goods receipt listings.
type GRNFilter struct {
	shared.ListFilter
	POID             int64
	InspectionStatus string
}

var (
	// ErrPONotFound indicates an unknown purchase order.
	ErrPONotFound = fmt.Errorf("%w: purchase order", shared.ErrNotFound)
	// ErrGRNNotFound indicates an unknown goods receipt.
	ErrGRNNotFound = fmt.Errorf("%w: goods receiving note", shared.ErrNotFound)
)

const (
	modulePO  = "PO"
	moduleGRN = "GRN"
)
