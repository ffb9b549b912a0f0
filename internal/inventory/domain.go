package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Direction of a stock movement.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Source classifies what caused a stock movement.
type Source string

const (
	SourceReceipt    Source = "RECEIPT"
	SourceIssue      Source = "ISSUE"
	SourceAdjustment Source = "ADJUSTMENT"
)

// BatchStatus of a tracked batch.
type BatchStatus string

const (
	BatchActive   BatchStatus = "ACTIVE"
	BatchDepleted BatchStatus = "DEPLETED"
	BatchExpired  BatchStatus = "EXPIRED"
)

// Reference types written on history rows.
const (
	RefGoodsReceipt = "GRN"
	RefStockOut     = "STOCK_OUT"
)

// Stock is one on-hand record created from an accepted receipt line.
type Stock struct {
	ID               int64            `json:"id"`
	GRNItemID        *int64           `json:"grnItemId,omitempty"`
	SKU              string           `json:"sku"`
	ProductName      string           `json:"productName"`
	ReceivedQuantity int64            `json:"receivedQuantity"`
	UnitCost         *decimal.Decimal `json:"unitCost"`
	SellingPrice     decimal.Decimal  `json:"sellingPrice"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// StockHistory is an append-only movement record.
type StockHistory struct {
	ID            int64            `json:"id"`
	StockID       int64            `json:"stockId"`
	Direction     Direction        `json:"direction"`
	Source        Source           `json:"source"`
	QtyBefore     int64            `json:"qtyBefore"`
	QtyChange     int64            `json:"qtyChange"`
	QtyAfter      int64            `json:"qtyAfter"`
	UnitPrice     decimal.Decimal  `json:"unitPrice"`
	UnitCost      *decimal.Decimal `json:"unitCost"`
	Note          string           `json:"note,omitempty"`
	ReferenceType string           `json:"referenceType"`
	ReferenceID   int64            `json:"referenceId"`
	ActorID       int64            `json:"actorId"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// BatchTracking follows a received batch through consumption.
type BatchTracking struct {
	ID              int64       `json:"id"`
	StockID         int64       `json:"stockId"`
	GRNItemID       int64       `json:"grnItemId"`
	BatchNumber     string      `json:"batchNumber"`
	SerialNumbers   []string    `json:"serialNumbers,omitempty"`
	InitialQty      int64       `json:"initialQty"`
	CurrentQty      int64       `json:"currentQty"`
	ConsumedQty     int64       `json:"consumedQty"`
	Status          BatchStatus `json:"status"`
	ManufactureDate *time.Time  `json:"manufactureDate,omitempty"`
	ExpiryDate      *time.Time  `json:"expiryDate,omitempty"`
}

// Mismatch reports a stock whose latest history disagrees with its quantity.
type Mismatch struct {
	StockID          int64
	SKU              string
	ReceivedQuantity int64
	LastQtyAfter     int64
}

var (
	// ErrStockNotFound indicates an unknown stock id.
	ErrStockNotFound = fmt.Errorf("%w: stock", shared.ErrNotFound)
	// ErrInsufficientStock indicates a requested quantity above on hand.
	ErrInsufficientStock = fmt.Errorf("%w: stock quantity", shared.ErrInsufficientResource)
	// ErrUnitCostUnset indicates a stock without cost cannot be issued.
	ErrUnitCostUnset = fmt.Errorf("%w: stock unit cost not set", shared.ErrInvalidInput)
)
