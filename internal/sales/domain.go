package sales

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// PaymentMethod records how a sale was settled.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentCard     PaymentMethod = "CARD"
	PaymentCredit   PaymentMethod = "CREDIT"
)

// StockOut is one sold line. Internal lines reference a stock row; external
// lines record an item that never entered inventory.
type StockOut struct {
	ID               int64           `json:"id"`
	StockID          *int64          `json:"stockId,omitempty"`
	ExternalItemName string          `json:"externalItemName,omitempty"`
	ProductName      string          `json:"productName"`
	SKU              string          `json:"sku,omitempty"`
	Quantity         int64           `json:"quantity"`
	SoldPrice        decimal.Decimal `json:"soldPrice"`
	ClientName       string          `json:"clientName,omitempty"`
	ClientPhone      string          `json:"clientPhone,omitempty"`
	ClientEmail      string          `json:"clientEmail,omitempty"`
	TransactionID    uuid.UUID       `json:"transactionId"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"`
	IsExternal       bool            `json:"isExternal"`
	SoldBy           int64           `json:"soldBy"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Total is quantity times sold price.
func (s StockOut) Total() decimal.Decimal {
	return s.SoldPrice.Mul(decimal.NewFromInt(s.Quantity))
}

// Client carries optional buyer details shared by one sale.
type Client struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email" validate:"omitempty,email"`
}

// SaleLine is one requested line. A nil StockID marks an external item.
type SaleLine struct {
	StockID          *int64           `json:"stockId"`
	ExternalItemName string           `json:"externalItemName"`
	SKU              string           `json:"sku"`
	Quantity         int64            `json:"quantity" validate:"gt=0"`
	SoldPrice        *decimal.Decimal `json:"soldPrice"`
}

// CreateSalesInput describes one sale of one or more lines.
type CreateSalesInput struct {
	Sales          []SaleLine    `json:"sales" validate:"min=1,dive"`
	Client         Client        `json:"client"`
	PaymentMethod  PaymentMethod `json:"paymentMethod" validate:"omitempty,oneof=CASH TRANSFER CARD CREDIT"`
	IdempotencyKey string        `json:"idempotencyKey"`
}

// ImportRow is one spreadsheet row of a bulk import.
type ImportRow struct {
	SKU           string           `json:"sku"`
	ItemName      string           `json:"itemName"`
	Quantity      int64            `json:"quantity"`
	SoldPrice     *decimal.Decimal `json:"soldPrice"`
	ClientName    string           `json:"clientName"`
	ClientPhone   string           `json:"clientPhone"`
	ClientEmail   string           `json:"clientEmail"`
	PaymentMethod PaymentMethod    `json:"paymentMethod" validate:"omitempty,oneof=CASH TRANSFER CARD CREDIT"`
}

// Filter narrows stock-out listings. Status is "internal" or "external".
type Filter struct {
	shared.ListFilter
	StockID       int64
	PaymentMethod string
}

const (
	statusInternal = "internal"
	statusExternal = "external"
)

// ErrStockOutNotFound indicates an unknown stock-out id.
var ErrStockOutNotFound = fmt.Errorf("%w: stock out", shared.ErrNotFound)

const idempotencyModule = "sales"
