package debit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status of a debit. Everything but CANCELLED is derived from payments.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusCancelled     Status = "CANCELLED"
)

// Debit is a customer balance from a credit sale.
type Debit struct {
	ID            int64           `json:"id"`
	StockOutID    *int64          `json:"stockOutId,omitempty"`
	TransactionID *uuid.UUID      `json:"transactionId,omitempty"`
	CustomerName  string          `json:"customerName"`
	CustomerPhone string          `json:"customerPhone,omitempty"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	Remaining     decimal.Decimal `json:"remaining"`
	Status        Status          `json:"status"`
	DueDate       *time.Time      `json:"dueDate,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     int64           `json:"createdBy"`
	CancelledAt   *time.Time      `json:"cancelledAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Payments      []Payment       `json:"payments"`
}

// Payment is one installment against a debit.
type Payment struct {
	ID         int64           `json:"id"`
	DebitID    int64           `json:"debitId"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     time.Time       `json:"paidAt"`
	Note       string          `json:"note,omitempty"`
	RecordedBy int64           `json:"recordedBy"`
}

// DeriveStatus maps the paid sum against the total.
func DeriveStatus(total, paid decimal.Decimal) Status {
	switch {
	case paid.LessThanOrEqual(decimal.Zero):
		return StatusPending
	case paid.LessThan(total):
		return StatusPartiallyPaid
	default:
		return StatusPaid
	}
}

// paid sums the recorded payments.
func (d Debit) paid() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range d.Payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// refresh recomputes the derived amounts and, unless cancelled, the status.
func (d *Debit) refresh() {
	d.PaidAmount = d.paid()
	d.Remaining = d.TotalAmount.Sub(d.PaidAmount)
	if d.Status != StatusCancelled {
		d.Status = DeriveStatus(d.TotalAmount, d.PaidAmount)
	}
}

// Filter narrows debit listings. Search matches the customer.
type Filter struct {
	shared.ListFilter
}

// amountScale matches the NUMERIC(18,4) money columns. Amounts are rounded to
// it before they are compared or stored.
const amountScale = 4

func roundAmount(v decimal.Decimal) decimal.Decimal {
	return v.Round(amountScale)
}

// ErrDebitNotFound indicates an unknown debit id.
var ErrDebitNotFound = fmt.Errorf("%w: debit", shared.ErrNotFound)
