package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// TxRepository exposes the stock writes that run inside a caller's
// transaction. Procurement and sales bind it to their own pgx.Tx so ledger
// effects commit or roll back with the document that caused them.
type TxRepository interface {
	InsertStock(ctx context.Context, stock Stock) (int64, error)
	GetStock(ctx context.Context, id int64) (Stock, error)
	FindStock(ctx context.Context, sku, name string) (Stock, error)
	DecrementStock(ctx context.Context, id, qty int64) (int64, bool, error)
	IncrementStock(ctx context.Context, id, qty int64) (int64, error)
	InsertHistory(ctx context.Context, entry StockHistory) (int64, error)
	InsertBatch(ctx context.Context, batch BatchTracking) (int64, error)
	ConsumeBatch(ctx context.Context, stockID, qty int64) error
}

// Ledger applies stock movements through a TxRepository.
type Ledger struct {
	now func() time.Time
}

// NewLedger constructs a Ledger using the wall clock.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// ReceiptInput describes an accepted receipt line entering stock.
type ReceiptInput struct {
	GRNID           int64
	GRNItemID       int64
	SKU             string
	ProductName     string
	Qty             int64
	UnitCost        decimal.Decimal
	SellingPrice    decimal.Decimal
	BatchNumber     string
	SerialNumbers   []string
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
	ActorID         int64
	Note            string
}

// IssueInput describes stock leaving through a sale.
type IssueInput struct {
	StockID    int64
	Qty        int64
	UnitPrice  decimal.Decimal
	StockOutID int64
	ActorID    int64
	Note       string
}

// RestoreInput describes stock returned by a deleted sale.
type RestoreInput struct {
	StockID    int64
	Qty        int64
	StockOutID int64
	ActorID    int64
	Note       string
}

// Receive creates a stock record for an accepted line, a batch when a batch
// number is present and the opening IN/RECEIPT history entry.
func (l *Ledger) Receive(ctx context.Context, tx TxRepository, input ReceiptInput) (Stock, error) {
	if input.Qty <= 0 {
		return Stock{}, fmt.Errorf("%w: receipt quantity must be positive", shared.ErrInvalidInput)
	}
	now := l.now()
	cost := input.UnitCost
	grnItemID := input.GRNItemID
	stock := Stock{
		GRNItemID:        &grnItemID,
		SKU:              input.SKU,
		ProductName:      input.ProductName,
		ReceivedQuantity: input.Qty,
		UnitCost:         &cost,
		SellingPrice:     input.SellingPrice,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	id, err := tx.InsertStock(ctx, stock)
	if err != nil {
		return Stock{}, err
	}
	stock.ID = id

	if input.BatchNumber != "" {
		batch := BatchTracking{
			StockID:         id,
			GRNItemID:       input.GRNItemID,
			BatchNumber:     input.BatchNumber,
			SerialNumbers:   input.SerialNumbers,
			InitialQty:      input.Qty,
			CurrentQty:      input.Qty,
			Status:          BatchActive,
			ManufactureDate: input.ManufactureDate,
			ExpiryDate:      input.ExpiryDate,
		}
		if _, err := tx.InsertBatch(ctx, batch); err != nil {
			return Stock{}, err
		}
	}

	entry := StockHistory{
		StockID:       id,
		Direction:     DirectionIn,
		Source:        SourceReceipt,
		QtyBefore:     0,
		QtyChange:     input.Qty,
		QtyAfter:      input.Qty,
		UnitPrice:     cost,
		UnitCost:      &cost,
		Note:          input.Note,
		ReferenceType: RefGoodsReceipt,
		ReferenceID:   input.GRNID,
		ActorID:       input.ActorID,
		CreatedAt:     now,
	}
	if _, err := tx.InsertHistory(ctx, entry); err != nil {
		return Stock{}, err
	}
	return stock, nil
}

// CheckIssuable reports whether qty can leave stock.
func CheckIssuable(stock Stock, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", shared.ErrInvalidInput)
	}
	if qty > stock.ReceivedQuantity {
		return fmt.Errorf("%w: requested %d, available %d for %s", ErrInsufficientStock, qty, stock.ReceivedQuantity, stock.ProductName)
	}
	if stock.UnitCost == nil {
		return fmt.Errorf("%w for %s", ErrUnitCostUnset, stock.ProductName)
	}
	return nil
}

// Issue decrements stock with a conditional update and appends the OUT/ISSUE
// history entry. A concurrent sale that drained the stock first surfaces as
// ErrInsufficientStock.
func (l *Ledger) Issue(ctx context.Context, tx TxRepository, input IssueInput) (StockHistory, error) {
	stock, err := tx.GetStock(ctx, input.StockID)
	if err != nil {
		return StockHistory{}, err
	}
	if err := CheckIssuable(stock, input.Qty); err != nil {
		return StockHistory{}, err
	}
	after, ok, err := tx.DecrementStock(ctx, input.StockID, input.Qty)
	if err != nil {
		return StockHistory{}, err
	}
	if !ok {
		return StockHistory{}, fmt.Errorf("%w: stock %d changed concurrently", ErrInsufficientStock, input.StockID)
	}
	if err := tx.ConsumeBatch(ctx, input.StockID, input.Qty); err != nil {
		return StockHistory{}, err
	}
	entry := StockHistory{
		StockID:       input.StockID,
		Direction:     DirectionOut,
		Source:        SourceIssue,
		QtyBefore:     after + input.Qty,
		QtyChange:     input.Qty,
		QtyAfter:      after,
		UnitPrice:     input.UnitPrice,
		UnitCost:      stock.UnitCost,
		Note:          input.Note,
		ReferenceType: RefStockOut,
		ReferenceID:   input.StockOutID,
		ActorID:       input.ActorID,
		CreatedAt:     l.now(),
	}
	id, err := tx.InsertHistory(ctx, entry)
	if err != nil {
		return StockHistory{}, err
	}
	entry.ID = id
	return entry, nil
}

// Restore returns qty to stock and appends the compensating IN/ADJUSTMENT entry.
func (l *Ledger) Restore(ctx context.Context, tx TxRepository, input RestoreInput) (StockHistory, error) {
	if input.Qty <= 0 {
		return StockHistory{}, fmt.Errorf("%w: quantity must be positive", shared.ErrInvalidInput)
	}
	stock, err := tx.GetStock(ctx, input.StockID)
	if err != nil {
		return StockHistory{}, err
	}
	after, err := tx.IncrementStock(ctx, input.StockID, input.Qty)
	if err != nil {
		return StockHistory{}, err
	}
	if err := tx.ConsumeBatch(ctx, input.StockID, -input.Qty); err != nil {
		return StockHistory{}, err
	}
	var price decimal.Decimal
	if stock.UnitCost != nil {
		price = *stock.UnitCost
	}
	entry := StockHistory{
		StockID:       input.StockID,
		Direction:     DirectionIn,
		Source:        SourceAdjustment,
		QtyBefore:     after - input.Qty,
		QtyChange:     input.Qty,
		QtyAfter:      after,
		UnitPrice:     price,
		UnitCost:      stock.UnitCost,
		Note:          input.Note,
		ReferenceType: RefStockOut,
		ReferenceID:   input.StockOutID,
		ActorID:       input.ActorID,
		CreatedAt:     l.now(),
	}
	id, err := tx.InsertHistory(ctx, entry)
	if err != nil {
		return StockHistory{}, err
	}
	entry.ID = id
	return entry, nil
}
