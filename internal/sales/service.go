package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockOut(ctx context.Context, id int64) (StockOut, error)
	ListStockOuts(ctx context.Context, filter Filter) ([]StockOut, int, error)
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]StockOut, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Stock() inventory.TxRepository
	ClaimIdempotencyKey(ctx context.Context, key string) error
	InsertStockOut(ctx context.Context, out StockOut) (int64, error)
	GetStockOutForUpdate(ctx context.Context, id int64) (StockOut, error)
	DeleteStockOut(ctx context.Context, id int64) error
}

// Service records sales against stock.
type Service struct {
	repo     RepositoryPort
	ledger   *inventory.Ledger
	effects  shared.Effects
	logger   *slog.Logger
	now      func() time.Time
	newTxnID func() uuid.UUID
}

// NewService constructs the sales service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, notifier shared.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		ledger:   inventory.NewLedger(),
		effects:  shared.Effects{Entity: "sales", Audit: audit, Notifier: notifier, Logger: logger},
		logger:   logger,
		now:      time.Now,
		newTxnID: uuid.New,
	}
}

// Create sells every line in one transaction under a fresh transaction id.
// Internal lines decrement stock; external lines are recorded only.
func (s *Service) Create(ctx context.Context, input CreateSalesInput, actorID int64) ([]StockOut, error) {
	if actorID <= 0 {
		return nil, fmt.Errorf("%w: actor id is required", shared.ErrInvalidInput)
	}
	if err := shared.Validate(input); err != nil {
		return nil, err
	}
	for i, line := range input.Sales {
		if err := checkLine(line); err != nil {
			return nil, fmt.Errorf("sales[%d]: %w", i, err)
		}
	}

	base := StockOut{
		ClientName:    strings.TrimSpace(input.Client.Name),
		ClientPhone:   strings.TrimSpace(input.Client.Phone),
		ClientEmail:   strings.TrimSpace(input.Client.Email),
		TransactionID: s.newTxnID(),
		PaymentMethod: paymentOrDefault(input.PaymentMethod),
		SoldBy:        actorID,
		CreatedAt:     s.now(),
	}
	var outs []StockOut
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		outs = outs[:0]
		if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
			if err := tx.ClaimIdempotencyKey(ctx, key); err != nil {
				return err
			}
		}
		for i, line := range input.Sales {
			out, err := s.sell(ctx, tx, line, base)
			if err != nil {
				return fmt.Errorf("sales[%d]: %w", i, err)
			}
			outs = append(outs, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, out := range outs {
		total = total.Add(out.Total())
	}
	s.effects.Committed(ctx, actorID, "SALE_CREATE", shared.EventSaleCreated, outs[0].ID, map[string]any{
		"transaction_id": base.TransactionID.String(),
		"lines":          len(outs),
		"total":          total.String(),
	})
	return outs, nil
}

func checkLine(line SaleLine) error {
	if line.SoldPrice != nil && line.SoldPrice.IsNegative() {
		return fmt.Errorf("%w: sold price must not be negative", shared.ErrInvalidInput)
	}
	if line.StockID != nil {
		return nil
	}
	if strings.TrimSpace(line.ExternalItemName) == "" {
		return fmt.Errorf("%w: external item name is required", shared.ErrInvalidInput)
	}
	if line.SoldPrice == nil {
		return fmt.Errorf("%w: external item %s needs a sold price", shared.ErrInvalidInput, line.ExternalItemName)
	}
	return nil
}

func paymentOrDefault(method PaymentMethod) PaymentMethod {
	if method == "" {
		return PaymentCash
	}
	return method
}

// sell writes one line. base carries the sale-wide fields.
func (s *Service) sell(ctx context.Context, tx TxRepository, line SaleLine, base StockOut) (StockOut, error) {
	out := base
	out.Quantity = line.Quantity

	if line.StockID == nil {
		out.IsExternal = true
		out.ExternalItemName = strings.TrimSpace(line.ExternalItemName)
		out.ProductName = out.ExternalItemName
		out.SKU = line.SKU
		out.SoldPrice = *line.SoldPrice
		id, err := tx.InsertStockOut(ctx, out)
		if err != nil {
			return StockOut{}, err
		}
		out.ID = id
		return out, nil
	}

	stock, err := tx.Stock().GetStock(ctx, *line.StockID)
	if err != nil {
		return StockOut{}, err
	}
	if err := inventory.CheckIssuable(stock, line.Quantity); err != nil {
		return StockOut{}, err
	}
	out.StockID = &stock.ID
	out.ProductName = stock.ProductName
	out.SKU = stock.SKU
	out.SoldPrice = soldPrice(line.SoldPrice, stock)

	if out.ID, err = tx.InsertStockOut(ctx, out); err != nil {
		return StockOut{}, err
	}
	if _, err := s.ledger.Issue(ctx, tx.Stock(), inventory.IssueInput{
		StockID:    stock.ID,
		Qty:        line.Quantity,
		UnitPrice:  out.SoldPrice,
		StockOutID: out.ID,
		ActorID:    base.SoldBy,
		Note:       "sale " + base.TransactionID.String(),
	}); err != nil {
		return StockOut{}, err
	}
	return out, nil
}

// soldPrice falls back to the selling price, then the unit cost.
func soldPrice(requested *decimal.Decimal, stock inventory.Stock) decimal.Decimal {
	switch {
	case requested != nil:
		return *requested
	case stock.SellingPrice.IsPositive():
		return stock.SellingPrice
	case stock.UnitCost != nil:
		return *stock.UnitCost
	default:
		return decimal.Zero
	}
}

// Delete removes a sale line and returns its quantity to stock.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	var out StockOut
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.GetStockOutForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !out.IsExternal && out.StockID != nil {
			if _, err := s.ledger.Restore(ctx, tx.Stock(), inventory.RestoreInput{
				StockID:    *out.StockID,
				Qty:        out.Quantity,
				StockOutID: out.ID,
				ActorID:    actorID,
				Note:       fmt.Sprintf("sale %d deleted", out.ID),
			}); err != nil {
				return err
			}
		}
		return tx.DeleteStockOut(ctx, id)
	})
	if err != nil {
		return err
	}
	s.effects.Committed(ctx, actorID, "SALE_DELETE", shared.EventSaleDeleted, id, map[string]any{
		"transaction_id": out.TransactionID.String(),
		"quantity":       out.Quantity,
		"external":       out.IsExternal,
	})
	return nil
}

// BulkImport sells each row in its own transaction. Rows are matched to stock
// by SKU, then by name; unmatched rows are recorded as external items. Row
// failures are collected and never abort the import.
func (s *Service) BulkImport(ctx context.Context, rows []ImportRow, actorID int64) (shared.ImportResult, error) {
	if actorID <= 0 {
		return shared.ImportResult{}, fmt.Errorf("%w: actor id is required", shared.ErrInvalidInput)
	}
	if len(rows) == 0 {
		return shared.ImportResult{}, fmt.Errorf("%w: no rows to import", shared.ErrInvalidInput)
	}
	result := shared.NewImportResult(len(rows))
	txnID := s.newTxnID()
	for i, row := range rows {
		if err := s.importRow(ctx, row, txnID, actorID); err != nil {
			result.Fail(i+1, err)
			s.logger.Warn("sales import row failed", slog.Int("row", i+1), slog.Any("error", err))
			continue
		}
		result.Succeeded++
	}
	if result.Succeeded > 0 {
		s.effects.Committed(ctx, actorID, "SALE_IMPORT", shared.EventSalesImported, 0, map[string]any{
			"transaction_id": txnID.String(),
			"succeeded":      result.Succeeded,
			"failed":         result.Failed,
		})
	}
	return result, nil
}

func (s *Service) importRow(ctx context.Context, row ImportRow, txnID uuid.UUID, actorID int64) error {
	if row.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", shared.ErrInvalidInput)
	}
	if err := shared.Validate(row); err != nil {
		return err
	}
	sku, name := strings.TrimSpace(row.SKU), strings.TrimSpace(row.ItemName)
	if sku == "" && name == "" {
		return fmt.Errorf("%w: sku or item name is required", shared.ErrInvalidInput)
	}
	base := StockOut{
		ClientName:    row.ClientName,
		ClientPhone:   row.ClientPhone,
		ClientEmail:   row.ClientEmail,
		TransactionID: txnID,
		PaymentMethod: paymentOrDefault(row.PaymentMethod),
		SoldBy:        actorID,
		CreatedAt:     s.now(),
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line := SaleLine{Quantity: row.Quantity, SoldPrice: row.SoldPrice, SKU: sku}
		stock, err := tx.Stock().FindStock(ctx, sku, name)
		switch {
		case err == nil:
			line.StockID = &stock.ID
		case errors.Is(err, inventory.ErrStockNotFound):
			line.ExternalItemName = name
			if line.ExternalItemName == "" {
				line.ExternalItemName = sku
			}
		default:
			return err
		}
		if err := checkLine(line); err != nil {
			return err
		}
		_, err = s.sell(ctx, tx, line, base)
		return err
	})
}

// Get returns one stock-out.
func (s *Service) Get(ctx context.Context, id int64) (StockOut, error) {
	return s.repo.GetStockOut(ctx, id)
}

// List returns a page of stock-outs.
func (s *Service) List(ctx context.Context, filter Filter) (shared.Page[StockOut], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	if filter.Status != "" && filter.Status != statusInternal && filter.Status != statusExternal {
		return shared.Page[StockOut]{}, fmt.Errorf("%w: status must be %s or %s", shared.ErrInvalidInput, statusInternal, statusExternal)
	}
	rows, total, err := s.repo.ListStockOuts(ctx, filter)
	if err != nil {
		return shared.Page[StockOut]{}, err
	}
	return shared.NewPage(rows, total, filter.ListFilter), nil
}

// ListByTransaction returns every line sold under one transaction id.
func (s *Service) ListByTransaction(ctx context.Context, transactionID string) ([]StockOut, error) {
	id, err := uuid.Parse(transactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid transaction id", shared.ErrInvalidInput)
	}
	outs, err := s.repo.ListByTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%w: transaction %s", shared.ErrNotFound, id)
	}
	return outs, nil
}
