package sales

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/inventory/inventorytest"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

var errInjected = errors.New("injected failure")

type memoryRepo struct {
	outs   map[int64]StockOut
	keys   map[string]bool
	stock  *inventorytest.Store
	nextID int64
	failAt map[string]int
	calls  map[string]int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		outs:   make(map[int64]StockOut),
		keys:   make(map[string]bool),
		stock:  inventorytest.NewStore(),
		failAt: make(map[string]int),
		calls:  make(map[string]int),
	}
}

func (r *memoryRepo) failOn(method string, nth int) {
	r.failAt[method] = nth
	r.calls[method] = 0
}

func (r *memoryRepo) hit(method string) error {
	r.calls[method]++
	if n, ok := r.failAt[method]; ok && r.calls[method] == n {
		return fmt.Errorf("%s: %w", method, errInjected)
	}
	return nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	outs := maps.Clone(r.outs)
	keys := maps.Clone(r.keys)
	nextID := r.nextID
	stock := r.stock.Snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.outs, r.keys, r.nextID = outs, keys, nextID
		r.stock.Restore(stock)
		return err
	}
	return nil
}

func (r *memoryRepo) GetStockOut(_ context.Context, id int64) (StockOut, error) {
	out, ok := r.outs[id]
	if !ok {
		return StockOut{}, ErrStockOutNotFound
	}
	return out, nil
}

func (r *memoryRepo) sorted() []StockOut {
	outs := make([]StockOut, 0, len(r.outs))
	for _, out := range r.outs {
		outs = append(outs, out)
	}
	slices.SortFunc(outs, func(a, b StockOut) int { return int(a.ID - b.ID) })
	return outs
}

func (r *memoryRepo) ListStockOuts(_ context.Context, filter Filter) ([]StockOut, int, error) {
	var rows []StockOut
	for _, out := range r.sorted() {
		if (filter.Status == statusExternal && !out.IsExternal) || (filter.Status == statusInternal && out.IsExternal) {
			continue
		}
		if filter.StockID > 0 && (out.StockID == nil || *out.StockID != filter.StockID) {
			continue
		}
		if filter.PaymentMethod != "" && string(out.PaymentMethod) != filter.PaymentMethod {
			continue
		}
		rows = append(rows, out)
	}
	start := min(filter.Offset(), len(rows))
	end := min(start+filter.Limit, len(rows))
	return rows[start:end], len(rows), nil
}

func (r *memoryRepo) ListByTransaction(_ context.Context, transactionID uuid.UUID) ([]StockOut, error) {
	var rows []StockOut
	for _, out := range r.sorted() {
		if out.TransactionID == transactionID {
			rows = append(rows, out)
		}
	}
	return rows, nil
}

func (t *memoryTx) Stock() inventory.TxRepository {
	return failingStock{Store: t.repo.stock, repo: t.repo}
}

func (t *memoryTx) ClaimIdempotencyKey(_ context.Context, key string) error {
	if t.repo.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	t.repo.keys[key] = true
	return nil
}

func (t *memoryTx) InsertStockOut(_ context.Context, out StockOut) (int64, error) {
	if err := t.repo.hit("InsertStockOut"); err != nil {
		return 0, err
	}
	t.repo.nextID++
	out.ID = t.repo.nextID
	t.repo.outs[out.ID] = out
	return out.ID, nil
}

func (t *memoryTx) GetStockOutForUpdate(ctx context.Context, id int64) (StockOut, error) {
	return t.repo.GetStockOut(ctx, id)
}

func (t *memoryTx) DeleteStockOut(_ context.Context, id int64) error {
	if err := t.repo.hit("DeleteStockOut"); err != nil {
		return err
	}
	delete(t.repo.outs, id)
	return nil
}

type failingStock struct {
	*inventorytest.Store
	repo *memoryRepo
}

func (s failingStock) InsertHistory(ctx context.Context, entry inventory.StockHistory) (int64, error) {
	if err := s.repo.hit("InsertHistory"); err != nil {
		return 0, err
	}
	return s.Store.InsertHistory(ctx, entry)
}

var fixedNow = time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func price(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func seedStock(repo *memoryRepo, sku, name string, qty int64, cost *decimal.Decimal) int64 {
	return repo.stock.Seed(inventory.Stock{SKU: sku, ProductName: name, ReceivedQuantity: qty, UnitCost: cost, SellingPrice: dec("15")})
}
