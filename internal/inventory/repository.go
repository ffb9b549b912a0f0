package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository provides PostgreSQL backed stock queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NewTxRepository binds ledger writes to q, normally the caller's pgx.Tx.
func NewTxRepository(q db.DBTX) TxRepository {
	return &txRepo{db: q}
}

type txRepo struct {
	db db.DBTX
}

const stockColumns = `id, grn_item_id, sku, product_name, received_quantity, unit_cost, selling_price, created_at, updated_at`

func scanStock(row pgx.Row) (Stock, error) {
	var s Stock
	var cost decimal.NullDecimal
	if err := row.Scan(&s.ID, &s.GRNItemID, &s.SKU, &s.ProductName, &s.ReceivedQuantity, &cost, &s.SellingPrice, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{}, ErrStockNotFound
		}
		return Stock{}, err
	}
	if cost.Valid {
		s.UnitCost = &cost.Decimal
	}
	return s, nil
}

func getStock(ctx context.Context, q db.DBTX, id int64) (Stock, error) {
	return scanStock(q.QueryRow(ctx, `SELECT `+stockColumns+` FROM stocks WHERE id = $1`, id))
}

func findStock(ctx context.Context, q db.DBTX, sku, name string) (Stock, error) {
	if sku != "" {
		s, err := scanStock(q.QueryRow(ctx, `SELECT `+stockColumns+` FROM stocks WHERE sku = $1 ORDER BY received_quantity DESC, id ASC LIMIT 1`, sku))
		if err == nil || !errors.Is(err, ErrStockNotFound) {
			return s, err
		}
	}
	if name == "" {
		return Stock{}, ErrStockNotFound
	}
	return scanStock(q.QueryRow(ctx, `SELECT `+stockColumns+` FROM stocks WHERE LOWER(product_name) = LOWER($1) ORDER BY received_quantity DESC, id ASC LIMIT 1`, name))
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (r *txRepo) InsertStock(ctx context.Context, stock Stock) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO stocks (grn_item_id, sku, product_name, received_quantity, unit_cost, selling_price, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
		stock.GRNItemID, stock.SKU, stock.ProductName, stock.ReceivedQuantity, nullDecimal(stock.UnitCost), stock.SellingPrice, stock.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) GetStock(ctx context.Context, id int64) (Stock, error) {
	return getStock(ctx, r.db, id)
}

func (r *txRepo) FindStock(ctx context.Context, sku, name string) (Stock, error) {
	return findStock(ctx, r.db, sku, name)
}

func (r *txRepo) DecrementStock(ctx context.Context, id, qty int64) (int64, bool, error) {
	var after int64
	err := r.db.QueryRow(ctx, `UPDATE stocks SET received_quantity = received_quantity - $2, updated_at = NOW()
WHERE id = $1 AND received_quantity >= $2 RETURNING received_quantity`, id, qty).Scan(&after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return after, true, nil
}

func (r *txRepo) IncrementStock(ctx context.Context, id, qty int64) (int64, error) {
	var after int64
	err := r.db.QueryRow(ctx, `UPDATE stocks SET received_quantity = received_quantity + $2, updated_at = NOW()
WHERE id = $1 RETURNING received_quantity`, id, qty).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrStockNotFound
	}
	return after, err
}

func (r *txRepo) InsertHistory(ctx context.Context, e StockHistory) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO stock_histories (stock_id, direction, source, qty_before, qty_change, qty_after, unit_price, unit_cost, note, reference_type, reference_id, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
		e.StockID, string(e.Direction), string(e.Source), e.QtyBefore, e.QtyChange, e.QtyAfter, e.UnitPrice, nullDecimal(e.UnitCost),
		e.Note, e.ReferenceType, e.ReferenceID, db.NullInt(e.ActorID), e.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) InsertBatch(ctx context.Context, b BatchTracking) (int64, error) {
	serials := b.SerialNumbers
	if serials == nil {
		serials = []string{}
	}
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO batch_trackings (stock_id, grn_item_id, batch_number, serial_numbers, initial_qty, current_qty, consumed_qty, status, manufacture_date, expiry_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		b.StockID, b.GRNItemID, b.BatchNumber, serials, b.InitialQty, b.CurrentQty, b.ConsumedQty, string(b.Status), b.ManufactureDate, b.ExpiryDate).Scan(&id)
	return id, err
}

func (r *txRepo) ConsumeBatch(ctx context.Context, stockID, qty int64) error {
	_, err := r.db.Exec(ctx, `UPDATE batch_trackings SET
	consumed_qty = consumed_qty + $2,
	current_qty = current_qty - $2,
	status = CASE
		WHEN current_qty - $2 <= 0 THEN 'DEPLETED'
		WHEN status = 'DEPLETED' THEN 'ACTIVE'
		ELSE status END
WHERE stock_id = $1 AND status <> 'EXPIRED'`, stockID, qty)
	return err
}

// GetStock loads a stock by id.
func (r *Repository) GetStock(ctx context.Context, id int64) (Stock, error) {
	return getStock(ctx, r.pool, id)
}

// ListStocks returns stocks matching filter. Status "in_stock" keeps positive
// quantities, "out_of_stock" keeps zero quantities.
func (r *Repository) ListStocks(ctx context.Context, filter shared.ListFilter) ([]Stock, int, error) {
	var f db.Filter
	if filter.Search != "" {
		f.Add("(sku ILIKE ? OR product_name ILIKE ?)", "%"+filter.Search+"%")
	}
	switch filter.Status {
	case "in_stock":
		f.Add("received_quantity > ?", 0)
	case "out_of_stock":
		f.Add("received_quantity <= ?", 0)
	}
	if !filter.From.IsZero() {
		f.Add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		f.Add("created_at <= ?", filter.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stocks`+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := f.Page(filter.Limit, filter.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+stockColumns+` FROM stocks`+f.Where()+` ORDER BY created_at DESC, id DESC`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var stocks []Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, 0, err
		}
		stocks = append(stocks, s)
	}
	return stocks, total, rows.Err()
}

// ListHistory returns the movements of a stock in insertion order.
func (r *Repository) ListHistory(ctx context.Context, stockID int64) ([]StockHistory, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, stock_id, direction, source, qty_before, qty_change, qty_after, unit_price, unit_cost,
	note, reference_type, reference_id, COALESCE(actor_id, 0), created_at
FROM stock_histories WHERE stock_id = $1 ORDER BY id ASC`, stockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StockHistory
	for rows.Next() {
		var e StockHistory
		var direction, source string
		var cost decimal.NullDecimal
		if err := rows.Scan(&e.ID, &e.StockID, &direction, &source, &e.QtyBefore, &e.QtyChange, &e.QtyAfter, &e.UnitPrice, &cost,
			&e.Note, &e.ReferenceType, &e.ReferenceID, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Direction = Direction(direction)
		e.Source = Source(source)
		if cost.Valid {
			e.UnitCost = &cost.Decimal
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListBatches returns the batches recorded against a stock.
func (r *Repository) ListBatches(ctx context.Context, stockID int64) ([]BatchTracking, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, stock_id, grn_item_id, batch_number, serial_numbers, initial_qty, current_qty, consumed_qty, status, manufacture_date, expiry_date
FROM batch_trackings WHERE stock_id = $1 ORDER BY id ASC`, stockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []BatchTracking
	for rows.Next() {
		var b BatchTracking
		var status string
		if err := rows.Scan(&b.ID, &b.StockID, &b.GRNItemID, &b.BatchNumber, &b.SerialNumbers, &b.InitialQty, &b.CurrentQty, &b.ConsumedQty, &status, &b.ManufactureDate, &b.ExpiryDate); err != nil {
			return nil, err
		}
		b.Status = BatchStatus(status)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// mismatchQuery picks each stock's latest movement by id. Movements on one
// stock are serialized by its row lock, so id order is movement order.
const mismatchQuery = `SELECT s.id, s.sku, s.received_quantity, h.qty_after
FROM stocks s
JOIN LATERAL (
	SELECT qty_after FROM stock_histories WHERE stock_id = s.id ORDER BY id DESC LIMIT 1
) h ON TRUE
WHERE h.qty_after <> s.received_quantity
ORDER BY s.id`

// FindMismatches returns stocks whose latest history qty_after differs from
// received_quantity.
func (r *Repository) FindMismatches(ctx context.Context) ([]Mismatch, error) {
	rows, err := r.pool.Query(ctx, mismatchQuery)
	if err != nil {
		return nil, fmt.Errorf("inventory: find mismatches: %w", err)
	}
	defer rows.Close()

	var out []Mismatch
	for rows.Next() {
		var m Mismatch
		if err := rows.Scan(&m.StockID, &m.SKU, &m.ReceivedQuantity, &m.LastQtyAfter); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ExpireBatches marks active batches past their expiry date as EXPIRED.
func (r *Repository) ExpireBatches(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE batch_trackings SET status = 'EXPIRED' WHERE status = 'ACTIVE' AND expiry_date IS NOT NULL AND expiry_date < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
