package sales

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx    pgx.Tx
	stock inventory.TxRepository
	keys  *shared.IdempotencyStore
}

// WithTx wraps callback in a read-committed transaction so the conditional
// stock decrement sees concurrent sales instead of aborting on them.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, stock: inventory.NewTxRepository(tx), keys: shared.NewIdempotencyStore(tx)})
	})
}

const stockOutColumns = `id, stock_id, external_item_name, product_name, sku, quantity, sold_price,
	client_name, client_phone, client_email, transaction_id, payment_method, is_external, sold_by, created_at`

func scanStockOut(row pgx.Row) (StockOut, error) {
	var out StockOut
	var method string
	err := row.Scan(&out.ID, &out.StockID, &out.ExternalItemName, &out.ProductName, &out.SKU, &out.Quantity, &out.SoldPrice,
		&out.ClientName, &out.ClientPhone, &out.ClientEmail, &out.TransactionID, &method, &out.IsExternal, &out.SoldBy, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockOut{}, ErrStockOutNotFound
		}
		return StockOut{}, err
	}
	out.PaymentMethod = PaymentMethod(method)
	return out, nil
}

func collect(rows pgx.Rows) ([]StockOut, error) {
	defer rows.Close()
	var outs []StockOut
	for rows.Next() {
		out, err := scanStockOut(rows)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, rows.Err()
}

// GetStockOut returns one stock-out.
func (r *Repository) GetStockOut(ctx context.Context, id int64) (StockOut, error) {
	return scanStockOut(r.pool.QueryRow(ctx, `SELECT `+stockOutColumns+` FROM stock_outs WHERE id = $1`, id))
}

// ListStockOuts returns stock-outs matching filter, newest first.
func (r *Repository) ListStockOuts(ctx context.Context, filter Filter) ([]StockOut, int, error) {
	var f db.Filter
	if filter.Search != "" {
		f.Add("(product_name ILIKE ? OR sku ILIKE ? OR client_name ILIKE ?)", "%"+filter.Search+"%")
	}
	switch filter.Status {
	case statusInternal:
		f.Add("is_external = ?", false)
	case statusExternal:
		f.Add("is_external = ?", true)
	}
	if filter.StockID > 0 {
		f.Add("stock_id = ?", filter.StockID)
	}
	if filter.PaymentMethod != "" {
		f.Add("payment_method = ?", filter.PaymentMethod)
	}
	if !filter.From.IsZero() {
		f.Add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		f.Add("created_at <= ?", filter.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_outs`+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := f.Page(filter.Limit, filter.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+stockOutColumns+` FROM stock_outs`+f.Where()+` ORDER BY created_at DESC, id DESC`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	outs, err := collect(rows)
	return outs, total, err
}

// ListByTransaction returns the lines of one sale in insertion order.
func (r *Repository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]StockOut, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stockOutColumns+` FROM stock_outs WHERE transaction_id = $1 ORDER BY id`, transactionID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (t *txRepo) Stock() inventory.TxRepository {
	return t.stock
}

func (t *txRepo) ClaimIdempotencyKey(ctx context.Context, key string) error {
	return t.keys.CheckAndInsert(ctx, key, idempotencyModule)
}

func (t *txRepo) InsertStockOut(ctx context.Context, out StockOut) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_outs (stock_id, external_item_name, product_name, sku, quantity, sold_price,
	client_name, client_phone, client_email, transaction_id, payment_method, is_external, sold_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		out.StockID, out.ExternalItemName, out.ProductName, out.SKU, out.Quantity, out.SoldPrice,
		out.ClientName, out.ClientPhone, out.ClientEmail, out.TransactionID, string(out.PaymentMethod), out.IsExternal, out.SoldBy, out.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) GetStockOutForUpdate(ctx context.Context, id int64) (StockOut, error) {
	return scanStockOut(t.tx.QueryRow(ctx, `SELECT `+stockOutColumns+` FROM stock_outs WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) DeleteStockOut(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM stock_outs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockOutNotFound
	}
	return nil
}
