package debit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
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
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction. Writers serialise on
// the FOR UPDATE row lock taken by GetDebitForUpdate.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const debitColumns = `id, stock_out_id, transaction_id, customer_name, customer_phone, total_amount, paid_amount, status,
	due_date, notes, COALESCE(created_by, 0), cancelled_at, created_at, updated_at`

func scanDebit(row pgx.Row) (Debit, error) {
	var d Debit
	var status string
	err := row.Scan(&d.ID, &d.StockOutID, &d.TransactionID, &d.CustomerName, &d.CustomerPhone, &d.TotalAmount, &d.PaidAmount, &status,
		&d.DueDate, &d.Notes, &d.CreatedBy, &d.CancelledAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Debit{}, ErrDebitNotFound
		}
		return Debit{}, err
	}
	d.Status = Status(status)
	d.Remaining = d.TotalAmount.Sub(d.PaidAmount)
	return d, nil
}

func loadPayments(ctx context.Context, q db.DBTX, ids ...int64) (map[int64][]Payment, error) {
	rows, err := q.Query(ctx, `SELECT id, debit_id, amount, paid_at, note, COALESCE(recorded_by, 0)
FROM debit_payments WHERE debit_id = ANY($1) ORDER BY paid_at, id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]Payment, len(ids))
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.DebitID, &p.Amount, &p.PaidAt, &p.Note, &p.RecordedBy); err != nil {
			return nil, err
		}
		out[p.DebitID] = append(out[p.DebitID], p)
	}
	return out, rows.Err()
}

func getDebit(ctx context.Context, q db.DBTX, id int64, lock bool) (Debit, error) {
	sql := `SELECT ` + debitColumns + ` FROM debits WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	d, err := scanDebit(q.QueryRow(ctx, sql, id))
	if err != nil {
		return Debit{}, err
	}
	payments, err := loadPayments(ctx, q, id)
	if err != nil {
		return Debit{}, err
	}
	d.Payments = append([]Payment{}, payments[id]...)
	return d, nil
}

// GetDebit returns a debit with payments.
func (r *Repository) GetDebit(ctx context.Context, id int64) (Debit, error) {
	return getDebit(ctx, r.pool, id, false)
}

// ListDebits returns debits matching filter with their payments.
func (r *Repository) ListDebits(ctx context.Context, filter Filter) ([]Debit, int, error) {
	var f db.Filter
	if filter.Search != "" {
		f.Add("(customer_name ILIKE ? OR customer_phone ILIKE ?)", "%"+filter.Search+"%")
	}
	if filter.Status != "" {
		f.Add("status = ?", filter.Status)
	}
	if !filter.From.IsZero() {
		f.Add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		f.Add("created_at <= ?", filter.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM debits`+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := f.Page(filter.Limit, filter.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+debitColumns+` FROM debits`+f.Where()+` ORDER BY created_at DESC, id DESC`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var debits []Debit
	var ids []int64
	for rows.Next() {
		d, err := scanDebit(rows)
		if err != nil {
			return nil, 0, err
		}
		debits = append(debits, d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return debits, total, nil
	}
	payments, err := loadPayments(ctx, r.pool, ids...)
	if err != nil {
		return nil, 0, err
	}
	for i := range debits {
		debits[i].Payments = append([]Payment{}, payments[debits[i].ID]...)
	}
	return debits, total, nil
}

func (t *txRepo) GetDebitForUpdate(ctx context.Context, id int64) (Debit, error) {
	return getDebit(ctx, t.tx, id, true)
}

func (t *txRepo) InsertDebit(ctx context.Context, d Debit) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO debits (stock_out_id, transaction_id, customer_name, customer_phone, total_amount, paid_amount, status,
	due_date, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		d.StockOutID, d.TransactionID, d.CustomerName, d.CustomerPhone, d.TotalAmount, d.PaidAmount, string(d.Status),
		d.DueDate, d.Notes, db.NullInt(d.CreatedBy), d.CreatedAt, d.UpdatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateDebit(ctx context.Context, d Debit) error {
	_, err := t.tx.Exec(ctx, `UPDATE debits SET customer_name = $2, customer_phone = $3, total_amount = $4, paid_amount = $5,
	status = $6, due_date = $7, notes = $8, cancelled_at = $9, updated_at = $10 WHERE id = $1`,
		d.ID, d.CustomerName, d.CustomerPhone, d.TotalAmount, d.PaidAmount, string(d.Status), d.DueDate, d.Notes, d.CancelledAt, d.UpdatedAt)
	return err
}

func (t *txRepo) DeleteDebit(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM debits WHERE id = $1`, id)
	return err
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO debit_payments (debit_id, amount, paid_at, note, recorded_by)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, p.DebitID, p.Amount, p.PaidAt, p.Note, db.NullInt(p.RecordedBy)).Scan(&id)
	return id, err
}
