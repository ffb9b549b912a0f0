package suppliers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sequence"
)

// Repository persists suppliers.
type Repository interface {
	List(ctx context.Context, filter Filter) ([]Supplier, int, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	NextCode(ctx context.Context) (string, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
	Update(ctx context.Context, supplier Supplier) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `id, code, name, COALESCE(email, ''), phone, address, contact_person, is_active, created_at, updated_at`

func scan(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Email, &s.Phone, &s.Address, &s.ContactPerson, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, err
}

func (r *repository) List(ctx context.Context, filter Filter) ([]Supplier, int, error) {
	var f db.Filter
	if filter.Search != "" {
		f.Add("(name ILIKE ? OR code ILIKE ? OR email ILIKE ?)", "%"+filter.Search+"%")
	}
	switch filter.Status {
	case "active":
		f.Add("is_active = ?", true)
	case "inactive":
		f.Add("is_active = ?", false)
	}
	if !filter.From.IsZero() {
		f.Add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		f.Add("created_at <= ?", filter.To)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := f.Page(filter.Limit, filter.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM suppliers`+f.Where()+` ORDER BY name ASC, id ASC`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Supplier, error) {
	return scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM suppliers WHERE id = $1`, id))
}

func (r *repository) NextCode(ctx context.Context) (string, error) {
	return sequence.Next(ctx, r.db, sequence.Global(sequence.PrefixSupplier))
}

func (r *repository) Create(ctx context.Context, s Supplier) (Supplier, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers (code, name, email, phone, address, contact_person, is_active, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9) RETURNING id`,
		s.Code, s.Name, s.Email, s.Phone, s.Address, s.ContactPerson, s.IsActive, s.CreatedAt, s.UpdatedAt).Scan(&s.ID)
	if err != nil {
		return Supplier{}, mapWriteError(err)
	}
	return s, nil
}

func (r *repository) Update(ctx context.Context, s Supplier) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET code = $2, name = $3, email = NULLIF($4, ''), phone = $5, address = $6,
	contact_person = $7, is_active = $8, updated_at = $9 WHERE id = $1`,
		s.ID, s.Code, s.Name, s.Email, s.Phone, s.Address, s.ContactPerson, s.IsActive, s.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSupplierNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrSupplierInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSupplierNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err, "suppliers_code_key"):
		return ErrDuplicateCode
	case db.IsUniqueViolation(err, "suppliers_email_key"):
		return ErrDuplicateEmail
	default:
		return err
	}
}
