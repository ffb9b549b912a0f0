package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// PostgresRepository reads the audit_logs table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgresRepository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectEntries = `SELECT id, COALESCE(actor_id, 0), action, entity, entity_id, meta, occurred_at FROM audit_logs`

const newestFirst = ` ORDER BY occurred_at DESC, id DESC`

// Window returns limit entries starting at offset.
func (r *PostgresRepository) Window(ctx context.Context, filter TimelineFilter, offset, limit int) ([]Entry, error) {
	f := where(filter)
	clause, args := f.Page(limit, offset)
	return r.query(ctx, selectEntries+f.Where()+newestFirst+clause, args)
}

// All returns every matching entry.
func (r *PostgresRepository) All(ctx context.Context, filter TimelineFilter) ([]Entry, error) {
	f := where(filter)
	return r.query(ctx, selectEntries+f.Where()+newestFirst, f.Args())
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args []any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query timeline: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func where(filter TimelineFilter) *db.Filter {
	f := &db.Filter{}
	if !filter.From.IsZero() {
		f.Add("occurred_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		f.Add("occurred_at < ?", filter.To.AddDate(0, 0, 1))
	}
	if filter.ActorID > 0 {
		f.Add("actor_id = ?", filter.ActorID)
	}
	if filter.Entity != "" {
		f.Add("entity = ?", filter.Entity)
	}
	if filter.EntityID != "" {
		f.Add("entity_id = ?", filter.EntityID)
	}
	if filter.Action != "" {
		f.Add("action = ?", filter.Action)
	}
	return f
}
