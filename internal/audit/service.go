package audit

import (
	"context"
	"errors"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository reads persisted audit logs, newest first.
type Repository interface {
	Window(ctx context.Context, filter TimelineFilter, offset, limit int) ([]Entry, error)
	All(ctx context.Context, filter TimelineFilter) ([]Entry, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService constructs a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of the audit trail. One extra row is fetched to
// decide whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filter TimelineFilter) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	filter = normalize(filter)
	offset := (filter.Page - 1) * filter.PageSize
	rows, err := s.repo.Window(ctx, filter, offset, filter.PageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > filter.PageSize
	if hasNext {
		rows = rows[:filter.PageSize]
	}
	if rows == nil {
		rows = []Entry{}
	}
	paging := Paging{Page: filter.Page, PageSize: filter.PageSize, HasNext: hasNext}
	if filter.Page > 1 {
		paging.PrevPage = filter.Page - 1
	}
	if hasNext {
		paging.NextPage = filter.Page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every entry matching filter without paging.
func (s *Service) Export(ctx context.Context, filter TimelineFilter) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.All(ctx, normalize(filter))
}

func normalize(f TimelineFilter) TimelineFilter {
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	f.Entity = strings.TrimSpace(f.Entity)
	f.EntityID = strings.TrimSpace(f.EntityID)
	f.Action = strings.TrimSpace(f.Action)
	return f
}
