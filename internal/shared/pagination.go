package shared

import (
	"math"
	"time"
)

const (
	// DefaultLimit applies when a list request omits the page size.
	DefaultLimit = 20
	// MaxLimit caps the page size.
	MaxLimit = 200
)

// ListFilter carries the filters every list operation accepts.
type ListFilter struct {
	Search string
	Status string
	From   time.Time
	To     time.Time
	Page   int
	Limit  int
}

// Normalize applies defaults and bounds to page and limit.
func (f ListFilter) Normalize() ListFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Offset returns the row offset of the current page.
func (f ListFilter) Offset() int {
	f = f.Normalize()
	return (f.Page - 1) * f.Limit
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, limit, total int) Pagination {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{Total: total, Page: page, Limit: limit, TotalPages: totalPages}
}

// Page is the list envelope returned to callers.
type Page[T any] struct {
	Data []T        `json:"data"`
	Meta Pagination `json:"meta"`
}

// NewPage wraps rows and the total count using the filter's paging.
func NewPage[T any](rows []T, total int, filter ListFilter) Page[T] {
	filter = filter.Normalize()
	if rows == nil {
		rows = []T{}
	}
	return Page[T]{Data: rows, Meta: NewPagination(filter.Page, filter.Limit, total)}
}
