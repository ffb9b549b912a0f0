package inventory

import (
	"context"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort abstracts the read side used by Service.
type RepositoryPort interface {
	GetStock(ctx context.Context, id int64) (Stock, error)
	ListStocks(ctx context.Context, filter shared.ListFilter) ([]Stock, int, error)
	ListHistory(ctx context.Context, stockID int64) ([]StockHistory, error)
	ListBatches(ctx context.Context, stockID int64) ([]BatchTracking, error)
	FindMismatches(ctx context.Context) ([]Mismatch, error)
	ExpireBatches(ctx context.Context, now time.Time) (int64, error)
}

// Service answers stock queries and integrity checks.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// StockDetail is a stock with its movements and batches.
type StockDetail struct {
	Stock   Stock           `json:"stock"`
	History []StockHistory  `json:"history"`
	Batches []BatchTracking `json:"batches"`
}

// IntegrityReport summarises one integrity run.
type IntegrityReport struct {
	Mismatches     []Mismatch
	ExpiredBatches int64
}

// GetStock returns stock detail.
func (s *Service) GetStock(ctx context.Context, id int64) (StockDetail, error) {
	stock, err := s.repo.GetStock(ctx, id)
	if err != nil {
		return StockDetail{}, err
	}
	history, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return StockDetail{}, err
	}
	batches, err := s.repo.ListBatches(ctx, id)
	if err != nil {
		return StockDetail{}, err
	}
	if history == nil {
		history = []StockHistory{}
	}
	if batches == nil {
		batches = []BatchTracking{}
	}
	return StockDetail{Stock: stock, History: history, Batches: batches}, nil
}

// ListStocks returns a page of stocks.
func (s *Service) ListStocks(ctx context.Context, filter shared.ListFilter) (shared.Page[Stock], error) {
	filter = filter.Normalize()
	rows, total, err := s.repo.ListStocks(ctx, filter)
	if err != nil {
		return shared.Page[Stock]{}, err
	}
	return shared.NewPage(rows, total, filter), nil
}

// CheckIntegrity expires overdue batches and reports stocks whose latest
// history entry disagrees with the on-hand quantity.
func (s *Service) CheckIntegrity(ctx context.Context, now time.Time) (IntegrityReport, error) {
	expired, err := s.repo.ExpireBatches(ctx, now)
	if err != nil {
		return IntegrityReport{}, err
	}
	mismatches, err := s.repo.FindMismatches(ctx)
	if err != nil {
		return IntegrityReport{}, err
	}
	return IntegrityReport{Mismatches: mismatches, ExpiredBatches: expired}, nil
}
