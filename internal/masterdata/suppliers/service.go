package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Service implements supplier master data.
type Service struct {
	repo    Repository
	effects shared.Effects
	logger  *slog.Logger
	lookups singleflight.Group
	now     func() time.Time
}

// NewService constructs the supplier service.
func NewService(repo Repository, audit shared.AuditRecorder, notifier shared.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		effects: shared.Effects{Entity: "supplier", Audit: audit, Notifier: notifier, Logger: logger},
		logger:  logger,
		now:     time.Now,
	}
}

// List returns a page of suppliers.
func (s *Service) List(ctx context.Context, filter Filter) (shared.Page[Supplier], error) {
	filter.ListFilter = filter.Normalize()
	switch filter.Status {
	case "", "active", "inactive":
	default:
		return shared.Page[Supplier]{}, fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, filter.Status)
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[Supplier]{}, err
	}
	return shared.NewPage(rows, total, filter.ListFilter), nil
}

// Get loads one supplier.
func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, fmt.Errorf("%w: supplier id", shared.ErrInvalidInput)
	}
	return s.repo.Get(ctx, id)
}

// EnsureExists reports whether id names an active supplier. Concurrent checks
// for the same id share one lookup; a caller that gives up does not cancel it
// for the others.
func (s *Service) EnsureExists(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: supplier id", shared.ErrInvalidInput)
	}
	lookupCtx := context.WithoutCancel(ctx)
	ch := s.lookups.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		return s.repo.Get(lookupCtx, id)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		if !res.Val.(Supplier).IsActive {
			return ErrSupplierInactive
		}
		return nil
	}
}

// Create stores a new supplier, generating a code when none is given.
func (s *Service) Create(ctx context.Context, input Input, actorID int64) (Supplier, error) {
	supplier, err := s.create(ctx, input)
	if err != nil {
		return Supplier{}, err
	}
	s.effects.Committed(ctx, actorID, "supplier.create", shared.EventSupplierCreated, supplier.ID, map[string]any{"code": supplier.Code})
	return supplier, nil
}

func (s *Service) create(ctx context.Context, input Input) (Supplier, error) {
	input, err := s.validate(input)
	if err != nil {
		return Supplier{}, err
	}
	if input.Code == "" {
		if input.Code, err = s.repo.NextCode(ctx); err != nil {
			return Supplier{}, err
		}
	}
	now := s.now()
	supplier := Supplier{CreatedAt: now, UpdatedAt: now, IsActive: true}
	apply(&supplier, input)
	return s.repo.Create(ctx, supplier)
}

// Update replaces the writable fields of a supplier. A blank code keeps the
// current one.
func (s *Service) Update(ctx context.Context, id int64, input Input, actorID int64) (Supplier, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	input, err = s.validate(input)
	if err != nil {
		return Supplier{}, err
	}
	if input.Code == "" {
		input.Code = current.Code
	}
	apply(&current, input)
	current.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, current); err != nil {
		return Supplier{}, err
	}
	s.effects.Committed(ctx, actorID, "supplier.update", shared.EventSupplierUpdated, id, nil)
	return current, nil
}

// Delete removes a supplier that no purchase order references.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: supplier id", shared.ErrInvalidInput)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.effects.Committed(ctx, actorID, "supplier.delete", shared.EventSupplierDeleted, id, nil)
	return nil
}

// BulkImport creates each row independently; failed rows are reported and
// do not affect the others.
func (s *Service) BulkImport(ctx context.Context, rows []Input, actorID int64) (shared.ImportResult, error) {
	if len(rows) == 0 {
		return shared.ImportResult{}, fmt.Errorf("%w: no rows to import", shared.ErrInvalidInput)
	}
	result := shared.NewImportResult(len(rows))
	for i, row := range rows {
		supplier, err := s.create(ctx, row)
		if err != nil {
			s.logger.Warn("supplier import row failed", slog.Int("row", i+1), slog.Any("error", err))
			result.Fail(i+1, err)
			continue
		}
		result.Succeeded++
		s.effects.Committed(ctx, actorID, "supplier.import", shared.EventSupplierCreated, supplier.ID, map[string]any{"code": supplier.Code})
	}
	return result, nil
}

func apply(dst *Supplier, in Input) {
	dst.Code = in.Code
	dst.Name = in.Name
	dst.Email = in.Email
	dst.Phone = in.Phone
	dst.Address = in.Address
	dst.ContactPerson = in.ContactPerson
	if in.IsActive != nil {
		dst.IsActive = *in.IsActive
	}
}
