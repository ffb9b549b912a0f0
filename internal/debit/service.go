package debit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/sales"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort defines data access methods for debits.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDebit(ctx context.Context, id int64) (Debit, error)
	ListDebits(ctx context.Context, filter Filter) ([]Debit, int, error)
}

// TxRepository exposes transactional operations. GetDebitForUpdate locks
// the row until commit.
type TxRepository interface {
	GetDebitForUpdate(ctx context.Context, id int64) (Debit, error)
	InsertDebit(ctx context.Context, d Debit) (int64, error)
	UpdateDebit(ctx context.Context, d Debit) error
	DeleteDebit(ctx context.Context, id int64) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
}

// StockOutLookup resolves the sale a debit is raised for.
type StockOutLookup interface {
	Get(ctx context.Context, id int64) (sales.StockOut, error)
}

// Service handles debit and payment logic.
type Service struct {
	repo      RepositoryPort
	stockOuts StockOutLookup
	effects   shared.Effects
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, stockOuts StockOutLookup, audit shared.AuditRecorder, notifier shared.Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		stockOuts: stockOuts,
		effects:   shared.Effects{Entity: "debit", Audit: audit, Notifier: notifier, Logger: logger},
		now:       time.Now,
	}
}

// CreateDebitInput describes a new debit.
type CreateDebitInput struct {
	StockOutID    *int64          `json:"stockOutId"`
	TransactionID *uuid.UUID      `json:"transactionId"`
	CustomerName  string          `json:"customerName" validate:"required"`
	CustomerPhone string          `json:"customerPhone"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	DueDate       *time.Time      `json:"dueDate"`
	Notes         string          `json:"notes"`
}

// UpdateDebitInput changes header fields; nil fields are kept.
type UpdateDebitInput struct {
	CustomerName  *string          `json:"customerName" validate:"omitempty,min=1"`
	CustomerPhone *string          `json:"customerPhone"`
	TotalAmount   *decimal.Decimal `json:"totalAmount"`
	DueDate       *time.Time       `json:"dueDate"`
	Notes         *string          `json:"notes"`
}

// Create opens a PENDING debit, optionally linked to an existing stock-out.
func (s *Service) Create(ctx context.Context, input CreateDebitInput, actorID int64) (Debit, error) {
	if err := shared.Validate(input); err != nil {
		return Debit{}, err
	}
	input.TotalAmount = roundAmount(input.TotalAmount)
	if !input.TotalAmount.IsPositive() {
		return Debit{}, fmt.Errorf("%w: total amount must be greater than 0", shared.ErrInvalidInput)
	}
	now := s.now()
	d := Debit{
		StockOutID:    input.StockOutID,
		TransactionID: input.TransactionID,
		CustomerName:  strings.TrimSpace(input.CustomerName),
		CustomerPhone: input.CustomerPhone,
		TotalAmount:   input.TotalAmount,
		DueDate:       input.DueDate,
		Notes:         input.Notes,
		CreatedBy:     actorID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Payments:      []Payment{},
	}
	if input.StockOutID != nil {
		out, err := s.stockOuts.Get(ctx, *input.StockOutID)
		if err != nil {
			return Debit{}, err
		}
		if d.TransactionID == nil {
			d.TransactionID = &out.TransactionID
		}
	}
	d.refresh()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		d.ID, err = tx.InsertDebit(ctx, d)
		return err
	})
	if err != nil {
		return Debit{}, err
	}
	s.effects.Committed(ctx, actorID, "DEBIT_CREATE", shared.EventDebitCreated, d.ID, map[string]any{"total": d.TotalAmount.String(), "customer": d.CustomerName})
	return d, nil
}

// RecordPayment appends a payment and recomputes the status. The payment may
// not exceed the remaining balance.
func (s *Service) RecordPayment(ctx context.Context, id int64, amount decimal.Decimal, note string, actorID int64) (Debit, error) {
	amount = roundAmount(amount)
	if !amount.IsPositive() {
		return Debit{}, fmt.Errorf("%w: payment amount must be greater than 0", shared.ErrInvalidInput)
	}
	var d Debit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		d, err = tx.GetDebitForUpdate(ctx, id)
		if err != nil {
			return err
		}
		d.refresh()
		if d.Status == StatusPaid || d.Status == StatusCancelled {
			return fmt.Errorf("%w: debit %d is %s", shared.ErrInvalidTransition, id, d.Status)
		}
		if amount.GreaterThan(d.Remaining) {
			return fmt.Errorf("%w: payment %s exceeds remaining balance %s", shared.ErrInsufficientResource, amount, d.Remaining)
		}
		now := s.now()
		p := Payment{DebitID: id, Amount: amount, PaidAt: now, Note: note, RecordedBy: actorID}
		if p.ID, err = tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		d.Payments = append(d.Payments, p)
		d.refresh()
		d.UpdatedAt = now
		return tx.UpdateDebit(ctx, d)
	})
	if err != nil {
		return Debit{}, err
	}
	s.effects.Committed(ctx, actorID, "DEBIT_PAYMENT", shared.EventDebitPaymentRecorded, id, map[string]any{
		"amount":    amount.String(),
		"remaining": d.Remaining.String(),
		"status":    string(d.Status),
	})
	return d, nil
}

// Update changes header fields of a non-cancelled debit. A new total may not
// drop below what has already been paid.
func (s *Service) Update(ctx context.Context, id int64, input UpdateDebitInput, actorID int64) (Debit, error) {
	if err := shared.Validate(input); err != nil {
		return Debit{}, err
	}
	var d Debit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		d, err = tx.GetDebitForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if d.Status == StatusCancelled {
			return fmt.Errorf("%w: debit %d is cancelled", shared.ErrInvalidTransition, id)
		}
		if input.CustomerName != nil {
			d.CustomerName = strings.TrimSpace(*input.CustomerName)
		}
		if input.CustomerPhone != nil {
			d.CustomerPhone = *input.CustomerPhone
		}
		if input.DueDate != nil {
			d.DueDate = input.DueDate
		}
		if input.Notes != nil {
			d.Notes = *input.Notes
		}
		if input.TotalAmount != nil {
			total := roundAmount(*input.TotalAmount)
			paid := d.paid()
			if !total.IsPositive() {
				return fmt.Errorf("%w: total amount must be greater than 0", shared.ErrInvalidInput)
			}
			if total.LessThan(paid) {
				return fmt.Errorf("%w: total amount %s is below the paid amount %s", shared.ErrInvalidInput, total, paid)
			}
			d.TotalAmount = total
		}
		d.refresh()
		d.UpdatedAt = s.now()
		return tx.UpdateDebit(ctx, d)
	})
	if err != nil {
		return Debit{}, err
	}
	s.effects.Committed(ctx, actorID, "DEBIT_UPDATE", shared.EventDebitUpdated, id, map[string]any{"total": d.TotalAmount.String(), "status": string(d.Status)})
	return d, nil
}

// Cancel closes an unpaid or partially paid debit.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (Debit, error) {
	var d Debit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		d, err = tx.GetDebitForUpdate(ctx, id)
		if err != nil {
			return err
		}
		d.refresh()
		if d.Status == StatusPaid || d.Status == StatusCancelled {
			return fmt.Errorf("%w: cannot cancel debit %d in status %s", shared.ErrInvalidTransition, id, d.Status)
		}
		now := s.now()
		d.Status = StatusCancelled
		d.CancelledAt = &now
		d.UpdatedAt = now
		return tx.UpdateDebit(ctx, d)
	})
	if err != nil {
		return Debit{}, err
	}
	s.effects.Committed(ctx, actorID, "DEBIT_CANCEL", shared.EventDebitCancelled, id, map[string]any{"paid": d.PaidAmount.String()})
	return d, nil
}

// Delete removes a debit that has no payments.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDebitForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if len(d.Payments) > 0 {
			return fmt.Errorf("%w: debit %d has %d payments, cancel it instead", shared.ErrInvalidTransition, id, len(d.Payments))
		}
		return tx.DeleteDebit(ctx, id)
	})
	if err != nil {
		return err
	}
	s.effects.Committed(ctx, actorID, "DEBIT_DELETE", shared.EventDebitDeleted, id, nil)
	return nil
}

// Get returns a debit with its payments.
func (s *Service) Get(ctx context.Context, id int64) (Debit, error) {
	d, err := s.repo.GetDebit(ctx, id)
	if err != nil {
		return Debit{}, err
	}
	d.refresh()
	return d, nil
}

// List returns a page of debits.
func (s *Service) List(ctx context.Context, filter Filter) (shared.Page[Debit], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	rows, total, err := s.repo.ListDebits(ctx, filter)
	if err != nil {
		return shared.Page[Debit]{}, err
	}
	return shared.NewPage(rows, total, filter.ListFilter), nil
}
