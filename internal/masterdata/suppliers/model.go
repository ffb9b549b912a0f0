package suppliers

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Supplier represents a supplier entity
type Supplier struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	ContactPerson string    `json:"contactPerson,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Input carries writable supplier fields. A blank code is generated.
type Input struct {
	Code          string `json:"code" validate:"omitempty,max=32"`
	Name          string `json:"name" validate:"required,max=200"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"omitempty,max=32"`
	Address       string `json:"address"`
	ContactPerson string `json:"contactPerson"`
	IsActive      *bool  `json:"isActive"`
}

// Filter narrows supplier listings. Status is "active" or "inactive".
type Filter struct {
	shared.ListFilter
}

var (
	// ErrSupplierNotFound indicates an unknown supplier.
	ErrSupplierNotFound = fmt.Errorf("%w: supplier", shared.ErrNotFound)
	// ErrDuplicateCode indicates the code is taken.
	ErrDuplicateCode = fmt.Errorf("%w: supplier code already exists", shared.ErrConflict)
	// ErrDuplicateEmail indicates the email is taken.
	ErrDuplicateEmail = fmt.Errorf("%w: supplier email already exists", shared.ErrConflict)
	// ErrSupplierInUse indicates purchase orders still reference the supplier.
	ErrSupplierInUse = fmt.Errorf("%w: supplier is referenced by purchase orders", shared.ErrConflict)
	// ErrSupplierInactive indicates an inactive supplier was referenced.
	ErrSupplierInactive = fmt.Errorf("%w: supplier is inactive", shared.ErrInvalidInput)
)
