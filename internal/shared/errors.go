package shared

import "errors"

// Error categories shared by every core package. Packages wrap these with
// context so callers can test the category with errors.Is while Error()
// keeps the human readable message.
var (
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates missing, zero or negative required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition indicates a state machine precondition was violated.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrConflict indicates a duplicate unique key.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientResource indicates stock or remaining balance was exceeded.
	ErrInsufficientResource = errors.New("insufficient resource")
)

// Category returns the sentinel err belongs to, or nil when it is uncategorised.
func Category(err error) error {
	for _, sentinel := range []error{ErrNotFound, ErrInvalidInput, ErrInvalidTransition, ErrConflict, ErrInsufficientResource} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}
