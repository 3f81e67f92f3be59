package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrInvalidFinancials       = errors.New("invalid financials")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrDuplicateRequest        = errors.New("duplicate request")
	ErrRequestAlreadyResolved  = errors.New("request already resolved")
	ErrConflict                = errors.New("concurrent modification conflict")
	ErrPaymentValidationFailed = errors.New("payment validation failed")
)

// InvalidTransitionError identifies the attempted edge and the state the
// slice was actually in when the transition was rejected.
type InvalidTransitionError struct {
	VendorID string
	From     Status
	To       Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: vendor %s cannot move from %s to %s", e.VendorID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
