package venue

import (
	"errors"
	"fmt"
)

// Sentinel errors for venue failures. Callers classify with errors.Is.
var (
	// ErrConnection means the venue was unreachable or the transport failed.
	ErrConnection = errors.New("venue: connection failed")

	// ErrAuthentication means the venue rejected our credentials.
	ErrAuthentication = errors.New("venue: authentication failed")

	// ErrOrderRejected is the generic order-rejection class. Wrap it with
	// OrderError for detail; errors.Is(err, ErrOrderRejected) matches both.
	ErrOrderRejected = errors.New("venue: order rejected")

	// ErrInsufficientBalance is the distinguished rejection for orders the
	// account cannot fund. It matches ErrOrderRejected under errors.Is.
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrOrderRejected)
)

// OrderError carries the venue's rejection detail for one order attempt.
type OrderError struct {
	Instrument string
	Side       Side
	Reason     string
	Err        error // ErrOrderRejected or ErrInsufficientBalance
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("%v: %s %s: %s", e.Err, e.Side, e.Instrument, e.Reason)
}

func (e *OrderError) Unwrap() error { return e.Err }

// RejectOrder builds a generic order rejection.
func RejectOrder(instrument string, side Side, reason string) error {
	return &OrderError{Instrument: instrument, Side: side, Reason: reason, Err: ErrOrderRejected}
}

// RejectInsufficient builds an insufficient-balance rejection.
func RejectInsufficient(instrument string, side Side, reason string) error {
	return &OrderError{Instrument: instrument, Side: side, Reason: reason, Err: ErrInsufficientBalance}
}
