package booking

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrConflict  = errors.New("room already reserved for that time")
	ErrNotFound  = errors.New("reservation not found")
	ErrForbidden = errors.New("reservation belongs to another user")
)

// ValidationError reports a request the client has to fix before retrying.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// InvalidIntervalError is returned by the interval constructors.
type InvalidIntervalError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidIntervalError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid interval: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid interval: %s %q %s", e.Field, e.Value, e.Reason)
}

// ConflictError names the reservation that blocked an admission.
type ConflictError struct {
	RoomID        string
	ReservationID string
}

func (e *ConflictError) Error() string {
	if e.ReservationID == "" {
		return fmt.Sprintf("room %s: %s", e.RoomID, ErrConflict)
	}
	return fmt.Sprintf("room %s: %s (reservation %s)", e.RoomID, ErrConflict, e.ReservationID)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StoreError wraps a failure of the reservation store, including timeouts.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// storeErr keeps domain errors raised by the store (an exclusion constraint
// firing, a missing row) and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Kind maps an error to a stable label for logs.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var vErr *ValidationError
	var iErr *InvalidIntervalError
	switch {
	case errors.As(err, &vErr), errors.As(err, &iErr):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	var sErr *StoreError
	if errors.As(err, &sErr) {
		return "store"
	}
	return "unexpected"
}
