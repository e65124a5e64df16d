package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrPersistence     = errors.New("persistence failed")
	ErrBusy            = errors.New("a message is already being sent")
	ErrSessionActive   = errors.New("chat session already started")
	ErrSessionClosed   = errors.New("chat session closed")
	ErrSessionNotFound = errors.New("chat session not found")
	ErrVehicleNotFound = errors.New("vehicle not found")

	// Completion failures. The responder absorbs all of them.
	ErrUpstreamUnavailable       = errors.New("completion service unavailable")
	ErrUpstreamStatus            = errors.New("completion service returned an error status")
	ErrMalformedUpstreamResponse = errors.New("malformed completion response")
)

// ValidationError names the offending input field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PersistenceError carries the notice shown to the customer alongside the
// store failure. It matches both ErrPersistence and the wrapped error.
type PersistenceError struct {
	Op     string
	Notice string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }
