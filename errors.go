package redisjq

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore          = errors.New("redisjq: no store configured")
	ErrStoreUnavailable = errors.New("redisjq: store unavailable")

	// Validation errors. ErrSchema and ErrInvalidPriority both match
	// ErrValidation under errors.Is.
	ErrValidation      = errors.New("redisjq: validation failed")
	ErrSchema          = fmt.Errorf("%w: schema mismatch", ErrValidation)
	ErrInvalidPriority = fmt.Errorf("%w: priority is not a number", ErrValidation)
	ErrEmptyBatch      = fmt.Errorf("%w: batch contains no jobs", ErrValidation)

	// Not found errors.
	ErrJobNotFound = errors.New("redisjq: job not found")

	// Conflict errors.
	ErrDuplicateID = errors.New("redisjq: job id already exists")
	ErrCapacity    = errors.New("redisjq: queue capacity exceeded")

	// State errors.
	ErrNotLeased       = errors.New("redisjq: job is not leased")
	ErrNotDeadLettered = errors.New("redisjq: job is not dead-lettered")
)

// NotLeasedError is returned by ack, nack and lease extension when the job
// is not currently leased by the caller. State is the state the job was found
// in, or empty when no record exists.
type NotLeasedError struct {
	ID     string
	State  string
	Reason string
}

func (e *NotLeasedError) Error() string {
	msg := fmt.Sprintf("redisjq: job %q is not leased", e.ID)
	if e.State != "" {
		msg += " (state " + e.State + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is reports whether target is ErrNotLeased.
func (e *NotLeasedError) Is(target error) bool { return target == ErrNotLeased }

// DuplicateIDError names the id that collided during admission.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("redisjq: job id %q already exists", e.ID)
}

// Is reports whether target is ErrDuplicateID.
func (e *DuplicateIDError) Is(target error) bool { return target == ErrDuplicateID }

// CapacityError names the queue that would exceed its pending limit.
type CapacityError struct {
	Queue string
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("redisjq: queue %q would exceed %d pending jobs", e.Queue, e.Limit)
}

// Is reports whether target is ErrCapacity.
func (e *CapacityError) Is(target error) bool { return target == ErrCapacity }
