package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotFoundError reports a referenced doctor, patient or appointment that
// does not exist. errors.Is matches any NotFoundError of the same entity.
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	if e.ID == uuid.Nil {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	return ok && t.Entity == e.Entity
}

var (
	ErrDoctorNotFound      = &NotFoundError{Entity: "doctor"}
	ErrPatientNotFound     = &NotFoundError{Entity: "patient"}
	ErrAppointmentNotFound = &NotFoundError{Entity: "appointment"}
)

func notFound(entity string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ErrInvalidRequest marks malformed input such as a zero instant.
var ErrInvalidRequest = errors.New("invalid request")

// SlotConflictError reports a requested instant that is outside the
// doctor's availability or already held by a live appointment. Retrying the
// same slot fails the same way; callers should list slots again.
type SlotConflictError struct {
	DoctorID uuid.UUID
	At       time.Time
	Reason   string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot %s for doctor %s unavailable: %s", e.At.Format(time.RFC3339), e.DoctorID, e.Reason)
}

const (
	ConflictOccupied        = "already booked"
	ConflictOutsideWindow   = "outside doctor availability"
	ConflictInPast          = "slot has already started"
	ConflictDoctorInactive  = "doctor is not accepting appointments"
	ConflictLockUnavailable = "slot is currently being booked"
)

// InvalidTransitionError reports a status change the state machine does
// not allow, such as any change out of a terminal state. A transition
// requested on a missing appointment carries the NotFoundError as Cause.
type InvalidTransitionError struct {
	AppointmentID uuid.UUID
	From          Status
	To            Status
	Cause         error
}

func (e *InvalidTransitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("appointment %s: cannot transition to %s: %v", e.AppointmentID, e.To, e.Cause)
	}
	return fmt.Sprintf("appointment %s: invalid status transition %s -> %s", e.AppointmentID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return e.Cause
}

// StorageError wraps an I/O failure inside an operation. The operation
// left no partial writes behind and can be retried from the start.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Retryable() bool {
	return true
}
