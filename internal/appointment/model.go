package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
	StatusNoShow    Status = "NO_SHOW"
)

var allStatuses = []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCanceled, StatusNoShow}

func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// IsLive reports whether an appointment in this status holds its slot.
func (s Status) IsLive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusNoShow
}

// CanTransition is the single guard every booking operation goes through.
// The empty status stands for "no appointment yet" and may only become
// PENDING.
//
//	PENDING   -> CONFIRMED | COMPLETED | CANCELED | NO_SHOW | PENDING (reschedule)
//	CONFIRMED -> COMPLETED | CANCELED | NO_SHOW | PENDING (reschedule)
func CanTransition(from, to Status) bool {
	if from == "" {
		return to == StatusPending
	}
	if !from.IsLive() {
		return false
	}
	switch to {
	case StatusPending, StatusCompleted, StatusCanceled, StatusNoShow:
		return true
	case StatusConfirmed:
		return from == StatusPending
	}
	return false
}

type Doctor struct {
	ID         uuid.UUID
	Name       string
	Specialty  *string
	HospitalID *uuid.UUID
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment keeps its ID for its whole life, including across
// reschedules.
type Appointment struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	HospitalID         *uuid.UUID
	ScheduledAt        time.Time
	Status             Status
	Reason             string
	CancellationReason *string
	CancelledAt        *time.Time
	Notes              *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCanceled    = "APPOINTMENT_CANCELED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
)

// Event is one append-only audit record of a status transition.
type Event struct {
	ID            int64
	AppointmentID uuid.UUID
	EventType     string
	FromStatus    Status
	ToStatus      Status
	ActorRole     string
	ActorID       string
	Reason        *string
	Notes         *string
	Payload       []byte
	CreatedAt     time.Time
}

// Slot is a bookable start time derived from availability. Never stored.
type Slot struct {
	Date            string    // YYYY-MM-DD
	StartTime       string    // HH:MM
	DurationMinutes int
	StartsAt        time.Time
}

// BookRequest is the input to Service.Book.
type BookRequest struct {
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	HospitalID  *uuid.UUID
	ScheduledAt time.Time
	Reason      string
}

// Filter selects appointments for List. Zero values mean "any".
type Filter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Statuses  []Status
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Actor is who performed a transition. Identity is owned elsewhere; the
// booking engine only records it.
type Actor struct {
	Role string
	ID   string
}

var systemActor = Actor{Role: "system"}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, or the system actor.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok && a.Role != "" {
		return a
	}
	return systemActor
}
