package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store contains the DB interactions the booking engine performs inside one
// transaction.
type Store interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// LockAppointment loads the row and holds a row lock until the
	// transaction ends.
	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks. FindLiveAppointment ignores excludeID so a
	// rescheduled appointment never conflicts with itself; it returns
	// ErrAppointmentNotFound when the slot is free.
	FindLiveAppointment(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (*Appointment, error)
	ListLiveAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// Creation and updates. Both return *SlotConflictError when the write
	// would put two live appointments on one doctor and instant.
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error)

	// Audit log, append only
	InsertEvent(ctx context.Context, ev Event) error
}

// Repository is the AppointmentStore.
type Repository interface {
	Store

	// InTx runs fn against a transaction-scoped Store. fn's error rolls
	// everything back.
	InTx(ctx context.Context, fn func(st Store) error) error

	// Query layer
	ListAppointments(ctx context.Context, f Filter) ([]Appointment, int, error)
	ListEvents(ctx context.Context, appointmentID uuid.UUID) ([]Event, error)

	// No-show sweep
	FindOverdueLive(ctx context.Context, before time.Time, limit int) ([]Appointment, error)
}
