package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

// BookingService is the booking engine and query layer as seen by HTTP.
type BookingService interface {
	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id, doctorID uuid.UUID, at time.Time, reason string) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason, notes string) (*appointment.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	History(ctx context.Context, id uuid.UUID) ([]appointment.Event, error)
	List(ctx context.Context, f appointment.Filter) (*appointment.Page, error)
	ListUpcomingForDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time, limit int) ([]appointment.Appointment, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) (*appointment.Page, error)

	ParseDate(date string) (time.Time, error)
	ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]appointment.Slot, error)
}

// AvailabilityService manages the doctor's weekly windows.
type AvailabilityService interface {
	Create(ctx context.Context, w availability.Window) (*availability.Window, error)
	Update(ctx context.Context, w availability.Window) (*availability.Window, error)
	Get(ctx context.Context, id uuid.UUID) (*availability.Window, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]availability.Window, error)
}

type RouterConfig struct {
	Booking      BookingService
	Availability AvailabilityService
	Postgres     Check
	Redis        Check
	Metrics      http.Handler
	Log          zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(RecoveryMiddleware(cfg.Log))
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/slots", listSlotsHandler(cfg.Booking))
		r.Get("/appointments/upcoming", upcomingForDoctorHandler(cfg.Booking))

		r.Get("/availability", listWindowsHandler(cfg.Availability))
		r.Post("/availability", createWindowHandler(cfg.Availability))
		r.Put("/availability/{windowID}", updateWindowHandler(cfg.Availability))
		r.Delete("/availability/{windowID}", deleteWindowHandler(cfg.Availability))
	})

	r.Get("/patients/{patientID}/appointments", patientAppointmentsHandler(cfg.Booking))

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Booking))
		r.Get("/", listAppointmentsHandler(cfg.Booking))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(cfg.Booking))
			r.Get("/events", appointmentEventsHandler(cfg.Booking))
			r.Post("/reschedule", rescheduleHandler(cfg.Booking))
			r.Post("/cancel", cancelHandler(cfg.Booking))
			r.Post("/confirm", transitionHandler(cfg.Booking.Confirm))
			r.Post("/complete", transitionHandler(cfg.Booking.Complete))
			r.Post("/no-show", transitionHandler(cfg.Booking.MarkNoShow))
		})
	})

	return r
}
