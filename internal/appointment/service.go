package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// AvailabilitySource returns a doctor's active weekly windows for one
// weekday, ordered by start.
type AvailabilitySource interface {
	ActiveWindows(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]availability.Window, error)
}

type Options struct {
	Location      *time.Location
	SlotIncrement time.Duration
	AllowPartial  bool
	TxTimeout     time.Duration
	Now           func() time.Time
}

func OptionsFromConfig(cfg config.Config) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Location:      loc,
		SlotIncrement: cfg.SlotIncrement,
		AllowPartial:  cfg.AllowPartial,
		TxTimeout:     cfg.TxTimeout,
		Now:           time.Now,
	}, nil
}

// Service is the booking engine. It is the only writer of appointment
// status, scheduled_at and the cancellation fields.
type Service struct {
	repo    Repository
	windows AvailabilitySource
	locker  redisclient.Locker
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Booking
}

func NewService(repo Repository, windows AvailabilitySource, locker redisclient.Locker, opts Options, log zerolog.Logger, m *metrics.Booking) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.SlotIncrement <= 0 {
		opts.SlotIncrement = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:    repo,
		windows: windows,
		locker:  locker,
		opts:    opts,
		log:     log.With().Str("component", "booking").Logger(),
		metrics: m,
	}
}

// Book creates a PENDING appointment on a free slot. The occupancy check
// and the insert run under the slot lock and inside one transaction.
func (s *Service) Book(ctx context.Context, req BookRequest) (appt *Appointment, err error) {
	defer func() { s.observe("book", err) }()

	if req.DoctorID == uuid.Nil || req.PatientID == uuid.Nil || req.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: doctor_id, patient_id and scheduled_at are required", ErrInvalidRequest)
	}

	at := req.ScheduledAt.In(s.opts.Location)

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, notFound("patient", req.PatientID)
		}
		return nil, s.fail("book", fmt.Errorf("load patient: %w", err))
	}
	if err := s.validateSlot(ctx, req.DoctorID, at); err != nil {
		return nil, s.fail("book", err)
	}

	actor := ActorFrom(ctx)
	key := redisclient.SlotKey{DoctorID: req.DoctorID, At: at}

	var created *Appointment
	err = s.withSlotLock(ctx, key, func(lockCtx context.Context) error {
		return s.inTx(lockCtx, func(txCtx context.Context, st Store) error {
			if err := s.ensureFree(txCtx, st, req.DoctorID, at, uuid.Nil); err != nil {
				return err
			}
			a, err := st.CreateAppointment(txCtx, Appointment{
				ID:          uuid.New(),
				DoctorID:    req.DoctorID,
				PatientID:   req.PatientID,
				HospitalID:  req.HospitalID,
				ScheduledAt: at,
				Status:      StatusPending,
				Reason:      req.Reason,
			})
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			if err := s.appendEvent(txCtx, st, a, "", EventAppointmentBooked, actor, strPtr(req.Reason), nil, map[string]any{
				"doctor_id":    a.DoctorID.String(),
				"patient_id":   a.PatientID.String(),
				"scheduled_at": a.ScheduledAt,
			}); err != nil {
				return err
			}

			created = a
			return nil
		})
	})
	if err != nil {
		return nil, s.fail("book", err)
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("patient_id", created.PatientID.String()).
		Time("scheduled_at", created.ScheduledAt).
		Str("actor", actor.Role).
		Msg("appointment booked")

	return created, nil
}

// Reschedule moves an existing live appointment to a new doctor and slot.
// The record keeps its ID and goes back to PENDING. A zero newDoctorID
// keeps the current doctor; an empty reason keeps the current reason.
func (s *Service) Reschedule(ctx context.Context, id, newDoctorID uuid.UUID, newAt time.Time, reason string) (appt *Appointment, err error) {
	defer func() { s.observe("reschedule", err) }()

	if newAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled_at is required", ErrInvalidRequest)
	}

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, s.fail("reschedule", s.missing(id, StatusPending, err))
	}
	if !CanTransition(current.Status, StatusPending) {
		return nil, &InvalidTransitionError{AppointmentID: id, From: current.Status, To: StatusPending}
	}

	if newDoctorID == uuid.Nil {
		newDoctorID = current.DoctorID
	}
	at := newAt.In(s.opts.Location)

	if err := s.validateSlot(ctx, newDoctorID, at); err != nil {
		return nil, s.fail("reschedule", err)
	}

	actor := ActorFrom(ctx)
	key := redisclient.SlotKey{DoctorID: newDoctorID, At: at}

	var updated *Appointment
	err = s.withSlotLock(ctx, key, func(lockCtx context.Context) error {
		return s.inTx(lockCtx, func(txCtx context.Context, st Store) error {
			a, err := st.LockAppointment(txCtx, id)
			if err != nil {
				return s.missing(id, StatusPending, err)
			}
			if !CanTransition(a.Status, StatusPending) {
				return &InvalidTransitionError{AppointmentID: id, From: a.Status, To: StatusPending}
			}
			if err := s.ensureFree(txCtx, st, newDoctorID, at, id); err != nil {
				return err
			}

			from := a.Status
			payload := map[string]any{
				"from_doctor_id":    a.DoctorID.String(),
				"from_scheduled_at": a.ScheduledAt,
				"to_doctor_id":      newDoctorID.String(),
				"to_scheduled_at":   at,
			}

			a.DoctorID = newDoctorID
			a.ScheduledAt = at
			a.Status = StatusPending
			if reason != "" {
				a.Reason = reason
			}

			u, err := st.UpdateAppointment(txCtx, *a)
			if err != nil {
				return fmt.Errorf("update appointment: %w", err)
			}
			if err := s.appendEvent(txCtx, st, u, from, EventAppointmentRescheduled, actor, strPtr(reason), nil, payload); err != nil {
				return err
			}

			updated = u
			return nil
		})
	})
	if err != nil {
		return nil, s.fail("reschedule", err)
	}

	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Str("doctor_id", updated.DoctorID.String()).
		Time("scheduled_at", updated.ScheduledAt).
		Str("actor", actor.Role).
		Msg("appointment rescheduled")

	return updated, nil
}

// Cancel moves a live appointment to CANCELED and frees its slot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, notes string) (*Appointment, error) {
	return s.transition(ctx, "cancel", id, StatusCanceled, EventAppointmentCanceled, reason, notes, func(a *Appointment, now time.Time) {
		a.CancelledAt = &now
		a.CancellationReason = strPtr(reason)
		if notes != "" {
			a.Notes = &notes
		}
	})
}

// Confirm moves a PENDING appointment to CONFIRMED.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, "confirm", id, StatusConfirmed, EventAppointmentConfirmed, "", "", nil)
}

// Complete records that the visit took place. When it fires is decided by
// the caller.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, "complete", id, StatusCompleted, EventAppointmentCompleted, "", "", nil)
}

// MarkNoShow records that the patient did not attend. When it fires is
// decided by the caller.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, "no_show", id, StatusNoShow, EventAppointmentNoShow, "", "", nil)
}

// transition is the shared path for status-only changes: lock the row,
// run the central guard, apply mutate, write, append the audit event.
func (s *Service) transition(
	ctx context.Context,
	op string,
	id uuid.UUID,
	to Status,
	eventType string,
	reason, notes string,
	mutate func(a *Appointment, now time.Time),
) (appt *Appointment, err error) {
	defer func() { s.observe(op, err) }()

	actor := ActorFrom(ctx)
	var updated *Appointment
	var from Status

	err = s.inTx(ctx, func(txCtx context.Context, st Store) error {
		a, err := st.LockAppointment(txCtx, id)
		if err != nil {
			return s.missing(id, to, err)
		}
		if !CanTransition(a.Status, to) {
			return &InvalidTransitionError{AppointmentID: id, From: a.Status, To: to}
		}

		from = a.Status
		a.Status = to
		if mutate != nil {
			mutate(a, s.opts.Now())
		}

		u, err := st.UpdateAppointment(txCtx, *a)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if err := s.appendEvent(txCtx, st, u, from, eventType, actor, strPtr(reason), strPtr(notes), nil); err != nil {
			return err
		}

		updated = u
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actor.Role).
		Msg("appointment status changed")

	return updated, nil
}

// SweepNoShows marks live appointments whose start is older than grace as
// NO_SHOW. It is driven by the no-show worker; individual failures are
// logged and skipped.
func (s *Service) SweepNoShows(ctx context.Context, grace time.Duration, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	cutoff := s.opts.Now().Add(-grace)

	overdue, err := s.repo.FindOverdueLive(ctx, cutoff, batch)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	sweepCtx := WithActor(ctx, Actor{Role: "system", ID: "noshow-worker"})
	marked := 0
	for _, a := range overdue {
		if _, err := s.MarkNoShow(sweepCtx, a.ID); err != nil {
			var invalid *InvalidTransitionError
			if errors.As(err, &invalid) {
				// changed state since the scan
				continue
			}
			s.log.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("failed to mark no-show")
			continue
		}
		marked++
	}

	return marked, nil
}

// validateSlot re-checks a requested instant against the doctor and their
// availability. Occupancy is checked separately under the lock.
func (s *Service) validateSlot(ctx context.Context, doctorID uuid.UUID, at time.Time) error {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return notFound("doctor", doctorID)
		}
		return fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.IsActive {
		return &SlotConflictError{DoctorID: doctorID, At: at, Reason: ConflictDoctorInactive}
	}

	if at.Before(s.opts.Now()) {
		return &SlotConflictError{DoctorID: doctorID, At: at, Reason: ConflictInPast}
	}

	windows, err := s.windows.ActiveWindows(ctx, doctorID, at.Weekday())
	if err != nil {
		return fmt.Errorf("load availability: %w", err)
	}
	if !s.offered(windows, at) {
		return &SlotConflictError{DoctorID: doctorID, At: at, Reason: ConflictOutsideWindow}
	}
	return nil
}

// ensureFree reads occupancy fresh inside the transaction.
func (s *Service) ensureFree(ctx context.Context, st Store, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) error {
	existing, err := st.FindLiveAppointment(ctx, doctorID, at, excludeID)
	if err == nil && existing != nil {
		return &SlotConflictError{DoctorID: doctorID, At: at, Reason: ConflictOccupied}
	}
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check slot occupancy: %w", err)
	}
	return nil
}

func (s *Service) withSlotLock(ctx context.Context, key redisclient.SlotKey, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		s.metrics.ObserveLockWait(time.Since(start))
		return fn(lockCtx)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.log.Warn().Str("slot", key.String()).Msg("slot lock contended")
		return &SlotConflictError{DoctorID: key.DoctorID, At: key.At, Reason: ConflictLockUnavailable}
	}
	return err
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, st Store) error) error {
	if s.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()
	}
	return s.repo.InTx(ctx, func(st Store) error {
		return fn(ctx, st)
	})
}

func (s *Service) appendEvent(ctx context.Context, st Store, a *Appointment, from Status, eventType string, actor Actor, reason, notes *string, payload map[string]any) error {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
	}

	err := st.InsertEvent(ctx, Event{
		AppointmentID: a.ID,
		EventType:     eventType,
		FromStatus:    from,
		ToStatus:      a.Status,
		ActorRole:     actor.Role,
		ActorID:       actor.ID,
		Reason:        reason,
		Notes:         notes,
		Payload:       data,
		CreatedAt:     s.opts.Now(),
	})
	if err != nil {
		return fmt.Errorf("append %s event: %w", eventType, err)
	}
	return nil
}

// missing turns a not-found appointment on a transition into an invalid
// transition that still matches ErrAppointmentNotFound.
func (s *Service) missing(id uuid.UUID, to Status, err error) error {
	if errors.Is(err, ErrAppointmentNotFound) {
		return &InvalidTransitionError{AppointmentID: id, To: to, Cause: notFound("appointment", id)}
	}
	return fmt.Errorf("load appointment: %w", err)
}

// fail passes domain errors through untouched and wraps everything else as
// a retryable StorageError.
func (s *Service) fail(op string, err error) error {
	var (
		nf *NotFoundError
		sc *SlotConflictError
		it *InvalidTransitionError
		se *StorageError
	)
	switch {
	case errors.As(err, &it), errors.As(err, &nf), errors.As(err, &sc), errors.As(err, &se):
		return err
	case errors.Is(err, ErrInvalidRequest):
		return err
	}

	s.log.Error().Err(err).Str("op", op).Msg("storage failure")
	return &StorageError{Op: op, Err: err}
}

func (s *Service) observe(op string, err error) {
	s.metrics.ObserveOperation(op, Outcome(err))
}

// Outcome classifies an operation result for metrics and logs.
func Outcome(err error) string {
	var (
		nf *NotFoundError
		sc *SlotConflictError
		it *InvalidTransitionError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &it):
		return "invalid_transition"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &sc):
		return "conflict"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	}
	return "storage"
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
