package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page is one page of a filtered appointment list.
type Page struct {
	Items  []Appointment
	Total  int
	Limit  int
	Offset int
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, notFound("appointment", id)
		}
		return nil, s.fail("get_appointment", err)
	}
	return a, nil
}

// History returns the audit trail of an appointment, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]Event, error) {
	if _, err := s.GetAppointment(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, s.fail("history", fmt.Errorf("list events: %w", err))
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// List returns appointments matching f ordered by start time.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	if f.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrInvalidRequest)
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidRequest)
	}
	f.Limit = clampLimit(f.Limit)

	items, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, s.fail("list", fmt.Errorf("list appointments: %w", err))
	}
	if items == nil {
		items = []Appointment{}
	}
	return &Page{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// ListUpcomingForDoctor returns the doctor's live appointments starting at
// or after from. A zero from means now.
func (s *Service) ListUpcomingForDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time, limit int) ([]Appointment, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, notFound("doctor", doctorID)
		}
		return nil, s.fail("upcoming", err)
	}

	if from.IsZero() {
		from = s.opts.Now()
	}
	page, err := s.List(ctx, Filter{
		DoctorID: &doctorID,
		Statuses: []Status{StatusPending, StatusConfirmed},
		From:     &from,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// ListForPatient returns the patient's appointments in every status.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) (*Page, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, notFound("patient", patientID)
		}
		return nil, s.fail("patient_history", err)
	}
	return s.List(ctx, Filter{PatientID: &patientID, Limit: limit, Offset: offset})
}
