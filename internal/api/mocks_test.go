package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

// MockBooking is a mock implementation of BookingService
type MockBooking struct {
	mock.Mock
}

func (m *MockBooking) appt(args mock.Arguments) (*appointment.Appointment, error) {
	a, _ := args.Get(0).(*appointment.Appointment)
	return a, args.Error(1)
}

func (m *MockBooking) Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error) {
	return m.appt(m.Called(ctx, req))
}

func (m *MockBooking) Reschedule(ctx context.Context, id, doctorID uuid.UUID, at time.Time, reason string) (*appointment.Appointment, error) {
	return m.appt(m.Called(ctx, id, doctorID, at, reason))
}

func (m *MockBooking) Cancel(ctx context.Context, id uuid.UUID, reason, notes string) (*appointment.Appointment, error) {
	return m.appt(m.Called(ctx, id, reason, notes))
}

func (m *MockBooking) Confirm(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return m.appt(m.Called(ctx, id))
}

func (m *MockBooking) Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return m.appt(m.Called(ctx, id))
}

func (m *MockBooking) MarkNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return m.appt(m.Called(ctx, id))
}

func (m *MockBooking) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return m.appt(m.Called(ctx, id))
}

func (m *MockBooking) History(ctx context.Context, id uuid.UUID) ([]appointment.Event, error) {
	args := m.Called(ctx, id)
	ev, _ := args.Get(0).([]appointment.Event)
	return ev, args.Error(1)
}

func (m *MockBooking) List(ctx context.Context, f appointment.Filter) (*appointment.Page, error) {
	args := m.Called(ctx, f)
	p, _ := args.Get(0).(*appointment.Page)
	return p, args.Error(1)
}

func (m *MockBooking) ListUpcomingForDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time, limit int) ([]appointment.Appointment, error) {
	args := m.Called(ctx, doctorID, from, limit)
	items, _ := args.Get(0).([]appointment.Appointment)
	return items, args.Error(1)
}

func (m *MockBooking) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) (*appointment.Page, error) {
	args := m.Called(ctx, patientID, limit, offset)
	p, _ := args.Get(0).(*appointment.Page)
	return p, args.Error(1)
}

func (m *MockBooking) ParseDate(date string) (time.Time, error) {
	args := m.Called(date)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockBooking) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]appointment.Slot, error) {
	args := m.Called(ctx, doctorID, date)
	slots, _ := args.Get(0).([]appointment.Slot)
	return slots, args.Error(1)
}

// MockAvailability is a mock implementation of AvailabilityService
type MockAvailability struct {
	mock.Mock
}

func (m *MockAvailability) window(args mock.Arguments) (*availability.Window, error) {
	w, _ := args.Get(0).(*availability.Window)
	return w, args.Error(1)
}

func (m *MockAvailability) Create(ctx context.Context, w availability.Window) (*availability.Window, error) {
	return m.window(m.Called(ctx, w))
}

func (m *MockAvailability) Update(ctx context.Context, w availability.Window) (*availability.Window, error) {
	return m.window(m.Called(ctx, w))
}

func (m *MockAvailability) Get(ctx context.Context, id uuid.UUID) (*availability.Window, error) {
	return m.window(m.Called(ctx, id))
}

func (m *MockAvailability) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAvailability) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]availability.Window, error) {
	args := m.Called(ctx, doctorID)
	ws, _ := args.Get(0).([]availability.Window)
	return ws, args.Error(1)
}
