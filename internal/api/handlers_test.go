package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

var monday = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func newTestRouter(b *MockBooking, a *MockAvailability) http.Handler {
	return NewRouter(RouterConfig{
		Booking:      b,
		Availability: a,
		Postgres:     func(context.Context) error { return nil },
		Redis:        func(context.Context) error { return nil },
		Log:          zerolog.Nop(),
		Env:          "test",
		Version:      "dev",
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func sampleAppointment() *appointment.Appointment {
	return &appointment.Appointment{
		ID:          uuid.New(),
		DoctorID:    uuid.New(),
		PatientID:   uuid.New(),
		ScheduledAt: monday.Add(9 * time.Hour),
		Status:      appointment.StatusPending,
		Reason:      "checkup",
	}
}

func TestBookAppointment_Created(t *testing.T) {
	b := new(MockBooking)
	h := newTestRouter(b, new(MockAvailability))
	appt := sampleAppointment()

	b.On("Book", mock.MatchedBy(func(ctx context.Context) bool {
		return appointment.ActorFrom(ctx) == appointment.Actor{Role: "PATIENT", ID: "p-7"}
	}), appointment.BookRequest{
		DoctorID:    appt.DoctorID,
		PatientID:   appt.PatientID,
		ScheduledAt: appt.ScheduledAt,
		Reason:      "checkup",
	}).Return(appt, nil)

	body := `{"doctor_id":"` + appt.DoctorID.String() + `","patient_id":"` + appt.PatientID.String() +
		`","scheduled_at":"2030-03-04T09:00:00Z","reason":"checkup"}`
	rec := do(t, h, http.MethodPost, "/appointments", body, "X-Actor-Role", "PATIENT", "X-Actor-ID", "p-7")

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, appt.ID, resp.ID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	b.AssertExpectations(t)
}

func TestBookAppointment_BadInput(t *testing.T) {
	h := newTestRouter(new(MockBooking), new(MockAvailability))

	rec := do(t, h, http.MethodPost, "/appointments", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/appointments", `{"doctor_id":"nope","patient_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_doctor_id", decodeError(t, rec).Error)
}

func TestErrorMapping(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"conflict", &appointment.SlotConflictError{Reason: appointment.ConflictOccupied}, http.StatusConflict, "slot_unavailable"},
		{"invalid transition", &appointment.InvalidTransitionError{AppointmentID: id, From: appointment.StatusCanceled, To: appointment.StatusCompleted}, http.StatusConflict, "invalid_status_transition"},
		{"transition on missing appointment", &appointment.InvalidTransitionError{AppointmentID: id, Cause: &appointment.NotFoundError{Entity: "appointment", ID: id}}, http.StatusConflict, "invalid_status_transition"},
		{"missing appointment", &appointment.NotFoundError{Entity: "appointment", ID: id}, http.StatusNotFound, "appointment_not_found"},
		{"storage", &appointment.StorageError{Op: "complete", Err: errors.New("conn reset")}, http.StatusServiceUnavailable, "storage_unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := new(MockBooking)
			h := newTestRouter(b, new(MockAvailability))
			b.On("Complete", mock.Anything, id).Return(nil, tt.err)

			rec := do(t, h, http.MethodPost, "/appointments/"+id.String()+"/complete", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}
}

func TestTransitions_Routes(t *testing.T) {
	id := uuid.New()
	appt := sampleAppointment()
	appt.ID = id

	b := new(MockBooking)
	h := newTestRouter(b, new(MockAvailability))
	b.On("Confirm", mock.Anything, id).Return(appt, nil).Once()
	b.On("MarkNoShow", mock.Anything, id).Return(appt, nil).Once()
	b.On("Cancel", mock.Anything, id, "sick", "").Return(appt, nil).Once()
	b.On("Cancel", mock.Anything, id, "", "").Return(appt, nil).Once()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/appointments/"+id.String()+"/confirm", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/appointments/"+id.String()+"/no-show", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/appointments/"+id.String()+"/cancel", `{"reason":"sick"}`).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/appointments/"+id.String()+"/cancel", "").Code)
	b.AssertExpectations(t)

	rec := do(t, h, http.MethodPost, "/appointments/not-a-uuid/confirm", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReschedule_KeepsDoctorWhenOmitted(t *testing.T) {
	id := uuid.New()
	at := monday.Add(9*time.Hour + 30*time.Minute)

	b := new(MockBooking)
	h := newTestRouter(b, new(MockAvailability))
	b.On("Reschedule", mock.Anything, id, uuid.Nil, at, "").Return(sampleAppointment(), nil)

	rec := do(t, h, http.MethodPost, "/appointments/"+id.String()+"/reschedule", `{"scheduled_at":"2030-03-04T09:30:00Z"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	b.AssertExpectations(t)
}

func TestListSlots(t *testing.T) {
	doctorID := uuid.New()
	b := new(MockBooking)
	h := newTestRouter(b, new(MockAvailability))

	b.On("ParseDate", "2030-03-04").Return(monday, nil)
	b.On("ParseDate", "tomorrow").Return(time.Time{}, appointment.ErrInvalidRequest)
	b.On("ListAvailableSlots", mock.Anything, doctorID, monday).Return([]appointment.Slot{
		{Date: "2030-03-04", StartTime: "09:00", DurationMinutes: 30, StartsAt: monday.Add(9 * time.Hour)},
		{Date: "2030-03-04", StartTime: "09:30", DurationMinutes: 30, StartsAt: monday.Add(9*time.Hour + 30*time.Minute)},
	}, nil)

	rec := do(t, h, http.MethodGet, "/doctors/"+doctorID.String()+"/slots?date=2030-03-04", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SlotListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Slots, 2)
	assert.Equal(t, "09:30", resp.Slots[1].StartTime)

	rec = do(t, h, http.MethodGet, "/doctors/"+doctorID.String()+"/slots?date=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSlots_EmptyIsArray(t *testing.T) {
	doctorID := uuid.New()
	b := new(MockBooking)
	h := newTestRouter(b, new(MockAvailability))

	b.On("ParseDate", "2030-03-05").Return(monday.AddDate(0, 0, 1), nil)
	b.On("ListAvailableSlots", mock.Anything, doctorID, monday.AddDate(0, 0, 1)).Return([]appointment.Slot{}, nil)

	rec := do(t, h, http.MethodGet, "/doctors/"+doctorID.String()+"/slots?date=2030-03-05", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slots":[]`)
}

func TestListAppointments_ParsesFilter(t *testing.T) {
	doctorID := uuid.New()
	b := new(MockBooking)
	h := newTestRouter(b, new(MockAvailability))

	b.On("List", mock.Anything, mock.MatchedBy(func(f appointment.Filter) bool {
		return f.DoctorID != nil && *f.DoctorID == doctorID &&
			len(f.Statuses) == 2 && f.Limit == 5 && f.Offset == 10
	})).Return(&appointment.Page{Items: []appointment.Appointment{*sampleAppointment()}, Total: 11, Limit: 5, Offset: 10}, nil)

	rec := do(t, h, http.MethodGet, "/appointments?doctor_id="+doctorID.String()+"&status=PENDING&status=CONFIRMED&limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 11, resp.Total)
	assert.Len(t, resp.Items, 1)

	rec = do(t, h, http.MethodGet, "/appointments?status=LATE", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAppointmentEvents(t *testing.T) {
	id := uuid.New()
	b := new(MockBooking)
	h := newTestRouter(b, new(MockAvailability))

	b.On("History", mock.Anything, id).Return([]appointment.Event{
		{ID: 1, AppointmentID: id, EventType: appointment.EventAppointmentBooked, ToStatus: appointment.StatusPending, ActorRole: "system", Payload: []byte(`{"k":"v"}`)},
	}, nil)

	rec := do(t, h, http.MethodGet, "/appointments/"+id.String()+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []EventResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, "APPOINTMENT_BOOKED", events[0].EventType)
	assert.JSONEq(t, `{"k":"v"}`, string(events[0].Payload))
}

func TestUpcomingAndPatientViews(t *testing.T) {
	doctorID, patientID := uuid.New(), uuid.New()
	b := new(MockBooking)
	h := newTestRouter(b, new(MockAvailability))

	b.On("ListUpcomingForDoctor", mock.Anything, doctorID, time.Time{}, 3).Return([]appointment.Appointment{}, nil)
	b.On("ListForPatient", mock.Anything, patientID, 0, 20).Return(&appointment.Page{Items: []appointment.Appointment{}, Limit: 20, Offset: 20}, nil)
	b.On("ListForPatient", mock.Anything, mock.Anything, 0, 0).Return(nil, &appointment.NotFoundError{Entity: "patient"})

	rec := do(t, h, http.MethodGet, "/doctors/"+doctorID.String()+"/appointments/upcoming?limit=3", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/patients/"+patientID.String()+"/appointments?offset=20", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/patients/"+uuid.NewString()+"/appointments", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "patient_not_found", decodeError(t, rec).Error)
}

func TestAvailability_CreateAndConflicts(t *testing.T) {
	doctorID := uuid.New()
	a := new(MockAvailability)
	h := newTestRouter(new(MockBooking), a)

	want := availability.Window{
		DoctorID:  doctorID,
		DayOfWeek: time.Monday,
		Start:     availability.MustTimeOfDay("09:00"),
		End:       availability.MustTimeOfDay("12:00"),
		IsActive:  true,
	}
	created := want
	created.ID = uuid.New()
	a.On("Create", mock.Anything, want).Return(&created, nil).Once()
	a.On("Create", mock.Anything, want).Return(nil, availability.ErrWindowOverlap).Once()

	body := `{"day_of_week":1,"start_time":"09:00","end_time":"12:00"}`
	rec := do(t, h, http.MethodPost, "/doctors/"+doctorID.String()+"/availability", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"start_time":"09:00"`)

	rec = do(t, h, http.MethodPost, "/doctors/"+doctorID.String()+"/availability", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/doctors/"+doctorID.String()+"/availability", `{"day_of_week":1,"start_time":"9am","end_time":"12:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/doctors/"+doctorID.String()+"/availability", `{"start_time":"09:00","end_time":"12:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	a.AssertExpectations(t)
}

func TestAvailability_UpdateDeleteRequireOwnership(t *testing.T) {
	doctorID, otherDoctor := uuid.New(), uuid.New()
	windowID := uuid.New()
	a := new(MockAvailability)
	h := newTestRouter(new(MockBooking), a)

	existing := &availability.Window{ID: windowID, DoctorID: doctorID, DayOfWeek: time.Monday}
	a.On("Get", mock.Anything, windowID).Return(existing, nil)
	a.On("Delete", mock.Anything, windowID).Return(nil)
	a.On("Update", mock.Anything, mock.MatchedBy(func(w availability.Window) bool {
		return w.ID == windowID && !w.IsActive
	})).Return(existing, nil)

	path := "/doctors/" + doctorID.String() + "/availability/" + windowID.String()
	rec := do(t, h, http.MethodPut, path, `{"day_of_week":1,"start_time":"09:00","end_time":"10:00","is_active":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/doctors/"+otherDoctor.String()+"/availability/"+windowID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "window_not_found", decodeError(t, rec).Error)
}

func TestHealth(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }
	up := func(context.Context) error { return nil }

	tests := []struct {
		name     string
		pg, rd   Check
		status   int
		expected string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{Postgres: tt.pg, Redis: tt.rd, Booking: new(MockBooking), Availability: new(MockAvailability), Log: zerolog.Nop()})
			rec := do(t, h, http.MethodGet, "/health/ready", "")
			assert.Equal(t, tt.status, rec.Code)

			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.expected, resp.Status)
		})
	}

	h := newTestRouter(new(MockBooking), new(MockAvailability))
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/live", "").Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	id := uuid.New()
	b := new(MockBooking)
	h := newTestRouter(b, new(MockAvailability))
	b.On("GetAppointment", mock.Anything, id).Run(func(mock.Arguments) { panic("nil map") }).Return(nil, nil)

	rec := do(t, h, http.MethodGet, "/appointments/"+id.String(), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
