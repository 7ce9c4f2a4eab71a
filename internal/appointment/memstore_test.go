package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// -- In-memory Repository --

// memStore serialises transactions and restores a snapshot when fn fails,
// which is enough to check rollback and the live-slot rule without
// Postgres.
type memStore struct {
	txMu sync.Mutex

	mu           sync.Mutex
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	events       []Event
	nextEventID  int64

	failEvents bool
}

func newMemStore() *memStore {
	return &memStore{
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *memStore) addDoctor(active bool) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.doctors[id] = Doctor{ID: id, Name: "Dr. Test", IsActive: active}
	return id
}

func (m *memStore) addPatient() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.patients[id] = Patient{ID: id, Name: "Patient"}
	return id
}

func (m *memStore) liveCount(doctorID uuid.UUID, at time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.ScheduledAt.Equal(at) && a.Status.IsLive() {
			n++
		}
	}
	return n
}

func (m *memStore) eventsFor(id uuid.UUID) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.AppointmentID == id {
			out = append(out, ev)
		}
	}
	return out
}

func (m *memStore) InTx(_ context.Context, fn func(st Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	saved := make(map[uuid.UUID]Appointment, len(m.appointments))
	for k, v := range m.appointments {
		saved[k] = v
	}
	savedEvents := append([]Event(nil), m.events...)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.appointments = saved
		m.events = savedEvents
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *memStore) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *memStore) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memStore) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetAppointmentByID(ctx, id)
}

func (m *memStore) FindLiveAppointment(_ context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.ID != excludeID && a.DoctorID == doctorID && a.ScheduledAt.Equal(at) && a.Status.IsLive() {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *memStore) ListLiveAppointments(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Status.IsLive() && !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

// checkLiveSlot mirrors the appointments_live_slot partial unique index.
func (m *memStore) checkLiveSlot(a Appointment) error {
	if !a.Status.IsLive() {
		return nil
	}
	for _, other := range m.appointments {
		if other.ID != a.ID && other.DoctorID == a.DoctorID && other.ScheduledAt.Equal(a.ScheduledAt) && other.Status.IsLive() {
			return &SlotConflictError{DoctorID: a.DoctorID, At: a.ScheduledAt, Reason: ConflictOccupied}
		}
	}
	return nil
}

func (m *memStore) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLiveSlot(a); err != nil {
		return nil, err
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appointments[a.ID] = a
	return &a, nil
}

func (m *memStore) UpdateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.appointments[a.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if err := m.checkLiveSlot(a); err != nil {
		return nil, err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now()
	m.appointments[a.ID] = a
	return &a, nil
}

func (m *memStore) InsertEvent(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEvents {
		return errors.New("connection reset by peer")
	}
	m.nextEventID++
	ev.ID = m.nextEventID
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) ListAppointments(_ context.Context, f Filter) ([]Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Appointment
	for _, a := range m.appointments {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
			continue
		}
		if f.From != nil && a.ScheduledAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.ScheduledAt.Before(*f.To) {
			continue
		}
		matched = append(matched, a)
	}
	sortAppointments(matched)

	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (m *memStore) ListEvents(_ context.Context, appointmentID uuid.UUID) ([]Event, error) {
	return m.eventsFor(appointmentID), nil
}

func (m *memStore) FindOverdueLive(_ context.Context, before time.Time, limit int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.Status.IsLive() && a.ScheduledAt.Before(before) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func sortAppointments(as []Appointment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].ScheduledAt.Equal(as[j].ScheduledAt) {
			return as[i].ID.String() < as[j].ID.String()
		}
		return as[i].ScheduledAt.Before(as[j].ScheduledAt)
	})
}

// -- Availability stub --

type stubWindows struct {
	mu      sync.Mutex
	windows map[uuid.UUID][]availability.Window
	err     error
}

func newStubWindows() *stubWindows {
	return &stubWindows{windows: make(map[uuid.UUID][]availability.Window)}
}

func (s *stubWindows) add(doctorID uuid.UUID, day time.Weekday, start, end string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[doctorID] = append(s.windows[doctorID], availability.Window{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		DayOfWeek: day,
		Start:     availability.MustTimeOfDay(start),
		End:       availability.MustTimeOfDay(end),
		IsActive:  true,
	})
}

func (s *stubWindows) ActiveWindows(_ context.Context, doctorID uuid.UUID, day time.Weekday) ([]availability.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return availability.ActiveOn(s.windows[doctorID], day), nil
}

// -- Fixture --

var (
	// Friday; the test Monday is 2030-03-04.
	testNow    = time.Date(2030, 3, 1, 8, 0, 0, 0, time.UTC)
	testMonday = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
)

func slotAt(day time.Time, hhmm string) time.Time {
	return availability.MustTimeOfDay(hhmm).On(day, time.UTC)
}

type fixture struct {
	svc     *Service
	store   *memStore
	windows *stubWindows
	redis   *miniredis.Miniredis
	client  *redis.Client
	now     time.Time
	doctor  uuid.UUID
	patient uuid.UUID
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		store:   newMemStore(),
		windows: newStubWindows(),
		redis:   mr,
		client:  client,
		now:     testNow,
	}

	opts := Options{
		Location:      time.UTC,
		SlotIncrement: 30 * time.Minute,
		TxTimeout:     5 * time.Second,
		Now:           func() time.Time { return f.now },
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	locker := redisclient.NewRedisSlotLocker(client, 5*time.Second, 5*time.Second)
	f.svc = NewService(f.store, f.windows, locker, opts, zerolog.Nop(), nil)

	f.doctor = f.store.addDoctor(true)
	f.patient = f.store.addPatient()
	f.windows.add(f.doctor, time.Monday, "09:00", "10:00")
	return f
}

func (f *fixture) book(t *testing.T, hhmm string) *Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), BookRequest{
		DoctorID:    f.doctor,
		PatientID:   f.patient,
		ScheduledAt: slotAt(testMonday, hhmm),
		Reason:      "checkup",
	})
	require.NoError(t, err)
	return a
}

func startTimes(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime
	}
	return out
}
