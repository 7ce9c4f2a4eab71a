package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date in the service's zone.
func (s *Service) ParseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, date, s.opts.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
	}
	return d, nil
}

// ListAvailableSlots returns the free slots of doctorID on date in
// ascending order. Only date's calendar day matters; its clock time is
// ignored. A doctor with no active windows that weekday gets an empty list.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, notFound("doctor", doctorID)
		}
		return nil, s.fail("list_slots", fmt.Errorf("load doctor: %w", err))
	}

	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.opts.Location)

	slots := []Slot{}
	if !doctor.IsActive {
		return slots, nil
	}

	windows, err := s.windows.ActiveWindows(ctx, doctorID, day.Weekday())
	if err != nil {
		return nil, s.fail("list_slots", fmt.Errorf("load availability: %w", err))
	}
	candidates := candidateStarts(windows, s.opts.SlotIncrement, s.opts.AllowPartial)
	if len(candidates) == 0 {
		return slots, nil
	}

	live, err := s.repo.ListLiveAppointments(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, s.fail("list_slots", fmt.Errorf("load appointments: %w", err))
	}
	occupied := make(map[int64]bool, len(live))
	for _, a := range live {
		occupied[a.ScheduledAt.Unix()] = true
	}

	now := s.opts.Now()
	minutes := int(s.opts.SlotIncrement / time.Minute)
	for _, start := range candidates {
		startsAt, ok := startOn(start, day, s.opts.Location)
		if !ok || occupied[startsAt.Unix()] || startsAt.Before(now) {
			continue
		}
		slots = append(slots, Slot{
			Date:            day.Format(dateLayout),
			StartTime:       start.String(),
			DurationMinutes: minutes,
			StartsAt:        startsAt,
		})
	}

	s.metrics.ObserveSlotsListed(len(slots))
	return slots, nil
}

// candidateStarts walks every window from its start in increment steps and
// returns the distinct slot starts in ascending order. A step that would
// run past the window's end is only kept when allowPartial is set.
func candidateStarts(windows []availability.Window, increment time.Duration, allowPartial bool) []availability.TimeOfDay {
	seen := make(map[availability.TimeOfDay]bool)
	var starts []availability.TimeOfDay

	for _, w := range windows {
		if !w.IsActive || w.Start >= w.End {
			continue
		}
		for t := w.Start; t < w.End; t = t.Add(increment) {
			if !allowPartial && t.Add(increment) > w.End {
				break
			}
			if !seen[t] {
				seen[t] = true
				starts = append(starts, t)
			}
		}
	}

	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts
}

// offered reports whether at is exactly one of the slot starts the
// generator would produce from windows.
func (s *Service) offered(windows []availability.Window, at time.Time) bool {
	if at.Second() != 0 || at.Nanosecond() != 0 {
		return false
	}
	tod := availability.TimeOfDayOf(at)
	for _, start := range candidateStarts(windows, s.opts.SlotIncrement, s.opts.AllowPartial) {
		if start != tod {
			continue
		}
		startsAt, ok := startOn(start, at, s.opts.Location)
		return ok && startsAt.Equal(at)
	}
	return false
}

// startOn resolves start on day's calendar day in loc. It reports false when
// that wall-clock time does not exist on day, as inside a daylight saving
// gap. On a repeated hour the first occurrence wins.
func startOn(start availability.TimeOfDay, day time.Time, loc *time.Location) (time.Time, bool) {
	t := start.On(day, loc)
	return t, availability.TimeOfDayOf(t) == start
}
