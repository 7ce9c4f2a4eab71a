package availability

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

const minutesPerDay = 24 * 60

// TimeOfDay is a local wall-clock time in minutes since midnight. 24:00 is
// allowed so a window can run to the end of the day.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" in 24h format.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' || !isDigit(s[0]) || !isDigit(s[1]) || !isDigit(s[3]) || !isDigit(s[4]) {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time of day %q: out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// MustTimeOfDay is ParseTimeOfDay for constants and tests.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayOf returns the wall-clock time of t in t's location, truncated to
// the minute.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= minutesPerDay
}

// On returns the instant at this time of day on date's calendar day, in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, loc)
}

// Add returns t shifted by d, truncated to whole minutes.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Window is a recurring weekly interval during which a doctor accepts
// appointments.
type Window struct {
	ID        uuid.UUID    `json:"id"`
	DoctorID  uuid.UUID    `json:"doctor_id"`
	DayOfWeek time.Weekday `json:"day_of_week"`
	Start     TimeOfDay    `json:"start_time"`
	End       TimeOfDay    `json:"end_time"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (w Window) Validate() error {
	if w.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor_id is required", ErrInvalidWindow)
	}
	if w.DayOfWeek < time.Sunday || w.DayOfWeek > time.Saturday {
		return fmt.Errorf("%w: day_of_week must be 0-6, got %d", ErrInvalidWindow, w.DayOfWeek)
	}
	if !w.Start.Valid() || !w.End.Valid() {
		return fmt.Errorf("%w: time of day out of range", ErrInvalidWindow)
	}
	if w.Start >= w.End {
		return fmt.Errorf("%w: start_time %s must be before end_time %s", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// Overlaps reports whether both windows fall on the same weekday and share
// at least one minute.
func (w Window) Overlaps(o Window) bool {
	return w.DayOfWeek == o.DayOfWeek && w.Start < o.End && o.Start < w.End
}

// ActiveOn filters windows down to the active ones for day, ordered by start.
func ActiveOn(windows []Window, day time.Weekday) []Window {
	var out []Window
	for _, w := range windows {
		if w.IsActive && w.DayOfWeek == day {
			out = append(out, w)
		}
	}
	sortByStart(out)
	return out
}

func sortByStart(ws []Window) {
	sort.SliceStable(ws, func(i, j int) bool {
		return ws[i].Start < ws[j].Start
	})
}
