package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service owns the write rules for availability windows and serves
// read-through cached lookups to the slot generator and booking engine.
type Service struct {
	repo  Repository
	cache *Cache
	log   zerolog.Logger
}

// NewService builds the availability service. A nil cache disables caching.
func NewService(repo Repository, cache *Cache, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log.With().Str("component", "availability").Logger(),
	}
}

// Create adds a window after checking it against the doctor's other active
// windows on the same weekday.
func (s *Service) Create(ctx context.Context, w Window) (*Window, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	if w.IsActive {
		if err := s.checkOverlap(ctx, w); err != nil {
			return nil, err
		}
	}

	created, err := s.repo.Create(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("create availability window: %w", err)
	}

	s.invalidate(ctx, created.DoctorID)
	s.log.Info().
		Str("window_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("day", created.DayOfWeek.String()).
		Str("start", created.Start.String()).
		Str("end", created.End.String()).
		Msg("availability window created")

	return created, nil
}

// Update replaces day, times and active flag of an existing window. The
// owning doctor never changes.
func (s *Service) Update(ctx context.Context, w Window) (*Window, error) {
	existing, err := s.repo.GetByID(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	w.DoctorID = existing.DoctorID

	if err := w.Validate(); err != nil {
		return nil, err
	}
	if w.IsActive {
		if err := s.checkOverlap(ctx, w); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.Update(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("update availability window: %w", err)
	}

	s.invalidate(ctx, updated.DoctorID)
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*Window, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*Window, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id uuid.UUID, active bool) (*Window, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.IsActive == active {
		return w, nil
	}

	w.IsActive = active
	return s.Update(ctx, *w)
}

// Delete removes a window from the doctor profile. Existing appointments
// inside it are left alone.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, w.DoctorID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Window, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Window, error) {
	return s.repo.ListByDoctor(ctx, doctorID)
}

// ActiveWindows returns the doctor's active windows for day ordered by
// start time. Reads go through the cache when one is configured; a cache
// failure falls back to the store.
func (s *Service) ActiveWindows(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]Window, error) {
	windows, err := s.windowsForDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return ActiveOn(windows, day), nil
}

func (s *Service) windowsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Window, error) {
	fill := false
	var version int64
	if s.cache != nil {
		windows, ok, err := s.cache.Get(ctx, doctorID)
		if err != nil {
			s.log.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("availability cache read failed")
		} else if ok {
			return windows, nil
		}
		if err == nil {
			version, err = s.cache.Version(ctx, doctorID)
			fill = err == nil
		}
	}

	windows, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability windows: %w", err)
	}

	if fill {
		if _, err := s.cache.Fill(ctx, doctorID, windows, version); err != nil {
			s.log.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("availability cache write failed")
		}
	}
	return windows, nil
}

func (s *Service) checkOverlap(ctx context.Context, w Window) error {
	existing, err := s.repo.ListByDoctor(ctx, w.DoctorID)
	if err != nil {
		return fmt.Errorf("list availability windows: %w", err)
	}

	for _, other := range existing {
		if other.ID == w.ID || !other.IsActive {
			continue
		}
		if w.Overlaps(other) {
			return fmt.Errorf("%w: %s %s-%s", ErrWindowOverlap, other.DayOfWeek, other.Start, other.End)
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, doctorID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, doctorID); err != nil {
		s.log.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("availability cache invalidation failed")
	}
}
