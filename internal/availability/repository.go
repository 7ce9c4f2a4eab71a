package availability

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrWindowNotFound  = errors.New("availability window not found")
	ErrInvalidWindow   = errors.New("invalid availability window")
	ErrWindowOverlap   = errors.New("availability window overlaps an existing active window")
	ErrDuplicateWindow = errors.New("availability window with the same start already exists")
	ErrUnknownDoctor   = errors.New("doctor not found")
)

// Repository is the AvailabilityStore. It holds rows only; validation and
// overlap rules live in Service.
type Repository interface {
	Create(ctx context.Context, w Window) (*Window, error)
	Update(ctx context.Context, w Window) (*Window, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Window, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Window, error)
}
