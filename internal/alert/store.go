package alert

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no alert carries the requested ID.
	ErrNotFound = errors.New("alert not found")

	// ErrCorrupt marks stored alert data that cannot be decoded. Opening a
	// store over corrupt data fails rather than silently dropping alerts.
	ErrCorrupt = errors.New("alert store corrupt")
)

// Store is the durable alert set. Implementations serialize access and
// persist every mutation before returning; a mutation that reports an error
// has not taken effect.
type Store interface {
	Create(ctx context.Context, a Alert) (Alert, error)
	Get(ctx context.Context, id string) (Alert, error)
	List(ctx context.Context) ([]Alert, error)
	Update(ctx context.Context, a Alert) error
	Delete(ctx context.Context, id string) error
	Close() error
}
