package routequota

import (
	"context"
	"time"
)

// Storage defines the interface for quota state persistence.
// State is read and written as a whole; there are no partial updates.
type Storage interface {
	// LoadState retrieves the stored state.
	// Returns nil, nil when nothing has been stored yet.
	LoadState(ctx context.Context) (*State, error)

	// SaveState replaces the stored state.
	SaveState(ctx context.Context, state *State) error
}

// TimeSource defines an interface for getting the current time.
// Backends that own a clock (Redis TIME, Postgres now()) implement it so that
// several processes sharing one counter agree on the month boundary.
type TimeSource interface {
	// Now returns the current time.
	// Returns an error if the time cannot be obtained.
	Now(ctx context.Context) (time.Time, error)
}

// TimeSourceFunc adapts a plain function to the TimeSource interface.
type TimeSourceFunc func() time.Time

// Now implements TimeSource
func (f TimeSourceFunc) Now(_ context.Context) (time.Time, error) {
	return f(), nil
}

// SystemTimeSource reads the local clock.
var SystemTimeSource TimeSource = TimeSourceFunc(time.Now)
