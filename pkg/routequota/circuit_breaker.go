package routequota

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Breaker states as reported to Metrics.RecordCircuitBreakerStateChange
const (
	BreakerClosed   = "closed"
	BreakerHalfOpen = "half-open"
	BreakerOpen     = "open"
)

// BreakerStorage guards a Storage with a circuit breaker. After
// FailureThreshold consecutive failed loads or saves the backend is left
// alone for ResetTimeout; meanwhile every call fails fast with ErrCircuitOpen
// and the tracker falls back to its zero-usage answer. One trial request is let
// through when the timeout elapses.
type BreakerStorage struct {
	storage Storage
	breaker *gobreaker.CircuitBreaker[*State]
}

// NewBreakerStorage wraps storage. onStateChange (optional) receives one of
// the Breaker* state names on every transition.
func NewBreakerStorage(storage Storage, config CircuitBreakerConfig, onStateChange func(state string)) *BreakerStorage {
	threshold := config.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	timeout := config.ResetTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	failures := uint32(threshold)
	return &BreakerStorage{
		storage: storage,
		breaker: gobreaker.NewCircuitBreaker[*State](gobreaker.Settings{
			Name:        "quota-storage",
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(_ string, _, to gobreaker.State) {
				if onStateChange != nil {
					onStateChange(to.String())
				}
			},
		}),
	}
}

// LoadState implements Storage
func (s *BreakerStorage) LoadState(ctx context.Context) (*State, error) {
	state, err := s.breaker.Execute(func() (*State, error) {
		return s.storage.LoadState(ctx)
	})
	return state, circuitError(err)
}

// SaveState implements Storage
func (s *BreakerStorage) SaveState(ctx context.Context, state *State) error {
	_, err := s.breaker.Execute(func() (*State, error) {
		return nil, s.storage.SaveState(ctx, state)
	})
	return circuitError(err)
}

// Now implements TimeSource by delegating to the wrapped storage when it has
// a clock. Clock reads do not count toward the breaker.
func (s *BreakerStorage) Now(ctx context.Context) (time.Time, error) {
	if ts, ok := s.storage.(TimeSource); ok {
		return ts.Now(ctx)
	}
	return time.Now(), nil
}

// State returns the current breaker state name
func (s *BreakerStorage) State() string {
	return s.breaker.State().String()
}

func circuitError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}
