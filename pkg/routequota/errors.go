package routequota

import "errors"

var (
	// ErrStorageUnavailable is returned when no storage backend is configured or reachable
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidConfig is returned when the tracker configuration is inconsistent
	ErrInvalidConfig = errors.New("invalid config")

	// ErrCorruptState is returned by backends when the stored counter cannot be decoded
	ErrCorruptState = errors.New("corrupt quota state")

	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)
