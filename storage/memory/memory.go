// Package memory provides an in-memory implementation of the routequota.Storage interface.
// This implementation is primarily intended for testing and dry runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// Storage implements routequota.Storage using a single in-memory state
type Storage struct {
	mu    sync.RWMutex
	state *routequota.State
	saves int
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{}
}

// NewWithState creates an in-memory storage adapter pre-loaded with state
func NewWithState(state *routequota.State) *Storage {
	return &Storage{state: state.Clone()}
}

// LoadState implements routequota.Storage
func (s *Storage) LoadState(_ context.Context) (*routequota.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy to prevent external mutations
	return s.state.Clone(), nil
}

// SaveState implements routequota.Storage
func (s *Storage) SaveState(_ context.Context, state *routequota.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state.Clone()
	s.saves++
	return nil
}

// Now implements routequota.TimeSource
func (s *Storage) Now(_ context.Context) (time.Time, error) {
	return time.Now(), nil
}

// Saves returns how many times SaveState has been called
func (s *Storage) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = nil
	s.saves = 0
}
