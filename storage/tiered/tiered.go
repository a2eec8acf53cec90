// Package tiered provides a Hot/Cold tiered storage adapter that pairs a fast
// store (Redis, memory) with a durable one (Postgres, Firestore, file).
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 storage read first and written synchronously
	Hot routequota.Storage

	// Cold is the L2 persistence storage and source of truth after a hot miss
	Cold routequota.Storage

	// AsyncColdSync makes cold writes non-blocking. If false, writes are
	// synchronous (slower but safer).
	AsyncColdSync bool

	// SyncBufferSize is the size of the buffered channel for async writes.
	// Default: 100
	SyncBufferSize int

	// AsyncErrorHandler is called when a cold write fails.
	AsyncErrorHandler func(error)
}

// Storage implements a Hot/Cold tiered storage architecture:
//   - LoadState is read-through (Hot, then Cold, then repopulate Hot)
//   - SaveState is hot-primary with a synchronous or queued Cold write
type Storage struct {
	hot  routequota.Storage
	cold routequota.Storage
	conf Config

	syncQueue chan *routequota.State
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 100
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan *routequota.State, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncColdSync {
		s.startWorker()
	}

	return s, nil
}

// Close drains pending cold writes and stops the worker.
func (s *Storage) Close() error {
	if s.conf.AsyncColdSync {
		select {
		case <-s.shutdown:
			// Already closed
		default:
			close(s.shutdown)
			s.wg.Wait()
		}
	}
	return nil
}

// startWorker writes queued states to cold storage in order.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case state := <-s.syncQueue:
				s.writeCold(context.Background(), state)
			case <-s.shutdown:
				for {
					select {
					case state := <-s.syncQueue:
						s.writeCold(context.Background(), state)
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) writeCold(ctx context.Context, state *routequota.State) {
	if err := s.cold.SaveState(ctx, state); err != nil && s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(fmt.Errorf("tiered sync failed: %w", err))
	}
}

// LoadState implements routequota.Storage with a read-through strategy.
func (s *Storage) LoadState(ctx context.Context) (*routequota.State, error) {
	state, err := s.hot.LoadState(ctx)
	if err == nil && state != nil {
		return state, nil
	}

	state, err = s.cold.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	if state != nil {
		_ = s.hot.SaveState(ctx, state) //nolint:errcheck // Cache fill - errors are non-critical
	}
	return state, nil
}

// SaveState implements routequota.Storage. A hot failure is returned; a cold
// failure goes to AsyncErrorHandler since the hot copy already holds the count.
func (s *Storage) SaveState(ctx context.Context, state *routequota.State) error {
	if err := s.hot.SaveState(ctx, state); err != nil {
		return err
	}

	if !s.conf.AsyncColdSync {
		s.writeCold(ctx, state)
		return nil
	}

	select {
	case s.syncQueue <- state.Clone():
	default:
		if s.conf.AsyncErrorHandler != nil {
			s.conf.AsyncErrorHandler(errors.New("tiered storage: sync queue full, dropping cold write"))
		}
	}
	return nil
}

// Now uses Hot store time for consistency (usually Redis TIME).
// Falls back to Cold if Hot doesn't support it, then local time.
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	if ts, ok := s.hot.(routequota.TimeSource); ok {
		return ts.Now(ctx)
	}
	if ts, ok := s.cold.(routequota.TimeSource); ok {
		return ts.Now(ctx)
	}
	return time.Now().UTC(), nil
}
