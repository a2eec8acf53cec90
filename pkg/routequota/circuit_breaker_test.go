package routequota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStorage struct {
	mu    sync.Mutex
	err   error
	state *State
	loads int
	saves int
}

func (s *stubStorage) LoadState(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.state, nil
}

func (s *stubStorage) SaveState(ctx context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.err != nil {
		return s.err
	}
	s.state = state
	return nil
}

func (s *stubStorage) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubStorage) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads, s.saves
}

func TestBreakerStorage(t *testing.T) {
	backendDown := errors.New("connection refused")
	stub := &stubStorage{err: backendDown}

	var mu sync.Mutex
	var transitions []string
	storage := NewBreakerStorage(stub, CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
	}, func(state string) {
		mu.Lock()
		transitions = append(transitions, state)
		mu.Unlock()
	})
	ctx := context.Background()

	assert.Equal(t, BreakerClosed, storage.State())

	_, err := storage.LoadState(ctx)
	assert.ErrorIs(t, err, backendDown)
	assert.Equal(t, BreakerClosed, storage.State())

	_, err = storage.LoadState(ctx)
	assert.ErrorIs(t, err, backendDown)
	assert.Equal(t, BreakerOpen, storage.State())

	t.Run("open fails fast", func(t *testing.T) {
		_, err := storage.LoadState(ctx)
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.ErrorIs(t, storage.SaveState(ctx, NewState("2024-02")), ErrCircuitOpen)

		loads, saves := stub.calls()
		assert.Equal(t, 2, loads)
		assert.Equal(t, 0, saves)
	})

	t.Run("trial after timeout closes", func(t *testing.T) {
		stub.setErr(nil)
		time.Sleep(40 * time.Millisecond)

		require.NoError(t, storage.SaveState(ctx, NewState("2024-02")))
		assert.Equal(t, BreakerClosed, storage.State())

		state, err := storage.LoadState(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2024-02", state.Month)
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{BreakerOpen, BreakerHalfOpen, BreakerClosed}, transitions)
}

func TestBreakerStorage_FailedTrialReopens(t *testing.T) {
	stub := &stubStorage{err: errors.New("timeout")}
	storage := NewBreakerStorage(stub, CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     20 * time.Millisecond,
	}, nil)
	ctx := context.Background()

	_, err := storage.LoadState(ctx)
	require.Error(t, err)
	assert.Equal(t, BreakerOpen, storage.State())

	time.Sleep(40 * time.Millisecond)
	_, err = storage.LoadState(ctx)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, BreakerOpen, storage.State())
}

func TestBreakerStorage_Defaults(t *testing.T) {
	stub := &stubStorage{err: errors.New("down")}
	storage := NewBreakerStorage(stub, CircuitBreakerConfig{}, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = storage.LoadState(ctx)
	}
	assert.Equal(t, BreakerClosed, storage.State())

	_, _ = storage.LoadState(ctx)
	assert.Equal(t, BreakerOpen, storage.State())
}

func TestBreakerStorage_Concurrent(t *testing.T) {
	testErr := errors.New("flaky")
	stub := &stubStorage{err: testErr}
	storage := NewBreakerStorage(stub, CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Hour,
	}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.LoadState(ctx)
			if err != nil && !errors.Is(err, ErrCircuitOpen) && !errors.Is(err, testErr) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, BreakerOpen, storage.State())
	loads, _ := stub.calls()
	assert.GreaterOrEqual(t, loads, 3)

	_, err := storage.LoadState(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

type clockedStub struct {
	*stubStorage
	at time.Time
}

func (c *clockedStub) Now(ctx context.Context) (time.Time, error) {
	return c.at, nil
}

func TestBreakerStorage_Now(t *testing.T) {
	at := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	withClock := NewBreakerStorage(&clockedStub{stubStorage: &stubStorage{}, at: at}, CircuitBreakerConfig{}, nil)
	now, err := withClock.Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, at, now)

	without := NewBreakerStorage(&stubStorage{}, CircuitBreakerConfig{}, nil)
	now, err = without.Now(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), now, time.Second)
}
