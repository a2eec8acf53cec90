package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/routequota/pkg/routequota"
	"github.com/mihaimyh/routequota/storage/memory"
)

// Test helper to create a tracker with used requests already recorded this month
func setupTestTracker(t *testing.T, used int) *routequota.Tracker {
	t.Helper()

	now := time.Date(2024, time.February, 14, 12, 0, 0, 0, time.UTC)
	state := routequota.NewState("2024-02")
	state.Usage[routequota.DefaultAPI] = used

	cfg := routequota.DefaultConfig()
	cfg.Location = time.UTC
	cfg.TimeSource = routequota.TimeSourceFunc(func() time.Time { return now })
	cfg.PriorityCarriers = []string{"ACA"}

	tracker, err := routequota.NewTracker(memory.NewWithState(state), &cfg)
	require.NoError(t, err)
	return tracker
}

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_Success(t *testing.T) {
	tracker := setupTestTracker(t, 0)
	calls := 0
	handler := Middleware(Config{Tracker: tracker})(okHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lookup", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 99, tracker.Remaining(context.Background(), routequota.DefaultAPI))
}

func TestMiddleware_Exhausted(t *testing.T) {
	tracker := setupTestTracker(t, 100)
	calls := 0
	handler := Middleware(Config{Tracker: tracker})(okHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lookup", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "quota exhausted")
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, tracker.Remaining(context.Background(), routequota.DefaultAPI))
}

func TestMiddleware_PriorityReserve(t *testing.T) {
	tests := []struct {
		name     string
		callsign string
		want     int
	}{
		{name: "priority carrier admitted", callsign: "ACA857", want: http.StatusOK},
		{name: "other carrier denied", callsign: "WJA123", want: http.StatusTooManyRequests},
		{name: "no callsign skips narrowing", callsign: "", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := setupTestTracker(t, 85)
			calls := 0
			handler := Middleware(Config{
				Tracker:     tracker,
				GetCallsign: FromQuery("callsign"),
			})(okHandler(&calls))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lookup?callsign="+tt.callsign, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddleware_RecordsFailedAttempts(t *testing.T) {
	tracker := setupTestTracker(t, 0)
	handler := Middleware(Config{Tracker: tracker})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lookup", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, 99, tracker.Remaining(context.Background(), routequota.DefaultAPI))
}

func TestMiddleware_CustomDeniedHandler(t *testing.T) {
	tracker := setupTestTracker(t, 100)
	var got routequota.Decision
	handler := Middleware(Config{
		Tracker: tracker,
		OnQuotaDenied: func(w http.ResponseWriter, r *http.Request, d routequota.Decision) {
			got = d
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})(okHandler(new(int)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lookup", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, got.Allowed)
	assert.Equal(t, 100, got.Total)
}

func TestMiddleware_DecisionInContext(t *testing.T) {
	tracker := setupTestTracker(t, 95)
	var got routequota.Decision
	var ok bool
	handler := Middleware(Config{
		Tracker:     tracker,
		GetCallsign: FromHeader("X-Callsign"),
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = DecisionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/lookup", nil)
	req.Header.Set("X-Callsign", "aca857")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, ok)
	assert.True(t, got.Allowed)
	assert.True(t, got.Low)
	assert.Equal(t, 5, got.Remaining)
}

func TestMiddleware_RequiresTracker(t *testing.T) {
	assert.PanicsWithValue(t, "routequota/http: Config.Tracker is required", func() {
		Middleware(Config{API: routequota.DefaultAPI})
	})
}

func TestHandlerFunc(t *testing.T) {
	tracker := setupTestTracker(t, 0)
	calls := 0
	wrapped := HandlerFunc(Config{Tracker: tracker})(func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	wrapped(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/lookup", nil))
	wrapped(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/lookup", nil))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 98, tracker.Remaining(context.Background(), routequota.DefaultAPI))
}
