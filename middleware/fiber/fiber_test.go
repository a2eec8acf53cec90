package fiber

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/routequota/pkg/routequota"
	"github.com/mihaimyh/routequota/storage/memory"
)

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

func TestMiddleware_Admission(t *testing.T) {
	tests := []struct {
		name          string
		used          int
		callsign      string
		wantStatus    int
		wantCalls     int
		wantRemaining int
	}{
		{"plenty left", 0, "UAL123", http.StatusOK, 1, 99},
		{"exhausted", 100, "ACA857", http.StatusTooManyRequests, 0, 0},
		{"reserve boundary denies non-priority", 80, "UAL123", http.StatusTooManyRequests, 0, 20},
		{"just above reserve", 79, "UAL123", http.StatusOK, 1, 20},
		{"reserve admits priority", 80, "aca857", http.StatusOK, 1, 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := setupTestTracker(t, tt.used)
			calls := 0

			app := fiber.New()
			app.Get("/routes/:callsign", Middleware(Config{Tracker: tracker, GetCallsign: FromParam("callsign")}), func(c *fiber.Ctx) error {
				calls++
				return c.SendString("ok")
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/routes/"+tt.callsign, nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantRemaining, tracker.Remaining(context.Background(), routequota.DefaultAPI))
		})
	}
}

func TestMiddleware_DeniedJSON(t *testing.T) {
	tracker := setupTestTracker(t, 100)
	app := fiber.New()
	app.Get("/lookup", Middleware(Config{Tracker: tracker}), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/lookup", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), `"error":"Quota denied"`)
}

func TestMiddleware_LowQuotaAndLocals(t *testing.T) {
	tracker := setupTestTracker(t, 97)
	var got routequota.Decision
	app := fiber.New()
	app.Get("/lookup", Middleware(Config{Tracker: tracker, GetCallsign: FromHeader("X-Callsign")}), func(c *fiber.Ctx) error {
		got, _ = c.Locals(DecisionKey).(routequota.Decision)
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/lookup", nil)
	req.Header.Set("X-Callsign", "ACA857")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "3", resp.Header.Get("X-Quota-Warning-Remaining"))
	assert.True(t, got.Allowed)
	assert.True(t, got.Low)
	assert.Equal(t, 2, tracker.Remaining(context.Background(), routequota.DefaultAPI))
}

func TestMiddleware_HandlerErrorStillRecorded(t *testing.T) {
	tracker := setupTestTracker(t, 0)
	app := fiber.New()
	app.Get("/lookup", Middleware(Config{Tracker: tracker, GetCallsign: FromQuery("callsign")}), func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadGateway, "upstream down")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/lookup?callsign=UAL1", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 99, tracker.Remaining(context.Background(), routequota.DefaultAPI))
}

func TestMiddleware_CustomDenied(t *testing.T) {
	tracker := setupTestTracker(t, 100)
	app := fiber.New()
	app.Get("/lookup", Middleware(Config{
		Tracker: tracker,
		OnQuotaDenied: func(c *fiber.Ctx, d routequota.Decision) error {
			return c.Status(fiber.StatusServiceUnavailable).SendString(d.Reason)
		},
	}), func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/lookup", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestMiddleware_RequiresTracker(t *testing.T) {
	assert.Panics(t, func() { Middleware(Config{}) })
}
