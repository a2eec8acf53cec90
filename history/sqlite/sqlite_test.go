package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/routequota/history/sqlite"
	"github.com/mihaimyh/routequota/pkg/priority"
)

var day = time.Date(2024, time.February, 14, 12, 0, 0, 0, time.UTC)

func openHistory(t *testing.T) *sqlite.History {
	t.Helper()
	h, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "flight_log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func sighting(callsign, icao string, route priority.Route, seen time.Time) priority.Sighting {
	return priority.Sighting{
		Flight: priority.Flight{Callsign: callsign, ICAOHex: icao},
		Route:  route,
		Seen:   seen,
	}
}

func TestHistory_DominantRoute(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()
	lax := priority.Route{Origin: "LAX", Destination: "JFK"}
	sfo := priority.Route{Origin: "SFO", Destination: "JFK"}

	// One row per aircraft per day
	for i := 0; i < 3; i++ {
		require.NoError(t, h.RecordRoute(ctx, sighting("AAL100", "A12345", lax, day.AddDate(0, 0, -i))))
	}
	require.NoError(t, h.RecordRoute(ctx, sighting("AAL100", "A12345", sfo, day.AddDate(0, 0, -3))))
	require.NoError(t, h.RecordRoute(ctx, sighting("AAL100", "A99999", priority.Route{}, day)))

	obs, err := h.DominantRoute(ctx, "AAL100", day.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, lax, obs.Route)
	assert.Equal(t, 3, obs.Count)

	// Window excludes older sightings
	obs, err = h.DominantRoute(ctx, "AAL100", day.AddDate(0, 0, -1).Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, obs.Count)

	obs, err = h.DominantRoute(ctx, "UAL1", day.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Nil(t, obs)
}

func TestHistory_SameDayUpsert(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()
	route := priority.Route{Origin: "YVR", Destination: "YYZ"}

	require.NoError(t, h.RecordRoute(ctx, sighting("ACA857", "C01234", priority.Route{}, day)))
	require.NoError(t, h.RecordRoute(ctx, sighting("ACA857", "C01234", route, day.Add(time.Hour))))
	// A later routeless sighting must not erase the route
	require.NoError(t, h.RecordRoute(ctx, sighting("ACA857", "C01234", priority.Route{}, day.Add(2*time.Hour))))

	n, err := h.RouteCount(ctx, route)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := h.Stats(ctx, day.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, sqlite.Stats{Total: 1, WithRoutes: 1, RoutePercentage: 100}, stats)
}

func TestHistory_RouteCountAcrossCallsigns(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()
	lax := priority.Route{Origin: "LAX", Destination: "JFK"}

	require.NoError(t, h.RecordRoute(ctx, sighting("AAL100", "A00001", lax, day)))
	require.NoError(t, h.RecordRoute(ctx, sighting("DAL200", "A00002", lax, day)))
	require.NoError(t, h.RecordRoute(ctx, sighting("JBU300", "A00003", lax, day.AddDate(0, -3, 0))))
	require.NoError(t, h.RecordRoute(ctx, sighting("JBU300", "A00003", priority.Route{Origin: "JFK", Destination: "LAX"}, day)))

	n, err := h.RouteCount(ctx, lax)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestHistory_Stats(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()

	empty, err := h.Stats(ctx, day.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, sqlite.Stats{}, empty)

	require.NoError(t, h.RecordRoute(ctx, sighting("AAL100", "A00001", priority.Route{Origin: "LAX", Destination: "JFK"}, day)))
	require.NoError(t, h.RecordRoute(ctx, sighting("N12345", "A00002", priority.Route{}, day)))
	require.NoError(t, h.RecordRoute(ctx, sighting("RCH345", "AE1234", priority.Route{}, day)))
	require.NoError(t, h.RecordRoute(ctx, sighting("FDX1", "A00003", priority.Route{Origin: "MEM", Destination: "YVR"}, day.AddDate(0, 0, -40))))

	stats, err := h.Stats(ctx, day.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.WithRoutes)
	assert.InDelta(t, 33.33, stats.RoutePercentage, 0.01)
}

func TestHistory_ScorerIntegration(t *testing.T) {
	h := openHistory(t)
	ctx := context.Background()
	lax := priority.Route{Origin: "LAX", Destination: "JFK"}
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.RecordRoute(ctx, sighting("AAL100", "A12345", lax, now.AddDate(0, 0, -i))))
	}

	scorer, err := priority.NewScorer(h, nil)
	require.NoError(t, err)

	d := scorer.Score(ctx, priority.Flight{Callsign: "AAL100", ICAOHex: "A12345"}, 100)
	assert.Equal(t, -80, d.Score)
	assert.False(t, d.Admit)
	assert.Equal(t, []string{"VERY_COMMON(LAX-JFK, seen 3x)"}, d.Reasons)
}
