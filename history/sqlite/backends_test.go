package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/routequota/history/memory"
	"github.com/mihaimyh/routequota/pkg/priority"
	"github.com/mihaimyh/routequota/pkg/routequota"
)

type routeLog interface {
	priority.RouteHistory
	RecordRoute(ctx context.Context, s priority.Sighting) error
}

// Both flight logs must count sightings the same way, otherwise the repeat
// penalty depends on which one is configured.
func TestHistoryBackendsAgree(t *testing.T) {
	yyz := priority.Route{Origin: "YVR", Destination: "YYZ"}
	yul := priority.Route{Origin: "YVR", Destination: "YUL"}

	sightings := []priority.Sighting{
		sighting("ACA857", "C01234", yyz, day),
		sighting("ACA857", "C01234", yyz, day.Add(time.Hour)),
		sighting("ACA857", "C01234", yyz, day.Add(2*time.Hour)),
		sighting("ACA857", "C01234", yyz, day.AddDate(0, 0, -1)),
		sighting("ACA857", "C05678", yyz, day),
		sighting("ACA857", "C01234", priority.Route{}, day.AddDate(0, 0, -2)),
		sighting("ACA857", "C01234", yul, day.AddDate(0, 0, -2).Add(time.Hour)),
		sighting("ACA857", "C01234", priority.Route{}, day.AddDate(0, 0, -2).Add(2*time.Hour)),
		sighting("WJA501", "C0AAAA", yyz, day.AddDate(0, 0, -3)),
		sighting("WJA501", "C0AAAA", priority.Route{Origin: "yvr", Destination: "yyz"}, day.AddDate(0, 0, -4)),
	}

	backends := map[string]routeLog{
		"sqlite": openHistory(t),
		"memory": memory.New(),
	}

	ctx := context.Background()
	for _, h := range backends {
		for _, s := range sightings {
			require.NoError(t, h.RecordRoute(ctx, s))
		}
	}

	dominant := []struct {
		name      string
		callsign  string
		since     time.Time
		wantRoute *priority.Route
		wantCount int
	}{
		{"same-day repeats count once", "ACA857", day.AddDate(0, 0, -7), &yyz, 3},
		{"today only", "ACA857", day.Add(-time.Minute), &yyz, 2},
		{"other callsign", "WJA501", day.AddDate(0, 0, -7), &yyz, 2},
		{"unknown callsign", "UAL1", day.AddDate(0, 0, -7), nil, 0},
	}

	counts := []struct {
		route priority.Route
		want  int
	}{
		{yyz, 5},
		{yul, 1},
		{priority.Route{Origin: "LAX", Destination: "JFK"}, 0},
	}

	for name, h := range backends {
		t.Run(name, func(t *testing.T) {
			for _, tt := range dominant {
				obs, err := h.DominantRoute(ctx, tt.callsign, tt.since)
				require.NoError(t, err, tt.name)
				if tt.wantRoute == nil {
					assert.Nil(t, obs, tt.name)
					continue
				}
				require.NotNil(t, obs, tt.name)
				assert.Equal(t, *tt.wantRoute, obs.Route, tt.name)
				assert.Equal(t, tt.wantCount, obs.Count, tt.name)
			}

			for _, tt := range counts {
				n, err := h.RouteCount(ctx, tt.route)
				require.NoError(t, err)
				assert.Equal(t, tt.want, n, tt.route.String())
			}

			cfg := priority.DefaultConfig()
			cfg.TimeSource = routequota.TimeSourceFunc(func() time.Time { return day.Add(3 * time.Hour) })
			scorer, err := priority.NewScorer(h, &cfg)
			require.NoError(t, err)

			d := scorer.Score(ctx, priority.Flight{Callsign: "ACA857", ICAOHex: "C01234"}, 100)
			assert.Equal(t, -80, d.Score)
			assert.Equal(t, []string{"VERY_COMMON(YVR-YYZ, seen 3x)"}, d.Reasons)
		})
	}
}
