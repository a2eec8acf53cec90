package priority

import (
	"context"
	"strings"
	"time"
)

// Flight identifies one sighting to be scored. Only Callsign is required.
type Flight struct {
	Callsign     string `json:"callsign"`
	ICAOHex      string `json:"icao_hex,omitempty"`
	Registration string `json:"registration,omitempty"`
}

// Normalized returns the flight with callsign and hex upper-cased and trimmed.
func (f Flight) Normalized() Flight {
	return Flight{
		Callsign:     strings.ToUpper(strings.TrimSpace(f.Callsign)),
		ICAOHex:      strings.ToUpper(strings.TrimSpace(f.ICAOHex)),
		Registration: strings.ToUpper(strings.TrimSpace(f.Registration)),
	}
}

// Route is an origin/destination airport pair.
type Route struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// Complete reports whether both ends of the route are known.
func (r Route) Complete() bool {
	return r.Origin != "" && r.Destination != ""
}

func (r Route) String() string {
	return r.Origin + "-" + r.Destination
}

// ParseRoute parses "ORIG-DEST". The second return is false for anything else.
func ParseRoute(s string) (Route, bool) {
	origin, dest, ok := strings.Cut(s, "-")
	if !ok || strings.Contains(dest, "-") {
		return Route{}, false
	}
	r := Route{
		Origin:      strings.ToUpper(strings.TrimSpace(origin)),
		Destination: strings.ToUpper(strings.TrimSpace(dest)),
	}
	return r, r.Complete()
}

// RouteObservation is a route together with how often it was seen.
type RouteObservation struct {
	Route
	Count int
}

// Sighting is one logged flight with its resolved route, if any.
type Sighting struct {
	Flight
	Route Route
	Seen  time.Time
}

// RouteHistory answers questions about previously logged routes.
// It is implemented by the flight log (see history/sqlite).
type RouteHistory interface {
	// DominantRoute returns the most frequently logged route for callsign
	// among sightings first seen at or after since. Returns nil, nil when
	// the callsign has no sightings in the window.
	DominantRoute(ctx context.Context, callsign string, since time.Time) (*RouteObservation, error)

	// RouteCount returns how many sightings have been logged for route, all time.
	RouteCount(ctx context.Context, route Route) (int, error)
}

// Decision is the outcome of scoring one flight.
type Decision struct {
	Admit     bool     `json:"admit"`
	Score     int      `json:"score"`
	Threshold int      `json:"threshold"`
	Reasons   []string `json:"reasons"`
	Reason    string   `json:"reason"`
}

// Reason tags
const (
	TagMilitary      = "MILITARY"
	TagPrivate       = "PRIVATE"
	TagCargo         = "CARGO"
	TagInternational = "INTERNATIONAL"
	TagVeryCommon    = "VERY_COMMON"
	TagCommon        = "COMMON"
	TagRepeat        = "REPEAT"
)
