// Package memory provides an in-memory flight log implementing priority.RouteHistory.
// The CLI falls back to it when no flight log path is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mihaimyh/routequota/pkg/priority"
)

// History keeps one sighting per aircraft, callsign and UTC day, the same
// grain as the SQLite flight log.
type History struct {
	mu        sync.RWMutex
	sightings []priority.Sighting
	daily     map[dayKey]int
}

type dayKey struct {
	icao, callsign, date string
}

// New creates an empty history
func New() *History {
	return &History{daily: make(map[dayKey]int)}
}

// RecordRoute logs a sighting. A repeat of the same aircraft and callsign on
// the same UTC day updates the existing entry, filling in registration or
// route ends that were unknown; an empty value never erases a known one.
// Sightings without a callsign are never merged. Sightings without a
// complete route are kept but never contribute to route statistics.
func (h *History) RecordRoute(_ context.Context, s priority.Sighting) error {
	s.Flight = s.Flight.Normalized()
	s.Route.Origin = strings.ToUpper(strings.TrimSpace(s.Route.Origin))
	s.Route.Destination = strings.ToUpper(strings.TrimSpace(s.Route.Destination))
	if s.Seen.IsZero() {
		s.Seen = time.Now()
	}
	s.Seen = s.Seen.UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	if s.Callsign == "" {
		h.sightings = append(h.sightings, s)
		return nil
	}

	key := dayKey{icao: s.ICAOHex, callsign: s.Callsign, date: s.Seen.Format("2006-01-02")}
	if i, ok := h.daily[key]; ok {
		merge(&h.sightings[i], s)
		return nil
	}
	h.daily[key] = len(h.sightings)
	h.sightings = append(h.sightings, s)
	return nil
}

func merge(dst *priority.Sighting, s priority.Sighting) {
	if s.Registration != "" {
		dst.Registration = s.Registration
	}
	if s.Route.Origin != "" {
		dst.Route.Origin = s.Route.Origin
	}
	if s.Route.Destination != "" {
		dst.Route.Destination = s.Route.Destination
	}
}

// DominantRoute implements priority.RouteHistory
func (h *History) DominantRoute(_ context.Context, callsign string, since time.Time) (*priority.RouteObservation, error) {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))

	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[priority.Route]int)
	for _, s := range h.sightings {
		if s.Callsign != callsign || s.Seen.Before(since) || !s.Route.Complete() {
			continue
		}
		counts[s.Route]++
	}
	if len(counts) == 0 {
		return nil, nil
	}

	routes := make([]priority.Route, 0, len(counts))
	for r := range counts {
		routes = append(routes, r)
	}
	// Highest count first, ties broken by route for stable results
	sort.Slice(routes, func(i, j int) bool {
		if counts[routes[i]] != counts[routes[j]] {
			return counts[routes[i]] > counts[routes[j]]
		}
		return routes[i].String() < routes[j].String()
	})

	return &priority.RouteObservation{Route: routes[0], Count: counts[routes[0]]}, nil
}

// RouteCount implements priority.RouteHistory
func (h *History) RouteCount(_ context.Context, route priority.Route) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, s := range h.sightings {
		if s.Route == route {
			n++
		}
	}
	return n, nil
}

// Len returns the number of logged sightings after same-day merging
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sightings)
}
