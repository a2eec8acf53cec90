// Package sqlite provides the flight log: a SQLite table of sightings that
// doubles as the priority.RouteHistory used for repeat-route damping.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mihaimyh/routequota/pkg/priority"
)

// timeLayout matches SQLite's CURRENT_TIMESTAMP so stored and default values compare as text.
const timeLayout = "2006-01-02 15:04:05"

// History implements priority.RouteHistory over the flights table
type History struct {
	db *sql.DB
}

// Stats summarizes how many logged flights have a resolved route
type Stats struct {
	Total           int     `json:"total"`
	WithRoutes      int     `json:"with_routes"`
	RoutePercentage float64 `json:"route_percentage"`
}

// Open opens (creating if needed) the flight log at path
func Open(ctx context.Context, path string) (*History, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open flight log: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate flight log: %w", err)
	}
	return &History{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS flights (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			icao TEXT NOT NULL,
			callsign TEXT,
			first_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			origin_country TEXT,
			origin_airport TEXT,
			destination_airport TEXT,
			aircraft_type TEXT,
			registration TEXT,
			altitude_max INTEGER,
			speed_max INTEGER,
			messages_total INTEGER,
			flight_date DATE DEFAULT (DATE('now')),
			UNIQUE(icao, callsign, flight_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_callsign ON flights(callsign)`,
		`CREATE INDEX IF NOT EXISTS idx_flight_date ON flights(flight_date)`,
		`CREATE INDEX IF NOT EXISTS idx_route ON flights(origin_airport, destination_airport)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordRoute logs a sighting, one row per aircraft, callsign and day.
// A later sighting the same day extends last_seen and fills in a route
// that was not known yet; it never erases one.
func (h *History) RecordRoute(ctx context.Context, s priority.Sighting) error {
	f := s.Flight.Normalized()
	seen := s.Seen
	if seen.IsZero() {
		seen = time.Now()
	}
	seen = seen.UTC()

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO flights (icao, callsign, registration, first_seen, last_seen,
			origin_airport, destination_airport, flight_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(icao, callsign, flight_date) DO UPDATE SET
			last_seen = excluded.last_seen,
			registration = COALESCE(excluded.registration, flights.registration),
			origin_airport = COALESCE(excluded.origin_airport, flights.origin_airport),
			destination_airport = COALESCE(excluded.destination_airport, flights.destination_airport)`,
		f.ICAOHex,
		nullString(f.Callsign),
		nullString(f.Registration),
		seen.Format(timeLayout),
		seen.Format(timeLayout),
		nullString(strings.ToUpper(s.Route.Origin)),
		nullString(strings.ToUpper(s.Route.Destination)),
		seen.Format("2006-01-02"),
	)
	if err != nil {
		return fmt.Errorf("failed to record sighting: %w", err)
	}
	return nil
}

// DominantRoute implements priority.RouteHistory
func (h *History) DominantRoute(ctx context.Context, callsign string, since time.Time) (*priority.RouteObservation, error) {
	var obs priority.RouteObservation
	err := h.db.QueryRowContext(ctx, `
		SELECT origin_airport, destination_airport, COUNT(*) AS count
		FROM flights
		WHERE callsign = ? AND first_seen >= ?
			AND origin_airport IS NOT NULL AND destination_airport IS NOT NULL
		GROUP BY origin_airport, destination_airport
		ORDER BY count DESC, origin_airport, destination_airport
		LIMIT 1`,
		callsign, since.UTC().Format(timeLayout),
	).Scan(&obs.Origin, &obs.Destination, &obs.Count)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dominant route: %w", err)
	}
	return &obs, nil
}

// RouteCount implements priority.RouteHistory
func (h *History) RouteCount(ctx context.Context, route priority.Route) (int, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM flights WHERE origin_airport = ? AND destination_airport = ?`,
		route.Origin, route.Destination,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count route: %w", err)
	}
	return n, nil
}

// Stats counts flights first seen since the given time and how many have routes
func (h *History) Stats(ctx context.Context, since time.Time) (Stats, error) {
	var st Stats
	var withRoutes sql.NullInt64
	err := h.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			SUM(CASE WHEN origin_airport IS NOT NULL THEN 1 ELSE 0 END)
		FROM flights
		WHERE first_seen >= ?`,
		since.UTC().Format(timeLayout),
	).Scan(&st.Total, &withRoutes)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query flight stats: %w", err)
	}
	st.WithRoutes = int(withRoutes.Int64)
	if st.Total > 0 {
		st.RoutePercentage = float64(st.WithRoutes) / float64(st.Total) * 100
	}
	return st, nil
}

// Close closes the underlying database
func (h *History) Close() error {
	return h.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
