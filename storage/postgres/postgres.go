// Package postgres provides a PostgreSQL implementation of the routequota.Storage interface.
// Each month is one row keyed by "YYYY-MM", so earlier months stay queryable
// after the tracker has rolled over.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

const schema = `
CREATE TABLE IF NOT EXISTS quota_state (
	month      TEXT PRIMARY KEY,
	usage      JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Storage implements routequota.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Migrate creates the quota_state table on startup
	Migrate bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		Migrate:         true,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{pool: pool, config: config}
	if config.Migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the quota_state table if it does not exist
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate quota_state: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// LoadState implements routequota.Storage. The most recent month wins.
func (s *Storage) LoadState(ctx context.Context) (*routequota.State, error) {
	var month string
	var usage map[string]int

	err := s.pool.QueryRow(ctx,
		`SELECT month, usage FROM quota_state ORDER BY month DESC LIMIT 1`,
	).Scan(&month, &usage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load quota state: %w", err)
	}

	state := routequota.NewState(month)
	for api, n := range usage {
		if n > 0 {
			state.Usage[api] = n
		}
	}
	return state, nil
}

// SaveState implements routequota.Storage
func (s *Storage) SaveState(ctx context.Context, state *routequota.State) error {
	if state == nil {
		return fmt.Errorf("state is required")
	}

	usage := state.Usage
	if usage == nil {
		usage = map[string]int{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO quota_state (month, usage, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (month) DO UPDATE
			SET usage = EXCLUDED.usage, updated_at = EXCLUDED.updated_at`,
		state.Month, usage)
	if err != nil {
		return fmt.Errorf("failed to save quota state: %w", err)
	}
	return nil
}

// Month returns the stored state for a specific month, or nil if none was recorded
func (s *Storage) Month(ctx context.Context, month string) (*routequota.State, error) {
	var usage map[string]int
	err := s.pool.QueryRow(ctx,
		`SELECT usage FROM quota_state WHERE month = $1`, month,
	).Scan(&usage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load quota month: %w", err)
	}

	state := routequota.NewState(month)
	for api, n := range usage {
		state.Usage[api] = n
	}
	return state, nil
}

// Now implements routequota.TimeSource using the database clock
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read database time: %w", err)
	}
	return now.UTC(), nil
}

// Ping checks the database connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
