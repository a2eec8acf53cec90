// Package config loads the routequota application configuration.
//
// Values are layered: struct defaults, then an optional YAML file, then
// ROUTEQUOTA_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/mihaimyh/routequota/pkg/priority"
)

// Config is the full application configuration
type Config struct {
	Quota    QuotaConfig    `koanf:"quota"`
	Storage  StorageConfig  `koanf:"storage"`
	History  HistoryConfig  `koanf:"history"`
	Priority PriorityConfig `koanf:"priority"`
	Lookup   LookupConfig   `koanf:"lookup"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// QuotaConfig mirrors routequota.Config
type QuotaConfig struct {
	Totals           map[string]int `koanf:"totals"`
	LowQuotaWarning  int            `koanf:"low_quota_warning"`
	PriorityReserve  int            `koanf:"priority_reserve"`
	PriorityCarriers []string       `koanf:"priority_carriers"`
	// Timezone names the IANA zone whose calendar month is counted ("" = local)
	Timezone string `koanf:"timezone"`

	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// CircuitBreakerConfig guards the storage backend
type CircuitBreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold int           `koanf:"failure_threshold"`
	ResetTimeout     time.Duration `koanf:"reset_timeout"`
}

// Storage backends
const (
	BackendFile      = "file"
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// StorageConfig selects and configures the counter backend
type StorageConfig struct {
	Backend string `koanf:"backend"`
	// Cache puts a redis hot tier in front of Backend ("" or "redis")
	Cache string `koanf:"cache"`

	File      FileConfig      `koanf:"file"`
	Redis     RedisConfig     `koanf:"redis"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Firestore FirestoreConfig `koanf:"firestore"`
}

// FileConfig configures the JSON counter file
type FileConfig struct {
	Path string `koanf:"path"`
}

// RedisConfig configures the Redis backend
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// PostgresConfig configures the PostgreSQL backend
type PostgresConfig struct {
	DSN string `koanf:"dsn"`
}

// FirestoreConfig configures the Firestore backend
type FirestoreConfig struct {
	ProjectID  string `koanf:"project_id"`
	Collection string `koanf:"collection"`
	// ClockSyncInterval bounds how often the server clock is measured
	ClockSyncInterval time.Duration `koanf:"clock_sync_interval"`
}

// HistoryConfig configures the flight log used for repeat damping
type HistoryConfig struct {
	// Path is the SQLite flight log ("" keeps history in memory)
	Path string `koanf:"path"`
}

// PriorityConfig carries the scorer weights and threshold bands. Values are
// used as given, so a zero bonus or penalty switches that signal off.
type PriorityConfig struct {
	Baseline           int `koanf:"baseline"`
	MilitaryBonus      int `koanf:"military_bonus"`
	PrivateBonus       int `koanf:"private_bonus"`
	CargoBonus         int `koanf:"cargo_bonus"`
	InternationalBonus int `koanf:"international_bonus"`

	VeryCommonPenalty int `koanf:"very_common_penalty"`
	CommonPenalty     int `koanf:"common_penalty"`
	RepeatPenalty     int `koanf:"repeat_penalty"`

	RepeatWindow       time.Duration `koanf:"repeat_window"`
	VeryCommonMinCount int           `koanf:"very_common_min_count"`
	RepeatMinCount     int           `koanf:"repeat_min_count"`

	// Bands replaces the remaining-quota steps; FloorThreshold applies below the last
	Bands          []priority.Band `koanf:"bands"`
	FloorThreshold int             `koanf:"floor_threshold"`

	// CommonRoutes replaces the built-in list when non-empty ("YVR-YYZ,...")
	CommonRoutes []string `koanf:"common_routes"`
}

// LookupConfig configures route providers and the route cache
type LookupConfig struct {
	AviationStack AviationStackConfig `koanf:"aviationstack"`
	ADSBExchange  ADSBExchangeConfig  `koanf:"adsbexchange"`
	CacheSize     int                 `koanf:"cache_size"`
	CacheTTL      time.Duration       `koanf:"cache_ttl"`
}

// AviationStackConfig configures the metered provider
type AviationStackConfig struct {
	AccessKey         string        `koanf:"access_key"`
	Endpoint          string        `koanf:"endpoint"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// ADSBExchangeConfig configures the free fallback provider
type ADSBExchangeConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Endpoint string        `koanf:"endpoint"`
	Timeout  time.Duration `koanf:"timeout"`
}

// ServerConfig configures `routequota serve`
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures zerolog
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	for api, total := range c.Quota.Totals {
		if api == "month" {
			return fmt.Errorf("quota.totals: %q is reserved", api)
		}
		if total < 0 {
			return fmt.Errorf("quota.totals.%s must be non-negative", api)
		}
	}
	if c.Quota.LowQuotaWarning < 0 || c.Quota.PriorityReserve < 0 {
		return fmt.Errorf("quota thresholds must be non-negative")
	}
	if c.Quota.Timezone != "" {
		if _, err := time.LoadLocation(c.Quota.Timezone); err != nil {
			return fmt.Errorf("quota.timezone: %w", err)
		}
	}

	switch c.Storage.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	case BackendFirestore:
		if c.Storage.Firestore.ProjectID == "" {
			return fmt.Errorf("storage.firestore.project_id is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Storage.Cache {
	case "":
	case BackendRedis:
		if c.Storage.Backend == BackendRedis {
			return fmt.Errorf("storage.cache cannot be redis when the backend is redis")
		}
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown storage.cache %q", c.Storage.Cache)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// Location resolves Quota.Timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	if c.Quota.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Quota.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
