package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/routequota/pkg/lookup"
	"github.com/mihaimyh/routequota/pkg/priority"
	"github.com/mihaimyh/routequota/pkg/routequota"
)

// Config holds configuration for the quota API handler
type Config struct {
	// Tracker is the quota tracker instance (required)
	Tracker *routequota.Tracker

	// Scorer enables POST /priority/score when set
	Scorer *priority.Scorer

	// Resolver enables GET /routes/{callsign} when set
	Resolver *lookup.Resolver

	// API is the metered API whose remaining quota feeds the scorer
	// Default: routequota.DefaultAPI
	API string

	// MetricsHandler is mounted at /metrics when set (e.g. promhttp.Handler())
	MetricsHandler http.Handler

	// Logger receives request failures
	// If nil, a NoopLogger is used
	Logger routequota.Logger

	// OnError handles errors (bad input, unknown api, ...)
	// If nil, uses default JSON error handling
	OnError func(http.ResponseWriter, *http.Request, error)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Tracker == nil {
		return fmt.Errorf("tracker is required")
	}
	return nil
}

// NewHandler creates a new quota API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.API == "" {
		config.API = routequota.DefaultAPI
	}
	if config.Logger == nil {
		config.Logger = &routequota.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}
