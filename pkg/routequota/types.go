package routequota

import (
	"context"
	"fmt"
	"time"
)

// DefaultAPI is the paid route-lookup API the defaults are sized for.
const DefaultAPI = "aviationstack"

// Default policy constants.
const (
	// DefaultMonthlyTotal is the aviationstack free tier allowance
	DefaultMonthlyTotal = 100
	// DefaultLowQuotaWarning is the remaining count at or below which a low-quota advisory is emitted
	DefaultLowQuotaWarning = 10
	// DefaultPriorityReserve is the remaining count at or below which only priority carriers are admitted
	DefaultPriorityReserve = 20
)

// DefaultPriorityCarriers lists the airline designators admitted inside the priority reserve.
var DefaultPriorityCarriers = []string{
	"ACA",        // Air Canada
	"WJA", "WEN", // WestJet
	"UAL", // United
	"DAL", // Delta
	"AAL", // American
	"ASA", // Alaska
	"JBU", // JetBlue
}

// Config holds quota tracker configuration
type Config struct {
	// Totals maps API names to their monthly call allowance.
	// An API missing from Totals has a total of zero and is always denied.
	Totals map[string]int

	// PriorityCarriers are callsign prefixes (ICAO airline designators) that
	// may still be admitted once remaining quota drops to PriorityReserve.
	PriorityCarriers []string

	// LowQuotaWarning is the inclusive remaining count that triggers a
	// low-quota advisory (DefaultConfig: 10, 0 disables). Advisory only,
	// never a denial.
	LowQuotaWarning int

	// PriorityReserve is the inclusive remaining count below which
	// non-priority callsigns are denied (DefaultConfig: 20, 0 disables).
	PriorityReserve int

	// Location defines the calendar used for the monthly reset (default: time.Local)
	Location *time.Location

	// TimeSource provides "now" for month boundaries. If nil, the storage's
	// clock is used when it implements TimeSource, else the local clock.
	TimeSource TimeSource

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking quota operations (default: NoopMetrics)
	Metrics Metrics

	// LowQuotaHandler is called when a check runs inside the low-quota band (optional)
	LowQuotaHandler LowQuotaHandler

	// CircuitBreakerConfig configures the circuit breaker around storage
	CircuitBreakerConfig *CircuitBreakerConfig
}

// DefaultConfig returns a Config with the stock aviationstack allowance and priority list.
func DefaultConfig() Config {
	return Config{
		Totals:           map[string]int{DefaultAPI: DefaultMonthlyTotal},
		PriorityCarriers: append([]string(nil), DefaultPriorityCarriers...),
		LowQuotaWarning:  DefaultLowQuotaWarning,
		PriorityReserve:  DefaultPriorityReserve,
	}
}

// Validate checks that the configuration is consistent
func (c *Config) Validate() error {
	for api, total := range c.Totals {
		if api == "" {
			return fmt.Errorf("%w: empty api name", ErrInvalidConfig)
		}
		if api == monthField {
			return fmt.Errorf("%w: api name %q is reserved", ErrInvalidConfig, api)
		}
		if total < 0 {
			return fmt.Errorf("%w: negative total for %s", ErrInvalidConfig, api)
		}
	}
	if c.LowQuotaWarning < 0 {
		return fmt.Errorf("%w: negative low quota warning", ErrInvalidConfig)
	}
	if c.PriorityReserve < 0 {
		return fmt.Errorf("%w: negative priority reserve", ErrInvalidConfig)
	}
	return nil
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// Enabled determines if the circuit breaker is active
	Enabled bool

	// FailureThreshold is the number of consecutive failures before opening the circuit (default: 5)
	FailureThreshold int

	// ResetTimeout is the duration to wait before transitioning from Open to Half-Open (default: 30 seconds)
	ResetTimeout time.Duration
}

// LowQuotaHandler is the interface for handling low-quota advisories
type LowQuotaHandler interface {
	OnLowQuota(ctx context.Context, api string, remaining, total int)
}

// LowQuotaHandlerFunc adapts a function to LowQuotaHandler.
type LowQuotaHandlerFunc func(ctx context.Context, api string, remaining, total int)

// OnLowQuota implements LowQuotaHandler
func (f LowQuotaHandlerFunc) OnLowQuota(ctx context.Context, api string, remaining, total int) {
	f(ctx, api, remaining, total)
}

// Decision is the result of an admission check
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason"`
	Remaining int    `json:"remaining"`
	Total     int    `json:"total"`
	// Low is set when the check ran inside the low-quota advisory band
	Low bool `json:"low"`
}

// APIStatus summarizes one configured API for the current month
type APIStatus struct {
	Used       int     `json:"used"`
	Total      int     `json:"total"`
	Remaining  int     `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// Status is a read-only summary of every configured API
type Status struct {
	Month   string               `json:"month"`
	ResetAt time.Time            `json:"reset_at"`
	APIs    map[string]APIStatus `json:"apis"`
}
