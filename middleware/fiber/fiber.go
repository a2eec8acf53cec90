// Package fiber provides Fiber middleware for route-lookup quota enforcement
package fiber

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// DecisionKey is the fiber locals key holding the admission routequota.Decision
const DecisionKey = "routequota_decision"

// CallsignExtractor extracts the flight callsign from a Fiber context
// Return empty string to skip priority-carrier narrowing
type CallsignExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration
type Config struct {
	// Tracker is the quota tracker instance
	Tracker *routequota.Tracker

	// API is the metered API the handler calls
	// Default: routequota.DefaultAPI
	API string

	// GetCallsign extracts the callsign from context (optional)
	GetCallsign CallsignExtractor

	// QuotaExceededStatusCode is the HTTP status code to return when the tracker denies
	// Default: 429 (Too Many Requests)
	QuotaExceededStatusCode int

	// OnQuotaDenied is called when the tracker denies the request
	// If nil, uses default response: QuotaExceededStatusCode JSON with the decision
	OnQuotaDenied func(c *fiber.Ctx, decision routequota.Decision) error

	// OnLowQuota is called when the request is admitted inside the low-quota band.
	// If nil, a default X-Quota-Warning-Remaining header is added.
	OnLowQuota func(c *fiber.Ctx, decision routequota.Decision)
}

// Middleware creates a Fiber middleware that admits a request only when the
// tracker allows one more call and records the attempt once the rest of the
// chain has run
func Middleware(cfg Config) fiber.Handler {
	if cfg.Tracker == nil {
		panic("routequota/fiber: Config.Tracker is required")
	}
	if cfg.API == "" {
		cfg.API = routequota.DefaultAPI
	}
	if cfg.QuotaExceededStatusCode == 0 {
		cfg.QuotaExceededStatusCode = fiber.StatusTooManyRequests
	}
	if cfg.OnLowQuota == nil {
		cfg.OnLowQuota = defaultLowQuota
	}

	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		callsign := ""
		if cfg.GetCallsign != nil {
			callsign = cfg.GetCallsign(c)
		}

		decision := cfg.Tracker.CanRequest(ctx, cfg.API, callsign)
		if !decision.Allowed {
			if cfg.OnQuotaDenied != nil {
				return cfg.OnQuotaDenied(c, decision)
			}
			return defaultQuotaDenied(c, decision, cfg.QuotaExceededStatusCode)
		}
		if decision.Low {
			cfg.OnLowQuota(c, decision)
		}

		c.Locals(DecisionKey, decision)
		err := c.Next()
		cfg.Tracker.RecordRequest(ctx, cfg.API)
		return err
	}
}

func defaultQuotaDenied(c *fiber.Ctx, d routequota.Decision, statusCode int) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"error":     "Quota denied",
		"reason":    d.Reason,
		"remaining": d.Remaining,
		"total":     d.Total,
	})
}

func defaultLowQuota(c *fiber.Ctx, d routequota.Decision) {
	c.Set("X-Quota-Warning-Remaining", strconv.Itoa(d.Remaining))
}

// FromHeader returns a CallsignExtractor that reads a header
func FromHeader(headerName string) CallsignExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns a CallsignExtractor that reads a path parameter
func FromParam(paramName string) CallsignExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}

// FromQuery returns a CallsignExtractor that reads a query parameter
func FromQuery(queryName string) CallsignExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(queryName)
	}
}
