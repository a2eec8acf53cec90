// Package echo provides Echo middleware for route-lookup quota enforcement
package echo

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// DecisionKey is the echo context key holding the admission routequota.Decision
const DecisionKey = "routequota_decision"

// CallsignExtractor extracts the flight callsign from an Echo context
// Return empty string to skip priority-carrier narrowing
type CallsignExtractor func(c echo.Context) string

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
	OnQuotaDenied func(c echo.Context, decision routequota.Decision) error

	// OnLowQuota is called when the request is admitted inside the low-quota band.
	// If nil, a default X-Quota-Warning-Remaining header is added.
	OnLowQuota func(c echo.Context, decision routequota.Decision)
}

// Middleware creates an Echo middleware that admits a request only when the
// tracker allows one more call. The attempt is recorded after the handler
// returns, including when it returns an error.
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Tracker == nil {
		panic("routequota/echo: Config.Tracker is required")
	}
	if cfg.API == "" {
		cfg.API = routequota.DefaultAPI
	}
	if cfg.QuotaExceededStatusCode == 0 {
		cfg.QuotaExceededStatusCode = http.StatusTooManyRequests
	}
	if cfg.OnLowQuota == nil {
		cfg.OnLowQuota = defaultLowQuota
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

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

			c.Set(DecisionKey, decision)
			err := next(c)
			cfg.Tracker.RecordRequest(ctx, cfg.API)
			return err
		}
	}
}

func defaultQuotaDenied(c echo.Context, d routequota.Decision, statusCode int) error {
	return c.JSON(statusCode, map[string]interface{}{
		"error":     "Quota denied",
		"reason":    d.Reason,
		"remaining": d.Remaining,
		"total":     d.Total,
	})
}

func defaultLowQuota(c echo.Context, d routequota.Decision) {
	c.Response().Header().Set("X-Quota-Warning-Remaining", strconv.Itoa(d.Remaining))
}

// FromHeader returns a CallsignExtractor that reads a header
func FromHeader(headerName string) CallsignExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a CallsignExtractor that reads a path parameter
func FromParam(paramName string) CallsignExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a CallsignExtractor that reads a query parameter
func FromQuery(queryName string) CallsignExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(queryName)
	}
}
