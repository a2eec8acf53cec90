// Package gin provides Gin middleware for route-lookup quota enforcement
package gin

import (
	"net/http"
	"strconv"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// CallsignExtractor extracts the flight callsign from a Gin context
// Return empty string to skip priority-carrier narrowing
type CallsignExtractor func(c *gongin.Context) string

// DecisionKey is the gin context key holding the admission routequota.Decision
const DecisionKey = "routequota_decision"

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
	OnQuotaDenied func(c *gongin.Context, decision routequota.Decision)

	// OnLowQuota is called when the request is admitted inside the low-quota band.
	// It should ONLY set headers; the handler has not run yet.
	// If nil, a default X-Quota-Warning-Remaining header is added.
	OnLowQuota func(c *gongin.Context, decision routequota.Decision)
}

// Middleware creates a Gin middleware that admits a request only when the
// tracker allows one more call and records the attempt after the handler ran
func Middleware(cfg Config) gongin.HandlerFunc {
	if cfg.Tracker == nil {
		panic("routequota/gin: Config.Tracker is required")
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

	return func(c *gongin.Context) {
		ctx := c.Request.Context()

		callsign := ""
		if cfg.GetCallsign != nil {
			callsign = cfg.GetCallsign(c)
		}

		decision := cfg.Tracker.CanRequest(ctx, cfg.API, callsign)
		if !decision.Allowed {
			if cfg.OnQuotaDenied != nil {
				cfg.OnQuotaDenied(c, decision)
			} else {
				defaultQuotaDenied(c, decision, cfg.QuotaExceededStatusCode)
			}
			c.Abort()
			return
		}
		if decision.Low {
			cfg.OnLowQuota(c, decision)
		}

		c.Set(DecisionKey, decision)
		c.Next()
		cfg.Tracker.RecordRequest(ctx, cfg.API)
	}
}

func defaultQuotaDenied(c *gongin.Context, d routequota.Decision, statusCode int) {
	c.JSON(statusCode, gongin.H{
		"error":     "Quota denied",
		"reason":    d.Reason,
		"remaining": d.Remaining,
		"total":     d.Total,
	})
}

func defaultLowQuota(c *gongin.Context, d routequota.Decision) {
	c.Header("X-Quota-Warning-Remaining", strconv.Itoa(d.Remaining))
}

// FromParam returns a CallsignExtractor that reads a path parameter
func FromParam(paramName string) CallsignExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a CallsignExtractor that reads a query parameter
func FromQuery(queryName string) CallsignExtractor {
	return func(c *gongin.Context) string {
		return c.Query(queryName)
	}
}

// FromHeader returns a CallsignExtractor that reads a header
func FromHeader(headerName string) CallsignExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}
