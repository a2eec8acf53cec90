// Package http provides net/http middleware that gates a metered handler on
// the monthly route-lookup quota.
package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// CallsignExtractor extracts the flight callsign from an HTTP request
// Return empty string to skip priority-carrier narrowing
type CallsignExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Tracker is the quota tracker instance (required)
	Tracker *routequota.Tracker

	// API is the metered API the wrapped handler calls
	// Default: routequota.DefaultAPI
	API string

	// GetCallsign extracts the callsign from the request
	// If nil, no callsign is passed to CanRequest
	GetCallsign CallsignExtractor

	// OnQuotaDenied is called when the tracker refuses the request
	// If nil, returns 429 Too Many Requests
	OnQuotaDenied func(w http.ResponseWriter, r *http.Request, decision routequota.Decision)
}

type contextKey string

// DecisionKey is the context key holding the admission routequota.Decision
const DecisionKey contextKey = "routequota:decision"

// Middleware creates an HTTP middleware that admits a request only when the
// tracker allows one more call, and records one attempt after the wrapped
// handler has run, whatever it returned.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Tracker == nil {
		panic("routequota/http: Config.Tracker is required")
	}
	if config.API == "" {
		config.API = routequota.DefaultAPI
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			callsign := ""
			if config.GetCallsign != nil {
				callsign = config.GetCallsign(r)
			}

			decision := config.Tracker.CanRequest(ctx, config.API, callsign)
			if !decision.Allowed {
				if config.OnQuotaDenied != nil {
					config.OnQuotaDenied(w, r, decision)
				} else {
					msg := fmt.Sprintf("Quota denied: %s", decision.Reason)
					http.Error(w, msg, http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, DecisionKey, decision)))
			config.Tracker.RecordRequest(ctx, config.API)
		})
	}
}

// HandlerFunc creates an HTTP middleware that enforces quota limits (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// DecisionFromContext returns the admission decision stored by Middleware
func DecisionFromContext(ctx context.Context) (routequota.Decision, bool) {
	d, ok := ctx.Value(DecisionKey).(routequota.Decision)
	return d, ok
}

// Common extractors for convenience

// FromQuery returns a CallsignExtractor that reads a query parameter
func FromQuery(param string) CallsignExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(param)
	}
}

// FromHeader returns a CallsignExtractor that reads a header
func FromHeader(headerName string) CallsignExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}
