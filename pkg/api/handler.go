// Package api exposes the quota tracker, priority scorer and route resolver
// as a small JSON HTTP API.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/mihaimyh/routequota/pkg/priority"
	"github.com/mihaimyh/routequota/pkg/routequota"
)

const maxBodyBytes = 1 << 16

var (
	errUnknownAPI      = errors.New("unknown api")
	errMissingCallsign = errors.New("callsign is required")
)

// Handler provides HTTP endpoints for quota inspection and route decisions
type Handler struct {
	config Config
}

// Routes builds the chi router:
//
//	GET  /quota
//	GET  /quota/{api}/check?callsign=
//	POST /quota/{api}/record
//	POST /priority/score          (with a Scorer)
//	GET  /routes/{callsign}       (with a Resolver)
//	GET  /metrics                 (with a MetricsHandler)
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Route("/quota", func(r chi.Router) {
		r.Get("/", h.GetStatus)
		r.Get("/{api}/check", h.CheckQuota)
		r.Post("/{api}/record", h.RecordRequest)
	})

	if h.config.Scorer != nil {
		r.Post("/priority/score", h.ScoreFlight)
	}
	if h.config.Resolver != nil {
		r.Get("/routes/{callsign}", h.ResolveRoute)
	}
	if h.config.MetricsHandler != nil {
		r.Handle("/metrics", h.config.MetricsHandler)
	}
	return r
}

// GetStatus returns usage for every configured API
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.config.Tracker.Status(r.Context()))
}

// CheckQuota reports whether one more call may be made, without recording it
func (h *Handler) CheckQuota(w http.ResponseWriter, r *http.Request) {
	api, ok := h.knownAPI(r)
	if !ok {
		h.handleError(w, r, fmt.Errorf("%w: %s", errUnknownAPI, api), http.StatusNotFound)
		return
	}

	decision := h.config.Tracker.CanRequest(r.Context(), api, r.URL.Query().Get("callsign"))
	h.writeJSON(w, http.StatusOK, decision)
}

// RecordRequest counts one attempted call against the API
func (h *Handler) RecordRequest(w http.ResponseWriter, r *http.Request) {
	api, ok := h.knownAPI(r)
	if !ok {
		h.handleError(w, r, fmt.Errorf("%w: %s", errUnknownAPI, api), http.StatusNotFound)
		return
	}

	remaining := h.config.Tracker.RecordRequest(r.Context(), api)
	h.writeJSON(w, http.StatusOK, RecordResponse{API: api, Remaining: remaining})
}

// ScoreFlight runs the priority scorer for the flight in the request body
func (h *Handler) ScoreFlight(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	remaining := 0
	if req.Remaining != nil {
		remaining = *req.Remaining
	} else {
		remaining = h.config.Tracker.Remaining(r.Context(), h.config.API)
	}

	decision := h.config.Scorer.Score(r.Context(), priority.Flight{
		Callsign:     req.Callsign,
		ICAOHex:      req.ICAOHex,
		Registration: req.Registration,
	}, remaining)
	h.writeJSON(w, http.StatusOK, decision)
}

// ResolveRoute runs the full lookup pipeline for one flight
func (h *Handler) ResolveRoute(w http.ResponseWriter, r *http.Request) {
	callsign := strings.TrimSpace(chi.URLParam(r, "callsign"))
	if callsign == "" {
		h.handleError(w, r, errMissingCallsign, http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	resolution := h.config.Resolver.Resolve(r.Context(), priority.Flight{
		Callsign:     callsign,
		ICAOHex:      query.Get("icao_hex"),
		Registration: query.Get("registration"),
	})
	h.writeJSON(w, http.StatusOK, resolution)
}

func (h *Handler) knownAPI(r *http.Request) (string, bool) {
	api := chi.URLParam(r, "api")
	for _, name := range h.config.Tracker.APIs() {
		if name == api {
			return api, true
		}
	}
	return api, false
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.config.Logger.Warn("failed to encode response", routequota.ErrorField(err))
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	h.writeJSON(w, statusCode, ErrorResponse{Error: err.Error()})
}
