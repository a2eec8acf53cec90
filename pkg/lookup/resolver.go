package lookup

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mihaimyh/routequota/pkg/priority"
	"github.com/mihaimyh/routequota/pkg/routequota"
)

// QuotaTracker is the part of routequota.Tracker the resolver needs
type QuotaTracker interface {
	Remaining(ctx context.Context, api string) int
	CanRequest(ctx context.Context, api, callsign string) routequota.Decision
	RecordRequest(ctx context.Context, api string) int
}

// Scorer is the part of priority.Scorer the resolver needs
type Scorer interface {
	Score(ctx context.Context, flight priority.Flight, remaining int) priority.Decision
}

// ResolverConfig wires the resolver's collaborators
type ResolverConfig struct {
	// Tracker and Scorer gate the metered provider; both are required when Metered is set
	Tracker QuotaTracker
	Scorer  Scorer

	// Metered is the quota-consuming provider (optional)
	Metered RouteProvider
	// API is the quota name Metered is counted under (default: Metered.Name())
	API string

	// Fallbacks are free providers tried in order when Metered finds nothing
	Fallbacks []RouteProvider

	// Cache holds definitive results per callsign (optional)
	Cache *RouteCache
	// Recorder receives every found route (optional)
	Recorder RouteRecorder

	TimeSource routequota.TimeSource
	Logger     routequota.Logger
}

// Resolution is the outcome of resolving one flight
type Resolution struct {
	Flight   priority.Flight      `json:"flight"`
	Result   Result               `json:"result"`
	Cached   bool                 `json:"cached"`
	Priority *priority.Decision   `json:"priority,omitempty"`
	Quota    *routequota.Decision `json:"quota,omitempty"`
	// Consumed is set when a metered request was sent and counted
	Consumed  bool `json:"consumed"`
	Remaining int  `json:"remaining,omitempty"`
}

// Resolver looks up routes, spending metered quota only on admitted flights
type Resolver struct {
	config ResolverConfig

	// inflight collapses concurrent resolutions of one callsign into one lookup
	inflight singleflight.Group
}

// NewResolver creates a resolver
func NewResolver(config ResolverConfig) (*Resolver, error) {
	if config.Metered != nil {
		if config.Tracker == nil || config.Scorer == nil {
			return nil, errors.New("lookup: metered provider requires a tracker and a scorer")
		}
		if config.API == "" {
			config.API = config.Metered.Name()
		}
	}
	if config.TimeSource == nil {
		config.TimeSource = routequota.SystemTimeSource
	}
	if config.Logger == nil {
		config.Logger = &routequota.NoopLogger{}
	}
	return &Resolver{config: config}, nil
}

// Resolve finds the route for flight:
// cache, then the metered provider if the scorer and quota admit it, then
// the free fallbacks. A metered attempt is counted once it is sent, whatever
// it returns.
func (r *Resolver) Resolve(ctx context.Context, flight priority.Flight) Resolution {
	flight = flight.Normalized()
	res := Resolution{Flight: flight}
	if flight.Callsign == "" {
		res.Result = Skipped("", "no callsign")
		return res
	}

	v, _, _ := r.inflight.Do(flight.Callsign, func() (interface{}, error) {
		return r.resolve(ctx, flight), nil
	})
	return v.(Resolution)
}

func (r *Resolver) resolve(ctx context.Context, flight priority.Flight) Resolution {
	res := Resolution{Flight: flight}
	if r.config.Cache != nil {
		if cached, ok := r.config.Cache.Get(flight.Callsign); ok {
			res.Result = cached
			res.Cached = true
			return res
		}
	}

	var results []Result
	if r.config.Metered != nil {
		results = append(results, r.lookupMetered(ctx, flight, &res))
	}
	if len(results) == 0 || results[0].Outcome != OutcomeFound {
		for _, p := range r.config.Fallbacks {
			result := p.Lookup(ctx, flight)
			results = append(results, result)
			if result.Outcome == OutcomeFound {
				break
			}
		}
	}
	res.Result = combine(results)

	if res.Result.Outcome == OutcomeFound {
		r.config.Logger.Info("route resolved",
			routequota.CallsignField(flight.Callsign),
			routequota.Field{Key: "route", Value: res.Result.Route.String()},
			routequota.Field{Key: "provider", Value: res.Result.Provider},
		)
		r.record(ctx, flight, res.Result.Route)
	}
	if r.config.Cache != nil {
		r.config.Cache.Set(flight.Callsign, res.Result)
	}
	return res
}

func (r *Resolver) lookupMetered(ctx context.Context, flight priority.Flight, res *Resolution) Result {
	api := r.config.API
	remaining := r.config.Tracker.Remaining(ctx, api)

	pd := r.config.Scorer.Score(ctx, flight, remaining)
	res.Priority = &pd
	if !pd.Admit {
		r.config.Logger.Debug("skipped metered lookup",
			routequota.CallsignField(flight.Callsign),
			routequota.Field{Key: "reason", Value: pd.Reason},
		)
		return Skipped(r.config.Metered.Name(), pd.Reason)
	}

	qd := r.config.Tracker.CanRequest(ctx, api, flight.Callsign)
	res.Quota = &qd
	if !qd.Allowed {
		r.config.Logger.Info("skipped metered lookup",
			routequota.CallsignField(flight.Callsign),
			routequota.Field{Key: "reason", Value: qd.Reason},
		)
		return Skipped(r.config.Metered.Name(), qd.Reason)
	}

	r.config.Logger.Info("priority metered lookup",
		routequota.CallsignField(flight.Callsign),
		routequota.Field{Key: "reason", Value: pd.Reason},
	)
	result := r.config.Metered.Lookup(ctx, flight)
	if result.Attempted() {
		res.Remaining = r.config.Tracker.RecordRequest(ctx, api)
		res.Consumed = true
	}
	return result
}

func (r *Resolver) record(ctx context.Context, flight priority.Flight, route priority.Route) {
	if r.config.Recorder == nil {
		return
	}
	now, err := r.config.TimeSource.Now(ctx)
	if err != nil {
		now = time.Now()
	}
	if err := r.config.Recorder.RecordRoute(ctx, priority.Sighting{Flight: flight, Route: route, Seen: now}); err != nil {
		r.config.Logger.Warn("failed to record route",
			routequota.CallsignField(flight.Callsign),
			routequota.ErrorField(err),
		)
	}
}

// combine picks the overall result: any found route wins, then a transient
// failure (so the flight is retried next cycle), then not found, then skipped.
func combine(results []Result) Result {
	best := Skipped("", "no provider")
	rank := func(o Outcome) int {
		switch o {
		case OutcomeFound:
			return 3
		case OutcomeNetworkError, OutcomeTimeout:
			return 2
		case OutcomeNotFound:
			return 1
		default:
			return 0
		}
	}
	for i, result := range results {
		if i == 0 || rank(result.Outcome) > rank(best.Outcome) {
			best = result
		}
	}
	return best
}
