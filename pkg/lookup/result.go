// Package lookup resolves flight routes through metered and free providers,
// spending route-lookup quota only on flights the priority scorer admits.
package lookup

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mihaimyh/routequota/pkg/priority"
)

// ErrNoAPIKey is returned when a metered provider is built without a key
var ErrNoAPIKey = errors.New("lookup: api key is required")

// Outcome tags a lookup result
type Outcome int

const (
	// OutcomeFound means the provider returned a route
	OutcomeFound Outcome = iota
	// OutcomeNotFound means the provider answered but had no route
	OutcomeNotFound
	// OutcomeNetworkError is a transient failure worth retrying next cycle
	OutcomeNetworkError
	// OutcomeTimeout is a transient failure worth retrying next cycle
	OutcomeTimeout
	// OutcomeSkipped means no request was sent
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeNetworkError:
		return "network_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalJSON encodes the outcome by name
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// Result is the outcome of one provider lookup
type Result struct {
	Outcome  Outcome        `json:"outcome"`
	Provider string         `json:"provider,omitempty"`
	Route    priority.Route `json:"route"`
	Reason   string         `json:"reason,omitempty"`
	Err      error          `json:"-"`
}

// Found returns a result carrying route
func Found(provider string, route priority.Route) Result {
	return Result{Outcome: OutcomeFound, Provider: provider, Route: route}
}

// NotFound returns a definitive "no route" result
func NotFound(provider string) Result {
	return Result{Outcome: OutcomeNotFound, Provider: provider}
}

// NetworkError returns a transient failure result
func NetworkError(provider string, err error) Result {
	return Result{Outcome: OutcomeNetworkError, Provider: provider, Err: err, Reason: errString(err)}
}

// Timeout returns a transient timeout result
func Timeout(provider string, err error) Result {
	return Result{Outcome: OutcomeTimeout, Provider: provider, Err: err, Reason: errString(err)}
}

// Skipped returns a result for a lookup that was never sent
func Skipped(provider, reason string) Result {
	return Result{Outcome: OutcomeSkipped, Provider: provider, Reason: reason}
}

// Transient reports whether the lookup failed in a way worth retrying
func (r Result) Transient() bool {
	return r.Outcome == OutcomeNetworkError || r.Outcome == OutcomeTimeout
}

// Attempted reports whether a request actually went out
func (r Result) Attempted() bool {
	return r.Outcome != OutcomeSkipped
}

// RouteProvider looks up the route a flight is flying
type RouteProvider interface {
	Name() string
	Lookup(ctx context.Context, flight priority.Flight) Result
}

// RouteRecorder persists resolved routes, e.g. into the flight log
type RouteRecorder interface {
	RecordRoute(ctx context.Context, s priority.Sighting) error
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
