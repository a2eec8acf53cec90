package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/mihaimyh/routequota/pkg/priority"
	"github.com/mihaimyh/routequota/pkg/routequota"
)

// AviationStackName is the provider name and the quota api key it is metered under
const AviationStackName = routequota.DefaultAPI

// DefaultAviationStackEndpoint is the free-tier API base
const DefaultAviationStackEndpoint = "http://api.aviationstack.com/v1"

// DefaultAirlineCodes maps ICAO airline designators to IATA codes; the API
// only accepts IATA flight numbers.
var DefaultAirlineCodes = map[string]string{
	"ACA": "AC", // Air Canada
	"WJA": "WS", // WestJet
	"WEN": "WS", // WestJet Encore
	"UAL": "UA", // United
	"DAL": "DL", // Delta
	"AAL": "AA", // American
	"ASA": "AS", // Alaska
	"JBU": "B6", // JetBlue
	"SWA": "WN", // Southwest
	"FFT": "F9", // Frontier
	"FLE": "F8", // Flair
	"SKW": "OO", // SkyWest
	"RPA": "YX", // Republic
	"ENY": "MQ", // Envoy
	"PDT": "OH", // Piedmont
	"CPZ": "CP", // Compass
}

// AviationStackConfig holds AviationStack provider configuration
type AviationStackConfig struct {
	APIKey   string
	Endpoint string

	// Timeout bounds each request (default: 5s)
	Timeout time.Duration

	// RequestsPerSecond paces outbound requests (default: 1)
	RequestsPerSecond float64
	Burst             int

	// BreakerFailures opens the breaker after this many consecutive failures (default: 3)
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open (default: 5 minutes)
	BreakerTimeout time.Duration

	// AirlineCodes overrides DefaultAirlineCodes
	AirlineCodes map[string]string

	HTTPClient *http.Client
	Logger     routequota.Logger
}

// AviationStack is the metered route provider
type AviationStack struct {
	apiKey   string
	endpoint string
	timeout  time.Duration
	airlines map[string]string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[answer]
	logger   routequota.Logger
}

// answer is what a completed request yields; not-found is not a failure
type answer struct {
	route priority.Route
	found bool
}

// NewAviationStack creates the provider. An empty key is ErrNoAPIKey.
func NewAviationStack(config AviationStackConfig) (*AviationStack, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultAviationStackEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = 3
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 5 * time.Minute
	}
	if config.AirlineCodes == nil {
		config.AirlineCodes = DefaultAirlineCodes
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Logger == nil {
		config.Logger = &routequota.NoopLogger{}
	}

	logger := config.Logger
	failures := config.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[answer](gobreaker.Settings{
		Name:        AviationStackName,
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("route provider circuit breaker state change",
				routequota.Field{Key: "provider", Value: name},
				routequota.Field{Key: "from", Value: from.String()},
				routequota.Field{Key: "to", Value: to.String()},
			)
		},
	})

	return &AviationStack{
		apiKey:   config.APIKey,
		endpoint: strings.TrimRight(config.Endpoint, "/"),
		timeout:  config.Timeout,
		airlines: config.AirlineCodes,
		client:   config.HTTPClient,
		limiter:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		breaker:  breaker,
		logger:   logger,
	}, nil
}

// Name implements RouteProvider
func (a *AviationStack) Name() string {
	return AviationStackName
}

// ToIATA converts an ICAO callsign (ACA857) into an IATA flight number (AC857).
// Callsigns of unknown airlines are returned unchanged.
func (a *AviationStack) ToIATA(callsign string) string {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if len(callsign) < 3 {
		return callsign
	}
	if iata, ok := a.airlines[callsign[:3]]; ok {
		return iata + strings.TrimSpace(callsign[3:])
	}
	return callsign
}

type aviationStackAirport struct {
	IATA string `json:"iata"`
	ICAO string `json:"icao"`
}

func (p aviationStackAirport) code() string {
	if p.IATA != "" {
		return p.IATA
	}
	return p.ICAO
}

type aviationStackResponse struct {
	Data []struct {
		Departure aviationStackAirport `json:"departure"`
		Arrival   aviationStackAirport `json:"arrival"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Lookup implements RouteProvider. A Skipped result means no request was sent
// and no quota should be recorded.
func (a *AviationStack) Lookup(ctx context.Context, flight priority.Flight) Result {
	flightIATA := a.ToIATA(flight.Callsign)
	if flightIATA == "" {
		return Skipped(a.Name(), "no callsign")
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return Skipped(a.Name(), fmt.Sprintf("rate limiter: %v", err))
	}

	ans, err := a.breaker.Execute(func() (answer, error) {
		return a.fetch(ctx, flightIATA)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Skipped(a.Name(), "circuit open")
	case err != nil:
		a.logger.Warn("route lookup failed",
			routequota.Field{Key: "provider", Value: a.Name()},
			routequota.Field{Key: "flight", Value: flightIATA},
			routequota.ErrorField(err),
		)
		return classify(a.Name(), err)
	case !ans.found:
		return NotFound(a.Name())
	default:
		return Found(a.Name(), ans.route)
	}
}

func (a *AviationStack) fetch(ctx context.Context, flightIATA string) (answer, error) {
	q := url.Values{}
	q.Set("access_key", a.apiKey)
	q.Set("flight_iata", flightIATA)

	var body aviationStackResponse
	if err := getJSON(ctx, a.client, a.timeout, a.endpoint+"/flights?"+q.Encode(), nil, &body); err != nil {
		// Keep the access key out of logs
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = a.endpoint + "/flights"
		}
		return answer{}, err
	}
	if body.Error != nil {
		return answer{}, fmt.Errorf("aviationstack error %s: %s", body.Error.Code, body.Error.Message)
	}
	if len(body.Data) == 0 {
		return answer{}, nil
	}

	first := body.Data[0]
	route := priority.Route{
		Origin:      strings.ToUpper(first.Departure.code()),
		Destination: strings.ToUpper(first.Arrival.code()),
	}
	// Half a route is still worth keeping
	if route.Origin == "" && route.Destination == "" {
		return answer{}, nil
	}
	return answer{route: route, found: true}, nil
}
