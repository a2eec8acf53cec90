package lookup

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mihaimyh/routequota/pkg/priority"
)

// ADSBExchangeName is the provider name
const ADSBExchangeName = "adsbexchange"

// DefaultADSBExchangeEndpoint is the public v2 API base
const DefaultADSBExchangeEndpoint = "https://api.adsbexchange.com/v2"

// ADSBExchangeConfig holds ADS-B Exchange provider configuration
type ADSBExchangeConfig struct {
	Endpoint   string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// ADSBExchange is a free, unmetered route provider keyed by ICAO address
type ADSBExchange struct {
	endpoint string
	timeout  time.Duration
	header   http.Header
	client   *http.Client
}

// NewADSBExchange creates the provider
func NewADSBExchange(config ADSBExchangeConfig) *ADSBExchange {
	if config.Endpoint == "" {
		config.Endpoint = DefaultADSBExchangeEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = "routequota (flight tracker)"
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &ADSBExchange{
		endpoint: strings.TrimRight(config.Endpoint, "/"),
		timeout:  config.Timeout,
		header:   http.Header{"User-Agent": []string{config.UserAgent}},
		client:   config.HTTPClient,
	}
}

// Name implements RouteProvider
func (x *ADSBExchange) Name() string {
	return ADSBExchangeName
}

type adsbExchangeResponse struct {
	AC []struct {
		R string `json:"r"`
	} `json:"ac"`
}

// Lookup implements RouteProvider. The route is read from the first
// aircraft's "r" field when it has the form ORIG-DEST.
func (x *ADSBExchange) Lookup(ctx context.Context, flight priority.Flight) Result {
	hex := strings.ToLower(strings.TrimSpace(flight.ICAOHex))
	if hex == "" {
		return Skipped(x.Name(), "no icao address")
	}

	var body adsbExchangeResponse
	err := getJSON(ctx, x.client, x.timeout, x.endpoint+"/icao/"+hex+"/", x.header, &body)
	switch {
	case isStatus(err, http.StatusNotFound):
		return NotFound(x.Name())
	case err != nil:
		return classify(x.Name(), err)
	case len(body.AC) == 0:
		return NotFound(x.Name())
	}

	route, ok := priority.ParseRoute(body.AC[0].R)
	if !ok {
		return NotFound(x.Name())
	}
	return Found(x.Name(), route)
}
