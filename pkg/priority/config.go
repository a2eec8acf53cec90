package priority

import (
	"fmt"
	"time"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// Band maps remaining quota to an admission threshold: when remaining is
// strictly greater than Above, Threshold applies.
type Band struct {
	Above     int `koanf:"above"`
	Threshold int `koanf:"threshold"`
}

// Config holds scorer weights, tables and threshold bands. Start from
// DefaultConfig: numeric fields are used as given (a zero bonus or penalty
// switches that signal off), only nil tables fall back to the defaults.
type Config struct {
	Baseline           int
	MilitaryBonus      int
	PrivateBonus       int
	CargoBonus         int
	InternationalBonus int

	VeryCommonPenalty int
	CommonPenalty     int
	RepeatPenalty     int

	// VeryCommonMinCount is the all-time count at which a known common route is very common
	VeryCommonMinCount int
	// RepeatMinCount is the in-window count at which a callsign's route counts as a repeat
	RepeatMinCount int
	// RepeatWindow is how far back the dominant route of a callsign is looked up
	RepeatWindow time.Duration

	// Bands are checked in order; the first with remaining > Above wins.
	// They must be sorted by descending Above with non-decreasing Threshold.
	Bands []Band
	// FloorThreshold applies when no band matches
	FloorThreshold int

	MilitaryPatterns []string
	PrivatePatterns  []string
	// AirlinePattern matches airline-style callsigns, which are never private
	// by pattern (only by matching the registration).
	AirlinePattern   string
	CargoCarriers    map[string]string
	CommonRoutes     []Route
	DomesticPrefixes []string

	TimeSource routequota.TimeSource
	Logger     routequota.Logger
	Metrics    routequota.Metrics
}

// DefaultMilitaryPatterns match military and government callsigns.
var DefaultMilitaryPatterns = []string{
	`^RCH\d+`,      // Reach (USAF)
	`^CNV\d+`,      // Convoy
	`^EVAC\d+`,     // Evacuation
	`^SPAR\d+`,     // Special Air Resources
	`^DUKE\d+`,     // VIP
	`^VM\d+`,       // Marines
	`^NAVY\d+`,     // Navy
	`^ARMY\d+`,     // Army
	`^COAST\d+`,    // Coast Guard
	`^GUARD\d+`,    // Coast Guard
	`^CFC\d+`,      // Canadian Forces
	`^CANFORCE\d+`, // Canadian Forces
	`^RAF\d+`,      // Royal Air Force
	`^ASCOT\d+`,    // RAF transport
	`^RAFAIR\d+`,   // RAF
}

// DefaultPrivatePatterns match registrations used as callsigns.
var DefaultPrivatePatterns = []string{
	`^[A-Z]\d+[A-Z]*$`,       // N12345, N123AB
	`^(N|C|G|D|F)[A-Z0-9]+$`, // national prefixes without the dash
}

// DefaultAirlinePattern matches a three-letter designator followed by a flight number.
const DefaultAirlinePattern = `^[A-Z]{3}\d`

// DefaultCargoCarriers maps cargo airline ICAO designators to names.
var DefaultCargoCarriers = map[string]string{
	"FDX": "FedEx",
	"UPS": "UPS",
	"GTI": "Atlas Air",
	"ABX": "ABX Air",
	"ATN": "Air Transport International",
	"KFS": "Kalitta Air",
	"NCR": "National Airlines",
	"PAC": "Polar Air Cargo",
	"SWN": "Southern Air",
	"CKS": "Kalitta Charters",
	"WES": "Western Global",
	"CAO": "Air China Cargo",
	"CPA": "Cathay Pacific Cargo",
	"CLX": "Cargolux",
	"MPH": "Martinair Cargo",
}

// DefaultCommonRoutes are high-traffic pairs deprioritized once logged.
var DefaultCommonRoutes = bothWays(
	Route{"LAX", "JFK"}, Route{"SFO", "JFK"}, Route{"LAX", "EWR"}, Route{"ORD", "LAX"},
	Route{"ATL", "LAX"}, Route{"DFW", "LAX"}, Route{"DEN", "LAX"}, Route{"SEA", "LAX"},
	Route{"PHX", "LAX"},
	Route{"YVR", "YYZ"}, Route{"YVR", "YYC"}, Route{"YYZ", "YUL"},
)

// DefaultDomesticPrefixes are the ICAO address blocks of the US (A0-A7) and Canada (C0-C7).
var DefaultDomesticPrefixes = []string{
	"A0", "A1", "A2", "A3", "A4", "A5", "A6", "A7",
	"C0", "C1", "C2", "C3", "C4", "C5", "C6", "C7",
}

// DefaultBands are the remaining-quota threshold steps: >50 → 20, >20 → 50, >5 → 80, else 100.
var DefaultBands = []Band{
	{Above: 50, Threshold: 20},
	{Above: 20, Threshold: 50},
	{Above: 5, Threshold: 80},
}

func bothWays(routes ...Route) []Route {
	out := make([]Route, 0, 2*len(routes))
	for _, r := range routes {
		out = append(out, r, Route{Origin: r.Destination, Destination: r.Origin})
	}
	return out
}

// DefaultConfig returns the stock weights and tables.
func DefaultConfig() Config {
	cargo := make(map[string]string, len(DefaultCargoCarriers))
	for code, name := range DefaultCargoCarriers {
		cargo[code] = name
	}
	return Config{
		Baseline:           20,
		MilitaryBonus:      100,
		PrivateBonus:       80,
		CargoBonus:         60,
		InternationalBonus: 30,
		VeryCommonPenalty:  100,
		CommonPenalty:      50,
		RepeatPenalty:      30,
		VeryCommonMinCount: 3,
		RepeatMinCount:     3,
		RepeatWindow:       7 * 24 * time.Hour,
		Bands:              append([]Band(nil), DefaultBands...),
		FloorThreshold:     100,
		MilitaryPatterns:   append([]string(nil), DefaultMilitaryPatterns...),
		PrivatePatterns:    append([]string(nil), DefaultPrivatePatterns...),
		AirlinePattern:     DefaultAirlinePattern,
		CargoCarriers:      cargo,
		CommonRoutes:       append([]Route(nil), DefaultCommonRoutes...),
		DomesticPrefixes:   append([]string(nil), DefaultDomesticPrefixes...),
	}
}

// withDefaults fills nil tables, an empty AirlinePattern and the
// collaborators from DefaultConfig. Numeric weights are used as given, so a
// zero disables that signal. A zero FloorThreshold is only replaced along
// with nil Bands, where it would otherwise sit below the default bands.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Bands == nil {
		c.Bands = d.Bands
		if c.FloorThreshold == 0 {
			c.FloorThreshold = d.FloorThreshold
		}
	}
	if c.MilitaryPatterns == nil {
		c.MilitaryPatterns = d.MilitaryPatterns
	}
	if c.PrivatePatterns == nil {
		c.PrivatePatterns = d.PrivatePatterns
	}
	if c.AirlinePattern == "" {
		c.AirlinePattern = d.AirlinePattern
	}
	if c.CargoCarriers == nil {
		c.CargoCarriers = d.CargoCarriers
	}
	if c.CommonRoutes == nil {
		c.CommonRoutes = d.CommonRoutes
	}
	if c.DomesticPrefixes == nil {
		c.DomesticPrefixes = d.DomesticPrefixes
	}
	if c.TimeSource == nil {
		c.TimeSource = routequota.SystemTimeSource
	}
	if c.Logger == nil {
		c.Logger = &routequota.NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &routequota.NoopMetrics{}
	}
	return c
}

// Validate checks weights and band ordering.
func (c *Config) Validate() error {
	for name, v := range map[string]int{
		"military bonus":      c.MilitaryBonus,
		"private bonus":       c.PrivateBonus,
		"cargo bonus":         c.CargoBonus,
		"international bonus": c.InternationalBonus,
		"very common penalty": c.VeryCommonPenalty,
		"common penalty":      c.CommonPenalty,
		"repeat penalty":      c.RepeatPenalty,
		"very common count":   c.VeryCommonMinCount,
		"repeat count":        c.RepeatMinCount,
	} {
		if v < 0 {
			return fmt.Errorf("%w: negative %s", ErrInvalidConfig, name)
		}
	}
	if c.RepeatWindow < 0 {
		return fmt.Errorf("%w: negative repeat window", ErrInvalidConfig)
	}

	for i := 1; i < len(c.Bands); i++ {
		prev, cur := c.Bands[i-1], c.Bands[i]
		if cur.Above >= prev.Above {
			return fmt.Errorf("%w: bands must be sorted by descending remaining (%d after %d)",
				ErrInvalidConfig, cur.Above, prev.Above)
		}
		if cur.Threshold < prev.Threshold {
			return fmt.Errorf("%w: threshold must not drop as quota shrinks (%d after %d)",
				ErrInvalidConfig, cur.Threshold, prev.Threshold)
		}
	}
	if n := len(c.Bands); n > 0 && c.FloorThreshold < c.Bands[n-1].Threshold {
		return fmt.Errorf("%w: floor threshold %d below last band %d",
			ErrInvalidConfig, c.FloorThreshold, c.Bands[n-1].Threshold)
	}
	return nil
}
