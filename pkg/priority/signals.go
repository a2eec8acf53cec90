package priority

import (
	"fmt"
	"regexp"
	"strings"
)

// signals holds the compiled classification tables.
type signals struct {
	military []*regexp.Regexp
	private  []*regexp.Regexp
	airline  *regexp.Regexp
	cargo    map[string]string
	common   map[Route]struct{}
	domestic map[string]struct{}
}

func compileSignals(c *Config) (*signals, error) {
	s := &signals{
		cargo:    make(map[string]string, len(c.CargoCarriers)),
		common:   make(map[Route]struct{}, len(c.CommonRoutes)),
		domestic: make(map[string]struct{}, len(c.DomesticPrefixes)),
	}

	var err error
	if s.military, err = compileAll(c.MilitaryPatterns); err != nil {
		return nil, err
	}
	if s.private, err = compileAll(c.PrivatePatterns); err != nil {
		return nil, err
	}
	if s.airline, err = regexp.Compile(c.AirlinePattern); err != nil {
		return nil, fmt.Errorf("%w: airline pattern: %v", ErrInvalidConfig, err)
	}

	for code, name := range c.CargoCarriers {
		s.cargo[strings.ToUpper(code)] = name
	}
	for _, r := range c.CommonRoutes {
		s.common[Route{Origin: strings.ToUpper(r.Origin), Destination: strings.ToUpper(r.Destination)}] = struct{}{}
	}
	for _, p := range c.DomesticPrefixes {
		s.domestic[strings.ToUpper(p)] = struct{}{}
	}
	return s, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidConfig, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (s *signals) isMilitary(callsign string) bool {
	for _, re := range s.military {
		if re.MatchString(callsign) {
			return true
		}
	}
	return false
}

// isPrivate: the callsign is the registration itself, or looks like one.
// Airline-style callsigns (DAL123, FDX1234) only count on an exact
// registration match.
func (s *signals) isPrivate(callsign, registration string) bool {
	if callsign == "" {
		return false
	}
	if registration != "" && callsign == strings.ReplaceAll(registration, "-", "") {
		return true
	}
	if s.airline.MatchString(callsign) {
		return false
	}
	for _, re := range s.private {
		if re.MatchString(callsign) {
			return true
		}
	}
	return false
}

func (s *signals) isCargo(callsign string) bool {
	if len(callsign) < 3 {
		return false
	}
	_, ok := s.cargo[callsign[:3]]
	return ok
}

// isInternational reports whether the ICAO address is outside the domestic blocks.
// Addresses shorter than six characters are never international.
func (s *signals) isInternational(icaoHex string) bool {
	if len(icaoHex) < 6 {
		return false
	}
	_, domestic := s.domestic[icaoHex[:2]]
	return !domestic
}

func (s *signals) isCommon(r Route) bool {
	_, ok := s.common[r]
	return ok
}

var defaultSignals = func() *signals {
	c := DefaultConfig()
	s, err := compileSignals(&c)
	if err != nil {
		panic(err)
	}
	return s
}()

// IsMilitary reports whether callsign matches a default military pattern.
func IsMilitary(callsign string) bool {
	return defaultSignals.isMilitary(normalize(callsign))
}

// IsPrivate reports whether callsign looks like a general aviation registration.
func IsPrivate(callsign, registration string) bool {
	return defaultSignals.isPrivate(normalize(callsign), normalize(registration))
}

// IsCargo reports whether callsign belongs to a default cargo carrier.
func IsCargo(callsign string) bool {
	return defaultSignals.isCargo(normalize(callsign))
}

// IsInternational reports whether icaoHex is outside the US and Canadian address blocks.
func IsInternational(icaoHex string) bool {
	return defaultSignals.isInternational(normalize(icaoHex))
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
