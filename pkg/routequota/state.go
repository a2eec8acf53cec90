package routequota

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// monthField is the reserved key holding the month identifier in the persisted layout.
const monthField = "month"

// State is the persisted monthly usage counter.
//
// On disk it is the flat object {"month": "YYYY-MM", "<api>": <count>, ...},
// so an API can never be named "month".
type State struct {
	Month string
	Usage map[string]int
}

// NewState returns a zero-usage state for month.
func NewState(month string) *State {
	return &State{
		Month: month,
		Usage: make(map[string]int),
	}
}

// Used returns the recorded usage for api (0 if none).
func (s *State) Used(api string) int {
	if s == nil || s.Usage == nil {
		return 0
	}
	return s.Usage[api]
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := NewState(s.Month)
	for api, n := range s.Usage {
		c.Usage[api] = n
	}
	return c
}

// MarshalJSON encodes the state in the flat persisted layout.
func (s State) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Usage)+1)
	for api, n := range s.Usage {
		if api == monthField {
			continue
		}
		out[api] = n
	}
	out[monthField] = s.Month
	return json.Marshal(out)
}

// UnmarshalJSON decodes the flat persisted layout.
// Counters that are not non-negative numbers are dropped; a missing or
// non-string month decodes as "" so the tracker treats it as stale.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: not an object", ErrCorruptState)
	}

	s.Month = ""
	s.Usage = make(map[string]int, len(raw))
	for key, value := range raw {
		if key == monthField {
			if month, ok := value.(string); ok {
				s.Month = month
			}
			continue
		}
		n, ok := value.(float64)
		if !ok || n < 0 || n > math.MaxInt32 {
			continue
		}
		s.Usage[key] = int(n)
	}
	return nil
}
