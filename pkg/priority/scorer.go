// Package priority ranks flight sightings by how interesting they are, so a
// scarce route-lookup budget goes to military, private and cargo traffic
// before yet another scheduled airliner on a route already logged.
//
// The scorer is a pure function of the flight, the remaining quota and the
// route history. It performs no lookups of its own and never fails: history
// errors are logged and the repeat-route penalty is skipped.
package priority

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// Scorer computes priority scores and quota-dependent admission.
type Scorer struct {
	history RouteHistory
	config  Config
	signals *signals
}

// NewScorer creates a scorer. history may be nil, which disables repeat-route damping.
// A nil config uses DefaultConfig.
func NewScorer(history RouteHistory, config *Config) (*Scorer, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sig, err := compileSignals(&cfg)
	if err != nil {
		return nil, err
	}

	return &Scorer{
		history: history,
		config:  cfg,
		signals: sig,
	}, nil
}

// Threshold returns the admission threshold for the remaining quota.
// It never decreases as remaining decreases.
func (s *Scorer) Threshold(remaining int) int {
	for _, b := range s.config.Bands {
		if remaining > b.Above {
			return b.Threshold
		}
	}
	return s.config.FloorThreshold
}

// Score rates flight and decides whether it is worth one lookup given remaining quota.
func (s *Scorer) Score(ctx context.Context, flight Flight, remaining int) Decision {
	flight = flight.Normalized()
	threshold := s.Threshold(remaining)

	if flight.Callsign == "" {
		d := Decision{Threshold: threshold, Reasons: []string{}, Reason: "No callsign"}
		s.config.Metrics.RecordPriorityDecision(false, 0)
		return d
	}

	score, reasons := s.rate(ctx, flight)
	d := Decision{
		Admit:     score >= threshold,
		Score:     score,
		Threshold: threshold,
		Reasons:   reasons,
		Reason:    formatReason(score, threshold, reasons),
	}

	s.config.Metrics.RecordPriorityDecision(d.Admit, d.Score)
	s.config.Logger.Debug("scored flight",
		routequota.CallsignField(flight.Callsign),
		routequota.Field{Key: "score", Value: score},
		routequota.Field{Key: "threshold", Value: threshold},
		routequota.Field{Key: "admit", Value: d.Admit},
	)
	return d
}

// rate sums the signals for a normalized flight with a non-empty callsign.
func (s *Scorer) rate(ctx context.Context, f Flight) (int, []string) {
	c := &s.config
	score := c.Baseline
	reasons := make([]string, 0, 4)

	if c.MilitaryBonus != 0 && s.signals.isMilitary(f.Callsign) {
		score += c.MilitaryBonus
		reasons = append(reasons, TagMilitary)
	}
	if c.PrivateBonus != 0 && s.signals.isPrivate(f.Callsign, f.Registration) {
		score += c.PrivateBonus
		reasons = append(reasons, TagPrivate)
	}
	if c.CargoBonus != 0 && s.signals.isCargo(f.Callsign) {
		score += c.CargoBonus
		reasons = append(reasons, TagCargo)
	}

	if penalty, tag := s.repeatPenalty(ctx, f.Callsign); penalty != 0 {
		score -= penalty
		reasons = append(reasons, tag)
	}

	// Already disqualified flights get no international bonus.
	if c.InternationalBonus != 0 && score > 0 && s.signals.isInternational(f.ICAOHex) {
		score += c.InternationalBonus
		reasons = append(reasons, TagInternational)
	}
	return score, reasons
}

// repeatPenalty damps callsigns whose dominant recent route is already logged.
//
//	known common route seen VeryCommonMinCount+ times → VeryCommonPenalty
//	known common route seen at least once             → CommonPenalty
//	callsign flew its route RepeatMinCount+ times     → RepeatPenalty
func (s *Scorer) repeatPenalty(ctx context.Context, callsign string) (int, string) {
	if s.history == nil {
		return 0, ""
	}
	c := &s.config

	now, err := c.TimeSource.Now(ctx)
	if err != nil {
		now = time.Now()
	}

	recent, err := s.history.DominantRoute(ctx, callsign, now.Add(-c.RepeatWindow))
	if err != nil {
		c.Logger.Warn("route history unavailable, skipping repeat penalty",
			routequota.CallsignField(callsign),
			routequota.ErrorField(err),
		)
		return 0, ""
	}
	if recent == nil || !recent.Complete() {
		return 0, ""
	}

	if s.signals.isCommon(recent.Route) {
		total, err := s.history.RouteCount(ctx, recent.Route)
		if err != nil {
			c.Logger.Warn("route count unavailable",
				routequota.Field{Key: "route", Value: recent.Route.String()},
				routequota.ErrorField(err),
			)
		} else {
			switch {
			case total >= c.VeryCommonMinCount:
				return c.VeryCommonPenalty, fmt.Sprintf("%s(%s, seen %dx)", TagVeryCommon, recent.Route, recent.Count)
			case total >= 1:
				return c.CommonPenalty, fmt.Sprintf("%s(%s, seen %dx)", TagCommon, recent.Route, recent.Count)
			}
		}
	}

	if recent.Count >= c.RepeatMinCount {
		return c.RepeatPenalty, fmt.Sprintf("%s(%s, %dx)", TagRepeat, recent.Route, recent.Count)
	}
	return 0, ""
}

func formatReason(score, threshold int, reasons []string) string {
	detail := "Standard commercial"
	if len(reasons) > 0 {
		detail = strings.Join(reasons, ", ")
	}
	return fmt.Sprintf("Score: %d (threshold: %d) - %s", score, threshold, detail)
}
