// Package routequota tracks a monthly budget of paid route-lookup API calls
// and decides whether a given flight may spend one of them.
//
// The tracker never fails its callers: unreadable or corrupt storage reads as
// a fresh month with zero usage, and failed writes are logged and dropped.
package routequota

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tracker manages persistent, monthly-resetting API call counters
type Tracker struct {
	storage  Storage
	config   Config
	priority []string

	// mu serializes load-increment-save so concurrent recorders in one
	// process do not lose updates.
	mu sync.Mutex
}

// NewTracker creates a new quota tracker with the given storage and configuration.
// A nil config uses DefaultConfig. LowQuotaWarning and PriorityReserve are
// used as given: zero switches the advisory or the reserve off.
func NewTracker(storage Storage, config *Config) (*Tracker, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}

	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Set defaults
	if len(cfg.Totals) == 0 {
		cfg.Totals = map[string]int{DefaultAPI: DefaultMonthlyTotal}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = &NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NoopMetrics{}
	}
	if cfg.TimeSource == nil {
		if ts, ok := storage.(TimeSource); ok {
			cfg.TimeSource = ts
		} else {
			cfg.TimeSource = SystemTimeSource
		}
	}

	if cb := cfg.CircuitBreakerConfig; cb != nil && cb.Enabled {
		metrics := cfg.Metrics
		storage = NewBreakerStorage(storage, *cb, metrics.RecordCircuitBreakerStateChange)
	}

	priority := make([]string, 0, len(cfg.PriorityCarriers))
	for _, code := range cfg.PriorityCarriers {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			priority = append(priority, code)
		}
	}

	return &Tracker{
		storage:  storage,
		config:   cfg,
		priority: priority,
	}, nil
}

// LoadState returns the current month's state.
// Missing, unreadable or corrupt storage yields a zero-usage state, as does a
// stored state from an earlier month. The reset is only persisted by the next save.
func (t *Tracker) LoadState(ctx context.Context) *State {
	month := MonthKey(t.now(ctx), t.config.Location)

	start := time.Now()
	state, err := t.storage.LoadState(ctx)
	t.config.Metrics.RecordStorageOperation("load", time.Since(start), err)
	if err != nil {
		t.config.Logger.Warn("failed to load quota state, assuming zero usage",
			Field{"month", month},
			ErrorField(err),
		)
		return NewState(month)
	}
	if state == nil {
		return NewState(month)
	}

	if state.Month != month {
		if !parseMonth(state.Month) {
			t.config.Logger.Warn("stored quota month is malformed, resetting",
				Field{"stored", state.Month},
				Field{"month", month},
			)
			return NewState(month)
		}
		t.config.Logger.Info("quota month rolled over",
			Field{"previous", state.Month},
			Field{"month", month},
		)
		t.config.Metrics.RecordMonthReset(month)
		return NewState(month)
	}

	if state.Usage == nil {
		state.Usage = make(map[string]int)
	}
	return state
}

// SaveState persists state. A failure is logged as a warning and returned;
// callers are expected to carry on since the external call already happened.
func (t *Tracker) SaveState(ctx context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrCorruptState)
	}

	start := time.Now()
	err := t.storage.SaveState(ctx, state)
	t.config.Metrics.RecordStorageOperation("save", time.Since(start), err)
	if err != nil {
		t.config.Logger.Warn("could not save quota state, usage not recorded",
			Field{"month", state.Month},
			ErrorField(err),
		)
		return fmt.Errorf("failed to save quota state: %w", err)
	}
	return nil
}

// Total returns the configured monthly allowance for api (0 if unknown).
func (t *Tracker) Total(api string) int {
	return t.config.Totals[api]
}

// Remaining returns the configured total minus this month's usage for api.
func (t *Tracker) Remaining(ctx context.Context, api string) int {
	return t.Total(api) - t.LoadState(ctx).Used(api)
}

// CanRequest checks whether one more call to api may be made, optionally on
// behalf of callsign. All band comparisons are inclusive:
//   - remaining <= 0 denies
//   - remaining <= LowQuotaWarning emits an advisory but does not deny
//   - remaining <= PriorityReserve denies callsigns outside PriorityCarriers
//
// An empty callsign skips the priority narrowing.
func (t *Tracker) CanRequest(ctx context.Context, api, callsign string) Decision {
	state := t.LoadState(ctx)
	total := t.Total(api)
	used := state.Used(api)
	remaining := total - used

	d := Decision{Remaining: remaining, Total: total}
	defer func() { t.config.Metrics.RecordAdmission(api, d.Allowed) }()

	if remaining <= 0 {
		d.Reason = fmt.Sprintf("quota exhausted (%d/%d used)", used, total)
		return d
	}

	if remaining <= t.config.LowQuotaWarning {
		d.Low = true
		t.config.Logger.Warn("low quota",
			APIField(api),
			Field{"remaining", remaining},
			Field{"total", total},
		)
		if t.config.LowQuotaHandler != nil {
			t.config.LowQuotaHandler.OnLowQuota(ctx, api, remaining, total)
		}
	}

	callsign = normalizeCallsign(callsign)
	if remaining <= t.config.PriorityReserve && callsign != "" && !t.IsPriorityCarrier(callsign) {
		d.Reason = fmt.Sprintf("reserved for priority carriers (%d remaining)", remaining)
		return d
	}

	d.Allowed = true
	d.Reason = fmt.Sprintf("ok, %d remaining", remaining)
	return d
}

// IsPriorityCarrier reports whether callsign starts with a configured priority designator.
func (t *Tracker) IsPriorityCarrier(callsign string) bool {
	callsign = normalizeCallsign(callsign)
	for _, prefix := range t.priority {
		if strings.HasPrefix(callsign, prefix) {
			return true
		}
	}
	return false
}

// RecordRequest counts one attempted call to api and returns the new remaining count.
// Attempts count whether or not the call succeeded, so retries are never free.
func (t *Tracker) RecordRequest(ctx context.Context, api string) int {
	if api == monthField {
		t.config.Logger.Error("refusing to record reserved api name", APIField(api))
		return t.Remaining(ctx, api)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.LoadState(ctx)
	state.Usage[api]++
	_ = t.SaveState(ctx, state) //nolint:errcheck // logged by SaveState; availability over accounting

	remaining := t.Total(api) - state.Used(api)
	t.config.Metrics.RecordConsumption(api, remaining)
	t.config.Logger.Debug("recorded api request",
		APIField(api),
		Field{"used", state.Used(api)},
		Field{"remaining", remaining},
	)
	return remaining
}

// Status summarizes usage for every configured API.
func (t *Tracker) Status(ctx context.Context) Status {
	now := t.now(ctx)
	state := t.LoadState(ctx)

	status := Status{
		Month:   state.Month,
		ResetAt: NextReset(now, t.config.Location),
		APIs:    make(map[string]APIStatus, len(t.config.Totals)),
	}
	for api, total := range t.config.Totals {
		used := state.Used(api)
		percentage := 0.0
		if total > 0 {
			percentage = math.Round(float64(used)/float64(total)*1000) / 10
		}
		status.APIs[api] = APIStatus{
			Used:       used,
			Total:      total,
			Remaining:  total - used,
			Percentage: percentage,
		}
	}
	return status
}

// APIs returns the configured API names in sorted order.
func (t *Tracker) APIs() []string {
	names := make([]string, 0, len(t.config.Totals))
	for api := range t.config.Totals {
		names = append(names, api)
	}
	sort.Strings(names)
	return names
}

func (t *Tracker) now(ctx context.Context) time.Time {
	now, err := t.config.TimeSource.Now(ctx)
	if err != nil {
		t.config.Logger.Warn("time source unavailable, using local clock", ErrorField(err))
		return time.Now()
	}
	return now
}

func normalizeCallsign(callsign string) string {
	return strings.ToUpper(strings.TrimSpace(callsign))
}
