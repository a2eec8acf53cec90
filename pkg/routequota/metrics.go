package routequota

import "time"

// Metrics defines the interface for tracking quota decisions and storage health.
type Metrics interface {
	// RecordAdmission records the outcome of a CanRequest check.
	RecordAdmission(api string, allowed bool)

	// RecordConsumption records one recorded request and the remaining quota after it.
	RecordConsumption(api string, remaining int)

	// RecordMonthReset records that a stored state was discarded on month rollover.
	RecordMonthReset(month string)

	// RecordPriorityDecision records a scorer decision.
	RecordPriorityDecision(admitted bool, score int)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordAdmission(api string, allowed bool)                                  {}
func (n *NoopMetrics) RecordConsumption(api string, remaining int)                               {}
func (n *NoopMetrics) RecordMonthReset(month string)                                             {}
func (n *NoopMetrics) RecordPriorityDecision(admitted bool, score int)                           {}
func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                              {}
