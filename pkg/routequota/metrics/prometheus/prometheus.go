// Package prommetrics implements routequota.Metrics with Prometheus collectors.
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements routequota.Metrics using Prometheus.
type Metrics struct {
	admissionsTotal            *prometheus.CounterVec
	requestsTotal              *prometheus.CounterVec
	remaining                  *prometheus.GaugeVec
	monthResetsTotal           *prometheus.CounterVec
	priorityDecisionsTotal     *prometheus.CounterVec
	priorityScore              prometheus.Histogram
	storageOpsDuration         *prometheus.HistogramVec
	storageOpsErrors           *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		admissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_admissions_total",
			Help:      "Total number of quota admission checks by outcome.",
		}, []string{"api", "allowed"}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_requests_recorded_total",
			Help:      "Total number of metered requests recorded against quota.",
		}, []string{"api"}),

		remaining: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining",
			Help:      "Remaining monthly quota after the last recorded request.",
		}, []string{"api"}),

		monthResetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_month_resets_total",
			Help:      "Total number of stored states discarded on month rollover.",
		}, []string{"month"}),

		priorityDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "priority_decisions_total",
			Help:      "Total number of priority scorer decisions.",
		}, []string{"admitted"}),

		priorityScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "priority_score",
			Help:      "Distribution of priority scores.",
			Buckets:   []float64{-100, -50, 0, 20, 50, 80, 100, 150, 200},
		}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of storage operation errors.",
		}, []string{"operation"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),
	}
}

func (m *Metrics) RecordAdmission(api string, allowed bool) {
	m.admissionsTotal.WithLabelValues(api, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) RecordConsumption(api string, remaining int) {
	m.requestsTotal.WithLabelValues(api).Inc()
	m.remaining.WithLabelValues(api).Set(float64(remaining))
}

func (m *Metrics) RecordMonthReset(month string) {
	m.monthResetsTotal.WithLabelValues(month).Inc()
}

func (m *Metrics) RecordPriorityDecision(admitted bool, score int) {
	m.priorityDecisionsTotal.WithLabelValues(strconv.FormatBool(admitted)).Inc()
	m.priorityScore.Observe(float64(score))
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
