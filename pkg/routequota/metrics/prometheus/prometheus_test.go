package prommetrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/routequota/pkg/routequota"
	"github.com/mihaimyh/routequota/storage/memory"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestMetrics_ImplementsInterface(t *testing.T) {
	var _ routequota.Metrics = NewMetrics(prometheus.NewRegistry(), "test")
}

func TestMetrics_Admission(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordAdmission("aviationstack", true)
	m.RecordAdmission("aviationstack", true)
	m.RecordAdmission("aviationstack", false)

	family := gather(t, reg)["test_quota_admissions_total"]
	require.NotNil(t, family)
	counts := map[string]float64{}
	for _, metric := range family.GetMetric() {
		counts[labelValue(metric, "allowed")] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"true": 2, "false": 1}, counts)
}

func TestMetrics_ConsumptionSetsRemaining(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordConsumption("aviationstack", 99)
	m.RecordConsumption("aviationstack", 98)

	families := gather(t, reg)
	assert.Equal(t, float64(2), families["test_quota_requests_recorded_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, float64(98), families["test_quota_remaining"].GetMetric()[0].GetGauge().GetValue())
}

func TestMetrics_StorageAndBreaker(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordStorageOperation("load", 10*time.Millisecond, nil)
	m.RecordStorageOperation("save", 20*time.Millisecond, errors.New("disk full"))
	m.RecordCircuitBreakerStateChange("open")
	m.RecordMonthReset("2024-02")
	m.RecordPriorityDecision(true, 150)

	families := gather(t, reg)
	errs := families["test_storage_operation_errors_total"]
	require.NotNil(t, errs)
	require.Len(t, errs.GetMetric(), 1)
	assert.Equal(t, "save", labelValue(errs.GetMetric()[0], "operation"))

	assert.Equal(t, uint64(2), sumSamples(families["test_storage_operation_duration_seconds"]))
	assert.NotNil(t, families["test_circuit_breaker_state_changes_total"])
	assert.NotNil(t, families["test_quota_month_resets_total"])
	assert.Equal(t, uint64(1), families["test_priority_score"].GetMetric()[0].GetHistogram().GetSampleCount())
}

func sumSamples(f *dto.MetricFamily) uint64 {
	var n uint64
	for _, m := range f.GetMetric() {
		n += m.GetHistogram().GetSampleCount()
	}
	return n
}

func TestMetrics_WithTracker(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "routequota")

	cfg := routequota.DefaultConfig()
	cfg.Metrics = m
	tracker, err := routequota.NewTracker(memory.New(), &cfg)
	require.NoError(t, err)
	ctx := context.Background()

	tracker.CanRequest(ctx, routequota.DefaultAPI, "ACA857")
	tracker.RecordRequest(ctx, routequota.DefaultAPI)

	families := gather(t, reg)
	assert.Equal(t, float64(99), families["routequota_quota_remaining"].GetMetric()[0].GetGauge().GetValue())
	assert.NotNil(t, families["routequota_quota_admissions_total"])
	assert.NotNil(t, families["routequota_storage_operation_duration_seconds"])
}
