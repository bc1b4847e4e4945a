package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// counterValue sums the samples of name whose labels include want.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

// gaugeValue sums every sample of the named gauge.
func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() == name {
			for _, metric := range family.GetMetric() {
				total += metric.GetGauge().GetValue()
			}
		}
	}
	return total
}

func TestBeginRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Begin("integrity:stock")(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Begin("integrity:stock")(boom), boom)

	require.Equal(t, 1.0, counterValue(t, reg, "cimiento_integrity_runs_total", map[string]string{"task": "integrity:stock", "outcome": "ok"}))
	require.Equal(t, 1.0, counterValue(t, reg, "cimiento_integrity_runs_total", map[string]string{"task": "integrity:stock", "outcome": "failed"}))
	require.Positive(t, gaugeValue(t, reg, "cimiento_integrity_last_success_timestamp_seconds"))
}

func TestFailedRunDoesNotMoveLastSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	_ = m.Begin("integrity:ledger")(errors.New("boom"))
	require.Zero(t, gaugeValue(t, reg, "cimiento_integrity_last_success_timestamp_seconds"))
}

func TestAddAnomaliesIgnoresEmpty(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddAnomalies("ledger", 4, 0)
	m.AddAnomalies("ledger", 4, 3)
	require.Equal(t, 3.0, counterValue(t, reg, "cimiento_integrity_anomalies_total", map[string]string{"check": "ledger", "company": "4"}))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	m := NewMetrics(nil)
	require.Nil(t, m)
	m.AddAnomalies("ledger", 4, 1)
	boom := errors.New("boom")
	require.ErrorIs(t, m.Begin("x")(boom), boom)
}
