// Package jobmetrics instruments integrity checks run by the worker.
package jobmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Metrics records one series per integrity task. A nil *Metrics is a no-op.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	anomalies   *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg disables metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cimiento",
			Subsystem: "integrity",
			Name:      "runs_total",
			Help:      "Integrity task executions by task and outcome.",
		}, []string{"task", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cimiento",
			Subsystem: "integrity",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one integrity task across its companies.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 7),
		}, []string{"task"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cimiento",
			Subsystem: "integrity",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the task last completed without error.",
		}, []string{"task"}),
		anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cimiento",
			Subsystem: "integrity",
			Name:      "anomalies_total",
			Help:      "Rows failing an integrity check, by check and company.",
		}, []string{"check", "company"}),
	}
}

// Begin starts timing task. The returned func records the outcome and hands
// err back unchanged, so it can wrap a named return.
func (m *Metrics) Begin(task string) func(error) error {
	if m == nil {
		return func(err error) error { return err }
	}
	started := time.Now()
	return func(err error) error {
		m.duration.WithLabelValues(task).Observe(time.Since(started).Seconds())
		if err != nil {
			m.runs.WithLabelValues(task, outcomeFailed).Inc()
			return err
		}
		m.runs.WithLabelValues(task, outcomeOK).Inc()
		m.lastSuccess.WithLabelValues(task).SetToCurrentTime()
		return nil
	}
}

// AddAnomalies counts findings of check for one company. Zero is not recorded.
func (m *Metrics) AddAnomalies(check string, companyID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.anomalies.WithLabelValues(check, strconv.FormatInt(companyID, 10)).Add(float64(count))
}
