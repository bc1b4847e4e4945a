// Package observability owns the API's Prometheus registry.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// latencyBuckets spans a single-row read up to a retried posting.
var latencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

type httpCollectors struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// Metrics is the API's private registry. Job and domain collectors register
// against it through Registerer so one /metrics endpoint serves everything.
type Metrics struct {
	registry *prometheus.Registry
	http     httpCollectors
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		http: httpCollectors{
			requests: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cimiento",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route pattern, method and status code.",
			}, []string{"route", "method", "code"}),
			latency: factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cimiento",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route pattern and method.",
				Buckets:   latencyBuckets,
			}, []string{"route", "method"}),
			inFlight: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: "cimiento",
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "HTTP requests currently being served.",
			}),
		},
	}
}

// Handler serves the registry. A nil Metrics answers 503.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware labels requests by the chi route pattern, so it must sit inside
// the router for the pattern to be resolved.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	hc := m.http
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hc.inFlight.Inc()
		defer hc.inFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		hc.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		hc.latency.WithLabelValues(route, r.Method).Observe(time.Since(started).Seconds())
	})
}

// Registerer falls back to the global registerer for a nil Metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}
