// Package metrics exposes bloomd's Prometheus instrumentation: per-operation
// request counters and latencies, directory version and live filter gauges,
// and reaper/tombstone counters.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the service registers.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	directoryVersion prometheus.Gauge
	activeFilters     prometheus.Gauge

	reaperCycles       prometheus.Counter
	tombstonesReclaimed *prometheus.CounterVec
}

// New registers a fresh set of collectors under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "filter",
				Name:      "requests_total",
				Help:      "Total number of filter manager operations processed.",
			},
			[]string{"operation", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "filter",
				Name:      "request_duration_seconds",
				Help:      "Duration of filter manager operations in seconds.",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		directoryVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "version",
			Help:      "Current head directory version number.",
		}),
		activeFilters: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "active_filters",
			Help:      "Number of active (non-tombstoned) filters in the head directory.",
		}),
		reaperCycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "cycles_total",
			Help:      "Number of reaper version retirements performed.",
		}),
		tombstonesReclaimed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reaper",
				Name:      "tombstones_reclaimed_total",
				Help:      "Number of tombstones finalized by the reaper, labeled by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveRequest records one completed operation.
func (m *Metrics) ObserveRequest(operation, status string, d time.Duration) {
	m.requestsTotal.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetDirectoryVersion updates the live head version gauge.
func (m *Metrics) SetDirectoryVersion(v int64) { m.directoryVersion.Set(float64(v)) }

// SetActiveFilters updates the live filter count gauge.
func (m *Metrics) SetActiveFilters(n int) { m.activeFilters.Set(float64(n)) }

// ObserveReap records one reaper cycle and, if a tombstone was finalized,
// its outcome ("destroyed" or "closed").
func (m *Metrics) ObserveReap(tombstoneExists, destroyed bool) {
	m.reaperCycles.Inc()
	if !tombstoneExists {
		return
	}
	outcome := "closed"
	if destroyed {
		outcome = "destroyed"
	}
	m.tombstonesReclaimed.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus scrape endpoint handler.
func (m *Metrics) Handler() http.Handler { return promhttp.Handler() }

// responseWriter captures the status code written by downstream handlers.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware wraps next, recording a request/duration metric per call
// tagged with the route's operation name (supplied by the caller, since
// gorilla/mux route patterns rather than raw paths make better labels).
func (m *Metrics) HTTPMiddleware(operation string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.ObserveRequest(operation, strconv.Itoa(rw.statusCode), time.Since(start))
	})
}
