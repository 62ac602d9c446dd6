// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	conflicts       *prometheus.CounterVec
	repairFixes     *prometheus.CounterVec
	disbands        *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass a fresh prometheus.NewRegistry
// in tests so collectors do not collide.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "housemate",
			Name:      "window_conflicts_total",
			Help:      "Scheduling attempts rejected because of an overlapping window.",
		}, []string{"kind"}),
		repairFixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "housemate",
			Name:      "repair_fixes_total",
			Help:      "Rows corrected by the consistency repair job.",
		}, []string{"fix"}),
		disbands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "housemate",
			Name:      "household_disbands_total",
			Help:      "Household disband attempts by outcome.",
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "housemate",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "housemate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.conflicts, m.repairFixes, m.disbands, m.requests, m.requestDuration)
	return m
}

func (m *Metrics) ConflictDetected(kind string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(kind).Inc()
}

func (m *Metrics) RepairFixed(fix string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.repairFixes.WithLabelValues(fix).Add(float64(n))
}

func (m *Metrics) Disbanded(status string) {
	if m == nil {
		return
	}
	m.disbands.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
