package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-wide Prometheus metrics. Module-specific
// metrics live next to their modules.
type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	EventsConsumed      *prometheus.CounterVec
}

// New creates and registers all platform metrics.
func New() *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upline_http_requests_total",
			Help: "Total HTTP requests handled by the admin surface",
		}, []string{"route", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upline_http_request_duration_seconds",
			Help:    "Latency of admin HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		EventsConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upline_events_consumed_total",
			Help: "Total events consumed from kafka, by topic and outcome",
		}, []string{"topic", "outcome"}),
	}
}

// ObserveHTTP records one handled request.
func (m *Metrics) ObserveHTTP(route string, status int, seconds float64) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}
