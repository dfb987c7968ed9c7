// Package metrics exposes Prometheus collectors for the cart gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metric names.
const (
	MetricHTTPRequestsTotal          = "cartsync_http_requests_total"
	MetricHTTPRequestDurationSeconds = "cartsync_http_request_duration_seconds"
	MetricCartOperationsTotal        = "cartsync_cart_operations_total"
)

// Collector holds the gateway's Prometheus metrics.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	cartOperationsTotal *prometheus.CounterVec
}

// NewCollector creates and registers the gateway metrics
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHTTPRequestsTotal,
				Help: "Total HTTP requests handled by the gateway.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestDurationSeconds,
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		cartOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCartOperationsTotal,
				Help: "Cart operations by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
	}

	c.registry.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.cartOperationsTotal,
	)

	return c
}

// ObserveHTTPRequest records one handled HTTP request
func (c *Collector) ObserveHTTPRequest(method, path, status string, seconds float64) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// ObserveCartOperation records one settled cart operation
func (c *Collector) ObserveCartOperation(operation, outcome string) {
	c.cartOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// Handler returns the scrape handler for the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
