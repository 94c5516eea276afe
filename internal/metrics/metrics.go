package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route pattern and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rate_limited_requests_total", Help: "Requests rejected by the per-tenant rate limiter."},
	)

	// OptimizerRuns counts finished runs by status (succeeded, failed, canceled)
	OptimizerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_runs_total", Help: "Optimization runs by final status."},
		[]string{"status"},
	)
	OptimizerRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimizer_run_duration_seconds", Help: "Wall time of optimization runs.", Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}},
	)
	OptimizerGenerations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "optimizer_generations_total", Help: "Generations evolved across all runs."},
	)
	OptimizerActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "optimizer_active_runs", Help: "Runs currently holding a concurrency slot."},
	)
	OptimizerBestDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimizer_best_distance_km", Help: "Best route distance of succeeded runs.", Buckets: prometheus.ExponentialBuckets(1, 4, 10)},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests,
			HTTPDuration,
			RateLimited,
			OptimizerRuns,
			OptimizerRunDuration,
			OptimizerGenerations,
			OptimizerActiveRuns,
			OptimizerBestDistance,
			WebhookDeliveries,
			WebhookLatency,
		)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
