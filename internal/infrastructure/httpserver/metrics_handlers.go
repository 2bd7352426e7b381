package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics live on the default registry; task and cache metrics are
// registered by the caller on whichever registry it hands to the server.
var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by operation",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, rateLimitedTotal)
}

// logMetricsInitialization lists the exported metric families at debug level.
func (s *Server) logMetricsInitialization() {
	if s.logger == nil {
		return
	}
	s.logger.WithFields(map[string]interface{}{
		"http":             "http_requests_total, http_request_duration_seconds, http_rate_limited_total",
		"tasks":            "tasks_submitted_total, tasks_finished_total, task_duration_seconds",
		"cache":            "cache_hits_total, cache_misses_total, cache_sets_total, cache_hit_rate_percent, cache_entries",
		"metrics_endpoint": "/metrics",
	}).Debug("Available Prometheus metrics")
}

func (s *Server) metricsEndpoint(c echo.Context) error {
	s.metricsHandler.ServeHTTP(c.Response(), c.Request())
	return nil
}

func newMetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
