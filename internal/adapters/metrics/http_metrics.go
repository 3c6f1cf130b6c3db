package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetricsCollector records request counts and latencies per route
type HTTPMetricsCollector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewHTTPMetricsCollector creates the HTTP server metrics
func NewHTTPMetricsCollector() *HTTPMetricsCollector {
	return &HTTPMetricsCollector{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status_code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by method and path",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Register registers the collectors with the registry
func (c *HTTPMetricsCollector) Register(registry *prometheus.Registry) error {
	if err := registry.Register(c.requestsTotal); err != nil {
		return err
	}
	return registry.Register(c.requestDuration)
}

// Record records one finished request
func (c *HTTPMetricsCollector) Record(method, path string, statusCode int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Middleware wraps a handler to record request metrics. The route template
// should already be resolved by the router so path cardinality stays bounded.
func (c *HTTPMetricsCollector) Middleware(routeTemplate func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusCapture{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if routeTemplate != nil {
				if tpl := routeTemplate(r); tpl != "" {
					path = tpl
				}
			}
			c.Record(r.Method, path, rec.status, time.Since(start))
		})
	}
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (s *statusCapture) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
