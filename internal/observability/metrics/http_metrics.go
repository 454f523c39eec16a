package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records inbound request latency per route.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	return newHTTPMetrics(prometheus.DefaultRegisterer, cfg)
}

func newHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	constLabels := constLabelsFor(cfg)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "tugas_http_request_duration_seconds",
		Help:        "HTTP request latency by route and status.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"method", "route", "status_code"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tugas_http_requests_total",
		Help:        "HTTP requests by route and status.",
		ConstLabels: constLabels,
	}, []string{"method", "route", "status_code"})
	registerer.MustRegister(duration, requests)
	return &HTTPMetrics{duration: duration, requests: requests}
}

// GinMiddleware observes every request handled by the engine.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.duration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(c.Request.Method, route, status).Inc()
	}
}
