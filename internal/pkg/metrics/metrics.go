package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streetblock",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streetblock",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streetblock",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Overpass metrics
	OverpassAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streetblock",
		Subsystem: "overpass",
		Name:      "attempts_total",
		Help:      "Total Overpass query attempts",
	}, []string{"operation", "endpoint"})

	OverpassFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streetblock",
		Subsystem: "overpass",
		Name:      "failures_total",
		Help:      "Total failed Overpass query attempts",
	}, []string{"operation", "endpoint"})

	OverpassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streetblock",
		Subsystem: "overpass",
		Name:      "attempt_duration_seconds",
		Help:      "Duration of single Overpass query attempts",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 180},
	}, []string{"operation", "outcome"})

	TileCells = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streetblock",
		Subsystem: "overpass",
		Name:      "tile_cells_total",
		Help:      "Total grid cells queried by tiled fetches",
	})

	BlockResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streetblock",
		Subsystem: "block",
		Name:      "resolutions_total",
		Help:      "Total block resolutions by outcome",
	}, []string{"outcome"})
)

// ObserveAttempt counts an Overpass attempt against endpoint.
func ObserveAttempt(operation, endpoint string) {
	OverpassAttempts.WithLabelValues(operation, endpoint).Inc()
}

// ObserveSuccess records the latency of a successful attempt.
func ObserveSuccess(operation string, d time.Duration) {
	OverpassDuration.WithLabelValues(operation, "success").Observe(d.Seconds())
}

// ObserveFailure counts a failed attempt and records its latency.
func ObserveFailure(operation, endpoint string, d time.Duration) {
	OverpassFailures.WithLabelValues(operation, endpoint).Inc()
	OverpassDuration.WithLabelValues(operation, "failure").Observe(d.Seconds())
}

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
