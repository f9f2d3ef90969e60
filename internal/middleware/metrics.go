package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestCount tracks requests by method, route and status
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelvault_http_requests_total",
			Help: "Total number of HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks response times by method, route and status
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelvault_http_request_duration_seconds",
			Help:    "Histogram of request durations by method, route, and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status"},
	)

	// ResponseSize tracks response sizes from the Content-Length header
	ResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelvault_http_response_size_bytes",
			Help:    "Histogram of response sizes by method and route",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
		},
		[]string{"method", "route"},
	)
)

// Metrics records request metrics
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		// the matched route is known only after routing. Labels outlive the
		// request, so they must not alias fiber's reused buffers.
		route := utils.CopyString(c.Route().Path)
		method := utils.CopyString(c.Method())
		status := strconv.Itoa(c.Response().StatusCode())

		RequestCount.WithLabelValues(method, route, status).Inc()
		RequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())

		// Body() would drain a streamed video into memory
		if size := c.Response().Header.ContentLength(); size > 0 {
			ResponseSize.WithLabelValues(method, route).Observe(float64(size))
		}

		return err
	}
}
