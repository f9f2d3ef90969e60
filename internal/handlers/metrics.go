package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes Prometheus metrics
type MetricsHandler struct {
	gatherer prometheus.Gatherer
}

// NewMetricsHandler creates a metrics handler over the default registry
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{gatherer: prometheus.DefaultGatherer}
}

// Metrics returns a Fiber handler for the Prometheus text format
func (h *MetricsHandler) Metrics() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}
