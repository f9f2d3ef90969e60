package health

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"reelvault/internal/metrics"
)

// Dependency states
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
	StatusDisabled = "disabled"
)

// Latency above these thresholds reports a dependency as degraded
const (
	dbDegradedAfter    = 200 * time.Millisecond
	redisDegradedAfter = 100 * time.Millisecond
)

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status string           `json:"status"`
	DB     DependencyStatus `json:"db"`
	Redis  DependencyStatus `json:"redis"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Pinger reports round-trip latency to a database
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Checker probes the database and, when configured, Redis
type Checker struct {
	db      Pinger
	redis   redis.UniversalClient
	timeout time.Duration
}

// NewChecker creates a checker. A nil Redis client reports Redis as disabled.
func NewChecker(db Pinger, redisClient redis.UniversalClient) *Checker {
	return &Checker{db: db, redis: redisClient, timeout: 5 * time.Second}
}

// Check probes every dependency
func (h *Checker) Check(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp := HealthResponse{
		DB:    h.checkDB(ctx),
		Redis: h.checkRedis(ctx),
	}

	resp.Status = StatusOK
	for _, dep := range []DependencyStatus{resp.DB, resp.Redis} {
		switch dep.Status {
		case StatusDown:
			resp.Status = StatusDown
		case StatusDegraded:
			if resp.Status == StatusOK {
				resp.Status = StatusDegraded
			}
		}
	}

	record("db", resp.DB)
	record("redis", resp.Redis)
	return resp
}

func (h *Checker) checkDB(ctx context.Context) DependencyStatus {
	latency, err := h.db.Ping(ctx)
	return classify(latency, err, dbDegradedAfter)
}

func (h *Checker) checkRedis(ctx context.Context) DependencyStatus {
	if h.redis == nil {
		return DependencyStatus{Status: StatusDisabled}
	}
	start := time.Now()
	err := h.redis.Ping(ctx).Err()
	return classify(time.Since(start), err, redisDegradedAfter)
}

func classify(latency time.Duration, err error, degradedAfter time.Duration) DependencyStatus {
	status := DependencyStatus{LatencyMs: latency.Milliseconds()}
	switch {
	case err != nil:
		status.Status = StatusDown
		status.Error = err.Error()
	case latency > degradedAfter:
		status.Status = StatusDegraded
	default:
		status.Status = StatusOK
	}
	return status
}

func record(dependency string, status DependencyStatus) {
	value := 0.0
	switch status.Status {
	case StatusOK:
		value = 1
	case StatusDegraded:
		value = 0.5
	case StatusDisabled:
		return
	}
	metrics.HealthStatus.WithLabelValues(dependency).Set(value)
}

// RegisterHealthRoutes registers the health check routes
func RegisterHealthRoutes(router fiber.Router, checker *Checker) {
	router.Get("/healthz", func(c *fiber.Ctx) error {
		resp := checker.Check(c.UserContext())

		if resp.Status == StatusOK {
			c.Status(fiber.StatusOK)
		} else {
			c.Status(fiber.StatusServiceUnavailable)
		}
		c.Set(fiber.HeaderCacheControl, "no-store")

		return c.JSON(resp)
	})
}
