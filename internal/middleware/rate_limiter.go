package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// NewLoginRateLimiter limits credential checks per caller address. It covers
// sign in, registration and token exchange.
func NewLoginRateLimiter(limit int, window time.Duration) fiber.Handler {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:          limit,
		Expiration:   window,
		KeyGenerator: ClientIP,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded",
				"message":     "Too many authentication attempts. Please try again later.",
				"retry_after": window.Seconds(),
			})
		},
	})
}
