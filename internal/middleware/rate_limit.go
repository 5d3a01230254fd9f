package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/sciencefair-api/internal/utils"
)

// RateLimit throttles a route group per authenticated user, falling back to the client IP.
// Requests over the limit receive the standard error envelope with a 429 status.
func RateLimit(scope string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID := localString(c.Locals("user_id")); userID != "" {
				return scope + ":user:" + userID
			}
			return scope + ":ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.Fail(c, fiber.StatusTooManyRequests, "too many uploads, slow down", fiber.Map{
				"retry_after_seconds": int(window.Seconds()),
			})
		},
	})
}
