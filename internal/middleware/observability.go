package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sciencefair-api/internal/observability"
)

const slowRequestThreshold = 500 * time.Millisecond

// Observability records request metrics for the v2 API and writes one log line per request.
// Live form streams are logged when the socket closes but kept out of the latency histogram.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Path(), "/api/v2") {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		code := strconv.Itoa(status)
		streaming := strings.HasSuffix(route, "/live")

		observability.APIRequests().WithLabelValues(method, route, code).Inc()
		if !streaming {
			observability.APILatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
		}
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(method, route, code).Inc()
		}

		event := logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		case elapsed > slowRequestThreshold && !streaming:
			event = logger.Warn().Bool("slow", true)
		}

		event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("user_id", localString(c.Locals("user_id"))).
			Str("method", method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Bool("stream", streaming).
			Msg("request handled")

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return c.Path()
}
