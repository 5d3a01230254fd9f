package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sciencefair-api/internal/observability"
)

func TestObservabilityCountsV2Requests(t *testing.T) {
	app := fiber.New()
	app.Use(Observability(zerolog.Nop()))
	app.Get("/api/v2/forms/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNotFound)
	})
	app.Get("/api/v1/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	requests := observability.APIRequests().WithLabelValues(http.MethodGet, "/api/v2/forms/:id", "404")
	errs := observability.APIErrors().WithLabelValues(http.MethodGet, "/api/v2/forms/:id", "404")
	health := observability.APIRequests().WithLabelValues(http.MethodGet, "/api/v1/health", "200")
	beforeRequests, beforeErrors := testutil.ToFloat64(requests), testutil.ToFloat64(errs)

	for _, path := range []string{"/api/v2/forms/F1", "/api/v2/forms/F2", "/api/v1/health"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		resp.Body.Close()
	}

	require.Equal(t, beforeRequests+2, testutil.ToFloat64(requests))
	require.Equal(t, beforeErrors+2, testutil.ToFloat64(errs))
	require.Zero(t, testutil.ToFloat64(health))
}
