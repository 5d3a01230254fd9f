package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sciencefair-api/internal/middleware"
	"github.com/noah-isme/sciencefair-api/internal/models"
	"github.com/noah-isme/sciencefair-api/internal/service"
	"github.com/noah-isme/sciencefair-api/internal/utils"
)

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil
	}
	return &value
}

// identityFromContext returns the caller bound by the JWT middleware, falling back to
// the bare user_id/user_role locals set by lighter-weight auth layers.
func identityFromContext(c *fiber.Ctx) (models.Identity, bool) {
	if identity, ok := middleware.IdentityFromContext(c); ok && identity.UserID != "" {
		return identity, true
	}

	userID, _ := c.Locals("user_id").(string)
	if strings.TrimSpace(userID) == "" {
		return models.Identity{}, false
	}
	role, _ := c.Locals("user_role").(string)

	return models.Identity{UserID: strings.TrimSpace(userID), Role: models.ParseRole(role)}, true
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// sendServiceError maps the service error taxonomy onto HTTP statuses.
func sendServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(validationErrors))
	case service.IsValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, validationMessage(err))
	case errors.Is(err, service.ErrNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		return utils.SendError(c, fiber.StatusConflict, "form was modified concurrently, retry the request")
	case errors.Is(err, service.ErrPersistence):
		requestLogger(logger, c).Error().Err(err).Msg("storage failure")
		return utils.SendError(c, fiber.StatusBadGateway, "storage temporarily unavailable")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

func validationMessage(err error) string {
	message := err.Error()
	if idx := strings.Index(message, ": "); idx >= 0 && strings.HasPrefix(message, service.ErrValidation.Error()) {
		return message[idx+2:]
	}
	return message
}
