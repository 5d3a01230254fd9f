package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sciencefair-api/internal/dto"
	"github.com/noah-isme/sciencefair-api/internal/service"
	"github.com/noah-isme/sciencefair-api/internal/utils"
)

// ActivityHandler exposes the workflow audit trail to administrators.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches the audit routes. The router is expected to be admin-only.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("/activity", h.list)
	router.Get("/forms/:id/activity", h.listFor("form"))
	router.Get("/projects/:id/activity", h.listFor("project"))
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	req, err := activityListRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	req.EntityType = strings.TrimSpace(c.Query("entity_type"))
	req.EntityID = strings.TrimSpace(c.Query("entity_id"))

	return h.respond(c, req)
}

func (h *ActivityHandler) listFor(entityType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := activityListRequest(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		req.EntityType = entityType
		req.EntityID = c.Params("id")

		return h.respond(c, req)
	}
}

func (h *ActivityHandler) respond(c *fiber.Ctx, req dto.ActivityListRequest) error {
	response, err := h.service.List(requestContext(c), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list activity logs")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list activity logs")
	}

	return utils.OK(c, response.Items, "activity logs", response.Pagination)
}

func activityListRequest(c *fiber.Ctx) (dto.ActivityListRequest, error) {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return dto.ActivityListRequest{}, fiber.NewError(fiber.StatusBadRequest, "invalid page")
	}
	if page <= 0 {
		page = 1
	}

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return dto.ActivityListRequest{}, fiber.NewError(fiber.StatusBadRequest, "invalid page size")
	}
	if pageSize <= 0 {
		pageSize = 25
	} else if pageSize > 200 {
		pageSize = 200
	}

	req := dto.ActivityListRequest{
		Page:     page,
		PageSize: pageSize,
		ActorID:  strings.TrimSpace(c.Query("actor_id")),
		Action:   strings.TrimSpace(c.Query("action")),
	}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return dto.ActivityListRequest{}, fiber.NewError(fiber.StatusBadRequest, "since must be an RFC3339 timestamp")
		}
		req.Since = &since
	}

	return req, nil
}
