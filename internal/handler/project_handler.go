package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sciencefair-api/internal/dto"
	"github.com/noah-isme/sciencefair-api/internal/middleware"
	"github.com/noah-isme/sciencefair-api/internal/service"
	"github.com/noah-isme/sciencefair-api/internal/utils"
)

// ProjectHandler exposes the project aggregation gate.
type ProjectHandler struct {
	service service.ProjectGateService
	logger  zerolog.Logger
}

// NewProjectHandler constructs the handler.
func NewProjectHandler(service service.ProjectGateService, logger zerolog.Logger) *ProjectHandler {
	return &ProjectHandler{
		service: service,
		logger:  logger.With().Str("component", "project_handler").Logger(),
	}
}

// Register binds the project routes.
func (h *ProjectHandler) Register(router fiber.Router) {
	router.Get("/:id/resolution", h.resolution)
	router.Get("/:id/summary", middleware.RequireRole("admin", "teacher"), h.summary)
	router.Patch("/:id/status", middleware.RequireRole("admin"), h.updateStatus)
}

func (h *ProjectHandler) resolution(c *fiber.Ctx) error {
	projectID := c.Params("id")
	resolved, err := h.service.AllFormsResolved(requestContext(c), projectID)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "project resolution", dto.ProjectResolutionResponse{
		ProjectID:        projectID,
		AllFormsResolved: resolved,
	})
}

func (h *ProjectHandler) summary(c *fiber.Ctx) error {
	summary, err := h.service.Summary(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "project form summary", summary)
}

func (h *ProjectHandler) updateStatus(c *fiber.Ctx) error {
	identity, ok := identityFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.ProjectStatusUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	project, err := h.service.UpdateProjectStatus(requestContext(c), c.Params("id"), payload, identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "project status updated", project)
}
