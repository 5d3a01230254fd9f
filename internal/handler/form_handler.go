package handler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sciencefair-api/internal/dto"
	"github.com/noah-isme/sciencefair-api/internal/middleware"
	"github.com/noah-isme/sciencefair-api/internal/service"
	"github.com/noah-isme/sciencefair-api/internal/utils"
)

// FormServices groups the services behind the form endpoints.
type FormServices struct {
	Versions  service.FormVersionService
	Reviewers service.ReviewerService
	Reviews   service.ReviewService
	Queries   service.FormQueryService
	Hub       service.FormHub
}

// FormHandler exposes the form review workflow over HTTP and websocket.
type FormHandler struct {
	services     FormServices
	logger       zerolog.Logger
	pingInterval time.Duration
}

// NewFormHandler constructs the handler.
func NewFormHandler(services FormServices, logger zerolog.Logger) *FormHandler {
	return &FormHandler{
		services:     services,
		logger:       logger.With().Str("component", "form_handler").Logger(),
		pingInterval: 30 * time.Second,
	}
}

var (
	uploaderRoles = []string{"student", "teacher", "admin"}
	reviewerRoles = []string{"teacher", "judge", "admin"}
)

// Register binds the form routes. Static segments are registered before /:id.
func (h *FormHandler) Register(router fiber.Router) {
	router.Use("/live", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/live", websocket.New(h.live))

	router.Get("/assigned", h.assigned)
	router.Get("/reviewed", h.reviewed)
	router.Get("", h.list)
	router.Post("", middleware.RequireRole(uploaderRoles...), h.submit)
	router.Get("/:id", h.get)
	router.Post("/:id/versions", middleware.RequireRole(uploaderRoles...), h.uploadVersion)
	router.Post("/:id/reviewers", middleware.RequireRole("admin"), h.assignReviewer)
	router.Post("/:id/reviews", middleware.RequireRole(reviewerRoles...), h.submitReview)
}

func (h *FormHandler) submit(c *fiber.Ctx) error {
	identity, ok := identityFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.FormCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid form payload")
	}
	payload.StudentID = identity.UserID
	payload.StudentName = identity.Name()
	if payload.ProjectID == "" {
		payload.ProjectID = identity.ProjectID()
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	form, err := h.services.Versions.SubmitInitialForm(requestContext(c), payload, file, identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "form submitted", form)
}

func (h *FormHandler) uploadVersion(c *fiber.Ctx) error {
	identity, ok := identityFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	form, err := h.services.Versions.UploadNewVersion(requestContext(c), c.Params("id"), file, identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "form version uploaded", form)
}

func (h *FormHandler) assignReviewer(c *fiber.Ctx) error {
	identity, ok := identityFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.AssignReviewerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	form, err := h.services.Reviewers.AssignReviewer(requestContext(c), c.Params("id"), payload, identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "reviewer assigned", form)
}

func (h *FormHandler) submitReview(c *fiber.Ctx) error {
	identity, ok := identityFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.ReviewSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.ReviewerID = identity.UserID
	payload.ReviewerName = identity.Name()
	payload.ReviewerEmail = identity.Email

	form, err := h.services.Reviews.SubmitReview(requestContext(c), c.Params("id"), payload, identity)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "review submitted", form)
}

func (h *FormHandler) get(c *fiber.Ctx) error {
	form, err := h.services.Queries.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "form retrieved", form)
}

func (h *FormHandler) list(c *fiber.Ctx) error {
	filter := dto.FormListFilter{
		ProjectID: optionalQuery(c, "project_id"),
		StudentID: optionalQuery(c, "student_id"),
		Statuses:  splitAndTrim(c.Query("status")),
	}

	forms, err := h.services.Queries.List(requestContext(c), filter)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "forms retrieved", forms)
}

func (h *FormHandler) assigned(c *fiber.Ctx) error {
	identity, ok := identityFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	forms, err := h.services.Queries.AssignedTo(requestContext(c), identity.UserID)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assigned forms retrieved", forms)
}

func (h *FormHandler) reviewed(c *fiber.Ctx) error {
	identity, ok := identityFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	forms, err := h.services.Queries.ReviewedBy(requestContext(c), identity.UserID)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "reviewed forms retrieved", forms)
}

// live streams snapshots of one live query until either side closes.
func (h *FormHandler) live(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	userID, _ := conn.Locals("user_id").(string)
	if strings.TrimSpace(userID) == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user not authenticated"))
		return
	}

	ctx, _ := conn.Locals("request_ctx").(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	filter := service.FormSubscriptionFilter{
		ProjectID: conn.Query("project_id"),
		StudentID: conn.Query("student_id"),
		FormID:    conn.Query("form_id"),
	}

	snapshots, unsubscribe, err := h.services.Hub.Subscribe(ctx, filter)
	if err != nil {
		code := websocket.CloseInternalServerErr
		if service.IsValidationError(err) {
			code = websocket.ClosePolicyViolation
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, validationMessage(err)))
		return
	}
	defer unsubscribe()

	logger := h.logger.With().Str("user_id", userID).Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).Logger()
	logger.Info().Msg("live form subscription opened")
	defer logger.Info().Msg("live form subscription closed")

	// The reader only exists to notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			payload, err := json.Marshal(snapshot)
			if err != nil {
				logger.Error().Err(err).Msg("failed to encode form snapshot")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug().Err(err).Msg("failed to write form snapshot")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
