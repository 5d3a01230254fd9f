package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/sciencefair-api/internal/dto"
	"github.com/noah-isme/sciencefair-api/internal/middleware"
	"github.com/noah-isme/sciencefair-api/internal/models"
	"github.com/noah-isme/sciencefair-api/internal/repository"
)

// Audit actions written by the form workflow.
const (
	ActionFormCreated          = "form.created"
	ActionFormVersionUploaded  = "form.version_uploaded"
	ActionFormReviewerAssigned = "form.reviewer_assigned"
	ActionFormReviewSubmitted  = "form.review_submitted"
	ActionProjectStatusUpdated = "project.status_updated"
)

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	Actor      models.Identity
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]interface{}
}

// ActivityRecorder defines behaviour for recording audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error)
}

// ActivityService exposes methods to query and persist the audit trail.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error)
}

type activityService struct {
	repo   repository.ActivityLogRepository
	logger zerolog.Logger
}

// NewActivityService constructs the audit trail service.
func NewActivityService(repo repository.ActivityLogRepository, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		logger: logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	if strings.TrimSpace(entry.Action) == "" {
		return dto.ActivityResponse{}, fmt.Errorf("action is required")
	}
	if strings.TrimSpace(entry.EntityType) == "" {
		return dto.ActivityResponse{}, fmt.Errorf("entity type is required")
	}

	metadata := maskMetadata(entry.Metadata)
	if correlationID := middleware.CorrelationIDFromContext(ctx); correlationID != "" {
		metadata["correlation_id"] = correlationID
	}

	model := models.ActivityLog{
		ActorID:    entry.Actor.UserID,
		ActorRole:  actorRole(entry.Actor),
		Action:     strings.ToLower(strings.TrimSpace(entry.Action)),
		EntityType: strings.ToLower(strings.TrimSpace(entry.EntityType)),
		EntityID:   entry.EntityID,
		Metadata:   metadata,
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).
			Str("action", model.Action).
			Str("entity_id", model.EntityID).
			Msg("audit entry not persisted")
		return dto.ActivityResponse{}, err
	}

	return dto.NewActivityResponse(model), nil
}

func (s *activityService) List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	filter := repository.ActivityLogFilter{
		Page:       req.Page,
		PageSize:   req.PageSize,
		Action:     strings.TrimSpace(req.Action),
		EntityType: strings.TrimSpace(req.EntityType),
		Since:      req.Since,
	}
	if actor := strings.TrimSpace(req.ActorID); actor != "" {
		filter.ActorID = &actor
	}
	if entity := strings.TrimSpace(req.EntityID); entity != "" {
		filter.EntityID = &entity
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.ActivityListResponse{}, storeError("list activity", err, ErrNotFound)
	}

	responses := make([]dto.ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, dto.NewActivityResponse(entry))
	}

	return dto.ActivityListResponse{Items: responses, Pagination: pageMeta(req.Page, req.PageSize, total)}, nil
}

// pageMeta reports a single page when the caller did not ask for paging.
func pageMeta(page, pageSize int, total int64) dto.PaginationMeta {
	meta := dto.PaginationMeta{Page: max(page, 1), PageSize: pageSize, TotalItems: total, TotalPages: 1}
	if pageSize > 0 {
		meta.TotalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	return meta
}

// recordActivity writes an audit entry without failing the calling operation.
func recordActivity(ctx context.Context, recorder ActivityRecorder, logger zerolog.Logger, entry ActivityEntry) {
	if recorder == nil {
		return
	}
	if _, err := recorder.Record(ctx, entry); err != nil {
		logger.Warn().Err(err).Str("action", entry.Action).Str("entity_id", entry.EntityID).Msg("failed to record activity")
	}
}

var sensitiveMetadataKeys = []string{"email", "token", "password", "secret"}

func maskMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	masked := datatypes.JSONMap{}
	for key, value := range metadata {
		masked[key] = value
		lower := strings.ToLower(key)
		for _, sensitive := range sensitiveMetadataKeys {
			if strings.Contains(lower, sensitive) {
				masked[key] = "***"
				break
			}
		}
	}
	return masked
}

func actorRole(actor models.Identity) string {
	if role := strings.ToLower(strings.TrimSpace(string(actor.Role))); role != "" {
		return role
	}
	return "system"
}
