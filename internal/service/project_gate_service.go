package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/sciencefair-api/internal/dto"
	"github.com/noah-isme/sciencefair-api/internal/models"
	"github.com/noah-isme/sciencefair-api/internal/observability"
	"github.com/noah-isme/sciencefair-api/internal/repository"
)

// ProjectGateConfig tunes the project aggregation gate.
type ProjectGateConfig struct {
	SummaryTTL time.Duration
	// EnforceGate refuses approved/rejected while any form is unresolved.
	EnforceGate bool
}

// ProjectGateService aggregates form statuses per project and writes project review status.
type ProjectGateService interface {
	FormChangeListener
	AllFormsResolved(ctx context.Context, projectID string) (bool, error)
	Summary(ctx context.Context, projectID string) (dto.ProjectFormSummary, error)
	UpdateProjectStatus(ctx context.Context, projectID string, payload dto.ProjectStatusUpdateRequest, actor models.Identity) (dto.ProjectResponse, error)
}

type projectGateService struct {
	forms     repository.FormRepository
	projects  repository.ProjectRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	enforce   bool
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewProjectGateService constructs the gate. cache may be nil.
func NewProjectGateService(forms repository.FormRepository, projects repository.ProjectRepository, cache *redis.Client, validate *validator.Validate, activity ActivityRecorder, cfg ProjectGateConfig, logger zerolog.Logger) ProjectGateService {
	ttl := cfg.SummaryTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &projectGateService{
		forms:     forms,
		projects:  projects,
		cache:     cache,
		cacheTTL:  ttl,
		enforce:   cfg.EnforceGate,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "project_gate_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/sciencefair-api/internal/service/project_gate"),
		now:       time.Now,
	}
}

// AllFormsResolved is true iff the project has at least one form and none is still open.
// The project record itself need not exist.
func (s *projectGateService) AllFormsResolved(ctx context.Context, projectID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "projects.all_forms_resolved")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	total, err := s.forms.CountByProject(ctx, projectID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count_failed")
		return false, storeError("count project forms", err, ErrProjectNotFound)
	}

	unresolved, err := s.forms.CountByProject(ctx, projectID,
		models.ReviewStatusPending,
		models.ReviewStatusInReview,
		models.ReviewStatusNeedsRevision,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count_failed")
		return false, storeError("count unresolved project forms", err, ErrProjectNotFound)
	}

	resolved := total > 0 && unresolved == 0
	observability.ProjectGateChecks().WithLabelValues(gateResult(resolved)).Inc()
	span.SetAttributes(attribute.Bool("project.all_forms_resolved", resolved))

	return resolved, nil
}

// Summary counts the project's forms by status. Cached entries are keyed by the project's
// form generation, so a summary computed from a read that raced a mutation is never served
// after that mutation's notification.
func (s *projectGateService) Summary(ctx context.Context, projectID string) (dto.ProjectFormSummary, error) {
	ctx, span := s.tracer.Start(ctx, "projects.summary")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	// The generation must be read before the forms so a concurrent bump always lands
	// on a newer key than the one this read fills.
	generation, cached := s.cachedSummary(ctx, projectID)
	if cached != nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return *cached, nil
	}

	forms, err := s.forms.List(ctx, repository.FormFilter{ProjectID: &projectID})
	if err != nil {
		err = storeError("summarize project forms", err, ErrProjectNotFound)
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_failed")
		return dto.ProjectFormSummary{}, err
	}

	summary := dto.ProjectFormSummary{
		ProjectID:   projectID,
		Total:       len(forms),
		ByStatus:    make(map[string]int, len(models.ReviewStatuses)),
		Outstanding: []string{},
	}
	for _, status := range models.ReviewStatuses {
		summary.ByStatus[string(status)] = 0
	}
	for _, form := range forms {
		summary.ByStatus[string(form.Status)]++
		if form.IsRequired {
			summary.Required++
		}
		if form.Status.Resolved() {
			summary.Resolved++
		} else {
			summary.Outstanding = append(summary.Outstanding, form.ID)
		}
	}
	summary.AllFormsResolved = summary.Total > 0 && summary.Resolved == summary.Total
	span.SetAttributes(attribute.Bool("project.all_forms_resolved", summary.AllFormsResolved))

	if s.cache != nil && generation >= 0 {
		if payload, marshalErr := json.Marshal(summary); marshalErr == nil {
			if err := s.cache.Set(ctx, summaryCacheKey(projectID, generation), payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store project summary cache")
			}
		}
	}

	return summary, nil
}

// cachedSummary returns the project's current form generation and the summary cached for
// it, if any. A negative generation means the cache is unusable for this call.
func (s *projectGateService) cachedSummary(ctx context.Context, projectID string) (int64, *dto.ProjectFormSummary) {
	if s.cache == nil {
		return -1, nil
	}

	generation, err := s.cache.Get(ctx, generationKey(projectID)).Int64()
	if errors.Is(err, redis.Nil) {
		generation = 0
	} else if err != nil {
		s.logger.Warn().Err(err).Str("project_id", projectID).Msg("failed to read project form generation")
		return -1, nil
	}

	raw, err := s.cache.Get(ctx, summaryCacheKey(projectID, generation)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read project summary cache")
		}
		return generation, nil
	}

	var summary dto.ProjectFormSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return generation, nil
	}
	s.logger.Debug().Str("project_id", projectID).Int64("generation", generation).Msg("project summary cache hit")
	return generation, &summary
}

// UpdateProjectStatus writes the review fields of a project and reports the gate result
// alongside. The gate only blocks the write when enforcement is configured.
func (s *projectGateService) UpdateProjectStatus(ctx context.Context, projectID string, payload dto.ProjectStatusUpdateRequest, actor models.Identity) (dto.ProjectResponse, error) {
	ctx, span := s.tracer.Start(ctx, "projects.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("project.id", projectID),
		attribute.String("project.status", payload.Status),
	)

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ProjectResponse{}, validationError(err)
	}

	status, err := models.ParseProjectStatus(payload.Status)
	if err != nil {
		span.SetStatus(codes.Error, "invalid_status")
		return dto.ProjectResponse{}, ErrInvalidProjectStatus
	}

	resolved, err := s.AllFormsResolved(ctx, projectID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gate_check_failed")
		return dto.ProjectResponse{}, err
	}

	if s.enforce && !resolved && (status == models.ProjectStatusApproved || status == models.ProjectStatusRejected) {
		span.SetStatus(codes.Error, "forms_pending")
		return dto.ProjectResponse{}, ErrProjectFormsPending
	}

	var comments *string
	if payload.Comments != nil {
		trimmed := strings.TrimSpace(*payload.Comments)
		comments = &trimmed
	}

	project, err := s.projects.UpdateStatus(ctx, projectID, repository.ProjectStatusUpdate{
		Status:         status,
		ReviewedBy:     actor.UserID,
		ReviewedAt:     s.now().UTC(),
		StatusComments: comments,
	})
	if err != nil {
		err = storeError("update project status", err, ErrProjectNotFound)
		span.RecordError(err)
		span.SetStatus(codes.Error, "update_failed")
		return dto.ProjectResponse{}, err
	}

	s.logger.Info().Str("project_id", projectID).Str("status", string(status)).Bool("all_forms_resolved", resolved).Msg("project status updated")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActionProjectStatusUpdated,
		EntityType: "project",
		EntityID:   projectID,
		Metadata: map[string]interface{}{
			"status":             string(status),
			"all_forms_resolved": resolved,
		},
	})

	return dto.NewProjectResponse(project, resolved), nil
}

// FormChanged bumps the form generation of the form's project, retiring every cached summary.
func (s *projectGateService) FormChanged(ctx context.Context, form models.FormSubmission) {
	if s.cache == nil {
		return
	}
	projectID := form.ProjectContext.ProjectID
	if err := s.cache.Incr(ctx, generationKey(projectID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("project_id", projectID).Msg("failed to invalidate project summary cache")
	}
}

func generationKey(projectID string) string {
	return fmt.Sprintf("project:forms:gen:%s", projectID)
}

func summaryCacheKey(projectID string, generation int64) string {
	return fmt.Sprintf("project:forms:summary:%s:%d", projectID, generation)
}

func gateResult(resolved bool) string {
	if resolved {
		return "resolved"
	}
	return "open"
}
