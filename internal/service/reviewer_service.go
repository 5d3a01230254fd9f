package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/sciencefair-api/internal/dto"
	"github.com/noah-isme/sciencefair-api/internal/models"
	"github.com/noah-isme/sciencefair-api/internal/repository"
)

// ReviewerService maintains the reviewer roster of forms.
type ReviewerService interface {
	AssignReviewer(ctx context.Context, formID string, payload dto.AssignReviewerRequest, actor models.Identity) (dto.FormSubmissionResponse, error)
}

type reviewerService struct {
	writer    *formWriter
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewReviewerService constructs the reviewer assignment ledger.
func NewReviewerService(forms repository.FormRepository, validate *validator.Validate, activity ActivityRecorder, cfg FormWorkflowConfig, logger zerolog.Logger, listeners ...FormChangeListener) ReviewerService {
	componentLogger := logger.With().Str("component", "reviewer_service").Logger()
	return &reviewerService{
		writer:    newFormWriter(forms, cfg.ConflictRetries, componentLogger, listeners...),
		validator: validate,
		activity:  activity,
		logger:    componentLogger,
		now:       time.Now,
	}
}

// AssignReviewer appends to the roster and moves the form into review. The same
// reviewer may be assigned more than once; each assignment is its own entry.
func (s *reviewerService) AssignReviewer(ctx context.Context, formID string, payload dto.AssignReviewerRequest, actor models.Identity) (dto.FormSubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/sciencefair-api/internal/service/reviewer")
	ctx, span := tracer.Start(ctx, "forms.assign_reviewer")
	span.SetAttributes(
		attribute.String("form.id", formID),
		attribute.String("review.reviewer_id", payload.ReviewerID),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.FormSubmissionResponse{}, validationError(err)
	}

	role := models.ReviewerRole(strings.ToLower(strings.TrimSpace(payload.Role)))
	if !role.Valid() {
		span.SetStatus(codes.Error, "invalid_role")
		return dto.FormSubmissionResponse{}, ErrInvalidReviewerRole
	}

	reviewerID := strings.TrimSpace(payload.ReviewerID)
	now := s.now().UTC()
	form, err := s.writer.mutate(ctx, "assign reviewer", formID, func(form *models.FormSubmission) error {
		form.Reviewers = append(form.Reviewers, models.ReviewerAssignment{
			UserID:     reviewerID,
			Name:       strings.TrimSpace(payload.ReviewerName),
			Role:       role,
			AssignedAt: now,
			Status:     models.AssignmentStatusPending,
		})
		form.Status = models.ReviewStatusInReview
		form.UpdatedAt = now
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assign_failed")
		return dto.FormSubmissionResponse{}, err
	}

	s.logger.Info().Str("form_id", form.ID).Str("reviewer_id", reviewerID).Str("role", string(role)).Msg("reviewer assigned")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActionFormReviewerAssigned,
		EntityType: "form",
		EntityID:   form.ID,
		Metadata: map[string]interface{}{
			"project_id":  form.ProjectContext.ProjectID,
			"reviewer_id": reviewerID,
			"role":        string(role),
		},
	})

	return dto.NewFormSubmissionResponse(form), nil
}
