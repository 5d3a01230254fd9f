package service

import (
	"context"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
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

// ReviewService applies reviewer verdicts to the current version of a form.
type ReviewService interface {
	SubmitReview(ctx context.Context, formID string, payload dto.ReviewSubmitRequest, actor models.Identity) (dto.FormSubmissionResponse, error)
}

type reviewService struct {
	writer    *formWriter
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	activity  ActivityRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewReviewService constructs the review state machine.
func NewReviewService(forms repository.FormRepository, validate *validator.Validate, activity ActivityRecorder, cfg FormWorkflowConfig, logger zerolog.Logger, listeners ...FormChangeListener) ReviewService {
	componentLogger := logger.With().Str("component", "review_service").Logger()
	return &reviewService{
		writer:    newFormWriter(forms, cfg.ConflictRetries, componentLogger, listeners...),
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		activity:  activity,
		logger:    componentLogger,
		tracer:    otel.Tracer("github.com/noah-isme/sciencefair-api/internal/service/review"),
		now:       time.Now,
	}
}

// SubmitReview records the verdict on the current version. Any status may follow any
// other; the latest review decides both the version status and the form status.
func (s *reviewService) SubmitReview(ctx context.Context, formID string, payload dto.ReviewSubmitRequest, actor models.Identity) (dto.FormSubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "forms.submit_review")
	defer span.End()
	span.SetAttributes(
		attribute.String("form.id", formID),
		attribute.String("review.reviewer_id", payload.ReviewerID),
		attribute.String("review.status", payload.Status),
	)

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.FormSubmissionResponse{}, validationError(err)
	}

	comments := s.cleanComments(payload.Comments)
	if comments == "" {
		span.SetStatus(codes.Error, "empty_comments")
		return dto.FormSubmissionResponse{}, ErrEmptyComments
	}

	status, err := models.ParseReviewStatus(payload.Status)
	if err != nil {
		span.SetStatus(codes.Error, "invalid_status")
		return dto.FormSubmissionResponse{}, ErrInvalidReviewStatus
	}

	var role models.ReviewerRole
	if strings.TrimSpace(payload.Role) != "" {
		role = models.ReviewerRole(strings.ToLower(strings.TrimSpace(payload.Role)))
		if !role.Valid() {
			span.SetStatus(codes.Error, "invalid_role")
			return dto.FormSubmissionResponse{}, ErrInvalidReviewerRole
		}
	}

	reviewerID := strings.TrimSpace(payload.ReviewerID)
	now := s.now().UTC()
	form, err := s.writer.mutate(ctx, "submit review", formID, func(form *models.FormSubmission) error {
		current, ok := form.Current()
		if !ok {
			return ErrVersionNotFound
		}

		current.Reviews = append(current.Reviews, models.Review{
			ReviewerID:    reviewerID,
			ReviewerName:  payload.ReviewerName,
			ReviewerEmail: payload.ReviewerEmail,
			Role:          rosterRole(*form, reviewerID, role),
			Status:        status,
			Comments:      comments,
			Timestamp:     now,
		})
		current.Status = status
		form.Status = status

		// Assignment is advisory: an unassigned reviewer's verdict still counts.
		for i := range form.Reviewers {
			if form.Reviewers[i].UserID == reviewerID {
				completedAt := now
				form.Reviewers[i].Status = models.AssignmentStatusCompleted
				form.Reviewers[i].CompletedAt = &completedAt
			}
		}

		form.UpdatedAt = now
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "review_failed")
		return dto.FormSubmissionResponse{}, err
	}

	observability.FormReviewsSubmitted().WithLabelValues(string(status)).Inc()
	s.logger.Info().Str("form_id", form.ID).Str("reviewer_id", reviewerID).Str("status", string(status)).Msg("review submitted")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActionFormReviewSubmitted,
		EntityType: "form",
		EntityID:   form.ID,
		Metadata: map[string]interface{}{
			"project_id":     form.ProjectContext.ProjectID,
			"reviewer_id":    reviewerID,
			"status":         string(status),
			"version_number": form.CurrentVersion + 1,
		},
	})

	return dto.NewFormSubmissionResponse(form), nil
}

func (s *reviewService) cleanComments(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(raw)))
}

// rosterRole falls back to the reviewer's assigned role, then to primary, when the verdict names none.
func rosterRole(form models.FormSubmission, reviewerID string, requested models.ReviewerRole) models.ReviewerRole {
	if requested != "" {
		return requested
	}
	for _, reviewer := range form.Reviewers {
		if reviewer.UserID == reviewerID {
			return reviewer.Role
		}
	}
	return models.ReviewerRolePrimary
}
