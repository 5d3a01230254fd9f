package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sciencefair-api/internal/dto"
	"github.com/noah-isme/sciencefair-api/internal/models"
	"github.com/noah-isme/sciencefair-api/internal/repository"
)

// FormQueryService exposes read access to form documents.
type FormQueryService interface {
	Get(ctx context.Context, id string) (dto.FormSubmissionResponse, error)
	List(ctx context.Context, filter dto.FormListFilter) ([]dto.FormSubmissionResponse, error)
	AssignedTo(ctx context.Context, userID string) ([]dto.FormSubmissionResponse, error)
	ReviewedBy(ctx context.Context, userID string) ([]dto.FormSubmissionResponse, error)
}

type formQueryService struct {
	forms     repository.FormRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewFormQueryService constructs the read side of the form workflow.
func NewFormQueryService(forms repository.FormRepository, validate *validator.Validate, logger zerolog.Logger) FormQueryService {
	return &formQueryService{
		forms:     forms,
		validator: validate,
		logger:    logger.With().Str("component", "form_query_service").Logger(),
	}
}

func (s *formQueryService) Get(ctx context.Context, id string) (dto.FormSubmissionResponse, error) {
	form, err := s.forms.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return dto.FormSubmissionResponse{}, storeError("get form", err, ErrFormNotFound)
	}

	return dto.NewFormSubmissionResponse(form), nil
}

func (s *formQueryService) List(ctx context.Context, filter dto.FormListFilter) ([]dto.FormSubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, validationError(err)
	}

	repoFilter := repository.FormFilter{
		ProjectID: trimmedOrNil(filter.ProjectID),
		StudentID: trimmedOrNil(filter.StudentID),
	}
	for _, raw := range filter.Statuses {
		status, err := models.ParseReviewStatus(raw)
		if err != nil {
			return nil, ErrInvalidReviewStatus
		}
		repoFilter.Statuses = append(repoFilter.Statuses, status)
	}

	return s.list(ctx, "list forms", repoFilter)
}

func (s *formQueryService) AssignedTo(ctx context.Context, userID string) ([]dto.FormSubmissionResponse, error) {
	return s.list(ctx, "list assigned forms", repository.FormFilter{AssignedTo: &userID})
}

func (s *formQueryService) ReviewedBy(ctx context.Context, userID string) ([]dto.FormSubmissionResponse, error) {
	return s.list(ctx, "list reviewed forms", repository.FormFilter{ReviewedBy: &userID})
}

func (s *formQueryService) list(ctx context.Context, op string, filter repository.FormFilter) ([]dto.FormSubmissionResponse, error) {
	forms, err := s.forms.List(ctx, filter)
	if err != nil {
		s.logger.Error().Err(err).Str("operation", op).Msg("form query failed")
		return nil, storeError(op, err, ErrFormNotFound)
	}

	return dto.NewFormSubmissionResponseSlice(forms), nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
