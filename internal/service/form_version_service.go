package service

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
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

// FormWorkflowConfig tunes the form mutation services.
type FormWorkflowConfig struct {
	MaxUploadMB     int
	ConflictRetries int
}

// FormVersionService manages the append-only version list of forms.
type FormVersionService interface {
	SubmitInitialForm(ctx context.Context, payload dto.FormCreateRequest, file *multipart.FileHeader, actor models.Identity) (dto.FormSubmissionResponse, error)
	UploadNewVersion(ctx context.Context, formID string, file *multipart.FileHeader, actor models.Identity) (dto.FormSubmissionResponse, error)
}

type formVersionService struct {
	forms     repository.FormRepository
	writer    *formWriter
	storage   FileStorage
	files     formFileValidator
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewFormVersionService constructs the version manager.
func NewFormVersionService(forms repository.FormRepository, storage FileStorage, validate *validator.Validate, activity ActivityRecorder, cfg FormWorkflowConfig, logger zerolog.Logger, listeners ...FormChangeListener) FormVersionService {
	componentLogger := logger.With().Str("component", "form_version_service").Logger()
	return &formVersionService{
		forms:     forms,
		writer:    newFormWriter(forms, cfg.ConflictRetries, componentLogger, listeners...),
		storage:   storage,
		files:     newFormFileValidator(cfg.MaxUploadMB),
		validator: validate,
		activity:  activity,
		logger:    componentLogger,
		tracer:    otel.Tracer("github.com/noah-isme/sciencefair-api/internal/service/form_version"),
		now:       time.Now,
	}
}

func (s *formVersionService) SubmitInitialForm(ctx context.Context, payload dto.FormCreateRequest, file *multipart.FileHeader, actor models.Identity) (dto.FormSubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "forms.submit_initial")
	defer span.End()
	span.SetAttributes(
		attribute.String("form.project_id", payload.ProjectID),
		attribute.String("form.type", payload.FormType),
	)

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.FormSubmissionResponse{}, validationError(err)
	}

	formType, ok := models.CanonicalFormType(payload.FormType)
	if !ok {
		span.SetStatus(codes.Error, "unknown_form_type")
		return dto.FormSubmissionResponse{}, ErrUnknownFormType
	}

	upload, err := s.files.read(file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "file_rejected")
		return dto.FormSubmissionResponse{}, err
	}

	now := s.now().UTC()
	projectID := strings.TrimSpace(payload.ProjectID)
	url, err := s.storage.Upload(ctx, initialFormKey(projectID, now, upload.name), bytes.NewReader(upload.payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "blob_upload_failed")
		return dto.FormSubmissionResponse{}, fmt.Errorf("upload form file: %w: %w", ErrPersistence, err)
	}

	responsible := strings.TrimSpace(payload.ResponsibleStudentID)
	if responsible == "" {
		responsible = payload.StudentID
	}

	form := models.FormSubmission{
		ID:          uuid.NewString(),
		FormType:    formType,
		Title:       strings.TrimSpace(payload.Title),
		FileName:    upload.name,
		StudentID:   payload.StudentID,
		StudentName: payload.StudentName,
		ProjectContext: models.ProjectContext{
			ProjectID:            projectID,
			ProjectName:          strings.TrimSpace(payload.ProjectName),
			ResponsibleStudentID: responsible,
			AssignedAt:           now,
		},
		Versions: []models.FormVersion{{
			VersionNumber: 1,
			FileURL:       url,
			UploadedAt:    now,
			UploadedBy:    actor.UserID,
			Status:        models.ReviewStatusPending,
			Reviews:       []models.Review{},
		}},
		CurrentVersion: 0,
		Status:         models.ReviewStatusPending,
		Reviewers:      []models.ReviewerAssignment{},
		IsRequired:     payload.IsRequired,
		UploadDate:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.writer.create(ctx, &form); err != nil {
		s.logOrphanedBlob(url, form.ID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "form_create_failed")
		return dto.FormSubmissionResponse{}, err
	}

	observability.FormVersionsUploaded().Inc()
	span.SetAttributes(attribute.String("form.id", form.ID))
	s.logger.Info().Str("form_id", form.ID).Str("project_id", projectID).Msg("form submitted")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActionFormCreated,
		EntityType: "form",
		EntityID:   form.ID,
		Metadata: map[string]interface{}{
			"project_id": projectID,
			"form_type":  formType,
			"file_url":   url,
		},
	})

	return dto.NewFormSubmissionResponse(form), nil
}

func (s *formVersionService) UploadNewVersion(ctx context.Context, formID string, file *multipart.FileHeader, actor models.Identity) (dto.FormSubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "forms.upload_version")
	defer span.End()
	span.SetAttributes(attribute.String("form.id", formID))

	upload, err := s.files.read(file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "file_rejected")
		return dto.FormSubmissionResponse{}, err
	}

	existing, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		err = storeError("load form", err, ErrFormNotFound)
		span.RecordError(err)
		span.SetStatus(codes.Error, "form_lookup_failed")
		return dto.FormSubmissionResponse{}, err
	}

	now := s.now().UTC()
	key := versionFormKey(existing.ProjectContext.ProjectID, now, len(existing.Versions)+1, upload.name)
	url, err := s.storage.Upload(ctx, key, bytes.NewReader(upload.payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "blob_upload_failed")
		return dto.FormSubmissionResponse{}, fmt.Errorf("upload form file: %w: %w", ErrPersistence, err)
	}

	form, err := s.writer.mutate(ctx, "upload form version", formID, func(form *models.FormSubmission) error {
		form.Versions = append(form.Versions, models.FormVersion{
			VersionNumber: len(form.Versions) + 1,
			FileURL:       url,
			UploadedAt:    now,
			UploadedBy:    actor.UserID,
			Status:        models.ReviewStatusPending,
			Reviews:       []models.Review{},
		})
		form.CurrentVersion = len(form.Versions) - 1
		form.Status = models.ReviewStatusPending
		form.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logOrphanedBlob(url, formID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "form_update_failed")
		return dto.FormSubmissionResponse{}, err
	}

	versionNumber := form.Versions[form.CurrentVersion].VersionNumber
	observability.FormVersionsUploaded().Inc()
	span.SetAttributes(attribute.Int("form.version_number", versionNumber))
	s.logger.Info().Str("form_id", form.ID).Int("version_number", versionNumber).Msg("form version uploaded")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActionFormVersionUploaded,
		EntityType: "form",
		EntityID:   form.ID,
		Metadata: map[string]interface{}{
			"project_id":     form.ProjectContext.ProjectID,
			"version_number": versionNumber,
			"file_url":       url,
		},
	})

	return dto.NewFormSubmissionResponse(form), nil
}

// logOrphanedBlob records a blob whose document write failed; cleanup is manual.
func (s *formVersionService) logOrphanedBlob(url, formID string, cause error) {
	s.logger.Error().Err(cause).Str("blob_url", url).Str("form_id", formID).Msg("form document write failed after blob upload; blob orphaned")
}
