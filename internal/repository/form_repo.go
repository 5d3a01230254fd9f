package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/sciencefair-api/internal/models"
)

// ErrRevisionConflict indicates another writer updated the form between read and write.
var ErrRevisionConflict = errors.New("form revision changed during update")

// FormFilter narrows form queries. Nil fields are ignored.
type FormFilter struct {
	ProjectID  *string
	StudentID  *string
	FormID     *string
	AssignedTo *string
	ReviewedBy *string
	Statuses   []models.ReviewStatus
}

// FormMutation edits a form in memory inside a write transaction.
type FormMutation func(form *models.FormSubmission) error

// FormRepository is the persistence surface for form documents.
type FormRepository interface {
	Create(ctx context.Context, form *models.FormSubmission) error
	GetByID(ctx context.Context, id string) (models.FormSubmission, error)
	List(ctx context.Context, filter FormFilter) ([]models.FormSubmission, error)
	Mutate(ctx context.Context, id string, mutate FormMutation) (models.FormSubmission, error)
	CountByProject(ctx context.Context, projectID string, statuses ...models.ReviewStatus) (int64, error)
}

type formRepository struct {
	db *gorm.DB
}

// NewFormRepository instantiates the repository.
func NewFormRepository(db *gorm.DB) FormRepository {
	return &formRepository{db: db}
}

func (r *formRepository) Create(ctx context.Context, form *models.FormSubmission) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(form).Error; err != nil {
			return err
		}
		return syncParticipants(tx, *form)
	})
}

func (r *formRepository) GetByID(ctx context.Context, id string) (models.FormSubmission, error) {
	var form models.FormSubmission
	if err := r.db.WithContext(ctx).First(&form, "id = ?", id).Error; err != nil {
		return models.FormSubmission{}, err
	}

	return form, nil
}

func (r *formRepository) List(ctx context.Context, filter FormFilter) ([]models.FormSubmission, error) {
	query := r.db.WithContext(ctx).Model(&models.FormSubmission{})

	if filter.FormID != nil {
		query = query.Where("id = ?", *filter.FormID)
	}

	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}

	if filter.AssignedTo != nil {
		query = query.Where("id IN (?)", r.participantSubquery(ctx, *filter.AssignedTo, models.FormParticipantAssigned))
	}

	if filter.ReviewedBy != nil {
		query = query.Where("id IN (?)", r.participantSubquery(ctx, *filter.ReviewedBy, models.FormParticipantReviewed))
	}

	var forms []models.FormSubmission
	if err := query.Order("created_at ASC").Order("id ASC").Find(&forms).Error; err != nil {
		return nil, err
	}

	return forms, nil
}

func (r *formRepository) participantSubquery(ctx context.Context, userID string, kind models.FormParticipantKind) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.FormParticipant{}).
		Select("form_id").
		Where("user_id = ?", userID).
		Where("kind = ?", kind)
}

// Mutate performs an atomic read-modify-write of one form. The row is locked where the
// dialect supports it and the write is guarded by the revision read, so a concurrent
// update surfaces as ErrRevisionConflict instead of being silently overwritten.
func (r *formRepository) Mutate(ctx context.Context, id string, mutate FormMutation) (models.FormSubmission, error) {
	var result models.FormSubmission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var form models.FormSubmission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&form, "id = ?", id).Error; err != nil {
			return err
		}

		readRevision := form.Revision
		if err := mutate(&form); err != nil {
			return err
		}
		form.Revision = readRevision + 1

		update := tx.Model(&models.FormSubmission{}).
			Where("id = ?", id).
			Where("revision = ?", readRevision).
			Updates(map[string]interface{}{
				"file_name":       form.FileName,
				"versions":        form.Versions,
				"current_version": form.CurrentVersion,
				"status":          form.Status,
				"reviewers":       form.Reviewers,
				"revision":        form.Revision,
				"updated_at":      form.UpdatedAt,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return ErrRevisionConflict
		}

		if err := syncParticipants(tx, form); err != nil {
			return err
		}

		result = form
		return nil
	})
	if err != nil {
		return models.FormSubmission{}, err
	}

	return result, nil
}

func (r *formRepository) CountByProject(ctx context.Context, projectID string, statuses ...models.ReviewStatus) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.FormSubmission{}).Where("project_id = ?", projectID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}

	return total, nil
}

func syncParticipants(tx *gorm.DB, form models.FormSubmission) error {
	if err := tx.Where("form_id = ?", form.ID).Delete(&models.FormParticipant{}).Error; err != nil {
		return err
	}

	rows := form.Participants()
	if len(rows) == 0 {
		return nil
	}

	return tx.Create(&rows).Error
}
