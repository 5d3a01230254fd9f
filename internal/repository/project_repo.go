package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/sciencefair-api/internal/models"
)

// ProjectStatusUpdate carries the review fields written on a project.
type ProjectStatusUpdate struct {
	Status         models.ProjectStatus
	ReviewedBy     string
	ReviewedAt     time.Time
	StatusComments *string
}

// ProjectRepository reads projects and writes their review status.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (models.Project, error)
	UpdateStatus(ctx context.Context, id string, update ProjectStatusUpdate) (models.Project, error)
}

type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository instantiates the repository.
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *projectRepository) GetByID(ctx context.Context, id string) (models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		return models.Project{}, err
	}

	return project, nil
}

func (r *projectRepository) UpdateStatus(ctx context.Context, id string, update ProjectStatusUpdate) (models.Project, error) {
	updates := map[string]interface{}{
		"status":           update.Status,
		"last_reviewed_by": update.ReviewedBy,
		"last_reviewed_at": update.ReviewedAt,
	}
	if update.StatusComments != nil {
		updates["status_comments"] = *update.StatusComments
	}

	tx := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		return models.Project{}, tx.Error
	}
	if tx.RowsAffected == 0 {
		return models.Project{}, gorm.ErrRecordNotFound
	}

	return r.GetByID(ctx, id)
}
