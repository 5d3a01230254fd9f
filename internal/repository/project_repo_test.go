package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/sciencefair-api/internal/models"
)

func TestProjectRepositoryUpdateStatus(t *testing.T) {
	db := setupFormTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Project{ID: "proj-1", Name: "Solar Still", Status: models.ProjectStatusPending}))

	comments := "looks complete"
	reviewedAt := time.Now().UTC().Truncate(time.Second)
	project, err := repo.UpdateStatus(ctx, "proj-1", ProjectStatusUpdate{
		Status:         models.ProjectStatusApproved,
		ReviewedBy:     "admin-1",
		ReviewedAt:     reviewedAt,
		StatusComments: &comments,
	})
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusApproved, project.Status)
	require.Equal(t, "admin-1", project.LastReviewedBy)
	require.NotNil(t, project.LastReviewedAt)
	require.True(t, reviewedAt.Equal(project.LastReviewedAt.UTC()))
	require.Equal(t, "looks complete", project.StatusComments)

	project, err = repo.UpdateStatus(ctx, "proj-1", ProjectStatusUpdate{
		Status:     models.ProjectStatusNeedsRevision,
		ReviewedBy: "admin-2",
		ReviewedAt: reviewedAt,
	})
	require.NoError(t, err)
	require.Equal(t, "looks complete", project.StatusComments, "comments are kept when none are supplied")

	_, err = repo.UpdateStatus(ctx, "missing", ProjectStatusUpdate{Status: models.ProjectStatusApproved})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestActivityLogRepositoryFiltersByEntity(t *testing.T) {
	db := setupFormTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	entries := []models.ActivityLog{
		{ActorID: "stu-1", ActorRole: "student", Action: "form.created", EntityType: "form", EntityID: "form-1"},
		{ActorID: "judge-1", ActorRole: "judge", Action: "form.review_submitted", EntityType: "form", EntityID: "form-1"},
		{ActorID: "admin-1", ActorRole: "admin", Action: "project.status_updated", EntityType: "project", EntityID: "proj-1"},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	formID := "form-1"
	items, total, err := repo.List(ctx, ActivityLogFilter{EntityType: "form", EntityID: &formID, Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, items, 1)

	actor := "admin-1"
	items, total, err = repo.List(ctx, ActivityLogFilter{ActorID: &actor})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "project.status_updated", items[0].Action)
}
