package dto

import (
	"time"

	"github.com/noah-isme/sciencefair-api/internal/models"
)

// ProjectStatusUpdateRequest sets the review status of a project.
type ProjectStatusUpdateRequest struct {
	Status   string  `json:"status" validate:"required,oneof=pending under_review needs_revision approved rejected"`
	Comments *string `json:"comments" validate:"omitempty,max=2000"`
}

// ProjectResponse serializes a project together with the current gate result.
type ProjectResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Status           string     `json:"status"`
	LastReviewedBy   string     `json:"last_reviewed_by"`
	LastReviewedAt   *time.Time `json:"last_reviewed_at"`
	StatusComments   string     `json:"status_comments"`
	AllFormsResolved bool       `json:"all_forms_resolved"`
}

// ProjectResolutionResponse answers whether every form of a project is resolved.
type ProjectResolutionResponse struct {
	ProjectID        string `json:"project_id"`
	AllFormsResolved bool   `json:"all_forms_resolved"`
}

// ProjectFormSummary is the form-completion summary shown to administrators.
type ProjectFormSummary struct {
	ProjectID        string         `json:"project_id"`
	Total            int            `json:"total"`
	Required         int            `json:"required"`
	Resolved         int            `json:"resolved"`
	ByStatus         map[string]int `json:"by_status"`
	Outstanding      []string       `json:"outstanding"`
	AllFormsResolved bool           `json:"all_forms_resolved"`
}

// NewProjectResponse converts a project model into a DTO.
func NewProjectResponse(model models.Project, resolved bool) ProjectResponse {
	return ProjectResponse{
		ID:               model.ID,
		Name:             model.Name,
		Status:           string(model.Status),
		LastReviewedBy:   model.LastReviewedBy,
		LastReviewedAt:   model.LastReviewedAt,
		StatusComments:   model.StatusComments,
		AllFormsResolved: resolved,
	}
}
