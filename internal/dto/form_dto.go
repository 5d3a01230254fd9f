package dto

import (
	"time"

	"github.com/noah-isme/sciencefair-api/internal/models"
)

// FormCreateRequest describes the multipart payload for the first upload of a form.
type FormCreateRequest struct {
	ProjectID            string `form:"project_id" validate:"required,max=64"`
	ProjectName          string `form:"project_name" validate:"omitempty,max=255"`
	ResponsibleStudentID string `form:"responsible_student_id" validate:"omitempty,max=64"`
	Title                string `form:"title" validate:"required,max=255"`
	FormType             string `form:"form_type" validate:"required,max=64"`
	IsRequired           bool   `form:"is_required"`
	StudentID            string `form:"-" validate:"required,max=64"`
	StudentName          string `form:"-" validate:"omitempty,max=255"`
}

// AssignReviewerRequest adds an entry to a form's reviewer roster.
type AssignReviewerRequest struct {
	ReviewerID   string `json:"reviewer_id" validate:"required,max=64"`
	ReviewerName string `json:"reviewer_name" validate:"required,max=255"`
	Role         string `json:"role" validate:"required,oneof=primary secondary final"`
}

// ReviewSubmitRequest is a reviewer's verdict on the current version. The reviewer
// fields are filled from the authenticated identity.
type ReviewSubmitRequest struct {
	ReviewerID    string `json:"-" validate:"required,max=64"`
	ReviewerName  string `json:"-" validate:"omitempty,max=255"`
	ReviewerEmail string `json:"-" validate:"omitempty,max=255"`
	Role          string `json:"role" validate:"omitempty,oneof=primary secondary final"`
	Status        string `json:"status" validate:"required,oneof=pending in_review needs_revision approved rejected"`
	Comments      string `json:"comments" validate:"max=5000"`
}

// FormListFilter describes query string filters for listing forms.
type FormListFilter struct {
	ProjectID *string  `query:"project_id"`
	StudentID *string  `query:"student_id"`
	Statuses  []string `query:"status" validate:"omitempty,dive,oneof=pending in_review needs_revision approved rejected"`
}

// ReviewResponse serializes a review entry.
type ReviewResponse struct {
	ReviewerID    string    `json:"reviewer_id"`
	ReviewerName  string    `json:"reviewer_name"`
	ReviewerEmail string    `json:"reviewer_email"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	Comments      string    `json:"comments"`
	Timestamp     time.Time `json:"timestamp"`
}

// FormVersionResponse serializes an uploaded version.
type FormVersionResponse struct {
	VersionNumber int              `json:"version_number"`
	FileURL       string           `json:"file_url"`
	UploadedAt    time.Time        `json:"uploaded_at"`
	UploadedBy    string           `json:"uploaded_by"`
	Status        string           `json:"status"`
	Reviews       []ReviewResponse `json:"reviews"`
}

// ReviewerAssignmentResponse serializes a reviewer roster entry.
type ReviewerAssignmentResponse struct {
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	AssignedAt  time.Time  `json:"assigned_at"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
}

// ProjectContextResponse serializes the project binding of a form.
type ProjectContextResponse struct {
	ProjectID            string    `json:"project_id"`
	ProjectName          string    `json:"project_name"`
	ResponsibleStudentID string    `json:"responsible_student_id"`
	AssignedAt           time.Time `json:"assigned_at"`
}

// FormSubmissionResponse mirrors a form document.
type FormSubmissionResponse struct {
	ID             string                       `json:"id"`
	FormType       string                       `json:"form_type"`
	Title          string                       `json:"title"`
	FileName       string                       `json:"file_name"`
	StudentID      string                       `json:"student_id"`
	StudentName    string                       `json:"student_name"`
	ProjectContext ProjectContextResponse       `json:"project_context"`
	Versions       []FormVersionResponse        `json:"versions"`
	CurrentVersion int                          `json:"current_version"`
	Status         string                       `json:"status"`
	Reviewers      []ReviewerAssignmentResponse `json:"reviewers"`
	IsRequired     bool                         `json:"is_required"`
	UploadDate     time.Time                    `json:"upload_date"`
	CreatedAt      time.Time                    `json:"created_at"`
	UpdatedAt      time.Time                    `json:"updated_at"`
}

// NewFormSubmissionResponse converts a form model into a DTO.
func NewFormSubmissionResponse(model models.FormSubmission) FormSubmissionResponse {
	versions := make([]FormVersionResponse, 0, len(model.Versions))
	for _, version := range model.Versions {
		reviews := make([]ReviewResponse, 0, len(version.Reviews))
		for _, review := range version.Reviews {
			reviews = append(reviews, ReviewResponse{
				ReviewerID:    review.ReviewerID,
				ReviewerName:  review.ReviewerName,
				ReviewerEmail: review.ReviewerEmail,
				Role:          string(review.Role),
				Status:        string(review.Status),
				Comments:      review.Comments,
				Timestamp:     review.Timestamp,
			})
		}
		versions = append(versions, FormVersionResponse{
			VersionNumber: version.VersionNumber,
			FileURL:       version.FileURL,
			UploadedAt:    version.UploadedAt,
			UploadedBy:    version.UploadedBy,
			Status:        string(version.Status),
			Reviews:       reviews,
		})
	}

	reviewers := make([]ReviewerAssignmentResponse, 0, len(model.Reviewers))
	for _, reviewer := range model.Reviewers {
		reviewers = append(reviewers, ReviewerAssignmentResponse{
			UserID:      reviewer.UserID,
			Name:        reviewer.Name,
			Role:        string(reviewer.Role),
			AssignedAt:  reviewer.AssignedAt,
			Status:      string(reviewer.Status),
			CompletedAt: reviewer.CompletedAt,
		})
	}

	return FormSubmissionResponse{
		ID:          model.ID,
		FormType:    model.FormType,
		Title:       model.Title,
		FileName:    model.FileName,
		StudentID:   model.StudentID,
		StudentName: model.StudentName,
		ProjectContext: ProjectContextResponse{
			ProjectID:            model.ProjectContext.ProjectID,
			ProjectName:          model.ProjectContext.ProjectName,
			ResponsibleStudentID: model.ProjectContext.ResponsibleStudentID,
			AssignedAt:           model.ProjectContext.AssignedAt,
		},
		Versions:       versions,
		CurrentVersion: model.CurrentVersion,
		Status:         string(model.Status),
		Reviewers:      reviewers,
		IsRequired:     model.IsRequired,
		UploadDate:     model.UploadDate,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

// NewFormSubmissionResponseSlice converts form models into DTOs.
func NewFormSubmissionResponseSlice(forms []models.FormSubmission) []FormSubmissionResponse {
	responses := make([]FormSubmissionResponse, 0, len(forms))
	for _, form := range forms {
		responses = append(responses, NewFormSubmissionResponse(form))
	}

	return responses
}
