package models

import (
	"fmt"
	"strings"
	"time"
)

// ProjectStatus is the project-level review state written by administrators.
type ProjectStatus string

const (
	ProjectStatusPending       ProjectStatus = "pending"
	ProjectStatusUnderReview   ProjectStatus = "under_review"
	ProjectStatusNeedsRevision ProjectStatus = "needs_revision"
	ProjectStatusApproved      ProjectStatus = "approved"
	ProjectStatusRejected      ProjectStatus = "rejected"
)

// ParseProjectStatus normalises user input into a ProjectStatus.
func ParseProjectStatus(value string) (ProjectStatus, error) {
	status := ProjectStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case ProjectStatusPending, ProjectStatusUnderReview, ProjectStatusNeedsRevision, ProjectStatusApproved, ProjectStatusRejected:
		return status, nil
	default:
		return "", fmt.Errorf("unknown project status %q", value)
	}
}

// Project is the aggregate forms hang off. Its identity is owned elsewhere; this
// service only reads it and writes the review status fields.
type Project struct {
	ID             string        `gorm:"primaryKey;size:64" json:"id"`
	Name           string        `gorm:"size:255;not null" json:"name"`
	Status         ProjectStatus `gorm:"size:32;not null;default:'pending'" json:"status"`
	LastReviewedBy string        `gorm:"size:64" json:"last_reviewed_by"`
	LastReviewedAt *time.Time    `json:"last_reviewed_at"`
	StatusComments string        `gorm:"type:text" json:"status_comments"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
