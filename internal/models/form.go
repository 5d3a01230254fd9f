package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// FormTypes is the catalog of paperwork a project may be asked to supply.
var FormTypes = []string{
	"1", "1A", "1B", "1C", "2", "3", "4", "5A", "5B", "6A", "6B", "7",
	"Research Plan", "Abstract", "Other",
}

// CanonicalFormType returns the catalog spelling of value, if it is in the catalog.
func CanonicalFormType(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	for _, formType := range FormTypes {
		if strings.EqualFold(formType, trimmed) {
			return formType, true
		}
	}
	return "", false
}

// ProjectContext binds a form to one project and its responsible student.
type ProjectContext struct {
	ProjectID            string    `gorm:"size:64;not null;index" json:"project_id"`
	ProjectName          string    `gorm:"size:255" json:"project_name"`
	ResponsibleStudentID string    `gorm:"size:64" json:"responsible_student_id"`
	AssignedAt           time.Time `json:"assigned_at"`
}

// FormVersion is one uploaded artifact of a form.
type FormVersion struct {
	VersionNumber int          `json:"version_number"`
	FileURL       string       `json:"file_url"`
	UploadedAt    time.Time    `json:"uploaded_at"`
	UploadedBy    string       `json:"uploaded_by"`
	Status        ReviewStatus `json:"status"`
	Reviews       []Review     `json:"reviews"`
}

// FormSubmission is the document a student supplies for a project. It is stored as a
// single row; versions and reviewers live in JSON columns so one write updates the whole document.
type FormSubmission struct {
	ID             string                                  `gorm:"primaryKey;size:64" json:"id"`
	FormType       string                                  `gorm:"size:64;not null" json:"form_type"`
	Title          string                                  `gorm:"size:255;not null" json:"title"`
	FileName       string                                  `gorm:"size:255" json:"file_name"`
	StudentID      string                                  `gorm:"size:64;not null;index" json:"student_id"`
	StudentName    string                                  `gorm:"size:255" json:"student_name"`
	ProjectContext ProjectContext                          `gorm:"embedded" json:"project_context"`
	Versions       datatypes.JSONSlice[FormVersion]        `json:"versions"`
	CurrentVersion int                                     `gorm:"not null;default:0" json:"current_version"`
	Status         ReviewStatus                            `gorm:"size:32;not null;index" json:"status"`
	Reviewers      datatypes.JSONSlice[ReviewerAssignment] `json:"reviewers"`
	IsRequired     bool                                    `gorm:"not null;default:false" json:"is_required"`
	Revision       int64                                   `gorm:"not null;default:0" json:"revision"`
	UploadDate     time.Time                               `json:"upload_date"`
	CreatedAt      time.Time                               `json:"created_at"`
	UpdatedAt      time.Time                               `json:"updated_at"`
}

// Current returns the version the form currently points at.
func (f *FormSubmission) Current() (*FormVersion, bool) {
	if f.CurrentVersion < 0 || f.CurrentVersion >= len(f.Versions) {
		return nil, false
	}
	return &f.Versions[f.CurrentVersion], true
}

// HasReviewer reports whether the user appears in the reviewer roster.
func (f FormSubmission) HasReviewer(userID string) bool {
	for _, reviewer := range f.Reviewers {
		if reviewer.UserID == userID {
			return true
		}
	}
	return false
}

// ReviewedBy reports whether any version carries a review from the user.
func (f FormSubmission) ReviewedBy(userID string) bool {
	for _, version := range f.Versions {
		for _, review := range version.Reviews {
			if review.ReviewerID == userID {
				return true
			}
		}
	}
	return false
}

// FormParticipantKind distinguishes the derived "assigned to me" and "reviewed by me" indexes.
type FormParticipantKind string

const (
	FormParticipantAssigned FormParticipantKind = "assigned"
	FormParticipantReviewed FormParticipantKind = "reviewed"
)

// FormParticipant is an index row rebuilt from the form document on every write.
type FormParticipant struct {
	FormID string              `gorm:"primaryKey;size:64" json:"form_id"`
	UserID string              `gorm:"primaryKey;size:64" json:"user_id"`
	Kind   FormParticipantKind `gorm:"primaryKey;size:16" json:"kind"`
}

// Participants derives the index rows for a form.
func (f FormSubmission) Participants() []FormParticipant {
	seen := map[FormParticipant]struct{}{}
	rows := make([]FormParticipant, 0, len(f.Reviewers))
	add := func(userID string, kind FormParticipantKind) {
		row := FormParticipant{FormID: f.ID, UserID: userID, Kind: kind}
		if _, ok := seen[row]; ok || userID == "" {
			return
		}
		seen[row] = struct{}{}
		rows = append(rows, row)
	}

	for _, reviewer := range f.Reviewers {
		add(reviewer.UserID, FormParticipantAssigned)
	}
	for _, version := range f.Versions {
		for _, review := range version.Reviews {
			add(review.ReviewerID, FormParticipantReviewed)
		}
	}
	return rows
}
