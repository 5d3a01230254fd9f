package models

import (
	"fmt"
	"strings"
	"time"
)

// ReviewStatus is shared by reviews, form versions and forms so the three levels can never drift apart.
type ReviewStatus string

const (
	ReviewStatusPending       ReviewStatus = "pending"
	ReviewStatusInReview      ReviewStatus = "in_review"
	ReviewStatusNeedsRevision ReviewStatus = "needs_revision"
	ReviewStatusApproved      ReviewStatus = "approved"
	ReviewStatusRejected      ReviewStatus = "rejected"
)

// ReviewStatuses lists every status in workflow order.
var ReviewStatuses = []ReviewStatus{
	ReviewStatusPending,
	ReviewStatusInReview,
	ReviewStatusNeedsRevision,
	ReviewStatusApproved,
	ReviewStatusRejected,
}

// Valid reports whether the status is one of the known values.
func (s ReviewStatus) Valid() bool {
	for _, candidate := range ReviewStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Resolved reports whether the status counts as settled for project aggregation.
func (s ReviewStatus) Resolved() bool {
	return s == ReviewStatusApproved || s == ReviewStatusRejected
}

// ParseReviewStatus normalises user input into a ReviewStatus.
func ParseReviewStatus(value string) (ReviewStatus, error) {
	status := ReviewStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown review status %q", value)
	}
	return status, nil
}

// ReviewerRole is presentational; no ordering between roles is enforced.
type ReviewerRole string

const (
	ReviewerRolePrimary   ReviewerRole = "primary"
	ReviewerRoleSecondary ReviewerRole = "secondary"
	ReviewerRoleFinal     ReviewerRole = "final"
)

// Valid reports whether the role is known.
func (r ReviewerRole) Valid() bool {
	switch r {
	case ReviewerRolePrimary, ReviewerRoleSecondary, ReviewerRoleFinal:
		return true
	default:
		return false
	}
}

// AssignmentStatus tracks whether an assigned reviewer has acted.
type AssignmentStatus string

const (
	AssignmentStatusPending   AssignmentStatus = "pending"
	AssignmentStatusCompleted AssignmentStatus = "completed"
)

// Review is one reviewer's verdict at a point in time.
type Review struct {
	ReviewerID    string       `json:"reviewer_id"`
	ReviewerName  string       `json:"reviewer_name"`
	ReviewerEmail string       `json:"reviewer_email"`
	Role          ReviewerRole `json:"role"`
	Status        ReviewStatus `json:"status"`
	Comments      string       `json:"comments"`
	Timestamp     time.Time    `json:"timestamp"`
}

// ReviewerAssignment is a standing request for a person to review a form.
type ReviewerAssignment struct {
	UserID      string           `json:"user_id"`
	Name        string           `json:"name"`
	Role        ReviewerRole     `json:"role"`
	AssignedAt  time.Time        `json:"assigned_at"`
	Status      AssignmentStatus `json:"status"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// IsCompleted reports whether the reviewer has submitted a verdict.
func (a ReviewerAssignment) IsCompleted() bool {
	return a.Status == AssignmentStatusCompleted
}
