package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalFormType(t *testing.T) {
	value, ok := CanonicalFormType(" research plan ")
	require.True(t, ok)
	require.Equal(t, "Research Plan", value)

	value, ok = CanonicalFormType("1a")
	require.True(t, ok)
	require.Equal(t, "1A", value)

	_, ok = CanonicalFormType("8")
	require.False(t, ok)
}

func TestFormSubmissionCurrent(t *testing.T) {
	form := FormSubmission{
		Versions:       []FormVersion{{VersionNumber: 1}, {VersionNumber: 2}},
		CurrentVersion: 1,
	}

	current, ok := form.Current()
	require.True(t, ok)
	require.Equal(t, 2, current.VersionNumber)

	current.Status = ReviewStatusApproved
	require.Equal(t, ReviewStatusApproved, form.Versions[1].Status, "Current must alias the stored version")

	form.CurrentVersion = 2
	_, ok = form.Current()
	require.False(t, ok)
}

func TestFormSubmissionParticipantsDeduplicates(t *testing.T) {
	form := FormSubmission{
		ID: "form-1",
		Reviewers: []ReviewerAssignment{
			{UserID: "t-1", Role: ReviewerRolePrimary},
			{UserID: "t-1", Role: ReviewerRoleFinal},
			{UserID: "j-2", Role: ReviewerRoleSecondary},
		},
		Versions: []FormVersion{
			{VersionNumber: 1, Reviews: []Review{{ReviewerID: "t-1"}, {ReviewerID: "x-9"}}},
			{VersionNumber: 2, Reviews: []Review{{ReviewerID: "t-1"}}},
		},
	}

	rows := form.Participants()
	require.ElementsMatch(t, []FormParticipant{
		{FormID: "form-1", UserID: "t-1", Kind: FormParticipantAssigned},
		{FormID: "form-1", UserID: "j-2", Kind: FormParticipantAssigned},
		{FormID: "form-1", UserID: "t-1", Kind: FormParticipantReviewed},
		{FormID: "form-1", UserID: "x-9", Kind: FormParticipantReviewed},
	}, rows)

	require.True(t, form.HasReviewer("j-2"))
	require.False(t, form.HasReviewer("x-9"))
	require.True(t, form.ReviewedBy("x-9"))
	require.False(t, form.ReviewedBy("j-2"))
}

func TestReviewStatusParsingAndResolution(t *testing.T) {
	status, err := ParseReviewStatus(" Needs_Revision ")
	require.NoError(t, err)
	require.Equal(t, ReviewStatusNeedsRevision, status)
	require.False(t, status.Resolved())

	_, err = ParseReviewStatus("archived")
	require.Error(t, err)

	require.True(t, ReviewStatusApproved.Resolved())
	require.True(t, ReviewStatusRejected.Resolved())
	require.False(t, ReviewStatusInReview.Resolved())
	require.False(t, ReviewerRole("lead").Valid())
	require.True(t, ReviewerRoleFinal.Valid())
}

func TestProjectStatusParsing(t *testing.T) {
	status, err := ParseProjectStatus("UNDER_REVIEW")
	require.NoError(t, err)
	require.Equal(t, ProjectStatusUnderReview, status)

	_, err = ParseProjectStatus("in_review")
	require.Error(t, err)
}
