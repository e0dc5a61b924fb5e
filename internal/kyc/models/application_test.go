package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newDraft(t *testing.T) *Application {
	t.Helper()
	app, err := NewApplication(id.NewApplicationID(), id.NewUserID(), "KYC-1", PersonalInfo{FirstName: "Ada", LastName: "Lovelace"}, t0)
	require.NoError(t, err)
	return app
}

func TestNewApplication(t *testing.T) {
	t.Run("starts as draft at step one with placeholder risk", func(t *testing.T) {
		app := newDraft(t)
		assert.Equal(t, StatusDraft, app.Status)
		assert.Equal(t, StepPersonalInfo, app.CurrentStep)
		assert.Equal(t, PlaceholderRiskScore, app.RiskScore)
		assert.Equal(t, RiskLow, app.RiskLevel)
		assert.Equal(t, 1, app.Version)
		assert.Nil(t, app.SubmittedAt)
	})

	t.Run("rejects missing owner", func(t *testing.T) {
		_, err := NewApplication(id.NewApplicationID(), id.UserID{}, "KYC-1", PersonalInfo{FirstName: "A", LastName: "B"}, t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects missing name", func(t *testing.T) {
		_, err := NewApplication(id.NewApplicationID(), id.NewUserID(), "KYC-1", PersonalInfo{FirstName: "A"}, t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestCurrentStepNeverDecreases(t *testing.T) {
	app := newDraft(t)

	app.ApplyFacialVerification(FacialVerification{IsCompleted: true}, t0)
	assert.Equal(t, StepFacial, app.CurrentStep)

	app.ApplyDocument(DocumentInfo{Type: DocumentPassport}, t0.Add(time.Minute))
	assert.Equal(t, StepFacial, app.CurrentStep, "re-uploading a document must not move the step back")
	assert.Equal(t, t0.Add(time.Minute), app.UpdatedAt)
}

func TestSubmissionAndReview(t *testing.T) {
	app := newDraft(t)
	require.NoError(t, app.CanSubmit())

	submitAt := t0.Add(time.Hour)
	app.ApplySubmission(0.42, RiskMedium, submitAt)

	assert.Equal(t, StatusSubmitted, app.Status)
	assert.Equal(t, StepSubmitted, app.CurrentStep)
	require.NotNil(t, app.SubmittedAt)
	assert.Equal(t, submitAt, *app.SubmittedAt)
	require.NotNil(t, app.ExpiresAt)
	assert.Equal(t, submitAt.Add(Validity), *app.ExpiresAt)
	assert.True(t, dErrors.HasCode(app.CanEdit(), dErrors.CodeInvalidState))
	assert.True(t, dErrors.HasCode(app.CanSubmit(), dErrors.CodeInvalidState))

	require.NoError(t, app.CanStartReview())
	app.ApplyStartReview(submitAt.Add(time.Minute))
	assert.Equal(t, StatusUnderReview, app.Status)
	assert.Nil(t, app.ReviewedAt)

	admin := id.NewUserID()
	require.NoError(t, app.CanReview())
	app.ApplyReview(ReviewReject, admin, "blurry photo", submitAt.Add(2*time.Minute))

	assert.Equal(t, StatusRejected, app.Status)
	assert.Equal(t, "blurry photo", app.RejectionReason)
	assert.Equal(t, "blurry photo", app.AdminNotes)
	require.NotNil(t, app.RejectedAt)
	assert.Nil(t, app.ApprovedAt)
	assert.Equal(t, admin, *app.ReviewedBy)
	assert.Equal(t, StepSubmitted, app.CurrentStep, "review does not touch the wizard step")

	err := app.CanReview()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	assert.Contains(t, err.Error(), "already been reviewed")
}

func TestApproveSetsOnlyApprovedAt(t *testing.T) {
	app := newDraft(t)
	app.ApplySubmission(0.1, RiskLow, t0)
	app.ApplyReview(ReviewApprove, id.NewUserID(), "", t0)

	assert.Equal(t, StatusApproved, app.Status)
	assert.NotNil(t, app.ApprovedAt)
	assert.Nil(t, app.RejectedAt)
	assert.Empty(t, app.RejectionReason)
}

func TestReviewRequiresSubmission(t *testing.T) {
	app := newDraft(t)
	assert.True(t, dErrors.HasCode(app.CanReview(), dErrors.CodeInvalidState))
	assert.True(t, dErrors.HasCode(app.CanStartReview(), dErrors.CodeInvalidState))
}

func TestPersonalInfoUpdateMergesSetFields(t *testing.T) {
	app := newDraft(t)
	city := "London"
	first := "Augusta"

	fields := app.ApplyPersonalInfoUpdate(PersonalInfoUpdate{City: &city, FirstName: &first}, t0.Add(time.Second))

	assert.ElementsMatch(t, []string{"city", "first_name"}, fields)
	assert.Equal(t, "Augusta", app.PersonalInfo.FirstName)
	assert.Equal(t, "Lovelace", app.PersonalInfo.LastName)
	assert.Equal(t, "London", app.PersonalInfo.City)
	assert.Equal(t, StepPersonalInfo, app.CurrentStep)
	assert.True(t, PersonalInfoUpdate{}.IsEmpty())
}

func TestCloneIsDeep(t *testing.T) {
	app := newDraft(t)
	app.ApplyDocument(DocumentInfo{Type: DocumentPassport, Number: "P1"}, t0)
	app.ApplySubmission(0.2, RiskLow, t0)

	c := app.Clone()
	c.DocumentInfo.Number = "changed"
	*c.SubmittedAt = t0.Add(time.Hour)

	assert.Equal(t, "P1", app.DocumentInfo.Number)
	assert.Equal(t, t0, *app.SubmittedAt)
}

func TestParsers(t *testing.T) {
	st, err := ParseStatus("under_review")
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, st)

	_, err = ParseStatus("archived")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	action, err := ParseReviewAction(" Approve ")
	require.NoError(t, err)
	assert.Equal(t, ReviewApprove, action)

	_, err = ParseReviewAction("escalate")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	assert.True(t, DocumentDriverLicense.RequiresBackImage())
	assert.False(t, DocumentPassport.RequiresBackImage())
	assert.False(t, DocumentType("visa").IsValid())
}
