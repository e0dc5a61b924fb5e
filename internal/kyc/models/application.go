package models

import (
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

const (
	// PlaceholderRiskScore is carried by drafts until submission scores them.
	PlaceholderRiskScore = 0.3

	// Validity is how long a submitted application stays valid.
	Validity = 365 * 24 * time.Hour
)

// Wizard steps. CurrentStep never decreases.
const (
	StepPersonalInfo = 1
	StepDocument     = 2
	StepFacial       = 3
	StepSubmitted    = 4
	MaxStep          = 5
)

// Application is one verification attempt for one user.
//
// Invariants:
//   - ApplicationNumber is assigned at construction and never changes
//   - CurrentStep is monotonically non-decreasing
//   - Status moves draft -> submitted -> [under_review ->] approved|rejected, never backward
//   - SubmittedAt is set iff status is past draft; ApprovedAt/RejectedAt iff the
//     matching decision was applied; ReviewedAt and ReviewedBy only with a decision
//   - Applicant payload (personal info, document, facial) is mutable only in draft
//   - Version is owned by the store and bumps on every successful update
type Application struct {
	ID                 id.ApplicationID    `json:"id"`
	UserID             id.UserID           `json:"user_id"`
	ApplicationNumber  string              `json:"application_number"`
	Status             Status              `json:"status"`
	CurrentStep        int                 `json:"current_step"`
	PersonalInfo       PersonalInfo        `json:"personal_info"`
	DocumentInfo       *DocumentInfo       `json:"document_info,omitempty"`
	FacialVerification *FacialVerification `json:"facial_verification,omitempty"`
	RiskScore          float64             `json:"risk_score"`
	RiskLevel          RiskLevel           `json:"risk_level"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	SubmittedAt        *time.Time          `json:"submitted_at,omitempty"`
	ReviewedAt         *time.Time          `json:"reviewed_at,omitempty"`
	ApprovedAt         *time.Time          `json:"approved_at,omitempty"`
	RejectedAt         *time.Time          `json:"rejected_at,omitempty"`
	ExpiresAt          *time.Time          `json:"expires_at,omitempty"`
	ReviewedBy         *id.UserID          `json:"reviewed_by,omitempty"`
	RejectionReason    string              `json:"rejection_reason,omitempty"`
	AdminNotes         string              `json:"admin_notes,omitempty"`
	Version            int                 `json:"version"`
}

// NewApplication builds a draft at step 1 with the placeholder risk.
func NewApplication(appID id.ApplicationID, userID id.UserID, number string, info PersonalInfo, now time.Time) (*Application, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application must belong to a user")
	}
	if number == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application number is required")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &Application{
		ID:                appID,
		UserID:            userID,
		ApplicationNumber: number,
		Status:            StatusDraft,
		CurrentStep:       StepPersonalInfo,
		PersonalInfo:      info,
		RiskScore:         PlaceholderRiskScore,
		RiskLevel:         RiskLow,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}, nil
}

func (a *Application) IsOwnedBy(userID id.UserID) bool {
	return a.UserID == userID
}

// CanEdit checks that the applicant may still change the payload.
func (a *Application) CanEdit() error {
	if a.Status != StatusDraft {
		return dErrors.New(dErrors.CodeInvalidState, "application has been submitted and can no longer be edited")
	}
	return nil
}

// ApplyPersonalInfoUpdate merges u into the personal info and returns the
// names of the fields that were set. CurrentStep is unchanged.
func (a *Application) ApplyPersonalInfoUpdate(u PersonalInfoUpdate, now time.Time) []string {
	fields := u.ApplyTo(&a.PersonalInfo)
	a.UpdatedAt = now
	return fields
}

// ApplyDocument records the identity document and advances to step 2.
func (a *Application) ApplyDocument(doc DocumentInfo, now time.Time) {
	a.DocumentInfo = &doc
	a.advanceTo(StepDocument)
	a.UpdatedAt = now
}

// ApplyFacialVerification records the capture result and advances to step 3.
func (a *Application) ApplyFacialVerification(f FacialVerification, now time.Time) {
	f.VerifiedAt = now
	a.FacialVerification = &f
	a.advanceTo(StepFacial)
	a.UpdatedAt = now
}

// CanSubmit checks that the application is still a draft.
func (a *Application) CanSubmit() error {
	if a.Status != StatusDraft {
		return dErrors.New(dErrors.CodeInvalidState, "application has already been submitted")
	}
	return nil
}

// ApplySubmission moves the draft to submitted with the computed risk.
// Call CanSubmit first.
func (a *Application) ApplySubmission(score float64, level RiskLevel, now time.Time) {
	a.Status = StatusSubmitted
	a.advanceTo(StepSubmitted)
	a.RiskScore = score
	a.RiskLevel = level
	a.SubmittedAt = &now
	expires := now.Add(Validity)
	a.ExpiresAt = &expires
	a.UpdatedAt = now
}

// CanStartReview checks that the application is waiting for a reviewer.
func (a *Application) CanStartReview() error {
	if a.Status != StatusSubmitted {
		return dErrors.New(dErrors.CodeInvalidState, "only submitted applications can be taken into review")
	}
	return nil
}

func (a *Application) ApplyStartReview(now time.Time) {
	a.Status = StatusUnderReview
	a.UpdatedAt = now
}

// CanReview checks that a decision may be recorded. A decided application
// is final; re-review is rejected.
func (a *Application) CanReview() error {
	switch a.Status {
	case StatusSubmitted, StatusUnderReview:
		return nil
	case StatusApproved, StatusRejected:
		return dErrors.New(dErrors.CodeInvalidState, "application has already been reviewed")
	default:
		return dErrors.New(dErrors.CodeInvalidState, "application has not been submitted")
	}
}

// ApplyReview records the decision. Notes are kept as admin notes and, on
// rejection, as the rejection reason.
func (a *Application) ApplyReview(action ReviewAction, adminID id.UserID, notes string, now time.Time) {
	reviewer := adminID
	a.ReviewedBy = &reviewer
	a.ReviewedAt = &now
	a.AdminNotes = notes
	switch action {
	case ReviewApprove:
		a.Status = StatusApproved
		a.ApprovedAt = &now
	case ReviewReject:
		a.Status = StatusRejected
		a.RejectedAt = &now
		a.RejectionReason = notes
	}
	a.UpdatedAt = now
}

func (a *Application) advanceTo(step int) {
	if step > a.CurrentStep {
		a.CurrentStep = step
	}
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	if a.DocumentInfo != nil {
		d := *a.DocumentInfo
		c.DocumentInfo = &d
	}
	if a.FacialVerification != nil {
		f := *a.FacialVerification
		c.FacialVerification = &f
	}
	c.SubmittedAt = cloneTime(a.SubmittedAt)
	c.ReviewedAt = cloneTime(a.ReviewedAt)
	c.ApprovedAt = cloneTime(a.ApprovedAt)
	c.RejectedAt = cloneTime(a.RejectedAt)
	c.ExpiresAt = cloneTime(a.ExpiresAt)
	if a.ReviewedBy != nil {
		r := *a.ReviewedBy
		c.ReviewedBy = &r
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
