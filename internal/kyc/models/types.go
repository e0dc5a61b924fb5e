package models

import (
	"strings"
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown application status: "+s)
	}
	return st, nil
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type DocumentType string

const (
	DocumentPassport      DocumentType = "passport"
	DocumentDriverLicense DocumentType = "driverLicense"
	DocumentNationalID    DocumentType = "nationalId"
)

func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentPassport, DocumentDriverLicense, DocumentNationalID:
		return true
	}
	return false
}

// RequiresBackImage reports whether the document has a printed back side
// that must be captured.
func (t DocumentType) RequiresBackImage() bool {
	return t == DocumentDriverLicense
}

type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

func ParseReviewAction(s string) (ReviewAction, error) {
	switch a := ReviewAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ReviewApprove, ReviewReject:
		return a, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "action must be approve or reject")
}

// PersonalInfo is the step 1 payload. Dates are ISO-8601 strings as entered.
type PersonalInfo struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth"`
	Nationality string `json:"nationality"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code"`
}

func (p PersonalInfo) Validate() error {
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "personal info requires first and last name")
	}
	return nil
}

// PersonalInfoUpdate is a partial update; nil fields are left untouched.
type PersonalInfoUpdate struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
	Nationality *string `json:"nationality,omitempty"`
	Address     *string `json:"address,omitempty"`
	City        *string `json:"city,omitempty"`
	Country     *string `json:"country,omitempty"`
	PostalCode  *string `json:"postal_code,omitempty"`
}

// ApplyTo merges the set fields into p and returns their json names.
func (u PersonalInfoUpdate) ApplyTo(p *PersonalInfo) []string {
	var fields []string
	set := func(name string, src *string, dst *string) {
		if src != nil {
			*dst = *src
			fields = append(fields, name)
		}
	}
	set("first_name", u.FirstName, &p.FirstName)
	set("last_name", u.LastName, &p.LastName)
	set("email", u.Email, &p.Email)
	set("phone", u.Phone, &p.Phone)
	set("date_of_birth", u.DateOfBirth, &p.DateOfBirth)
	set("nationality", u.Nationality, &p.Nationality)
	set("address", u.Address, &p.Address)
	set("city", u.City, &p.City)
	set("country", u.Country, &p.Country)
	set("postal_code", u.PostalCode, &p.PostalCode)
	return fields
}

func (u PersonalInfoUpdate) IsEmpty() bool {
	return len(u.ApplyTo(&PersonalInfo{})) == 0
}

// DocumentInfo is the step 2 payload. Image refs are opaque blob references.
type DocumentInfo struct {
	Type             DocumentType `json:"type"`
	Number           string       `json:"number"`
	IssueDate        string       `json:"issue_date"`
	ExpiryDate       string       `json:"expiry_date"`
	IssuingAuthority string       `json:"issuing_authority"`
	FrontImageRef    string       `json:"front_image_ref,omitempty"`
	BackImageRef     string       `json:"back_image_ref,omitempty"`
}

// FacialVerification is the step 3 payload. Values are accepted as given;
// no biometric analysis happens server-side.
type FacialVerification struct {
	IsCompleted   bool      `json:"is_completed"`
	Confidence    float64   `json:"confidence"`
	MatchScore    float64   `json:"match_score"`
	LivenessCheck bool      `json:"liveness_check"`
	ImageRef      string    `json:"image_ref,omitempty"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// ImageKind names the stored images of an application.
type ImageKind string

const (
	ImageFront ImageKind = "front"
	ImageBack  ImageKind = "back"
	ImageFace  ImageKind = "face"
)

// ImageRef returns the blob reference for kind, or "" when none was stored.
func (a *Application) ImageRef(kind ImageKind) string {
	switch kind {
	case ImageFront:
		if a.DocumentInfo != nil {
			return a.DocumentInfo.FrontImageRef
		}
	case ImageBack:
		if a.DocumentInfo != nil {
			return a.DocumentInfo.BackImageRef
		}
	case ImageFace:
		if a.FacialVerification != nil {
			return a.FacialVerification.ImageRef
		}
	}
	return ""
}

// Page is one slice of an ordered listing.
type Page struct {
	Items    []*Application `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// Stats summarizes applications for the admin dashboard.
type Stats struct {
	Total            int `json:"total"`
	PendingReview    int `json:"pending_review"`
	Approved         int `json:"approved"`
	Rejected         int `json:"rejected"`
	TodaySubmissions int `json:"today_submissions"`
}

// ApplicationFilter selects applications for listing. Zero values do not
// filter. Results are ordered by CreatedAt descending.
type ApplicationFilter struct {
	UserID   id.UserID
	Statuses []Status
	Offset   int
	Limit    int
}

// Matches reports whether app passes the UserID and Statuses criteria.
func (f ApplicationFilter) Matches(app *Application) bool {
	if !f.UserID.IsNil() && app.UserID != f.UserID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if app.Status == st {
			return true
		}
	}
	return false
}
