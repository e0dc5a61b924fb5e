package models

import (
	"net/mail"
	"strings"
	"time"

	dErrors "kycflow/pkg/domain-errors"
)

// Image is an uploaded image as received from the client.
type Image struct {
	ContentType string
	Data        []byte
}

func (i *Image) present() bool {
	return i != nil && len(i.Data) > 0
}

// DocumentUpload is the step 2 request.
type DocumentUpload struct {
	Type             DocumentType
	Number           string
	IssueDate        string
	ExpiryDate       string
	IssuingAuthority string
	Front            *Image
	Back             *Image
}

func (d DocumentUpload) Validate() error {
	if !d.Type.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "document type must be passport, driverLicense or nationalId")
	}
	if strings.TrimSpace(d.Number) == "" {
		return dErrors.New(dErrors.CodeValidation, "document number is required")
	}
	if !IsISODate(d.IssueDate) {
		return dErrors.New(dErrors.CodeValidation, "issue date must be an ISO-8601 date")
	}
	if !IsISODate(d.ExpiryDate) {
		return dErrors.New(dErrors.CodeValidation, "expiry date must be an ISO-8601 date")
	}
	if strings.TrimSpace(d.IssuingAuthority) == "" {
		return dErrors.New(dErrors.CodeValidation, "issuing authority is required")
	}
	if !d.Front.present() {
		return dErrors.New(dErrors.CodeValidation, "front image is required")
	}
	if d.Type.RequiresBackImage() && !d.Back.present() {
		return dErrors.New(dErrors.CodeValidation, "back image is required for a driver license")
	}
	return nil
}

// FacialCapture is the step 3 request. The image is optional.
type FacialCapture struct {
	Confidence    float64
	MatchScore    float64
	LivenessCheck bool
	Image         *Image
}

func (f FacialCapture) Validate() error {
	if f.Confidence < 0 || f.Confidence > 1 {
		return dErrors.New(dErrors.CodeValidation, "confidence must be between 0 and 1")
	}
	if f.MatchScore < 0 || f.MatchScore > 1 {
		return dErrors.New(dErrors.CodeValidation, "match score must be between 0 and 1")
	}
	return nil
}

// ValidateInput checks a step 1 submission: names, email syntax and a
// parseable date of birth.
func (p PersonalInfo) ValidateInput() error {
	if strings.TrimSpace(p.FirstName) == "" {
		return dErrors.New(dErrors.CodeValidation, "first name is required")
	}
	if strings.TrimSpace(p.LastName) == "" {
		return dErrors.New(dErrors.CodeValidation, "last name is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if !IsISODate(p.DateOfBirth) {
		return dErrors.New(dErrors.CodeValidation, "date of birth must be an ISO-8601 date")
	}
	return nil
}

// ValidateInput checks the fields set on a partial update.
func (u PersonalInfoUpdate) ValidateInput() error {
	if u.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "no fields to update")
	}
	if u.FirstName != nil && strings.TrimSpace(*u.FirstName) == "" {
		return dErrors.New(dErrors.CodeValidation, "first name cannot be empty")
	}
	if u.LastName != nil && strings.TrimSpace(*u.LastName) == "" {
		return dErrors.New(dErrors.CodeValidation, "last name cannot be empty")
	}
	if u.Email != nil {
		if _, err := mail.ParseAddress(*u.Email); err != nil {
			return dErrors.New(dErrors.CodeValidation, "email is invalid")
		}
	}
	if u.DateOfBirth != nil && !IsISODate(*u.DateOfBirth) {
		return dErrors.New(dErrors.CodeValidation, "date of birth must be an ISO-8601 date")
	}
	return nil
}

// IsISODate accepts a calendar date or a full RFC 3339 timestamp.
func IsISODate(s string) bool {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(time.DateOnly, s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}
