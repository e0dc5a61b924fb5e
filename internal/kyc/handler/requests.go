package handler

import (
	"strings"

	"kycflow/internal/kyc/models"
)

// CreateApplicationRequest is the step 1 body of POST /kyc/applications.
type CreateApplicationRequest struct {
	models.PersonalInfo
}

func (r *CreateApplicationRequest) Normalize() {
	p := &r.PersonalInfo
	for _, f := range []*string{&p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.DateOfBirth,
		&p.Nationality, &p.Address, &p.City, &p.Country, &p.PostalCode} {
		*f = strings.TrimSpace(*f)
	}
}

func (r *CreateApplicationRequest) Validate() error {
	return r.PersonalInfo.ValidateInput()
}

// UpdatePersonalInfoRequest is the partial body of PATCH .../personal-info.
type UpdatePersonalInfoRequest struct {
	models.PersonalInfoUpdate
}

func (r *UpdatePersonalInfoRequest) Normalize() {
	u := &r.PersonalInfoUpdate
	for _, f := range []*string{u.FirstName, u.LastName, u.Email, u.Phone, u.DateOfBirth,
		u.Nationality, u.Address, u.City, u.Country, u.PostalCode} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}

func (r *UpdatePersonalInfoRequest) Validate() error {
	return r.PersonalInfoUpdate.ValidateInput()
}

// ApplicationList wraps an applicant's applications.
type ApplicationList struct {
	Items []*models.Application `json:"items"`
}
