package handler

import (
	"strings"

	dErrors "kycflow/pkg/domain-errors"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}

// PasswordResetRequest is the body of POST /auth/password-reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

func (r *PasswordResetRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

func (r *PasswordResetRequest) Validate() error {
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}
