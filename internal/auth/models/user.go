package models

import (
	"net/mail"
	"strings"
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// User is an applicant or administrator account.
//
// Invariants:
//   - Email is non-empty and unique (exact, case-sensitive match)
//   - PasswordHash is a bcrypt hash, never the plaintext
//   - IsAdmin is the only privilege flag
type User struct {
	ID           id.UserID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Phone        string     `json:"phone"`
	IsAdmin      bool       `json:"is_admin"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func NewUser(userID id.UserID, email, passwordHash, firstName, lastName, phone string, isAdmin bool, now time.Time) (*User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email cannot be empty")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash cannot be empty")
	}
	return &User{
		ID:           userID,
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		Phone:        phone,
		IsAdmin:      isAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// RegisterRequest carries the registration form.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

func (r *RegisterRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Phone = strings.TrimSpace(r.Phone)
}

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

func (r *RegisterRequest) Validate() error {
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if len(r.Password) < MinPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 6 characters")
	}
	if r.FirstName == "" || r.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "first and last name are required")
	}
	return nil
}
