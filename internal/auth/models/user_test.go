package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

func TestNewUser(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	u, err := NewUser(id.NewUserID(), "a@example.com", "$2a$hash", "Ada", "Lovelace", "", false, now)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", u.FullName())
	assert.Equal(t, now, u.CreatedAt)
	assert.Nil(t, u.LastLogin)

	_, err = NewUser(id.NewUserID(), " ", "$2a$hash", "", "", "", false, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewUser(id.NewUserID(), "a@example.com", "", "", "", "", false, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestRegisterRequestValidate(t *testing.T) {
	valid := RegisterRequest{Email: " a@example.com ", Password: "secret1", FirstName: "Ada", LastName: "Lovelace"}
	valid.Normalize()
	assert.Equal(t, "a@example.com", valid.Email)
	assert.NoError(t, valid.Validate())

	tests := map[string]func(r *RegisterRequest){
		"bad email":      func(r *RegisterRequest) { r.Email = "nope" },
		"short password": func(r *RegisterRequest) { r.Password = "12345" },
		"missing name":   func(r *RegisterRequest) { r.LastName = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			assert.True(t, dErrors.HasCode(r.Validate(), dErrors.CodeValidation))
		})
	}
}
