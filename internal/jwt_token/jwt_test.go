package jwttoken

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

var (
	userID    = id.NewUserID()
	sessionID = id.NewSessionID()
	issuedAt  = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func newService(now time.Time, opts ...Option) *JWTService {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewJWTService("test-signing-key", "kycflow", "kycflow-api", opts...)
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newService(issuedAt)
	token, err := svc.GenerateAccessToken(userID, sessionID, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, sessionID.String(), claims.SessionID)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, issuedAt.Add(time.Hour), claims.ExpiresAt.Time.UTC())
}

func TestGenerateRejectsNonPositiveLifetime(t *testing.T) {
	_, err := newService(issuedAt).GenerateAccessToken(userID, sessionID, 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestValidateToken(t *testing.T) {
	signer := newService(issuedAt)
	valid, err := signer.GenerateAccessToken(userID, sessionID, time.Hour)
	require.NoError(t, err)

	otherKey := NewJWTService("another-key", "kycflow", "kycflow-api", WithClock(func() time.Time { return issuedAt }))
	wrongKey, err := otherKey.GenerateAccessToken(userID, sessionID, time.Hour)
	require.NoError(t, err)

	otherAudience := NewJWTService("test-signing-key", "kycflow", "someone-else", WithClock(func() time.Time { return issuedAt }))
	wrongAudience, err := otherAudience.GenerateAccessToken(userID, sessionID, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{SessionID: sessionID.String()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		at      time.Time
		message string
	}{
		{"garbage", "invalid-token-string", issuedAt, "invalid token"},
		{"expired", valid, issuedAt.Add(2 * time.Hour), "token has expired"},
		{"wrong key", wrongKey, issuedAt, "invalid token"},
		{"wrong audience", wrongAudience, issuedAt, "invalid token"},
		{"unsigned", unsigned, issuedAt, "invalid token"},
		{"tampered", valid[:strings.LastIndex(valid, ".")] + ".AAAA", issuedAt, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService(tt.at).ValidateToken(tt.token)
			require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, tt.message))
		})
	}
}

func TestValidateTokenLeeway(t *testing.T) {
	token, err := newService(issuedAt).GenerateAccessToken(userID, sessionID, time.Minute)
	require.NoError(t, err)

	late := issuedAt.Add(90 * time.Second)
	_, err = newService(late).ValidateToken(token)
	require.Error(t, err)

	_, err = newService(late, WithLeeway(time.Minute)).ValidateToken(token)
	require.NoError(t, err)
}

func TestAdapter(t *testing.T) {
	svc := newService(issuedAt)
	token, err := svc.GenerateAccessToken(userID, sessionID, time.Hour)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(svc).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, sessionID.String(), claims.SessionID)
	assert.NotEmpty(t, claims.JTI)
}
