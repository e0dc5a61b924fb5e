package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// Claims are the access token claims. Subject carries the user id and sid
// names the server-side session the token is bound to.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// JWTService signs and validates HS256 access tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	leeway     time.Duration
	now        func() time.Time
}

type Option func(*JWTService)

// WithClock overrides the clock used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) {
		s.now = now
	}
}

// WithLeeway tolerates clock skew when checking exp and iat.
func WithLeeway(d time.Duration) Option {
	return func(s *JWTService) {
		s.leeway = d
	}
}

func NewJWTService(signingKey string, issuer string, audience string, opts ...Option) *JWTService {
	s := &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateAccessToken signs a token for the session that expires after expiresIn.
func (s *JWTService) GenerateAccessToken(userID id.UserID, sessionID id.SessionID, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "token lifetime must be positive")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, issuer, audience and lifetime. Any failure
// is an Unauthorized domain error.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
