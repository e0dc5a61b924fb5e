package jwttoken

import (
	authmw "kycflow/pkg/platform/middleware/auth"
)

// JWTServiceAdapter exposes JWTService as the validator the auth middleware
// consumes.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		JTI:       claims.ID,
	}, nil
}
