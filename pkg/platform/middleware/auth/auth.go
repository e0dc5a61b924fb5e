package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID    string
	SessionID string
	JTI       string
}

// Principal is the live identity behind a session.
type Principal struct {
	UserID  id.UserID
	IsAdmin bool
}

// SessionResolver looks up the session a token is bound to. A logged out or
// expired session must yield an Unauthorized domain error.
type SessionResolver interface {
	ResolvePrincipal(ctx context.Context, sessionID id.SessionID) (*Principal, error)
}

const bearerPrefix = "Bearer "

// BearerToken returns the token from the Authorization header, or "".
func BearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth validates the bearer token, checks its session is still live
// and puts the user, session and admin flag on the request context.
func RequireAuth(validator JWTValidator, sessions SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token := BearerToken(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			sessionID, err := id.ParseSessionID(claims.SessionID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed session claim",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			principal, err := sessions.ResolvePrincipal(ctx, sessionID)
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					logger.WarnContext(ctx, "unauthorized access - session not live",
						"session_id", claims.SessionID,
						"request_id", requestID,
					)
				} else {
					logger.ErrorContext(ctx, "failed to resolve session",
						"error", err,
						"request_id", requestID,
					)
				}
				httputil.WriteError(w, err)
				return
			}
			if principal.UserID.String() != claims.UserID {
				logger.WarnContext(ctx, "unauthorized access - token subject does not own session",
					"session_id", claims.SessionID,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx = requestcontext.WithUserID(ctx, principal.UserID)
			ctx = requestcontext.WithSessionID(ctx, sessionID)
			ctx = requestcontext.WithIsAdmin(ctx, principal.IsAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
