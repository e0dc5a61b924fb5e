package adapters

import (
	"context"

	"kycflow/internal/auth/models"
	id "kycflow/pkg/domain"
	authmw "kycflow/pkg/platform/middleware/auth"
)

// SessionResolver is the interface the auth service implements.
// Defined locally so the adapter does not depend on the service package.
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID id.SessionID) (*models.Session, *models.User, error)
}

// SessionPrincipalResolver adapts the auth service to authmw.SessionResolver.
type SessionPrincipalResolver struct {
	sessions SessionResolver
}

func NewSessionPrincipalResolver(svc SessionResolver) *SessionPrincipalResolver {
	return &SessionPrincipalResolver{sessions: svc}
}

// ResolvePrincipal maps the live session's user to the middleware principal.
func (a *SessionPrincipalResolver) ResolvePrincipal(ctx context.Context, sessionID id.SessionID) (*authmw.Principal, error) {
	_, user, err := a.sessions.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &authmw.Principal{UserID: user.ID, IsAdmin: user.IsAdmin}, nil
}
