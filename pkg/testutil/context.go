package testutil

import (
	"net/http"

	id "kycflow/pkg/domain"
	"kycflow/pkg/requestcontext"
)

// WithPrincipal adds the authenticated user, session and admin flag to the
// request context, as the auth middleware would.
func WithPrincipal(req *http.Request, userID id.UserID, sessionID id.SessionID, isAdmin bool) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithSessionID(ctx, sessionID)
	ctx = requestcontext.WithIsAdmin(ctx, isAdmin)
	return req.WithContext(ctx)
}
