package admin

import (
	"log/slog"
	"net/http"

	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
)

// RequireAdmin rejects requests whose authenticated user is not an
// administrator. It must run after auth.RequireAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.IsAdmin(ctx) {
				logger.WarnContext(ctx, "admin access denied",
					"user_id", requestcontext.UserID(ctx).String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin access required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
