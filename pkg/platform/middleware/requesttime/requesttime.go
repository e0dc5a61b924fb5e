// Package requesttime pins one "now" per HTTP request, so audit entries and
// domain timestamps written by the same request agree.
package requesttime

import (
	"net/http"
	"time"

	"kycflow/pkg/requestcontext"
)

// Middleware stamps each request with the wall clock in UTC.
var Middleware = WithClock(time.Now)

// WithClock returns middleware that stamps each request with now().UTC().
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
