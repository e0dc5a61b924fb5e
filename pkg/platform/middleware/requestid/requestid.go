// Package requestid tags every request with an identifier that is echoed in
// the response and carried into logs and audit entries.
package requestid

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"kycflow/pkg/requestcontext"
)

const Header = "X-Request-ID"

// maxLength bounds client supplied identifiers.
const maxLength = 128

// Middleware reuses a well-formed inbound X-Request-ID or generates one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(Header))
		if reqID == "" || len(reqID) > maxLength {
			reqID = uuid.NewString()
		}
		w.Header().Set(Header, reqID)
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
