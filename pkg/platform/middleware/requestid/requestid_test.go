package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/pkg/requestcontext"
)

func serve(t *testing.T, inbound string) (ctxID string, rec *httptest.ResponseRecorder) {
	t.Helper()
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = requestcontext.RequestID(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		r.Header.Set(Header, inbound)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return ctxID, rec
}

func TestMiddlewareKeepsInboundID(t *testing.T) {
	got, rec := serve(t, "abc-123")
	assert.Equal(t, "abc-123", got)
	assert.Equal(t, "abc-123", rec.Header().Get(Header))
}

func TestMiddlewareGeneratesID(t *testing.T) {
	got, rec := serve(t, "")
	_, err := uuid.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, got, rec.Header().Get(Header))
}

func TestMiddlewareReplacesOversizedID(t *testing.T) {
	got, _ := serve(t, strings.Repeat("x", maxLength+1))
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}
