package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kycflow/pkg/requestcontext"
)

func TestAllowExhaustsBurstPerKey(t *testing.T) {
	l := NewPerMinute(3)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("10.0.0.1")
		assert.True(t, ok, "request %d", i)
	}
	ok, delay := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Greater(t, delay, time.Duration(0))

	ok, _ = l.Allow("10.0.0.2")
	assert.True(t, ok, "other keys have their own bucket")

	now = now.Add(30 * time.Second)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok, "a token has refilled after 30s at 3/min")
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := NewPerMinute(0)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("10.0.0.1")
		assert.True(t, ok)
	}
}

func TestCleanupDropsIdleKeys(t *testing.T) {
	l := NewPerMinute(1)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.lastCleanup = now

	l.Allow("a")
	now = now.Add(idleAfter + time.Second)
	l.Allow("b")

	assert.NotContains(t, l.entries, "a")
	assert.Contains(t, l.entries, "b")
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	l := NewPerMinute(1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := l.Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r = r.WithContext(requestcontext.WithClientMetadata(r.Context(), "10.0.0.9", "curl"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send().Code)
	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too_many_requests")
}
