// Package ratelimit throttles requests per client IP with a token bucket.
package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
)

// idleAfter is how long a key may go unused before its bucket is dropped.
const idleAfter = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client IP.
type Limiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	perMinute   int
	entries     map[string]*entry
	lastCleanup time.Time
	now         func() time.Time
}

// NewPerMinute allows perMinute requests per IP, all of them available as a
// burst. perMinute <= 0 disables limiting.
func NewPerMinute(perMinute int) *Limiter {
	return &Limiter{
		limit:       rate.Limit(float64(perMinute) / time.Minute.Seconds()),
		burst:       perMinute,
		perMinute:   perMinute,
		entries:     make(map[string]*entry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow reports whether key may make another request, and if not how long
// until it may.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l.perMinute <= 0 {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanup(now)

	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now

	if e.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := e.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

func (l *Limiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < idleAfter {
		return
	}
	l.lastCleanup = now
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) >= idleAfter {
			delete(l.entries, key)
		}
	}
}

// Middleware limits by the client IP the metadata middleware stored.
func (l *Limiter) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			if ip == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, delay := l.Allow(ip)
			if !allowed {
				retryAfter := max(int(delay.Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMinute))
				logger.WarnContext(ctx, "rate limit exceeded",
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "too many requests, please try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
