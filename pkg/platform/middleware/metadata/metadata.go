package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"kycflow/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		ua := SummarizeUserAgent(r.Header.Get("User-Agent"))
		ctx := requestcontext.WithClientMetadata(r.Context(), ip, ua)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SummarizeUserAgent reduces a raw User-Agent header to "Browser version on
// OS" for audit entries. Bots and unparseable agents keep the raw value.
func SummarizeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return raw
	}
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	summary := name
	if version != "" {
		summary += " " + version
	}
	if os := ua.OS(); os != "" {
		summary += " on " + os
	}
	if ua.Mobile() {
		summary += " (mobile)"
	}
	return summary
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	// Check X-Real-IP header (used by nginx and other proxies)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if addr := r.RemoteAddr; addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}

	return "unknown"
}
