package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	adminhandler "kycflow/internal/admin/handler"
	authadapters "kycflow/internal/auth/adapters"
	authhandler "kycflow/internal/auth/handler"
	kychandler "kycflow/internal/kyc/handler"
	"kycflow/pkg/platform/httputil"
	adminmw "kycflow/pkg/platform/middleware/admin"
	authmw "kycflow/pkg/platform/middleware/auth"
	"kycflow/pkg/platform/middleware/logging"
	"kycflow/pkg/platform/middleware/metadata"
	"kycflow/pkg/platform/middleware/ratelimit"
	"kycflow/pkg/platform/middleware/requestid"
	"kycflow/pkg/platform/middleware/requesttime"
)

// AuthService is what the router needs from the auth service: the handler
// surface plus session resolution for bearer tokens.
type AuthService interface {
	authhandler.Service
	authadapters.SessionResolver
}

// KYCService is the application lifecycle surface for applicants and reviewers.
type KYCService interface {
	kychandler.Service
	adminhandler.Reviewer
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies bundles everything NewRouter mounts.
type Dependencies struct {
	Logger             *slog.Logger
	Auth               AuthService
	KYC                KYCService
	Reports            adminhandler.Reporter
	Tokens             authmw.JWTValidator
	Requests           logging.RequestRecorder
	Metrics            http.Handler
	LoginRatePerMinute int
	HealthChecks       map[string]HealthCheck
}

// NewRouter wires the public API. Applicant and admin routes sit behind bearer
// authentication; admin routes additionally require the admin flag.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(logging.Recovery(logger))
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(logging.Requests(logger, deps.Requests))

	r.Get("/healthz", health(deps.HealthChecks))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	requireAuth := authmw.RequireAuth(deps.Tokens, authadapters.NewSessionPrincipalResolver(deps.Auth), logger)

	var loginLimit func(http.Handler) http.Handler
	if deps.LoginRatePerMinute > 0 {
		loginLimit = ratelimit.NewPerMinute(deps.LoginRatePerMinute).Middleware(logger)
	}
	authhandler.New(deps.Auth, logger, requireAuth, loginLimit).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		kychandler.New(deps.KYC, logger).Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(adminmw.RequireAdmin(logger))
		adminhandler.New(deps.KYC, deps.Reports, logger).Register(r)
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for _, name := range names {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(names))
			}
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
