package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/auth/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
)

// Service defines the auth operations the handler drives.
type Service interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, email, plain string) (*models.LoginResult, error)
	Logout(ctx context.Context, sessionID id.SessionID) error
	ResetPassword(ctx context.Context, email string) error
	CurrentUser(ctx context.Context, sessionID id.SessionID) (*models.User, error)
}

// Handler wires account and session endpoints to the auth service.
type Handler struct {
	auth        Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
	loginLimit  func(http.Handler) http.Handler
}

// New constructs the auth handler. loginLimit may be nil.
func New(auth Service, logger *slog.Logger, requireAuth, loginLimit func(http.Handler) http.Handler) *Handler {
	return &Handler{
		auth:        auth,
		logger:      logger,
		requireAuth: requireAuth,
		loginLimit:  loginLimit,
	}
}

// Register mounts the auth endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/password-reset", h.HandlePasswordReset)
	if h.loginLimit != nil {
		r.With(h.loginLimit).Post("/auth/login", h.HandleLogin)
	} else {
		r.Post("/auth/login", h.HandleLogin)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/auth/logout", h.HandleLogout)
		r.Get("/auth/me", h.HandleMe)
	})
}

// HandleRegister handles POST /auth/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	user, err := h.auth.Register(ctx, req)
	if err != nil {
		h.logFailure(ctx, "registration failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.logFailure(ctx, "login failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toLoginResponse(res))
}

// HandleLogout handles POST /auth/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.auth.Logout(ctx, requestcontext.SessionID(ctx)); err != nil {
		h.logFailure(ctx, "logout failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePasswordReset handles POST /auth/password-reset.
func (h *Handler) HandlePasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[PasswordResetRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.auth.ResetPassword(ctx, req.Email); err != nil {
		h.logFailure(ctx, "password reset failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleMe handles GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.auth.CurrentUser(ctx, requestcontext.SessionID(ctx))
	if err != nil {
		h.logFailure(ctx, "current user lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	if user == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no active session"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.HTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
