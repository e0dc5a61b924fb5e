package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/admin"
	"kycflow/internal/blob"
	"kycflow/internal/kyc/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
)

// Reviewer is the admin side of the application lifecycle.
type Reviewer interface {
	GetAllApplications(ctx context.Context, page, pageSize int, status models.Status) (*models.Page, error)
	StartReview(ctx context.Context, appID id.ApplicationID, adminID id.UserID) (*models.Application, error)
	ReviewApplication(ctx context.Context, appID id.ApplicationID, action models.ReviewAction, adminID id.UserID, notes string) (*models.Application, error)
	OpenImage(ctx context.Context, appID id.ApplicationID, kind models.ImageKind) (*blob.Object, error)
}

// Reporter answers the dashboard queries.
type Reporter interface {
	Stats(ctx context.Context) (*models.Stats, error)
	AuditLog(ctx context.Context, q admin.AuditQuery) (*admin.AuditLogPage, error)
}

// Handler serves the admin console endpoints. Routes expect RequireAuth and
// RequireAdmin to have run.
type Handler struct {
	reviewer Reviewer
	reporter Reporter
	logger   *slog.Logger
}

func New(reviewer Reviewer, reporter Reporter, logger *slog.Logger) *Handler {
	return &Handler{reviewer: reviewer, reporter: reporter, logger: logger}
}

// Register mounts the admin endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Get("/applications", h.HandleListApplications)
		r.Post("/applications/{id}/start-review", h.HandleStartReview)
		r.Post("/applications/{id}/review", h.HandleReview)
		r.Get("/applications/{id}/images/{kind}", h.HandleImage)
		r.Get("/stats", h.HandleStats)
		r.Get("/audit-logs", h.HandleAuditLogs)
	})
}

// HandleListApplications handles GET /admin/applications?page=&page_size=&status=.
func (h *Handler) HandleListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, pageSize, err := paging(q.Get("page"), q.Get("page_size"))
	if err != nil {
		h.fail(w, r, "invalid listing query", err)
		return
	}
	var status models.Status
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		if status, err = models.ParseStatus(raw); err != nil {
			h.fail(w, r, "invalid listing query", err)
			return
		}
	}

	result, err := h.reviewer.GetAllApplications(r.Context(), page, pageSize, status)
	if err != nil {
		h.fail(w, r, "list applications failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleStartReview handles POST /admin/applications/{id}/start-review.
func (h *Handler) HandleStartReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	app, err := h.reviewer.StartReview(ctx, appID, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(w, r, "start review failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleReview handles POST /admin/applications/{id}/review.
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviewRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	app, err := h.reviewer.ReviewApplication(ctx, appID, req.ParsedAction(), requestcontext.UserID(ctx), req.Notes)
	if err != nil {
		h.fail(w, r, "review failed", err)
		return
	}
	h.logger.InfoContext(ctx, "application reviewed",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", appID.String(),
		"decision", string(req.ParsedAction()),
	)
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleImage handles GET /admin/applications/{id}/images/{kind} and streams
// the stored bytes.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	kind := models.ImageKind(chi.URLParam(r, "kind"))
	switch kind {
	case models.ImageFront, models.ImageBack, models.ImageFace:
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "image kind must be front, back or face"))
		return
	}

	obj, err := h.reviewer.OpenImage(r.Context(), appID, kind)
	if err != nil {
		h.fail(w, r, "open image failed", err)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}

// HandleStats handles GET /admin/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reporter.Stats(r.Context())
	if err != nil {
		h.fail(w, r, "stats failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleAuditLogs handles GET /admin/audit-logs?application_id=&user_id=&action=&page=&page_size=.
func (h *Handler) HandleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var query admin.AuditQuery
	var err error
	if query.Page, query.PageSize, err = paging(q.Get("page"), q.Get("page_size")); err != nil {
		h.fail(w, r, "invalid audit query", err)
		return
	}
	if raw := strings.TrimSpace(q.Get("application_id")); raw != "" {
		if query.ApplicationID, err = id.ParseApplicationID(raw); err != nil {
			h.fail(w, r, "invalid audit query", dErrors.New(dErrors.CodeBadRequest, "invalid application_id"))
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("user_id")); raw != "" {
		if query.UserID, err = id.ParseUserID(raw); err != nil {
			h.fail(w, r, "invalid audit query", dErrors.New(dErrors.CodeBadRequest, "invalid user_id"))
			return
		}
	}
	query.Action = strings.ToUpper(strings.TrimSpace(q.Get("action")))

	page, err := h.reporter.AuditLog(r.Context(), query)
	if err != nil {
		h.fail(w, r, "audit log failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func paging(rawPage, rawSize string) (page, size int, err error) {
	if page, err = optionalInt(rawPage, "page"); err != nil {
		return 0, 0, err
	}
	if size, err = optionalInt(rawSize, "page_size"); err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func optionalInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, field+" must be a non-negative integer")
	}
	return n, nil
}

func (h *Handler) appID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid application id"))
		return id.ApplicationID{}, false
	}
	return appID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if dErrors.HTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"admin_id", requestcontext.UserID(ctx).String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}
