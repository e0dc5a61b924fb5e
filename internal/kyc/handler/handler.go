package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/kyc/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
)

// Service defines the applicant side of the application lifecycle.
type Service interface {
	CreateApplication(ctx context.Context, userID id.UserID, info models.PersonalInfo) (*models.Application, error)
	UpdateApplication(ctx context.Context, appID id.ApplicationID, update models.PersonalInfoUpdate) (*models.Application, error)
	UploadDocument(ctx context.Context, appID id.ApplicationID, upload models.DocumentUpload) (*models.Application, error)
	SaveFacialVerification(ctx context.Context, appID id.ApplicationID, capture models.FacialCapture) (*models.Application, error)
	SubmitApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	GetApplicationFor(ctx context.Context, appID id.ApplicationID, viewerID id.UserID, isAdmin bool) (*models.Application, error)
	RequireOwner(ctx context.Context, appID id.ApplicationID, userID id.UserID) error
	GetUserApplications(ctx context.Context, userID id.UserID) ([]*models.Application, error)
}

// Handler serves the applicant endpoints. Every route expects
// auth.RequireAuth to have run.
type Handler struct {
	kyc    Service
	logger *slog.Logger
}

func New(kyc Service, logger *slog.Logger) *Handler {
	return &Handler{kyc: kyc, logger: logger}
}

// Register mounts the applicant endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/kyc/applications", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleListMine)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}/personal-info", h.HandleUpdatePersonalInfo)
		r.Post("/{id}/document", h.HandleUploadDocument)
		r.Post("/{id}/facial", h.HandleFacialVerification)
		r.Post("/{id}/submit", h.HandleSubmit)
	})
}

// HandleCreate handles POST /kyc/applications.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateApplicationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	app, err := h.kyc.CreateApplication(ctx, userID, req.PersonalInfo)
	if err != nil {
		h.fail(w, r, "create application failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, app)
}

// HandleListMine handles GET /kyc/applications.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	apps, err := h.kyc.GetUserApplications(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "list applications failed", err)
		return
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	httputil.WriteJSON(w, http.StatusOK, ApplicationList{Items: apps})
}

// HandleGet handles GET /kyc/applications/{id}. Admins may read any application.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	app, err := h.kyc.GetApplicationFor(ctx, appID, userID, requestcontext.IsAdmin(ctx))
	if err != nil {
		h.fail(w, r, "get application failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleUpdatePersonalInfo handles PATCH /kyc/applications/{id}/personal-info.
func (h *Handler) HandleUpdatePersonalInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.ownedAppID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdatePersonalInfoRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	app, err := h.kyc.UpdateApplication(ctx, appID, req.PersonalInfoUpdate)
	if err != nil {
		h.fail(w, r, "update application failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleUploadDocument handles the multipart POST /kyc/applications/{id}/document.
func (h *Handler) HandleUploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.ownedAppID(w, r)
	if !ok {
		return
	}
	upload, err := parseDocumentUpload(w, r)
	if err == nil {
		err = upload.Validate()
	}
	if err != nil {
		h.fail(w, r, "invalid document upload", err)
		return
	}
	app, err := h.kyc.UploadDocument(ctx, appID, upload)
	if err != nil {
		h.fail(w, r, "upload document failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleFacialVerification handles the multipart POST /kyc/applications/{id}/facial.
func (h *Handler) HandleFacialVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.ownedAppID(w, r)
	if !ok {
		return
	}
	capture, err := parseFacialCapture(w, r)
	if err == nil {
		err = capture.Validate()
	}
	if err != nil {
		h.fail(w, r, "invalid facial verification", err)
		return
	}
	app, err := h.kyc.SaveFacialVerification(ctx, appID, capture)
	if err != nil {
		h.fail(w, r, "save facial verification failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleSubmit handles POST /kyc/applications/{id}/submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.ownedAppID(w, r)
	if !ok {
		return
	}
	app, err := h.kyc.SubmitApplication(r.Context(), appID)
	if err != nil {
		h.fail(w, r, "submit application failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}

func (h *Handler) appID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid application id"))
		return id.ApplicationID{}, false
	}
	return appID, true
}

// ownedAppID resolves the path id and checks the caller owns it. Mutations
// are owner only, admins included.
func (h *Handler) ownedAppID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return id.ApplicationID{}, false
	}
	appID, ok := h.appID(w, r)
	if !ok {
		return id.ApplicationID{}, false
	}
	if err := h.kyc.RequireOwner(r.Context(), appID, userID); err != nil {
		h.fail(w, r, "ownership check failed", err)
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
		"user_id", requestcontext.UserID(ctx).String(),
		"application_id", chi.URLParam(r, "id"),
		"error", err,
	)
	httputil.WriteError(w, err)
}
