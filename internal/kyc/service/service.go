package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kycflow/internal/blob"
	"kycflow/internal/kyc/appnumber"
	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/risk"
	"kycflow/internal/platform/metrics"
	"kycflow/internal/storage"
	"kycflow/pkg/attrs"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
)

const tracerName = "kycflow/internal/kyc/service"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	Update(ctx context.Context, app *models.Application) error
	List(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error)
}

type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, ref string) (*blob.Object, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// NumberGenerator issues application numbers.
type NumberGenerator interface {
	Next(now time.Time) string
}

// Service drives applications through the verification wizard and review.
type Service struct {
	apps           ApplicationStore
	blobs          BlobStore
	numbers        NumberGenerator
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func WithNumberGenerator(g NumberGenerator) Option {
	return func(s *Service) {
		s.numbers = g
	}
}

// New constructs a Service.
func New(apps ApplicationStore, blobs BlobStore, opts ...Option) (*Service, error) {
	if apps == nil {
		return nil, errors.New("application store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	s := &Service{apps: apps, blobs: blobs}
	for _, opt := range opts {
		opt(s)
	}
	if s.numbers == nil {
		s.numbers = appnumber.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s, nil
}

// CreateApplication opens a draft for userID with the step 1 payload.
func (s *Service) CreateApplication(ctx context.Context, userID id.UserID, info models.PersonalInfo) (app *models.Application, err error) {
	ctx, span := s.startSpan(ctx, "CreateApplication", attribute.String("user.id", userID.String()))
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	app, err = models.NewApplication(id.NewApplicationID(), userID, s.numbers.Next(now), info, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.apps.Create(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "application number already issued")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to create application")
	}

	s.logAudit(ctx, audit.EventApplicationCreated,
		"user_id", userID,
		"application_id", app.ID,
		"applicationNumber", app.ApplicationNumber)
	if s.metrics != nil {
		s.metrics.IncrementApplicationsCreated()
	}
	return app, nil
}

// UpdateApplication merges the set fields into the draft's personal info.
func (s *Service) UpdateApplication(ctx context.Context, appID id.ApplicationID, update models.PersonalInfoUpdate) (app *models.Application, err error) {
	ctx, span := s.startSpan(ctx, "UpdateApplication", appAttr(appID))
	defer func() { endSpan(span, err) }()

	var fields []string
	app, err = s.mutate(ctx, appID, func(app *models.Application, now time.Time) error {
		if err := app.CanEdit(); err != nil {
			return err
		}
		fields = app.ApplyPersonalInfoUpdate(update, now)
		return app.PersonalInfo.Validate()
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	s.logAudit(ctx, audit.EventApplicationUpdated,
		"user_id", app.UserID,
		"application_id", app.ID,
		"fields", fields)
	return app, nil
}

// UploadDocument stores the document images and records the document on
// the draft. Images are written before the application; a lost race leaves
// orphaned blobs but never a dangling reference.
func (s *Service) UploadDocument(ctx context.Context, appID id.ApplicationID, upload models.DocumentUpload) (app *models.Application, err error) {
	ctx, span := s.startSpan(ctx, "UploadDocument", appAttr(appID),
		attribute.String("document.type", string(upload.Type)))
	defer func() { endSpan(span, err) }()

	if err := s.requireDraft(ctx, appID); err != nil {
		return nil, err
	}
	if upload.Front == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "front image is required")
	}

	doc := models.DocumentInfo{
		Type:             upload.Type,
		Number:           upload.Number,
		IssueDate:        upload.IssueDate,
		ExpiryDate:       upload.ExpiryDate,
		IssuingAuthority: upload.IssuingAuthority,
	}
	doc.FrontImageRef, err = s.putImage(ctx, blob.DocumentKey(appID, "front", upload.Front.ContentType), upload.Front)
	if err != nil {
		return nil, err
	}
	if upload.Back != nil && len(upload.Back.Data) > 0 {
		doc.BackImageRef, err = s.putImage(ctx, blob.DocumentKey(appID, "back", upload.Back.ContentType), upload.Back)
		if err != nil {
			return nil, err
		}
	}

	app, err = s.mutate(ctx, appID, func(app *models.Application, now time.Time) error {
		if err := app.CanEdit(); err != nil {
			return err
		}
		app.ApplyDocument(doc, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventDocumentUploaded,
		"user_id", app.UserID,
		"application_id", app.ID,
		"documentType", string(doc.Type),
		"documentNumber", doc.Number,
		"hasBackImage", doc.BackImageRef != "")
	return app, nil
}

// SaveFacialVerification records the client-side capture result.
func (s *Service) SaveFacialVerification(ctx context.Context, appID id.ApplicationID, capture models.FacialCapture) (app *models.Application, err error) {
	ctx, span := s.startSpan(ctx, "SaveFacialVerification", appAttr(appID))
	defer func() { endSpan(span, err) }()

	if err := s.requireDraft(ctx, appID); err != nil {
		return nil, err
	}

	facial := models.FacialVerification{
		IsCompleted:   true,
		Confidence:    capture.Confidence,
		MatchScore:    capture.MatchScore,
		LivenessCheck: capture.LivenessCheck,
	}
	if capture.Image != nil && len(capture.Image.Data) > 0 {
		facial.ImageRef, err = s.putImage(ctx, blob.FacialKey(appID, capture.Image.ContentType), capture.Image)
		if err != nil {
			return nil, err
		}
	}

	app, err = s.mutate(ctx, appID, func(app *models.Application, now time.Time) error {
		if err := app.CanEdit(); err != nil {
			return err
		}
		app.ApplyFacialVerification(facial, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventFacialCompleted,
		"user_id", app.UserID,
		"application_id", app.ID,
		"confidence", facial.Confidence,
		"matchScore", facial.MatchScore,
		"livenessCheck", facial.LivenessCheck)
	return app, nil
}

// SubmitApplication scores the draft and hands it to reviewers.
func (s *Service) SubmitApplication(ctx context.Context, appID id.ApplicationID) (app *models.Application, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "SubmitApplication", appAttr(appID))
	defer func() { endSpan(span, err) }()

	app, err = s.mutate(ctx, appID, func(app *models.Application, now time.Time) error {
		if err := app.CanSubmit(); err != nil {
			return err
		}
		result := risk.Score(app, now)
		app.ApplySubmission(result.Score, result.Level, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Float64("risk.score", app.RiskScore),
		attribute.String("risk.level", string(app.RiskLevel)))

	s.logAudit(ctx, audit.EventApplicationSubmitted,
		"user_id", app.UserID,
		"application_id", app.ID,
		"applicationNumber", app.ApplicationNumber,
		"riskScore", app.RiskScore,
		"riskLevel", string(app.RiskLevel))
	if s.metrics != nil {
		s.metrics.ObserveSubmission(string(app.RiskLevel), app.RiskScore)
		s.metrics.ObserveSubmit(start)
	}
	return app, nil
}

// StartReview marks a submitted application as picked up by adminID.
func (s *Service) StartReview(ctx context.Context, appID id.ApplicationID, adminID id.UserID) (app *models.Application, err error) {
	ctx, span := s.startSpan(ctx, "StartReview", appAttr(appID))
	defer func() { endSpan(span, err) }()

	app, err = s.mutate(ctx, appID, func(app *models.Application, now time.Time) error {
		if err := app.CanStartReview(); err != nil {
			return err
		}
		app.ApplyStartReview(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventApplicationInReview,
		"user_id", adminID,
		"application_id", app.ID,
		"applicationNumber", app.ApplicationNumber,
		"reviewedBy", adminID.String())
	return app, nil
}

// ReviewApplication records the final decision. A decided application
// cannot be reviewed again.
func (s *Service) ReviewApplication(ctx context.Context, appID id.ApplicationID, action models.ReviewAction, adminID id.UserID, notes string) (app *models.Application, err error) {
	ctx, span := s.startSpan(ctx, "ReviewApplication", appAttr(appID),
		attribute.String("review.action", string(action)))
	defer func() { endSpan(span, err) }()

	if action != models.ReviewApprove && action != models.ReviewReject {
		return nil, dErrors.New(dErrors.CodeValidation, "action must be approve or reject")
	}

	app, err = s.mutate(ctx, appID, func(app *models.Application, now time.Time) error {
		if err := app.CanReview(); err != nil {
			return err
		}
		app.ApplyReview(action, adminID, notes, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := audit.EventApplicationApproved
	if action == models.ReviewReject {
		event = audit.EventApplicationRejected
	}
	s.logAudit(ctx, event,
		"user_id", adminID,
		"application_id", app.ID,
		"applicationNumber", app.ApplicationNumber,
		"notes", notes,
		"reviewedBy", adminID.String())
	if s.metrics != nil {
		s.metrics.IncrementReviewed(string(action))
	}
	return app, nil
}

// GetApplication loads one application.
func (s *Service) GetApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load application")
	}
	return app, nil
}

// GetApplicationFor loads an application on behalf of viewerID. Only the
// owner and admins may see it.
func (s *Service) GetApplicationFor(ctx context.Context, appID id.ApplicationID, viewerID id.UserID, isAdmin bool) (*models.Application, error) {
	app, err := s.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !app.IsOwnedBy(viewerID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "application belongs to another user")
	}
	return app, nil
}

// RequireOwner fails with Forbidden unless userID owns the application.
func (s *Service) RequireOwner(ctx context.Context, appID id.ApplicationID, userID id.UserID) error {
	_, err := s.GetApplicationFor(ctx, appID, userID, false)
	return err
}

// GetUserApplications lists every application of userID, newest first.
func (s *Service) GetUserApplications(ctx context.Context, userID id.UserID) ([]*models.Application, error) {
	apps, _, err := s.apps.List(ctx, models.ApplicationFilter{UserID: userID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to list applications")
	}
	return apps, nil
}

// GetAllApplications pages through all applications, optionally restricted
// to one status.
func (s *Service) GetAllApplications(ctx context.Context, page, pageSize int, status models.Status) (*models.Page, error) {
	offset, limit := storage.Page(page, pageSize, DefaultPageSize, MaxPageSize)
	filter := models.ApplicationFilter{Offset: offset, Limit: limit}
	if status != "" {
		filter.Statuses = []models.Status{status}
	}
	apps, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to list applications")
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	return &models.Page{Items: apps, Total: total, Page: offset/limit + 1, PageSize: limit}, nil
}

// OpenImage returns a stored image of the application.
func (s *Service) OpenImage(ctx context.Context, appID id.ApplicationID, kind models.ImageKind) (*blob.Object, error) {
	app, err := s.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	ref := app.ImageRef(kind)
	if ref == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "image not found")
	}
	obj, err := s.blobs.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "image not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to read image")
	}
	return obj, nil
}

// mutate loads the application, applies fn and writes it back with a
// version check.
func (s *Service) mutate(ctx context.Context, appID id.ApplicationID, fn func(app *models.Application, now time.Time) error) (*models.Application, error) {
	app, err := s.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := fn(app, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.apps.Update(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrConflict) && s.metrics != nil {
			s.metrics.IncrementVersionConflicts()
		}
		return nil, translateStoreErr(err, "failed to save application")
	}
	return app, nil
}

// requireDraft rejects uploads for applications past draft before any blob
// is written.
func (s *Service) requireDraft(ctx context.Context, appID id.ApplicationID) error {
	app, err := s.GetApplication(ctx, appID)
	if err != nil {
		return err
	}
	return app.CanEdit()
}

func (s *Service) putImage(ctx context.Context, key string, img *models.Image) (string, error) {
	ref, err := s.blobs.Put(ctx, key, img.ContentType, img.Data)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to store image")
	}
	return ref, nil
}

func translateStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeApplicationNotFound, "application not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "application was modified concurrently, reload and retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, msg)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	s.logger.InfoContext(ctx, string(event), args...)
	if s.auditPublisher == nil {
		return
	}
	userID, _ := id.ParseUserID(attrs.ExtractString(attributes, "user_id"))
	appID, _ := id.ParseApplicationID(attrs.ExtractString(attributes, "application_id"))
	err := s.auditPublisher.Emit(ctx, audit.Event{
		UserID:        userID,
		ApplicationID: appID,
		Action:        string(event),
		Details:       attrs.ToMap(attributes, "user_id", "application_id", "request_id"),
		IP:            requestcontext.ClientIP(ctx),
		UserAgent:     requestcontext.UserAgent(ctx),
		RequestID:     requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record audit event", "event", string(event), "error", err)
		if s.metrics != nil {
			s.metrics.IncrementAuditEmitFailures()
		}
	}
}

func (s *Service) startSpan(ctx context.Context, name string, kv ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "kyc."+name, trace.WithAttributes(kv...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func appAttr(appID id.ApplicationID) attribute.KeyValue {
	return attribute.String("application.id", appID.String())
}
