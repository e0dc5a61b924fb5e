package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"kycflow/internal/admin"
	blobmemory "kycflow/internal/blob/memory"
	"kycflow/internal/kyc/models"
	kycservice "kycflow/internal/kyc/service"
	"kycflow/internal/storage/memory"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/audit/publisher"
	auditmemory "kycflow/pkg/platform/audit/store/memory"
	"kycflow/pkg/requestcontext"
)

// =============================================================================
// Admin Handler Test Suite
// =============================================================================
// Justification: the admin console is the only way applications leave the
// submitted state. The suite drives the real lifecycle and dashboard services
// so review decisions, listings and the audit trail are checked end to end.

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

var jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")

type AdminHandlerSuite struct {
	suite.Suite
	kyc     *kycservice.Service
	router  http.Handler
	events  *auditmemory.InMemoryStore
	adminID id.UserID
	ctx     context.Context
}

func TestAdminHandlerSuite(t *testing.T) {
	suite.Run(t, new(AdminHandlerSuite))
}

func (s *AdminHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	apps := memory.NewApplicationStore()
	s.events = auditmemory.NewInMemoryStore()
	pub := publisher.NewPublisher(s.events)

	var err error
	s.kyc, err = kycservice.New(apps, blobmemory.NewInMemoryStore(),
		kycservice.WithLogger(logger), kycservice.WithAuditPublisher(pub))
	s.Require().NoError(err)
	dashboard, err := admin.New(apps, pub)
	s.Require().NoError(err)

	s.adminID = id.NewUserID()
	s.ctx = requestcontext.WithTime(context.Background(), now)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now)
			ctx = requestcontext.WithUserID(ctx, s.adminID)
			ctx = requestcontext.WithIsAdmin(ctx, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	New(s.kyc, dashboard, logger).Register(r)
	s.router = r
}

func (s *AdminHandlerSuite) submitted() *models.Application {
	app, err := s.kyc.CreateApplication(s.ctx, id.NewUserID(), models.PersonalInfo{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", DateOfBirth: "1990-12-10",
	})
	s.Require().NoError(err)
	_, err = s.kyc.UploadDocument(s.ctx, app.ID, models.DocumentUpload{
		Type: models.DocumentPassport, Number: "P1", IssueDate: "2020-01-01", ExpiryDate: "2030-01-01",
		IssuingAuthority: "HMPO", Front: &models.Image{ContentType: "image/jpeg", Data: jpegBytes},
	})
	s.Require().NoError(err)
	_, err = s.kyc.SaveFacialVerification(s.ctx, app.ID, models.FacialCapture{Confidence: 0.9, MatchScore: 0.9, LivenessCheck: true})
	s.Require().NoError(err)
	app, err = s.kyc.SubmitApplication(s.ctx, app.ID)
	s.Require().NoError(err)
	return app
}

func (s *AdminHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Review decisions
// =============================================================================

func (s *AdminHandlerSuite) TestReviewFlow() {
	app := s.submitted()
	base := "/admin/applications/" + app.ID.String()

	rec := s.do(http.MethodPost, base+"/start-review", "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), `"status":"under_review"`)

	rec = s.do(http.MethodPost, base+"/review", `{"action":"reject","notes":" blurry document "}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var reviewed models.Application
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&reviewed))
	s.Equal(models.StatusRejected, reviewed.Status)
	s.Equal("blurry document", reviewed.RejectionReason)
	s.Require().NotNil(reviewed.ReviewedBy)
	s.Equal(s.adminID, *reviewed.ReviewedBy)

	s.Run("re-review is rejected", func() {
		rec := s.do(http.MethodPost, base+"/review", `{"action":"approve"}`)
		s.Equal(http.StatusConflict, rec.Code)
		s.Contains(rec.Body.String(), "invalid_state")
	})
}

func (s *AdminHandlerSuite) TestReviewValidation() {
	app := s.submitted()
	path := "/admin/applications/" + app.ID.String() + "/review"

	s.Run("unknown action", func() {
		rec := s.do(http.MethodPost, path, `{"action":"maybe"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed id", func() {
		rec := s.do(http.MethodPost, "/admin/applications/abc/review", `{"action":"approve"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("approve directly from submitted", func() {
		rec := s.do(http.MethodPost, path, `{"action":"APPROVE"}`)
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"status":"approved"`)
	})
}

func (s *AdminHandlerSuite) TestStartReviewOnDraftIsRejected() {
	app, err := s.kyc.CreateApplication(s.ctx, id.NewUserID(), models.PersonalInfo{FirstName: "A", LastName: "B"})
	s.Require().NoError(err)
	rec := s.do(http.MethodPost, "/admin/applications/"+app.ID.String()+"/start-review", "")
	s.Equal(http.StatusConflict, rec.Code)
}

// =============================================================================
// Listing, images, stats and audit log
// =============================================================================

func (s *AdminHandlerSuite) TestListApplications() {
	s.submitted()
	s.submitted()
	_, err := s.kyc.CreateApplication(s.ctx, id.NewUserID(), models.PersonalInfo{FirstName: "A", LastName: "B"})
	s.Require().NoError(err)

	rec := s.do(http.MethodGet, "/admin/applications?status=submitted&page_size=1", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var page models.Page
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&page))
	s.Equal(2, page.Total)
	s.Len(page.Items, 1)
	s.Equal(1, page.PageSize)

	s.Run("bad status", func() {
		rec := s.do(http.MethodGet, "/admin/applications?status=lost", "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("bad page", func() {
		rec := s.do(http.MethodGet, "/admin/applications?page=-1", "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("huge page is an empty page", func() {
		rec := s.do(http.MethodGet, "/admin/applications?page=9223372036854775807", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		var page models.Page
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&page))
		s.Equal(3, page.Total)
		s.Empty(page.Items)
		s.Positive(page.Page)
	})
}

func (s *AdminHandlerSuite) TestImage() {
	app := s.submitted()
	base := "/admin/applications/" + app.ID.String() + "/images/"

	rec := s.do(http.MethodGet, base+"front", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("image/jpeg", rec.Header().Get("Content-Type"))
	s.Equal(jpegBytes, rec.Body.Bytes())

	rec = s.do(http.MethodGet, base+"back", "")
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, base+"selfie", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *AdminHandlerSuite) TestStats() {
	s.submitted()
	rec := s.do(http.MethodGet, "/admin/stats", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var stats models.Stats
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&stats))
	s.Equal(1, stats.Total)
	s.Equal(1, stats.PendingReview)
	s.Equal(1, stats.TodaySubmissions)
}

func (s *AdminHandlerSuite) TestAuditLogs() {
	app := s.submitted()
	s.submitted()

	rec := s.do(http.MethodGet, "/admin/audit-logs?application_id="+app.ID.String(), "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var page admin.AuditLogPage
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&page))
	s.Equal(4, page.Total)
	for _, e := range page.Items {
		s.Equal(app.ID, e.ApplicationID)
	}

	rec = s.do(http.MethodGet, "/admin/audit-logs?action=kyc_application_submitted", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	page = admin.AuditLogPage{}
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&page))
	s.Equal(2, page.Total)
	s.Equal(string(audit.EventApplicationSubmitted), page.Items[0].Action)

	rec = s.do(http.MethodGet, "/admin/audit-logs?user_id=nope", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}
