package admin

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycflow/internal/kyc/models"
	"kycflow/internal/storage/memory"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/audit"
	auditmemory "kycflow/pkg/platform/audit/store/memory"
	"kycflow/pkg/requestcontext"
)

var now = time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)

type AdminServiceSuite struct {
	suite.Suite
	apps    *memory.ApplicationStore
	events  *auditmemory.InMemoryStore
	service *Service
	ctx     context.Context
}

func TestAdminServiceSuite(t *testing.T) {
	suite.Run(t, new(AdminServiceSuite))
}

func (s *AdminServiceSuite) SetupTest() {
	s.apps = memory.NewApplicationStore()
	s.events = auditmemory.NewInMemoryStore()
	var err error
	s.service, err = New(s.apps, s.events)
	s.Require().NoError(err)
	s.ctx = requestcontext.WithTime(context.Background(), now)
}

func (s *AdminServiceSuite) seed(status models.Status, createdAt time.Time) {
	app, err := models.NewApplication(id.NewApplicationID(), id.NewUserID(),
		fmt.Sprintf("KYC-%d", createdAt.UnixNano()), models.PersonalInfo{FirstName: "A", LastName: "B"}, createdAt)
	s.Require().NoError(err)
	app.Status = status
	s.Require().NoError(s.apps.Create(s.ctx, app))
}

func (s *AdminServiceSuite) TestNew() {
	_, err := New(nil, s.events)
	s.ErrorContains(err, "application counter is required")
	_, err = New(s.apps, nil)
	s.ErrorContains(err, "audit reader is required")
}

func (s *AdminServiceSuite) TestStats() {
	yesterday := now.Add(-24 * time.Hour)
	s.seed(models.StatusDraft, yesterday)
	s.seed(models.StatusSubmitted, yesterday.Add(time.Second))
	s.seed(models.StatusUnderReview, now.Add(-time.Hour))
	s.seed(models.StatusApproved, now.Add(-2*time.Hour))
	s.seed(models.StatusRejected, now.Add(-3*time.Hour))
	s.seed(models.StatusApproved, now.Add(-15*time.Hour-29*time.Minute))

	stats, err := s.service.Stats(s.ctx)
	s.Require().NoError(err)

	s.Equal(6, stats.Total)
	s.Equal(2, stats.PendingReview)
	s.Equal(2, stats.Approved)
	s.Equal(1, stats.Rejected)
	s.Equal(4, stats.TodaySubmissions)
}

func (s *AdminServiceSuite) TestStatsEmpty() {
	stats, err := s.service.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Stats{}, *stats)
}

func (s *AdminServiceSuite) TestAuditLog() {
	appID := id.NewApplicationID()
	other := id.NewApplicationID()
	for i := 0; i < 5; i++ {
		target := appID
		if i%2 == 1 {
			target = other
		}
		s.Require().NoError(s.events.Append(s.ctx, audit.Event{
			ID:            fmt.Sprintf("evt-%d", i),
			ApplicationID: target,
			Action:        string(audit.EventApplicationUpdated),
			Timestamp:     now.Add(time.Duration(i) * time.Minute),
		}))
	}

	s.Run("filters by application", func() {
		page, err := s.service.AuditLog(s.ctx, AuditQuery{ApplicationID: appID})
		s.Require().NoError(err)
		s.Equal(3, page.Total)
		s.Len(page.Items, 3)
		s.Equal(DefaultPageSize, page.PageSize)
		for _, e := range page.Items {
			s.Equal(appID, e.ApplicationID)
		}
		s.Equal("evt-4", page.Items[0].ID)
	})

	s.Run("pages newest first", func() {
		page, err := s.service.AuditLog(s.ctx, AuditQuery{Page: 2, PageSize: 2})
		s.Require().NoError(err)
		s.Equal(5, page.Total)
		s.Equal(2, page.Page)
		s.Require().Len(page.Items, 2)
		s.Equal("evt-2", page.Items[0].ID)
		s.Equal("evt-1", page.Items[1].ID)
	})

	s.Run("empty result is an empty list", func() {
		page, err := s.service.AuditLog(s.ctx, AuditQuery{UserID: id.NewUserID()})
		s.Require().NoError(err)
		s.NotNil(page.Items)
		s.Zero(page.Total)
	})
}

type failingCounter struct{}

func (failingCounter) CountByStatus(context.Context) (map[models.Status]int, error) {
	return nil, errors.New("db down")
}

func (failingCounter) CountCreatedSince(context.Context, time.Time) (int, error) {
	return 0, errors.New("db down")
}

func (s *AdminServiceSuite) TestStatsStorageFailure() {
	svc, err := New(failingCounter{}, s.events)
	s.Require().NoError(err)
	_, err = svc.Stats(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeStorageFailure))
}
