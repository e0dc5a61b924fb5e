package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	platformsqlite "kycflow/internal/platform/sqlite"
	id "kycflow/pkg/domain"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/audit/store/sqlite"
)

type SQLiteAuditStoreSuite struct {
	suite.Suite
	store *sqlite.Store
	ctx   context.Context
	base  time.Time
}

func TestSQLiteAuditStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteAuditStoreSuite))
}

func (s *SQLiteAuditStoreSuite) SetupTest() {
	s.ctx = context.Background()
	db, err := platformsqlite.Open(s.ctx, ":memory:")
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	s.store = sqlite.New(db)
	s.base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
}

func (s *SQLiteAuditStoreSuite) event(eventID string, offset time.Duration, userID id.UserID, appID id.ApplicationID, action audit.AuditEvent) audit.Event {
	return audit.Event{
		ID:            eventID,
		Category:      action.Category(),
		Timestamp:     s.base.Add(offset),
		UserID:        userID,
		ApplicationID: appID,
		Action:        string(action),
	}
}

func (s *SQLiteAuditStoreSuite) TestAppendAndList() {
	user := id.NewUserID()
	app := id.NewApplicationID()

	created := s.event("01A", 0, user, app, audit.EventApplicationCreated)
	created.Details = map[string]any{"application_number": "KYC-1"}
	s.Require().NoError(s.store.Append(s.ctx, created))
	s.Require().NoError(s.store.Append(s.ctx, s.event("01B", time.Minute, user, app, audit.EventApplicationSubmitted)))
	s.Require().NoError(s.store.Append(s.ctx, s.event("01C", 2*time.Minute, id.UserID{}, id.ApplicationID{}, audit.EventLoginFailed)))

	s.Run("newest first with total", func() {
		events, total, err := s.store.List(s.ctx, audit.Filter{})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Require().Len(events, 3)
		s.Equal("01C", events[0].ID)
		s.True(events[0].UserID.IsNil())
		s.True(events[2].Timestamp.Equal(s.base))
	})

	s.Run("filters by application", func() {
		events, total, err := s.store.List(s.ctx, audit.Filter{ApplicationID: app})
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Equal(string(audit.EventApplicationSubmitted), events[0].Action)
		s.Equal("KYC-1", events[1].Details["application_number"])
		s.Equal(audit.CategoryOperations, events[1].Category)
	})

	s.Run("paginates", func() {
		events, total, err := s.store.List(s.ctx, audit.Filter{Offset: 1, Limit: 1})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Require().Len(events, 1)
		s.Equal("01B", events[0].ID)
	})
}

func (s *SQLiteAuditStoreSuite) TestAppendIsIdempotentOnID() {
	e := s.event("01X", 0, id.NewUserID(), id.ApplicationID{}, audit.EventLoginSuccess)
	s.Require().NoError(s.store.Append(s.ctx, e))
	s.Require().NoError(s.store.Append(s.ctx, e))

	_, total, err := s.store.List(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Equal(1, total)
}
