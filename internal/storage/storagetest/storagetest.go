// Package storagetest holds the behavioural contract every storage backend
// must satisfy. Backend packages run these suites from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	authModels "kycflow/internal/auth/models"
	"kycflow/internal/kyc/models"
	"kycflow/internal/storage"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

// Factory returns fresh, empty stores for one test.
type Factory func(t *testing.T) (storage.UserStore, storage.ApplicationStore)

// Run executes the contract suite against the stores built by factory.
func Run(t *testing.T, factory Factory) {
	suite.Run(t, &ContractSuite{factory: factory})
}

type ContractSuite struct {
	suite.Suite
	factory Factory
	users   storage.UserStore
	apps    storage.ApplicationStore
	base    time.Time
	seq     atomic.Int64
}

func (s *ContractSuite) SetupTest() {
	s.users, s.apps = s.factory(s.T())
	s.base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
}

func (s *ContractSuite) newUser(email string) *authModels.User {
	u, err := authModels.NewUser(id.NewUserID(), email, "$2a$10$hash", "Ada", "Lovelace", "+441234", false, s.base)
	s.Require().NoError(err)
	return u
}

func (s *ContractSuite) newApp(userID id.UserID, createdAt time.Time) *models.Application {
	n := s.seq.Add(1)
	app, err := models.NewApplication(id.NewApplicationID(), userID, fmt.Sprintf("KYC-%d", createdAt.UnixMilli()+n),
		models.PersonalInfo{
			FirstName:   "Ada",
			LastName:    "Lovelace",
			Email:       "ada@example.com",
			DateOfBirth: "1990-12-10",
			Country:     "GB",
		}, createdAt)
	s.Require().NoError(err)
	return app
}

func (s *ContractSuite) TestUsers() {
	ctx := context.Background()

	s.Run("create and find by id and email", func() {
		u := s.newUser("find@example.com")
		s.Require().NoError(s.users.Create(ctx, u))

		byID, err := s.users.FindByID(ctx, u.ID)
		s.Require().NoError(err)
		s.Equal(u.Email, byID.Email)
		s.Equal(u.PasswordHash, byID.PasswordHash)
		s.True(u.CreatedAt.Equal(byID.CreatedAt))
		s.Nil(byID.LastLogin)

		byEmail, err := s.users.FindByEmail(ctx, "find@example.com")
		s.Require().NoError(err)
		s.Equal(u.ID, byEmail.ID)
	})

	s.Run("email lookup is case sensitive", func() {
		s.Require().NoError(s.users.Create(ctx, s.newUser("Case@example.com")))
		_, err := s.users.FindByEmail(ctx, "case@example.com")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate email conflicts", func() {
		s.Require().NoError(s.users.Create(ctx, s.newUser("dup@example.com")))
		err := s.users.Create(ctx, s.newUser("dup@example.com"))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown user is not found", func() {
		_, err := s.users.FindByID(ctx, id.NewUserID())
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.ErrorIs(s.users.UpdateLastLogin(ctx, id.NewUserID(), s.base), sentinel.ErrNotFound)
	})

	s.Run("update last login", func() {
		u := s.newUser("login@example.com")
		s.Require().NoError(s.users.Create(ctx, u))
		at := s.base.Add(time.Hour)
		s.Require().NoError(s.users.UpdateLastLogin(ctx, u.ID, at))

		found, err := s.users.FindByID(ctx, u.ID)
		s.Require().NoError(err)
		s.Require().NotNil(found.LastLogin)
		s.True(at.Equal(*found.LastLogin))
	})
}

func (s *ContractSuite) TestApplicationRoundTrip() {
	ctx := context.Background()
	app := s.newApp(id.NewUserID(), s.base)
	app.ApplyDocument(models.DocumentInfo{
		Type:          models.DocumentPassport,
		Number:        "P123",
		IssueDate:     "2020-01-01",
		ExpiryDate:    "2030-01-01",
		FrontImageRef: "ref-front",
	}, s.base.Add(time.Minute))
	s.Require().NoError(s.apps.Create(ctx, app))

	found, err := s.apps.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(app.ApplicationNumber, found.ApplicationNumber)
	s.Equal(models.StatusDraft, found.Status)
	s.Equal(models.StepDocument, found.CurrentStep)
	s.Equal(app.PersonalInfo, found.PersonalInfo)
	s.Require().NotNil(found.DocumentInfo)
	s.Equal(*app.DocumentInfo, *found.DocumentInfo)
	s.Nil(found.FacialVerification)
	s.Nil(found.SubmittedAt)
	s.Equal(1, found.Version)
	s.InDelta(models.PlaceholderRiskScore, found.RiskScore, 1e-9)

	_, err = s.apps.FindByID(ctx, id.NewApplicationID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ContractSuite) TestApplicationNumberIsUnique() {
	ctx := context.Background()
	first := s.newApp(id.NewUserID(), s.base)
	s.Require().NoError(s.apps.Create(ctx, first))

	second := s.newApp(id.NewUserID(), s.base)
	second.ApplicationNumber = first.ApplicationNumber
	s.ErrorIs(s.apps.Create(ctx, second), sentinel.ErrConflict)
}

func (s *ContractSuite) TestUpdateIsCompareAndSwap() {
	ctx := context.Background()
	app := s.newApp(id.NewUserID(), s.base)
	s.Require().NoError(s.apps.Create(ctx, app))

	s.Run("fresh version wins and bumps", func() {
		cur, err := s.apps.FindByID(ctx, app.ID)
		s.Require().NoError(err)
		now := s.base.Add(time.Hour)
		cur.ApplySubmission(0.5, models.RiskMedium, now)
		s.Require().NoError(s.apps.Update(ctx, cur))
		s.Equal(2, cur.Version)

		stored, err := s.apps.FindByID(ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(2, stored.Version)
		s.Equal(models.StatusSubmitted, stored.Status)
		s.Require().NotNil(stored.SubmittedAt)
		s.True(now.Equal(*stored.SubmittedAt))
		s.Require().NotNil(stored.ExpiresAt)
	})

	s.Run("stale version conflicts", func() {
		stale := app.Clone()
		stale.AdminNotes = "stale"
		s.ErrorIs(s.apps.Update(ctx, stale), sentinel.ErrConflict)
	})

	s.Run("unknown application", func() {
		ghost := s.newApp(id.NewUserID(), s.base)
		err := s.apps.Update(ctx, ghost)
		s.Error(err)
	})
}

func (s *ContractSuite) TestConcurrentUpdatesSingleWinner() {
	ctx := context.Background()
	app := s.newApp(id.NewUserID(), s.base)
	s.Require().NoError(s.apps.Create(ctx, app))

	const writers = 8
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := app.Clone()
			cp.AdminNotes = fmt.Sprintf("writer-%d", i)
			switch err := s.apps.Update(ctx, cp); {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), conflicts.Load())
}

func (s *ContractSuite) TestListOrdersNewestFirstAndPages() {
	ctx := context.Background()
	owner := id.NewUserID()
	other := id.NewUserID()

	var ids []id.ApplicationID
	for i := range 5 {
		app := s.newApp(owner, s.base.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(s.apps.Create(ctx, app))
		ids = append(ids, app.ID)
	}
	s.Require().NoError(s.apps.Create(ctx, s.newApp(other, s.base.Add(time.Hour))))

	s.Run("filters by user", func() {
		items, total, err := s.apps.List(ctx, models.ApplicationFilter{UserID: owner})
		s.Require().NoError(err)
		s.Equal(5, total)
		s.Require().Len(items, 5)
		s.Equal(ids[4], items[0].ID)
		s.Equal(ids[0], items[4].ID)
	})

	s.Run("offset and limit", func() {
		items, total, err := s.apps.List(ctx, models.ApplicationFilter{UserID: owner, Offset: 2, Limit: 2})
		s.Require().NoError(err)
		s.Equal(5, total)
		s.Require().Len(items, 2)
		s.Equal(ids[2], items[0].ID)
		s.Equal(ids[1], items[1].ID)
	})

	s.Run("offset past the end", func() {
		items, total, err := s.apps.List(ctx, models.ApplicationFilter{Offset: 50, Limit: 10})
		s.Require().NoError(err)
		s.Equal(6, total)
		s.Empty(items)
	})
}

func (s *ContractSuite) TestListAndCountByStatus() {
	ctx := context.Background()
	owner := id.NewUserID()
	submitted := s.newApp(owner, s.base)
	s.Require().NoError(s.apps.Create(ctx, submitted))
	submitted.ApplySubmission(0.2, models.RiskLow, s.base.Add(time.Minute))
	s.Require().NoError(s.apps.Update(ctx, submitted))

	approved := s.newApp(owner, s.base.Add(time.Second))
	s.Require().NoError(s.apps.Create(ctx, approved))
	approved.ApplySubmission(0.2, models.RiskLow, s.base.Add(time.Minute))
	s.Require().NoError(s.apps.Update(ctx, approved))
	approved.ApplyReview(models.ReviewApprove, id.NewUserID(), "ok", s.base.Add(2*time.Minute))
	s.Require().NoError(s.apps.Update(ctx, approved))

	s.Require().NoError(s.apps.Create(ctx, s.newApp(owner, s.base.Add(2*time.Second))))

	items, total, err := s.apps.List(ctx, models.ApplicationFilter{
		Statuses: []models.Status{models.StatusSubmitted, models.StatusUnderReview},
	})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(items, 1)
	s.Equal(submitted.ID, items[0].ID)

	counts, err := s.apps.CountByStatus(ctx)
	s.Require().NoError(err)
	s.Equal(1, counts[models.StatusDraft])
	s.Equal(1, counts[models.StatusSubmitted])
	s.Equal(1, counts[models.StatusApproved])
	s.Equal(0, counts[models.StatusRejected])

	stored, err := s.apps.FindByID(ctx, approved.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.ReviewedBy)
	s.Require().NotNil(stored.ApprovedAt)
	s.Nil(stored.RejectedAt)
	s.Equal("ok", stored.AdminNotes)
}

func (s *ContractSuite) TestCountCreatedSince() {
	ctx := context.Background()
	owner := id.NewUserID()
	s.Require().NoError(s.apps.Create(ctx, s.newApp(owner, s.base.Add(-time.Hour))))
	s.Require().NoError(s.apps.Create(ctx, s.newApp(owner, s.base)))
	s.Require().NoError(s.apps.Create(ctx, s.newApp(owner, s.base.Add(time.Hour))))

	n, err := s.apps.CountCreatedSince(ctx, s.base)
	s.Require().NoError(err)
	s.Equal(2, n)
}
