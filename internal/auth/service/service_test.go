package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore,SessionStore,TokenIssuer,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"kycflow/internal/auth/models"
	"kycflow/internal/auth/password"
	"kycflow/internal/auth/service/mocks"
	"kycflow/internal/auth/store/session"
	jwttoken "kycflow/internal/jwt_token"
	"kycflow/internal/storage/memory"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
)

// =============================================================================
// Auth Service Test Suite
// =============================================================================
// Justification for unit tests: registration, login and logout carry the
// account invariants (unique email, bcrypt credentials, explicit sessions)
// and the security audit trail. Real in-memory stores and a real token
// signer keep the flows honest; mocks cover store failures.

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type AuthServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockAudit *mocks.MockAuditPublisher
	users     *memory.UserStore
	sessions  *session.InMemorySessionStore
	tokens    *jwttoken.JWTService
	service   *Service
	events    []audit.Event
	ctx       context.Context
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockAudit = mocks.NewMockAuditPublisher(s.ctrl)
	s.users = memory.NewUserStore()
	s.sessions = session.New()
	s.tokens = jwttoken.NewJWTService("test-signing-key", "kycflow", "kycflow-api")
	s.events = nil

	s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e audit.Event) error {
			s.events = append(s.events, e)
			return nil
		}).AnyTimes()

	var err error
	s.service, err = New(s.users, s.sessions, password.New(bcrypt.MinCost), s.tokens,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.mockAudit),
		WithConfig(Config{SessionTTL: time.Hour}),
	)
	s.Require().NoError(err)

	ctx := requestcontext.WithTime(context.Background(), now)
	s.ctx = requestcontext.WithClientMetadata(ctx, "192.0.2.10", "curl/8.0")
}

func (s *AuthServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *AuthServiceSuite) register(email string) *models.User {
	user, err := s.service.Register(s.ctx, &models.RegisterRequest{
		Email:     email,
		Password:  "s3cret-pass",
		FirstName: "Grace",
		LastName:  "Hopper",
		Phone:     "+15551234",
	})
	s.Require().NoError(err)
	return user
}

func (s *AuthServiceSuite) lastEvent() audit.Event {
	s.Require().NotEmpty(s.events)
	return s.events[len(s.events)-1]
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *AuthServiceSuite) TestNew() {
	hasher := password.New(bcrypt.MinCost)

	s.Run("nil user store returns error", func() {
		_, err := New(nil, s.sessions, hasher, s.tokens)
		s.ErrorContains(err, "user store is required")
	})

	s.Run("nil session store returns error", func() {
		_, err := New(s.users, nil, hasher, s.tokens)
		s.ErrorContains(err, "session store is required")
	})

	s.Run("defaults are applied", func() {
		svc, err := New(s.users, s.sessions, hasher, s.tokens)
		s.Require().NoError(err)
		s.Equal(DefaultSessionTTL, svc.SessionTTL())
		s.Equal(DefaultAdminEmail, svc.cfg.AdminEmail)
	})
}

// =============================================================================
// Registration
// =============================================================================

func (s *AuthServiceSuite) TestRegister() {
	s.Run("creates a regular user with a bcrypt hash", func() {
		user := s.register("grace@example.com")

		s.False(user.IsAdmin)
		s.NotEqual("s3cret-pass", user.PasswordHash)
		s.NoError(bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))
		s.Equal(now, user.CreatedAt)

		e := s.lastEvent()
		s.Equal(string(audit.EventRegisterSuccess), e.Action)
		s.Equal(user.ID, e.UserID)
		s.Equal("grace@example.com", e.Details["email"])
	})

	s.Run("duplicate email is rejected", func() {
		s.register("dup@example.com")
		_, err := s.service.Register(s.ctx, &models.RegisterRequest{Email: "dup@example.com", Password: "another1", FirstName: "A", LastName: "B"})
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateUser))
	})

	s.Run("email match is case sensitive", func() {
		s.register("case@example.com")
		s.register("Case@example.com")
	})

	s.Run("nil request", func() {
		_, err := s.service.Register(s.ctx, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

// =============================================================================
// Login and logout
// =============================================================================

func (s *AuthServiceSuite) TestLogin() {
	s.Run("opens a session and signs a token", func() {
		user := s.register("login@example.com")

		result, err := s.service.Login(s.ctx, "login@example.com", "s3cret-pass")
		s.Require().NoError(err)

		s.Equal(user.ID, result.User.ID)
		s.Require().NotNil(result.User.LastLogin)
		s.Equal(now, *result.User.LastLogin)
		s.Equal(user.ID, result.Session.UserID)
		s.Equal("192.0.2.10", result.Session.ClientIP)
		s.Equal(now.Add(time.Hour), result.Session.ExpiresAt)
		s.Equal(TokenTypeBearer, result.TokenType)
		s.Equal(3600, result.ExpiresIn)

		claims, err := s.tokens.ValidateToken(result.AccessToken)
		s.Require().NoError(err)
		s.Equal(result.Session.ID.String(), claims.SessionID)

		stored, err := s.users.FindByID(s.ctx, user.ID)
		s.Require().NoError(err)
		s.Require().NotNil(stored.LastLogin)

		e := s.lastEvent()
		s.Equal(string(audit.EventLoginSuccess), e.Action)
		s.Equal(user.ID, e.UserID)
		s.Equal(user.Email, e.Details["email"])
		s.Equal(result.Session.ID.String(), e.Details["session_id"])
	})

	s.Run("unknown email fails without a user on the audit entry", func() {
		_, err := s.service.Login(s.ctx, "nobody@example.com", "whatever")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))

		e := s.lastEvent()
		s.Equal(string(audit.EventLoginFailed), e.Action)
		s.True(e.UserID.IsNil())
		s.Equal("nobody@example.com", e.Details["email"])
	})

	s.Run("wrong password fails the same way", func() {
		s.register("wrongpw@example.com")
		_, err := s.service.Login(s.ctx, "wrongpw@example.com", "not-it")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
		s.Equal(string(audit.EventLoginFailed), s.lastEvent().Action)
	})

	s.Run("two logins are two independent sessions", func() {
		s.register("multi@example.com")
		a, err := s.service.Login(s.ctx, "multi@example.com", "s3cret-pass")
		s.Require().NoError(err)
		b, err := s.service.Login(s.ctx, "multi@example.com", "s3cret-pass")
		s.Require().NoError(err)
		s.NotEqual(a.Session.ID, b.Session.ID)

		s.Require().NoError(s.service.Logout(s.ctx, a.Session.ID))
		user, err := s.service.CurrentUser(s.ctx, b.Session.ID)
		s.Require().NoError(err)
		s.NotNil(user)
	})
}

func (s *AuthServiceSuite) TestLogout() {
	s.Run("ends the session and records who left", func() {
		user := s.register("logout@example.com")
		result, err := s.service.Login(s.ctx, "logout@example.com", "s3cret-pass")
		s.Require().NoError(err)

		s.Require().NoError(s.service.Logout(s.ctx, result.Session.ID))

		current, err := s.service.CurrentUser(s.ctx, result.Session.ID)
		s.Require().NoError(err)
		s.Nil(current)

		e := s.lastEvent()
		s.Equal(string(audit.EventLogout), e.Action)
		s.Equal(user.ID, e.UserID)
	})

	s.Run("unknown session is a silent no-op", func() {
		before := len(s.events)
		s.NoError(s.service.Logout(s.ctx, id.NewSessionID()))
		s.Len(s.events, before)
	})
}

func (s *AuthServiceSuite) TestCurrentUser() {
	s.Run("expired session resolves to nil", func() {
		s.register("expire@example.com")
		result, err := s.service.Login(s.ctx, "expire@example.com", "s3cret-pass")
		s.Require().NoError(err)

		later := requestcontext.WithTime(s.ctx, now.Add(2*time.Hour))
		user, err := s.service.CurrentUser(later, result.Session.ID)
		s.Require().NoError(err)
		s.Nil(user)

		_, _, err = s.service.ResolveSession(later, result.Session.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown session resolves to nil", func() {
		user, err := s.service.CurrentUser(s.ctx, id.NewSessionID())
		s.Require().NoError(err)
		s.Nil(user)
	})
}

// =============================================================================
// Subscriptions
// =============================================================================

func (s *AuthServiceSuite) TestSubscribe() {
	s.Run("every subscriber sees login and logout", func() {
		s.register("sub@example.com")
		var a, b []models.SessionChange
		unsubA := s.service.Subscribe(func(c models.SessionChange) { a = append(a, c) })
		unsubB := s.service.Subscribe(func(c models.SessionChange) { b = append(b, c) })
		defer unsubA()
		defer unsubB()

		result, err := s.service.Login(s.ctx, "sub@example.com", "s3cret-pass")
		s.Require().NoError(err)
		s.Require().NoError(s.service.Logout(s.ctx, result.Session.ID))

		for _, got := range [][]models.SessionChange{a, b} {
			s.Require().Len(got, 2)
			s.Equal(result.Session.ID, got[0].SessionID)
			s.Require().NotNil(got[0].User)
			s.Equal("sub@example.com", got[0].User.Email)
			s.Equal(result.Session.ID, got[1].SessionID)
			s.Nil(got[1].User)
		}
	})

	s.Run("unsubscribed listeners are not called", func() {
		s.register("unsub@example.com")
		calls := 0
		unsub := s.service.Subscribe(func(models.SessionChange) { calls++ })
		unsub()
		unsub()

		_, err := s.service.Login(s.ctx, "unsub@example.com", "s3cret-pass")
		s.Require().NoError(err)
		s.Zero(calls)
	})

	s.Run("unsubscribing during notification is safe", func() {
		s.register("self@example.com")
		var unsubSelf, unsubOther func()
		selfCalls, otherCalls := 0, 0
		unsubSelf = s.service.Subscribe(func(models.SessionChange) {
			selfCalls++
			unsubSelf()
			unsubOther()
		})
		unsubOther = s.service.Subscribe(func(models.SessionChange) { otherCalls++ })

		_, err := s.service.Login(s.ctx, "self@example.com", "s3cret-pass")
		s.Require().NoError(err)
		_, err = s.service.Login(s.ctx, "self@example.com", "s3cret-pass")
		s.Require().NoError(err)

		s.Equal(1, selfCalls)
		s.LessOrEqual(otherCalls, 1)
	})

	s.Run("concurrent subscribe and notify", func() {
		s.register("race@example.com")
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unsub := s.service.Subscribe(func(models.SessionChange) {})
				unsub()
			}()
		}
		_, err := s.service.Login(s.ctx, "race@example.com", "s3cret-pass")
		wg.Wait()
		s.NoError(err)
	})
}

// =============================================================================
// Password reset, admin checks and bootstrap
// =============================================================================

func (s *AuthServiceSuite) TestResetPassword() {
	s.Run("known email is recorded without changing credentials", func() {
		user := s.register("reset@example.com")

		s.Require().NoError(s.service.ResetPassword(s.ctx, "reset@example.com"))

		e := s.lastEvent()
		s.Equal(string(audit.EventPasswordResetRequest), e.Action)
		s.Equal(user.ID, e.UserID)

		_, err := s.service.Login(s.ctx, "reset@example.com", "s3cret-pass")
		s.NoError(err)
	})

	s.Run("unknown email", func() {
		err := s.service.ResetPassword(s.ctx, "ghost@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeUserNotFound))
	})
}

func (s *AuthServiceSuite) TestBootstrapAndRequireAdmin() {
	s.Require().NoError(s.service.Bootstrap(s.ctx))
	s.Require().NoError(s.service.Bootstrap(s.ctx))

	admin, err := s.users.FindByEmail(s.ctx, DefaultAdminEmail)
	s.Require().NoError(err)
	s.True(admin.IsAdmin)
	s.Equal("Admin User", admin.FullName())
	s.Equal("+1234567890", admin.Phone)

	_, err = s.service.Login(s.ctx, DefaultAdminEmail, DefaultAdminPassword)
	s.Require().NoError(err)

	s.NoError(s.service.RequireAdmin(s.ctx, admin.ID))

	user := s.register("plain@example.com")
	s.True(dErrors.HasCode(s.service.RequireAdmin(s.ctx, user.ID), dErrors.CodeForbidden))
	s.True(dErrors.HasCode(s.service.RequireAdmin(s.ctx, id.NewUserID()), dErrors.CodeForbidden))
}

// =============================================================================
// Store failures
// =============================================================================
// Justification: in-memory stores never fail, so error translation and the
// swallowed audit failure are verified with mocks.

func (s *AuthServiceSuite) TestStoreFailures() {
	mockUsers := mocks.NewMockUserStore(s.ctrl)
	mockSessions := mocks.NewMockSessionStore(s.ctrl)
	mockTokens := mocks.NewMockTokenIssuer(s.ctrl)
	svc, err := New(mockUsers, mockSessions, password.New(bcrypt.MinCost), mockTokens,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.mockAudit))
	s.Require().NoError(err)

	s.Run("user lookup failure on login", func() {
		mockUsers.EXPECT().FindByEmail(gomock.Any(), "a@example.com").Return(nil, errors.New("db down"))
		_, err := svc.Login(s.ctx, "a@example.com", "pw")
		s.True(dErrors.HasCode(err, dErrors.CodeStorageFailure))
	})

	s.Run("session delete failure on logout", func() {
		sessionID := id.NewSessionID()
		mockSessions.EXPECT().FindByID(gomock.Any(), sessionID).Return(&models.Session{ID: sessionID, UserID: id.NewUserID()}, nil)
		mockSessions.EXPECT().Delete(gomock.Any(), sessionID).Return(errors.New("redis down"))
		err := svc.Logout(s.ctx, sessionID)
		s.True(dErrors.HasCode(err, dErrors.CodeStorageFailure))
	})

	s.Run("session removed concurrently counts as logged out", func() {
		sessionID := id.NewSessionID()
		mockSessions.EXPECT().FindByID(gomock.Any(), sessionID).Return(&models.Session{ID: sessionID}, nil)
		mockSessions.EXPECT().Delete(gomock.Any(), sessionID).Return(sentinel.ErrNotFound)
		s.NoError(svc.Logout(s.ctx, sessionID))
	})

	s.Run("token signing failure", func() {
		mockTokens.EXPECT().GenerateAccessToken(gomock.Any(), gomock.Any(), time.Hour).Return("", errors.New("bad key"))
		_, err := svc.IssueToken(&models.Session{ID: id.NewSessionID(), UserID: id.NewUserID(), CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("audit failure does not fail registration", func() {
		failing := mocks.NewMockAuditPublisher(s.ctrl)
		failing.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit buffer full"))
		svc, err := New(s.users, s.sessions, password.New(bcrypt.MinCost), s.tokens,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			WithAuditPublisher(failing))
		s.Require().NoError(err)

		_, err = svc.Register(s.ctx, &models.RegisterRequest{Email: "audit@example.com", Password: "secret1", FirstName: "A", LastName: "B"})
		s.NoError(err)
	})
}
