package service

import (
	"context"
	"errors"

	"kycflow/internal/auth/models"
	"kycflow/internal/auth/password"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
)

// Login checks the credentials, opens a session and signs its access token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, plain string) (*models.LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.loginFailed(ctx, email)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to load user")
	}
	if err := s.hasher.Verify(plain, user.PasswordHash); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return nil, s.loginFailed(ctx, email)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	now := requestcontext.Now(ctx)
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to record login")
	}
	user.LastLogin = &now

	session := &models.Session{
		ID:        id.NewSessionID(),
		UserID:    user.ID,
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to create session")
	}
	token, err := s.IssueToken(session)
	if err != nil {
		return nil, err
	}

	s.notify(models.SessionChange{SessionID: session.ID, User: user})
	s.logAudit(ctx, audit.EventLoginSuccess,
		"user_id", user.ID,
		"email", user.Email,
		"session_id", session.ID.String())
	if s.metrics != nil {
		s.metrics.IncrementLogin("success")
	}
	return &models.LoginResult{
		Session:     session,
		User:        user,
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(s.cfg.SessionTTL.Seconds()),
	}, nil
}

func (s *Service) loginFailed(ctx context.Context, email string) error {
	s.logAudit(ctx, audit.EventLoginFailed, "email", email)
	if s.metrics != nil {
		s.metrics.IncrementLogin("failure")
	}
	return dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password")
}

// IssueToken signs an access token bound to the session. The token expires
// with the session.
func (s *Service) IssueToken(session *models.Session) (string, error) {
	if session == nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "session is required")
	}
	ttl := session.ExpiresAt.Sub(session.CreatedAt)
	if ttl <= 0 {
		ttl = s.cfg.SessionTTL
	}
	token, err := s.tokens.GenerateAccessToken(session.UserID, session.ID, ttl)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign access token")
	}
	return token, nil
}

// Logout ends the session. Unknown or already ended sessions are not an
// error and leave no audit entry.
func (s *Service) Logout(ctx context.Context, sessionID id.SessionID) error {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to load session")
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to delete session")
	}

	s.notify(models.SessionChange{SessionID: sessionID})
	s.logAudit(ctx, audit.EventLogout,
		"user_id", session.UserID,
		"session_id", sessionID.String())
	return nil
}

// ResolveSession returns the live session and its user, or Unauthorized.
func (s *Service) ResolveSession(ctx context.Context, sessionID id.SessionID) (*models.Session, *models.User, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "session not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to load session")
	}
	if session.IsExpired(requestcontext.Now(ctx)) {
		return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
	}
	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "session user no longer exists")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to load user")
	}
	return session, user, nil
}

// CurrentUser returns the user behind the session, or nil when the session
// is unknown or expired.
func (s *Service) CurrentUser(ctx context.Context, sessionID id.SessionID) (*models.User, error) {
	_, user, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// Subscribe registers fn for every login and logout. The returned function
// removes the subscription and may be called more than once, including from
// inside a notification.
func (s *Service) Subscribe(fn func(models.SessionChange)) (unsubscribe func()) {
	s.mu.Lock()
	key := s.nextID
	s.nextID++
	s.subscribers[key] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, key)
		s.mu.Unlock()
	}
}

// notify delivers change to a snapshot of the subscribers taken before the
// first call, outside the lock.
func (s *Service) notify(change models.SessionChange) {
	s.mu.Lock()
	snapshot := make([]func(models.SessionChange), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		snapshot = append(snapshot, fn)
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn(change)
	}
}
