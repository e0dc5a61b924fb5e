// Package memory is the in-process storage backend used by tests and
// single-node development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kycflow/internal/auth/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

// UserStore keeps users in maps keyed by id and by email.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *UserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[user.Email]; taken {
		return fmt.Errorf("email %q: %w", user.Email, sentinel.ErrConflict)
	}
	if _, taken := s.byID[user.ID]; taken {
		return fmt.Errorf("user %s: %w", user.ID, sentinel.ErrConflict)
	}
	cp := *user
	s.byID[user.ID] = &cp
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *UserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return cloneUser(user), nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return cloneUser(s.byID[userID]), nil
}

func (s *UserStore) UpdateLastLogin(_ context.Context, userID id.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	user.LastLogin = &at
	user.UpdatedAt = at
	return nil
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}
