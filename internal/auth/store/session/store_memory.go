package session

import (
	"context"
	"fmt"
	"sync"

	"kycflow/internal/auth/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

// InMemorySessionStore keeps sessions in a map guarded by a RWMutex.
// Expired sessions stay until deleted; callers check ExpiresAt.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
}

func New() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[id.SessionID]*models.Session),
	}
}

func (s *InMemorySessionStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *InMemorySessionStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	cp := *session
	return &cp, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	delete(s.sessions, sessionID)
	return nil
}

// Count returns the number of stored sessions, expired or not.
func (s *InMemorySessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
