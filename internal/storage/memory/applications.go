package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kycflow/internal/kyc/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

// ApplicationStore keeps deep copies of applications so callers never share
// state with the store.
type ApplicationStore struct {
	mu       sync.RWMutex
	byID     map[id.ApplicationID]*models.Application
	byNumber map[string]id.ApplicationID
}

func NewApplicationStore() *ApplicationStore {
	return &ApplicationStore{
		byID:     make(map[id.ApplicationID]*models.Application),
		byNumber: make(map[string]id.ApplicationID),
	}
}

func (s *ApplicationStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byID[app.ID]; taken {
		return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrConflict)
	}
	if _, taken := s.byNumber[app.ApplicationNumber]; taken {
		return fmt.Errorf("application number %s: %w", app.ApplicationNumber, sentinel.ErrConflict)
	}
	s.byID[app.ID] = app.Clone()
	s.byNumber[app.ApplicationNumber] = app.ID
	return nil
}

func (s *ApplicationStore) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.byID[appID]
	if !ok {
		return nil, fmt.Errorf("application not found: %w", sentinel.ErrNotFound)
	}
	return app.Clone(), nil
}

func (s *ApplicationStore) Update(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[app.ID]
	if !ok {
		return fmt.Errorf("application not found: %w", sentinel.ErrNotFound)
	}
	if current.Version != app.Version {
		return fmt.Errorf("application %s version %d is stale: %w", app.ID, app.Version, sentinel.ErrConflict)
	}
	app.Version++
	s.byID[app.ID] = app.Clone()
	return nil
}

func (s *ApplicationStore) List(_ context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error) {
	s.mu.RLock()
	matched := make([]*models.Application, 0, len(s.byID))
	for _, app := range s.byID {
		if filter.Matches(app) {
			matched = append(matched, app)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ApplicationNumber > matched[j].ApplicationNumber
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	out := make([]*models.Application, 0, end-start)
	for _, app := range matched[start:end] {
		out = append(out, app.Clone())
	}
	return out, total, nil
}

func (s *ApplicationStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Status]int)
	for _, app := range s.byID {
		counts[app.Status]++
	}
	return counts, nil
}

func (s *ApplicationStore) CountCreatedSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, app := range s.byID {
		if !app.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}
