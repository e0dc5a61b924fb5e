// Package storage defines the persistence contract for users, applications,
// audit entries and blobs, and opens the configured backend.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into domain errors.
package storage

import (
	"context"
	"math"
	"time"

	authModels "kycflow/internal/auth/models"
	"kycflow/internal/blob"
	"kycflow/internal/kyc/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/audit"
)

// UserStore persists accounts. Email is unique.
type UserStore interface {
	Create(ctx context.Context, user *authModels.User) error
	FindByID(ctx context.Context, userID id.UserID) (*authModels.User, error)
	FindByEmail(ctx context.Context, email string) (*authModels.User, error)
	UpdateLastLogin(ctx context.Context, userID id.UserID, at time.Time) error
}

// ApplicationStore persists applications.
//
// Update is a compare-and-swap on Version: it succeeds only when the stored
// version equals app.Version, then stores the record with Version+1 and
// reflects the new version on app. A stale version yields sentinel.ErrConflict.
type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	Update(ctx context.Context, app *models.Application) error
	List(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}

// Backend bundles the stores of one persistence engine.
type Backend struct {
	Name         string
	Users        UserStore
	Applications ApplicationStore
	Audit        audit.Store
	Blobs        blob.Store
	closers      []func() error
}

// Close releases backend resources in reverse order of acquisition.
func (b *Backend) Close() error {
	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.closers = nil
	return firstErr
}

// OnClose registers fn to run when the backend is closed.
func (b *Backend) OnClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Page normalizes a 1-based page request into offset and limit. Pages past
// math.MaxInt/pageSize are clamped so the offset cannot overflow.
func Page(page, pageSize, defaultSize, maxSize int) (offset, limit int) {
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if maxSize > 0 && pageSize > maxSize {
		pageSize = maxSize
	}
	if pageSize < 1 {
		pageSize = 1
	}
	page = min(max(page, 1), math.MaxInt/pageSize)
	return (page - 1) * pageSize, pageSize
}
