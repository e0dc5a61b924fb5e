package admin

import (
	"context"
	"errors"
	"time"

	"kycflow/internal/kyc/models"
	"kycflow/internal/storage"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/audit"
	"kycflow/pkg/requestcontext"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type ApplicationCounter interface {
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}

type AuditReader interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.Event, int, error)
}

// AuditQuery selects audit entries. Zero values do not filter.
type AuditQuery struct {
	ApplicationID id.ApplicationID
	UserID        id.UserID
	Action        string
	Page          int
	PageSize      int
}

// Service answers the dashboard queries.
type Service struct {
	apps  ApplicationCounter
	audit AuditReader
}

func New(apps ApplicationCounter, auditLog AuditReader) (*Service, error) {
	if apps == nil {
		return nil, errors.New("application counter is required")
	}
	if auditLog == nil {
		return nil, errors.New("audit reader is required")
	}
	return &Service{apps: apps, audit: auditLog}, nil
}

// Stats counts applications by status. TodaySubmissions counts applications
// created since midnight UTC.
func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	counts, err := s.apps.CountByStatus(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to count applications")
	}
	midnight := requestcontext.Now(ctx).UTC().Truncate(24 * time.Hour)
	today, err := s.apps.CountCreatedSince(ctx, midnight)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to count today's applications")
	}

	stats := &models.Stats{
		PendingReview:    counts[models.StatusSubmitted] + counts[models.StatusUnderReview],
		Approved:         counts[models.StatusApproved],
		Rejected:         counts[models.StatusRejected],
		TodaySubmissions: today,
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// AuditLog pages through the audit trail.
func (s *Service) AuditLog(ctx context.Context, q AuditQuery) (*AuditLogPage, error) {
	offset, limit := storage.Page(q.Page, q.PageSize, DefaultPageSize, MaxPageSize)
	events, total, err := s.audit.List(ctx, audit.Filter{
		UserID:        q.UserID,
		ApplicationID: q.ApplicationID,
		Action:        q.Action,
		Offset:        offset,
		Limit:         limit,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to list audit log")
	}
	if events == nil {
		events = []audit.Event{}
	}
	return &AuditLogPage{Items: events, Total: total, Page: offset/limit + 1, PageSize: limit}, nil
}
