package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"kycflow/internal/auth/models"
	"kycflow/internal/platform/metrics"
	"kycflow/pkg/attrs"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/audit"
	"kycflow/pkg/requestcontext"
)

const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultAdminEmail    = "admin@kyc.com"
	DefaultAdminPassword = "admin123"
	TokenTypeBearer      = "Bearer"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, userID id.UserID, at time.Time) error
}

type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) error
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, sessionID id.SessionID, expiresIn time.Duration) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Config holds session lifetime and the seeded administrator credentials.
type Config struct {
	SessionTTL    time.Duration
	AdminEmail    string
	AdminPassword string
}

func (c *Config) applyDefaults() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.AdminEmail == "" {
		c.AdminEmail = DefaultAdminEmail
	}
	if c.AdminPassword == "" {
		c.AdminPassword = DefaultAdminPassword
	}
}

// Service owns accounts, credentials and sessions.
type Service struct {
	users          UserStore
	sessions       SessionStore
	hasher         PasswordHasher
	tokens         TokenIssuer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	cfg            Config

	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(models.SessionChange)
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// New constructs a Service.
func New(users UserStore, sessions SessionStore, hasher PasswordHasher, tokens TokenIssuer, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	s := &Service{
		users:       users,
		sessions:    sessions,
		hasher:      hasher,
		tokens:      tokens,
		subscribers: make(map[int]func(models.SessionChange)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg.applyDefaults()
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// SessionTTL is how long issued sessions and their tokens stay valid.
func (s *Service) SessionTTL() time.Duration {
	return s.cfg.SessionTTL
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	s.logger.InfoContext(ctx, string(event), args...)
	if s.auditPublisher == nil {
		return
	}
	userID, _ := id.ParseUserID(attrs.ExtractString(attributes, "user_id"))
	err := s.auditPublisher.Emit(ctx, audit.Event{
		UserID:    userID,
		Action:    string(event),
		Details:   attrs.ToMap(attributes, "user_id", "request_id"),
		IP:        requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record audit event", "event", string(event), "error", err)
		if s.metrics != nil {
			s.metrics.IncrementAuditEmitFailures()
		}
	}
}
