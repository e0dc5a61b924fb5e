package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"kycflow/internal/auth/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

var (
	lookupDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kyc_session_lookup_duration_ms",
		Help:    "Latency of Redis session lookups in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

const sessionKeyPrefix = "kyc:session:"

// RedisStore keeps sessions as JSON values whose TTL matches ExpiresAt, so
// Redis drops them when they lapse.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

type RedisStoreOption func(*RedisStore)

// WithClock overrides the clock used to compute key TTLs.
func WithClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		s.now = now
	}
}

func NewRedis(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func key(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String()
}

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %w", sentinel.ErrExpired)
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, key(session.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	start := time.Now()
	defer func() {
		lookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	raw, err := s.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	n, err := s.client.Del(ctx, key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	return nil
}
