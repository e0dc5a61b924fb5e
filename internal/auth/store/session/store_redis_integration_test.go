//go:build integration

package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycflow/internal/auth/models"
	"kycflow/internal/auth/store/session"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *session.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = session.NewRedis(s.redis.Client.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func makeSession() *models.Session {
	return &models.Session{
		ID:        id.NewSessionID(),
		UserID:    id.NewUserID(),
		ClientIP:  "192.168.1.10",
		UserAgent: "Firefox on Linux",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func (s *RedisStoreSuite) TestRoundTripSetsTTL() {
	ctx := context.Background()
	sess := makeSession()
	s.Require().NoError(s.store.Create(ctx, sess))

	ttl, err := s.redis.Client.TTL(ctx, "kyc:session:"+sess.ID.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Minute)

	found, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(sess.UserID, found.UserID)
}

// Concurrent logouts of the same session: exactly one delete wins.
func (s *RedisStoreSuite) TestConcurrentDeleteSingleWinner() {
	ctx := context.Background()
	sess := makeSession()
	s.Require().NoError(s.store.Create(ctx, sess))

	const goroutines = 20
	var wg sync.WaitGroup
	var deleted, missing atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Delete(ctx, sess.ID)
			switch {
			case err == nil:
				deleted.Add(1)
			case errors.Is(err, sentinel.ErrNotFound):
				missing.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), deleted.Load())
	s.Equal(int32(goroutines-1), missing.Load())
}
