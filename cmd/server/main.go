package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"kycflow/internal/admin"
	"kycflow/internal/auth/password"
	authservice "kycflow/internal/auth/service"
	"kycflow/internal/auth/store/session"
	blobs3 "kycflow/internal/blob/s3"
	jwttoken "kycflow/internal/jwt_token"
	kycservice "kycflow/internal/kyc/service"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/httpserver"
	"kycflow/internal/platform/kafka"
	"kycflow/internal/platform/logger"
	"kycflow/internal/platform/metrics"
	platformpg "kycflow/internal/platform/postgres"
	"kycflow/internal/platform/redis"
	"kycflow/internal/storage"
	httptransport "kycflow/internal/transport/http"
	"kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/audit/publisher"
	sinkkafka "kycflow/pkg/platform/audit/sink/kafka"
)

var version = "dev"

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{
		Service: "kycflow",
		Version: version,
		Env:     cfg.Env,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New(nil)

	backend, err := storage.Open(ctx, storage.Config{
		Backend:    cfg.Storage.Backend,
		SQLitePath: cfg.Storage.SQLitePath,
		Postgres: platformpg.Config{
			URL:          cfg.Storage.DatabaseURL,
			MaxOpenConns: cfg.Storage.MaxOpenConns,
		},
		S3: blobs3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		},
	}, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("failed to close storage backend", "error", err)
		}
	}()

	checks := map[string]httptransport.HealthCheck{}

	var sessions authservice.SessionStore = session.New()
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = session.NewRedis(redisClient.Client)
		checks["redis"] = redisClient.Health
		log.Info("sessions stored in redis")
	}

	var sinks []audit.Sink
	kafkaCfg := kafka.Config{
		Brokers:           kafka.ParseBrokers(cfg.Kafka.Brokers),
		ClientID:          "kycflow",
		Topic:             cfg.Kafka.Topic,
		Partitions:        3,
		ReplicationFactor: 1,
	}
	producer, err := kafka.NewProducer(ctx, kafkaCfg)
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	if producer != nil {
		defer producer.Close()
		if err := kafka.EnsureTopic(ctx, producer, kafkaCfg); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
		sinks = append(sinks, sinkkafka.New(producer, cfg.Kafka.Topic))
		log.Info("audit events mirrored to kafka", "topic", cfg.Kafka.Topic)
	}

	events := publisher.NewPublisher(backend.Audit,
		publisher.WithAsyncBuffer(cfg.AuditBuffer),
		publisher.WithSinks(sinks...),
		publisher.WithLogger(log),
	)
	defer events.Close()

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	authSvc, err := authservice.New(backend.Users, sessions, password.New(bcrypt.DefaultCost), tokens,
		authservice.WithLogger(log),
		authservice.WithAuditPublisher(events),
		authservice.WithMetrics(m),
		authservice.WithConfig(authservice.Config{
			SessionTTL:    cfg.Auth.SessionTTL,
			AdminEmail:    cfg.Auth.AdminEmail,
			AdminPassword: cfg.Auth.AdminPassword,
		}),
	)
	if err != nil {
		return err
	}
	if err := authSvc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	kycSvc, err := kycservice.New(backend.Applications, backend.Blobs,
		kycservice.WithLogger(log),
		kycservice.WithAuditPublisher(events),
		kycservice.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	adminSvc, err := admin.New(backend.Applications, events)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:             log,
		Auth:               authSvc,
		KYC:                kycSvc,
		Reports:            adminSvc,
		Tokens:             jwttoken.NewJWTServiceAdapter(tokens),
		Requests:           m,
		Metrics:            promhttp.Handler(),
		LoginRatePerMinute: cfg.Auth.LoginRatePerMinute,
		HealthChecks:       checks,
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting kycflow", "addr", cfg.Server.Addr, "backend", backend.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
