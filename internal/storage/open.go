package storage

import (
	"context"
	"fmt"
	"log/slog"

	blobmemory "kycflow/internal/blob/memory"
	blobs3 "kycflow/internal/blob/s3"
	blobsqlite "kycflow/internal/blob/sqlite"
	platformpg "kycflow/internal/platform/postgres"
	platformsqlite "kycflow/internal/platform/sqlite"
	"kycflow/internal/storage/memory"
	"kycflow/internal/storage/postgres"
	"kycflow/internal/storage/sqlite"
	auditmemory "kycflow/pkg/platform/audit/store/memory"
	auditpg "kycflow/pkg/platform/audit/store/postgres"
	auditsqlite "kycflow/pkg/platform/audit/store/sqlite"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string
	SQLitePath string
	Postgres   platformpg.Config
	S3         blobs3.Config
}

// Open builds the configured backend. local is a SQLite file holding every
// table including blobs; remote is PostgreSQL with blobs in S3.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case BackendMemory:
		return &Backend{
			Name:         BackendMemory,
			Users:        memory.NewUserStore(),
			Applications: memory.NewApplicationStore(),
			Audit:        auditmemory.NewInMemoryStore(),
			Blobs:        blobmemory.NewInMemoryStore(),
		}, nil

	case BackendLocal, "":
		path := cfg.SQLitePath
		if path == "" {
			path = "kyc.db"
		}
		db, err := platformsqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "storage backend ready", "backend", BackendLocal, "path", path)
		b := &Backend{
			Name:         BackendLocal,
			Users:        sqlite.NewUserStore(db),
			Applications: sqlite.NewApplicationStore(db),
			Audit:        auditsqlite.New(db),
			Blobs:        blobsqlite.New(db),
		}
		b.OnClose(db.Close)
		return b, nil

	case BackendRemote:
		blobs, err := blobs3.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		db, err := platformpg.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "storage backend ready", "backend", BackendRemote, "bucket", cfg.S3.Bucket)
		b := &Backend{
			Name:         BackendRemote,
			Users:        postgres.NewUserStore(db),
			Applications: postgres.NewApplicationStore(db),
			Audit:        auditpg.New(db),
			Blobs:        blobs,
		}
		b.OnClose(db.Close)
		return b, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
