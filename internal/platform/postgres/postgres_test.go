package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
)

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db
}

func TestRunMigrations_Success(t *testing.T) {
	db := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	if err := RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	if err := RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestOpenRequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(wrapped) {
		t.Fatal("expected unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("other")) {
		t.Fatal("plain error is not a unique violation")
	}
}

func TestNullTime(t *testing.T) {
	if NullTime(nil).Valid {
		t.Fatal("nil time must be NULL")
	}
	now := time.Now()
	got := FromNullTime(NullTime(&now))
	if got == nil || !got.Equal(now) {
		t.Fatalf("round trip mismatch: %v", got)
	}
}
