// Package postgres is the remote storage backend.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kycflow/internal/auth/models"
	platformpg "kycflow/internal/platform/postgres"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/platform/tx"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, is_admin, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, query,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.IsAdmin,
		user.CreatedAt,
		user.UpdatedAt,
		platformpg.NullTime(user.LastLogin),
	)
	if err != nil {
		if platformpg.IsUniqueViolation(err) {
			return fmt.Errorf("email %q: %w", user.Email, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, first_name, last_name, phone, is_admin, created_at, updated_at, last_login
		FROM users WHERE id = $1
	`
	return scanUser(tx.Pick(ctx, s.db).QueryRowContext(ctx, query, userID.String()))
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, first_name, last_name, phone, is_admin, created_at, updated_at, last_login
		FROM users WHERE email = $1
	`
	return scanUser(tx.Pick(ctx, s.db).QueryRowContext(ctx, query, email))
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, userID id.UserID, at time.Time) error {
	query := `UPDATE users SET last_login = $1, updated_at = $1 WHERE id = $2`
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx, query, at, userID.String())
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u         models.User
		rawID     string
		lastLogin sql.NullTime
	)
	err := row.Scan(&rawID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone,
		&u.IsAdmin, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if err != nil {
		return nil, mapNotFound(err, "user")
	}
	if u.ID, err = id.ParseUserID(rawID); err != nil {
		return nil, fmt.Errorf("decode user id: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	u.LastLogin = platformpg.FromNullTime(lastLogin)
	return &u, nil
}

func mapNotFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s not found: %w", what, sentinel.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
