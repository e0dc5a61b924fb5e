package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kycflow/internal/auth/models"
	platformsqlite "kycflow/internal/platform/sqlite"
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

const userColumns = `id, email, password_hash, first_name, last_name, phone, is_admin, created_at, updated_at, last_login`

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.IsAdmin,
		platformsqlite.Millis(user.CreatedAt),
		platformsqlite.Millis(user.UpdatedAt),
		platformsqlite.NullMillis(user.LastLogin),
	)
	if err != nil {
		if platformsqlite.IsUniqueViolation(err) {
			return fmt.Errorf("email %q: %w", user.Email, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, userID.String())
	return scanUser(row)
}

// FindByEmail matches the email exactly; SQLite's default BINARY collation
// keeps the comparison case sensitive.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, userID id.UserID, at time.Time) error {
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		platformsqlite.Millis(at), platformsqlite.Millis(at), userID.String())
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
		createdAt int64
		updatedAt int64
		lastLogin sql.NullInt64
	)
	err := row.Scan(&rawID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone,
		&u.IsAdmin, &createdAt, &updatedAt, &lastLogin)
	if err != nil {
		return nil, mapNotFound(err, "user")
	}
	userID, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("decode user id: %w", err)
	}
	u.ID = userID
	u.CreatedAt = platformsqlite.FromMillis(createdAt)
	u.UpdatedAt = platformsqlite.FromMillis(updatedAt)
	u.LastLogin = platformsqlite.FromNullMillis(lastLogin)
	return &u, nil
}
