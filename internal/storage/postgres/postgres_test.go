package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authModels "kycflow/internal/auth/models"
	"kycflow/internal/kyc/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testApplication(t *testing.T) *models.Application {
	t.Helper()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	app, err := models.NewApplication(id.NewApplicationID(), id.NewUserID(), "KYC-1748768400000",
		models.PersonalInfo{FirstName: "Ada", LastName: "Lovelace"}, now)
	require.NoError(t, err)
	return app
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	store := NewUserStore(db)

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	u, err := authModels.NewUser(id.NewUserID(), "a@example.com", "hash", "A", "B", "", false, time.Now())
	require.NoError(t, err)
	err = store.Create(context.Background(), u)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserFindByEmail_NotFound(t *testing.T) {
	db, mock := newMock(t)
	store := NewUserStore(db)

	mock.ExpectQuery(`(?s)SELECT\s+id,\s*email.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestUserUpdateLastLogin_Missing(t *testing.T) {
	db, mock := newMock(t)
	store := NewUserStore(db)

	userID := id.NewUserID()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET last_login = $1, updated_at = $1 WHERE id = $2`)).
		WithArgs(sqlmock.AnyArg(), userID.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateLastLogin(context.Background(), userID, time.Now())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestApplicationUpdate_Success(t *testing.T) {
	db, mock := newMock(t)
	store := NewApplicationStore(db)
	app := testApplication(t)

	mock.ExpectQuery(`(?s)UPDATE\s+applications\s+SET.*WHERE\s+id\s*=\s*\$17\s+AND\s+version\s*=\s*\$18\s+RETURNING\s+version`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))

	require.NoError(t, store.Update(context.Background(), app))
	assert.Equal(t, 2, app.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationUpdate_StaleVersion(t *testing.T) {
	db, mock := newMock(t)
	store := NewApplicationStore(db)
	app := testApplication(t)

	mock.ExpectQuery(`(?s)UPDATE\s+applications`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`(?s)SELECT\s+EXISTS`).
		WithArgs(app.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := store.Update(context.Background(), app)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	assert.Equal(t, 1, app.Version)
}

func TestApplicationUpdate_Missing(t *testing.T) {
	db, mock := newMock(t)
	store := NewApplicationStore(db)
	app := testApplication(t)

	mock.ExpectQuery(`(?s)UPDATE\s+applications`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`(?s)SELECT\s+EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := store.Update(context.Background(), app)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestApplicationUpdate_DBError(t *testing.T) {
	db, mock := newMock(t)
	store := NewApplicationStore(db)

	mock.ExpectQuery(`(?s)UPDATE\s+applications`).WillReturnError(errors.New("db down"))

	err := store.Update(context.Background(), testApplication(t))
	require.Error(t, err)
	assert.Regexp(t, `update application: .*db down`, err.Error())
}

func TestApplicationList_BuildsFilteredPagedQuery(t *testing.T) {
	db, mock := newMock(t)
	store := NewApplicationStore(db)
	userID := id.NewUserID()

	mock.ExpectQuery(`(?s)SELECT\s+COUNT\(\*\)\s+FROM\s+applications\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+status\s*=\s*ANY\(\$2\)`).
		WithArgs(userID.String(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`(?s)ORDER\s+BY\s+created_at\s+DESC.*LIMIT\s+\$3\s+OFFSET\s+\$4`).
		WithArgs(userID.String(), sqlmock.AnyArg(), 10, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	items, total, err := store.List(context.Background(), models.ApplicationFilter{
		UserID:   userID,
		Statuses: []models.Status{models.StatusSubmitted, models.StatusUnderReview},
		Offset:   20,
		Limit:    10,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationCountByStatus(t *testing.T) {
	db, mock := newMock(t)
	store := NewApplicationStore(db)

	mock.ExpectQuery(`(?s)SELECT\s+status,\s*COUNT\(\*\)\s+FROM\s+applications\s+GROUP\s+BY\s+status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("draft", 3).
			AddRow("approved", 1))

	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.StatusDraft])
	assert.Equal(t, 1, counts[models.StatusApproved])
	assert.Equal(t, 0, counts[models.StatusRejected])
}
