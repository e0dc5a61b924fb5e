package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kycflow/internal/kyc/models"
	platformsqlite "kycflow/internal/platform/sqlite"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/platform/tx"
)

type ApplicationStore struct {
	db *sql.DB
}

func NewApplicationStore(db *sql.DB) *ApplicationStore {
	return &ApplicationStore{db: db}
}

const applicationColumns = `id, user_id, application_number, status, current_step,
	personal_info, document_info, facial_verification, risk_score, risk_level,
	created_at, updated_at, submitted_at, reviewed_at, approved_at, rejected_at, expires_at,
	reviewed_by, rejection_reason, admin_notes, version`

// applicationRow is the column form of models.Application.
type applicationRow struct {
	personalInfo string
	documentInfo sql.NullString
	facial       sql.NullString
	reviewedBy   sql.NullString
}

func toRow(app *models.Application) (applicationRow, error) {
	var (
		row applicationRow
		err error
	)
	if row.personalInfo, err = encodeJSON(app.PersonalInfo); err != nil {
		return row, fmt.Errorf("encode personal info: %w", err)
	}
	if row.documentInfo, err = encodeOptional(app.DocumentInfo); err != nil {
		return row, fmt.Errorf("encode document info: %w", err)
	}
	if row.facial, err = encodeOptional(app.FacialVerification); err != nil {
		return row, fmt.Errorf("encode facial verification: %w", err)
	}
	if app.ReviewedBy != nil {
		row.reviewedBy = sql.NullString{String: app.ReviewedBy.String(), Valid: true}
	}
	return row, nil
}

func (s *ApplicationStore) Create(ctx context.Context, app *models.Application) error {
	row, err := toRow(app)
	if err != nil {
		return err
	}
	_, err = tx.Pick(ctx, s.db).ExecContext(ctx,
		`INSERT INTO applications (`+applicationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID.String(),
		app.UserID.String(),
		app.ApplicationNumber,
		string(app.Status),
		app.CurrentStep,
		row.personalInfo,
		row.documentInfo,
		row.facial,
		app.RiskScore,
		string(app.RiskLevel),
		platformsqlite.Millis(app.CreatedAt),
		platformsqlite.Millis(app.UpdatedAt),
		platformsqlite.NullMillis(app.SubmittedAt),
		platformsqlite.NullMillis(app.ReviewedAt),
		platformsqlite.NullMillis(app.ApprovedAt),
		platformsqlite.NullMillis(app.RejectedAt),
		platformsqlite.NullMillis(app.ExpiresAt),
		row.reviewedBy,
		app.RejectionReason,
		app.AdminNotes,
		app.Version,
	)
	if err != nil {
		if platformsqlite.IsUniqueViolation(err) {
			return fmt.Errorf("application %s: %w", app.ApplicationNumber, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *ApplicationStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, appID.String())
	return scanApplication(row)
}

// Update writes every mutable column when the stored version still equals
// app.Version. The application number, owner and creation time never change.
func (s *ApplicationStore) Update(ctx context.Context, app *models.Application) error {
	row, err := toRow(app)
	if err != nil {
		return err
	}
	exec := tx.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE applications SET
			status = ?, current_step = ?, personal_info = ?, document_info = ?, facial_verification = ?,
			risk_score = ?, risk_level = ?, updated_at = ?, submitted_at = ?, reviewed_at = ?,
			approved_at = ?, rejected_at = ?, expires_at = ?, reviewed_by = ?,
			rejection_reason = ?, admin_notes = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		string(app.Status),
		app.CurrentStep,
		row.personalInfo,
		row.documentInfo,
		row.facial,
		app.RiskScore,
		string(app.RiskLevel),
		platformsqlite.Millis(app.UpdatedAt),
		platformsqlite.NullMillis(app.SubmittedAt),
		platformsqlite.NullMillis(app.ReviewedAt),
		platformsqlite.NullMillis(app.ApprovedAt),
		platformsqlite.NullMillis(app.RejectedAt),
		platformsqlite.NullMillis(app.ExpiresAt),
		row.reviewedBy,
		app.RejectionReason,
		app.AdminNotes,
		app.ID.String(),
		app.Version,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if n == 0 {
		var exists int
		err := exec.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE id = ?`, app.ID.String()).Scan(&exists)
		if err != nil {
			return mapNotFound(err, "application")
		}
		return fmt.Errorf("application %s version %d is stale: %w", app.ID, app.Version, sentinel.ErrConflict)
	}
	app.Version++
	return nil
}

func (s *ApplicationStore) List(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, int, error) {
	where, args := whereClause(filter)
	exec := tx.Pick(ctx, s.db)

	var total int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	query := `SELECT ` + applicationColumns + ` FROM applications` + where +
		` ORDER BY created_at DESC, application_number DESC`
	pageArgs := append([]any{}, args...)
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		pageArgs = append(pageArgs, filter.Limit, max(filter.Offset, 0))
	} else if filter.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		pageArgs = append(pageArgs, filter.Offset)
	}

	rows, err := exec.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	return out, total, nil
}

func whereClause(filter models.ApplicationFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !filter.UserID.IsNil() {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID.String())
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *ApplicationStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT status, COUNT(*) FROM applications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count by status: %w", err)
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *ApplicationStore) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE created_at >= ?`, platformsqlite.Millis(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count created since: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(sc scanner) (*models.Application, error) {
	var (
		app          models.Application
		rawID        string
		rawUserID    string
		status       string
		riskLevel    string
		personalInfo string
		documentInfo sql.NullString
		facial       sql.NullString
		reviewedBy   sql.NullString
		createdAt    int64
		updatedAt    int64
		submittedAt  sql.NullInt64
		reviewedAt   sql.NullInt64
		approvedAt   sql.NullInt64
		rejectedAt   sql.NullInt64
		expiresAt    sql.NullInt64
	)
	err := sc.Scan(&rawID, &rawUserID, &app.ApplicationNumber, &status, &app.CurrentStep,
		&personalInfo, &documentInfo, &facial, &app.RiskScore, &riskLevel,
		&createdAt, &updatedAt, &submittedAt, &reviewedAt, &approvedAt, &rejectedAt, &expiresAt,
		&reviewedBy, &app.RejectionReason, &app.AdminNotes, &app.Version)
	if err != nil {
		return nil, mapNotFound(err, "application")
	}

	if app.ID, err = id.ParseApplicationID(rawID); err != nil {
		return nil, fmt.Errorf("decode application id: %w", err)
	}
	if app.UserID, err = id.ParseUserID(rawUserID); err != nil {
		return nil, fmt.Errorf("decode user id: %w", err)
	}
	if reviewedBy.Valid {
		reviewer, err := id.ParseUserID(reviewedBy.String)
		if err != nil {
			return nil, fmt.Errorf("decode reviewer id: %w", err)
		}
		app.ReviewedBy = &reviewer
	}
	if err := json.Unmarshal([]byte(personalInfo), &app.PersonalInfo); err != nil {
		return nil, fmt.Errorf("decode personal info: %w", err)
	}
	if app.DocumentInfo, err = decodeOptional[models.DocumentInfo](documentInfo); err != nil {
		return nil, fmt.Errorf("decode document info: %w", err)
	}
	if app.FacialVerification, err = decodeOptional[models.FacialVerification](facial); err != nil {
		return nil, fmt.Errorf("decode facial verification: %w", err)
	}

	app.Status = models.Status(status)
	app.RiskLevel = models.RiskLevel(riskLevel)
	app.CreatedAt = platformsqlite.FromMillis(createdAt)
	app.UpdatedAt = platformsqlite.FromMillis(updatedAt)
	app.SubmittedAt = platformsqlite.FromNullMillis(submittedAt)
	app.ReviewedAt = platformsqlite.FromNullMillis(reviewedAt)
	app.ApprovedAt = platformsqlite.FromNullMillis(approvedAt)
	app.RejectedAt = platformsqlite.FromNullMillis(rejectedAt)
	app.ExpiresAt = platformsqlite.FromNullMillis(expiresAt)
	return &app, nil
}
