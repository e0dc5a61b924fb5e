package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"kycflow/internal/kyc/models"
	platformpg "kycflow/internal/platform/postgres"
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

type payload struct {
	personalInfo []byte
	documentInfo []byte
	facial       []byte
	reviewedBy   sql.NullString
}

func encodePayload(app *models.Application) (payload, error) {
	var (
		p   payload
		err error
	)
	if p.personalInfo, err = json.Marshal(app.PersonalInfo); err != nil {
		return p, fmt.Errorf("encode personal info: %w", err)
	}
	if app.DocumentInfo != nil {
		if p.documentInfo, err = json.Marshal(app.DocumentInfo); err != nil {
			return p, fmt.Errorf("encode document info: %w", err)
		}
	}
	if app.FacialVerification != nil {
		if p.facial, err = json.Marshal(app.FacialVerification); err != nil {
			return p, fmt.Errorf("encode facial verification: %w", err)
		}
	}
	if app.ReviewedBy != nil {
		p.reviewedBy = sql.NullString{String: app.ReviewedBy.String(), Valid: true}
	}
	return p, nil
}

// jsonArg passes JSON as text so the driver casts it to JSONB; nil becomes NULL.
func jsonArg(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func (s *ApplicationStore) Create(ctx context.Context, app *models.Application) error {
	p, err := encodePayload(app)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = tx.Pick(ctx, s.db).ExecContext(ctx, query,
		app.ID.String(),
		app.UserID.String(),
		app.ApplicationNumber,
		string(app.Status),
		app.CurrentStep,
		string(p.personalInfo),
		jsonArg(p.documentInfo),
		jsonArg(p.facial),
		app.RiskScore,
		string(app.RiskLevel),
		app.CreatedAt,
		app.UpdatedAt,
		platformpg.NullTime(app.SubmittedAt),
		platformpg.NullTime(app.ReviewedAt),
		platformpg.NullTime(app.ApprovedAt),
		platformpg.NullTime(app.RejectedAt),
		platformpg.NullTime(app.ExpiresAt),
		p.reviewedBy,
		app.RejectionReason,
		app.AdminNotes,
		app.Version,
	)
	if err != nil {
		if platformpg.IsUniqueViolation(err) {
			return fmt.Errorf("application %s: %w", app.ApplicationNumber, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *ApplicationStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	return scanApplication(tx.Pick(ctx, s.db).QueryRowContext(ctx, query, appID.String()))
}

// Update is a compare-and-swap on version; RETURNING yields the new version.
func (s *ApplicationStore) Update(ctx context.Context, app *models.Application) error {
	p, err := encodePayload(app)
	if err != nil {
		return err
	}
	query := `
		UPDATE applications SET
			status = $1, current_step = $2, personal_info = $3, document_info = $4, facial_verification = $5,
			risk_score = $6, risk_level = $7, updated_at = $8, submitted_at = $9, reviewed_at = $10,
			approved_at = $11, rejected_at = $12, expires_at = $13, reviewed_by = $14,
			rejection_reason = $15, admin_notes = $16, version = version + 1
		WHERE id = $17 AND version = $18
		RETURNING version
	`
	exec := tx.Pick(ctx, s.db)
	var version int
	err = exec.QueryRowContext(ctx, query,
		string(app.Status),
		app.CurrentStep,
		string(p.personalInfo),
		jsonArg(p.documentInfo),
		jsonArg(p.facial),
		app.RiskScore,
		string(app.RiskLevel),
		app.UpdatedAt,
		platformpg.NullTime(app.SubmittedAt),
		platformpg.NullTime(app.ReviewedAt),
		platformpg.NullTime(app.ApprovedAt),
		platformpg.NullTime(app.RejectedAt),
		platformpg.NullTime(app.ExpiresAt),
		p.reviewedBy,
		app.RejectionReason,
		app.AdminNotes,
		app.ID.String(),
		app.Version,
	).Scan(&version)
	if err == nil {
		app.Version = version
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update application: %w", err)
	}

	var exists bool
	err = exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, app.ID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if !exists {
		return fmt.Errorf("application not found: %w", sentinel.ErrNotFound)
	}
	return fmt.Errorf("application %s version %d is stale: %w", app.ID, app.Version, sentinel.ErrConflict)
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
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := exec.QueryContext(ctx, query, args...)
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
		args = append(args, filter.UserID.String())
		conds = append(conds, "user_id = $"+strconv.Itoa(len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, "status = ANY($"+strconv.Itoa(len(args))+")")
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
		`SELECT COUNT(*) FROM applications WHERE created_at >= $1`, since).Scan(&n)
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
		personalInfo []byte
		documentInfo []byte
		facial       []byte
		reviewedBy   sql.NullString
		submittedAt  sql.NullTime
		reviewedAt   sql.NullTime
		approvedAt   sql.NullTime
		rejectedAt   sql.NullTime
		expiresAt    sql.NullTime
	)
	err := sc.Scan(&rawID, &rawUserID, &app.ApplicationNumber, &status, &app.CurrentStep,
		&personalInfo, &documentInfo, &facial, &app.RiskScore, &riskLevel,
		&app.CreatedAt, &app.UpdatedAt, &submittedAt, &reviewedAt, &approvedAt, &rejectedAt, &expiresAt,
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
	if err := json.Unmarshal(personalInfo, &app.PersonalInfo); err != nil {
		return nil, fmt.Errorf("decode personal info: %w", err)
	}
	if len(documentInfo) > 0 {
		app.DocumentInfo = &models.DocumentInfo{}
		if err := json.Unmarshal(documentInfo, app.DocumentInfo); err != nil {
			return nil, fmt.Errorf("decode document info: %w", err)
		}
	}
	if len(facial) > 0 {
		app.FacialVerification = &models.FacialVerification{}
		if err := json.Unmarshal(facial, app.FacialVerification); err != nil {
			return nil, fmt.Errorf("decode facial verification: %w", err)
		}
	}

	app.Status = models.Status(status)
	app.RiskLevel = models.RiskLevel(riskLevel)
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	app.SubmittedAt = platformpg.FromNullTime(submittedAt)
	app.ReviewedAt = platformpg.FromNullTime(reviewedAt)
	app.ApprovedAt = platformpg.FromNullTime(approvedAt)
	app.RejectedAt = platformpg.FromNullTime(rejectedAt)
	app.ExpiresAt = platformpg.FromNullTime(expiresAt)
	return &app, nil
}
