package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	id "kycflow/pkg/domain"
	audit "kycflow/pkg/platform/audit"
	txcontext "kycflow/pkg/platform/tx"
)

// Store implements audit.Store on the local audit_logs table. Timestamps
// are stored as unix milliseconds.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	details := "{}"
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = string(b)
	}

	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, user_id, application_id, action, category, details,
			ip_address, user_agent, request_id, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		event.ID,
		nullableUUID(uuid.UUID(event.UserID)),
		nullableUUID(uuid.UUID(event.ApplicationID)),
		event.Action,
		string(event.Category),
		details,
		event.IP,
		event.UserAgent,
		event.RequestID,
		event.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Event, int, error) {
	var (
		conds []string
		args  []any
	)
	if !filter.UserID.IsNil() {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID.String())
	}
	if !filter.ApplicationID.IsNil() {
		conds = append(conds, "application_id = ?")
		args = append(args, filter.ApplicationID.String())
	}
	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, filter.Action)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	query := `
		SELECT id, user_id, application_id, action, category, details,
			   ip_address, user_agent, request_id, created_at
		FROM audit_logs` + where + `
		ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, max(filter.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event         audit.Event
			category      string
			userID        sql.NullString
			applicationID sql.NullString
			details       string
			createdAt     int64
		)
		err := rows.Scan(&event.ID, &userID, &applicationID, &event.Action, &category, &details,
			&event.IP, &event.UserAgent, &event.RequestID, &createdAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Timestamp = time.UnixMilli(createdAt).UTC()
		if userID.Valid {
			if parsed, err := uuid.Parse(userID.String); err == nil {
				event.UserID = id.UserID(parsed)
			}
		}
		if applicationID.Valid {
			if parsed, err := uuid.Parse(applicationID.String); err == nil {
				event.ApplicationID = id.ApplicationID(parsed)
			}
		}
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &event.Details); err != nil {
				return nil, 0, fmt.Errorf("decode audit details: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, total, nil
}

func nullableUUID(u uuid.UUID) sql.NullString {
	if u == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: u.String(), Valid: true}
}
