package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	id "kycflow/pkg/domain"
	audit "kycflow/pkg/platform/audit"
	txcontext "kycflow/pkg/platform/tx"
)

// Store implements audit.Store on the audit_logs table.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event. Re-delivery of the same ID is ignored.
// When ctx carries a transaction the insert joins it.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	details, err := json.Marshal(orEmpty(event.Details))
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (
			id, user_id, application_id, action, category, details,
			ip_address, user_agent, request_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		nullableUUID(uuid.UUID(event.UserID)),
		nullableUUID(uuid.UUID(event.ApplicationID)),
		event.Action,
		string(event.Category),
		string(details),
		event.IP,
		event.UserAgent,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns matching events newest first and the total match count.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Event, int, error) {
	var (
		conds []string
		args  []any
	)
	if !filter.UserID.IsNil() {
		args = append(args, filter.UserID.String())
		conds = append(conds, "user_id = $"+strconv.Itoa(len(args)))
	}
	if !filter.ApplicationID.IsNil() {
		args = append(args, filter.ApplicationID.String())
		conds = append(conds, "application_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conds = append(conds, "action = $"+strconv.Itoa(len(args)))
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
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// scanEvents scans multiple rows into audit.Event slice.
func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event         audit.Event
			category      string
			userID        sql.NullString
			applicationID sql.NullString
			details       []byte
		)

		err := rows.Scan(
			&event.ID,
			&userID,
			&applicationID,
			&event.Action,
			&category,
			&details,
			&event.IP,
			&event.UserAgent,
			&event.RequestID,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		event.Timestamp = event.Timestamp.UTC()
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
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

func nullableUUID(u uuid.UUID) sql.NullString {
	if u == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: u.String(), Valid: true}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
