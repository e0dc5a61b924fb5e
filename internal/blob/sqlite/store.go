// Package sqlite stores blobs in the local database's blobs table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kycflow/internal/blob"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Put stores data under key, replacing any previous blob with the same key.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (ref, content_type, data, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (ref) DO UPDATE SET content_type = excluded.content_type, data = excluded.data`,
		key, contentType, data, s.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	return key, nil
}

func (s *Store) Get(ctx context.Context, ref string) (*blob.Object, error) {
	obj := blob.Object{Ref: ref}
	err := s.db.QueryRowContext(ctx, `SELECT content_type, data FROM blobs WHERE ref = ?`, ref).
		Scan(&obj.ContentType, &obj.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", ref, blob.ErrNotFound)
		}
		return nil, fmt.Errorf("load blob: %w", err)
	}
	return &obj, nil
}
