// Package sqlite is the local storage backend: users and applications in a
// single SQLite file managed by internal/platform/sqlite.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"kycflow/pkg/platform/sentinel"
)

func mapNotFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s not found: %w", what, sentinel.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// encodeOptional stores nil pointers as NULL.
func encodeOptional[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	s, err := encodeJSON(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func decodeOptional[T any](ns sql.NullString) (*T, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(ns.String), &v); err != nil {
		return nil, err
	}
	return &v, nil
}
