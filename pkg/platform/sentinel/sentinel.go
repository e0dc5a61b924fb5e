package sentinel

import "errors"

// Infrastructure facts returned by stores, optionally wrapped. Services
// translate them into domain errors:
//   - ErrNotFound: record does not exist
//   - ErrConflict: unique key taken, or a stale version lost a compare-and-swap
//   - ErrExpired: session or token has expired
//   - ErrInvalidState: record is in the wrong state for the operation
//   - ErrUnavailable: backend temporarily unavailable
//
// Validation failures belong in pkg/domain-errors, not here.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
