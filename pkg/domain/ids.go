// Package domain holds typed identifiers shared across bounded contexts.
//
// Each identifier wraps a UUID so the compiler rejects passing an
// application id where a user id is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "kycflow/pkg/domain-errors"
)

type (
	UserID        uuid.UUID
	SessionID     uuid.UUID
	ApplicationID uuid.UUID
)

func NewUserID() UserID               { return UserID(uuid.New()) }
func NewSessionID() SessionID         { return SessionID(uuid.New()) }
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

func (i UserID) String() string        { return uuid.UUID(i).String() }
func (i SessionID) String() string     { return uuid.UUID(i).String() }
func (i ApplicationID) String() string { return uuid.UUID(i).String() }

func (i UserID) IsNil() bool        { return uuid.UUID(i) == uuid.Nil }
func (i SessionID) IsNil() bool     { return uuid.UUID(i) == uuid.Nil }
func (i ApplicationID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }

func (i UserID) MarshalText() ([]byte, error)        { return uuid.UUID(i).MarshalText() }
func (i SessionID) MarshalText() ([]byte, error)     { return uuid.UUID(i).MarshalText() }
func (i ApplicationID) MarshalText() ([]byte, error) { return uuid.UUID(i).MarshalText() }

func (i *UserID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(i).UnmarshalText(b) }
func (i *SessionID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(i).UnmarshalText(b) }
func (i *ApplicationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(i).UnmarshalText(b) }

// ParseUserID parses s at a trust boundary. Empty, malformed and nil UUIDs
// are rejected with CodeInvalidInput.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application id")
	return ApplicationID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > 36 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}
