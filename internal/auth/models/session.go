package models

import (
	"time"

	id "kycflow/pkg/domain"
)

// Session is one authenticated client. Sessions are explicit values owned by
// whoever holds the access token; any number may be active at once.
type Session struct {
	ID        id.SessionID `json:"id"`
	UserID    id.UserID    `json:"user_id"`
	ClientIP  string       `json:"client_ip,omitempty"`
	UserAgent string       `json:"user_agent,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionChange is delivered to subscribers on login (User set) and
// logout (User nil).
type SessionChange struct {
	SessionID id.SessionID
	User      *User
}

// LoginResult is what a successful login hands back to the client.
type LoginResult struct {
	Session     *Session `json:"session"`
	User        *User    `json:"user"`
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
}
