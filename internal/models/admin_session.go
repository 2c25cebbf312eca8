package models

import "time"

type Session struct {
	ID        string `json:"id" db:"session_id"`
	AccountID string `json:"account_id" db:"account_id"`
	// TokenHash is the SHA-256 of the opaque token; the token itself is
	// only held by the client.
	TokenHash    string    `json:"-" db:"token_hash"`
	IPAddress    string    `json:"ip_address" db:"ip_address"`
	UserAgent    string    `json:"user_agent" db:"user_agent"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastActivity time.Time `json:"last_activity" db:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	// RevokedReason is empty while the session is usable.
	RevokedReason string `json:"-" db:"revoked_reason"`
}

// Usable reports whether the session can authenticate a request at now.
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && !now.After(s.ExpiresAt)
}

// SessionView is a session annotated for the device list.
type SessionView struct {
	Session
	IsCurrent bool `json:"is_current"`
}

const (
	RevokedLogout      = "logout"
	RevokedLogoutAll   = "logout_all"
	RevokedTerminated  = "terminated"
	RevokedExpired     = "expired"
	RevokedPasswordSet = "password_changed"
)
