package models

import "time"

const (
	FailureLocked             = "locked"
	FailureInvalidCredentials = "invalid_credentials"
	// A signed in admin failed to confirm the current password.
	FailureReauthentication = "reauthentication_failed"
)

// LoginAttempt is an append-only audit record.
type LoginAttempt struct {
	ID            string    `json:"id" db:"attempt_id"`
	AccountID     string    `json:"account_id,omitempty" db:"account_id"`
	Email         string    `json:"email" db:"email"`
	IPAddress     string    `json:"ip_address" db:"ip_address"`
	UserAgent     string    `json:"user_agent" db:"user_agent"`
	Success       bool      `json:"success" db:"success"`
	FailureReason string    `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	Location      string    `json:"location,omitempty" db:"location"`
}

// AttemptFilter narrows a login history query.
type AttemptFilter struct {
	Since        time.Time
	Until        time.Time
	FailuresOnly bool
	Limit        int
}
