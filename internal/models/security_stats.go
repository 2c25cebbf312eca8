package models

import "time"

type SecurityStats struct {
	Window             string    `json:"window"`
	From               time.Time `json:"from"`
	To                 time.Time `json:"to"`
	TotalAttempts      int       `json:"total_attempts"`
	SuccessfulAttempts int       `json:"successful_attempts"`
	FailedAttempts     int       `json:"failed_attempts"`
	SuccessRate        float64   `json:"success_rate"`
	SuspiciousActivity int       `json:"suspicious_activity"`
	BlockedIPs         int       `json:"blocked_ips"`
	ActiveSessions     int       `json:"active_sessions"`
}

// ThrottleState is the transient per-identity lockout counter.
type ThrottleState struct {
	FailedCount int        `json:"failed_count"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// LockStatus is the public view of a ThrottleState. It carries no failure
// count.
type LockStatus struct {
	Locked            bool       `json:"locked"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
}
