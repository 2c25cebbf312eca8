// Package events exports security events to external sinks without
// blocking the request path.
package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	LoginSucceeded         Type = "login_succeeded"
	LoginFailed            Type = "login_failed"
	LoginLocked            Type = "login_locked"
	SessionTerminated      Type = "session_terminated"
	SessionsTerminatedAll  Type = "sessions_terminated_all"
	PasswordResetRequested Type = "password_reset_requested"
	PasswordResetCompleted Type = "password_reset_completed"
	PasswordChanged        Type = "password_changed"
	AccountCreated         Type = "account_created"
	AccountDeleted         Type = "account_deleted"
)

type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	AccountID  string            `json:"account_id,omitempty"`
	Email      string            `json:"email,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// New stamps an event with an id and time.
func New(typ Type, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: typ, OccurredAt: at.UTC()}
}

// Publisher accepts events. Publish never blocks.
type Publisher interface {
	Publish(e Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
