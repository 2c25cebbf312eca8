// Package autherr defines the tagged error kinds returned by the
// authentication services. Callers branch on Kind, never on message text.
package autherr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InvalidCredentials            Kind = "invalid_credentials"
	AccountLocked                 Kind = "account_locked"
	DuplicateEmail                Kind = "duplicate_email"
	WeakPassword                  Kind = "weak_password"
	SelfDeletionForbidden         Kind = "self_deletion_forbidden"
	InvalidSession                Kind = "invalid_session"
	ExpiredSession                Kind = "expired_session"
	CannotTerminateCurrentSession Kind = "cannot_terminate_current_session"
	InvalidResetToken             Kind = "invalid_reset_token"
	ExpiredResetToken             Kind = "expired_reset_token"
	NotAuthenticated              Kind = "not_authenticated"
	PermissionDenied              Kind = "permission_denied"
	InvalidInput                  Kind = "invalid_input"
	NotFound                      Kind = "not_found"
	Internal                      Kind = "internal"
)

var messages = map[Kind]string{
	InvalidCredentials:            "invalid email or password",
	AccountLocked:                 "too many failed attempts, try again later",
	DuplicateEmail:                "an account with this email already exists",
	WeakPassword:                  "password does not meet the password policy",
	SelfDeletionForbidden:         "you cannot delete your own account",
	InvalidSession:                "session is not valid, please log in again",
	ExpiredSession:                "session has expired, please log in again",
	CannotTerminateCurrentSession: "use logout to end the current session",
	InvalidResetToken:             "reset link is invalid",
	ExpiredResetToken:             "reset link has expired",
	NotAuthenticated:              "authentication required",
	PermissionDenied:              "permission denied",
	InvalidInput:                  "invalid input",
	NotFound:                      "not found",
	Internal:                      "internal service error",
}

// Error is a kinded authentication error. RetryAfterSeconds is only set for
// AccountLocked.
type Error struct {
	Kind              Kind
	RetryAfterSeconds int
	Detail            string
	Err               error
}

func (e *Error) Error() string {
	msg := e.Message()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Message is the user-facing text for the kind.
func (e *Error) Message() string {
	if m, ok := messages[e.Kind]; ok {
		return m
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind, so the package sentinels work
// with errors.Is regardless of detail or retry-after.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidCredentials            = New(InvalidCredentials)
	ErrAccountLocked                 = New(AccountLocked)
	ErrDuplicateEmail                = New(DuplicateEmail)
	ErrWeakPassword                  = New(WeakPassword)
	ErrSelfDeletionForbidden         = New(SelfDeletionForbidden)
	ErrInvalidSession                = New(InvalidSession)
	ErrExpiredSession                = New(ExpiredSession)
	ErrCannotTerminateCurrentSession = New(CannotTerminateCurrentSession)
	ErrInvalidResetToken             = New(InvalidResetToken)
	ErrExpiredResetToken             = New(ExpiredResetToken)
	ErrNotAuthenticated              = New(NotAuthenticated)
	ErrPermissionDenied              = New(PermissionDenied)
	ErrInvalidInput                  = New(InvalidInput)
	ErrNotFound                      = New(NotFound)
	ErrInternal                      = New(Internal)
)

func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Newf attaches a formatted detail to a kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap tags a lower-level error with a kind.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Locked builds an AccountLocked error carrying the remaining lock time.
func Locked(retryAfterSeconds int) *Error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	return &Error{Kind: AccountLocked, RetryAfterSeconds: retryAfterSeconds}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// RetryAfter returns the lock's retry-after seconds, or 0.
func RetryAfter(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfterSeconds
	}
	return 0
}

// IsSessionFailure groups the session kinds callers treat as "log in again".
func IsSessionFailure(err error) bool {
	switch KindOf(err) {
	case InvalidSession, ExpiredSession, NotAuthenticated:
		return true
	}
	return false
}
