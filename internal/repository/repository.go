// Package repository defines the durable storage contracts shared by the
// memory, sql and scylla backends.
package repository

import (
	"context"
	"errors"
	"time"

	"admin-auth-service/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict means a conditional write lost to a concurrent one, or its
	// precondition no longer held when it was applied.
	ErrConflict = errors.New("conditional update conflict")
)

type AccountRepository interface {
	// Create fails with ErrDuplicate when the normalized email exists.
	Create(ctx context.Context, account *models.AdminAccount) error
	GetByID(ctx context.Context, id string) (*models.AdminAccount, error)
	GetByEmail(ctx context.Context, email string) (*models.AdminAccount, error)
	List(ctx context.Context) ([]*models.AdminAccount, error)
	Count(ctx context.Context) (int, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string, now time.Time) error
	Delete(ctx context.Context, id string) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Touch(ctx context.Context, id string, lastActivity time.Time) error
	Extend(ctx context.Context, id string, expiresAt, lastActivity time.Time) error
	// Deactivate reports whether the session was active before the call.
	Deactivate(ctx context.Context, id, reason string) (bool, error)
	// DeactivateAll ends every active session of the account except
	// exceptID (which may be empty) and returns how many were ended.
	DeactivateAll(ctx context.Context, accountID, exceptID, reason string) (int, error)
	// ListActive returns usable sessions, most recently active first.
	ListActive(ctx context.Context, accountID string, now time.Time) ([]*models.Session, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
	// DeactivateExpired marks sessions past expiry inactive.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}

type ResetTokenRepository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.PasswordResetToken, error)
	// InvalidateUnused marks every unused token of the account used.
	InvalidateUnused(ctx context.Context, accountID string) (int, error)
	// PurgeStale deletes tokens that are used or expired and were created
	// before the cutoff.
	PurgeStale(ctx context.Context, now, createdBefore time.Time) (int, error)
}

type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	// List returns attempts in [Since, Until], newest first.
	List(ctx context.Context, filter models.AttemptFilter) ([]*models.LoginAttempt, error)
}

// Store is a complete storage backend.
type Store interface {
	Accounts() AccountRepository
	Sessions() SessionRepository
	ResetTokens() ResetTokenRepository
	LoginAttempts() LoginAttemptRepository

	// RedeemPasswordReset consumes the token and sets the account's password
	// hash as one unit. It returns ErrNotFound for an unknown token and
	// ErrConflict when the token is already used or expired at now.
	RedeemPasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.PasswordResetToken, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
