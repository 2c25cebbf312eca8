package sql

import (
	"time"

	"admin-auth-service/internal/models"
)

// Timestamps are written explicitly from the caller's clock, so gorm's
// automatic create/update times are turned off.

type accountRecord struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"size:191;not null;uniqueIndex"`
	PasswordHash string    `gorm:"size:255;not null"`
	Role         string    `gorm:"size:16;not null"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (accountRecord) TableName() string { return "admin_accounts" }

type sessionRecord struct {
	ID            string    `gorm:"primaryKey;size:36"`
	AccountID     string    `gorm:"size:36;not null;index:idx_sessions_account_active,priority:1"`
	TokenHash     string    `gorm:"size:64;not null;uniqueIndex"`
	IPAddress     string    `gorm:"size:64"`
	UserAgent     string    `gorm:"size:512"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime:false"`
	LastActivity  time.Time `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"not null;index"`
	IsActive      bool      `gorm:"not null;index:idx_sessions_account_active,priority:2"`
	RevokedReason string    `gorm:"size:32"`
}

func (sessionRecord) TableName() string { return "admin_sessions" }

type resetTokenRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	AccountID string    `gorm:"size:36;not null;index"`
	TokenHash string    `gorm:"size:64;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	Used      bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index;autoCreateTime:false"`
}

func (resetTokenRecord) TableName() string { return "password_reset_tokens" }

type loginAttemptRecord struct {
	ID            string    `gorm:"primaryKey;size:36"`
	AccountID     string    `gorm:"size:36;index"`
	Email         string    `gorm:"size:191;index"`
	IPAddress     string    `gorm:"size:64"`
	UserAgent     string    `gorm:"size:512"`
	Success       bool      `gorm:"not null"`
	FailureReason string    `gorm:"size:32"`
	CreatedAt     time.Time `gorm:"not null;index;autoCreateTime:false"`
	Location      string    `gorm:"size:128"`
}

func (loginAttemptRecord) TableName() string { return "login_attempts" }

func fromAccount(a *models.AdminAccount) *accountRecord {
	return &accountRecord{
		ID:           a.ID,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Role:         string(a.Role),
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func (r *accountRecord) model() *models.AdminAccount {
	return &models.AdminAccount{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         models.Role(r.Role),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func fromSession(s *models.Session) *sessionRecord {
	return &sessionRecord{
		ID:            s.ID,
		AccountID:     s.AccountID,
		TokenHash:     s.TokenHash,
		IPAddress:     s.IPAddress,
		UserAgent:     s.UserAgent,
		CreatedAt:     s.CreatedAt.UTC(),
		LastActivity:  s.LastActivity.UTC(),
		ExpiresAt:     s.ExpiresAt.UTC(),
		IsActive:      s.IsActive,
		RevokedReason: s.RevokedReason,
	}
}

func (r *sessionRecord) model() *models.Session {
	return &models.Session{
		ID:            r.ID,
		AccountID:     r.AccountID,
		TokenHash:     r.TokenHash,
		IPAddress:     r.IPAddress,
		UserAgent:     r.UserAgent,
		CreatedAt:     r.CreatedAt.UTC(),
		LastActivity:  r.LastActivity.UTC(),
		ExpiresAt:     r.ExpiresAt.UTC(),
		IsActive:      r.IsActive,
		RevokedReason: r.RevokedReason,
	}
}

func fromResetToken(t *models.PasswordResetToken) *resetTokenRecord {
	return &resetTokenRecord{
		ID:        t.ID,
		AccountID: t.AccountID,
		TokenHash: t.TokenHash,
		ExpiresAt: t.ExpiresAt.UTC(),
		Used:      t.Used,
		CreatedAt: t.CreatedAt.UTC(),
	}
}

func (r *resetTokenRecord) model() *models.PasswordResetToken {
	return &models.PasswordResetToken{
		ID:        r.ID,
		AccountID: r.AccountID,
		TokenHash: r.TokenHash,
		ExpiresAt: r.ExpiresAt.UTC(),
		Used:      r.Used,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func fromLoginAttempt(a *models.LoginAttempt) *loginAttemptRecord {
	return &loginAttemptRecord{
		ID:            a.ID,
		AccountID:     a.AccountID,
		Email:         a.Email,
		IPAddress:     a.IPAddress,
		UserAgent:     a.UserAgent,
		Success:       a.Success,
		FailureReason: a.FailureReason,
		CreatedAt:     a.CreatedAt.UTC(),
		Location:      a.Location,
	}
}

func (r *loginAttemptRecord) model() *models.LoginAttempt {
	return &models.LoginAttempt{
		ID:            r.ID,
		AccountID:     r.AccountID,
		Email:         r.Email,
		IPAddress:     r.IPAddress,
		UserAgent:     r.UserAgent,
		Success:       r.Success,
		FailureReason: r.FailureReason,
		CreatedAt:     r.CreatedAt.UTC(),
		Location:      r.Location,
	}
}
