package models

import "time"

type PasswordResetToken struct {
	ID        string    `json:"id" db:"token_id"`
	AccountID string    `json:"account_id" db:"account_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Used      bool      `json:"used" db:"used"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Redeemable reports whether the token may still be consumed at now.
func (t *PasswordResetToken) Redeemable(now time.Time) bool {
	return !t.Used && !now.After(t.ExpiresAt)
}
