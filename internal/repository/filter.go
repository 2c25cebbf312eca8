package repository

import "admin-auth-service/internal/models"

// MatchesFilter applies an AttemptFilter to one record. Backends that
// cannot push a predicate down to storage filter with this.
func MatchesFilter(a *models.LoginAttempt, f models.AttemptFilter) bool {
	if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && a.CreatedAt.After(f.Until) {
		return false
	}
	if f.FailuresOnly && a.Success {
		return false
	}
	return true
}
