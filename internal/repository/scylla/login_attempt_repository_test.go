package scylla

import (
	"testing"
	"time"

	"admin-auth-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	in := []*models.LoginAttempt{
		{ID: "a", CreatedAt: base},
		{ID: "b", CreatedAt: base.Add(time.Minute)},
		{ID: "c", CreatedAt: base},
		{ID: "d", CreatedAt: base.Add(-time.Minute)},
	}

	out := sortNewestFirst(in)

	var ids []string
	for _, a := range out {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
}

func TestSchemaCoversEveryTable(t *testing.T) {
	stmts := newStatements()
	for _, table := range []string{
		"admin_accounts", "admin_accounts_by_email", "admin_sessions",
		"admin_sessions_by_token", "admin_sessions_by_account",
		"password_reset_tokens", "password_reset_tokens_by_account", "login_attempts",
	} {
		found := false
		for _, ddl := range schema {
			if containsTable(ddl, table) {
				found = true
			}
		}
		assert.True(t, found, table)
	}
	assert.Contains(t, stmts.RedeemResetToken, "IF used = false")
	assert.Contains(t, stmts.InsertAccountByEmail, "IF NOT EXISTS")
}

func containsTable(ddl, table string) bool {
	want := "CREATE TABLE IF NOT EXISTS " + table + " ("
	return len(ddl) >= len(want) && ddl[:len(want)] == want
}
