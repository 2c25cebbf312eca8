package scylla

import (
	"context"
	"fmt"
)

// schema is applied by EnsureSchema. Lookup tables replace secondary
// indexes; login attempts are partitioned by (day, bucket).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS admin_accounts (
        account_id text PRIMARY KEY,
        email text,
        password_hash text,
        role text,
        created_at timestamp,
        updated_at timestamp)`,
	`CREATE TABLE IF NOT EXISTS admin_accounts_by_email (
        email text PRIMARY KEY,
        account_id text)`,
	`CREATE TABLE IF NOT EXISTS admin_sessions (
        session_id text PRIMARY KEY,
        account_id text,
        token_hash text,
        ip_address text,
        user_agent text,
        created_at timestamp,
        last_activity timestamp,
        expires_at timestamp,
        is_active boolean,
        revoked_reason text)`,
	`CREATE TABLE IF NOT EXISTS admin_sessions_by_token (
        token_hash text PRIMARY KEY,
        session_id text)`,
	`CREATE TABLE IF NOT EXISTS admin_sessions_by_account (
        account_id text,
        session_id text,
        PRIMARY KEY (account_id, session_id))`,
	`CREATE TABLE IF NOT EXISTS password_reset_tokens (
        token_hash text PRIMARY KEY,
        token_id text,
        account_id text,
        expires_at timestamp,
        used boolean,
        created_at timestamp)`,
	`CREATE TABLE IF NOT EXISTS password_reset_tokens_by_account (
        account_id text,
        token_hash text,
        PRIMARY KEY (account_id, token_hash))`,
	`CREATE TABLE IF NOT EXISTS login_attempts (
        event_date text,
        event_bucket int,
        created_at timestamp,
        attempt_id text,
        account_id text,
        email text,
        ip_address text,
        user_agent text,
        success boolean,
        failure_reason text,
        location text,
        PRIMARY KEY ((event_date, event_bucket), created_at, attempt_id))
        WITH CLUSTERING ORDER BY (created_at DESC, attempt_id ASC)`,
}

// EnsureSchema creates missing tables in the session keyspace.
func (s *ScyllaClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.Query(ctx, stmt).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
