package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/util"
)

// Statements holds the CQL used by the store. Queries are built per call
// from these strings; gocql caches the preparation per session.
type Statements struct {
	InsertAccount        string
	InsertAccountByEmail string
	GetAccountByID       string
	GetAccountIDByEmail  string
	ListAccounts         string
	UpdatePasswordHash   string
	DeleteAccount        string
	DeleteAccountByEmail string

	InsertSession          string
	InsertSessionByToken   string
	InsertSessionByAccount string
	GetSessionByID         string
	GetSessionIDByToken    string
	ListSessionIDsByAcct   string
	ScanSessions           string
	TouchSession           string
	ExtendSession          string
	DeactivateSession      string

	InsertResetToken          string
	InsertResetTokenByAccount string
	GetResetToken             string
	ListResetTokensByAccount  string
	ScanResetTokens           string
	InvalidateResetToken      string
	RedeemResetToken          string
	DeleteResetToken          string
	DeleteResetTokenByAccount string

	InsertLoginAttempt string
	ListLoginAttempts  string
}

func newStatements() *Statements {
	return &Statements{
		InsertAccount: `
        INSERT INTO admin_accounts (account_id, email, password_hash, role, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		InsertAccountByEmail: `
        INSERT INTO admin_accounts_by_email (email, account_id) VALUES (?, ?) IF NOT EXISTS`,
		GetAccountByID: `
        SELECT account_id, email, password_hash, role, created_at, updated_at
        FROM admin_accounts WHERE account_id = ?`,
		GetAccountIDByEmail: `
        SELECT account_id FROM admin_accounts_by_email WHERE email = ?`,
		ListAccounts: `
        SELECT account_id, email, password_hash, role, created_at, updated_at FROM admin_accounts`,
		UpdatePasswordHash: `
        UPDATE admin_accounts SET password_hash = ?, updated_at = ? WHERE account_id = ? IF EXISTS`,
		DeleteAccount: `
        DELETE FROM admin_accounts WHERE account_id = ?`,
		DeleteAccountByEmail: `
        DELETE FROM admin_accounts_by_email WHERE email = ?`,

		InsertSession: `
        INSERT INTO admin_sessions (session_id, account_id, token_hash, ip_address, user_agent,
            created_at, last_activity, expires_at, is_active, revoked_reason)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		InsertSessionByToken: `
        INSERT INTO admin_sessions_by_token (token_hash, session_id) VALUES (?, ?)`,
		InsertSessionByAccount: `
        INSERT INTO admin_sessions_by_account (account_id, session_id) VALUES (?, ?)`,
		GetSessionByID: `
        SELECT session_id, account_id, token_hash, ip_address, user_agent,
            created_at, last_activity, expires_at, is_active, revoked_reason
        FROM admin_sessions WHERE session_id = ?`,
		GetSessionIDByToken: `
        SELECT session_id FROM admin_sessions_by_token WHERE token_hash = ?`,
		ListSessionIDsByAcct: `
        SELECT session_id FROM admin_sessions_by_account WHERE account_id = ?`,
		ScanSessions: `
        SELECT session_id, is_active, expires_at FROM admin_sessions`,
		TouchSession: `
        UPDATE admin_sessions SET last_activity = ? WHERE session_id = ? IF is_active = true`,
		ExtendSession: `
        UPDATE admin_sessions SET expires_at = ?, last_activity = ? WHERE session_id = ? IF is_active = true`,
		DeactivateSession: `
        UPDATE admin_sessions SET is_active = false, revoked_reason = ? WHERE session_id = ? IF is_active = true`,

		InsertResetToken: `
        INSERT INTO password_reset_tokens (token_hash, token_id, account_id, expires_at, used, created_at)
        VALUES (?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		InsertResetTokenByAccount: `
        INSERT INTO password_reset_tokens_by_account (account_id, token_hash) VALUES (?, ?)`,
		GetResetToken: `
        SELECT token_hash, token_id, account_id, expires_at, used, created_at
        FROM password_reset_tokens WHERE token_hash = ?`,
		ListResetTokensByAccount: `
        SELECT token_hash FROM password_reset_tokens_by_account WHERE account_id = ?`,
		ScanResetTokens: `
        SELECT token_hash, token_id, account_id, expires_at, used, created_at FROM password_reset_tokens`,
		InvalidateResetToken: `
        UPDATE password_reset_tokens SET used = true WHERE token_hash = ? IF used = false`,
		RedeemResetToken: `
        UPDATE password_reset_tokens SET used = true WHERE token_hash = ? IF used = false AND expires_at >= ?`,
		DeleteResetToken: `
        DELETE FROM password_reset_tokens WHERE token_hash = ?`,
		DeleteResetTokenByAccount: `
        DELETE FROM password_reset_tokens_by_account WHERE account_id = ? AND token_hash = ?`,

		InsertLoginAttempt: `
        INSERT INTO login_attempts (event_date, event_bucket, created_at, attempt_id, account_id,
            email, ip_address, user_agent, success, failure_reason, location)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ListLoginAttempts: `
        SELECT created_at, attempt_id, account_id, email, ip_address, user_agent,
            success, failure_reason, location
        FROM login_attempts
        WHERE event_date = ? AND event_bucket = ? AND created_at >= ? AND created_at <= ?`,
	}
}

type ScyllaClient struct {
	Session    *gocql.Session
	config     *config.ScyllaConfig
	Statements *Statements
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.CAPath != "" {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 scyllaConfig.CAPath,
			EnableHostVerification: !cfg.IsDevelopment(),
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session:    session,
		config:     &scyllaConfig,
		Statements: newStatements(),
	}

	logger.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

// Query builds a query bound to ctx.
func (s *ScyllaClient) Query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...).WithContext(ctx)
}

func (s *ScyllaClient) Batch(ctx context.Context, typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ).WithContext(ctx)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

// ExecCAS runs a lightweight transaction and reports whether it applied.
func (s *ScyllaClient) ExecCAS(ctx context.Context, stmt string, values ...interface{}) (bool, error) {
	return s.Query(ctx, stmt, values...).MapScanCAS(make(map[string]interface{}))
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}
