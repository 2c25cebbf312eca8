package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/util"
)

// SecurityEventsTable holds one row per exported security event.
const SecurityEventsTable = "admin_security_events"

const securityEventsDDL = `CREATE TABLE IF NOT EXISTS ` + SecurityEventsTable + ` (
	event_id String,
	event_type LowCardinality(String),
	account_id String,
	email String,
	ip_address String,
	user_agent String,
	session_id String,
	detail Map(String, String),
	occurred_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
PARTITION BY toYYYYMM(occurred_at)
ORDER BY (event_type, occurred_at)
TTL toDateTime(occurred_at) + INTERVAL 400 DAY`

const securityEventsInsert = `INSERT INTO ` + SecurityEventsTable + `
	(event_id, event_type, account_id, email, ip_address, user_agent, session_id, detail, occurred_at)`

// SecurityEventRow is the column layout of SecurityEventsTable.
type SecurityEventRow struct {
	EventID    string
	EventType  string
	AccountID  string
	Email      string
	IPAddress  string
	UserAgent  string
	SessionID  string
	Detail     map[string]string
	OccurredAt time.Time
}

func (r SecurityEventRow) values() []interface{} {
	detail := r.Detail
	if detail == nil {
		detail = map[string]string{}
	}
	return []interface{}{
		r.EventID, r.EventType, r.AccountID, r.Email, r.IPAddress,
		r.UserAgent, r.SessionID, detail, r.OccurredAt.UTC(),
	}
}

// ClickHouseClient is the analytics store for admin security events.
type ClickHouseClient struct {
	conn     driver.Conn
	database string
	mu       sync.RWMutex
}

// clickhouseOptions maps the service config onto driver options. TLS is
// enabled in production or for https URLs.
func clickhouseOptions(cfg *config.Config) (*ch.Options, error) {
	c := cfg.Clickhouse
	opts := &ch.Options{
		Addr: []string{extractHostPort(c.URL)},
		Auth: ch.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
	if !cfg.IsProduction() && !strings.HasPrefix(c.URL, "https://") {
		return opts, nil
	}

	opts.TLS = &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: extractHostname(c.URL),
	}
	if caFile := getEnv("CLICKHOUSE_CA_FILE", ""); caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read ClickHouse CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		opts.TLS.RootCAs = pool
	}
	return opts, nil
}

// NewClickHouseClient connects and makes sure the security events table
// exists before any sink writes to it.
func NewClickHouseClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ClickHouseClient, error) {
	opts, err := clickhouseOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	c := &ClickHouseClient{conn: conn, database: cfg.Clickhouse.Database}
	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(setupCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := c.EnsureSecurityEventsTable(setupCtx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("ClickHouse analytics ready",
		zap.String("database", c.database),
		zap.String("table", SecurityEventsTable),
		zap.Bool("tls_enabled", opts.TLS != nil))
	return c, nil
}

func (c *ClickHouseClient) EnsureSecurityEventsTable(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.conn.Exec(ctx, securityEventsDDL); err != nil {
		return fmt.Errorf("failed to create %s: %w", SecurityEventsTable, err)
	}
	return nil
}

// InsertSecurityEvents writes rows in one native batch.
func (c *ClickHouseClient) InsertSecurityEvents(ctx context.Context, rows []SecurityEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	batch, err := c.conn.PrepareBatch(ctx, securityEventsInsert)
	if err != nil {
		return fmt.Errorf("failed to prepare security events batch: %w", err)
	}
	for _, row := range rows {
		if err := batch.Append(row.values()...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append security event %s: %w", row.EventID, err)
		}
	}
	return batch.Send()
}

func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn.Ping(ctx)
}

func (c *ClickHouseClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		util.Error("Failed to close ClickHouse connection", util.ErrorField(err))
	}
	return err
}

// extractHostPort strips the scheme and adds the native port when missing.
func extractHostPort(url string) string {
	secure := strings.HasPrefix(url, "https://")
	hostPort := strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://")
	if strings.Contains(hostPort, ":") {
		return hostPort
	}
	if secure {
		return hostPort + ":9440"
	}
	return hostPort + ":9000"
}

func extractHostname(url string) string {
	host, _, _ := strings.Cut(extractHostPort(url), ":")
	return host
}
