package client

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/config"
)

func TestExtractHostPort(t *testing.T) {
	assert.Equal(t, "ch.internal:9000", extractHostPort("ch.internal"))
	assert.Equal(t, "ch.internal:9440", extractHostPort("https://ch.internal"))
	assert.Equal(t, "ch.internal:19000", extractHostPort("http://ch.internal:19000"))
	assert.Equal(t, "ch.internal", extractHostname("https://ch.internal:9440"))
}

func TestClickhouseOptions(t *testing.T) {
	cfg := &config.Config{
		Environment: "development",
		Clickhouse: config.ClickhouseConfig{
			URL:      "ch.internal",
			Username: "auditor",
			Password: "pw",
			Database: "admin_auth",
		},
	}
	opts, err := clickhouseOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"ch.internal:9000"}, opts.Addr)
	assert.Equal(t, "admin_auth", opts.Auth.Database)
	assert.Nil(t, opts.TLS)

	cfg.Clickhouse.URL = "https://ch.internal"
	opts, err = clickhouseOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"ch.internal:9440"}, opts.Addr)
	require.NotNil(t, opts.TLS)
	assert.Equal(t, "ch.internal", opts.TLS.ServerName)
}

func TestSecurityEventRowValues(t *testing.T) {
	at := time.Date(2024, 6, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	values := SecurityEventRow{EventID: "e1", EventType: "login_failed", OccurredAt: at}.values()

	require.Len(t, values, 9)
	assert.Equal(t, "e1", values[0])
	assert.Equal(t, map[string]string{}, values[7])
	assert.Equal(t, time.UTC, values[8].(time.Time).Location())
}

func TestRedisClientRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := WrapRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer rc.Close()
	ctx := context.Background()

	require.NoError(t, rc.HealthCheck(ctx))

	ok, err := rc.SetNX(ctx, "k", "v", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, rc.Del(ctx, "k"))
	_, err = rc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
