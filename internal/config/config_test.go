package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 5, cfg.Throttle.MaxFailures)
	assert.Equal(t, 5*time.Minute, cfg.Throttle.LockoutDuration)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 12*time.Hour, cfg.Session.RefreshWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.MaxLifetime)
	assert.Equal(t, "admin_session", cfg.Session.CookieName)
	assert.Equal(t, time.Hour, cfg.Reset.TokenTTL)
	assert.Equal(t, 2*time.Minute, cfg.Reset.Cooldown)
	assert.Same(t, cfg, Get())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("THROTTLE_MAX_FAILURES", "3")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("SESSION_COOKIE_SECURE", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 3, cfg.Throttle.MaxFailures)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.False(t, cfg.Session.CookieSecure)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown storage", func(c *Config) { c.Storage.Driver = "postgres" }, "STORAGE_DRIVER"},
		{"unknown throttle", func(c *Config) { c.Storage.Throttle = "etcd" }, "THROTTLE_DRIVER"},
		{"unknown dialect", func(c *Config) { c.Storage.Driver = "sql"; c.SQL.Dialect = "oracle" }, "SQL_DIALECT"},
		{"zero failures", func(c *Config) { c.Throttle.MaxFailures = 0 }, "THROTTLE_MAX_FAILURES"},
		{"lifetime below ttl", func(c *Config) { c.Session.MaxLifetime = time.Hour }, "SESSION_MAX_LIFETIME"},
		{"production without pepper", func(c *Config) { c.Environment = "production"; c.Hashing.Pepper = "" }, "PASSWORD_PEPPER"},
		{"kms without key", func(c *Config) { c.KMS.Enabled = true; c.KMS.KeyID = "" }, "KMS_KEY_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestServerAddress(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "127.0.0.1", Port: 9000}}
	assert.Equal(t, "127.0.0.1:9000", cfg.GetServerAddress())
	assert.False(t, cfg.IsProduction())
}
