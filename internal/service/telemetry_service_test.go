package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/autherr"
)

func TestStatsEmptyWindow(t *testing.T) {
	f := newFixture(t)
	stats, err := f.factory.TelemetryService().GetStats(context.Background(), "24h")
	require.NoError(t, err)

	assert.Zero(t, stats.TotalAttempts)
	assert.Zero(t, stats.SuccessfulAttempts)
	assert.Zero(t, stats.FailedAttempts)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Zero(t, stats.SuspiciousActivity)
	assert.Zero(t, stats.BlockedIPs)
	assert.Zero(t, stats.ActiveSessions)
}

func TestStatsAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	telemetry := f.factory.TelemetryService()

	for i := 0; i < 3; i++ {
		_, _ = f.login(adminEmail, "wrong-password", "198.51.100.7")
		f.clock.Add(time.Second)
	}
	f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")

	stats, err := telemetry.GetStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalAttempts)
	assert.Equal(t, 1, stats.SuccessfulAttempts)
	assert.Equal(t, 3, stats.FailedAttempts)
	assert.Equal(t, 25.0, stats.SuccessRate)
	assert.Equal(t, 1, stats.SuspiciousActivity)
	assert.Zero(t, stats.BlockedIPs)
	assert.Equal(t, 1, stats.ActiveSessions)

	history, err := telemetry.GetLoginHistory(ctx, "7d", false, 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.True(t, history[0].Success, "newest first")

	failures, err := telemetry.GetLoginHistory(ctx, "7d", true, 2)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	for _, a := range failures {
		assert.False(t, a.Success)
	}

	// Attempts age out of the short window.
	f.clock.Add(25 * time.Hour)
	stats, err = telemetry.GetStats(ctx, "24h")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalAttempts)
	assert.Zero(t, stats.ActiveSessions)

	_, err = telemetry.GetStats(ctx, "90d")
	assert.ErrorIs(t, err, autherr.ErrInvalidInput)
}
