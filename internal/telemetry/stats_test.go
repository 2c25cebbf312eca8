package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/models"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func attempt(ip string, success bool, ago time.Duration) models.LoginAttempt {
	return models.LoginAttempt{IPAddress: ip, Success: success, CreatedAt: now.Add(-ago)}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(Window24h, now.Add(-24*time.Hour), now, nil, 0)

	assert.Zero(t, stats.TotalAttempts)
	assert.Zero(t, stats.SuccessfulAttempts)
	assert.Zero(t, stats.FailedAttempts)
	assert.Zero(t, stats.SuspiciousActivity)
	assert.Zero(t, stats.BlockedIPs)
	assert.Equal(t, 0.0, stats.SuccessRate)
}

func TestComputeStats(t *testing.T) {
	var attempts []models.LoginAttempt
	for i := 0; i < 10; i++ {
		attempts = append(attempts, attempt("198.51.100.1", false, time.Minute))
	}
	for i := 0; i < 3; i++ {
		attempts = append(attempts, attempt("198.51.100.2", false, time.Hour))
	}
	attempts = append(attempts,
		attempt("198.51.100.3", false, time.Hour),
		attempt("198.51.100.3", true, time.Hour),
		attempt("198.51.100.4", true, 2*time.Hour),
		// outside the window
		attempt("198.51.100.9", false, 48*time.Hour),
	)

	stats := ComputeStats(Window24h, now.Add(-24*time.Hour), now, attempts, 4)

	assert.Equal(t, 16, stats.TotalAttempts)
	assert.Equal(t, 2, stats.SuccessfulAttempts)
	assert.Equal(t, 14, stats.FailedAttempts)
	assert.Equal(t, 12.5, stats.SuccessRate)
	assert.Equal(t, 2, stats.SuspiciousActivity)
	assert.Equal(t, 1, stats.BlockedIPs)
	assert.Equal(t, 4, stats.ActiveSessions)
}

func TestSuccessRateRounds(t *testing.T) {
	assert.Equal(t, 33.33, SuccessRate(1, 3))
	assert.Equal(t, 66.67, SuccessRate(2, 3))
	assert.Equal(t, 100.0, SuccessRate(5, 5))
}

func TestParseWindow(t *testing.T) {
	name, d, err := ParseWindow("")
	require.NoError(t, err)
	assert.Equal(t, Window24h, name)
	assert.Equal(t, 24*time.Hour, d)

	_, d, err = ParseWindow("30d")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, d)

	_, _, err = ParseWindow("1y")
	assert.ErrorIs(t, err, autherr.ErrInvalidInput)
}
