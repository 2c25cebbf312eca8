package throttle_test

import (
	"context"
	"testing"
	"time"

	"admin-auth-service/internal/throttle"
	"admin-auth-service/internal/throttle/throttletest"

	"github.com/filecoin-project/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	throttletest.Run(t, func(t *testing.T) throttle.Store { return throttle.NewMemoryStore() })
}

func TestThrottleNormalizesIdentity(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	th := throttle.NewWithPolicy(throttle.NewMemoryStore(), throttle.Policy{MaxFailures: 2, LockoutDuration: time.Minute}, mock)

	for _, id := range []string{"A@X.com", " a@x.com"} {
		d, err := th.Check(ctx, id)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		_, err = th.RecordAttempt(ctx, id, false)
		require.NoError(t, err)
	}

	d, err := th.Check(ctx, "a@X.COM")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 60, d.RetryAfterSeconds())

	mock.Add(61 * time.Second)
	d, err = th.Check(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDecisionRetryAfterRoundsUp(t *testing.T) {
	assert.Equal(t, 0, throttle.Decision{Allowed: true}.RetryAfterSeconds())
	assert.Equal(t, 1, throttle.Decision{RetryAfter: 10 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 300, throttle.Decision{RetryAfter: 299500 * time.Millisecond}.RetryAfterSeconds())
}

func TestMemorySweepKeepsLockedEntries(t *testing.T) {
	ctx := context.Background()
	s := throttle.NewMemoryStore()
	p := throttle.Policy{MaxFailures: 1, LockoutDuration: 48 * time.Hour}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	_, _ = s.Reserve(ctx, "locked", now, p)
	_, _ = s.Record(ctx, "locked", false, now, p)
	_, _ = s.Reserve(ctx, "idle", now, throttle.Policy{MaxFailures: 5, LockoutDuration: time.Minute})

	assert.Equal(t, 1, s.Sweep(now.Add(25*time.Hour)))
	st, err := s.State(ctx, "locked", now.Add(25*time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, st.LockedUntil)
}

func TestMemoryCooldown(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	c := throttle.NewMemoryCooldown(mock)

	ok, err := c.Acquire(ctx, "a@x.com", 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = c.Acquire(ctx, "a@x.com", 2*time.Minute)
	assert.False(t, ok)
	ok, _ = c.Acquire(ctx, "b@x.com", 2*time.Minute)
	assert.True(t, ok)

	mock.Add(2 * time.Minute)
	ok, _ = c.Acquire(ctx, "a@x.com", 2*time.Minute)
	assert.True(t, ok)
}
