// Package throttletest holds the behaviour suite shared by throttle.Store
// implementations.
package throttletest

import (
	"context"
	"sync"
	"testing"
	"time"

	"admin-auth-service/internal/throttle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var policy = throttle.Policy{MaxFailures: 5, LockoutDuration: 5 * time.Minute}

func Run(t *testing.T, newStore func(t *testing.T) throttle.Store) {
	t.Run("LocksAfterThreshold", func(t *testing.T) { testLocksAfterThreshold(t, newStore(t)) })
	t.Run("SuccessResets", func(t *testing.T) { testSuccessResets(t, newStore(t)) })
	t.Run("CounterResetsAfterLockExpiry", func(t *testing.T) { testResetAfterExpiry(t, newStore(t)) })
	t.Run("KeysAreIndependent", func(t *testing.T) { testIndependentKeys(t, newStore(t)) })
	t.Run("ConcurrentReservations", func(t *testing.T) { testConcurrent(t, newStore(t)) })
}

func fail(t *testing.T, s throttle.Store, key string, now time.Time) throttle.Outcome {
	t.Helper()
	d, err := s.Reserve(context.Background(), key, now, policy)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	out, err := s.Record(context.Background(), key, false, now, policy)
	require.NoError(t, err)
	return out
}

func testLocksAfterThreshold(t *testing.T, s throttle.Store) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 4; i++ {
		out := fail(t, s, "a@x.com", now)
		assert.Equal(t, i, out.FailedCount)
		assert.False(t, out.Locked)
	}
	out := fail(t, s, "a@x.com", now)
	assert.True(t, out.Locked)

	d, err := s.Reserve(ctx, "a@x.com", now.Add(time.Second), policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 299, d.RetryAfterSeconds())

	st, err := s.State(ctx, "a@x.com", now.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, st.LockedUntil)
	assert.True(t, st.LockedUntil.Equal(now.Add(5*time.Minute)))
}

func testSuccessResets(t *testing.T, s throttle.Store) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		fail(t, s, "a@x.com", now)
	}
	d, err := s.Reserve(ctx, "a@x.com", now, policy)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	_, err = s.Record(ctx, "a@x.com", true, now, policy)
	require.NoError(t, err)

	st, err := s.State(ctx, "a@x.com", now)
	require.NoError(t, err)
	assert.Zero(t, st.FailedCount)
	assert.Nil(t, st.LockedUntil)

	// A fresh run of failures is needed to lock again.
	for i := 0; i < 4; i++ {
		assert.False(t, fail(t, s, "a@x.com", now).Locked)
	}
}

func testResetAfterExpiry(t *testing.T, s throttle.Store) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		fail(t, s, "a@x.com", now)
	}
	later := now.Add(5*time.Minute + time.Second)

	out := fail(t, s, "a@x.com", later)
	assert.Equal(t, 1, out.FailedCount, "counter restarts from zero after the lock expires")
	assert.False(t, out.Locked)

	d, err := s.Reserve(ctx, "a@x.com", later, policy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func testIndependentKeys(t *testing.T, s throttle.Store) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		fail(t, s, "a@x.com", now)
	}

	d, err := s.Reserve(ctx, "b@x.com", now, policy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func testConcurrent(t *testing.T, s throttle.Store) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := s.Reserve(ctx, "a@x.com", now, policy)
			assert.NoError(t, err)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, policy.MaxFailures, allowed)
}
