package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository/memory"
	"admin-auth-service/internal/repository/storetest"
	"admin-auth-service/internal/throttle"
)

func TestSweepRetiresExpiredState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	mock := clock.NewMock()
	mock.Set(storetest.Base)

	acct := storetest.NewAccount("a@x.com", models.RoleAdmin)
	require.NoError(t, store.Accounts().Create(ctx, acct))

	live := storetest.NewSession(acct.ID, storetest.Base)
	dead := storetest.NewSession(acct.ID, storetest.Base.Add(-25*time.Hour))
	require.NoError(t, store.Sessions().Create(ctx, live))
	require.NoError(t, store.Sessions().Create(ctx, dead))

	old := &models.PasswordResetToken{
		ID: "t-old", AccountID: acct.ID, TokenHash: "h-old",
		CreatedAt: storetest.Base.Add(-48 * time.Hour), ExpiresAt: storetest.Base.Add(-47 * time.Hour),
	}
	fresh := &models.PasswordResetToken{
		ID: "t-new", AccountID: acct.ID, TokenHash: "h-new",
		CreatedAt: storetest.Base, ExpiresAt: storetest.Base.Add(time.Hour),
	}
	require.NoError(t, store.ResetTokens().Create(ctx, old))
	require.NoError(t, store.ResetTokens().Create(ctx, fresh))

	s := New(store, throttle.NewMemoryStore(), time.Minute, mock)
	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredSessions)
	assert.Equal(t, 1, res.PurgedTokens)

	got, err := store.Sessions().GetByID(ctx, dead.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, models.RevokedExpired, got.RevokedReason)

	got, err = store.Sessions().GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	// A second pass finds nothing new.
	res, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestRunStopsWithContext(t *testing.T) {
	mock := clock.NewMock()
	s := New(memory.NewStore(), nil, time.Minute, mock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	mock.Add(time.Minute)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
