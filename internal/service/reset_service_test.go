package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/events"
)

func TestRequestResetUnknownEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.factory.ResetService().RequestReset(ctx, "stranger@x.com", "198.51.100.7"))
	f.notifier.none(t)

	tokens, err := f.store.ResetTokens().ListByAccount(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
	assert.NotContains(t, f.events.types(), events.PasswordResetRequested)
}

func TestResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resets := f.factory.ResetService()
	session := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")

	require.NoError(t, resets.RequestReset(ctx, " A@x.com", "203.0.113.1"))
	token := f.notifier.next(t)
	require.NotEmpty(t, token)

	tokens, err := f.store.ResetTokens().ListByAccount(ctx, f.admin.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, start.Add(time.Hour), tokens[0].ExpiresAt)
	assert.NotEqual(t, token, tokens[0].TokenHash)

	require.NoError(t, resets.RedeemReset(ctx, token, "Fresh-Password-2"))

	_, err = f.factory.SessionService().Verify(ctx, session.Token)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession, "every session ends on reset")

	_, err = f.login(adminEmail, adminPassword, "203.0.113.1")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	f.mustLogin(t, adminEmail, "Fresh-Password-2", "203.0.113.1")

	// Single use, even before expiry.
	err = resets.RedeemReset(ctx, token, "Another-Password-3")
	assert.ErrorIs(t, err, autherr.ErrInvalidResetToken)
	assert.Contains(t, f.events.types(), events.PasswordResetCompleted)
}

func TestRedeemUsedTokenIgnoresPasswordPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resets := f.factory.ResetService()

	require.NoError(t, resets.RequestReset(ctx, adminEmail, ""))
	token := f.notifier.next(t)
	require.NoError(t, resets.RedeemReset(ctx, token, "Fresh-Password-2"))

	assert.ErrorIs(t, resets.RedeemReset(ctx, token, "weak"), autherr.ErrInvalidResetToken)
}

func TestRedeemExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resets := f.factory.ResetService()

	require.NoError(t, resets.RequestReset(ctx, adminEmail, ""))
	token := f.notifier.next(t)

	f.clock.Add(time.Hour)
	f.clock.Add(time.Second)
	assert.ErrorIs(t, resets.RedeemReset(ctx, token, "Fresh-Password-2"), autherr.ErrExpiredResetToken)
	f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")
}

func TestRedeemWeakPasswordKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resets := f.factory.ResetService()

	require.NoError(t, resets.RequestReset(ctx, adminEmail, ""))
	token := f.notifier.next(t)

	assert.ErrorIs(t, resets.RedeemReset(ctx, token, "password"), autherr.ErrWeakPassword)
	require.NoError(t, resets.RedeemReset(ctx, token, "Fresh-Password-2"))
}

func TestRedeemUnknownToken(t *testing.T) {
	f := newFixture(t)
	resets := f.factory.ResetService()
	assert.ErrorIs(t, resets.RedeemReset(context.Background(), "", "Fresh-Password-2"), autherr.ErrInvalidResetToken)
	assert.ErrorIs(t, resets.RedeemReset(context.Background(), "nope", "Fresh-Password-2"), autherr.ErrInvalidResetToken)
}

func TestResetCooldownAndSupersede(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resets := f.factory.ResetService()

	require.NoError(t, resets.RequestReset(ctx, adminEmail, ""))
	first := f.notifier.next(t)

	// Within the cooldown a repeat succeeds but sends nothing.
	require.NoError(t, resets.RequestReset(ctx, adminEmail, ""))
	f.notifier.none(t)

	f.clock.Add(2 * time.Minute)
	require.NoError(t, resets.RequestReset(ctx, adminEmail, ""))
	second := f.notifier.next(t)
	require.NotEqual(t, first, second)

	assert.ErrorIs(t, resets.RedeemReset(ctx, first, "Fresh-Password-2"), autherr.ErrInvalidResetToken)
	require.NoError(t, resets.RedeemReset(ctx, second, "Fresh-Password-2"))
}

func TestConcurrentRedeemSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resets := f.factory.ResetService()

	require.NoError(t, resets.RequestReset(ctx, adminEmail, ""))
	token := f.notifier.next(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := resets.RedeemReset(ctx, token, "Fresh-Password-2")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, failures, workers-1)
	for _, err := range failures {
		assert.ErrorIs(t, err, autherr.ErrInvalidResetToken)
	}
}
