package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/events"
	"admin-auth-service/internal/models"
)

func TestLoginLocksAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.login("A@X.com", "wrong-password", "198.51.100.7")
		require.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	}

	// Correct password, still rejected.
	_, err := f.login(adminEmail, adminPassword, "198.51.100.7")
	require.ErrorIs(t, err, autherr.ErrAccountLocked)
	assert.Equal(t, 300, autherr.RetryAfter(err))

	history, err := f.store.LoginAttempts().List(ctx, models.AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, history, 6)
	assert.Equal(t, models.FailureLocked, history[0].FailureReason)
	assert.Empty(t, history[0].AccountID)
	for _, a := range history[1:] {
		assert.Equal(t, models.FailureInvalidCredentials, a.FailureReason)
		assert.Equal(t, f.admin.ID, a.AccountID)
	}

	f.clock.Add(5*time.Minute + time.Second)
	res := f.mustLogin(t, adminEmail, adminPassword, "198.51.100.7")
	now := f.clock.Now().UTC()
	assert.Equal(t, now.Add(24*time.Hour), res.Session.ExpiresAt)
	assert.NotEmpty(t, res.Token)
	assert.NotEqual(t, res.Token, res.Session.TokenHash)

	assert.Contains(t, f.events.types(), events.LoginLocked)
	assert.Contains(t, f.events.types(), events.LoginSucceeded)
}

func TestLoginCounterResetsAfterLockExpires(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		_, _ = f.login(adminEmail, "wrong-password", "198.51.100.7")
	}
	f.clock.Add(6 * time.Minute)

	_, err := f.login(adminEmail, "wrong-password", "198.51.100.7")
	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	// One failure after the lock is not enough to relock.
	f.mustLogin(t, adminEmail, adminPassword, "198.51.100.7")
}

func TestLoginSuccessClearsFailures(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		_, _ = f.login(adminEmail, "wrong-password", "198.51.100.7")
	}
	f.mustLogin(t, adminEmail, adminPassword, "198.51.100.7")

	// Four more failures stay below the limit once the count was cleared.
	for i := 0; i < 4; i++ {
		_, _ = f.login(adminEmail, "wrong-password", "198.51.100.7")
	}
	status, err := f.factory.AuthService().LockStatus(context.Background(), adminEmail)
	require.NoError(t, err)
	assert.Equal(t, models.LockStatus{}, status)
}

func TestLockStatusReportsRemainingLock(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		_, _ = f.login(adminEmail, "wrong-password", "198.51.100.7")
	}
	f.clock.Add(90 * time.Second)

	status, err := f.factory.AuthService().LockStatus(context.Background(), " A@X.com ")
	require.NoError(t, err)
	assert.True(t, status.Locked)
	require.NotNil(t, status.LockedUntil)
	assert.Equal(t, start.Add(5*time.Minute), status.LockedUntil.UTC())
	assert.Equal(t, 210, status.RetryAfterSeconds)
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.login("nobody@x.com", adminPassword, "198.51.100.7")
	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	history, err := f.store.LoginAttempts().List(context.Background(), models.AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Empty(t, history[0].AccountID)
	assert.Equal(t, "nobody@x.com", history[0].Email)
}

func TestLoginRequiresInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.login(" ", "x", "")
	assert.ErrorIs(t, err, autherr.ErrInvalidInput)
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")
	b := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.2")

	n, err := f.factory.AuthService().LogoutAll(ctx, f.authContext(t, a.Token), "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, token := range []string{a.Token, b.Token} {
		_, err := f.factory.SessionService().Verify(ctx, token)
		assert.ErrorIs(t, err, autherr.ErrInvalidSession)
	}
}

func TestLogoutAllForOtherAccountNeedsAdmin(t *testing.T) {
	f := newFixture(t)
	f.createManager(t)
	ctx := context.Background()

	manager := f.authContext(t, f.mustLogin(t, managerEmail, managerPass, "203.0.113.5").Token)
	_, err := f.factory.AuthService().LogoutAll(ctx, manager, f.admin.ID)
	assert.ErrorIs(t, err, autherr.ErrPermissionDenied)

	admin := f.authContext(t, f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1").Token)
	n, err := f.factory.AuthService().LogoutAll(ctx, admin, manager.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	current := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")
	other := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.2")
	auth := f.authContext(t, current.Token)
	svc := f.factory.AuthService()

	err := svc.ChangePassword(ctx, auth, "not-it", "New-Password-1")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, auth, adminPassword, "short")
	assert.ErrorIs(t, err, autherr.ErrWeakPassword)

	require.NoError(t, svc.ChangePassword(ctx, auth, adminPassword, "New-Password-1"))

	_, err = f.factory.SessionService().Verify(ctx, current.Token)
	assert.NoError(t, err, "the session that changed the password stays signed in")
	_, err = f.factory.SessionService().Verify(ctx, other.Token)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)

	_, err = f.login(adminEmail, adminPassword, "203.0.113.1")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	f.mustLogin(t, adminEmail, "New-Password-1", "203.0.113.1")
	assert.Contains(t, f.events.types(), events.PasswordChanged)
}

func TestChangePasswordGuessesAreThrottled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")
	auth := f.authContext(t, res.Token)
	svc := f.factory.AuthService()

	for i := 0; i < 5; i++ {
		err := svc.ChangePassword(ctx, auth, "guess-"+string(rune('a'+i)), "New-Password-1")
		require.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	}

	err := svc.ChangePassword(ctx, auth, adminPassword, "New-Password-1")
	require.ErrorIs(t, err, autherr.ErrAccountLocked)
	assert.Equal(t, 300, autherr.RetryAfter(err))

	_, err = f.login(adminEmail, adminPassword, "203.0.113.1")
	assert.ErrorIs(t, err, autherr.ErrAccountLocked)

	history, err := f.store.LoginAttempts().List(ctx, models.AttemptFilter{FailuresOnly: true})
	require.NoError(t, err)
	reauth := 0
	for _, a := range history {
		if a.FailureReason == models.FailureReauthentication {
			reauth++
			assert.Equal(t, f.admin.ID, a.AccountID)
			assert.Equal(t, "203.0.113.1", a.IPAddress)
		}
	}
	assert.Equal(t, 5, reauth)
	assert.Contains(t, f.events.types(), events.LoginLocked)
}

func TestAuthenticateDeletedAccount(t *testing.T) {
	f := newFixture(t)
	manager := f.createManager(t)
	res := f.mustLogin(t, managerEmail, managerPass, "203.0.113.5")

	require.NoError(t, f.store.Accounts().Delete(context.Background(), manager.ID))
	_, err := f.factory.AuthService().Authenticate(context.Background(), res.Token)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)
}

func TestProfileHidesHash(t *testing.T) {
	f := newFixture(t)
	auth := f.authContext(t, f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1").Token)
	p := f.factory.AuthService().Profile(auth)
	assert.Equal(t, models.Profile{ID: f.admin.ID, Email: adminEmail, Role: models.RoleAdmin}, p)
}
