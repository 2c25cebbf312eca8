package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/config"
)

func TestTwoDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	laptop := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")
	phone := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.2")
	sessions := f.factory.SessionService()

	laptopAuth := f.authContext(t, laptop.Token)
	list, err := sessions.ListActive(ctx, f.admin.ID, laptopAuth.Session.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	current := 0
	for _, v := range list {
		if v.IsCurrent {
			current++
			assert.Equal(t, laptop.Session.ID, v.ID)
		}
	}
	assert.Equal(t, 1, current)

	phoneAuth := f.authContext(t, phone.Token)
	list, err = sessions.ListActive(ctx, f.admin.ID, phoneAuth.Session.ID)
	require.NoError(t, err)
	for _, v := range list {
		assert.Equal(t, v.ID == phone.Session.ID, v.IsCurrent)
	}

	err = sessions.Terminate(ctx, laptop.Session.ID, laptopAuth)
	assert.ErrorIs(t, err, autherr.ErrCannotTerminateCurrentSession)

	require.NoError(t, sessions.Terminate(ctx, phone.Session.ID, laptopAuth))
	_, err = sessions.Verify(ctx, phone.Token)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)

	list, err = sessions.ListActive(ctx, f.admin.ID, laptopAuth.Session.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTerminateOtherAccountsSession(t *testing.T) {
	f := newFixture(t)
	f.createManager(t)
	ctx := context.Background()
	mgr := f.mustLogin(t, managerEmail, managerPass, "203.0.113.5")
	admin := f.authContext(t, f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1").Token)

	err := f.factory.SessionService().Terminate(ctx, mgr.Session.ID, admin)
	assert.ErrorIs(t, err, autherr.ErrNotFound)

	_, err = f.factory.SessionService().Verify(ctx, mgr.Token)
	assert.NoError(t, err)
}

func TestVerifyAfterTerminateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")

	_, err := f.factory.SessionService().TerminateAll(ctx, f.admin.ID, "", "logout_all")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.factory.SessionService().Verify(ctx, res.Token)
		assert.ErrorIs(t, err, autherr.ErrInvalidSession)
		f.clock.Add(time.Minute)
	}
}

func TestVerifyRejectsUnknownAndExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := f.factory.SessionService()

	_, err := sessions.Verify(ctx, "")
	assert.ErrorIs(t, err, autherr.ErrNotAuthenticated)
	_, err = sessions.Verify(ctx, "made-up-token")
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)

	res := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")
	f.clock.Add(24 * time.Hour)
	_, err = sessions.Verify(ctx, res.Token)
	require.NoError(t, err, "valid up to and including expires_at")

	f.clock.Add(time.Second)
	_, err = sessions.Verify(ctx, res.Token)
	assert.ErrorIs(t, err, autherr.ErrExpiredSession)
	assert.True(t, autherr.IsSessionFailure(err))
}

func TestVerifyTouchesLastActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")

	f.clock.Add(time.Hour)
	session, err := f.factory.SessionService().Verify(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), session.LastActivity)

	stored, err := f.store.Sessions().GetByID(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), stored.LastActivity)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := f.factory.SessionService()
	res := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")
	original := res.Session.ExpiresAt

	// Outside the refresh window nothing changes.
	f.clock.Add(time.Hour)
	s, err := sessions.Refresh(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, original, s.ExpiresAt)

	f.clock.Add(12 * time.Hour)
	s, err = sessions.Refresh(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().UTC().Add(24*time.Hour), s.ExpiresAt)

	// Past expiry a refresh cannot revive the session.
	f.clock.Add(25 * time.Hour)
	_, err = sessions.Refresh(ctx, res.Token)
	assert.ErrorIs(t, err, autherr.ErrExpiredSession)
}

func TestRefreshCappedByMaxLifetime(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Session.MaxLifetime = 30 * time.Hour })
	ctx := context.Background()
	res := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")

	f.clock.Add(13 * time.Hour)
	s, err := f.factory.SessionService().Refresh(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, start.Add(30*time.Hour), s.ExpiresAt)

	f.clock.Add(17*time.Hour + time.Second)
	_, err = f.factory.SessionService().Verify(ctx, res.Token)
	assert.ErrorIs(t, err, autherr.ErrExpiredSession)
}

func TestLogoutEndsOnlyThatSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1")
	b := f.mustLogin(t, adminEmail, adminPassword, "203.0.113.2")

	require.NoError(t, f.factory.AuthService().Logout(ctx, f.authContext(t, a.Token)))
	_, err := f.factory.SessionService().Verify(ctx, a.Token)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)
	_, err = f.factory.SessionService().Verify(ctx, b.Token)
	assert.NoError(t, err)
}
