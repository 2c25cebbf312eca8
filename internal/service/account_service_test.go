package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/events"
	"admin-auth-service/internal/models"
)

func TestBootstrapOnlyWhenEmpty(t *testing.T) {
	f := newFixture(t)
	created, err := f.factory.AccountService().Bootstrap(context.Background(), "second@x.com", adminPassword)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.RoleAdmin, f.admin.Role)
}

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accounts := f.factory.AccountService()
	admin := f.authContext(t, f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1").Token)

	acct, err := accounts.Create(ctx, admin, CreateAccountRequest{Email: " Chef@X.com ", Password: managerPass})
	require.NoError(t, err)
	assert.Equal(t, "chef@x.com", acct.Email)
	assert.Equal(t, models.RoleManager, acct.Role)
	assert.NotContains(t, acct.PasswordHash, managerPass)

	_, err = accounts.Create(ctx, admin, CreateAccountRequest{Email: "CHEF@x.com", Password: managerPass})
	assert.ErrorIs(t, err, autherr.ErrDuplicateEmail)

	_, err = accounts.Create(ctx, admin, CreateAccountRequest{Email: "sous@x.com", Password: "abcdefgh"})
	assert.ErrorIs(t, err, autherr.ErrWeakPassword)

	_, err = accounts.Create(ctx, admin, CreateAccountRequest{Email: "not-an-email", Password: managerPass})
	assert.ErrorIs(t, err, autherr.ErrInvalidInput)

	_, err = accounts.Create(ctx, admin, CreateAccountRequest{Email: "sous@x.com", Password: managerPass, Role: "owner"})
	assert.ErrorIs(t, err, autherr.ErrInvalidInput)

	list, err := accounts.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Contains(t, f.events.types(), events.AccountCreated)
}

func TestManagerCannotManageAccounts(t *testing.T) {
	f := newFixture(t)
	f.createManager(t)
	ctx := context.Background()
	manager := f.authContext(t, f.mustLogin(t, managerEmail, managerPass, "203.0.113.5").Token)

	_, err := f.factory.AccountService().Create(ctx, manager, CreateAccountRequest{Email: "x@x.com", Password: managerPass})
	assert.ErrorIs(t, err, autherr.ErrPermissionDenied)

	err = f.factory.AccountService().Delete(ctx, manager, f.admin.ID)
	assert.ErrorIs(t, err, autherr.ErrPermissionDenied)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	manager := f.createManager(t)
	ctx := context.Background()
	accounts := f.factory.AccountService()
	mgrSession := f.mustLogin(t, managerEmail, managerPass, "203.0.113.5")
	admin := f.authContext(t, f.mustLogin(t, adminEmail, adminPassword, "203.0.113.1").Token)

	err := accounts.Delete(ctx, admin, admin.Account.ID)
	assert.ErrorIs(t, err, autherr.ErrSelfDeletionForbidden)

	require.NoError(t, accounts.Delete(ctx, admin, manager.ID))
	_, err = f.store.Accounts().GetByID(ctx, manager.ID)
	assert.Error(t, err)
	_, err = f.factory.SessionService().Verify(ctx, mgrSession.Token)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)

	err = accounts.Delete(ctx, admin, manager.ID)
	assert.ErrorIs(t, err, autherr.ErrNotFound)
	assert.Contains(t, f.events.types(), events.AccountDeleted)
}
