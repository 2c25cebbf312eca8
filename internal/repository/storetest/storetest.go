// Package storetest is a behavioural suite every repository.Store backend
// must pass. Backend tests call Run with a constructor for a fresh store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Base is the reference instant used by the suite. Whole seconds keep
// round-trips exact on every backend.
var Base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("DeactivateAll", func(t *testing.T) { testDeactivateAll(t, newStore(t)) })
	t.Run("ResetTokens", func(t *testing.T) { testResetTokens(t, newStore(t)) })
	t.Run("ConcurrentRedeem", func(t *testing.T) { testConcurrentRedeem(t, newStore(t)) })
	t.Run("LoginAttempts", func(t *testing.T) { testLoginAttempts(t, newStore(t)) })
}

func NewAccount(email string, role models.Role) *models.AdminAccount {
	return &models.AdminAccount{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "$argon2id$hash-of-" + email,
		Role:         role,
		CreatedAt:    Base,
		UpdatedAt:    Base,
	}
}

func NewSession(accountID string, createdAt time.Time) *models.Session {
	return &models.Session{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		TokenHash:    "tok-" + uuid.NewString(),
		IPAddress:    "203.0.113.10",
		UserAgent:    "Mozilla/5.0",
		CreatedAt:    createdAt,
		LastActivity: createdAt,
		ExpiresAt:    createdAt.Add(24 * time.Hour),
		IsActive:     true,
	}
}

func testAccounts(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Accounts()

	a := NewAccount("owner@bistro.example", models.RoleAdmin)
	require.NoError(t, repo.Create(ctx, a))

	dup := NewAccount("owner@bistro.example", models.RoleManager)
	assert.ErrorIs(t, repo.Create(ctx, dup), repository.ErrDuplicate)

	got, err := repo.GetByEmail(ctx, "owner@bistro.example")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.Equal(t, a.PasswordHash, got.PasswordHash)

	_, err = repo.GetByEmail(ctx, "nobody@bistro.example")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	b := NewAccount("chef@bistro.example", models.RoleManager)
	b.CreatedAt = Base.Add(time.Minute)
	require.NoError(t, repo.Create(ctx, b))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)

	later := Base.Add(time.Hour)
	require.NoError(t, repo.UpdatePasswordHash(ctx, b.ID, "new-hash", later))
	got, err = repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.True(t, got.UpdatedAt.Equal(later))
	assert.ErrorIs(t, repo.UpdatePasswordHash(ctx, uuid.NewString(), "x", later), repository.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, b.ID))
	assert.ErrorIs(t, repo.Delete(ctx, b.ID), repository.ErrNotFound)
	_, err = repo.GetByEmail(ctx, "chef@bistro.example")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// The email is free again once the account is gone.
	require.NoError(t, repo.Create(ctx, NewAccount("chef@bistro.example", models.RoleManager)))
}

func testSessions(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Sessions()
	accountID := uuid.NewString()

	sess := NewSession(accountID, Base)
	require.NoError(t, repo.Create(ctx, sess))

	got, err := repo.GetByTokenHash(ctx, sess.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.True(t, got.IsActive)
	assert.True(t, got.ExpiresAt.Equal(sess.ExpiresAt))

	_, err = repo.GetByTokenHash(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	touched := Base.Add(10 * time.Minute)
	require.NoError(t, repo.Touch(ctx, sess.ID, touched))
	got, err = repo.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(touched))

	extended := Base.Add(30 * time.Hour)
	require.NoError(t, repo.Extend(ctx, sess.ID, extended, Base.Add(6*time.Hour)))
	got, err = repo.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(extended))

	expired := NewSession(accountID, Base.Add(-48*time.Hour))
	require.NoError(t, repo.Create(ctx, expired))

	active, err := repo.ListActive(ctx, accountID, Base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sess.ID, active[0].ID)

	count, err := repo.CountActive(ctx, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err := repo.DeactivateExpired(ctx, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = repo.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	n, err = repo.DeactivateExpired(ctx, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	was, err := repo.Deactivate(ctx, sess.ID, models.RevokedLogout)
	require.NoError(t, err)
	assert.True(t, was)
	was, err = repo.Deactivate(ctx, sess.ID, models.RevokedLogout)
	require.NoError(t, err)
	assert.False(t, was)
	_, err = repo.Deactivate(ctx, uuid.NewString(), models.RevokedLogout)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, repo.Extend(ctx, sess.ID, extended, Base), repository.ErrConflict)

	active, err = repo.ListActive(ctx, accountID, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func testDeactivateAll(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.Sessions()
	accountID := uuid.NewString()
	other := NewSession(uuid.NewString(), Base)
	require.NoError(t, repo.Create(ctx, other))

	var ids []string
	for i := 0; i < 3; i++ {
		sess := NewSession(accountID, Base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, sess))
		ids = append(ids, sess.ID)
	}

	n, err := repo.DeactivateAll(ctx, accountID, ids[0], models.RevokedLogoutAll)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	active, err := repo.ListActive(ctx, accountID, Base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ids[0], active[0].ID)

	n, err = repo.DeactivateAll(ctx, accountID, "", models.RevokedLogoutAll)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive, "other accounts are untouched")
}

func newResetToken(accountID string, createdAt time.Time) *models.PasswordResetToken {
	return &models.PasswordResetToken{
		ID:        uuid.NewString(),
		AccountID: accountID,
		TokenHash: "reset-" + uuid.NewString(),
		ExpiresAt: createdAt.Add(time.Hour),
		CreatedAt: createdAt,
	}
}

func testResetTokens(t *testing.T, s repository.Store) {
	ctx := context.Background()
	acct := NewAccount("owner@bistro.example", models.RoleAdmin)
	require.NoError(t, s.Accounts().Create(ctx, acct))
	repo := s.ResetTokens()

	first := newResetToken(acct.ID, Base)
	require.NoError(t, repo.Create(ctx, first))
	n, err := repo.InvalidateUnused(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByTokenHash(ctx, first.TokenHash)
	require.NoError(t, err)
	assert.True(t, got.Used, "superseded tokens read as used")

	_, err = s.RedeemPasswordReset(ctx, first.TokenHash, "never", Base)
	assert.ErrorIs(t, err, repository.ErrConflict)

	second := newResetToken(acct.ID, Base.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, second))

	_, err = s.RedeemPasswordReset(ctx, "unknown", "x", Base)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.RedeemPasswordReset(ctx, second.TokenHash, "x", second.ExpiresAt.Add(time.Second))
	assert.ErrorIs(t, err, repository.ErrConflict, "expired tokens cannot be redeemed")

	redeemed, err := s.RedeemPasswordReset(ctx, second.TokenHash, "fresh-hash", Base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, acct.ID, redeemed.AccountID)
	assert.True(t, redeemed.Used)

	updated, err := s.Accounts().GetByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-hash", updated.PasswordHash)

	_, err = s.RedeemPasswordReset(ctx, second.TokenHash, "again", Base.Add(3*time.Minute))
	assert.ErrorIs(t, err, repository.ErrConflict)

	live := newResetToken(acct.ID, Base.Add(2*time.Hour))
	require.NoError(t, repo.Create(ctx, live))
	tokens, err := repo.ListByAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, tokens, 3)

	purged, err := repo.PurgeStale(ctx, Base.Add(2*time.Hour), Base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, purged)
	_, err = repo.GetByTokenHash(ctx, live.TokenHash)
	assert.NoError(t, err)
}

func testConcurrentRedeem(t *testing.T, s repository.Store) {
	ctx := context.Background()
	acct := NewAccount("owner@bistro.example", models.RoleAdmin)
	require.NoError(t, s.Accounts().Create(ctx, acct))
	tok := newResetToken(acct.ID, Base)
	require.NoError(t, s.ResetTokens().Create(ctx, tok))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.RedeemPasswordReset(ctx, tok.TokenHash, fmt.Sprintf("hash-%d", i), Base.Add(time.Minute))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				others = append(others, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range others {
		assert.True(t, errors.Is(err, repository.ErrConflict), "unexpected error: %v", err)
	}
}

func testLoginAttempts(t *testing.T, s repository.Store) {
	ctx := context.Background()
	repo := s.LoginAttempts()

	for i := 0; i < 6; i++ {
		a := &models.LoginAttempt{
			ID:        uuid.NewString(),
			Email:     "owner@bistro.example",
			IPAddress: "198.51.100.7",
			UserAgent: "curl/8",
			Success:   i%3 == 0,
			CreatedAt: Base.Add(time.Duration(i) * time.Hour),
		}
		if !a.Success {
			a.FailureReason = models.FailureInvalidCredentials
		}
		require.NoError(t, repo.Record(ctx, a))
	}

	all, err := repo.List(ctx, models.AttemptFilter{Since: Base, Until: Base.Add(10 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].CreatedAt.After(all[i].CreatedAt), "newest first")
	}

	failures, err := repo.List(ctx, models.AttemptFilter{Since: Base, Until: Base.Add(10 * time.Hour), FailuresOnly: true})
	require.NoError(t, err)
	assert.Len(t, failures, 4)
	for _, a := range failures {
		assert.False(t, a.Success)
		assert.Equal(t, models.FailureInvalidCredentials, a.FailureReason)
	}

	window, err := repo.List(ctx, models.AttemptFilter{Since: Base.Add(2 * time.Hour), Until: Base.Add(4 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, window, 3)

	limited, err := repo.List(ctx, models.AttemptFilter{Since: Base, Until: Base.Add(10 * time.Hour), Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.True(t, limited[0].CreatedAt.Equal(Base.Add(5*time.Hour)))
}
