package scylla

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"admin-auth-service/internal/bucketing"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"
	"admin-auth-service/internal/util"
)

// Store is the cluster backend. Uniqueness and single-use redemption rely
// on lightweight transactions; everything else is plain writes.
type Store struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
}

var _ repository.Store = (*Store)(nil)

func NewStore(client *ScyllaClient, buckets *bucketing.BucketingManager) *Store {
	return &Store{client: client, buckets: buckets}
}

func (s *Store) Accounts() repository.AccountRepository           { return accountRepo{s.client} }
func (s *Store) Sessions() repository.SessionRepository           { return sessionRepo{s.client} }
func (s *Store) ResetTokens() repository.ResetTokenRepository     { return resetRepo{s.client} }
func (s *Store) LoginAttempts() repository.LoginAttemptRepository { return attemptRepo{s.client, s.buckets} }

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// RedeemPasswordReset consumes the token with a conditional update, then
// writes the new hash. The two rows live in different partitions; if the
// second write fails the token stays consumed and the caller must request
// a new one.
func (s *Store) RedeemPasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.PasswordResetToken, error) {
	tok, err := resetRepo{s.client}.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	applied, err := s.client.ExecCAS(ctx, s.client.Statements.RedeemResetToken, tokenHash, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to redeem reset token: %w", err)
	}
	if !applied {
		return nil, repository.ErrConflict
	}

	if err := (accountRepo{s.client}).UpdatePasswordHash(ctx, tok.AccountID, passwordHash, now); err != nil {
		util.Error("Reset token consumed but password update failed",
			zap.String("account_id", tok.AccountID),
			zap.Error(err))
		return nil, err
	}

	tok.Used = true
	return tok, nil
}

func notFound(err error) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return repository.ErrNotFound
	}
	return err
}

type accountRepo struct{ c *ScyllaClient }

func (r accountRepo) Create(ctx context.Context, a *models.AdminAccount) error {
	applied, err := r.c.ExecCAS(ctx, r.c.Statements.InsertAccountByEmail, a.Email, a.ID)
	if err != nil {
		return fmt.Errorf("failed to reserve email: %w", err)
	}
	if !applied {
		return repository.ErrDuplicate
	}

	err = r.c.Query(ctx, r.c.Statements.InsertAccount,
		a.ID, a.Email, a.PasswordHash, string(a.Role), a.CreatedAt.UTC(), a.UpdatedAt.UTC()).Exec()
	if err != nil {
		_ = r.c.Query(ctx, r.c.Statements.DeleteAccountByEmail, a.Email).Exec()
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r accountRepo) GetByID(ctx context.Context, id string) (*models.AdminAccount, error) {
	a := &models.AdminAccount{}
	var role string
	err := r.c.Query(ctx, r.c.Statements.GetAccountByID, id).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	a.Role = models.Role(role)
	return a, nil
}

func (r accountRepo) GetByEmail(ctx context.Context, email string) (*models.AdminAccount, error) {
	var id string
	if err := r.c.Query(ctx, r.c.Statements.GetAccountIDByEmail, email).Scan(&id); err != nil {
		return nil, notFound(err)
	}
	return r.GetByID(ctx, id)
}

func (r accountRepo) List(ctx context.Context) ([]*models.AdminAccount, error) {
	iter := r.c.Query(ctx, r.c.Statements.ListAccounts).Iter()
	var (
		out  []*models.AdminAccount
		role string
	)
	for {
		a := &models.AdminAccount{}
		if !iter.Scan(&a.ID, &a.Email, &a.PasswordHash, &role, &a.CreatedAt, &a.UpdatedAt) {
			break
		}
		a.Role = models.Role(role)
		out = append(out, a)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r accountRepo) Count(ctx context.Context) (int, error) {
	var n int64
	if err := r.c.Query(ctx, `SELECT COUNT(*) FROM admin_accounts`).Scan(&n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r accountRepo) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	applied, err := r.c.ExecCAS(ctx, r.c.Statements.UpdatePasswordHash, hash, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if !applied {
		return repository.ErrNotFound
	}
	return nil
}

func (r accountRepo) Delete(ctx context.Context, id string) error {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	batch := r.c.Batch(ctx, gocql.LoggedBatch)
	batch.Query(r.c.Statements.DeleteAccount, id)
	batch.Query(r.c.Statements.DeleteAccountByEmail, a.Email)
	if err := r.c.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

type sessionRepo struct{ c *ScyllaClient }

func (r sessionRepo) Create(ctx context.Context, s *models.Session) error {
	batch := r.c.Batch(ctx, gocql.LoggedBatch)
	batch.Query(r.c.Statements.InsertSession,
		s.ID, s.AccountID, s.TokenHash, s.IPAddress, s.UserAgent,
		s.CreatedAt.UTC(), s.LastActivity.UTC(), s.ExpiresAt.UTC(), s.IsActive, s.RevokedReason)
	batch.Query(r.c.Statements.InsertSessionByToken, s.TokenHash, s.ID)
	batch.Query(r.c.Statements.InsertSessionByAccount, s.AccountID, s.ID)

	if err := r.c.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create admin session",
			zap.String("account_id", s.AccountID),
			zap.String("session_id", s.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r sessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	s := &models.Session{}
	err := r.c.Query(ctx, r.c.Statements.GetSessionByID, id).Scan(
		&s.ID, &s.AccountID, &s.TokenHash, &s.IPAddress, &s.UserAgent,
		&s.CreatedAt, &s.LastActivity, &s.ExpiresAt, &s.IsActive, &s.RevokedReason)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r sessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var id string
	if err := r.c.Query(ctx, r.c.Statements.GetSessionIDByToken, tokenHash).Scan(&id); err != nil {
		return nil, notFound(err)
	}
	return r.GetByID(ctx, id)
}

// cas runs a conditional session update; an unapplied update is split into
// missing row and failed condition.
func (r sessionRepo) cas(ctx context.Context, id, stmt string, values ...interface{}) (bool, error) {
	applied, err := r.c.ExecCAS(ctx, stmt, values...)
	if err != nil {
		return false, err
	}
	if applied {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r sessionRepo) Touch(ctx context.Context, id string, lastActivity time.Time) error {
	_, err := r.cas(ctx, id, r.c.Statements.TouchSession, lastActivity.UTC(), id)
	return err
}

func (r sessionRepo) Extend(ctx context.Context, id string, expiresAt, lastActivity time.Time) error {
	applied, err := r.cas(ctx, id, r.c.Statements.ExtendSession, expiresAt.UTC(), lastActivity.UTC(), id)
	if err != nil {
		return err
	}
	if !applied {
		return repository.ErrConflict
	}
	return nil
}

func (r sessionRepo) Deactivate(ctx context.Context, id, reason string) (bool, error) {
	return r.cas(ctx, id, r.c.Statements.DeactivateSession, reason, id)
}

func (r sessionRepo) listIDs(ctx context.Context, accountID string) ([]string, error) {
	iter := r.c.Query(ctx, r.c.Statements.ListSessionIDsByAcct, accountID).Iter()
	var (
		ids []string
		id  string
	)
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list account sessions: %w", err)
	}
	return ids, nil
}

func (r sessionRepo) DeactivateAll(ctx context.Context, accountID, exceptID, reason string) (int, error) {
	ids, err := r.listIDs(ctx, accountID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		applied, err := r.c.ExecCAS(ctx, r.c.Statements.DeactivateSession, reason, id)
		if err != nil {
			return n, fmt.Errorf("failed to deactivate session %s: %w", id, err)
		}
		if applied {
			n++
		}
	}
	return n, nil
}

func (r sessionRepo) ListActive(ctx context.Context, accountID string, now time.Time) ([]*models.Session, error) {
	ids, err := r.listIDs(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var out []*models.Session
	for _, id := range ids {
		s, err := r.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Usable(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

// scan walks the whole sessions table. The admin population is small, so a
// full scan is cheaper than maintaining an expiry index.
func (r sessionRepo) scan(ctx context.Context, fn func(id string, active bool, expiresAt time.Time) error) error {
	iter := r.c.Query(ctx, r.c.Statements.ScanSessions).Iter()
	var (
		id        string
		active    bool
		expiresAt time.Time
	)
	for iter.Scan(&id, &active, &expiresAt) {
		if err := fn(id, active, expiresAt); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return iter.Close()
}

func (r sessionRepo) CountActive(ctx context.Context, now time.Time) (int, error) {
	n := 0
	err := r.scan(ctx, func(_ string, active bool, expiresAt time.Time) error {
		if active && !now.After(expiresAt) {
			n++
		}
		return nil
	})
	return n, err
}

func (r sessionRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	var expired []string
	err := r.scan(ctx, func(id string, active bool, expiresAt time.Time) error {
		if active && now.After(expiresAt) {
			expired = append(expired, id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range expired {
		applied, err := r.c.ExecCAS(ctx, r.c.Statements.DeactivateSession, models.RevokedExpired, id)
		if err != nil {
			return n, err
		}
		if applied {
			n++
		}
	}
	return n, nil
}
