package scylla

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"
)

type resetRepo struct{ c *ScyllaClient }

func (r resetRepo) Create(ctx context.Context, t *models.PasswordResetToken) error {
	applied, err := r.c.ExecCAS(ctx, r.c.Statements.InsertResetToken,
		t.TokenHash, t.ID, t.AccountID, t.ExpiresAt.UTC(), t.Used, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	if !applied {
		return repository.ErrDuplicate
	}
	if err := r.c.Query(ctx, r.c.Statements.InsertResetTokenByAccount, t.AccountID, t.TokenHash).Exec(); err != nil {
		return fmt.Errorf("failed to index reset token: %w", err)
	}
	return nil
}

func (r resetRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	t := &models.PasswordResetToken{}
	err := r.c.Query(ctx, r.c.Statements.GetResetToken, tokenHash).
		Scan(&t.TokenHash, &t.ID, &t.AccountID, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (r resetRepo) hashesFor(ctx context.Context, accountID string) ([]string, error) {
	iter := r.c.Query(ctx, r.c.Statements.ListResetTokensByAccount, accountID).Iter()
	var (
		hashes []string
		h      string
	)
	for iter.Scan(&h) {
		hashes = append(hashes, h)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list reset tokens: %w", err)
	}
	return hashes, nil
}

func (r resetRepo) ListByAccount(ctx context.Context, accountID string) ([]*models.PasswordResetToken, error) {
	hashes, err := r.hashesFor(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var out []*models.PasswordResetToken
	for _, h := range hashes {
		t, err := r.GetByTokenHash(ctx, h)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r resetRepo) InvalidateUnused(ctx context.Context, accountID string) (int, error) {
	hashes, err := r.hashesFor(ctx, accountID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, h := range hashes {
		applied, err := r.c.ExecCAS(ctx, r.c.Statements.InvalidateResetToken, h)
		if err != nil {
			return n, fmt.Errorf("failed to invalidate reset token: %w", err)
		}
		if applied {
			n++
		}
	}
	return n, nil
}

func (r resetRepo) PurgeStale(ctx context.Context, now, createdBefore time.Time) (int, error) {
	iter := r.c.Query(ctx, r.c.Statements.ScanResetTokens).Iter()
	var stale []models.PasswordResetToken
	for {
		var t models.PasswordResetToken
		if !iter.Scan(&t.TokenHash, &t.ID, &t.AccountID, &t.ExpiresAt, &t.Used, &t.CreatedAt) {
			break
		}
		if t.CreatedAt.Before(createdBefore) && !t.Redeemable(now) {
			stale = append(stale, t)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("failed to scan reset tokens: %w", err)
	}

	for i, t := range stale {
		batch := r.c.Batch(ctx, gocql.LoggedBatch)
		batch.Query(r.c.Statements.DeleteResetToken, t.TokenHash)
		batch.Query(r.c.Statements.DeleteResetTokenByAccount, t.AccountID, t.TokenHash)
		if err := r.c.ExecuteBatch(batch); err != nil {
			return i, fmt.Errorf("failed to purge reset token: %w", err)
		}
	}
	return len(stale), nil
}
