package scylla

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"admin-auth-service/internal/bucketing"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"
)

// defaultHistoryWindow bounds a history query that gives no lower limit.
const defaultHistoryWindow = 30 * 24 * time.Hour

type attemptRepo struct {
	c       *ScyllaClient
	buckets *bucketing.BucketingManager
}

func (r attemptRepo) Record(ctx context.Context, a *models.LoginAttempt) error {
	assignment := r.buckets.Assign(a.Email, a.CreatedAt)
	err := r.c.Query(ctx, r.c.Statements.InsertLoginAttempt,
		assignment.DateBucket, assignment.EventBucket, a.CreatedAt.UTC(), a.ID, a.AccountID,
		a.Email, a.IPAddress, a.UserAgent, a.Success, a.FailureReason, a.Location).Exec()
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// List reads one day at a time, newest first, fanning out over that day's
// buckets in parallel. It stops once the limit is met.
func (r attemptRepo) List(ctx context.Context, f models.AttemptFilter) ([]*models.LoginAttempt, error) {
	until := f.Until
	if until.IsZero() {
		until = time.Now().UTC()
	}
	since := f.Since
	if since.IsZero() {
		since = until.Add(-defaultHistoryWindow)
	}

	var out []*models.LoginAttempt
	for _, day := range r.buckets.DateBucketsBetween(since, until) {
		dayAttempts, err := r.readDay(ctx, day, since, until, f)
		if err != nil {
			return nil, err
		}
		out = append(out, dayAttempts...)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r attemptRepo) readDay(ctx context.Context, day string, since, until time.Time, f models.AttemptFilter) ([]*models.LoginAttempt, error) {
	var (
		mu  sync.Mutex
		out []*models.LoginAttempt
	)
	g, gctx := errgroup.WithContext(ctx)
	for bucket := 0; bucket < r.buckets.GetEventBuckets(); bucket++ {
		bucket := bucket
		g.Go(func() error {
			rows, err := r.readBucket(gctx, day, bucket, since, until, f)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, rows...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sortNewestFirst(out), nil
}

func (r attemptRepo) readBucket(ctx context.Context, day string, bucket int, since, until time.Time, f models.AttemptFilter) ([]*models.LoginAttempt, error) {
	iter := r.c.Query(ctx, r.c.Statements.ListLoginAttempts, day, bucket, since.UTC(), until.UTC()).Iter()
	var out []*models.LoginAttempt
	for {
		a := &models.LoginAttempt{}
		if !iter.Scan(&a.CreatedAt, &a.ID, &a.AccountID, &a.Email, &a.IPAddress, &a.UserAgent,
			&a.Success, &a.FailureReason, &a.Location) {
			break
		}
		if repository.MatchesFilter(a, f) {
			out = append(out, a)
		}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read login attempts %s/%d: %w", day, bucket, err)
	}
	return out, nil
}

func sortNewestFirst(attempts []*models.LoginAttempt) []*models.LoginAttempt {
	sort.SliceStable(attempts, func(i, j int) bool {
		if attempts[i].CreatedAt.Equal(attempts[j].CreatedAt) {
			return attempts[i].ID > attempts[j].ID
		}
		return attempts[i].CreatedAt.After(attempts[j].CreatedAt)
	})
	return attempts
}
