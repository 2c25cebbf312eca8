// Package sweeper periodically retires expired sessions and stale reset
// tokens. Every pass is idempotent and safe alongside live requests.
package sweeper

import (
	"context"
	"time"

	"github.com/filecoin-project/go-clock"
	"go.uber.org/zap"

	"admin-auth-service/internal/metrics"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"
	"admin-auth-service/internal/util"
)

// tokenRetention keeps used or expired reset tokens around for audit.
const tokenRetention = 24 * time.Hour

// ThrottleSweeper is implemented by in-process throttle stores.
type ThrottleSweeper interface {
	Sweep(now time.Time) int
}

type Result struct {
	ExpiredSessions int
	PurgedTokens    int
	ThrottleEntries int
}

type Sweeper struct {
	store    repository.Store
	throttle ThrottleSweeper
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
}

// New builds a sweeper; th may be nil when throttle state expires on its
// own (Redis).
func New(store repository.Store, th ThrottleSweeper, interval time.Duration, clk clock.Clock) *Sweeper {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		store:    store,
		throttle: th,
		interval: interval,
		clock:    clk,
		logger:   util.Named("sweeper"),
	}
}

// Run sweeps once immediately and then every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Warn("Sweep incomplete", zap.Error(err))
	}
	if res.ExpiredSessions > 0 || res.PurgedTokens > 0 || res.ThrottleEntries > 0 {
		s.logger.Info("Sweep finished",
			zap.Int("expired_sessions", res.ExpiredSessions),
			zap.Int("purged_tokens", res.PurgedTokens),
			zap.Int("throttle_entries", res.ThrottleEntries))
	}
}

// Sweep performs one pass. A failing step does not stop the others; the
// first error is returned.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := s.clock.Now().UTC()
	var (
		res      Result
		firstErr error
	)

	n, err := s.store.Sessions().DeactivateExpired(ctx, now)
	if err != nil {
		firstErr = err
	}
	res.ExpiredSessions = n
	metrics.TerminatedSessions(models.RevokedExpired, n)

	n, err = s.store.ResetTokens().PurgeStale(ctx, now, now.Add(-tokenRetention))
	if err != nil && firstErr == nil {
		firstErr = err
	}
	res.PurgedTokens = n

	if s.throttle != nil {
		res.ThrottleEntries = s.throttle.Sweep(now)
	}
	return res, firstErr
}
