package service

import (
	"context"
	"fmt"

	"github.com/filecoin-project/go-clock"

	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"
	"admin-auth-service/internal/retry"
	"admin-auth-service/internal/telemetry"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// TelemetryService answers the security dashboard. It never writes.
type TelemetryService struct {
	store repository.Store
	clock clock.Clock
}

func NewTelemetryService(store repository.Store, clk clock.Clock) *TelemetryService {
	return &TelemetryService{store: store, clock: clk}
}

func (s *TelemetryService) GetStats(ctx context.Context, window string) (*models.SecurityStats, error) {
	name, length, err := telemetry.ParseWindow(window)
	if err != nil {
		return nil, err
	}
	to := s.clock.Now().UTC()
	from := to.Add(-length)

	attempts, err := retry.Read(ctx, func(ctx context.Context) ([]*models.LoginAttempt, error) {
		return s.store.LoginAttempts().List(ctx, models.AttemptFilter{Since: from, Until: to})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load login attempts: %w", err)
	}
	active, err := retry.Read(ctx, func(ctx context.Context) (int, error) {
		return s.store.Sessions().CountActive(ctx, to)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	flat := make([]models.LoginAttempt, len(attempts))
	for i, a := range attempts {
		flat[i] = *a
	}
	stats := telemetry.ComputeStats(name, from, to, flat, active)
	return &stats, nil
}

// GetLoginHistory lists attempts in the window, newest first.
func (s *TelemetryService) GetLoginHistory(ctx context.Context, window string, failuresOnly bool, limit int) ([]*models.LoginAttempt, error) {
	_, length, err := telemetry.ParseWindow(window)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	to := s.clock.Now().UTC()

	filter := models.AttemptFilter{
		Since:        to.Add(-length),
		Until:        to,
		FailuresOnly: failuresOnly,
		Limit:        limit,
	}
	history, err := retry.Read(ctx, func(ctx context.Context) ([]*models.LoginAttempt, error) {
		return s.store.LoginAttempts().List(ctx, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load login history: %w", err)
	}
	if history == nil {
		history = []*models.LoginAttempt{}
	}
	return history, nil
}
