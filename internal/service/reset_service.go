package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/config"
	"admin-auth-service/internal/events"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/metrics"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/notify"
	"admin-auth-service/internal/repository"
	"admin-auth-service/internal/throttle"
	"admin-auth-service/internal/util"
)

type ResetPolicy struct {
	TokenTTL        time.Duration
	Cooldown        time.Duration
	ResetURL        string
	DispatchTimeout time.Duration
}

func ResetPolicyFromConfig(cfg *config.Config) ResetPolicy {
	return ResetPolicy{
		TokenTTL:        cfg.Reset.TokenTTL,
		Cooldown:        cfg.Reset.Cooldown,
		ResetURL:        cfg.Reset.ResetURL,
		DispatchTimeout: cfg.Reset.DispatchTimeout,
	}
}

// ResetService issues and redeems single-use password reset tokens.
type ResetService struct {
	store    repository.Store
	hasher   *hashing.Hasher
	cooldown throttle.Cooldown
	notifier notify.Notifier
	sessions *SessionService
	policy   ResetPolicy
	events   events.Publisher
	clock    clock.Clock
	logger   *zap.Logger
}

func NewResetService(
	store repository.Store,
	hasher *hashing.Hasher,
	cooldown throttle.Cooldown,
	notifier notify.Notifier,
	sessions *SessionService,
	policy ResetPolicy,
	publisher events.Publisher,
	clk clock.Clock,
	logger *zap.Logger,
) *ResetService {
	return &ResetService{
		store:    store,
		hasher:   hasher,
		cooldown: cooldown,
		notifier: notifier,
		sessions: sessions,
		policy:   policy,
		events:   publisher,
		clock:    clk,
		logger:   logger,
	}
}

// RequestReset answers the same way whether or not the email belongs to an
// account. A token is issued and mailed only for a real account, at most
// once per cooldown period; any earlier unused token is superseded.
func (s *ResetService) RequestReset(ctx context.Context, email, ip string) error {
	email = util.NormalizeEmail(email)
	if email == "" {
		return autherr.Newf(autherr.InvalidInput, "email is required")
	}
	metrics.PasswordResets.WithLabelValues(metrics.StageRequested).Inc()

	acquired, err := s.cooldown.Acquire(ctx, email, s.policy.Cooldown)
	if err != nil {
		s.logger.Error("Reset cooldown unavailable", util.String("email", email), util.ErrorField(err))
		return nil
	}
	if !acquired {
		metrics.PasswordResets.WithLabelValues(metrics.StageCooldown).Inc()
		return nil
	}

	account, err := s.store.Accounts().GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info("Password reset requested for unknown email", util.String("email", email))
		return nil
	}
	if err != nil {
		s.logger.Error("Failed to look up account for reset", util.String("email", email), util.ErrorField(err))
		return nil
	}

	if err := s.issue(ctx, account, ip); err != nil {
		s.logger.Error("Failed to issue password reset", util.String("account_id", account.ID), util.ErrorField(err))
	}
	return nil
}

func (s *ResetService) issue(ctx context.Context, account *models.AdminAccount, ip string) error {
	if _, err := s.store.ResetTokens().InvalidateUnused(ctx, account.ID); err != nil {
		return fmt.Errorf("failed to supersede reset tokens: %w", err)
	}

	token, digest, err := newOpaqueToken()
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	record := &models.PasswordResetToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: digest,
		ExpiresAt: now.Add(s.policy.TokenTTL),
		CreatedAt: now,
	}
	if err := s.store.ResetTokens().Create(ctx, record); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	notify.Dispatch(s.notifier, s.policy.DispatchTimeout, notify.ResetMessage{
		Email:     account.Email,
		Token:     token,
		ResetURL:  s.policy.ResetURL,
		ExpiresAt: record.ExpiresAt,
	})

	metrics.PasswordResets.WithLabelValues(metrics.StageIssued).Inc()
	e := events.New(events.PasswordResetRequested, now)
	e.AccountID = account.ID
	e.Email = account.Email
	e.IPAddress = ip
	s.events.Publish(e)

	s.logger.Info("Password reset token issued",
		util.String("account_id", account.ID),
		util.Token("token", token),
		util.Time("expires_at", record.ExpiresAt))
	return nil
}

// RedeemReset consumes a token and sets the new password. A used or
// superseded token is always InvalidResetToken; a token past its expiry is
// ExpiredResetToken. Every session of the account is ended.
func (s *ResetService) RedeemReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return s.reject(autherr.ErrInvalidResetToken)
	}

	digest := hashToken(token)
	record, err := s.store.ResetTokens().GetByTokenHash(ctx, digest)
	if errors.Is(err, repository.ErrNotFound) {
		return s.reject(autherr.ErrInvalidResetToken)
	}
	if err != nil {
		return fmt.Errorf("failed to load reset token: %w", err)
	}
	if err := s.redeemable(record); err != nil {
		return s.reject(err)
	}
	if err := checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.clock.Now().UTC()
	redeemed, err := s.store.RedeemPasswordReset(ctx, digest, hash, now)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return s.reject(autherr.ErrInvalidResetToken)
	case errors.Is(err, repository.ErrConflict):
		// Lost a race or crossed expiry since the read above.
		if latest, gerr := s.store.ResetTokens().GetByTokenHash(ctx, digest); gerr == nil {
			if rerr := s.redeemable(latest); rerr != nil {
				return s.reject(rerr)
			}
		}
		return s.reject(autherr.ErrInvalidResetToken)
	case err != nil:
		return fmt.Errorf("failed to redeem reset token: %w", err)
	}

	if _, err := s.sessions.TerminateAll(ctx, redeemed.AccountID, "", models.RevokedPasswordSet); err != nil {
		return err
	}

	metrics.PasswordResets.WithLabelValues(metrics.StageCompleted).Inc()
	e := events.New(events.PasswordResetCompleted, now)
	e.AccountID = redeemed.AccountID
	s.events.Publish(e)

	s.logger.Info("Password reset completed", util.String("account_id", redeemed.AccountID))
	return nil
}

func (s *ResetService) redeemable(record *models.PasswordResetToken) error {
	if record.Used {
		return autherr.ErrInvalidResetToken
	}
	if !record.Redeemable(s.clock.Now().UTC()) {
		return autherr.ErrExpiredResetToken
	}
	return nil
}

func (s *ResetService) reject(err error) error {
	metrics.PasswordResets.WithLabelValues(metrics.StageRejected).Inc()
	return err
}
