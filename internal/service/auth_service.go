package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/filecoin-project/go-clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/events"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/metrics"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"
	"admin-auth-service/internal/retry"
	"admin-auth-service/internal/throttle"
	"admin-auth-service/internal/util"
)

// AuthContext is the authenticated caller of one request. It is built per
// request and passed explicitly; nothing holds it globally.
type AuthContext struct {
	Account *models.AdminAccount
	Session *models.Session
}

func (a *AuthContext) IsAdmin() bool {
	return a != nil && a.Account != nil && a.Account.Role == models.RoleAdmin
}

type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

type LoginResult struct {
	Account *models.AdminAccount
	Session *models.Session
	Token   string
}

// AuthService orchestrates login and the credential operations of a signed
// in administrator.
type AuthService struct {
	store    repository.Store
	hasher   *hashing.Hasher
	throttle *throttle.Throttle
	sessions *SessionService
	events   events.Publisher
	clock    clock.Clock
	logger   *zap.Logger
}

func NewAuthService(
	store repository.Store,
	hasher *hashing.Hasher,
	th *throttle.Throttle,
	sessions *SessionService,
	publisher events.Publisher,
	clk clock.Clock,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		store:    store,
		hasher:   hasher,
		throttle: th,
		sessions: sessions,
		events:   publisher,
		clock:    clk,
		logger:   logger,
	}
}

// Login checks the throttle before touching credentials, verifies them,
// writes the audit record, settles the throttle and finally issues a
// session. A locked identity is rejected without verifying the password.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := util.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, autherr.Newf(autherr.InvalidInput, "email and password are required")
	}
	attempt := &models.LoginAttempt{
		Email:     email,
		IPAddress: req.IPAddress,
		UserAgent: util.TruncateUserAgent(req.UserAgent),
	}

	decision, err := s.throttle.Check(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check login throttle: %w", err)
	}
	if !decision.Allowed {
		attempt.FailureReason = models.FailureLocked
		if err := s.recordAttempt(ctx, attempt); err != nil {
			return nil, err
		}
		metrics.LoginAttempts.WithLabelValues(metrics.ResultLocked).Inc()
		s.publishAttempt(events.LoginLocked, attempt)
		return nil, autherr.Locked(decision.RetryAfterSeconds())
	}

	account, ok, err := s.verifyCredentials(ctx, email, req.Password)
	if err != nil {
		return nil, err
	}
	if account != nil {
		attempt.AccountID = account.ID
	}
	attempt.Success = ok
	if !ok {
		attempt.FailureReason = models.FailureInvalidCredentials
	}
	if err := s.recordAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	outcome, err := s.throttle.RecordAttempt(ctx, email, ok)
	if err != nil {
		return nil, fmt.Errorf("failed to record login throttle: %w", err)
	}

	if !ok {
		metrics.LoginAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		s.publishAttempt(events.LoginFailed, attempt)
		if outcome.Locked {
			metrics.Lockouts.Inc()
			s.publishAttempt(events.LoginLocked, attempt)
			s.logger.Warn("Login locked after repeated failures",
				util.String("email", email),
				util.Int("failed_count", outcome.FailedCount),
				util.String("ip_address", req.IPAddress))
		}
		return nil, autherr.ErrInvalidCredentials
	}

	s.rehashIfNeeded(ctx, account, req.Password)

	issued, err := s.sessions.Create(ctx, account.ID, req.IPAddress, req.UserAgent)
	if err != nil {
		return nil, err
	}

	metrics.LoginAttempts.WithLabelValues(metrics.ResultSuccess).Inc()
	e := s.attemptEvent(events.LoginSucceeded, attempt)
	e.SessionID = issued.Session.ID
	s.events.Publish(e)

	return &LoginResult{Account: account, Session: issued.Session, Token: issued.Token}, nil
}

// verifyCredentials runs a full hash verification even for unknown emails so
// response time does not reveal which addresses exist.
func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (*models.AdminAccount, bool, error) {
	account, err := retry.Read(ctx, func(ctx context.Context) (*models.AdminAccount, error) {
		return s.store.Accounts().GetByEmail(ctx, email)
	})
	if errors.Is(err, repository.ErrNotFound) {
		if err := s.hasher.VerifyDummy(ctx, password); err != nil {
			return nil, false, fmt.Errorf("failed to verify password: %w", err)
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load account: %w", err)
	}

	ok, err := s.hasher.Verify(ctx, password, account.PasswordHash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to verify password: %w", err)
	}
	return account, ok, nil
}

func (s *AuthService) recordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	attempt.ID = uuid.NewString()
	attempt.CreatedAt = s.clock.Now().UTC()
	if err := s.store.LoginAttempts().Record(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

func (s *AuthService) attemptEvent(typ events.Type, attempt *models.LoginAttempt) events.Event {
	e := events.New(typ, attempt.CreatedAt)
	e.AccountID = attempt.AccountID
	e.Email = attempt.Email
	e.IPAddress = attempt.IPAddress
	e.UserAgent = attempt.UserAgent
	if attempt.FailureReason != "" {
		e.Detail = map[string]string{"failure_reason": attempt.FailureReason}
	}
	return e
}

func (s *AuthService) publishAttempt(typ events.Type, attempt *models.LoginAttempt) {
	s.events.Publish(s.attemptEvent(typ, attempt))
}

// rehashIfNeeded upgrades a hash made with old parameters or an old pepper.
// Failure is logged; the login still succeeds.
func (s *AuthService) rehashIfNeeded(ctx context.Context, account *models.AdminAccount, password string) {
	if !s.hasher.NeedsRehash(account.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(ctx, password)
	if err == nil {
		err = s.store.Accounts().UpdatePasswordHash(ctx, account.ID, hash, s.clock.Now().UTC())
	}
	if err != nil {
		s.logger.Warn("Failed to upgrade password hash",
			util.String("account_id", account.ID),
			util.ErrorField(err))
		return
	}
	account.PasswordHash = hash
}

// Authenticate resolves a session token to the calling account.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*AuthContext, error) {
	session, err := s.sessions.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	account, err := retry.Read(ctx, func(ctx context.Context) (*models.AdminAccount, error) {
		return s.store.Accounts().GetByID(ctx, session.AccountID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, autherr.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &AuthContext{Account: account, Session: session}, nil
}

func (s *AuthService) Logout(ctx context.Context, auth *AuthContext) error {
	return s.sessions.Logout(ctx, auth.Session.ID)
}

// LogoutAll ends every session of the target account, the caller's own
// included. Only an admin may target another account.
func (s *AuthService) LogoutAll(ctx context.Context, auth *AuthContext, accountID string) (int, error) {
	if accountID == "" {
		accountID = auth.Account.ID
	}
	if accountID != auth.Account.ID && !auth.IsAdmin() {
		return 0, autherr.ErrPermissionDenied
	}
	return s.sessions.TerminateAll(ctx, accountID, "", models.RevokedLogoutAll)
}

// ChangePassword requires the current password and ends every other session
// of the account. The current password check shares the login throttle of
// the account's email, and failures are recorded like failed logins.
func (s *AuthService) ChangePassword(ctx context.Context, auth *AuthContext, current, next string) error {
	email := util.NormalizeEmail(auth.Account.Email)
	decision, err := s.throttle.Check(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check login throttle: %w", err)
	}
	if !decision.Allowed {
		return autherr.Locked(decision.RetryAfterSeconds())
	}

	ok, err := s.hasher.Verify(ctx, current, auth.Account.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	outcome, err := s.throttle.RecordAttempt(ctx, email, ok)
	if err != nil {
		return fmt.Errorf("failed to record login throttle: %w", err)
	}
	if !ok {
		attempt := &models.LoginAttempt{
			AccountID:     auth.Account.ID,
			Email:         email,
			IPAddress:     auth.Session.IPAddress,
			UserAgent:     auth.Session.UserAgent,
			FailureReason: models.FailureReauthentication,
		}
		if err := s.recordAttempt(ctx, attempt); err != nil {
			return err
		}
		metrics.LoginAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		s.publishAttempt(events.LoginFailed, attempt)
		if outcome.Locked {
			metrics.Lockouts.Inc()
			s.publishAttempt(events.LoginLocked, attempt)
			s.logger.Warn("Account locked after failed password confirmations",
				util.String("account_id", auth.Account.ID),
				util.String("session_id", auth.Session.ID))
		}
		return autherr.ErrInvalidCredentials
	}
	if err := checkPasswordPolicy(next); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.clock.Now().UTC()
	if err := s.store.Accounts().UpdatePasswordHash(ctx, auth.Account.ID, hash, now); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	auth.Account.PasswordHash = hash
	auth.Account.UpdatedAt = now

	if _, err := s.sessions.TerminateAll(ctx, auth.Account.ID, auth.Session.ID, models.RevokedPasswordSet); err != nil {
		return err
	}

	e := events.New(events.PasswordChanged, now)
	e.AccountID = auth.Account.ID
	e.Email = auth.Account.Email
	e.SessionID = auth.Session.ID
	s.events.Publish(e)
	return nil
}

func (s *AuthService) Profile(auth *AuthContext) models.Profile {
	return auth.Account.Profile()
}

// LockStatus reports whether an identity is locked out and for how long. It
// backs the login page's countdown and never reveals the failure count.
func (s *AuthService) LockStatus(ctx context.Context, email string) (models.LockStatus, error) {
	state, err := s.throttle.State(ctx, util.NormalizeEmail(email))
	if err != nil {
		return models.LockStatus{}, fmt.Errorf("failed to read login throttle: %w", err)
	}
	if state.LockedUntil == nil {
		return models.LockStatus{}, nil
	}
	wait := throttle.Decision{RetryAfter: state.LockedUntil.Sub(s.clock.Now())}
	return models.LockStatus{
		Locked:            true,
		LockedUntil:       state.LockedUntil,
		RetryAfterSeconds: wait.RetryAfterSeconds(),
	}, nil
}

// checkPasswordPolicy returns WeakPassword with the policy feedback.
func checkPasswordPolicy(password string) error {
	strength := hashing.EvaluatePassword(password)
	if strength.Acceptable {
		return nil
	}
	return autherr.Newf(autherr.WeakPassword, "%s", strings.Join(strength.Feedback, "; "))
}
