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
	"admin-auth-service/internal/metrics"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"
	"admin-auth-service/internal/retry"
	"admin-auth-service/internal/util"
)

type SessionPolicy struct {
	TTL time.Duration
	// RefreshWindow is how long before expiry a refresh extends the session.
	RefreshWindow time.Duration
	// MaxLifetime caps expiry relative to creation, refreshes included.
	MaxLifetime time.Duration
}

func SessionPolicyFromConfig(cfg *config.Config) SessionPolicy {
	return SessionPolicy{
		TTL:           cfg.Session.TTL,
		RefreshWindow: cfg.Session.RefreshWindow,
		MaxLifetime:   cfg.Session.MaxLifetime,
	}
}

// IssuedSession carries the raw token, which exists only in this value and
// in the client's cookie.
type IssuedSession struct {
	Session *models.Session
	Token   string
}

// SessionService owns the session lifecycle: create, verify, refresh and
// terminate.
type SessionService struct {
	sessions repository.SessionRepository
	policy   SessionPolicy
	events   events.Publisher
	clock    clock.Clock
	logger   *zap.Logger
}

func NewSessionService(
	sessions repository.SessionRepository,
	policy SessionPolicy,
	publisher events.Publisher,
	clk clock.Clock,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		policy:   policy,
		events:   publisher,
		clock:    clk,
		logger:   logger,
	}
}

// Create issues a new session for an authenticated account.
func (s *SessionService) Create(ctx context.Context, accountID, ip, userAgent string) (*IssuedSession, error) {
	token, digest, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	session := &models.Session{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		TokenHash:    digest,
		IPAddress:    ip,
		UserAgent:    util.TruncateUserAgent(userAgent),
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    s.capExpiry(now, now.Add(s.policy.TTL)),
		IsActive:     true,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	metrics.SessionsCreated.Inc()
	s.logger.Info("Session created",
		util.String("session_id", session.ID),
		util.String("account_id", accountID),
		util.Time("expires_at", session.ExpiresAt),
	)
	return &IssuedSession{Session: session, Token: token}, nil
}

func (s *SessionService) capExpiry(createdAt, expiresAt time.Time) time.Time {
	if s.policy.MaxLifetime <= 0 {
		return expiresAt
	}
	if limit := createdAt.Add(s.policy.MaxLifetime); expiresAt.After(limit) {
		return limit
	}
	return expiresAt
}

func (s *SessionService) lookup(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, autherr.ErrNotAuthenticated
	}
	session, err := retry.Read(ctx, func(ctx context.Context) (*models.Session, error) {
		return s.sessions.GetByTokenHash(ctx, hashToken(token))
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, autherr.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// Verify authenticates a request token and bumps last_activity. Unknown and
// terminated sessions fail with InvalidSession, elapsed ones with
// ExpiredSession.
func (s *SessionService) Verify(ctx context.Context, token string) (*models.Session, error) {
	session, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if !session.IsActive {
		return nil, autherr.ErrInvalidSession
	}
	if now.After(session.ExpiresAt) {
		return nil, autherr.ErrExpiredSession
	}

	if err := s.sessions.Touch(ctx, session.ID, now); err != nil {
		s.logger.Warn("Failed to update session activity",
			util.String("session_id", session.ID),
			util.ErrorField(err))
	} else {
		session.LastActivity = now
	}
	return session, nil
}

// Refresh slides the expiry forward when the session is inside the refresh
// window. Outside the window it returns the session unchanged; an expired
// or terminated session requires a new login.
func (s *SessionService) Refresh(ctx context.Context, token string) (*models.Session, error) {
	session, err := s.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if session.ExpiresAt.Sub(now) > s.policy.RefreshWindow {
		return session, nil
	}
	expiresAt := s.capExpiry(session.CreatedAt, now.Add(s.policy.TTL))
	if !expiresAt.After(session.ExpiresAt) {
		return session, nil
	}

	err = s.sessions.Extend(ctx, session.ID, expiresAt, now)
	if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
		return nil, autherr.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}

	session.ExpiresAt = expiresAt
	session.LastActivity = now
	s.logger.Debug("Session refreshed",
		util.String("session_id", session.ID),
		util.Time("expires_at", expiresAt))
	return session, nil
}

// Logout ends the caller's own session.
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	ended, err := s.sessions.Deactivate(ctx, sessionID, models.RevokedLogout)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if ended {
		metrics.TerminatedSessions(models.RevokedLogout, 1)
	}
	return nil
}

// Terminate ends another session of the requester. The session serving the
// current request cannot be terminated here; callers use Logout for it.
// Sessions of other accounts are reported as not found.
func (s *SessionService) Terminate(ctx context.Context, sessionID string, requester *AuthContext) error {
	if sessionID == requester.Session.ID {
		return autherr.ErrCannotTerminateCurrentSession
	}

	target, err := s.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && target.AccountID != requester.Account.ID) {
		return autherr.Newf(autherr.NotFound, "session %s", sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	ended, err := s.sessions.Deactivate(ctx, sessionID, models.RevokedTerminated)
	if err != nil {
		return fmt.Errorf("failed to terminate session: %w", err)
	}
	if ended {
		metrics.TerminatedSessions(models.RevokedTerminated, 1)
		e := events.New(events.SessionTerminated, s.clock.Now())
		e.AccountID = requester.Account.ID
		e.SessionID = sessionID
		e.Detail = map[string]string{"by_session": requester.Session.ID}
		s.events.Publish(e)
	}
	return nil
}

// TerminateAll ends every active session of the account except exceptID,
// which may be empty.
func (s *SessionService) TerminateAll(ctx context.Context, accountID, exceptID, reason string) (int, error) {
	n, err := s.sessions.DeactivateAll(ctx, accountID, exceptID, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to terminate sessions: %w", err)
	}
	metrics.TerminatedSessions(reason, n)

	e := events.New(events.SessionsTerminatedAll, s.clock.Now())
	e.AccountID = accountID
	e.SessionID = exceptID
	e.Detail = map[string]string{"reason": reason, "count": fmt.Sprint(n)}
	s.events.Publish(e)

	s.logger.Info("Sessions terminated",
		util.String("account_id", accountID),
		util.String("reason", reason),
		util.Int("count", n))
	return n, nil
}

// ListActive returns the account's usable sessions with the one serving
// this request flagged as current.
func (s *SessionService) ListActive(ctx context.Context, accountID, currentSessionID string) ([]models.SessionView, error) {
	now := s.clock.Now().UTC()
	sessions, err := retry.Read(ctx, func(ctx context.Context) ([]*models.Session, error) {
		return s.sessions.ListActive(ctx, accountID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	views := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		if !session.Usable(now) {
			continue
		}
		views = append(views, models.SessionView{
			Session:   *session,
			IsCurrent: session.ID == currentSessionID,
		})
	}
	return views, nil
}
