package service

import (
	"sync"

	"github.com/filecoin-project/go-clock"
	"go.uber.org/zap"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/events"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/notify"
	"admin-auth-service/internal/repository"
	"admin-auth-service/internal/throttle"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	cfg       *config.Config
	store     repository.Store
	hasher    *hashing.Hasher
	throttle  *throttle.Throttle
	cooldown  throttle.Cooldown
	notifier  notify.Notifier
	publisher events.Publisher
	clock     clock.Clock
	logger    *zap.Logger

	mu               sync.Mutex
	sessionService   *SessionService
	authService      *AuthService
	resetService     *ResetService
	accountService   *AccountService
	telemetryService *TelemetryService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	cfg *config.Config,
	store repository.Store,
	hasher *hashing.Hasher,
	th *throttle.Throttle,
	cooldown throttle.Cooldown,
	notifier notify.Notifier,
	publisher events.Publisher,
	clk clock.Clock,
	logger *zap.Logger,
) *ServiceFactory {
	if clk == nil {
		clk = clock.New()
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &ServiceFactory{
		cfg:       cfg,
		store:     store,
		hasher:    hasher,
		throttle:  th,
		cooldown:  cooldown,
		notifier:  notifier,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
	}
}

// SessionService returns the session service instance (singleton)
func (f *ServiceFactory) SessionService() *SessionService {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionServiceLocked()
}

func (f *ServiceFactory) sessionServiceLocked() *SessionService {
	if f.sessionService == nil {
		f.sessionService = NewSessionService(
			f.store.Sessions(),
			SessionPolicyFromConfig(f.cfg),
			f.publisher,
			f.clock,
			f.logger.Named("session"),
		)
	}
	return f.sessionService
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authService == nil {
		f.authService = NewAuthService(
			f.store,
			f.hasher,
			f.throttle,
			f.sessionServiceLocked(),
			f.publisher,
			f.clock,
			f.logger.Named("auth"),
		)
	}
	return f.authService
}

// ResetService returns the password reset service instance (singleton)
func (f *ServiceFactory) ResetService() *ResetService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetService == nil {
		f.resetService = NewResetService(
			f.store,
			f.hasher,
			f.cooldown,
			f.notifier,
			f.sessionServiceLocked(),
			ResetPolicyFromConfig(f.cfg),
			f.publisher,
			f.clock,
			f.logger.Named("reset"),
		)
	}
	return f.resetService
}

// AccountService returns the account service instance (singleton)
func (f *ServiceFactory) AccountService() *AccountService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accountService == nil {
		f.accountService = NewAccountService(
			f.store.Accounts(),
			f.hasher,
			f.sessionServiceLocked(),
			f.publisher,
			f.clock,
			f.logger.Named("account"),
		)
	}
	return f.accountService
}

// TelemetryService returns the telemetry service instance (singleton)
func (f *ServiceFactory) TelemetryService() *TelemetryService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.telemetryService == nil {
		f.telemetryService = NewTelemetryService(f.store, f.clock)
	}
	return f.telemetryService
}
