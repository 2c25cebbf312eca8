package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/events"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"
	"admin-auth-service/internal/retry"
	"admin-auth-service/internal/util"
)

type CreateAccountRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// AccountService manages administrator accounts. Accounts are only created
// by an existing admin or by the startup bootstrap.
type AccountService struct {
	accounts repository.AccountRepository
	hasher   *hashing.Hasher
	sessions *SessionService
	events   events.Publisher
	clock    clock.Clock
	logger   *zap.Logger
}

func NewAccountService(
	accounts repository.AccountRepository,
	hasher *hashing.Hasher,
	sessions *SessionService,
	publisher events.Publisher,
	clk clock.Clock,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		hasher:   hasher,
		sessions: sessions,
		events:   publisher,
		clock:    clk,
		logger:   logger,
	}
}

func (s *AccountService) List(ctx context.Context) ([]*models.AdminAccount, error) {
	accounts, err := retry.Read(ctx, s.accounts.List)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// Create adds an account. Only an admin may create accounts; the role
// defaults to manager.
func (s *AccountService) Create(ctx context.Context, actor *AuthContext, req CreateAccountRequest) (*models.AdminAccount, error) {
	if !actor.IsAdmin() {
		return nil, autherr.ErrPermissionDenied
	}
	account, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}

	e := events.New(events.AccountCreated, account.CreatedAt)
	e.AccountID = account.ID
	e.Email = account.Email
	e.Detail = map[string]string{"role": string(account.Role), "created_by": actor.Account.ID}
	s.events.Publish(e)
	return account, nil
}

func (s *AccountService) create(ctx context.Context, req CreateAccountRequest) (*models.AdminAccount, error) {
	email := util.NormalizeEmail(req.Email)
	if !util.ValidEmail(email) {
		return nil, autherr.Newf(autherr.InvalidInput, "invalid email address")
	}
	role := req.Role
	if role == "" {
		role = models.RoleManager
	}
	if !role.Valid() {
		return nil, autherr.Newf(autherr.InvalidInput, "unknown role %q", role)
	}
	if err := checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.clock.Now().UTC()
	account := &models.AdminAccount{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.accounts.Create(ctx, account)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, autherr.ErrDuplicateEmail
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account created",
		util.String("account_id", account.ID),
		util.String("email", email),
		util.String("role", string(role)))
	return account, nil
}

// Delete removes an account and ends its sessions. Nobody may delete their
// own account; only an admin may delete others.
func (s *AccountService) Delete(ctx context.Context, actor *AuthContext, id string) error {
	if id == actor.Account.ID {
		return autherr.ErrSelfDeletionForbidden
	}
	if !actor.IsAdmin() {
		return autherr.ErrPermissionDenied
	}

	target, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return autherr.Newf(autherr.NotFound, "account %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	if _, err := s.sessions.TerminateAll(ctx, id, "", models.RevokedTerminated); err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	e := events.New(events.AccountDeleted, s.clock.Now())
	e.AccountID = id
	e.Email = target.Email
	e.Detail = map[string]string{"deleted_by": actor.Account.ID}
	s.events.Publish(e)

	s.logger.Info("Account deleted",
		util.String("account_id", id),
		util.String("deleted_by", actor.Account.ID))
	return nil
}

// Bootstrap seeds the first admin when the store holds no accounts. It
// reports whether an account was created.
func (s *AccountService) Bootstrap(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	n, err := s.accounts.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count accounts: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	account, err := s.create(ctx, CreateAccountRequest{Email: email, Password: password, Role: models.RoleAdmin})
	if errors.Is(err, autherr.ErrDuplicateEmail) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e := events.New(events.AccountCreated, account.CreatedAt)
	e.AccountID = account.ID
	e.Email = account.Email
	e.Detail = map[string]string{"role": string(account.Role), "created_by": "bootstrap"}
	s.events.Publish(e)
	return true, nil
}
