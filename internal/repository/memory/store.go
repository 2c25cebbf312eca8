// Package memory is an in-process Store for development and tests. All
// state lives behind one mutex and is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"
)

type Store struct {
	mu       sync.RWMutex
	accounts map[string]models.AdminAccount
	byEmail  map[string]string
	sessions map[string]models.Session
	byToken  map[string]string
	resets   map[string]models.PasswordResetToken
	byReset  map[string]string
	attempts []models.LoginAttempt
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]models.AdminAccount),
		byEmail:  make(map[string]string),
		sessions: make(map[string]models.Session),
		byToken:  make(map[string]string),
		resets:   make(map[string]models.PasswordResetToken),
		byReset:  make(map[string]string),
	}
}

func (s *Store) Accounts() repository.AccountRepository           { return accountRepo{s} }
func (s *Store) Sessions() repository.SessionRepository           { return sessionRepo{s} }
func (s *Store) ResetTokens() repository.ResetTokenRepository     { return resetRepo{s} }
func (s *Store) LoginAttempts() repository.LoginAttemptRepository { return attemptRepo{s} }

func (s *Store) HealthCheck(context.Context) error { return nil }
func (s *Store) Close() error                      { return nil }

func (s *Store) RedeemPasswordReset(_ context.Context, tokenHash, passwordHash string, now time.Time) (*models.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byReset[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	tok := s.resets[id]
	if !tok.Redeemable(now) {
		return nil, repository.ErrConflict
	}
	acct, ok := s.accounts[tok.AccountID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	tok.Used = true
	s.resets[id] = tok
	acct.PasswordHash = passwordHash
	acct.UpdatedAt = now
	s.accounts[acct.ID] = acct
	return &tok, nil
}

type accountRepo struct{ s *Store }

func (r accountRepo) Create(_ context.Context, a *models.AdminAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.byEmail[a.Email]; exists {
		return repository.ErrDuplicate
	}
	if _, exists := r.s.accounts[a.ID]; exists {
		return repository.ErrDuplicate
	}
	r.s.accounts[a.ID] = *a
	r.s.byEmail[a.Email] = a.ID
	return nil
}

func (r accountRepo) GetByID(_ context.Context, id string) (*models.AdminAccount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r accountRepo) GetByEmail(ctx context.Context, email string) (*models.AdminAccount, error) {
	r.s.mu.RLock()
	id, ok := r.s.byEmail[email]
	r.s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r accountRepo) List(context.Context) ([]*models.AdminAccount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.AdminAccount, 0, len(r.s.accounts))
	for _, a := range r.s.accounts {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r accountRepo) Count(context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.accounts), nil
}

func (r accountRepo) UpdatePasswordHash(_ context.Context, id, hash string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = now
	r.s.accounts[id] = a
	return nil
}

func (r accountRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.s.accounts, id)
	delete(r.s.byEmail, a.Email)
	return nil
}

type sessionRepo struct{ s *Store }

func (r sessionRepo) Create(_ context.Context, sess *models.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.byToken[sess.TokenHash]; exists {
		return repository.ErrDuplicate
	}
	r.s.sessions[sess.ID] = *sess
	r.s.byToken[sess.TokenHash] = sess.ID
	return nil
}

func (r sessionRepo) GetByID(_ context.Context, id string) (*models.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

func (r sessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	r.s.mu.RLock()
	id, ok := r.s.byToken[tokenHash]
	r.s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r sessionRepo) update(id string, fn func(*models.Session)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&sess)
	r.s.sessions[id] = sess
	return nil
}

func (r sessionRepo) Touch(_ context.Context, id string, lastActivity time.Time) error {
	return r.update(id, func(s *models.Session) {
		if s.IsActive {
			s.LastActivity = lastActivity
		}
	})
}

func (r sessionRepo) Extend(_ context.Context, id string, expiresAt, lastActivity time.Time) error {
	var inactive bool
	err := r.update(id, func(s *models.Session) {
		if !s.IsActive {
			inactive = true
			return
		}
		s.ExpiresAt = expiresAt
		s.LastActivity = lastActivity
	})
	if err == nil && inactive {
		return repository.ErrConflict
	}
	return err
}

func (r sessionRepo) Deactivate(_ context.Context, id, reason string) (bool, error) {
	var was bool
	err := r.update(id, func(s *models.Session) {
		was = s.IsActive
		if s.IsActive {
			s.IsActive = false
			s.RevokedReason = reason
		}
	})
	return was, err
}

func (r sessionRepo) DeactivateAll(_ context.Context, accountID, exceptID, reason string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, sess := range r.s.sessions {
		if sess.AccountID != accountID || id == exceptID || !sess.IsActive {
			continue
		}
		sess.IsActive = false
		sess.RevokedReason = reason
		r.s.sessions[id] = sess
		n++
	}
	return n, nil
}

func (r sessionRepo) ListActive(_ context.Context, accountID string, now time.Time) ([]*models.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Session
	for _, sess := range r.s.sessions {
		if sess.AccountID == accountID && sess.Usable(now) {
			sess := sess
			out = append(out, &sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (r sessionRepo) CountActive(_ context.Context, now time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, sess := range r.s.sessions {
		if sess.Usable(now) {
			n++
		}
	}
	return n, nil
}

func (r sessionRepo) DeactivateExpired(_ context.Context, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, sess := range r.s.sessions {
		if sess.IsActive && now.After(sess.ExpiresAt) {
			sess.IsActive = false
			sess.RevokedReason = models.RevokedExpired
			r.s.sessions[id] = sess
			n++
		}
	}
	return n, nil
}

type resetRepo struct{ s *Store }

func (r resetRepo) Create(_ context.Context, t *models.PasswordResetToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.byReset[t.TokenHash]; exists {
		return repository.ErrDuplicate
	}
	r.s.resets[t.ID] = *t
	r.s.byReset[t.TokenHash] = t.ID
	return nil
}

func (r resetRepo) GetByTokenHash(_ context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byReset[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t := r.s.resets[id]
	return &t, nil
}

func (r resetRepo) ListByAccount(_ context.Context, accountID string) ([]*models.PasswordResetToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.PasswordResetToken
	for _, t := range r.s.resets {
		if t.AccountID == accountID {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r resetRepo) InvalidateUnused(_ context.Context, accountID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, t := range r.s.resets {
		if t.AccountID == accountID && !t.Used {
			t.Used = true
			r.s.resets[id] = t
			n++
		}
	}
	return n, nil
}

func (r resetRepo) PurgeStale(_ context.Context, now, createdBefore time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, t := range r.s.resets {
		if t.CreatedAt.Before(createdBefore) && !t.Redeemable(now) {
			delete(r.s.resets, id)
			delete(r.s.byReset, t.TokenHash)
			n++
		}
	}
	return n, nil
}

type attemptRepo struct{ s *Store }

func (r attemptRepo) Record(_ context.Context, a *models.LoginAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.attempts = append(r.s.attempts, *a)
	return nil
}

func (r attemptRepo) List(_ context.Context, f models.AttemptFilter) ([]*models.LoginAttempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.LoginAttempt
	// Walk newest-inserted first so equal timestamps keep insertion recency.
	for i := len(r.s.attempts) - 1; i >= 0; i-- {
		a := r.s.attempts[i]
		if repository.MatchesFilter(&a, f) {
			out = append(out, &a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
