// Package sql is the relational Store, backed by gorm with a sqlite or
// mysql dialect.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/models"
	"admin-auth-service/internal/repository"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

var _ repository.Store = (*Store)(nil)

// Open connects using the configured dialect and migrates the schema.
func Open(cfg *config.Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.SQL.Dialect {
	case "mysql":
		dialector = mysql.New(mysql.Config{
			DSN:               cfg.SQL.DSN,
			DefaultStringSize: 191,
		})
	case "sqlite":
		dialector = sqlite.Open(cfg.SQL.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", cfg.SQL.Dialect)
	}

	logLevel := logger.Warn
	if cfg.IsDevelopment() {
		logLevel = logger.Silent
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if cfg.SQL.Dialect == "sqlite" {
		// sqlite allows one writer; a single connection serializes
		// transactions instead of failing them with SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("resolve sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewStore(db)
}

// NewStore wraps an open connection and runs auto-migration.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&accountRecord{},
		&sessionRecord{},
		&resetTokenRecord{},
		&loginAttemptRecord{},
	); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Accounts() repository.AccountRepository           { return accountRepo{s.db} }
func (s *Store) Sessions() repository.SessionRepository           { return sessionRepo{s.db} }
func (s *Store) ResetTokens() repository.ResetTokenRepository     { return resetRepo{s.db} }
func (s *Store) LoginAttempts() repository.LoginAttemptRepository { return attemptRepo{s.db} }

func (s *Store) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RedeemPasswordReset flips used with a conditional update, so of several
// concurrent redemptions exactly one sees a row affected.
func (s *Store) RedeemPasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.PasswordResetToken, error) {
	var redeemed *models.PasswordResetToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec resetTokenRecord
		if err := tx.Where("token_hash = ?", tokenHash).First(&rec).Error; err != nil {
			return translate(err)
		}

		res := tx.Model(&resetTokenRecord{}).
			Where("id = ? AND used = ? AND expires_at >= ?", rec.ID, false, now.UTC()).
			Update("used", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrConflict
		}

		res = tx.Model(&accountRecord{}).
			Where("id = ?", rec.AccountID).
			Updates(map[string]interface{}{"password_hash": passwordHash, "updated_at": now.UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}

		rec.Used = true
		redeemed = rec.model()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redeemed, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repository.ErrDuplicate
	default:
		return err
	}
}

// exists distinguishes "no row matched the condition" from "no row".
func exists(tx *gorm.DB, model interface{}, id string) (bool, error) {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

type accountRepo struct{ db *gorm.DB }

func (r accountRepo) Create(ctx context.Context, a *models.AdminAccount) error {
	return translate(r.db.WithContext(ctx).Create(fromAccount(a)).Error)
}

func (r accountRepo) GetByID(ctx context.Context, id string) (*models.AdminAccount, error) {
	var rec accountRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return rec.model(), nil
}

func (r accountRepo) GetByEmail(ctx context.Context, email string) (*models.AdminAccount, error) {
	var rec accountRecord
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return rec.model(), nil
}

func (r accountRepo) List(ctx context.Context) ([]*models.AdminAccount, error) {
	var recs []accountRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*models.AdminAccount, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].model())
	}
	return out, nil
}

func (r accountRepo) Count(ctx context.Context) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&accountRecord{}).Count(&n).Error
	return int(n), err
}

func (r accountRepo) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&accountRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"password_hash": hash, "updated_at": now.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r accountRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&accountRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type sessionRepo struct{ db *gorm.DB }

func (r sessionRepo) Create(ctx context.Context, s *models.Session) error {
	return translate(r.db.WithContext(ctx).Create(fromSession(s)).Error)
}

func (r sessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	var rec sessionRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return rec.model(), nil
}

func (r sessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var rec sessionRecord
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return rec.model(), nil
}

// updateActive applies updates to an active session. found reports whether
// the session exists at all when nothing was updated.
func (r sessionRepo) updateActive(ctx context.Context, id string, updates map[string]interface{}) (updated, found bool, err error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&sessionRecord{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(updates)
	if res.Error != nil {
		return false, false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, true, nil
	}
	found, err = exists(db, &sessionRecord{}, id)
	return false, found, err
}

func (r sessionRepo) Touch(ctx context.Context, id string, lastActivity time.Time) error {
	_, found, err := r.updateActive(ctx, id, map[string]interface{}{"last_activity": lastActivity.UTC()})
	if err != nil {
		return err
	}
	if !found {
		return repository.ErrNotFound
	}
	return nil
}

func (r sessionRepo) Extend(ctx context.Context, id string, expiresAt, lastActivity time.Time) error {
	updated, found, err := r.updateActive(ctx, id, map[string]interface{}{
		"expires_at":    expiresAt.UTC(),
		"last_activity": lastActivity.UTC(),
	})
	switch {
	case err != nil:
		return err
	case !found:
		return repository.ErrNotFound
	case !updated:
		return repository.ErrConflict
	}
	return nil
}

func (r sessionRepo) Deactivate(ctx context.Context, id, reason string) (bool, error) {
	updated, found, err := r.updateActive(ctx, id, map[string]interface{}{
		"is_active":      false,
		"revoked_reason": reason,
	})
	if err != nil {
		return false, err
	}
	if !found {
		return false, repository.ErrNotFound
	}
	return updated, nil
}

func (r sessionRepo) DeactivateAll(ctx context.Context, accountID, exceptID, reason string) (int, error) {
	q := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("account_id = ? AND is_active = ?", accountID, true)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	res := q.Updates(map[string]interface{}{"is_active": false, "revoked_reason": reason})
	return int(res.RowsAffected), res.Error
}

func (r sessionRepo) ListActive(ctx context.Context, accountID string, now time.Time) ([]*models.Session, error) {
	var recs []sessionRecord
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND is_active = ? AND expires_at >= ?", accountID, true, now.UTC()).
		Order("last_activity DESC, created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.Session, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].model())
	}
	return out, nil
}

func (r sessionRepo) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("is_active = ? AND expires_at >= ?", true, now.UTC()).
		Count(&n).Error
	return int(n), err
}

func (r sessionRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	res := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("is_active = ? AND expires_at < ?", true, now.UTC()).
		Updates(map[string]interface{}{"is_active": false, "revoked_reason": models.RevokedExpired})
	return int(res.RowsAffected), res.Error
}

type resetRepo struct{ db *gorm.DB }

func (r resetRepo) Create(ctx context.Context, t *models.PasswordResetToken) error {
	return translate(r.db.WithContext(ctx).Create(fromResetToken(t)).Error)
}

func (r resetRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	var rec resetTokenRecord
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return rec.model(), nil
}

func (r resetRepo) ListByAccount(ctx context.Context, accountID string) ([]*models.PasswordResetToken, error) {
	var recs []resetTokenRecord
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at DESC").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.PasswordResetToken, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].model())
	}
	return out, nil
}

func (r resetRepo) InvalidateUnused(ctx context.Context, accountID string) (int, error) {
	res := r.db.WithContext(ctx).Model(&resetTokenRecord{}).
		Where("account_id = ? AND used = ?", accountID, false).
		Update("used", true)
	return int(res.RowsAffected), res.Error
}

func (r resetRepo) PurgeStale(ctx context.Context, now, createdBefore time.Time) (int, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ? AND (used = ? OR expires_at < ?)", createdBefore.UTC(), true, now.UTC()).
		Delete(&resetTokenRecord{})
	return int(res.RowsAffected), res.Error
}

type attemptRepo struct{ db *gorm.DB }

func (r attemptRepo) Record(ctx context.Context, a *models.LoginAttempt) error {
	return translate(r.db.WithContext(ctx).Create(fromLoginAttempt(a)).Error)
}

func (r attemptRepo) List(ctx context.Context, f models.AttemptFilter) ([]*models.LoginAttempt, error) {
	q := r.db.WithContext(ctx).Model(&loginAttemptRecord{})
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		q = q.Where("created_at <= ?", f.Until.UTC())
	}
	if f.FailuresOnly {
		q = q.Where("success = ?", false)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var recs []loginAttemptRecord
	if err := q.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*models.LoginAttempt, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].model())
	}
	return out, nil
}
