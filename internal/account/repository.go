package account

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account not found")

// Repository is the AccountLookup capability plus the narrow set of writes
// this core performs (credential rehash, TOTP lifecycle, backup codes).
type Repository interface {
	GetByEmail(ctx context.Context, normalizedEmail string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetTOTPSecret(ctx context.Context, id, secret string) error
	ConfirmTOTP(ctx context.Context, id string) error
	ReplaceBackupCodes(ctx context.Context, id string, codes []BackupCode) error
	ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByEmail(ctx context.Context, normalizedEmail string) (*Account, error) {
	var acct Account
	if err := r.db.WithContext(ctx).Where("normalized_email = ?", normalizedEmail).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Account, error) {
	var acct Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

func (r *repository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Update("password_hash", hash).Error
}

func (r *repository) SetTOTPSecret(ctx context.Context, id, secret string) error {
	return r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Updates(map[string]any{"totp_secret": secret, "totp_confirmed": false}).Error
}

func (r *repository) ConfirmTOTP(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Update("totp_confirmed", true).Error
}

func (r *repository) ReplaceBackupCodes(ctx context.Context, id string, codes []BackupCode) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&BackupCode{}).Error; err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		return tx.Create(&codes).Error
	})
}

// ConsumeBackupCode marks a backup code used. The conditional update is the
// single-use guarantee: a consumed code never matches again.
func (r *repository) ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&BackupCode{}).
		Where("account_id = ? AND code_hash = ? AND consumed_at IS NULL", id, codeHash).
		Update("consumed_at", time.Now().UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
