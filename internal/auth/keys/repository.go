package keys

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, key *SigningKey) error
	Active(ctx context.Context) (*SigningKey, error)
	ByKID(ctx context.Context, kid string) (*SigningKey, error)
	NonRetired(ctx context.Context) ([]SigningKey, error)
	// Rotate demotes the current active key to overlap and installs newKey as
	// active inside one transaction.
	Rotate(ctx context.Context, newKey *SigningKey, retireAt time.Time) error
	DemoteExpiredOverlap(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, key *SigningKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

func (r *repository) Active(ctx context.Context) (*SigningKey, error) {
	var key SigningKey
	if err := r.db.WithContext(ctx).Where("state = ?", StateActive).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (r *repository) ByKID(ctx context.Context, kid string) (*SigningKey, error) {
	var key SigningKey
	if err := r.db.WithContext(ctx).Where("kid = ?", kid).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (r *repository) NonRetired(ctx context.Context) ([]SigningKey, error) {
	var out []SigningKey
	err := r.db.WithContext(ctx).
		Where("state IN ?", []State{StateActive, StateOverlap}).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *repository) Rotate(ctx context.Context, newKey *SigningKey, retireAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&SigningKey{}).
			Where("state = ?", StateActive).
			Updates(map[string]any{"state": StateOverlap, "retire_at": retireAt}).Error; err != nil {
			return err
		}
		newKey.State = StateActive
		return tx.Create(newKey).Error
	})
}

func (r *repository) DemoteExpiredOverlap(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&SigningKey{}).
		Where("state = ? AND retire_at <= ?", StateOverlap, now).
		Updates(map[string]any{"state": StateRetired, "retired_at": now})
	return res.RowsAffected, res.Error
}
