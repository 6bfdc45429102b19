package token

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Store persists refresh-token families. Rotation is a compare-and-set on
// the presented record: only one writer can flip issued to rotated, which is
// the whole serialization story for a family.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Lookup(ctx context.Context, tokenHash string) (*Record, error)
	// Rotate atomically marks presentedHash as rotated and inserts its
	// replacement. Returns ErrNotLive when the presented record was not in
	// the issued state anymore.
	Rotate(ctx context.Context, presentedHash string, replacement *Record) error
	// RevokeFamily marks every record in the family revoked, whatever state
	// it is in. Revoking an already-revoked family is a no-op.
	RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error)
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) Create(ctx context.Context, rec *Record) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *store) Lookup(ctx context.Context, tokenHash string) (*Record, error) {
	var rec Record
	if err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *store) Rotate(ctx context.Context, presentedHash string, replacement *Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Record{}).
			Where("token_hash = ? AND revoked_at IS NULL AND replaced_by_hash IS NULL", presentedHash).
			Update("replaced_by_hash", replacement.TokenHash)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotLive
		}
		return tx.Create(replacement).Error
	})
}

func (s *store) RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Record{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Update("revoked_at", now)
	return res.RowsAffected, res.Error
}
