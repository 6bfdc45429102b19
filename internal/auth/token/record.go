package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrTokenNotFound means the presented hash matches no record.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrNotLive means a compare-and-set rotation lost to a concurrent
	// writer: the record was no longer in the issued state.
	ErrNotLive = errors.New("refresh token is not live")
)

// Record is one link in a refresh-token family. Only the SHA-256 hash of
// the opaque token is ever stored; the raw value exists nowhere but in the
// client's hands.
//
// State machine: issued -> rotated | revoked | expired. A record is live
// (issued) while RevokedAt and ReplacedByHash are both unset; at most one
// record per family is ever live.
type Record struct {
	TokenHash      string  `gorm:"primaryKey"`
	FamilyID       string  `gorm:"index;not null;type:uuid"`
	AccountID      string  `gorm:"index;not null;type:uuid"`
	ParentHash     *string `gorm:"column:parent_hash"`
	IssuedAt       time.Time
	ExpiresAt      time.Time `gorm:"index"`
	RevokedAt      *time.Time
	ReplacedByHash *string `gorm:"column:replaced_by_hash"`
}

func (Record) TableName() string {
	return "refresh_tokens"
}

func (r *Record) Rotated() bool {
	return r.ReplacedByHash != nil
}

func (r *Record) Revoked() bool {
	return r.RevokedAt != nil
}

func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *Record) Live(now time.Time) bool {
	return !r.Rotated() && !r.Revoked() && !r.Expired(now)
}

// HashToken fingerprints a raw refresh token for storage and lookup.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
