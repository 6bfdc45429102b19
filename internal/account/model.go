package account

import (
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleCoach = "coach"
	RoleAdmin = "admin"
)

// Account is the identity record authenticated by this service. It is
// created and deactivated by the registration system; this core only reads
// it and mutates its credential and lockout fields.
type Account struct {
	ID                 string  `gorm:"primaryKey;type:uuid"`
	NormalizedEmail    string  `gorm:"uniqueIndex;not null"`
	PasswordHash       string  `gorm:"not null" json:"-"`
	Role               string  `gorm:"not null;default:user"`
	TOTPSecret         *string `gorm:"column:totp_secret" json:"-"`
	TOTPConfirmed      bool    `gorm:"column:totp_confirmed"`
	FailedAttemptCount int
	WindowStart        *time.Time
	LockedUntil        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (Account) TableName() string {
	return "accounts"
}

// TOTPEnforced reports whether login must require a second factor.
// Enrollment only becomes binding once the account confirmed a code.
func (a *Account) TOTPEnforced() bool {
	return a.TOTPSecret != nil && *a.TOTPSecret != "" && a.TOTPConfirmed
}

type BackupCode struct {
	ID         string `gorm:"primaryKey;type:uuid"`
	AccountID  string `gorm:"index;not null;type:uuid"`
	CodeHash   string `gorm:"not null" json:"-"`
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

func (BackupCode) TableName() string {
	return "backup_codes"
}

// NormalizeEmail case-folds and trims an address the way the accounts table
// stores it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
