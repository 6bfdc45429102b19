package lockout

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository persists counters. Account counters live on the accounts row
// (the account aggregate owns its lockout fields); IP counters live in
// lockout_counters, written with increment expressions because many
// concurrent logins from one address contend on the same row.
type Repository interface {
	AccountCounter(ctx context.Context, accountID string) (*Counter, error)
	// BumpAccountCounter increments the account's failure counter and sets
	// the lock when this failure reaches maxAttempts, all in one statement.
	// The increment is a SQL expression over the stored row, so concurrent
	// failures serialize on the row instead of clobbering each other.
	BumpAccountCounter(ctx context.Context, accountID string, now time.Time, window time.Duration, maxAttempts int, lockDuration time.Duration) (*Counter, error)
	ResetAccountCounter(ctx context.Context, accountID string) error

	IPCounter(ctx context.Context, ip string) (*Counter, error)
	BumpIPCounter(ctx context.Context, ip, emailHash string, now time.Time, window time.Duration) (*Counter, error)
	LockIP(ctx context.Context, ip string, until time.Time) error
	// PruneEmails drops ip/email observations older than before.
	PruneEmails(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type accountCounterRow struct {
	FailedAttemptCount int
	WindowStart        *time.Time
	LockedUntil        *time.Time
}

func (r *repository) AccountCounter(ctx context.Context, accountID string) (*Counter, error) {
	var row accountCounterRow
	err := r.db.WithContext(ctx).Table("accounts").
		Select("failed_attempt_count", "window_start", "locked_until").
		Where("id = ?", accountID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Counter{}, nil
		}
		return nil, err
	}

	c := &Counter{
		AttemptCount: row.FailedAttemptCount,
		LockedUntil:  row.LockedUntil,
	}
	if row.WindowStart != nil {
		c.WindowStart = *row.WindowStart
	}
	return c, nil
}

// BumpAccountCounter mirrors the BumpIPCounter idiom on the accounts row:
// the reset-or-increment and the lock decision are CASE expressions over the
// stored row values, evaluated by the database under the row lock. The CASEs
// reference the pre-update column values, so "count after this failure" is
// written as failed_attempt_count + 1 even in the locked_until expression.
func (r *repository) BumpAccountCounter(ctx context.Context, accountID string, now time.Time, window time.Duration, maxAttempts int, lockDuration time.Duration) (*Counter, error) {
	threshold := now.Add(-window)
	lockedUntil := now.Add(lockDuration)

	var row accountCounterRow
	err := r.db.WithContext(ctx).Raw(`
		UPDATE accounts
		SET failed_attempt_count = CASE
		        WHEN window_start IS NULL OR window_start <= ? THEN 1
		        ELSE failed_attempt_count + 1
		    END,
		    window_start = CASE
		        WHEN window_start IS NULL OR window_start <= ? THEN ?
		        ELSE window_start
		    END,
		    locked_until = CASE
		        WHEN window_start IS NULL OR window_start <= ? THEN NULL
		        WHEN failed_attempt_count + 1 >= ? THEN ?
		        ELSE locked_until
		    END
		WHERE id = ?
		RETURNING failed_attempt_count, window_start, locked_until`,
		threshold, threshold, now, threshold, maxAttempts, lockedUntil, accountID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	c := &Counter{
		AttemptCount: row.FailedAttemptCount,
		LockedUntil:  row.LockedUntil,
	}
	if row.WindowStart != nil {
		c.WindowStart = *row.WindowStart
	}
	return c, nil
}

func (r *repository) ResetAccountCounter(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Table("accounts").
		Where("id = ?", accountID).
		Updates(map[string]any{
			"failed_attempt_count": 0,
			"window_start":         nil,
			"locked_until":         nil,
		}).Error
}

type counterRow struct {
	AttemptCount int
	WindowStart  time.Time
	LockedUntil  *time.Time
}

func (r *repository) IPCounter(ctx context.Context, ip string) (*Counter, error) {
	var row counterRow
	err := r.db.WithContext(ctx).Table("lockout_counters").
		Select("attempt_count", "window_start", "locked_until").
		Where("subject_key = ?", ip).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Counter{}, nil
		}
		return nil, err
	}

	distinct, err := r.distinctEmails(ctx, ip, row.WindowStart)
	if err != nil {
		return nil, err
	}

	return &Counter{
		AttemptCount:       row.AttemptCount,
		DistinctEmailCount: distinct,
		WindowStart:        row.WindowStart,
		LockedUntil:        row.LockedUntil,
	}, nil
}

// BumpIPCounter increments the window counter, resetting it first when the
// window has elapsed. The increment is a SQL expression, not a read-modify-
// write, so concurrent failures from the same address do not lose updates.
func (r *repository) BumpIPCounter(ctx context.Context, ip, emailHash string, now time.Time, window time.Duration) (*Counter, error) {
	threshold := now.Add(-window)

	res := r.db.WithContext(ctx).Exec(`
		UPDATE lockout_counters
		SET attempt_count = CASE WHEN window_start <= ? THEN 1 ELSE attempt_count + 1 END,
		    window_start  = CASE WHEN window_start <= ? THEN ? ELSE window_start END,
		    locked_until  = CASE WHEN window_start <= ? THEN NULL ELSE locked_until END
		WHERE subject_key = ?`,
		threshold, threshold, now, threshold, ip)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		err := r.db.WithContext(ctx).Exec(`
			INSERT INTO lockout_counters (subject_key, window_start, attempt_count)
			VALUES (?, ?, 1)
			ON CONFLICT (subject_key) DO UPDATE SET attempt_count = lockout_counters.attempt_count + 1`,
			ip, now).Error
		if err != nil {
			return nil, err
		}
	}

	if err := r.db.WithContext(ctx).Exec(`
		INSERT INTO lockout_ip_emails (ip, email_hash, seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT (ip, email_hash) DO UPDATE SET seen_at = ?`,
		ip, emailHash, now, now).Error; err != nil {
		return nil, err
	}

	return r.IPCounter(ctx, ip)
}

func (r *repository) LockIP(ctx context.Context, ip string, until time.Time) error {
	return r.db.WithContext(ctx).Table("lockout_counters").
		Where("subject_key = ?", ip).
		Update("locked_until", until).Error
}

// distinctEmails counts addresses seen from the IP inside the counter's
// current window; rows from earlier windows are ignored until pruned.
func (r *repository) distinctEmails(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Table("lockout_ip_emails").
		Where("ip = ? AND seen_at >= ?", ip, since).
		Count(&n).Error
	return int(n), err
}

func (r *repository) PruneEmails(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`DELETE FROM lockout_ip_emails WHERE seen_at < ?`, before)
	return res.RowsAffected, res.Error
}
