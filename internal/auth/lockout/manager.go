package lockout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/audit"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
)

// warningMargin is how close to the account limit a login may get before the
// admit decision starts carrying an attempts-remaining hint.
const warningMargin = 3

// Manager tracks failed-attempt counters per account and per IP. Password
// and TOTP failures feed the same account counter; splitting them would leak
// which factor failed.
type Manager struct {
	config *config.LockoutConfig
	log    *zap.Logger
	repo   Repository
	events audit.Sink

	now func() time.Time
}

func NewManager(config *config.LockoutConfig, log *zap.Logger, repo Repository, events audit.Sink) *Manager {
	return &Manager{
		config: config,
		log:    log,
		repo:   repo,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CheckAdmit decides whether a login attempt may proceed. accountID may be
// empty when the presented email resolved to no account; the IP counter
// still applies.
func (m *Manager) CheckAdmit(ctx context.Context, accountID, ip string) (Decision, error) {
	now := m.now()

	ipCounter, err := m.repo.IPCounter(ctx, ip)
	if err != nil {
		return Decision{}, err
	}
	if ipCounter.lockedAt(now) {
		return denyIP(ipCounter, m.config.IPMaxAttempts, now), nil
	}

	if accountID == "" {
		return admit(), nil
	}

	c, err := m.repo.AccountCounter(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}
	if c.lockedAt(now) {
		return denyAccount(c, m.config.AccountMaxAttempts, now), nil
	}

	d := admit()
	if m.windowActive(c, now) && c.AttemptCount >= m.config.AccountMaxAttempts-warningMargin {
		d.WarningAttemptsRemaining = m.config.AccountMaxAttempts - c.AttemptCount
	}
	return d, nil
}

// RecordFailure bumps the counters after a failed attempt and reports the
// resulting state: the returned decision is a deny when this failure tripped
// a lock.
func (m *Manager) RecordFailure(ctx context.Context, accountID, ip, email string) (Decision, error) {
	now := m.now()

	ipCounter, err := m.repo.BumpIPCounter(ctx, ip, hashEmail(email), now, m.config.IPWindow)
	if err != nil {
		return Decision{}, err
	}
	if ipCounter.LockedUntil == nil && ipCounter.AttemptCount >= m.config.IPMaxAttempts {
		until := now.Add(m.config.IPLockDuration)
		if err := m.repo.LockIP(ctx, ip, until); err != nil {
			return Decision{}, err
		}
		ipCounter.LockedUntil = &until

		m.events.Record(ctx, audit.Event{
			EventType: audit.EventIPLocked,
			IP:        &ip,
		})
		m.log.Warn("ip locked out",
			zap.String("ip", ip),
			zap.Int("attempts", ipCounter.AttemptCount),
			zap.Int("distinct_emails", ipCounter.DistinctEmailCount))
	}
	if ipCounter.lockedAt(now) {
		return denyIP(ipCounter, m.config.IPMaxAttempts, now), nil
	}

	if accountID == "" {
		return admit(), nil
	}

	// The bump is a single SQL expression over the stored row, so concurrent
	// failures against one account cannot lose increments. The lock runs from
	// the attempt that tripped it, not the window start.
	c, err := m.repo.BumpAccountCounter(ctx, accountID, now,
		m.config.AccountWindow, m.config.AccountMaxAttempts, m.config.AccountLockDuration)
	if err != nil {
		return Decision{}, err
	}

	if c.lockedAt(now) {
		// Atomic increments make the counts distinct across racers, so only
		// the attempt that reached the limit records the event.
		if c.AttemptCount == m.config.AccountMaxAttempts {
			m.events.Record(ctx, audit.Event{
				EventType: audit.EventAccountLocked,
				AccountID: &accountID,
				IP:        &ip,
			})
			m.log.Warn("account locked out",
				zap.String("account_id", accountID),
				zap.Int("attempts", c.AttemptCount))
		}
		return denyAccount(c, m.config.AccountMaxAttempts, now), nil
	}

	d := admit()
	if c.AttemptCount >= m.config.AccountMaxAttempts-warningMargin {
		d.WarningAttemptsRemaining = m.config.AccountMaxAttempts - c.AttemptCount
	}
	return d, nil
}

// RecordSuccess clears the account counter. IP counters deliberately persist
// across accounts to keep credential-stuffing visible.
func (m *Manager) RecordSuccess(ctx context.Context, accountID string) error {
	return m.repo.ResetAccountCounter(ctx, accountID)
}

// Run prunes stale ip/email observations on the configured interval until the
// context is cancelled. Rows outside the IP window no longer count toward the
// distinct-email signal, so only rows older than the window are reclaimed.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.log.Error("lockout sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep deletes ip/email rows last seen before the current IP window.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	before := m.now().Add(-m.config.IPWindow)
	pruned, err := m.repo.PruneEmails(ctx, before)
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		m.log.Debug("pruned lockout email observations", zap.Int64("rows", pruned))
	}
	return pruned, nil
}

func (m *Manager) windowActive(c *Counter, now time.Time) bool {
	if c.AttemptCount == 0 {
		return false
	}
	return now.Before(c.WindowStart.Add(m.config.AccountWindow))
}

func hashEmail(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
