package auth

import (
	"testing"
	"time"

	pqotp "github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/account"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/audit"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/credential"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/keys"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/lockout"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/token"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/totp"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/worker"
)

const (
	testAccountID = "3f2c1d7e-0000-4000-8000-000000000001"
	testEmail     = "user@example.com"
	testPassword  = "correct-horse-battery-staple"
	testIP        = "192.0.2.10"
)

// fixture bundles the in-memory components behind a Service so tests can
// reach into any of them.
type fixture struct {
	service  *Service
	accounts *account.MemoryRepository
	store    *token.MemoryStore
	events   *audit.MemorySink
	lockout  *lockout.Manager
	keys     *keys.Manager
}

func newTestFixture(t *testing.T) *fixture {
	t.Helper()

	log := zap.NewNop()
	accounts := account.NewMemoryRepository()
	events := audit.NewMemorySink()
	store := token.NewMemoryStore()

	keyManager := keys.NewManager(&config.KeysConfig{
		OverlapWindow: 24 * time.Hour,
		SweepInterval: time.Minute,
	}, log, keys.NewMemoryRepository())

	lockoutManager := lockout.NewManager(&config.LockoutConfig{
		AccountMaxAttempts:  10,
		AccountWindow:       15 * time.Minute,
		AccountLockDuration: 15 * time.Minute,
		IPMaxAttempts:       50,
		IPWindow:            10 * time.Minute,
		IPLockDuration:      10 * time.Minute,
	}, log, lockout.NewMemoryRepository(), events)

	issuer := token.NewIssuer(&config.AuthConfig{
		Issuer:          "fitvibe",
		Audience:        "fitvibe-api",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 14 * 24 * time.Hour,
	}, log, keyManager)

	service := NewService(ServiceParams{
		Log:      log,
		Accounts: accounts,
		Verifier: credential.NewVerifier(),
		TOTP:     totp.NewVerifier(&config.TOTPConfig{Issuer: "FitVibe", Skew: 1}, log, accounts),
		Lockout:  lockoutManager,
		Issuer:   issuer,
		Store:    store,
		Detector: token.NewReplayDetector(store, events, log),
		Events:   events,
		Pool:     worker.NewPool(4),
	})

	return &fixture{
		service:  service,
		accounts: accounts,
		store:    store,
		events:   events,
		lockout:  lockoutManager,
		keys:     keyManager,
	}
}

// seedAccount registers the standard test account. The stored hash is
// bcrypt so login tests also cover the legacy-format path.
func (f *fixture) seedAccount(t *testing.T) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	f.accounts.Put(account.Account{
		ID:              testAccountID,
		NormalizedEmail: testEmail,
		PasswordHash:    string(hash),
		Role:            account.RoleUser,
	})
}

// totpCodeNow computes the current code for a secret, the same way an
// authenticator app would.
func totpCodeNow(t *testing.T, secret string) string {
	t.Helper()

	code, err := pqtotp.GenerateCodeCustom(secret, time.Now(), pqtotp.ValidateOpts{
		Period:    30,
		Digits:    pqotp.DigitsSix,
		Algorithm: pqotp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}
