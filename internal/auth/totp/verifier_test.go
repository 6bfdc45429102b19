package totp

import (
	"context"
	"strings"
	"testing"
	"time"

	pqotp "github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/account"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
)

func newTestVerifier(t *testing.T) (*Verifier, *account.MemoryRepository) {
	t.Helper()

	repo := account.NewMemoryRepository()
	v := NewVerifier(&config.TOTPConfig{Issuer: "FitVibe", Skew: 1}, zap.NewNop(), repo)
	return v, repo
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := pqtotp.GenerateCodeCustom(secret, at, pqtotp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    totpDigits,
		Algorithm: pqotp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestVerifier_VerifyCode_Skew(t *testing.T) {
	v, _ := newTestVerifier(t)

	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)
	v.now = func() time.Time { return now }

	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "current step", at: now, want: true},
		{name: "previous step", at: now.Add(-30 * time.Second), want: true},
		{name: "next step", at: now.Add(30 * time.Second), want: true},
		{name: "two steps back", at: now.Add(-90 * time.Second), want: false},
		{name: "two steps forward", at: now.Add(90 * time.Second), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := codeAt(t, secret, tt.at)
			assert.Equal(t, tt.want, v.VerifyCode(secret, code))
		})
	}
}

func TestVerifier_VerifyCode_Garbage(t *testing.T) {
	v, _ := newTestVerifier(t)

	assert.False(t, v.VerifyCode("JBSWY3DPEHPK3PXP", "000000"))
	assert.False(t, v.VerifyCode("JBSWY3DPEHPK3PXP", "not-a-code"))
	assert.False(t, v.VerifyCode("JBSWY3DPEHPK3PXP", ""))
}

func TestVerifier_Enroll(t *testing.T) {
	v, repo := newTestVerifier(t)
	ctx := context.Background()

	repo.Put(account.Account{
		ID:              "acct-1",
		NormalizedEmail: "user@example.com",
	})

	acct, err := repo.GetByID(ctx, "acct-1")
	require.NoError(t, err)

	enrollment, err := v.Enroll(ctx, acct)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.OTPAuthURL, "otpauth://totp/")
	assert.Len(t, enrollment.BackupCodes, backupCodeCount)

	// Secret stored but not yet binding.
	stored, err := repo.GetByID(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, stored.TOTPSecret)
	assert.Equal(t, enrollment.Secret, *stored.TOTPSecret)
	assert.False(t, stored.TOTPEnforced())

	// Confirm with a valid code makes it binding.
	ok, err := v.ConfirmEnrollment(ctx, stored, codeAt(t, enrollment.Secret, time.Now()))
	require.NoError(t, err)
	assert.True(t, ok)

	confirmed, err := repo.GetByID(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, confirmed.TOTPEnforced())

	// May not re-enroll once confirmed.
	_, err = v.Enroll(ctx, confirmed)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestVerifier_ConfirmEnrollment_WrongCode(t *testing.T) {
	v, repo := newTestVerifier(t)
	ctx := context.Background()

	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	repo.Put(account.Account{
		ID:              "acct-1",
		NormalizedEmail: "user@example.com",
		TOTPSecret:      &secret,
	})

	acct, err := repo.GetByID(ctx, "acct-1")
	require.NoError(t, err)

	ok, err := v.ConfirmEnrollment(ctx, acct, "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.GetByID(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, stored.TOTPConfirmed)
}

func TestVerifier_ConfirmEnrollment_NotEnrolled(t *testing.T) {
	v, repo := newTestVerifier(t)
	ctx := context.Background()

	repo.Put(account.Account{ID: "acct-1", NormalizedEmail: "user@example.com"})
	acct, err := repo.GetByID(ctx, "acct-1")
	require.NoError(t, err)

	_, err = v.ConfirmEnrollment(ctx, acct, "123456")
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

func TestVerifier_VerifyBackupCode_SingleUse(t *testing.T) {
	v, repo := newTestVerifier(t)
	ctx := context.Background()

	repo.Put(account.Account{ID: "acct-1", NormalizedEmail: "user@example.com"})
	acct, err := repo.GetByID(ctx, "acct-1")
	require.NoError(t, err)

	enrollment, err := v.Enroll(ctx, acct)
	require.NoError(t, err)

	code := enrollment.BackupCodes[0]

	ok, err := v.VerifyBackupCode(ctx, "acct-1", code)
	require.NoError(t, err)
	assert.True(t, ok)

	// Consumed codes never validate again.
	ok, err = v.VerifyBackupCode(ctx, "acct-1", code)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other codes remain usable.
	ok, err = v.VerifyBackupCode(ctx, "acct-1", enrollment.BackupCodes[1])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifier_VerifyBackupCode_Normalization(t *testing.T) {
	v, repo := newTestVerifier(t)
	ctx := context.Background()

	repo.Put(account.Account{ID: "acct-1", NormalizedEmail: "user@example.com"})
	acct, err := repo.GetByID(ctx, "acct-1")
	require.NoError(t, err)

	enrollment, err := v.Enroll(ctx, acct)
	require.NoError(t, err)

	// Case and separators are cosmetic.
	messy := "  " + strings.ToUpper(enrollment.BackupCodes[2]) + " "
	ok, err := v.VerifyBackupCode(ctx, "acct-1", messy)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.VerifyBackupCode(ctx, "acct-1", "")
	require.NoError(t, err)
	assert.False(t, ok)
}
