package totp

import (
	"context"
	"errors"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/account"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
)

const (
	totpPeriod = 30
	totpDigits = otp.DigitsSix
)

var (
	ErrNotEnrolled     = errors.New("totp not enrolled")
	ErrAlreadyEnrolled = errors.New("totp already enrolled")
)

// Enrollment is what a client needs to finish setting up a second factor.
// Backup codes are returned exactly once, here; only their hashes survive.
type Enrollment struct {
	Secret      string
	OTPAuthURL  string
	BackupCodes []string
}

type Verifier struct {
	config   *config.TOTPConfig
	log      *zap.Logger
	accounts account.Repository

	now func() time.Time
}

func NewVerifier(config *config.TOTPConfig, log *zap.Logger, accounts account.Repository) *Verifier {
	return &Verifier{
		config:   config,
		log:      log,
		accounts: accounts,
		now:      time.Now,
	}
}

// VerifyCode checks a 6-digit code against the enrolled secret with ±skew
// step tolerance.
func (v *Verifier) VerifyCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, v.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      v.config.Skew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}

// Enroll generates a secret and a fresh set of backup codes for an account
// that has not confirmed a second factor yet. TOTP only becomes mandatory
// at login after ConfirmEnrollment succeeds.
func (v *Verifier) Enroll(ctx context.Context, acct *account.Account) (*Enrollment, error) {
	if acct.TOTPEnforced() {
		return nil, ErrAlreadyEnrolled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.config.Issuer,
		AccountName: acct.NormalizedEmail,
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}

	if err := v.accounts.SetTOTPSecret(ctx, acct.ID, key.Secret()); err != nil {
		return nil, err
	}

	codes, records, err := generateBackupCodes(acct.ID)
	if err != nil {
		return nil, err
	}
	if err := v.accounts.ReplaceBackupCodes(ctx, acct.ID, records); err != nil {
		return nil, err
	}

	v.log.Info("totp enrollment started", zap.String("account_id", acct.ID))

	return &Enrollment{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		BackupCodes: codes,
	}, nil
}

// ConfirmEnrollment validates one code against the pending secret and makes
// the second factor binding.
func (v *Verifier) ConfirmEnrollment(ctx context.Context, acct *account.Account, code string) (bool, error) {
	if acct.TOTPSecret == nil || *acct.TOTPSecret == "" {
		return false, ErrNotEnrolled
	}

	if !v.VerifyCode(*acct.TOTPSecret, code) {
		return false, nil
	}

	if err := v.accounts.ConfirmTOTP(ctx, acct.ID); err != nil {
		return false, err
	}
	return true, nil
}

// VerifyBackupCode consumes a one-time backup code. A code that validated
// once never validates again.
func (v *Verifier) VerifyBackupCode(ctx context.Context, accountID, code string) (bool, error) {
	normalized := normalizeBackupCode(code)
	if normalized == "" {
		return false, nil
	}
	return v.accounts.ConsumeBackupCode(ctx, accountID, hashBackupCode(normalized))
}
