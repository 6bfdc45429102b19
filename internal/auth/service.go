package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/account"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/audit"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/credential"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/lockout"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/token"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/totp"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/worker"
)

// Service orchestrates the login, refresh and logout flows across the
// lockout, credential, TOTP, issuance and token-store components. Policy
// denials come back as typed errors; only storage failures bubble up raw,
// and callers treat those as fail-closed.
type Service struct {
	log      *zap.Logger
	accounts account.Repository
	verifier *credential.Verifier
	totp     *totp.Verifier
	lockout  *lockout.Manager
	issuer   *token.Issuer
	store    token.Store
	detector *token.ReplayDetector
	events   audit.Sink
	pool     *worker.Pool
}

type ServiceParams struct {
	Log      *zap.Logger
	Accounts account.Repository
	Verifier *credential.Verifier
	TOTP     *totp.Verifier
	Lockout  *lockout.Manager
	Issuer   *token.Issuer
	Store    token.Store
	Detector *token.ReplayDetector
	Events   audit.Sink
	Pool     *worker.Pool
}

func NewService(p ServiceParams) *Service {
	return &Service{
		log:      p.Log,
		accounts: p.Accounts,
		verifier: p.Verifier,
		totp:     p.TOTP,
		lockout:  p.Lockout,
		issuer:   p.Issuer,
		store:    p.Store,
		detector: p.Detector,
		events:   p.Events,
		pool:     p.Pool,
	}
}

// Login authenticates an email/password (and second factor when enrolled)
// and starts a new refresh-token family.
func (s *Service) Login(ctx context.Context, email, password, totpCode, ip string) (*token.Pair, error) {
	normalized := account.NormalizeEmail(email)

	acct, err := s.accounts.GetByEmail(ctx, normalized)
	if err != nil && !errors.Is(err, account.ErrAccountNotFound) {
		return nil, err
	}

	accountID := ""
	if acct != nil {
		accountID = acct.ID
	}

	decision, err := s.lockout.CheckAdmit(ctx, accountID, ip)
	if err != nil {
		return nil, err
	}
	if !decision.Admitted {
		return nil, &LockedError{Decision: decision}
	}

	if acct == nil {
		// Burn the same hashing work as a real comparison so unknown emails
		// are indistinguishable by latency.
		if perr := s.pool.Do(ctx, func() { s.verifier.DummyVerify(password) }); perr != nil {
			return nil, perr
		}
		failDecision, ferr := s.lockout.RecordFailure(ctx, "", ip, normalized)
		if ferr != nil {
			return nil, ferr
		}
		if !failDecision.Admitted {
			return nil, &LockedError{Decision: failDecision}
		}
		return nil, ErrInvalidCredentials
	}

	var ok, rehash bool
	var verifyErr error
	if perr := s.pool.Do(ctx, func() {
		ok, rehash, verifyErr = s.verifier.Verify(acct.PasswordHash, password)
	}); perr != nil {
		return nil, perr
	}
	if verifyErr != nil {
		return nil, verifyErr
	}
	if !ok {
		return nil, s.failLogin(ctx, acct.ID, ip, normalized)
	}

	if acct.TOTPEnforced() {
		passed, terr := s.verifySecondFactor(ctx, acct, totpCode)
		if terr != nil {
			return nil, terr
		}
		if !passed {
			// Shares the password counter; a distinct counter would reveal
			// which factor failed.
			return nil, s.failLogin(ctx, acct.ID, ip, normalized)
		}
	}

	if err := s.lockout.RecordSuccess(ctx, acct.ID); err != nil {
		return nil, err
	}

	if rehash {
		s.rehashPassword(ctx, acct.ID, password)
	}

	pair, err := s.issuer.Issue(ctx, acct, "", nil)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, pair.RefreshRecord); err != nil {
		return nil, err
	}

	s.log.Info("login succeeded",
		zap.String("account_id", acct.ID),
		zap.String("family_id", pair.RefreshRecord.FamilyID))
	return pair, nil
}

// Refresh exchanges a live refresh token for a rotated pair. A presented
// token that was already rotated kills its whole family.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*token.Pair, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrTokenInvalid
	}

	rec, err := s.store.Lookup(ctx, token.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if err := s.detector.Validate(ctx, rec); err != nil {
		if errors.Is(err, token.ErrReplayed) || errors.Is(err, token.ErrNotLive) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	acct, err := s.accounts.GetByID(ctx, rec.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	parentHash := rec.TokenHash
	pair, err := s.issuer.Issue(ctx, acct, rec.FamilyID, &parentHash)
	if err != nil {
		return nil, err
	}

	if err := s.store.Rotate(ctx, rec.TokenHash, pair.RefreshRecord); err != nil {
		if errors.Is(err, token.ErrNotLive) {
			// Lost a concurrent rotation race on the same token: treat the
			// loser as a near-simultaneous replay.
			_ = s.detector.OnRotationLost(ctx, rec)
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	return pair, nil
}

// Logout revokes the presented token's family. Unknown or already-revoked
// tokens are a success: logout is idempotent.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil
	}

	rec, err := s.store.Lookup(ctx, token.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return nil
		}
		return err
	}

	if _, err := s.store.RevokeFamily(ctx, rec.FamilyID, timeNow()); err != nil {
		return err
	}
	return nil
}

// EnrollTOTP starts second-factor enrollment for an authenticated account.
func (s *Service) EnrollTOTP(ctx context.Context, accountID string) (*totp.Enrollment, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.totp.Enroll(ctx, acct)
}

// ConfirmTOTP makes an enrollment binding once the account proves it holds
// the secret.
func (s *Service) ConfirmTOTP(ctx context.Context, accountID, code string) error {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := s.totp.ConfirmEnrollment(ctx, acct, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	s.events.Record(ctx, audit.Event{
		EventType: audit.EventTOTPEnrolled,
		AccountID: &accountID,
	})
	return nil
}

func (s *Service) verifySecondFactor(ctx context.Context, acct *account.Account, code string) (bool, error) {
	if strings.TrimSpace(code) == "" {
		return false, nil
	}

	var passed bool
	if perr := s.pool.Do(ctx, func() {
		passed = s.totp.VerifyCode(*acct.TOTPSecret, code)
	}); perr != nil {
		return false, perr
	}
	if passed {
		return true, nil
	}

	return s.totp.VerifyBackupCode(ctx, acct.ID, code)
}

func (s *Service) failLogin(ctx context.Context, accountID, ip, email string) error {
	decision, err := s.lockout.RecordFailure(ctx, accountID, ip, email)
	if err != nil {
		return err
	}
	if !decision.Admitted {
		return &LockedError{Decision: decision}
	}
	// The attempts-remaining hint stays out of the response: a 401 body that
	// varies by account existence is an enumeration oracle. It is still worth
	// logging for operators watching a repeatedly-failing account.
	if decision.WarningAttemptsRemaining > 0 {
		s.log.Info("login failures nearing account lockout",
			zap.String("account_id", accountID),
			zap.Int("attempts_remaining", decision.WarningAttemptsRemaining))
	}
	return ErrInvalidCredentials
}

func timeNow() time.Time {
	return time.Now().UTC()
}

func (s *Service) rehashPassword(ctx context.Context, accountID, password string) {
	newHash, err := s.verifier.Hash(password)
	if err != nil {
		s.log.Error("failed to rehash password", zap.Error(err))
		return
	}
	if err := s.accounts.UpdatePasswordHash(ctx, accountID, newHash); err != nil {
		s.log.Error("failed to store rehashed password",
			zap.String("account_id", accountID),
			zap.Error(err))
	}
}
