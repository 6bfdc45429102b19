package auth

import (
	"errors"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/lockout"
)

// Client-facing error codes. Replayed tokens and unknown kids are logged
// distinctly but surfaced as AUTH_TOKEN_INVALID: a caller must not be able
// to tell "guessed wrong" from "replayed a stolen token".
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeIPLocked           = "AUTH_IP_LOCKED"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
)

var (
	// ErrInvalidCredentials covers every credential failure: unknown email,
	// wrong password, wrong TOTP. One error, no enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
)

// LockedError carries the structured lockout decision to the transport
// layer, which renders the machine-readable countdown and attempt data.
type LockedError struct {
	Decision lockout.Decision
}

func (e *LockedError) Error() string {
	if e.Decision.LockoutType == lockout.TypeIP {
		return "too many attempts from this address"
	}
	return "account temporarily locked"
}

func (e *LockedError) Code() string {
	if e.Decision.LockoutType == lockout.TypeIP {
		return CodeIPLocked
	}
	return CodeAccountLocked
}
