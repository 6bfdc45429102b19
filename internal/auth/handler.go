package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/keys"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/lockout"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	keys    *keys.Manager
	cookies *config.CookieConfig
	log     *zap.Logger
}

func NewHandler(service *Service, keyManager *keys.Manager, cookies *config.CookieConfig, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		keys:    keyManager,
		cookies: cookies,
		log:     log,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totpCode"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// lockoutDetails is the fixed field set for lockout denials. The optional
// fields only appear on IP denials.
type lockoutDetails struct {
	RemainingSeconds   int    `json:"remainingSeconds"`
	LockoutType        string `json:"lockoutType"`
	AttemptCount       int    `json:"attemptCount"`
	MaxAttempts        int    `json:"maxAttempts"`
	TotalAttemptCount  int    `json:"totalAttemptCount,omitempty"`
	DistinctEmailCount int    `json:"distinctEmailCount,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeBody(w, r, &body) {
		return
	}

	// No shape pre-check on the email: a malformed address takes the same
	// unknown-account path as a wrong one, so it burns the same hashing work
	// and counts toward the source IP like every other failure.
	pair, err := h.service.Login(r.Context(), body.Email, body.Password, body.TOTPCode, clientIP(r))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshRecord.ExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeBody(w, r, &body) {
		return
	}

	raw := h.refreshTokenFrom(r, body.RefreshToken)
	pair, err := h.service.Refresh(r.Context(), raw)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshRecord.ExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeBody(w, r, &body) {
		return
	}

	raw := h.refreshTokenFrom(r, body.RefreshToken)
	if err := h.service.Logout(r.Context(), raw); err != nil {
		h.log.Error("logout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", nil)
		return
	}

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	set, err := h.keys.PublicKeySet(r.Context())
	if err != nil {
		h.log.Error("failed to build jwks", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", nil)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

type enrollResponse struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauthUrl"`
	BackupCodes []string `json:"backupCodes"`
}

type confirmRequest struct {
	Code string `json:"code"`
}

func (h *Handler) EnrollTOTP(w http.ResponseWriter, r *http.Request) {
	accountID, err := AccountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, CodeTokenInvalid, nil)
		return
	}

	enrollment, err := h.service.EnrollTOTP(r.Context(), accountID)
	if err != nil {
		h.log.Error("totp enrollment failed",
			zap.String("account_id", accountID),
			zap.Error(err))
		writeError(w, http.StatusConflict, "AUTH_TOTP_ALREADY_ENROLLED", nil)
		return
	}

	writeJSON(w, http.StatusOK, enrollResponse{
		Secret:      enrollment.Secret,
		OTPAuthURL:  enrollment.OTPAuthURL,
		BackupCodes: enrollment.BackupCodes,
	})
}

func (h *Handler) ConfirmTOTP(w http.ResponseWriter, r *http.Request) {
	accountID, err := AccountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, CodeTokenInvalid, nil)
		return
	}

	var body confirmRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if err := h.service.ConfirmTOTP(r.Context(), accountID, body.Code); err != nil {
		h.writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	var locked *LockedError
	if errors.As(err, &locked) {
		status := http.StatusForbidden
		if locked.Decision.LockoutType == lockout.TypeIP {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, locked.Code(), lockoutDetails{
			RemainingSeconds:   locked.Decision.RemainingSeconds,
			LockoutType:        string(locked.Decision.LockoutType),
			AttemptCount:       locked.Decision.AttemptCount,
			MaxAttempts:        locked.Decision.MaxAttempts,
			TotalAttemptCount:  locked.Decision.TotalAttemptCount,
			DistinctEmailCount: locked.Decision.DistinctEmailCount,
		})
		return
	}

	// Every credential failure renders the same bare 401: any extra detail
	// on this body would let a caller tell known accounts from unknown ones.
	if errors.Is(err, ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, nil)
		return
	}
	if errors.Is(err, ErrTokenInvalid) {
		writeError(w, http.StatusUnauthorized, CodeTokenInvalid, nil)
		return
	}

	// Storage failures fail closed.
	h.log.Error("auth operation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "INTERNAL", nil)
}

func (h *Handler) refreshTokenFrom(r *http.Request, fromBody string) string {
	if strings.TrimSpace(fromBody) != "" {
		return fromBody
	}
	if h.cookies.Enabled {
		if c, err := r.Cookie(h.cookies.Name); err == nil {
			return c.Value
		}
	}
	return ""
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, raw string, expires time.Time) {
	if !h.cookies.Enabled {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    raw,
		Path:     "/auth",
		Domain:   h.cookies.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: sameSite(h.cookies.SameSite),
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	if !h.cookies.Enabled {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    "",
		Path:     "/auth",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: sameSite(h.cookies.SameSite),
	})
}

func sameSite(mode string) http.SameSite {
	if strings.EqualFold(mode, "lax") {
		return http.SameSiteLaxMode
	}
	return http.SameSiteStrictMode
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", nil)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	// SplitHostPort handles bracketed IPv6 literals; naive splitting on the
	// first colon would fold every v6 client into one lockout key.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, details any) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Details: details}})
}
