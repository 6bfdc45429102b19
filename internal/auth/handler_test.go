package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/keys"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
)

func newTestHandler(t *testing.T) (*Handler, *fixture) {
	t.Helper()

	f := newTestFixture(t)
	h := NewHandler(f.service, f.keys, &config.CookieConfig{
		Name:     "fv_refresh",
		SameSite: "strict",
	}, zap.NewNop())
	return h, f
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = testIP + ":51234"

	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_Login(t *testing.T) {
	h, f := newTestHandler(t)
	f.seedAccount(t)

	rec := postJSON(t, h.Login, "/auth/login", loginRequest{
		Email:    testEmail,
		Password: testPassword,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.AccessToken)
	assert.NotEmpty(t, body.RefreshToken)
}

func TestHandler_LoginInvalidCredentials(t *testing.T) {
	h, f := newTestHandler(t)
	f.seedAccount(t)

	tests := []struct {
		name string
		req  loginRequest
	}{
		{name: "wrong password", req: loginRequest{Email: testEmail, Password: "wrong"}},
		{name: "unknown email", req: loginRequest{Email: "ghost@example.com", Password: testPassword}},
		{name: "malformed email", req: loginRequest{Email: "not-an-email", Password: testPassword}},
		{name: "empty password", req: loginRequest{Email: testEmail}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.Login, "/auth/login", tt.req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, CodeInvalidCredentials, decodeErrorBody(t, rec).Error.Code)
		})
	}
}

func TestHandler_LoginMalformedBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_LoginAccountLockedEnvelope(t *testing.T) {
	h, f := newTestHandler(t)
	f.seedAccount(t)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 10; i++ {
		rec = postJSON(t, h.Login, "/auth/login", loginRequest{
			Email:    testEmail,
			Password: "wrong-password",
		})
	}

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, CodeAccountLocked, body.Error.Code)

	details, ok := body.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "account", details["lockoutType"])
	assert.Equal(t, float64(10), details["attemptCount"])
	assert.Equal(t, float64(10), details["maxAttempts"])
	assert.Positive(t, details["remainingSeconds"])
}

func TestHandler_LoginRejectionBodyIsUniform(t *testing.T) {
	h, f := newTestHandler(t)
	f.seedAccount(t)

	// Push the real account deep into its counter, where the admit decision
	// carries a pre-lockout hint internally.
	var known *httptest.ResponseRecorder
	for i := 0; i < 7; i++ {
		known = postJSON(t, h.Login, "/auth/login", loginRequest{
			Email:    testEmail,
			Password: "wrong-password",
		})
	}
	unknown := postJSON(t, h.Login, "/auth/login", loginRequest{
		Email:    "ghost@example.com",
		Password: "wrong-password",
	})

	// Byte-identical 401s: a body that varied with account existence or
	// counter depth would let a caller enumerate registered emails.
	require.Equal(t, http.StatusUnauthorized, known.Code)
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, unknown.Body.String(), known.Body.String())
	assert.Nil(t, decodeErrorBody(t, known).Error.Details)
}

func TestHandler_LoginIPLockedEnvelope(t *testing.T) {
	h, f := newTestHandler(t)
	f.seedAccount(t)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 50; i++ {
		rec = postJSON(t, h.Login, "/auth/login", loginRequest{
			Email:    fmt.Sprintf("victim-%d@example.com", i),
			Password: "wrong-password",
		})
	}

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, CodeIPLocked, body.Error.Code)

	details, ok := body.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ip", details["lockoutType"])
	assert.Equal(t, float64(50), details["totalAttemptCount"])
	assert.Equal(t, float64(50), details["distinctEmailCount"])
}

func TestHandler_LoginMalformedEmailsCountTowardIPLock(t *testing.T) {
	h, _ := newTestHandler(t)

	// Addresses that are not even email-shaped get no shortcut: each one
	// burns the unknown-account path and feeds the source IP counter.
	var rec *httptest.ResponseRecorder
	for i := 0; i < 50; i++ {
		rec = postJSON(t, h.Login, "/auth/login", loginRequest{
			Email:    fmt.Sprintf("garbage-%d", i),
			Password: "whatever",
		})
	}

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeIPLocked, decodeErrorBody(t, rec).Error.Code)
}

func TestHandler_RefreshAndReplay(t *testing.T) {
	h, f := newTestHandler(t)
	f.seedAccount(t)

	login := postJSON(t, h.Login, "/auth/login", loginRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, login.Code)

	var issued tokenResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &issued))

	refreshed := postJSON(t, h.Refresh, "/auth/refresh", refreshRequest{RefreshToken: issued.RefreshToken})
	require.Equal(t, http.StatusOK, refreshed.Code)

	// Replaying the consumed token is indistinguishable from a bad token.
	replay := postJSON(t, h.Refresh, "/auth/refresh", refreshRequest{RefreshToken: issued.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
	assert.Equal(t, CodeTokenInvalid, decodeErrorBody(t, replay).Error.Code)
}

func TestHandler_LogoutIdempotent(t *testing.T) {
	h, f := newTestHandler(t)
	f.seedAccount(t)

	login := postJSON(t, h.Login, "/auth/login", loginRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, login.Code)

	var issued tokenResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &issued))

	first := postJSON(t, h.Logout, "/auth/logout", refreshRequest{RefreshToken: issued.RefreshToken})
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := postJSON(t, h.Logout, "/auth/logout", refreshRequest{RefreshToken: issued.RefreshToken})
	assert.Equal(t, http.StatusNoContent, second.Code)

	unknown := postJSON(t, h.Logout, "/auth/logout", refreshRequest{RefreshToken: "never-issued"})
	assert.Equal(t, http.StatusNoContent, unknown.Code)
}

func TestHandler_JWKS(t *testing.T) {
	h, f := newTestHandler(t)

	// Force key initialization.
	_, err := f.keys.CurrentSigningKey(context.Background())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()
	h.JWKS(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var set keys.JWKSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "RSA", set.Keys[0].Kty)
	assert.Equal(t, "RS256", set.Keys[0].Alg)
	assert.NotEmpty(t, set.Keys[0].Kid)
	assert.NotEmpty(t, set.Keys[0].N)
}

func TestHandler_RefreshCookieFlow(t *testing.T) {
	f := newTestFixture(t)
	f.seedAccount(t)
	h := NewHandler(f.service, f.keys, &config.CookieConfig{
		Enabled:  true,
		Name:     "fv_refresh",
		Secure:   true,
		SameSite: "strict",
	}, zap.NewNop())

	login := postJSON(t, h.Login, "/auth/login", loginRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, login.Code)

	cookies := login.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, "fv_refresh", cookie.Name)
	assert.NotEmpty(t, cookie.Value)
	assert.Equal(t, "/auth", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	// Refresh with no body token falls back to the cookie.
	payload, err := json.Marshal(refreshRequest{})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(payload))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Logout clears the cookie.
	payload, err = json.Marshal(refreshRequest{})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", bytes.NewReader(payload))
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.Logout(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)
	assert.Negative(t, cleared[0].MaxAge)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "remote addr", remoteAddr: "203.0.113.5:41000", want: "203.0.113.5"},
		{name: "ipv6 remote addr", remoteAddr: "[2001:db8::1]:51234", want: "2001:db8::1"},
		{name: "ipv6 clients stay distinct", remoteAddr: "[2001:db8::2]:51234", want: "2001:db8::2"},
		{name: "forwarded single", remoteAddr: "10.0.0.1:80", forwarded: "198.51.100.7", want: "198.51.100.7"},
		{name: "forwarded chain takes first", remoteAddr: "10.0.0.1:80", forwarded: "198.51.100.7, 10.0.0.2", want: "198.51.100.7"},
		{name: "no port falls back to raw addr", remoteAddr: "203.0.113.5", want: "203.0.113.5"},
		{name: "empty", remoteAddr: "", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
