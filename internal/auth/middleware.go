package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/audit"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/keys"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/token"
)

type contextKey string

const (
	accountContextKey contextKey = "account"
	rolesContextKey   contextKey = "roles"
)

// Middleware authenticates requests with an RS256 access token, resolving
// the verification key by the token's kid.
type Middleware struct {
	keys   *keys.Manager
	events audit.Sink
	log    *zap.Logger
}

func NewMiddleware(keyManager *keys.Manager, events audit.Sink, log *zap.Logger) *Middleware {
	return &Middleware{
		keys:   keyManager,
		events: events,
		log:    log,
	}
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeTokenInvalid, nil)
			return
		}

		claims, err := m.validate(r.Context(), raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeTokenInvalid, nil)
			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, claims.Subject)
		ctx = context.WithValue(ctx, rolesContextKey, claims.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) validate(ctx context.Context, raw string) (*token.Claims, error) {
	claims := &token.Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}

		key, err := m.keys.KeyFor(ctx, kid)
		if err != nil {
			if errors.Is(err, keys.ErrKeyNotFound) {
				// A kid no key ever had is a possible rollback or downgrade
				// attempt; record it, deny like any bad token.
				m.events.Record(ctx, audit.Event{
					EventType: audit.EventUnknownKey,
					Detail:    fmt.Sprintf("kid=%s", kid),
				})
			}
			return nil, err
		}
		return key.Public()
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}

// AccountIDFromContext returns the authenticated account ID placed there by
// Authenticate.
func AccountIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(accountContextKey).(string)
	if !ok || id == "" {
		return "", errors.New("account not found in context")
	}
	return id, nil
}

// RolesFromContext returns the authenticated token's role claims.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesContextKey).([]string)
	return roles
}
