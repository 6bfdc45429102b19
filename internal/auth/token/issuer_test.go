package token

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/account"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/keys"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
)

func newTestIssuer(t *testing.T) (*Issuer, *keys.Manager) {
	t.Helper()

	keyManager := keys.NewManager(&config.KeysConfig{
		OverlapWindow: 24 * time.Hour,
		SweepInterval: time.Minute,
	}, zap.NewNop(), keys.NewMemoryRepository())

	issuer := NewIssuer(&config.AuthConfig{
		Issuer:          "fitvibe",
		Audience:        "fitvibe-api",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 14 * 24 * time.Hour,
	}, zap.NewNop(), keyManager)

	return issuer, keyManager
}

func testAccount() *account.Account {
	return &account.Account{
		ID:              "3f2c1d7e-0000-4000-8000-000000000001",
		NormalizedEmail: "user@example.com",
		Role:            account.RoleUser,
	}
}

func TestIssuer_Issue(t *testing.T) {
	issuer, keyManager := newTestIssuer(t)
	ctx := context.Background()

	pair, err := issuer.Issue(ctx, testAccount(), "", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	// The raw refresh token is never stored, only its hash.
	rec := pair.RefreshRecord
	require.NotNil(t, rec)
	assert.Equal(t, HashToken(pair.RefreshToken), rec.TokenHash)
	assert.NotEqual(t, pair.RefreshToken, rec.TokenHash)
	assert.NotEmpty(t, rec.FamilyID)
	assert.Nil(t, rec.ParentHash)
	assert.WithinDuration(t, time.Now().UTC().Add(14*24*time.Hour), rec.ExpiresAt, time.Minute)

	// The access token verifies against the active key and carries kid.
	active, err := keyManager.CurrentSigningKey(ctx)
	require.NoError(t, err)

	var claims Claims
	parsed, err := jwt.ParseWithClaims(pair.AccessToken, &claims, func(tok *jwt.Token) (interface{}, error) {
		assert.Equal(t, active.KID, tok.Header["kid"])
		return active.Public()
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)

	assert.Equal(t, testAccount().ID, claims.Subject)
	assert.Equal(t, "fitvibe", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"fitvibe-api"}, claims.Audience)
	assert.Equal(t, []string{account.RoleUser}, claims.Roles)

	expiry := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	assert.Equal(t, 15*time.Minute, expiry)
}

func TestIssuer_IssueContinuesFamily(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	ctx := context.Background()

	first, err := issuer.Issue(ctx, testAccount(), "", nil)
	require.NoError(t, err)

	parent := first.RefreshRecord.TokenHash
	second, err := issuer.Issue(ctx, testAccount(), first.RefreshRecord.FamilyID, &parent)
	require.NoError(t, err)

	assert.Equal(t, first.RefreshRecord.FamilyID, second.RefreshRecord.FamilyID)
	require.NotNil(t, second.RefreshRecord.ParentHash)
	assert.Equal(t, parent, *second.RefreshRecord.ParentHash)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestIssuer_TTLCaps(t *testing.T) {
	tests := []struct {
		name        string
		accessTTL   time.Duration
		refreshTTL  time.Duration
		wantAccess  time.Duration
		wantRefresh time.Duration
	}{
		{
			name:        "configured within caps",
			accessTTL:   5 * time.Minute,
			refreshTTL:  7 * 24 * time.Hour,
			wantAccess:  5 * time.Minute,
			wantRefresh: 7 * 24 * time.Hour,
		},
		{
			name:        "over cap clamps",
			accessTTL:   2 * time.Hour,
			refreshTTL:  365 * 24 * time.Hour,
			wantAccess:  15 * time.Minute,
			wantRefresh: 30 * 24 * time.Hour,
		},
		{
			name:        "zero falls back to cap",
			accessTTL:   0,
			refreshTTL:  0,
			wantAccess:  15 * time.Minute,
			wantRefresh: 30 * 24 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := &Issuer{config: &config.AuthConfig{
				AccessTokenTTL:  tt.accessTTL,
				RefreshTokenTTL: tt.refreshTTL,
			}}
			assert.Equal(t, tt.wantAccess, issuer.accessTTL())
			assert.Equal(t, tt.wantRefresh, issuer.refreshTTL())
		})
	}
}
