package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/account"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/keys"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
)

const (
	refreshTokenBytes = 32
	// Hard cap on refresh lifetime regardless of configuration.
	maxRefreshTTL = 30 * 24 * time.Hour
	maxAccessTTL  = 15 * time.Minute
)

type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Pair is a freshly minted access/refresh pair. RefreshRecord is the row
// the caller must persist (Create for a new family, Rotate for a refresh)
// before handing the pair to the client.
type Pair struct {
	AccessToken   string
	RefreshToken  string
	Claims        *Claims
	RefreshRecord *Record
}

// Issuer mints token pairs. Access tokens are RS256 JWTs signed with the
// key manager's active key; refresh tokens are opaque random values.
type Issuer struct {
	config *config.AuthConfig
	log    *zap.Logger
	keys   *keys.Manager
}

func NewIssuer(config *config.AuthConfig, log *zap.Logger, keyManager *keys.Manager) *Issuer {
	return &Issuer{
		config: config,
		log:    log,
		keys:   keyManager,
	}
}

// Issue builds a pair for the account. An empty familyID starts a new
// family (login); a non-empty one continues an existing family (rotation),
// in which case parentHash links the new record to the presented one.
func (i *Issuer) Issue(ctx context.Context, acct *account.Account, familyID string, parentHash *string) (*Pair, error) {
	now := time.Now().UTC()

	accessToken, claims, err := i.signAccessToken(ctx, acct, now)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	refreshToken := base64.RawURLEncoding.EncodeToString(raw)

	if familyID == "" {
		familyID = uuid.NewString()
	}

	return &Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Claims:       claims,
		RefreshRecord: &Record{
			TokenHash:  HashToken(refreshToken),
			FamilyID:   familyID,
			AccountID:  acct.ID,
			ParentHash: parentHash,
			IssuedAt:   now,
			ExpiresAt:  now.Add(i.refreshTTL()),
		},
	}, nil
}

func (i *Issuer) signAccessToken(ctx context.Context, acct *account.Account, now time.Time) (string, *Claims, error) {
	key, err := i.keys.CurrentSigningKey(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("load signing key: %w", err)
	}
	priv, err := key.Private()
	if err != nil {
		return "", nil, err
	}

	claims := &Claims{
		Roles: []string{acct.Role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			Issuer:    i.config.Issuer,
			Audience:  jwt.ClaimStrings{i.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL())),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = key.KID

	signed, err := tok.SignedString(priv)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

func (i *Issuer) accessTTL() time.Duration {
	ttl := i.config.AccessTokenTTL
	if ttl <= 0 || ttl > maxAccessTTL {
		ttl = maxAccessTTL
	}
	return ttl
}

func (i *Issuer) refreshTTL() time.Duration {
	ttl := i.config.RefreshTokenTTL
	if ttl <= 0 || ttl > maxRefreshTTL {
		ttl = maxRefreshTTL
	}
	return ttl
}
