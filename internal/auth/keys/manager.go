package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
)

const rsaKeyBits = 2048

// Manager owns the signing-key lifecycle: one active key, zero or more
// overlap keys still accepted for verification, and retired keys kept for
// in-flight tokens. Rotation is a single transaction guarded by a mutex so
// concurrent triggers cannot produce two active keys.
type Manager struct {
	config *config.KeysConfig
	log    *zap.Logger
	repo   Repository

	rotateMu sync.Mutex
}

func NewManager(config *config.KeysConfig, log *zap.Logger, repo Repository) *Manager {
	return &Manager{
		config: config,
		log:    log,
		repo:   repo,
	}
}

// CurrentSigningKey returns the active key, generating the first one on a
// fresh install. Self-initialization is the only path allowed to create an
// active key outside of Rotate.
func (m *Manager) CurrentSigningKey(ctx context.Context) (*SigningKey, error) {
	key, err := m.repo.Active(ctx)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	// Re-check under the lock; another caller may have initialized already.
	key, err = m.repo.Active(ctx)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	key, err = generateKey()
	if err != nil {
		return nil, err
	}
	key.State = StateActive

	if err := m.repo.Create(ctx, key); err != nil {
		// Lost a cross-instance race on the unique active index.
		if existing, activeErr := m.repo.Active(ctx); activeErr == nil {
			return existing, nil
		}
		return nil, err
	}

	m.log.Info("initialized first signing key", zap.String("kid", key.KID))
	return key, nil
}

// KeyFor resolves a verification key by kid, including retired keys.
func (m *Manager) KeyFor(ctx context.Context, kid string) (*SigningKey, error) {
	return m.repo.ByKID(ctx, kid)
}

// PublicKeySet returns the JWKS document: every non-retired key.
func (m *Manager) PublicKeySet(ctx context.Context) (*JWKSet, error) {
	records, err := m.repo.NonRetired(ctx)
	if err != nil {
		return nil, err
	}

	set := &JWKSet{Keys: make([]JWK, 0, len(records))}
	for i := range records {
		pub, err := records[i].Public()
		if err != nil {
			return nil, err
		}
		set.Keys = append(set.Keys, newJWK(records[i].KID, pub))
	}
	return set, nil
}

// Rotate installs a freshly generated key as active and demotes the previous
// active key to overlap until the overlap window elapses.
func (m *Manager) Rotate(ctx context.Context) (*SigningKey, error) {
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	key, err := generateKey()
	if err != nil {
		return nil, err
	}

	retireAt := time.Now().UTC().Add(m.config.OverlapWindow)
	if err := m.repo.Rotate(ctx, key, retireAt); err != nil {
		return nil, fmt.Errorf("rotate signing key: %w", err)
	}

	m.log.Info("rotated signing key",
		zap.String("kid", key.KID),
		zap.Time("previous_key_retires_at", retireAt))
	return key, nil
}

// Sweep demotes overlap keys whose window has elapsed to retired. Retired
// keys keep their public material; they only disappear from JWKS.
func (m *Manager) Sweep(ctx context.Context) error {
	n, err := m.repo.DemoteExpiredOverlap(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		m.log.Info("retired overlap signing keys", zap.Int64("count", n))
	}
	return nil
}

// Run drives the background sweep and, when configured, scheduled rotation.
// It returns when ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	sweep := time.NewTicker(m.config.SweepInterval)
	defer sweep.Stop()

	var rotate <-chan time.Time
	if m.config.RotationInterval > 0 {
		t := time.NewTicker(m.config.RotationInterval)
		defer t.Stop()
		rotate = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if err := m.Sweep(ctx); err != nil {
				m.log.Error("signing key sweep failed", zap.Error(err))
			}
		case <-rotate:
			if _, err := m.Rotate(ctx); err != nil {
				m.log.Error("scheduled key rotation failed", zap.Error(err))
			}
		}
	}
}

func generateKey() (*SigningKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	publicPEM, err := encodePublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}

	return &SigningKey{
		KID:           uuid.NewString(),
		PublicKeyPEM:  publicPEM,
		PrivateKeyPEM: encodePrivateKey(priv),
		State:         StatePending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
