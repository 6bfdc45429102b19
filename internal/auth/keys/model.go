package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateOverlap State = "overlap"
	StateRetired State = "retired"
)

var ErrKeyNotFound = errors.New("signing key not found")

// SigningKey is one row of the signing-key lifecycle. The private material
// stays inside this record and is never logged or serialized outward;
// retirement removes a key from JWKS publication but keeps its public half
// so in-flight tokens stay verifiable until their own exp passes.
type SigningKey struct {
	KID           string `gorm:"column:kid;primaryKey;type:uuid"`
	PublicKeyPEM  string `gorm:"not null"`
	PrivateKeyPEM string `gorm:"not null" json:"-"`
	State         State  `gorm:"index;not null"`
	CreatedAt     time.Time
	RetireAt      *time.Time
	RetiredAt     *time.Time
}

func (SigningKey) TableName() string {
	return "signing_keys"
}

func (k *SigningKey) Private() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(k.PrivateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("key %s: no PEM block in private key", k.KID)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key %s: parse private key: %w", k.KID, err)
	}
	return priv, nil
}

func (k *SigningKey) Public() (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(k.PublicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("key %s: no PEM block in public key", k.KID)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key %s: parse public key: %w", k.KID, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key %s: not an RSA public key", k.KID)
	}
	return pub, nil
}

func encodePrivateKey(priv *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}))
}

func encodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	})), nil
}
