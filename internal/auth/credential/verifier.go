package credential

import (
	"errors"
)

var ErrUnknownHashFormat = errors.New("unknown password hash format")

// Verifier checks a presented password against a stored hash, whatever
// format the hash is in. Argon2id is the preferred format; verifying against
// anything else reports that a rehash is due.
type Verifier struct {
	strategies []Strategy
	preferred  Strategy
	dummyHash  string
}

func NewVerifier() *Verifier {
	preferred := argon2Strategy{}

	// Precomputed so the unknown-account path burns the same work as a real
	// comparison. The password behind it is random and discarded.
	dummyHash, err := preferred.Hash("fitvibe-dummy-credential")
	if err != nil {
		// Argon2 hashing of a fixed string cannot fail outside of entropy
		// exhaustion; treat that as unrecoverable at construction time.
		panic(err)
	}

	return &Verifier{
		strategies: []Strategy{preferred, bcryptStrategy{}},
		preferred:  preferred,
		dummyHash:  dummyHash,
	}
}

// Verify reports whether password matches hash, and whether the stored hash
// should be regenerated in the preferred format on this success.
func (v *Verifier) Verify(hash, password string) (ok bool, rehash bool, err error) {
	for _, s := range v.strategies {
		if !s.Matches(hash) {
			continue
		}
		ok, err = s.Verify(hash, password)
		if err != nil {
			return false, false, err
		}
		return ok, ok && s.Name() != v.preferred.Name(), nil
	}
	return false, false, ErrUnknownHashFormat
}

// DummyVerify performs a full comparison against a fixed hash. Callers use
// it when the account lookup failed so that an unknown email costs the same
// as a wrong password. The sink tracks the preferred format: legacy bcrypt
// rows cost differently until their rehash-on-login upgrade, and the dummy
// cannot pick a per-account format for an account that does not exist.
func (v *Verifier) DummyVerify(password string) {
	_, _ = v.preferred.Verify(v.dummyHash, password)
}

// Hash produces a hash in the preferred format for storage.
func (v *Verifier) Hash(password string) (string, error) {
	return v.preferred.Hash(password)
}
