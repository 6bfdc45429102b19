package keys

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository backs the manager in tests.
type MemoryRepository struct {
	mu   sync.Mutex
	keys map[string]*SigningKey
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{keys: make(map[string]*SigningKey)}
}

func (r *MemoryRepository) Create(_ context.Context, key *SigningKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *key
	r.keys[key.KID] = &copied
	return nil
}

func (r *MemoryRepository) Active(_ context.Context) (*SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.keys {
		if k.State == StateActive {
			copied := *k
			return &copied, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (r *MemoryRepository) ByKID(_ context.Context, kid string) (*SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	copied := *k
	return &copied, nil
}

func (r *MemoryRepository) NonRetired(_ context.Context) ([]SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []SigningKey
	for _, k := range r.keys {
		if k.State == StateActive || k.State == StateOverlap {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Rotate(_ context.Context, newKey *SigningKey, retireAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.keys {
		if k.State == StateActive {
			k.State = StateOverlap
			at := retireAt
			k.RetireAt = &at
		}
	}
	newKey.State = StateActive
	copied := *newKey
	r.keys[newKey.KID] = &copied
	return nil
}

func (r *MemoryRepository) DemoteExpiredOverlap(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, k := range r.keys {
		if k.State == StateOverlap && k.RetireAt != nil && !k.RetireAt.After(now) {
			k.State = StateRetired
			at := now
			k.RetiredAt = &at
			n++
		}
	}
	return n, nil
}
