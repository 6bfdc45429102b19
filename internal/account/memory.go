package account

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository used by tests and local
// tooling. Accounts are stored by value so callers cannot mutate them
// behind the repository's back.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
	codes   map[string][]BackupCode
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
		codes:   make(map[string][]BackupCode),
	}
}

// Put inserts or replaces an account. Registration lives outside this core,
// so only the memory implementation exposes a create path.
func (r *MemoryRepository) Put(acct Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[acct.ID] = acct
	r.byEmail[acct.NormalizedEmail] = acct.ID
}

func (r *MemoryRepository) GetByEmail(_ context.Context, normalizedEmail string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[normalizedEmail]
	if !ok {
		return nil, ErrAccountNotFound
	}
	acct := r.byID[id]
	return &acct, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acct, ok := r.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &acct, nil
}

func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return r.update(id, func(a *Account) {
		a.PasswordHash = hash
	})
}

func (r *MemoryRepository) SetTOTPSecret(_ context.Context, id, secret string) error {
	return r.update(id, func(a *Account) {
		a.TOTPSecret = &secret
		a.TOTPConfirmed = false
	})
}

func (r *MemoryRepository) ConfirmTOTP(_ context.Context, id string) error {
	return r.update(id, func(a *Account) {
		a.TOTPConfirmed = true
	})
}

func (r *MemoryRepository) ReplaceBackupCodes(_ context.Context, id string, codes []BackupCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	replacement := make([]BackupCode, len(codes))
	copy(replacement, codes)
	r.codes[id] = replacement
	return nil
}

func (r *MemoryRepository) ConsumeBackupCode(_ context.Context, id, codeHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.codes[id] {
		code := &r.codes[id][i]
		if code.CodeHash == codeHash && code.ConsumedAt == nil {
			now := time.Now().UTC()
			code.ConsumedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) update(id string, mutate func(*Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	mutate(&acct)
	r.byID[id] = acct
	return nil
}
