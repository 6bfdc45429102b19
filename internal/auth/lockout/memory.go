package lockout

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository holds counters in maps for tests.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[string]*Counter
	ips      map[string]*Counter
	emails   map[string]map[string]time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]*Counter),
		ips:      make(map[string]*Counter),
		emails:   make(map[string]map[string]time.Time),
	}
}

func (r *MemoryRepository) AccountCounter(_ context.Context, accountID string) (*Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.accounts[accountID]
	if !ok {
		return &Counter{}, nil
	}
	copied := *c
	return &copied, nil
}

func (r *MemoryRepository) BumpAccountCounter(_ context.Context, accountID string, now time.Time, window time.Duration, maxAttempts int, lockDuration time.Duration) (*Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.accounts[accountID]
	if !ok || c.WindowStart.IsZero() || !c.WindowStart.Add(window).After(now) {
		c = &Counter{WindowStart: now}
		r.accounts[accountID] = c
	}
	c.AttemptCount++
	if c.AttemptCount >= maxAttempts && c.LockedUntil == nil {
		at := now.Add(lockDuration)
		c.LockedUntil = &at
	}

	copied := *c
	return &copied, nil
}

func (r *MemoryRepository) ResetAccountCounter(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.accounts, accountID)
	return nil
}

func (r *MemoryRepository) IPCounter(_ context.Context, ip string) (*Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.ips[ip]
	if !ok {
		return &Counter{}, nil
	}
	copied := *c
	copied.DistinctEmailCount = r.distinctSince(ip, c.WindowStart)
	return &copied, nil
}

func (r *MemoryRepository) BumpIPCounter(_ context.Context, ip, emailHash string, now time.Time, window time.Duration) (*Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.ips[ip]
	if !ok || c.WindowStart.Add(window).Before(now) || c.WindowStart.Add(window).Equal(now) {
		c = &Counter{WindowStart: now}
		r.ips[ip] = c
	}
	c.AttemptCount++

	if r.emails[ip] == nil {
		r.emails[ip] = make(map[string]time.Time)
	}
	r.emails[ip][emailHash] = now

	copied := *c
	copied.DistinctEmailCount = r.distinctSince(ip, c.WindowStart)
	return &copied, nil
}

func (r *MemoryRepository) LockIP(_ context.Context, ip string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.ips[ip]; ok {
		at := until
		c.LockedUntil = &at
	}
	return nil
}

func (r *MemoryRepository) PruneEmails(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned int64
	for ip, seen := range r.emails {
		for hash, at := range seen {
			if at.Before(before) {
				delete(seen, hash)
				pruned++
			}
		}
		if len(seen) == 0 {
			delete(r.emails, ip)
		}
	}
	return pruned, nil
}

func (r *MemoryRepository) distinctSince(ip string, since time.Time) int {
	var n int
	for _, at := range r.emails[ip] {
		if !at.Before(since) {
			n++
		}
	}
	return n
}
