package token

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with the same compare-and-set semantics as
// the database-backed store. Tests for rotation races run against it.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	s.records[rec.TokenHash] = &copied
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, tokenHash string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenHash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) Rotate(_ context.Context, presentedHash string, replacement *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[presentedHash]
	if !ok || rec.Rotated() || rec.Revoked() {
		return ErrNotLive
	}

	hash := replacement.TokenHash
	rec.ReplacedByHash = &hash

	copied := *replacement
	s.records[replacement.TokenHash] = &copied
	return nil
}

func (s *MemoryStore) RevokeFamily(_ context.Context, familyID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.records {
		if rec.FamilyID == familyID && rec.RevokedAt == nil {
			at := now
			rec.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

// Family returns every record sharing familyID, for test assertions.
func (s *MemoryStore) Family(familyID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if rec.FamilyID == familyID {
			out = append(out, *rec)
		}
	}
	return out
}
