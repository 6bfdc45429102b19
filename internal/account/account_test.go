package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "User@Example.COM", want: "user@example.com"},
		{in: "  padded@example.com  ", want: "padded@example.com"},
		{in: "already@example.com", want: "already@example.com"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEmail(tt.in))
	}
}

func TestAccount_TOTPEnforced(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	empty := ""

	tests := []struct {
		name string
		acct Account
		want bool
	}{
		{name: "no secret", acct: Account{}, want: false},
		{name: "empty secret", acct: Account{TOTPSecret: &empty, TOTPConfirmed: true}, want: false},
		{name: "unconfirmed", acct: Account{TOTPSecret: &secret}, want: false},
		{name: "confirmed", acct: Account{TOTPSecret: &secret, TOTPConfirmed: true}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.acct.TOTPEnforced())
		})
	}
}

func TestMemoryRepository_ConsumeBackupCode(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	repo.Put(Account{ID: "acct-1", NormalizedEmail: "user@example.com"})
	require.NoError(t, repo.ReplaceBackupCodes(ctx, "acct-1", []BackupCode{
		{ID: "c1", AccountID: "acct-1", CodeHash: "hash-1", CreatedAt: time.Now()},
		{ID: "c2", AccountID: "acct-1", CodeHash: "hash-2", CreatedAt: time.Now()},
	}))

	ok, err := repo.ConsumeBackupCode(ctx, "acct-1", "hash-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second consumption of the same hash fails.
	ok, err = repo.ConsumeBackupCode(ctx, "acct-1", "hash-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown hashes and accounts fail without error.
	ok, err = repo.ConsumeBackupCode(ctx, "acct-1", "hash-9")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.ConsumeBackupCode(ctx, "ghost", "hash-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRepository_ReplaceBackupCodes(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	repo.Put(Account{ID: "acct-1", NormalizedEmail: "user@example.com"})
	require.NoError(t, repo.ReplaceBackupCodes(ctx, "acct-1", []BackupCode{
		{ID: "c1", AccountID: "acct-1", CodeHash: "old-hash"},
	}))
	require.NoError(t, repo.ReplaceBackupCodes(ctx, "acct-1", []BackupCode{
		{ID: "c2", AccountID: "acct-1", CodeHash: "new-hash"},
	}))

	// The replaced set is gone entirely.
	ok, err := repo.ConsumeBackupCode(ctx, "acct-1", "old-hash")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ConsumeBackupCode(ctx, "acct-1", "new-hash")
	require.NoError(t, err)
	assert.True(t, ok)
}
