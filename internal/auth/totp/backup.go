package totp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/account"
)

const backupCodeCount = 10

// generateBackupCodes returns the plaintext codes handed to the client and
// the hashed records that get stored.
func generateBackupCodes(accountID string) ([]string, []account.BackupCode, error) {
	now := time.Now().UTC()
	codes := make([]string, 0, backupCodeCount)
	records := make([]account.BackupCode, 0, backupCodeCount)

	for i := 0; i < backupCodeCount; i++ {
		raw := make([]byte, 5)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, err
		}
		encoded := hex.EncodeToString(raw)
		code := fmt.Sprintf("%s-%s", encoded[:5], encoded[5:])

		codes = append(codes, code)
		records = append(records, account.BackupCode{
			ID:        uuid.NewString(),
			AccountID: accountID,
			CodeHash:  hashBackupCode(normalizeBackupCode(code)),
			CreatedAt: now,
		})
	}

	return codes, records, nil
}

func normalizeBackupCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

func hashBackupCode(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
