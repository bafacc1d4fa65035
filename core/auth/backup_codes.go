package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrInvalidBackupCode = errors.New("invalid backup code")

const backupCodeBytes = 8

func NormalizeBackupCode(raw string) string {
	val := strings.ToLower(strings.TrimSpace(raw))
	val = strings.ReplaceAll(val, " ", "")
	val = strings.ReplaceAll(val, "-", "")
	return val
}

// GenerateBackupCodes returns count single-use recovery credentials, each
// 8 random bytes hex-encoded.
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		count = 10
	}
	out := make([]string, 0, count)
	for len(out) < count {
		buf := make([]byte, backupCodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		out = append(out, hex.EncodeToString(buf))
	}
	return out, nil
}

func HashBackupCode(code string, pepper string) (*PasswordHash, error) {
	return HashPassword(NormalizeBackupCode(code), pepper)
}

func VerifyBackupCode(code string, pepper string, stored *PasswordHash) (bool, error) {
	return VerifyPassword(NormalizeBackupCode(code), pepper, stored)
}
