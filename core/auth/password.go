package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. 64 MiB / 3 passes keeps verification well under the
// interactive-login budget on the targets trustgate deploys to.
const (
	argon2Passes  uint32 = 3
	argon2Memory  uint32 = 64 * 1024
	argon2Threads uint8  = 4
	argon2KeyLen  uint32 = 32
	passSaltLen          = 16
)

// PasswordHash is the stored form of a credential: the argon2id key and the
// per-hash salt, both base64. The pepper is never stored; it arrives from
// config on every call.
type PasswordHash struct {
	Hash string
	Salt string
}

func derivePasswordKey(password, pepper string, salt []byte) []byte {
	material := []byte(pepper + ":" + password)
	return argon2.IDKey(material, salt, argon2Passes, argon2Memory, argon2Threads, argon2KeyLen)
}

func HashPassword(password, pepper string) (*PasswordHash, error) {
	salt := make([]byte, passSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := derivePasswordKey(password, pepper, salt)
	return &PasswordHash{
		Hash: base64.RawStdEncoding.EncodeToString(key),
		Salt: base64.RawStdEncoding.EncodeToString(salt),
	}, nil
}

// VerifyPassword recomputes the key under the stored salt and compares in
// constant time. A decode failure means a corrupt record, not a wrong
// password, and is reported as an error.
func VerifyPassword(password, pepper string, stored *PasswordHash) (bool, error) {
	salt, err := base64.RawStdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return false, err
	}
	want, err := base64.RawStdEncoding.DecodeString(stored.Hash)
	if err != nil {
		return false, err
	}
	got := derivePasswordKey(password, pepper, salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// MustHashPassword is for wiring code and tests where a hashing failure
// (i.e. the system randomness source is broken) is unrecoverable anyway.
func MustHashPassword(password, pepper string) *PasswordHash {
	p, err := HashPassword(password, pepper)
	if err != nil {
		panic(err)
	}
	return p
}

func ParsePasswordHash(hash, salt string) (*PasswordHash, error) {
	if hash == "" || salt == "" {
		return nil, errors.New("empty hash or salt")
	}
	return &PasswordHash{Hash: hash, Salt: salt}, nil
}
