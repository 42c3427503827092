package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	saltBytes    = 16
)

var (
	// ErrPasswordMismatch is returned when a password does not match the stored hash.
	ErrPasswordMismatch = errors.New("crypto: password mismatch")
	// ErrMalformedHash is returned for stored values not in hash.salt form.
	ErrMalformedHash = errors.New("crypto: malformed password hash")
)

var (
	dummyOnce sync.Once
	dummyHash string
)

// HashPassword derives an scrypt key from plain using a fresh random salt and returns it as
// "<hex key>.<hex salt>".
func HashPassword(plain string) (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	salt := hex.EncodeToString(buf)
	key, err := derive(plain, salt)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key) + "." + salt, nil
}

// ComparePassword re-derives the key for plain with the stored salt and compares in constant time.
func ComparePassword(stored, plain string) error {
	encoded, salt, ok := strings.Cut(stored, ".")
	if !ok || encoded == "" || salt == "" {
		return ErrMalformedHash
	}
	want, err := hex.DecodeString(encoded)
	if err != nil || len(want) != scryptKeyLen {
		return ErrMalformedHash
	}
	got, err := derive(plain, salt)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// DummyHash returns a valid hash of a throwaway secret. Comparing against it costs the same as a
// real comparison, which keeps unknown-account lookups indistinguishable by timing.
func DummyHash() string {
	dummyOnce.Do(func() {
		hash, err := HashPassword("hm-dummy-password")
		if err != nil {
			hash = strings.Repeat("0", scryptKeyLen*2) + "." + strings.Repeat("0", saltBytes*2)
		}
		dummyHash = hash
	})
	return dummyHash
}

func derive(plain, salt string) ([]byte, error) {
	key, err := scrypt.Key([]byte(plain), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}
