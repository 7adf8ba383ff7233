// Package auth hashes and verifies account passcodes using PBKDF2-SHA256.
// The stored format is "pbkdf2_sha256$<iterations>$<salt hex>$<hash hex>",
// so iteration counts can be raised without invalidating existing records.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	algo       = "pbkdf2_sha256"
	iterations = 390000
	saltBytes  = 16
	keyLen     = 32
)

// HashPasscode derives a salted hash for storage. Empty passcodes are
// rejected.
func HashPasscode(passcode string) (string, error) {
	if passcode == "" {
		return "", fmt.Errorf("passcode must be non-empty")
	}
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	dk := pbkdf2.Key([]byte(passcode), salt, iterations, keyLen, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s", algo, iterations, hex.EncodeToString(salt), hex.EncodeToString(dk)), nil
}

// VerifyPasscode reports whether passcode matches a stored hash. Malformed
// stored values verify as false rather than erroring.
func VerifyPasscode(passcode, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != algo {
		return false
	}
	iters, err := strconv.Atoi(parts[1])
	if err != nil || iters <= 0 {
		return false
	}
	salt, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(parts[3])
	if err != nil || len(expected) == 0 {
		return false
	}
	dk := pbkdf2.Key([]byte(passcode), salt, iters, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(dk, expected) == 1
}
