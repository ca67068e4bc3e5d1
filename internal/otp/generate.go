// Package otp issues and checks numeric one-time codes bound to an account.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
)

const (
	codeMin = 100000
	codeMax = 999999
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// GenerateCode returns a uniformly random code in [100000, 999999] using crypto/rand.
func GenerateCode() (int, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return 0, err
	}
	return codeMin + int(n.Int64()), nil
}

// HashCode returns the hex SHA-256 of the canonical decimal form of code.
func HashCode(code int) string {
	h := sha256.Sum256([]byte(strconv.Itoa(code)))
	return hex.EncodeToString(h[:])
}

// ParseCode parses a submitted code. Surrounding whitespace is ignored; anything that is not
// a base-10 integer is rejected.
func ParseCode(submitted string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(submitted))
	if err != nil {
		return 0, false
	}
	return n, true
}

// CodeEqual performs a constant-time comparison of code's hash with storedHash.
func CodeEqual(code int, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashCode(code)), []byte(storedHash)) == 1
}
