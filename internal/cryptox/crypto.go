// Package cryptox holds the password hashing used by the authentication
// adapters. Passwords are stretched with argon2id and stored as
// (salt, verifier) pairs; the verifier is a SHA-256 of the derived key.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"golang.org/x/crypto/argon2"
)

const saltSize = 32

// DeriveKey stretches password with salt using argon2id.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// MakeVerifier returns the value stored server-side for a derived key.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// HashPassword generates a fresh salt and returns it along with the verifier
// for password.
func HashPassword(password []byte) (salt, verifier []byte) {
	salt = common.GenerateRandByteArray(saltSize)
	key := DeriveKey(password, salt)
	defer common.WipeByteArray(key)
	return salt, MakeVerifier(key)
}

// CheckPassword reports whether password matches the stored salt and
// verifier. The comparison runs in constant time.
func CheckPassword(password, salt, verifier []byte) bool {
	key := DeriveKey(password, salt)
	defer common.WipeByteArray(key)
	return subtle.ConstantTimeCompare(MakeVerifier(key), verifier) == 1
}
