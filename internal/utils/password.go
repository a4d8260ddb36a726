package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost trades hashing latency against brute-force resistance.
const bcryptCost = 12

var ErrEmptyPassword = errors.New("password must not be empty")

// HashPassword derives a bcrypt hash from a plaintext password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPasswordHash reports whether password matches the stored bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
