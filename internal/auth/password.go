package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Account passwords are only ever stored as bcrypt hashes.
const bcryptCost = bcrypt.DefaultCost

// HashPassword derives the stored hash for a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword checks a plaintext password against the stored hash,
// returning nil on a match.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
