package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the cost the service has always used.
const DefaultBcryptCost = 10

// HashPassword derives a one-way bcrypt digest of plain at the given
// cost. Cost values outside bcrypt's supported range fall back to
// DefaultBcryptCost.
func HashPassword(plain string, cost int) (string, error) {
	if plain == "" {
		return "", errors.New("password is required")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// CheckPassword reports whether plain matches the stored digest.
// A mismatch is not an error, just false.
func CheckPassword(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
