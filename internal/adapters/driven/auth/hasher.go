package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Ensure Hasher implements PasswordHasher
var _ driven.PasswordHasher = (*Hasher)(nil)

// Hasher hashes and verifies local user passwords with bcrypt
type Hasher struct {
	cost int
}

// NewHasher creates a hasher using bcrypt.DefaultCost
func NewHasher() *Hasher {
	return &Hasher{cost: bcrypt.DefaultCost}
}

// NewHasherWithCost creates a hasher with a custom bcrypt cost.
// Out of range costs are clamped by bcrypt itself.
func NewHasherWithCost(cost int) *Hasher {
	return &Hasher{cost: cost}
}

// HashPassword generates a bcrypt hash from a plaintext password
func (h *Hasher) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks if a password matches a bcrypt hash.
// An empty hash never matches.
func (h *Hasher) VerifyPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
