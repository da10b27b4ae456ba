package mocks

import (
	"strings"
	"sync"

	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

var _ driven.PasswordHasher = (*MockPasswordHasher)(nil)

// MockPasswordHasher prefixes passwords instead of hashing them.
type MockPasswordHasher struct {
	HashErr error

	mu       sync.Mutex
	verified []string
}

// Verified returns the hashes passed to VerifyPassword, in call order
func (m *MockPasswordHasher) Verified() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.verified...)
}

func NewMockPasswordHasher() *MockPasswordHasher {
	return &MockPasswordHasher{}
}

func (m *MockPasswordHasher) HashPassword(password string) (string, error) {
	if m.HashErr != nil {
		return "", m.HashErr
	}
	return "hashed:" + password, nil
}

func (m *MockPasswordHasher) VerifyPassword(password, hash string) bool {
	m.mu.Lock()
	m.verified = append(m.verified, hash)
	m.mu.Unlock()
	return strings.TrimPrefix(hash, "hashed:") == password && strings.HasPrefix(hash, "hashed:")
}
