package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewHasher(t *testing.T) {
	h := NewHasher()
	if h.cost != bcrypt.DefaultCost {
		t.Errorf("expected default cost %d, got %d", bcrypt.DefaultCost, h.cost)
	}
	if NewHasherWithCost(4).cost != 4 {
		t.Error("expected custom cost to be kept")
	}
}

func TestHashPassword(t *testing.T) {
	h := NewHasherWithCost(4) // Low cost for faster tests

	hash, err := h.HashPassword("mypassword")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if hash == "mypassword" {
		t.Error("hash should not equal plaintext password")
	}
	if !strings.HasPrefix(hash, "$2a$04$") {
		t.Errorf("expected bcrypt hash with cost 4, got %q", hash)
	}

	other, _ := h.HashPassword("mypassword")
	if hash == other {
		t.Error("expected different hashes for same password (due to salt)")
	}
}

func TestHashPassword_TooLong(t *testing.T) {
	h := NewHasherWithCost(4)

	if _, err := h.HashPassword(strings.Repeat("x", 100)); err == nil {
		t.Error("expected error for password longer than 72 bytes")
	}
}

func TestVerifyPassword(t *testing.T) {
	h := NewHasherWithCost(4)
	hash, err := h.HashPassword("correctpassword")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
	}{
		{"correct password", "correctpassword", hash, true},
		{"wrong password", "wrongpassword", hash, false},
		{"invalid hash", "correctpassword", "not-a-valid-hash", false},
		{"empty hash", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.VerifyPassword(tt.password, tt.hash); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	h := NewHasherWithCost(4)
	hash, _ := h.HashPassword("testpassword")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = h.VerifyPassword("testpassword", hash)
	}
}
