// Package pkce holds the stateless cryptographic helpers of the broker:
// PKCE challenge/verifier handling (RFC 7636) and opaque token generation.
package pkce

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"

	"golang.org/x/oauth2"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

// Token lengths, in characters
const (
	StateLength       = 32
	CodeLength        = 32
	AccessTokenLength = 42
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ParseMethod validates a code_challenge_method value.
// An absent method means plain (RFC 7636 section 4.3).
func ParseMethod(s string) (domain.CodeChallengeMethod, error) {
	switch domain.CodeChallengeMethod(s) {
	case "", domain.CodeChallengePlain:
		return domain.CodeChallengePlain, nil
	case domain.CodeChallengeS256:
		return domain.CodeChallengeS256, nil
	default:
		return "", domain.ErrUnsupportedCodeChallengeMethod
	}
}

// GenerateVerifier returns a 43 character verifier from 32 random bytes
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// Challenge derives the challenge sent along the authorize request
func Challenge(method domain.CodeChallengeMethod, verifier string) (string, error) {
	switch method {
	case domain.CodeChallengePlain:
		return verifier, nil
	case domain.CodeChallengeS256:
		return oauth2.S256ChallengeFromVerifier(verifier), nil
	default:
		return "", domain.ErrUnsupportedCodeChallengeMethod
	}
}

// GenerateChallengePair returns a fresh (challenge, verifier) pair
func GenerateChallengePair(method domain.CodeChallengeMethod) (challenge, verifier string, err error) {
	verifier = GenerateVerifier()
	challenge, err = Challenge(method, verifier)
	if err != nil {
		return "", "", err
	}
	return challenge, verifier, nil
}

// Verify recomputes the challenge from the verifier and compares it in constant time.
// It fails closed on unknown methods and empty input.
func Verify(method domain.CodeChallengeMethod, challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	computed, err := Challenge(method, verifier)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// GenerateToken returns a random alphanumeric string of the given length,
// used for states, authorization codes and access tokens.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: token length must be positive", domain.ErrInvalidInput)
	}
	max := big.NewInt(int64(len(alphanumeric)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		buf[i] = alphanumeric[n.Int64()]
	}
	return string(buf), nil
}
