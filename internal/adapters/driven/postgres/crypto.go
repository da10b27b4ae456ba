package postgres

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// sealedVersion prefixes encrypted blobs. Plain JSON blobs start with '{'.
	sealedVersion = 0x01
	nonceSize     = 12
	keySize       = 32
)

var (
	ErrInvalidKeySize     = errors.New("encryption key must be 32 bytes")
	ErrInvalidBlobSize    = errors.New("encrypted blob is too small")
	ErrUnsupportedVersion = errors.New("unsupported secret blob version")
	ErrDecryptionFailed   = errors.New("failed to decrypt secret blob")
	ErrNoEncryptionKey    = errors.New("secret blob is encrypted but no key is configured")
)

// SecretEncryptor seals upstream credentials stored at rest with AES-256-GCM.
// Blob layout: version(1) || nonce(12) || ciphertext
type SecretEncryptor struct {
	gcm cipher.AEAD
}

// NewSecretEncryptor creates an encryptor from a 32-byte key.
func NewSecretEncryptor(key []byte) (*SecretEncryptor, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &SecretEncryptor{gcm: gcm}, nil
}

// NewSecretEncryptorFromHex creates an encryptor from a hex encoded key, as
// found in the SECRET_KEY environment variable.
func NewSecretEncryptorFromHex(hexKey string) (*SecretEncryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return NewSecretEncryptor(key)
}

// Encrypt marshals value to JSON and seals it.
func (e *SecretEncryptor) Encrypt(value any) ([]byte, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	blob := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+e.gcm.Overhead())
	blob[0] = sealedVersion
	if _, err := rand.Read(blob[1:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.gcm.Seal(blob, blob[1:], plaintext, nil), nil
}

// Decrypt opens a blob and unmarshals it into value.
func (e *SecretEncryptor) Decrypt(blob []byte, value any) error {
	if len(blob) < 1+nonceSize+e.gcm.Overhead() {
		return ErrInvalidBlobSize
	}
	if blob[0] != sealedVersion {
		return fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}

	plaintext, err := e.gcm.Open(nil, blob[1:1+nonceSize], blob[1+nonceSize:], nil)
	if err != nil {
		return ErrDecryptionFailed
	}
	if err := json.Unmarshal(plaintext, value); err != nil {
		return fmt.Errorf("unmarshal decrypted value: %w", err)
	}
	return nil
}

// seal encrypts value when an encryptor is configured and falls back to plain JSON.
func seal(e *SecretEncryptor, value any) ([]byte, error) {
	if e != nil {
		return e.Encrypt(value)
	}
	return json.Marshal(value)
}

// unseal reverses seal. Empty blobs leave value untouched.
func unseal(e *SecretEncryptor, blob []byte, value any) error {
	if len(blob) == 0 {
		return nil
	}
	if blob[0] != sealedVersion {
		return json.Unmarshal(blob, value)
	}
	if e == nil {
		return ErrNoEncryptionKey
	}
	return e.Decrypt(blob, value)
}
