// Package crypto provides AES-GCM field-level encryption for the ledger's
// user identifiers: the only personal data this service stores at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidKey is returned for keys that are not 16, 24, or 32 bytes.
	ErrInvalidKey = errors.New("crypto: key must be 16, 24, or 32 bytes")

	// ErrMalformedCiphertext is returned when a stored value is too short
	// to contain a nonce and an authentication tag.
	ErrMalformedCiphertext = errors.New("crypto: malformed ciphertext")

	// ErrDecryptFailed is returned when authentication fails, typically
	// because the value was written under a different key.
	ErrDecryptFailed = errors.New("crypto: decryption failed")
)

// FieldCipher encrypts and decrypts individual string fields with AES-GCM.
// The zero-length field passes through unchanged in both directions, so
// callers never have to special-case records without a user id.
type FieldCipher struct {
	gcm   cipher.AEAD
	keyID string
}

// NewFieldCipher builds a FieldCipher over an AES-128/192/256 key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	// The key id is a short stable fingerprint for rotation logging; it
	// reveals nothing about the key itself.
	sum := sha256.Sum256(key)
	return &FieldCipher{
		gcm:   gcm,
		keyID: base64.RawURLEncoding.EncodeToString(sum[:8]),
	}, nil
}

// NewFieldCipherFromString builds a FieldCipher from a base64-encoded key,
// the form configuration carries it in.
func NewFieldCipherFromString(encodedKey string) (*FieldCipher, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode key: %w", err)
	}
	return NewFieldCipher(key)
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext || tag).
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *FieldCipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("crypto: decode ciphertext: %w", err)
	}

	nonceSize := c.gcm.NonceSize()
	if len(sealed) < nonceSize+c.gcm.Overhead()+1 {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := c.gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// KeyID returns a stable fingerprint of the key, for rotation tracking in
// logs.
func (c *FieldCipher) KeyID() string {
	return c.keyID
}

// GenerateKey returns a random key of the given size (16, 24, or 32).
func GenerateKey(size int) ([]byte, error) {
	switch size {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKey
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return key, nil
}

// GenerateKeyString returns a random key base64-encoded, ready to paste
// into configuration.
func GenerateKeyString(size int) (string, error) {
	key, err := GenerateKey(size)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
