package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *FieldCipher {
	t.Helper()
	key, err := GenerateKey(32)
	require.NoError(t, err)
	c, err := NewFieldCipher(key)
	require.NoError(t, err)
	return c
}

func TestFieldCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plaintext := range []string{"user-42", "a", strings.Repeat("x", 4096), "ünïcode@example.com"} {
		encrypted, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, encrypted)

		decrypted, err := c.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestFieldCipher_EmptyFieldPassesThrough(t *testing.T) {
	c := newTestCipher(t)

	encrypted, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", encrypted)

	decrypted, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", decrypted)
}

func TestFieldCipher_EncryptIsNonDeterministic(t *testing.T) {
	c := newTestCipher(t)

	first, err := c.Encrypt("user-42")
	require.NoError(t, err)
	second, err := c.Encrypt("user-42")
	require.NoError(t, err)
	// fresh nonce per call: identical plaintext must not produce
	// identical ciphertext
	assert.NotEqual(t, first, second)
}

func TestFieldCipher_WrongKeyFailsAuthentication(t *testing.T) {
	c1 := newTestCipher(t)
	c2 := newTestCipher(t)

	encrypted, err := c1.Encrypt("user-42")
	require.NoError(t, err)

	_, err = c2.Decrypt(encrypted)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestFieldCipher_MalformedCiphertext(t *testing.T) {
	c := newTestCipher(t)

	_, err := c.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	_, err = c.Decrypt("not base64!!!")
	assert.Error(t, err)
}

func TestNewFieldCipher_RejectsBadKeySizes(t *testing.T) {
	for _, size := range []int{0, 8, 15, 17, 31, 64} {
		_, err := NewFieldCipher(make([]byte, size))
		assert.ErrorIs(t, err, ErrInvalidKey, "key size %d", size)
	}
}

func TestNewFieldCipher_AcceptsAllAESKeySizes(t *testing.T) {
	for _, size := range []int{16, 24, 32} {
		key, err := GenerateKey(size)
		require.NoError(t, err)
		c, err := NewFieldCipher(key)
		require.NoError(t, err)
		assert.NotEmpty(t, c.KeyID())
	}
}

func TestFieldCipher_KeyIDStablePerKey(t *testing.T) {
	key, err := GenerateKey(32)
	require.NoError(t, err)

	c1, err := NewFieldCipher(key)
	require.NoError(t, err)
	c2, err := NewFieldCipher(key)
	require.NoError(t, err)
	assert.Equal(t, c1.KeyID(), c2.KeyID())

	other := newTestCipher(t)
	assert.NotEqual(t, c1.KeyID(), other.KeyID())
}

func TestGenerateKeyString_RoundTrips(t *testing.T) {
	encoded, err := GenerateKeyString(32)
	require.NoError(t, err)

	c, err := NewFieldCipherFromString(encoded)
	require.NoError(t, err)

	encrypted, err := c.Encrypt("user-42")
	require.NoError(t, err)
	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "user-42", decrypted)
}

func TestGenerateKey_RejectsBadSizes(t *testing.T) {
	_, err := GenerateKey(10)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
