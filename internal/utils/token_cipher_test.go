package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestTokenCipher_RoundTrip(t *testing.T) {
	c, err := NewTokenCipher(testEncryptionKey)
	require.NoError(t, err)

	sealed, err := c.Encrypt("vendor-access-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "vendor-access-token")

	opened, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "vendor-access-token", opened)
}

func TestTokenCipher_EmptyStaysEmpty(t *testing.T) {
	c, err := NewTokenCipher(testEncryptionKey)
	require.NoError(t, err)

	sealed, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestTokenCipher_RejectsTamperedCiphertext(t *testing.T) {
	c, err := NewTokenCipher(testEncryptionKey)
	require.NoError(t, err)

	sealed, err := c.Encrypt("secret")
	require.NoError(t, err)

	_, err = c.Decrypt(sealed[:len(sealed)-4] + "AAAA")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = c.Decrypt("not base64!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNewTokenCipher_KeyLength(t *testing.T) {
	_, err := NewTokenCipher(strings.Repeat("ab", 16))
	assert.Error(t, err)

	_, err = NewTokenCipher("zz")
	assert.Error(t, err)
}
