//go:build !integration

package security

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func TestEncryptionService(t *testing.T) {
	svc, err := NewEncryptionService(testKey)
	require.NoError(t, err)

	t.Run("should round trip a token with a fresh nonce each time", func(t *testing.T) {
		a, err := svc.Encrypt("pm_card_visa")
		require.NoError(t, err)
		b, err := svc.Encrypt("pm_card_visa")
		require.NoError(t, err)

		assert.True(t, IsSealed(a))
		assert.NotEqual(t, a, b)
		assert.NotContains(t, a, "pm_card_visa")

		got, err := svc.Decrypt(a)
		require.NoError(t, err)
		assert.Equal(t, "pm_card_visa", got)
	})

	t.Run("should leave empty tokens empty", func(t *testing.T) {
		got, err := svc.Encrypt("")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("should refuse plaintext and tampered values", func(t *testing.T) {
		_, err := svc.Decrypt("pm_card_visa")
		assert.ErrorIs(t, err, ErrNotSealed)

		sealed, err := svc.Encrypt("pm_card_visa")
		require.NoError(t, err)
		raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
		raw[len(raw)-1] ^= 0xff
		_, err = svc.Decrypt(sealedPrefix + base64.StdEncoding.EncodeToString(raw))
		assert.Error(t, err)
	})

	t.Run("should not open values sealed with another key", func(t *testing.T) {
		other, err := NewEncryptionService(base64.StdEncoding.EncodeToString([]byte("fedcba9876543210")))
		require.NoError(t, err)
		sealed, err := other.Encrypt("pm_1")
		require.NoError(t, err)

		_, err = svc.Decrypt(sealed)
		assert.Error(t, err)
	})

	t.Run("should validate the key", func(t *testing.T) {
		_, err := NewEncryptionService("not base64!")
		assert.Error(t, err)
		_, err = NewEncryptionService(base64.StdEncoding.EncodeToString([]byte("short")))
		assert.Error(t, err)
	})
}
