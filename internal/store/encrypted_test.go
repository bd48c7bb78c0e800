package store

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-wallet/quill-wallet/internal/keyvault"
)

func newTestCipher(t *testing.T) keyvault.Cipher {
	t.Helper()
	c, err := keyvault.NewLocalCipher(strings.Repeat("ab", 32))
	require.NoError(t, err)
	return c
}

func TestEncryptedStore(t *testing.T) {
	ctx := context.Background()

	t.Run("values are sealed at rest", func(t *testing.T) {
		inner := NewMemoryStore()
		s, err := NewEncryptedStore(inner, newTestCipher(t))
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, "wallet", []byte("alice-secret-state")))

		raw, err := inner.Get(ctx, "wallet")
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(raw, []byte("QWLT1")))
		assert.NotContains(t, string(raw), "alice-secret-state")

		got, err := s.Get(ctx, "wallet")
		require.NoError(t, err)
		assert.Equal(t, []byte("alice-secret-state"), got)
	})

	t.Run("reads legacy plaintext records", func(t *testing.T) {
		inner := NewMemoryStore()
		require.NoError(t, inner.Put(ctx, "wallet", []byte(`{"username":"alice"}`)))

		s, err := NewEncryptedStore(inner, newTestCipher(t))
		require.NoError(t, err)

		got, err := s.Get(ctx, "wallet")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"username":"alice"}`), got)
	})

	t.Run("missing key returns nil", func(t *testing.T) {
		s, err := NewEncryptedStore(NewMemoryStore(), newTestCipher(t))
		require.NoError(t, err)

		got, err := s.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("wrong key fails to open", func(t *testing.T) {
		inner := NewMemoryStore()
		s, err := NewEncryptedStore(inner, newTestCipher(t))
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, "wallet", []byte("data")))

		otherCipher, err := keyvault.NewLocalCipher(strings.Repeat("cd", 32))
		require.NoError(t, err)
		other, err := NewEncryptedStore(inner, otherCipher)
		require.NoError(t, err)

		_, err = other.Get(ctx, "wallet")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decrypt")
	})

	t.Run("requires both parts", func(t *testing.T) {
		_, err := NewEncryptedStore(nil, newTestCipher(t))
		assert.Error(t, err)
		_, err = NewEncryptedStore(NewMemoryStore(), nil)
		assert.Error(t, err)
	})
}
