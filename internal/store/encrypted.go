package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/quill-wallet/quill-wallet/internal/keyvault"
)

// recordMagic marks an encrypted record. Records without it are read as
// plaintext, so stores written before encryption was enabled stay
// readable.
var recordMagic = []byte("QWLT1")

// EncryptedStore seals record values with a keyvault cipher before they
// reach the inner store.
type EncryptedStore struct {
	inner  Store
	cipher keyvault.Cipher
}

var _ Store = (*EncryptedStore)(nil)

// NewEncryptedStore wraps inner so every value is encrypted at rest.
func NewEncryptedStore(inner Store, cipher keyvault.Cipher) (*EncryptedStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner store is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("cipher is required")
	}
	return &EncryptedStore{inner: inner, cipher: cipher}, nil
}

func (s *EncryptedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.inner.Get(ctx, key)
	if err != nil || data == nil {
		return data, err
	}
	if !bytes.HasPrefix(data, recordMagic) {
		return data, nil
	}
	plaintext, err := s.cipher.Decrypt(ctx, data[len(recordMagic):])
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt record %q: %w", key, err)
	}
	return plaintext, nil
}

func (s *EncryptedStore) Put(ctx context.Context, key string, value []byte) error {
	sealed, err := s.cipher.Encrypt(ctx, value)
	if err != nil {
		return fmt.Errorf("failed to encrypt record %q: %w", key, err)
	}
	return s.inner.Put(ctx, key, append(append([]byte{}, recordMagic...), sealed...))
}

func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *EncryptedStore) Close() error {
	return s.inner.Close()
}
