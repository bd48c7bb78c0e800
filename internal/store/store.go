// Package store persists wallet state between sessions. Backends share
// a flat key-value contract; the typed wallet layer and the encryption
// decorator compose on top of any of them.
package store

import "context"

// Store is a flat key-value persistence backend. Get returns (nil, nil)
// for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
