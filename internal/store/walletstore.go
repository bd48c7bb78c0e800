package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

const (
	walletKey    = "wallet"
	checkedAtKey = "wallet.checked_at"
)

// WalletStore is the typed layer over a Store: the persisted wallet and
// the timestamp of its last on-chain existence check.
type WalletStore struct {
	store Store
}

// NewWalletStore wraps a backend store.
func NewWalletStore(store Store) *WalletStore {
	return &WalletStore{store: store}
}

// Load returns the persisted wallet, or nil when none is stored.
func (s *WalletStore) Load(ctx context.Context) (*types.Wallet, error) {
	data, err := s.store.Get(ctx, walletKey)
	if err != nil {
		return nil, storeError("load wallet", err)
	}
	if data == nil {
		return nil, nil
	}
	var wallet types.Wallet
	if err := json.Unmarshal(data, &wallet); err != nil {
		return nil, storeError("decode wallet", err)
	}
	return &wallet, nil
}

// Save persists the wallet.
func (s *WalletStore) Save(ctx context.Context, wallet *types.Wallet) error {
	if wallet == nil {
		return fmt.Errorf("wallet is nil")
	}
	data, err := json.Marshal(wallet)
	if err != nil {
		return storeError("encode wallet", err)
	}
	if err := s.store.Put(ctx, walletKey, data); err != nil {
		return storeError("save wallet", err)
	}
	return nil
}

// Clear removes the wallet and its check timestamp.
func (s *WalletStore) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, walletKey); err != nil {
		return storeError("clear wallet", err)
	}
	if err := s.store.Delete(ctx, checkedAtKey); err != nil {
		return storeError("clear wallet", err)
	}
	return nil
}

// LastChecked returns when the persisted wallet's existence was last
// confirmed on chain. An absent or unparsable timestamp counts as never
// checked.
func (s *WalletStore) LastChecked(ctx context.Context) (time.Time, bool, error) {
	data, err := s.store.Get(ctx, checkedAtKey)
	if err != nil {
		return time.Time{}, false, storeError("load check timestamp", err)
	}
	if data == nil {
		return time.Time{}, false, nil
	}
	at, err := time.Parse(time.RFC3339, string(data))
	if err != nil {
		return time.Time{}, false, nil
	}
	return at, true, nil
}

// TouchChecked records a completed existence check.
func (s *WalletStore) TouchChecked(ctx context.Context, at time.Time) error {
	if err := s.store.Put(ctx, checkedAtKey, []byte(at.UTC().Format(time.RFC3339))); err != nil {
		return storeError("save check timestamp", err)
	}
	return nil
}

func storeError(op string, err error) error {
	return apperrors.External(apperrors.ErrCodeStoreError, fmt.Sprintf("Failed to %s", op), err)
}
