package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKey_Expired(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name       string
		expiration int64
		expired    bool
	}{
		{
			name:       "future expiration is live",
			expiration: now.UnixMilli() + 1,
			expired:    false,
		},
		{
			name:       "exact instant counts as expired",
			expiration: now.UnixMilli(),
			expired:    true,
		},
		{
			name:       "past expiration is expired",
			expiration: now.UnixMilli() - 1,
			expired:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := &SessionKey{Expiration: tt.expiration}
			assert.Equal(t, tt.expired, key.Expired(now))
		})
	}
}

func TestWallet_CleanExpiredSessionKey(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	t.Run("drops expired key", func(t *testing.T) {
		w := &Wallet{
			Username:   "alice",
			Address:    "alice@wallet",
			SessionKey: &SessionKey{PublicKey: "02ab", Expiration: now.UnixMilli() - 1},
		}

		cleaned := w.CleanExpiredSessionKey(now)

		assert.Nil(t, cleaned.SessionKey)
		assert.NotNil(t, w.SessionKey, "receiver must not be mutated")
		assert.Equal(t, w.Username, cleaned.Username)
	})

	t.Run("keeps live key", func(t *testing.T) {
		w := &Wallet{
			Username:   "alice",
			Address:    "alice@wallet",
			SessionKey: &SessionKey{PublicKey: "02ab", Expiration: now.UnixMilli() + 60_000},
		}

		cleaned := w.CleanExpiredSessionKey(now)

		require.NotNil(t, cleaned.SessionKey)
		assert.Equal(t, "02ab", cleaned.SessionKey.PublicKey)
	})

	t.Run("idempotent once cleaned", func(t *testing.T) {
		w := &Wallet{
			Username:   "alice",
			SessionKey: &SessionKey{Expiration: now.UnixMilli() - 1},
		}

		once := w.CleanExpiredSessionKey(now)
		twice := once.CleanExpiredSessionKey(now)

		assert.Nil(t, once.SessionKey)
		assert.Equal(t, once, twice)
	})

	t.Run("nil wallet stays nil", func(t *testing.T) {
		var w *Wallet
		assert.Nil(t, w.CleanExpiredSessionKey(now))
	})
}

func TestWallet_Clone(t *testing.T) {
	w := &Wallet{
		Username: "bob",
		Address:  "bob@wallet",
		Salt:     "s1",
		SessionKey: &SessionKey{
			PrivateKey: "aa",
			PublicKey:  "02bb",
			Expiration: 42,
			Whitelist:  []string{"orderbook"},
		},
	}

	clone := w.Clone()

	require.Equal(t, w, clone)
	clone.SessionKey.Whitelist[0] = "changed"
	clone.SessionKey.PublicKey = "02cc"
	assert.Equal(t, "orderbook", w.SessionKey.Whitelist[0])
	assert.Equal(t, "02bb", w.SessionKey.PublicKey)
}

func TestAccountInfo_FindSessionKey(t *testing.T) {
	info := &AccountInfo{
		Account: "alice@wallet",
		SessionKeys: []AccountSessionKey{
			{Key: "02aa", Expiration: 100},
			{Key: "02bb", Expiration: 200},
		},
	}

	found := info.FindSessionKey("02bb")
	require.NotNil(t, found)
	assert.Equal(t, int64(200), found.Expiration)

	assert.Nil(t, info.FindSessionKey("02cc"))
}

func TestAuthMethod_JSONShape(t *testing.T) {
	t.Run("password variant", func(t *testing.T) {
		raw, err := json.Marshal(AuthMethod{Password: &PasswordAuth{Hash: "abcd"}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"password":{"hash":"abcd"}}`, string(raw))
	})

	t.Run("ethereum variant", func(t *testing.T) {
		raw, err := json.Marshal(AuthMethod{Ethereum: &EthereumAuth{Address: "0x12"}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"ethereum":{"address":"0x12"}}`, string(raw))
	})

	t.Run("jwt hash round trips as base64", func(t *testing.T) {
		hash := make([]byte, 32)
		for i := range hash {
			hash[i] = byte(i)
		}
		raw, err := json.Marshal(AuthMethod{Jwt: &JwtAuth{Hash: hash}})
		require.NoError(t, err)

		var decoded AuthMethod
		require.NoError(t, json.Unmarshal(raw, &decoded))
		require.NotNil(t, decoded.Jwt)
		assert.Equal(t, hash, decoded.Jwt.Hash)
	})
}

func TestBlobTx_JSONDataIsBase64(t *testing.T) {
	tx := BlobTx{
		Identity: "alice@wallet",
		Blobs: []Blob{
			{ContractName: ContractCheckSecret, Data: []byte{0x01, 0x02}},
		},
	}

	raw, err := json.Marshal(tx)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"data":"AQI="`)
}
