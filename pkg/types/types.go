package types

import "time"

// Auth provider identifiers
const (
	ProviderPassword  = "password"
	ProviderFederated = "federated"
	ProviderEthereum  = "ethereum"
	ProviderRelayed   = "relayed"
)

// Verifier contract names used by transaction blobs
const (
	ContractSecp256k1   = "secp256k1"
	ContractCheckSecret = "check_secret"
	ContractCheckJwt    = "check_jwt"
)

// DefaultIdentityContract is the identity contract wallets register against.
const DefaultIdentityContract = "wallet"

// AccountAddress forms the chain address of a username under an identity
// contract: "{username}@{contract}".
func AccountAddress(username, identityContract string) string {
	if identityContract == "" {
		identityContract = DefaultIdentityContract
	}
	return username + "@" + identityContract
}

// Wallet is the authenticated account state held by the session controller
// and persisted between runs.
type Wallet struct {
	Username string `json:"username"`
	Address  string `json:"address"`
	Salt     string `json:"salt,omitempty"`
	// ProviderRef identifies the external signer that authenticated this
	// wallet, so later signing requests can target the same device.
	ProviderRef string      `json:"provider_ref,omitempty"`
	SessionKey  *SessionKey `json:"session_key,omitempty"`
}

// Clone returns a deep copy so callers can hold a snapshot while the
// controller swaps its own reference.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	out := *w
	if w.SessionKey != nil {
		sk := *w.SessionKey
		sk.Whitelist = append([]string(nil), w.SessionKey.Whitelist...)
		out.SessionKey = &sk
	}
	return &out
}

// CleanExpiredSessionKey returns a copy of the wallet with the session key
// dropped when it has expired at the given instant. The receiver is never
// mutated.
func (w *Wallet) CleanExpiredSessionKey(now time.Time) *Wallet {
	out := w.Clone()
	if out == nil || out.SessionKey == nil {
		return out
	}
	if out.SessionKey.Expired(now) {
		out.SessionKey = nil
	}
	return out
}

// SessionKey is a short-lived secp256k1 keypair authorized on-chain to sign
// on behalf of the wallet. Keys are hex encoded: 32-byte private scalar,
// 33-byte compressed public key.
type SessionKey struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	// Expiration is an absolute unix timestamp in milliseconds.
	Expiration int64 `json:"expiration"`
	// Whitelist optionally restricts which contracts the key may act on.
	// Enforcement happens on-chain; locally it is carried as data.
	Whitelist []string `json:"whitelist,omitempty"`
	LaneID    string   `json:"lane_id,omitempty"`
}

// Expired reports whether the key's expiration is at or before now.
func (k *SessionKey) Expired(now time.Time) bool {
	return k.Expiration <= now.UnixMilli()
}

// AuthMethod is the on-chain registered authentication method for an
// account. Exactly one variant is set.
type AuthMethod struct {
	Password *PasswordAuth `json:"password,omitempty"`
	Jwt      *JwtAuth      `json:"jwt,omitempty"`
	Ethereum *EthereumAuth `json:"ethereum,omitempty"`
}

// PasswordAuth stores the hex encoded double SHA-256 password hash.
type PasswordAuth struct {
	Hash string `json:"hash"`
}

// JwtAuth stores the 32-byte hash binding the account to a federated
// identity claim set.
type JwtAuth struct {
	Hash []byte `json:"hash"`
}

// EthereumAuth stores the 0x-prefixed address of the controlling external
// wallet.
type EthereumAuth struct {
	Address string `json:"address"`
}

// AccountInfo is the indexer's view of a registered account.
type AccountInfo struct {
	Account     string              `json:"account"`
	AuthMethod  AuthMethod          `json:"auth_method"`
	SessionKeys []AccountSessionKey `json:"session_keys"`
	Nonce       uint64              `json:"nonce"`
	Salt        string              `json:"salt"`
}

// AccountSessionKey is a session key as recorded on-chain (public half only).
type AccountSessionKey struct {
	Key        string   `json:"key"`
	Expiration int64    `json:"expiration"`
	Whitelist  []string `json:"whitelist,omitempty"`
	LaneID     string   `json:"lane_id,omitempty"`
}

// FindSessionKey returns the recorded session key matching the public key,
// or nil when the account does not list it.
func (a *AccountInfo) FindSessionKey(publicKey string) *AccountSessionKey {
	for i := range a.SessionKeys {
		if a.SessionKeys[i].Key == publicKey {
			return &a.SessionKeys[i]
		}
	}
	return nil
}
