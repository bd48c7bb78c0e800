// Package auth defines the authentication provider contract, the provider
// registry, and the built-in providers: password, federated token,
// external Ethereum signer and relayed (QR) signing.
package auth

import (
	"context"
	"time"

	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// Credentials carries the caller-supplied login or registration input.
// Providers validate the fields they require and ignore the rest.
type Credentials struct {
	Username        string
	Password        string
	ConfirmPassword string
	// Token is a federated identity token (OIDC id_token).
	Token      string
	InviteCode string
	// ProviderID selects a specific external signer when several are
	// configured.
	ProviderID string
}

// SessionKeyParams configures a session key to be generated and
// registered during a flow.
type SessionKeyParams struct {
	Duration  time.Duration
	Whitelist []string
	LaneID    string
}

// FlowOptions are the optional per-call hooks and settings of a flow.
// A nil *FlowOptions is valid everywhere.
type FlowOptions struct {
	// OnEvent receives progress notifications, including the QR payload
	// for relayed signing.
	OnEvent func(types.WalletEvent)
	// OnError receives flow errors for UX and telemetry. The returned
	// error stays the authoritative outcome; best-effort failures that do
	// not abort the flow are also delivered here.
	OnError func(error)
	// SessionKey, when set, asks the provider to register a session key
	// as part of the flow.
	SessionKey *SessionKeyParams
}

// Emit delivers a progress event. Safe on a nil receiver.
func (o *FlowOptions) Emit(eventType, message string) {
	if o == nil || o.OnEvent == nil {
		return
	}
	o.OnEvent(types.WalletEvent{Type: eventType, Message: message})
}

// Fail delivers a non-fatal error. Safe on a nil receiver.
func (o *FlowOptions) Fail(err error) {
	if o == nil || o.OnError == nil || err == nil {
		return
	}
	o.OnError(err)
}

// SessionKeyRequest returns the session key parameters, or nil when the
// caller did not ask for one. Safe on a nil receiver.
func (o *FlowOptions) SessionKeyRequest() *SessionKeyParams {
	if o == nil {
		return nil
	}
	return o.SessionKey
}

// Provider authenticates users against one backend. Implementations are
// stateless with respect to the wallet; the session controller owns
// persistence.
type Provider interface {
	// Type returns the stable provider identifier used as registry key.
	Type() string
	// Enabled reports whether the provider is usable with its current
	// configuration. Disabled providers are filtered from listings.
	Enabled() bool
	// Login authenticates an existing account and returns its wallet.
	Login(ctx context.Context, creds Credentials, opts *FlowOptions) (*types.Wallet, error)
	// Register creates a new account and returns its wallet.
	Register(ctx context.Context, creds Credentials, opts *FlowOptions) (*types.Wallet, error)
}

// Preparer is implemented by providers that need a pre-flight step
// before login or registration, such as probing an external signer.
type Preparer interface {
	CheckAndPrepare(ctx context.Context) error
}

// TxResult carries the transaction hashes of a submitted flow.
type TxResult struct {
	BlobTxHash  string
	ProofTxHash string
}

// SessionKeyResult is the outcome of a session key registration.
type SessionKeyResult struct {
	TxResult
	SessionKey types.SessionKey
}

// SessionKeyRegistrar is implemented by providers that can run
// standalone session-key transactions for an authenticated wallet.
type SessionKeyRegistrar interface {
	RegisterSessionKey(ctx context.Context, wallet *types.Wallet, password string, params SessionKeyParams, opts *FlowOptions) (*SessionKeyResult, error)
	RemoveSessionKey(ctx context.Context, wallet *types.Wallet, password, publicKey string, opts *FlowOptions) (*TxResult, error)
	VerifyIdentity(ctx context.Context, wallet *types.Wallet, password string, opts *FlowOptions) (*TxResult, error)
}
