package auth

import (
	"context"
	"time"

	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// Indexer is the read side of the chain: account state and invite
// claiming.
type Indexer interface {
	// GetAccountInfo fetches the registered state of an account. A
	// missing account yields an AppError with code account_not_found.
	GetAccountInfo(ctx context.Context, account string) (*types.AccountInfo, error)
	// ClaimInviteCode consumes an invite code and returns the blob that
	// must be included in the registration transaction.
	ClaimInviteCode(ctx context.Context, code, account string) (types.Blob, error)
}

// Node submits transactions.
type Node interface {
	SendBlobTx(ctx context.Context, tx types.BlobTx) (string, error)
	SendProofTx(ctx context.Context, tx types.ProofTx) (string, error)
}

// SecretProofRequest is the proving input for password-authorized
// transactions. Secret is the witness (the raw password). BlobIndex
// locates the secret blob inside the referenced transaction; BlobCount
// is the total blob count of that transaction.
type SecretProofRequest struct {
	Account    string `json:"account"`
	Secret     string `json:"secret"`
	Salt       string `json:"salt"`
	StoredHash string `json:"stored_hash"`
	TxHash     string `json:"tx_hash"`
	BlobIndex  int    `json:"blob_index"`
	BlobCount  int    `json:"blob_count"`
	Nonce      uint64 `json:"nonce"`
}

// SecretProver produces proofs of password knowledge.
type SecretProver interface {
	ProveSecret(ctx context.Context, req SecretProofRequest) (types.ProofTx, error)
}

// TokenProofRequest is the proving input for federated-token authorized
// transactions. StoredHash is the hash registered on chain, DerivedHash
// the one recomputed from the presented token; the proof shows they
// agree.
type TokenProofRequest struct {
	Token       string `json:"token"`
	IssuerKey   string `json:"issuer_key"`
	StoredHash  []byte `json:"stored_hash"`
	DerivedHash []byte `json:"derived_hash"`
	TxHash      string `json:"tx_hash"`
	BlobIndex   int    `json:"blob_index"`
	BlobCount   int    `json:"blob_count"`
	Nonce       uint64 `json:"nonce"`
}

// TokenProver produces proofs of federated token validity.
type TokenProver interface {
	ProveToken(ctx context.Context, req TokenProofRequest) (types.ProofTx, error)
}

// RemoteSigner is a directly reachable external Ethereum signer, such as
// a browser extension bridge or a key service.
type RemoteSigner interface {
	// ProviderID identifies the signer backend in credentials and
	// registered auth methods.
	ProviderID() string
	// Address returns the signer's reported account address.
	Address(ctx context.Context) (string, error)
	// SignPersonal signs a personal message and returns the 65-byte
	// r||s||v signature.
	SignPersonal(ctx context.Context, message []byte) ([]byte, error)
}

// SigningRequest is a message to be signed by a wallet reached through
// the relay.
type SigningRequest struct {
	// Message is the plain text to sign; the remote wallet applies the
	// personal-message prefix before signing.
	Message     string
	Description string
	Origin      string
	// Timeout bounds the wait for a response; zero selects the relay's
	// default.
	Timeout time.Duration
	// OnPending receives the QR payload once the request is registered
	// with the relay.
	OnPending func(qrPayload string)
	// OnAck fires when the relay acknowledges the request.
	OnAck func()
}

// SigningResult is a completed relayed signature.
type SigningResult struct {
	// Signature is the 65-byte r||s||v personal signature.
	Signature []byte
	// PublicKey is the signer's 33-byte compressed public key.
	PublicKey []byte
}

// SigningRelay forwards signing requests to remote wallets over the
// relay service and correlates their responses.
type SigningRelay interface {
	RequestSignature(ctx context.Context, req SigningRequest) (SigningResult, error)
}
