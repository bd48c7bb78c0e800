package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quill-wallet/quill-wallet/internal/logger"
	"github.com/quill-wallet/quill-wallet/internal/metrics"
	"github.com/quill-wallet/quill-wallet/internal/signing"
	"github.com/quill-wallet/quill-wallet/internal/validation"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/transaction"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// Method tags close the relayed signing message so a signature captured
// for one operation cannot be replayed for another.
const (
	methodTagRegister      = "register"
	methodTagLogin         = "login"
	methodTagAddSessionKey = "add_session_key"
)

// RelayedConfig configures the relayed signing provider.
type RelayedConfig struct {
	// Origin identifies this application in signing requests.
	Origin string
	// Description overrides the per-operation text shown by the remote
	// wallet.
	Description string
	// Per-method signature wait bounds; zero selects the relay's
	// default.
	LoginTimeout      time.Duration
	RegisterTimeout   time.Duration
	SessionKeyTimeout time.Duration
}

// RelayedProvider authenticates through a wallet reached over the
// signing relay: the user scans a QR payload, their wallet signs
// "{address}:{nonce}:{method}", and the relay returns the signature.
// Like the direct Ethereum provider it submits secp-verified blob
// transactions with no proof step.
type RelayedProvider struct {
	cfg     RelayedConfig
	relay   SigningRelay
	indexer Indexer
	node    Node
	builder *transaction.Builder
	metrics *metrics.Metrics
}

var _ Provider = (*RelayedProvider)(nil)

// NewRelayedProvider wires the relayed provider. A nil builder selects
// the default identity contract; a nil metrics recorder is valid.
func NewRelayedProvider(cfg RelayedConfig, relay SigningRelay, indexer Indexer, node Node, builder *transaction.Builder, m *metrics.Metrics) *RelayedProvider {
	if builder == nil {
		builder = transaction.NewBuilder("", nil)
	}
	return &RelayedProvider{
		cfg:     cfg,
		relay:   relay,
		indexer: indexer,
		node:    node,
		builder: builder,
		metrics: m,
	}
}

func (p *RelayedProvider) Type() string {
	return types.ProviderRelayed
}

// Enabled reports whether a signing relay is configured.
func (p *RelayedProvider) Enabled() bool {
	return p.relay != nil
}

func (p *RelayedProvider) Login(ctx context.Context, creds Credentials, opts *FlowOptions) (*types.Wallet, error) {
	username := normalizeUsername(creds.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if p.relay == nil {
		return nil, apperrors.New(apperrors.KindState, apperrors.ErrCodeRelayError, "Signing relay is not configured")
	}
	address := types.AccountAddress(username, p.builder.IdentityContract())

	opts.Emit(types.EventCheckingAccount, "Checking account "+address)
	info, err := p.indexer.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, err
	}
	if info.AuthMethod.Ethereum == nil {
		return nil, apperrors.New(apperrors.KindAuth, apperrors.ErrCodeInvalidCredentials, "Account does not use an external wallet")
	}

	// the signed message names the action it authorizes; a plain login
	// stays off chain while a session-key request becomes a transaction
	tag := methodTagLogin
	params := opts.SessionKeyRequest()
	if params != nil {
		tag = methodTagAddSessionKey
	}

	nonce := newNonce()
	material, err := p.requestSignature(ctx, address, tag, nonce, opts)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(material.ethAddress, info.AuthMethod.Ethereum.Address) {
		return nil, apperrors.AccountMismatch(fmt.Sprintf("signer %s does not control account %s", material.ethAddress, address))
	}

	wallet := &types.Wallet{Username: username, Address: address, Salt: info.Salt}

	if params != nil {
		key, action, err := newSessionKey(address, *params, nonce)
		if err != nil {
			return nil, err
		}
		verification, err := p.builder.SecpBlob(material.blob(address))
		if err != nil {
			return nil, err
		}
		blobs, err := p.builder.AuthenticatedBlobs(verification, action)
		if err != nil {
			return nil, err
		}
		if _, err := p.sendBlobTx(ctx, address, blobs, opts); err != nil {
			return nil, err
		}
		opts.Emit(types.EventSessionKeyAdded, "Session key registered")
		wallet.SessionKey = &key
	}
	return wallet, nil
}

func (p *RelayedProvider) Register(ctx context.Context, creds Credentials, opts *FlowOptions) (*types.Wallet, error) {
	username := normalizeUsername(creds.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := validation.ValidateInviteCode(creds.InviteCode); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if p.relay == nil {
		return nil, apperrors.New(apperrors.KindState, apperrors.ErrCodeRelayError, "Signing relay is not configured")
	}
	address := types.AccountAddress(username, p.builder.IdentityContract())

	// only a confirmed existing account blocks registration
	opts.Emit(types.EventCheckingAccount, "Checking account "+address)
	if _, err := p.indexer.GetAccountInfo(ctx, address); err == nil {
		return nil, apperrors.New(apperrors.KindState, apperrors.ErrCodeAccountExists, fmt.Sprintf("Account %s already exists", address))
	}

	nonce := newNonce()
	material, err := p.requestSignature(ctx, address, methodTagRegister, nonce, opts)
	if err != nil {
		return nil, err
	}

	opts.Emit(types.EventClaimingInvite, "Claiming invite code")
	invite, err := p.indexer.ClaimInviteCode(ctx, creds.InviteCode, address)
	if err != nil {
		return nil, err
	}

	reg := types.RegisterIdentity{
		Account:    address,
		Nonce:      nonce,
		Auth:       types.AuthMethod{Ethereum: &types.EthereumAuth{Address: material.ethAddress}},
		InviteCode: creds.InviteCode,
	}

	wallet := &types.Wallet{Username: username, Address: address}

	var addKey *types.AddSessionKey
	if params := opts.SessionKeyRequest(); params != nil {
		key, action, err := newSessionKey(address, *params, nonce)
		if err != nil {
			return nil, err
		}
		wallet.SessionKey = &key
		addKey = &action
	}

	verification, err := p.builder.SecpBlob(material.blob(address))
	if err != nil {
		return nil, err
	}
	blobs, err := p.builder.RegistrationBlobs(verification, reg, invite, addKey)
	if err != nil {
		return nil, err
	}
	if _, err := p.sendBlobTx(ctx, address, blobs, opts); err != nil {
		return nil, err
	}

	if wallet.SessionKey != nil {
		opts.Emit(types.EventSessionKeyAdded, "Session key registered")
	}
	return wallet, nil
}

// requestSignature relays the signing message to the remote wallet and
// verifies the returned signature against the returned key.
func (p *RelayedProvider) requestSignature(ctx context.Context, address, methodTag string, nonce uint64, opts *FlowOptions) (signedMessage, error) {
	message := fmt.Sprintf("%s:%d:%s", address, nonce, methodTag)
	result, err := p.relay.RequestSignature(ctx, SigningRequest{
		Message:     message,
		Description: p.description(methodTag, address),
		Origin:      p.cfg.Origin,
		Timeout:     p.timeoutFor(methodTag),
		OnPending: func(qrPayload string) {
			opts.Emit(types.EventSigningRequest, qrPayload)
		},
		OnAck: func() {
			opts.Emit(types.EventSigningAck, "Signing request acknowledged")
		},
	})
	p.metrics.SigningRequest(err)
	if err != nil {
		return signedMessage{}, err
	}
	return verifyRelayedResult(message, result)
}

// verifyRelayedResult checks the remote signature over the personal hash
// of the message and derives the signer's address.
func verifyRelayedResult(message string, result SigningResult) (signedMessage, error) {
	if len(result.Signature) != 65 {
		return signedMessage{}, apperrors.InvalidSignature(fmt.Sprintf("expected 65 bytes, got %d", len(result.Signature)))
	}
	if len(result.PublicKey) != 33 {
		return signedMessage{}, apperrors.InvalidSignature(fmt.Sprintf("expected 33-byte public key, got %d", len(result.PublicKey)))
	}
	canonical, err := signing.NormalizeS(result.Signature)
	if err != nil {
		return signedMessage{}, apperrors.InvalidSignature(err.Error())
	}

	digest := signing.PersonalHash([]byte(message))
	if !signing.VerifyDigest(digest, canonical[:64], result.PublicKey) {
		return signedMessage{}, apperrors.InvalidSignature("relayed signature does not match the returned key")
	}
	addr, err := signing.AddressFromCompressed(result.PublicKey)
	if err != nil {
		return signedMessage{}, apperrors.InvalidSignature(err.Error())
	}

	var out signedMessage
	copy(out.digest[:], digest)
	copy(out.signature[:], canonical[:64])
	copy(out.publicKey[:], result.PublicKey)
	out.ethAddress = addr.Hex()
	return out, nil
}

func (p *RelayedProvider) sendBlobTx(ctx context.Context, address string, blobs []types.Blob, opts *FlowOptions) (*TxResult, error) {
	opts.Emit(types.EventSendingBlobTx, "Sending transaction")
	txHash, err := p.node.SendBlobTx(ctx, types.BlobTx{Identity: address, Blobs: blobs})
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "relayed transaction submitted", "account", address, "tx_hash", txHash)
	return &TxResult{BlobTxHash: txHash}, nil
}

func (p *RelayedProvider) timeoutFor(methodTag string) time.Duration {
	switch methodTag {
	case methodTagLogin:
		return p.cfg.LoginTimeout
	case methodTagAddSessionKey:
		return p.cfg.SessionKeyTimeout
	default:
		return p.cfg.RegisterTimeout
	}
}

func (p *RelayedProvider) description(methodTag, address string) string {
	if p.cfg.Description != "" {
		return p.cfg.Description
	}
	switch methodTag {
	case methodTagRegister:
		return "Register " + address
	case methodTagAddSessionKey:
		return "Add a session key to " + address
	default:
		return "Log in as " + address
	}
}
