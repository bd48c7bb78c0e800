package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/quill-wallet/quill-wallet/internal/logger"
	"github.com/quill-wallet/quill-wallet/internal/signing"
	"github.com/quill-wallet/quill-wallet/internal/validation"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/transaction"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// DefaultMessagePrefix opens the human readable text external wallets
// are asked to sign.
const DefaultMessagePrefix = "Authorize"

// EthereumConfig configures the external-signer provider.
type EthereumConfig struct {
	// MessagePrefix overrides DefaultMessagePrefix in signed messages.
	MessagePrefix string
}

// EthereumProvider authenticates with an EIP-191 personal signature from
// an external wallet. Accounts are bound on chain to the wallet's
// address; transactions carry a secp256k1 blob the chain verifies
// natively, so no proof transaction follows.
type EthereumProvider struct {
	cfg     EthereumConfig
	indexer Indexer
	node    Node
	builder *transaction.Builder

	mu      sync.RWMutex
	signers map[string]RemoteSigner
	order   []string
}

var (
	_ Provider = (*EthereumProvider)(nil)
	_ Preparer = (*EthereumProvider)(nil)
)

// NewEthereumProvider wires the external-signer provider. A nil builder
// selects the default identity contract.
func NewEthereumProvider(cfg EthereumConfig, indexer Indexer, node Node, builder *transaction.Builder, signers ...RemoteSigner) *EthereumProvider {
	if builder == nil {
		builder = transaction.NewBuilder("", nil)
	}
	p := &EthereumProvider{
		cfg:     cfg,
		indexer: indexer,
		node:    node,
		builder: builder,
		signers: make(map[string]RemoteSigner),
	}
	for _, s := range signers {
		p.AddSigner(s)
	}
	return p
}

// AddSigner registers an external signer under its provider id. The
// first registered signer is the default.
func (p *EthereumProvider) AddSigner(s RemoteSigner) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := s.ProviderID()
	if _, exists := p.signers[id]; !exists {
		p.order = append(p.order, id)
	}
	p.signers[id] = s
}

func (p *EthereumProvider) Type() string {
	return types.ProviderEthereum
}

// Enabled reports whether at least one signer is registered.
func (p *EthereumProvider) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order) > 0
}

// CheckAndPrepare probes the registered signers. It succeeds as soon as
// one responds.
func (p *EthereumProvider) CheckAndPrepare(ctx context.Context) error {
	p.mu.RLock()
	signers := make([]RemoteSigner, 0, len(p.order))
	for _, id := range p.order {
		signers = append(signers, p.signers[id])
	}
	p.mu.RUnlock()

	if len(signers) == 0 {
		return apperrors.New(apperrors.KindState, apperrors.ErrCodeSignerError, "No external signer configured")
	}

	var lastErr error
	for _, s := range signers {
		addr, err := s.Address(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		logger.Debug(ctx, "external signer ready", "provider", s.ProviderID(), "address", addr)
		return nil
	}
	return lastErr
}

func (p *EthereumProvider) Login(ctx context.Context, creds Credentials, opts *FlowOptions) (*types.Wallet, error) {
	username := normalizeUsername(creds.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	signer, err := p.signerFor(creds.ProviderID)
	if err != nil {
		return nil, err
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

	nonce := newNonce()
	material, err := p.requestSignature(ctx, signer, address, nonce)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(material.ethAddress, info.AuthMethod.Ethereum.Address) {
		return nil, apperrors.AccountMismatch(fmt.Sprintf("signer %s does not control account %s", material.ethAddress, address))
	}

	wallet := &types.Wallet{Username: username, Address: address, Salt: info.Salt, ProviderRef: signer.ProviderID()}

	if params := opts.SessionKeyRequest(); params != nil {
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

func (p *EthereumProvider) Register(ctx context.Context, creds Credentials, opts *FlowOptions) (*types.Wallet, error) {
	username := normalizeUsername(creds.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := validation.ValidateInviteCode(creds.InviteCode); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	signer, err := p.signerFor(creds.ProviderID)
	if err != nil {
		return nil, err
	}
	address := types.AccountAddress(username, p.builder.IdentityContract())

	// only a confirmed existing account blocks registration
	opts.Emit(types.EventCheckingAccount, "Checking account "+address)
	if _, err := p.indexer.GetAccountInfo(ctx, address); err == nil {
		return nil, apperrors.New(apperrors.KindState, apperrors.ErrCodeAccountExists, fmt.Sprintf("Account %s already exists", address))
	}

	nonce := newNonce()
	material, err := p.requestSignature(ctx, signer, address, nonce)
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

	wallet := &types.Wallet{Username: username, Address: address, ProviderRef: signer.ProviderID()}

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

// signedMessage is the verified signature material of one login message.
type signedMessage struct {
	digest     [32]byte
	signature  [64]byte
	publicKey  [33]byte
	ethAddress string
}

// blob shapes the material into the chain's secp256k1 verification blob.
func (m signedMessage) blob(identity string) transaction.SecpBlob {
	return transaction.SecpBlob{
		Identity:  identity,
		Data:      m.digest,
		PublicKey: m.publicKey,
		Signature: m.signature,
	}
}

// requestSignature asks the signer for an EIP-191 signature over the
// login message and verifies it before anything is submitted.
func (p *EthereumProvider) requestSignature(ctx context.Context, signer RemoteSigner, address string, nonce uint64) (signedMessage, error) {
	signerAddr, err := signer.Address(ctx)
	if err != nil {
		return signedMessage{}, err
	}

	message := fmt.Sprintf("%s %s with nonce %d", p.messagePrefix(), address, nonce)
	sig, err := signer.SignPersonal(ctx, []byte(message))
	if err != nil {
		return signedMessage{}, err
	}
	if len(sig) != 65 {
		return signedMessage{}, apperrors.InvalidSignature(fmt.Sprintf("expected 65 bytes, got %d", len(sig)))
	}
	canonical, err := signing.NormalizeS(sig)
	if err != nil {
		return signedMessage{}, apperrors.InvalidSignature(err.Error())
	}

	digest := signing.PersonalHash([]byte(message))
	recovered, err := signing.RecoverAddress(digest, canonical)
	if err != nil {
		return signedMessage{}, apperrors.InvalidSignature(err.Error())
	}
	if !strings.EqualFold(recovered.Hex(), signerAddr) {
		return signedMessage{}, apperrors.InvalidSignature("signature does not match the signer address")
	}
	compressed, err := signing.RecoverCompressed(digest, canonical)
	if err != nil {
		return signedMessage{}, apperrors.InvalidSignature(err.Error())
	}

	var out signedMessage
	copy(out.digest[:], digest)
	copy(out.signature[:], canonical[:64])
	copy(out.publicKey[:], compressed)
	out.ethAddress = recovered.Hex()
	return out, nil
}

// sendBlobTx submits the transaction. Secp-verified transactions need no
// proof transaction; the chain checks the signature blob natively.
func (p *EthereumProvider) sendBlobTx(ctx context.Context, address string, blobs []types.Blob, opts *FlowOptions) (*TxResult, error) {
	opts.Emit(types.EventSendingBlobTx, "Sending transaction")
	txHash, err := p.node.SendBlobTx(ctx, types.BlobTx{Identity: address, Blobs: blobs})
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "signed transaction submitted", "account", address, "tx_hash", txHash)
	return &TxResult{BlobTxHash: txHash}, nil
}

func (p *EthereumProvider) signerFor(providerID string) (RemoteSigner, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.order) == 0 {
		return nil, apperrors.New(apperrors.KindState, apperrors.ErrCodeSignerError, "No external signer configured")
	}
	if providerID == "" {
		return p.signers[p.order[0]], nil
	}
	s, ok := p.signers[providerID]
	if !ok {
		return nil, apperrors.NewWithDetail(
			apperrors.KindValidation,
			apperrors.ErrCodeProviderNotFound,
			"Unknown signing provider",
			fmt.Sprintf("signer: %s", providerID),
		)
	}
	return s, nil
}

func (p *EthereumProvider) messagePrefix() string {
	if p.cfg.MessagePrefix != "" {
		return p.cfg.MessagePrefix
	}
	return DefaultMessagePrefix
}
