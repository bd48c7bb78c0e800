package auth

import (
	"context"
	"fmt"

	"github.com/quill-wallet/quill-wallet/internal/logger"
	"github.com/quill-wallet/quill-wallet/internal/signing"
	"github.com/quill-wallet/quill-wallet/internal/validation"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/transaction"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// PasswordProvider authenticates with the account's double-hashed
// password. Login verifies locally against the indexer's stored hash;
// every on-chain operation is authorized by a secret blob at index 0
// plus a proof of password knowledge.
type PasswordProvider struct {
	indexer Indexer
	node    Node
	prover  SecretProver
	builder *transaction.Builder
}

var (
	_ Provider            = (*PasswordProvider)(nil)
	_ SessionKeyRegistrar = (*PasswordProvider)(nil)
)

// NewPasswordProvider wires the password provider. A nil builder selects
// the default identity contract.
func NewPasswordProvider(indexer Indexer, node Node, prover SecretProver, builder *transaction.Builder) *PasswordProvider {
	if builder == nil {
		builder = transaction.NewBuilder("", nil)
	}
	return &PasswordProvider{indexer: indexer, node: node, prover: prover, builder: builder}
}

func (p *PasswordProvider) Type() string {
	return types.ProviderPassword
}

func (p *PasswordProvider) Enabled() bool {
	return true
}

func (p *PasswordProvider) Login(ctx context.Context, creds Credentials, opts *FlowOptions) (*types.Wallet, error) {
	username := normalizeUsername(creds.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if creds.Password == "" {
		return nil, apperrors.Validation("password is required")
	}
	address := types.AccountAddress(username, p.builder.IdentityContract())

	opts.Emit(types.EventCheckingAccount, "Checking account "+address)
	info, err := p.indexer.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, err
	}
	stored, err := storedPasswordHash(info)
	if err != nil {
		return nil, err
	}
	if signing.PasswordHash(address, creds.Password, info.Salt) != stored {
		return nil, apperrors.ErrInvalidPassword
	}

	wallet := &types.Wallet{Username: username, Address: address, Salt: info.Salt}

	if params := opts.SessionKeyRequest(); params != nil {
		result, err := p.addSessionKey(ctx, wallet, creds.Password, info, *params, opts)
		if err != nil {
			return nil, err
		}
		key := result.SessionKey
		wallet.SessionKey = &key
	}
	return wallet, nil
}

func (p *PasswordProvider) Register(ctx context.Context, creds Credentials, opts *FlowOptions) (*types.Wallet, error) {
	username := normalizeUsername(creds.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := validation.ValidatePassword(creds.Password); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := validation.ValidatePasswordConfirmation(creds.Password, creds.ConfirmPassword); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := validation.ValidateInviteCode(creds.InviteCode); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	address := types.AccountAddress(username, p.builder.IdentityContract())

	// only a confirmed existing account blocks registration; the chain
	// settles races on the register transaction itself
	opts.Emit(types.EventCheckingAccount, "Checking account "+address)
	if _, err := p.indexer.GetAccountInfo(ctx, address); err == nil {
		return nil, apperrors.New(apperrors.KindState, apperrors.ErrCodeAccountExists, fmt.Sprintf("Account %s already exists", address))
	}

	salt, err := newSalt()
	if err != nil {
		return nil, err
	}
	storedHex := signing.PasswordHash(address, creds.Password, salt)
	storedRaw := signing.PasswordHashBytes(address, creds.Password, salt)
	nonce := newNonce()

	opts.Emit(types.EventClaimingInvite, "Claiming invite code")
	invite, err := p.indexer.ClaimInviteCode(ctx, creds.InviteCode, address)
	if err != nil {
		return nil, err
	}

	reg := types.RegisterIdentity{
		Account:    address,
		Nonce:      nonce,
		Salt:       salt,
		Auth:       types.AuthMethod{Password: &types.PasswordAuth{Hash: storedHex}},
		InviteCode: creds.InviteCode,
	}

	wallet := &types.Wallet{Username: username, Address: address, Salt: salt}

	var addKey *types.AddSessionKey
	if params := opts.SessionKeyRequest(); params != nil {
		key, action, err := newSessionKey(address, *params, nonce)
		if err != nil {
			return nil, err
		}
		wallet.SessionKey = &key
		addKey = &action
	}

	blobs, err := p.builder.RegistrationBlobs(p.builder.SecretBlob(storedRaw), reg, invite, addKey)
	if err != nil {
		return nil, err
	}
	if _, err := p.submitSecretTx(ctx, address, creds.Password, salt, storedHex, blobs, nonce, opts); err != nil {
		return nil, err
	}

	if wallet.SessionKey != nil {
		opts.Emit(types.EventSessionKeyAdded, "Session key registered")
	}
	return wallet, nil
}

// RegisterSessionKey authorizes a fresh session key for an
// authenticated wallet: [secret, AddSessionKey] plus the password proof.
func (p *PasswordProvider) RegisterSessionKey(ctx context.Context, wallet *types.Wallet, password string, params SessionKeyParams, opts *FlowOptions) (*SessionKeyResult, error) {
	info, err := p.verifyWallet(ctx, wallet, password)
	if err != nil {
		return nil, err
	}
	return p.addSessionKey(ctx, wallet, password, info, params, opts)
}

// RemoveSessionKey revokes a session key: [secret, RemoveSessionKey]
// plus the password proof.
func (p *PasswordProvider) RemoveSessionKey(ctx context.Context, wallet *types.Wallet, password, publicKey string, opts *FlowOptions) (*TxResult, error) {
	if publicKey == "" {
		return nil, apperrors.Validation("session key public key is required")
	}
	info, err := p.verifyWallet(ctx, wallet, password)
	if err != nil {
		return nil, err
	}

	nonce := newNonce()
	action := types.RemoveSessionKey{Account: wallet.Address, Key: publicKey, Nonce: nonce}
	blobs, err := p.builder.AuthenticatedBlobs(p.builder.SecretBlob(signing.PasswordHashBytes(wallet.Address, password, info.Salt)), action)
	if err != nil {
		return nil, err
	}
	return p.submitSecretTx(ctx, wallet.Address, password, info.Salt, info.AuthMethod.Password.Hash, blobs, nonce, opts)
}

// VerifyIdentity re-attests the account on chain:
// [secret, VerifyIdentity] plus the password proof.
func (p *PasswordProvider) VerifyIdentity(ctx context.Context, wallet *types.Wallet, password string, opts *FlowOptions) (*TxResult, error) {
	info, err := p.verifyWallet(ctx, wallet, password)
	if err != nil {
		return nil, err
	}

	nonce := newNonce()
	action := types.VerifyIdentity{Account: wallet.Address, Nonce: nonce}
	blobs, err := p.builder.AuthenticatedBlobs(p.builder.SecretBlob(signing.PasswordHashBytes(wallet.Address, password, info.Salt)), action)
	if err != nil {
		return nil, err
	}
	return p.submitSecretTx(ctx, wallet.Address, password, info.Salt, info.AuthMethod.Password.Hash, blobs, nonce, opts)
}

func (p *PasswordProvider) addSessionKey(ctx context.Context, wallet *types.Wallet, password string, info *types.AccountInfo, params SessionKeyParams, opts *FlowOptions) (*SessionKeyResult, error) {
	nonce := newNonce()
	key, action, err := newSessionKey(wallet.Address, params, nonce)
	if err != nil {
		return nil, err
	}
	blobs, err := p.builder.AuthenticatedBlobs(p.builder.SecretBlob(signing.PasswordHashBytes(wallet.Address, password, info.Salt)), action)
	if err != nil {
		return nil, err
	}
	result, err := p.submitSecretTx(ctx, wallet.Address, password, info.Salt, info.AuthMethod.Password.Hash, blobs, nonce, opts)
	if err != nil {
		return nil, err
	}
	opts.Emit(types.EventSessionKeyAdded, "Session key registered")
	return &SessionKeyResult{TxResult: *result, SessionKey: key}, nil
}

// verifyWallet re-checks the password against current chain state before
// a standalone operation.
func (p *PasswordProvider) verifyWallet(ctx context.Context, wallet *types.Wallet, password string) (*types.AccountInfo, error) {
	if wallet == nil {
		return nil, apperrors.ErrNotLoggedIn
	}
	info, err := p.indexer.GetAccountInfo(ctx, wallet.Address)
	if err != nil {
		return nil, err
	}
	stored, err := storedPasswordHash(info)
	if err != nil {
		return nil, err
	}
	if signing.PasswordHash(wallet.Address, password, info.Salt) != stored {
		return nil, apperrors.ErrInvalidPassword
	}
	return info, nil
}

// submitSecretTx runs the password submission sequence: blob tx, proof
// of password knowledge, proof tx.
func (p *PasswordProvider) submitSecretTx(ctx context.Context, address, password, salt, storedHash string, blobs []types.Blob, nonce uint64, opts *FlowOptions) (*TxResult, error) {
	opts.Emit(types.EventSendingBlobTx, "Sending transaction")
	txHash, err := p.node.SendBlobTx(ctx, types.BlobTx{Identity: address, Blobs: blobs})
	if err != nil {
		return nil, err
	}

	opts.Emit(types.EventProving, "Proving password knowledge")
	proofTx, err := p.prover.ProveSecret(ctx, SecretProofRequest{
		Account:    address,
		Secret:     password,
		Salt:       salt,
		StoredHash: storedHash,
		TxHash:     txHash,
		BlobIndex:  0,
		BlobCount:  len(blobs),
		Nonce:      nonce,
	})
	if err != nil {
		return nil, err
	}

	opts.Emit(types.EventSendingProofTx, "Sending proof")
	proofHash, err := p.node.SendProofTx(ctx, proofTx)
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "password transaction submitted", "account", address, "tx_hash", txHash, "proof_tx_hash", proofHash)
	return &TxResult{BlobTxHash: txHash, ProofTxHash: proofHash}, nil
}

func storedPasswordHash(info *types.AccountInfo) (string, error) {
	if info.AuthMethod.Password == nil {
		return "", apperrors.New(apperrors.KindAuth, apperrors.ErrCodeInvalidCredentials, "Account does not use password authentication")
	}
	return info.AuthMethod.Password.Hash, nil
}
