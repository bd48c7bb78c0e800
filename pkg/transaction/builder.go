package transaction

import (
	"fmt"

	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// Builder assembles blobs for one identity contract. Blob order inside a
// transaction is part of the chain contract: verification blobs come
// first so proofs can reference them by index.
type Builder struct {
	identityContract string
	codec            Codec
}

// NewBuilder creates a Builder for the given identity contract. A nil
// codec selects BorshCodec.
func NewBuilder(identityContract string, codec Codec) *Builder {
	if identityContract == "" {
		identityContract = types.DefaultIdentityContract
	}
	if codec == nil {
		codec = BorshCodec{}
	}
	return &Builder{identityContract: identityContract, codec: codec}
}

// IdentityContract returns the contract name actions are addressed to.
func (b *Builder) IdentityContract() string {
	return b.identityContract
}

// ActionBlob encodes an identity action into a blob for the identity
// contract.
func (b *Builder) ActionBlob(action types.IdentityAction) (types.Blob, error) {
	data, err := b.codec.EncodeAction(action)
	if err != nil {
		return types.Blob{}, fmt.Errorf("failed to encode identity action: %w", err)
	}
	return types.Blob{ContractName: b.identityContract, Data: data}, nil
}

// SecpBlob encodes a secp256k1 verification payload.
func (b *Builder) SecpBlob(blob SecpBlob) (types.Blob, error) {
	data, err := b.codec.EncodeSecpBlob(blob)
	if err != nil {
		return types.Blob{}, fmt.Errorf("failed to encode secp blob: %w", err)
	}
	return types.Blob{ContractName: types.ContractSecp256k1, Data: data}, nil
}

// SecretBlob carries the 32-byte stored password hash for the secret
// verifier.
func (b *Builder) SecretBlob(hash [32]byte) types.Blob {
	return types.Blob{ContractName: types.ContractCheckSecret, Data: hash[:]}
}

// JwtBlob carries the 32-byte federated identity hash for the token
// verifier.
func (b *Builder) JwtBlob(hash [32]byte) types.Blob {
	return types.Blob{ContractName: types.ContractCheckJwt, Data: hash[:]}
}

// AuthenticatedBlobs pairs a verification blob with one identity action:
// [verification, action]. This is the shape of session-key registration,
// removal, identity verification and session-key use transactions.
func (b *Builder) AuthenticatedBlobs(verification types.Blob, action types.IdentityAction) ([]types.Blob, error) {
	actionBlob, err := b.ActionBlob(action)
	if err != nil {
		return nil, err
	}
	return []types.Blob{verification, actionBlob}, nil
}

// RegistrationBlobs assembles an account registration:
// [verification, RegisterIdentity, invite] with an optional AddSessionKey
// appended. The verification blob proves control of the declared auth
// method; the invite blob is returned by the indexer's claim endpoint.
func (b *Builder) RegistrationBlobs(verification types.Blob, reg types.RegisterIdentity, invite types.Blob, addKey *types.AddSessionKey) ([]types.Blob, error) {
	regBlob, err := b.ActionBlob(reg)
	if err != nil {
		return nil, err
	}
	blobs := []types.Blob{verification, regBlob, invite}
	if addKey != nil {
		keyBlob, err := b.ActionBlob(*addKey)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, keyBlob)
	}
	return blobs, nil
}
