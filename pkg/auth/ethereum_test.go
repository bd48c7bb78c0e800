package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-wallet/quill-wallet/internal/signing"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

const ethTestAddress = "carol@wallet"

// fakeRemoteSigner signs personal messages with a real generated key.
type fakeRemoteSigner struct {
	id      string
	priv    *ecdsa.PrivateKey
	address string

	addrErr error
	signErr error
	// signWith signs with a different key than the reported address.
	signWith *ecdsa.PrivateKey
	// rawSig is returned verbatim instead of a real signature.
	rawSig []byte

	messages []string
}

func newFakeRemoteSigner(t *testing.T, id string) *fakeRemoteSigner {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeRemoteSigner{
		id:      id,
		priv:    priv,
		address: crypto.PubkeyToAddress(priv.PublicKey).Hex(),
	}
}

func (s *fakeRemoteSigner) ProviderID() string { return s.id }

func (s *fakeRemoteSigner) Address(ctx context.Context) (string, error) {
	if s.addrErr != nil {
		return "", s.addrErr
	}
	return s.address, nil
}

func (s *fakeRemoteSigner) SignPersonal(ctx context.Context, message []byte) ([]byte, error) {
	if s.signErr != nil {
		return nil, s.signErr
	}
	s.messages = append(s.messages, string(message))
	if s.rawSig != nil {
		return s.rawSig, nil
	}
	priv := s.priv
	if s.signWith != nil {
		priv = s.signWith
	}
	return signing.SignDigest(signing.PersonalHash(message), priv)
}

// ethereumAccount builds the indexer view of an externally owned account.
func ethereumAccount(address, ethAddress string) *types.AccountInfo {
	return &types.AccountInfo{
		Account: address,
		AuthMethod: types.AuthMethod{
			Ethereum: &types.EthereumAuth{Address: ethAddress},
		},
	}
}

func newEthereumFixture(t *testing.T) (*EthereumProvider, *fakeRemoteSigner, *fakeIndexer, *fakeNode) {
	t.Helper()
	signer := newFakeRemoteSigner(t, "metamask")
	idx := &fakeIndexer{}
	node := &fakeNode{}
	provider := NewEthereumProvider(EthereumConfig{}, idx, node, nil, signer)
	return provider, signer, idx, node
}

func TestEthereumProvider_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds with valid signature", func(t *testing.T) {
		provider, signer, idx, node := newEthereumFixture(t)
		idx.info = ethereumAccount(ethTestAddress, signer.address)

		wallet, err := provider.Login(ctx, Credentials{Username: "carol"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "carol", wallet.Username)
		assert.Equal(t, ethTestAddress, wallet.Address)
		assert.Equal(t, "metamask", wallet.ProviderRef)
		assert.Nil(t, wallet.SessionKey)
		assert.Empty(t, node.blobTxs, "plain login must not touch the chain")

		require.Len(t, signer.messages, 1)
		assert.True(t, strings.HasPrefix(signer.messages[0], "Authorize carol@wallet with nonce "))
	})

	t.Run("uses the configured message prefix", func(t *testing.T) {
		signer := newFakeRemoteSigner(t, "metamask")
		idx := &fakeIndexer{info: ethereumAccount(ethTestAddress, signer.address)}
		provider := NewEthereumProvider(EthereumConfig{MessagePrefix: "Connect to Quill"}, idx, &fakeNode{}, nil, signer)

		_, err := provider.Login(ctx, Credentials{Username: "carol"}, nil)
		require.NoError(t, err)
		require.Len(t, signer.messages, 1)
		assert.True(t, strings.HasPrefix(signer.messages[0], "Connect to Quill carol@wallet with nonce "))
	})

	t.Run("rejects signer that does not control the account", func(t *testing.T) {
		provider, _, idx, node := newEthereumFixture(t)
		idx.info = ethereumAccount(ethTestAddress, "0x00000000000000000000000000000000DeaDBeef")

		_, err := provider.Login(ctx, Credentials{Username: "carol"}, nil)
		assert.Equal(t, apperrors.ErrCodeAccountMismatch, apperrors.CodeOf(err))
		assert.Empty(t, node.blobTxs)
	})

	t.Run("rejects account with different auth method", func(t *testing.T) {
		provider, _, idx, _ := newEthereumFixture(t)
		idx.info = passwordAccount(ethTestAddress, testPassword, testSalt)

		_, err := provider.Login(ctx, Credentials{Username: "carol"}, nil)
		assert.Equal(t, apperrors.ErrCodeInvalidCredentials, apperrors.CodeOf(err))
	})

	t.Run("rejects signature from a different key", func(t *testing.T) {
		provider, signer, idx, _ := newEthereumFixture(t)
		idx.info = ethereumAccount(ethTestAddress, signer.address)
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		signer.signWith = other

		_, err = provider.Login(ctx, Credentials{Username: "carol"}, nil)
		assert.Equal(t, apperrors.ErrCodeInvalidSignature, apperrors.CodeOf(err))
	})

	t.Run("rejects malformed signature", func(t *testing.T) {
		provider, signer, idx, _ := newEthereumFixture(t)
		idx.info = ethereumAccount(ethTestAddress, signer.address)
		signer.rawSig = make([]byte, 64)

		_, err := provider.Login(ctx, Credentials{Username: "carol"}, nil)
		assert.Equal(t, apperrors.ErrCodeInvalidSignature, apperrors.CodeOf(err))
	})

	t.Run("selects signer by provider id", func(t *testing.T) {
		provider, first, idx, _ := newEthereumFixture(t)
		second := newFakeRemoteSigner(t, "ledger")
		provider.AddSigner(second)
		idx.info = ethereumAccount(ethTestAddress, second.address)

		wallet, err := provider.Login(ctx, Credentials{Username: "carol", ProviderID: "ledger"}, nil)
		require.NoError(t, err)
		require.NotNil(t, wallet)
		assert.Equal(t, "ledger", wallet.ProviderRef)
		assert.Empty(t, first.messages)
		assert.Len(t, second.messages, 1)
	})

	t.Run("rejects unknown provider id", func(t *testing.T) {
		provider, _, idx, _ := newEthereumFixture(t)

		_, err := provider.Login(ctx, Credentials{Username: "carol", ProviderID: "trezor"}, nil)
		assert.Equal(t, apperrors.ErrCodeProviderNotFound, apperrors.CodeOf(err))
		assert.Empty(t, idx.infoCalls)
	})

	t.Run("rejects invalid username", func(t *testing.T) {
		provider, signer, _, _ := newEthereumFixture(t)

		_, err := provider.Login(ctx, Credentials{Username: "c!"}, nil)
		assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.CodeOf(err))
		assert.Empty(t, signer.messages)
	})

	t.Run("registers session key when requested", func(t *testing.T) {
		provider, signer, idx, node := newEthereumFixture(t)
		idx.info = ethereumAccount(ethTestAddress, signer.address)
		rec := &eventRecorder{}
		opts := rec.options()
		opts.SessionKey = &SessionKeyParams{Whitelist: []string{" Wallet "}}

		wallet, err := provider.Login(ctx, Credentials{Username: "carol"}, opts)
		require.NoError(t, err)
		require.NotNil(t, wallet.SessionKey)
		assert.Equal(t, []string{"wallet"}, wallet.SessionKey.Whitelist)

		require.Len(t, node.blobTxs, 1)
		tx := node.blobTxs[0]
		assert.Equal(t, ethTestAddress, tx.Identity)
		require.Len(t, tx.Blobs, 2)
		assert.Equal(t, types.ContractSecp256k1, tx.Blobs[0].ContractName)
		assert.Equal(t, "wallet", tx.Blobs[1].ContractName)
		assert.Equal(t, byte(2), tx.Blobs[1].Data[0])

		assert.Empty(t, node.proofTxs, "secp blobs are verified natively, no proof follows")
		assert.Equal(t, []string{
			types.EventCheckingAccount,
			types.EventSendingBlobTx,
			types.EventSessionKeyAdded,
		}, rec.kinds())
	})
}

func TestEthereumProvider_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("submits registration transaction", func(t *testing.T) {
		provider, _, idx, node := newEthereumFixture(t)
		rec := &eventRecorder{}

		wallet, err := provider.Register(ctx, Credentials{Username: "carol", InviteCode: "GOLDEN-TICKET"}, rec.options())
		require.NoError(t, err)
		assert.Equal(t, ethTestAddress, wallet.Address)
		assert.Equal(t, "metamask", wallet.ProviderRef)
		assert.Empty(t, wallet.Salt, "externally owned accounts carry no password salt")

		require.Len(t, idx.claims, 1)
		assert.Equal(t, [2]string{"GOLDEN-TICKET", ethTestAddress}, idx.claims[0])

		require.Len(t, node.blobTxs, 1)
		tx := node.blobTxs[0]
		require.Len(t, tx.Blobs, 3)
		assert.Equal(t, types.ContractSecp256k1, tx.Blobs[0].ContractName)
		assert.Equal(t, byte(0), tx.Blobs[1].Data[0])
		assert.Equal(t, "invites", tx.Blobs[2].ContractName)
		assert.Empty(t, node.proofTxs)

		assert.Equal(t, []string{
			types.EventCheckingAccount,
			types.EventClaimingInvite,
			types.EventSendingBlobTx,
		}, rec.kinds())
	})

	t.Run("appends session key blob when requested", func(t *testing.T) {
		provider, _, _, node := newEthereumFixture(t)
		rec := &eventRecorder{}
		opts := rec.options()
		opts.SessionKey = &SessionKeyParams{}

		wallet, err := provider.Register(ctx, Credentials{Username: "carol", InviteCode: "GOLDEN-TICKET"}, opts)
		require.NoError(t, err)
		require.NotNil(t, wallet.SessionKey)

		require.Len(t, node.blobTxs, 1)
		tx := node.blobTxs[0]
		require.Len(t, tx.Blobs, 4)
		assert.Equal(t, byte(2), tx.Blobs[3].Data[0])

		kinds := rec.kinds()
		assert.Equal(t, types.EventSessionKeyAdded, kinds[len(kinds)-1])
	})

	t.Run("rejects existing account", func(t *testing.T) {
		provider, signer, idx, _ := newEthereumFixture(t)
		idx.info = ethereumAccount(ethTestAddress, signer.address)

		_, err := provider.Register(ctx, Credentials{Username: "carol", InviteCode: "GOLDEN-TICKET"}, nil)
		assert.Equal(t, apperrors.ErrCodeAccountExists, apperrors.CodeOf(err))
		assert.Empty(t, idx.claims)
		assert.Empty(t, signer.messages)
	})

	t.Run("requires invite code", func(t *testing.T) {
		provider, _, idx, _ := newEthereumFixture(t)

		_, err := provider.Register(ctx, Credentials{Username: "carol"}, nil)
		assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.CodeOf(err))
		assert.Empty(t, idx.infoCalls)
	})

	t.Run("proceeds when account lookup fails", func(t *testing.T) {
		provider, _, idx, node := newEthereumFixture(t)
		idx.infoErr = apperrors.New(apperrors.KindExternal, apperrors.ErrCodeIndexerError, "indexer down")

		_, err := provider.Register(ctx, Credentials{Username: "carol", InviteCode: "GOLDEN-TICKET"}, nil)
		require.NoError(t, err)
		assert.Len(t, node.blobTxs, 1)
	})

	t.Run("surfaces node submission failure", func(t *testing.T) {
		provider, _, _, node := newEthereumFixture(t)
		node.blobErr = apperrors.New(apperrors.KindExternal, apperrors.ErrCodeNodeError, "node down")

		_, err := provider.Register(ctx, Credentials{Username: "carol", InviteCode: "GOLDEN-TICKET"}, nil)
		assert.Equal(t, apperrors.ErrCodeNodeError, apperrors.CodeOf(err))
	})
}

func TestEthereumProvider_CheckAndPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds when a signer responds", func(t *testing.T) {
		provider, _, _, _ := newEthereumFixture(t)
		require.NoError(t, provider.CheckAndPrepare(ctx))
	})

	t.Run("skips signers that fail to report an address", func(t *testing.T) {
		provider, first, _, _ := newEthereumFixture(t)
		first.addrErr = errors.New("bridge offline")
		provider.AddSigner(newFakeRemoteSigner(t, "ledger"))

		require.NoError(t, provider.CheckAndPrepare(ctx))
	})

	t.Run("returns the probe error when all signers fail", func(t *testing.T) {
		provider, signer, _, _ := newEthereumFixture(t)
		signer.addrErr = errors.New("bridge offline")

		err := provider.CheckAndPrepare(ctx)
		require.EqualError(t, err, "bridge offline")
	})

	t.Run("fails without signers", func(t *testing.T) {
		provider := NewEthereumProvider(EthereumConfig{}, &fakeIndexer{}, &fakeNode{}, nil)

		err := provider.CheckAndPrepare(ctx)
		assert.Equal(t, apperrors.ErrCodeSignerError, apperrors.CodeOf(err))
	})
}

func TestEthereumProvider_Identity(t *testing.T) {
	provider := NewEthereumProvider(EthereumConfig{}, &fakeIndexer{}, &fakeNode{}, nil)
	assert.Equal(t, types.ProviderEthereum, provider.Type())
	assert.False(t, provider.Enabled())

	provider.AddSigner(newFakeRemoteSigner(t, "metamask"))
	assert.True(t, provider.Enabled())
}
