package extsigner

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-wallet/quill-wallet/internal/signing"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
)

var (
	oidECPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// fakeKMS emulates the KMS asymmetric signing API over a local key.
type fakeKMS struct {
	priv    *ecdsa.PrivateKey
	keySpec kmstypes.KeySpec
	highS   bool
	signErr error
}

func newFakeKMS(t *testing.T) *fakeKMS {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeKMS{priv: priv, keySpec: kmstypes.KeySpecEccSecgP256k1}
}

func (f *fakeKMS) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	point := crypto.FromECDSAPub(&f.priv.PublicKey)
	der, err := asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{Algorithm: oidECPublicKey, Parameters: oidSecp256k1},
		PublicKey: asn1.BitString{Bytes: point, BitLength: len(point) * 8},
	})
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{PublicKey: der, KeySpec: f.keySpec}, nil
}

func (f *fakeKMS) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	sig, err := crypto.Sign(params.Message, f.priv)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if f.highS {
		s.Sub(crypto.S256().Params().N, s)
	}
	der, err := asn1.Marshal(ecdsaSigValue{R: r, S: s})
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{Signature: der}, nil
}

func TestKMSSigner_Address(t *testing.T) {
	t.Run("derives the key's ethereum address", func(t *testing.T) {
		fake := newFakeKMS(t)
		signer := NewKMSSignerWithClient(fake, "alias/wallet", "")

		addr, err := signer.Address(context.Background())
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(fake.priv.PublicKey).Hex(), addr)
	})

	t.Run("rejects non secp256k1 keys", func(t *testing.T) {
		fake := newFakeKMS(t)
		fake.keySpec = kmstypes.KeySpecEccNistP256
		signer := NewKMSSignerWithClient(fake, "alias/wallet", "")

		_, err := signer.Address(context.Background())
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeSignerError, apperrors.CodeOf(err))
	})
}

func TestKMSSigner_SignPersonal(t *testing.T) {
	t.Run("produces canonical recoverable signatures", func(t *testing.T) {
		fake := newFakeKMS(t)
		signer := NewKMSSignerWithClient(fake, "alias/wallet", "")

		message := []byte("login alice@wallet with nonce 1712000000000")
		sig, err := signer.SignPersonal(context.Background(), message)
		require.NoError(t, err)
		require.Len(t, sig, 65)
		assert.True(t, signing.IsLowS(sig))
		assert.LessOrEqual(t, sig[64], byte(1))

		recovered, err := signing.RecoverAddress(signing.PersonalHash(message), sig)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(fake.priv.PublicKey), recovered)
	})

	t.Run("normalizes high s before recovery", func(t *testing.T) {
		fake := newFakeKMS(t)
		fake.highS = true
		signer := NewKMSSignerWithClient(fake, "alias/wallet", "")

		message := []byte("some message")
		sig, err := signer.SignPersonal(context.Background(), message)
		require.NoError(t, err)
		assert.True(t, signing.IsLowS(sig))

		recovered, err := signing.RecoverAddress(signing.PersonalHash(message), sig)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(fake.priv.PublicKey), recovered)
	})

	t.Run("signing failure maps to signer_error", func(t *testing.T) {
		fake := newFakeKMS(t)
		fake.signErr = assert.AnError
		signer := NewKMSSignerWithClient(fake, "alias/wallet", "")

		_, err := signer.SignPersonal(context.Background(), []byte("x"))
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeSignerError, apperrors.CodeOf(err))
	})
}

func TestNewKMSSigner_Validation(t *testing.T) {
	_, err := NewKMSSigner(context.Background(), "", "eu-west-1", "")
	assert.Error(t, err)

	_, err = NewKMSSigner(context.Background(), "alias/wallet", "", "")
	assert.Error(t, err)
}

func TestKMSSigner_ProviderID(t *testing.T) {
	fake := newFakeKMS(t)
	assert.Equal(t, ProviderKMS, NewKMSSignerWithClient(fake, "k", "").ProviderID())
	assert.Equal(t, "cloud-hsm", NewKMSSignerWithClient(fake, "k", "cloud-hsm").ProviderID())
}
