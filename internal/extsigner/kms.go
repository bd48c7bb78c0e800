package extsigner

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quill-wallet/quill-wallet/internal/signing"
	"github.com/quill-wallet/quill-wallet/pkg/auth"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
)

// ProviderKMS is the default provider id for the AWS KMS signer.
const ProviderKMS = "kms"

// kmsAPI is the slice of the KMS client the signer uses.
type kmsAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSSigner signs through an ECC_SECG_P256K1 AWS KMS key. KMS returns
// DER-encoded signatures without a recovery id; signatures are
// normalized to low-s and the recovery id reconstructed against the
// key's public point.
type KMSSigner struct {
	providerID string
	keyID      string
	client     kmsAPI

	mu       sync.Mutex
	pub      *ecdsa.PublicKey
	pubBytes []byte
	address  string
}

var _ auth.RemoteSigner = (*KMSSigner)(nil)

// NewKMSSigner builds a signer for the given KMS key, loading AWS
// configuration from the default credential chain.
func NewKMSSigner(ctx context.Context, keyID, region, providerID string) (*KMSSigner, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewKMSSignerWithClient(kms.NewFromConfig(cfg), keyID, providerID), nil
}

// NewKMSSignerWithClient builds a signer around an existing KMS client.
func NewKMSSignerWithClient(client kmsAPI, keyID, providerID string) *KMSSigner {
	if providerID == "" {
		providerID = ProviderKMS
	}
	return &KMSSigner{providerID: providerID, keyID: keyID, client: client}
}

func (s *KMSSigner) ProviderID() string {
	return s.providerID
}

// Address returns the Ethereum address of the KMS key.
func (s *KMSSigner) Address(ctx context.Context) (string, error) {
	if err := s.load(ctx); err != nil {
		return "", err
	}
	return s.address, nil
}

// SignPersonal applies the personal-message prefix and signs the digest
// with the KMS key. Returns the 65-byte r||s||v signature, v in {0,1}.
func (s *KMSSigner) SignPersonal(ctx context.Context, message []byte) ([]byte, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s.signDigest(ctx, signing.PersonalHash(message))
}

// algorithmIdentifier and subjectPublicKeyInfo model the DER layout of
// GetPublicKey responses. The stdlib x509 parser cannot be used here,
// it rejects the secp256k1 curve OID.
type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier `asn1:"optional"`
}

type subjectPublicKeyInfo struct {
	Algorithm algorithmIdentifier
	PublicKey asn1.BitString
}

type ecdsaSigValue struct {
	R, S *big.Int
}

func (s *KMSSigner) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub != nil {
		return nil
	}

	out, err := s.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(s.keyID)})
	if err != nil {
		return apperrors.External(apperrors.ErrCodeSignerError, "Failed to fetch KMS public key", err)
	}
	if out.KeySpec != kmstypes.KeySpecEccSecgP256k1 {
		return apperrors.New(apperrors.KindState, apperrors.ErrCodeSignerError, fmt.Sprintf("KMS key spec %s is not ECC_SECG_P256K1", out.KeySpec))
	}

	var spki subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(out.PublicKey, &spki); err != nil {
		return apperrors.External(apperrors.ErrCodeSignerError, "Malformed KMS public key", err)
	}
	pub, err := crypto.UnmarshalPubkey(spki.PublicKey.Bytes)
	if err != nil {
		return apperrors.External(apperrors.ErrCodeSignerError, "Malformed KMS public key", err)
	}

	s.pub = pub
	s.pubBytes = spki.PublicKey.Bytes
	s.address = crypto.PubkeyToAddress(*pub).Hex()
	return nil
}

func (s *KMSSigner) signDigest(ctx context.Context, digest []byte) ([]byte, error) {
	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest,
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return nil, apperrors.External(apperrors.ErrCodeSignerError, "KMS signing failed", err)
	}

	var parsed ecdsaSigValue
	if _, err := asn1.Unmarshal(out.Signature, &parsed); err != nil {
		return nil, apperrors.External(apperrors.ErrCodeSignerError, "Malformed KMS signature", err)
	}

	rs := make([]byte, 64)
	parsed.R.FillBytes(rs[:32])
	parsed.S.FillBytes(rs[32:])
	rs, err = signing.NormalizeS(rs)
	if err != nil {
		return nil, apperrors.External(apperrors.ErrCodeSignerError, "Malformed KMS signature", err)
	}

	// KMS does not report the recovery id; find it against the known key.
	for v := byte(0); v < 2; v++ {
		candidate := append(append([]byte{}, rs...), v)
		recovered, err := crypto.Ecrecover(digest, candidate)
		if err == nil && bytes.Equal(recovered, s.pubBytes) {
			return candidate, nil
		}
	}
	return nil, apperrors.New(apperrors.KindExternal, apperrors.ErrCodeInvalidSignature, "KMS signature does not recover to the key's address")
}
