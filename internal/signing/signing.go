// Package signing wraps the secp256k1 operations shared by the auth
// providers and the session-key flows. All signatures produced here are
// canonical low-s; verification rejects anything else at the chain level,
// so normalization is applied after every signing call.
package signing

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	curveN     = crypto.S256().Params().N
	curveHalfN = new(big.Int).Rsh(curveN, 1)
)

// KeyPair is a hex encoded secp256k1 keypair: 32-byte private scalar,
// 33-byte compressed public point.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// GenerateKeyPair generates a new secp256k1 keypair.
func GenerateKeyPair() (KeyPair, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate private key: %w", err)
	}
	return KeyPair{
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(priv)),
		PublicKey:  hex.EncodeToString(crypto.CompressPubkey(&priv.PublicKey)),
	}, nil
}

// ParsePrivateKey decodes a hex encoded private scalar.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return priv, nil
}

// CompressedPublicKey returns the 33-byte compressed public point.
func CompressedPublicKey(priv *ecdsa.PrivateKey) []byte {
	return crypto.CompressPubkey(&priv.PublicKey)
}

// NormalizeS converts a signature to its canonical low-s form. Accepts
// 64-byte r||s or 65-byte r||s||v; for the latter the recovery id is
// flipped together with s so recovery still yields the same key.
func NormalizeS(sig []byte) ([]byte, error) {
	if len(sig) != 64 && len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature length %d", len(sig))
	}
	out := make([]byte, len(sig))
	copy(out, sig)

	s := new(big.Int).SetBytes(sig[32:64])
	if s.Cmp(curveHalfN) <= 0 {
		return out, nil
	}
	s.Sub(curveN, s)
	s.FillBytes(out[32:64])
	if len(out) == 65 {
		out[64] ^= 1
	}
	return out, nil
}

// IsLowS reports whether the s half of a 64 or 65 byte signature is
// canonical.
func IsLowS(sig []byte) bool {
	if len(sig) < 64 {
		return false
	}
	s := new(big.Int).SetBytes(sig[32:64])
	return s.Cmp(curveHalfN) <= 0
}

// SignDigest signs a 32-byte digest and returns the canonical 65-byte
// r||s||v signature with v in {0,1}.
func SignDigest(digest []byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return NormalizeS(sig)
}

// SignMessage hashes the message with SHA-256 and signs the digest.
// Returns the digest and the 64-byte r||s signature, the pair carried by
// secp256k1 verification blobs.
func SignMessage(message []byte, priv *ecdsa.PrivateKey) ([32]byte, []byte, error) {
	digest := sha256.Sum256(message)
	sig, err := SignDigest(digest[:], priv)
	if err != nil {
		return digest, nil, err
	}
	return digest, sig[:64], nil
}

// VerifyDigest checks a 64-byte r||s signature over a 32-byte digest.
// The public key may be compressed (33 bytes) or uncompressed (65 bytes).
func VerifyDigest(digest, sig, pubKey []byte) bool {
	if len(sig) != 64 || len(digest) != 32 {
		return false
	}
	return crypto.VerifySignature(pubKey, digest, sig)
}

// VerifyMessage checks a signature over sha256(message) against a hex
// encoded public key.
func VerifyMessage(message, sig []byte, pubKeyHex string) bool {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(message)
	return VerifyDigest(digest[:], sig, pub)
}

// PersonalHash applies the Ethereum personal-message prefix and returns
// the Keccak-256 digest, matching what browser wallets sign.
func PersonalHash(message []byte) []byte {
	return accounts.TextHash(message)
}

// RecoverAddress recovers the signing address from a 65-byte signature
// over a digest. Accepts v in {0,1} or {27,28}.
func RecoverAddress(digest, sig []byte) (common.Address, error) {
	pub, err := recoverPub(digest, sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverCompressed recovers the signer's 33-byte compressed public key
// from a 65-byte signature over a digest.
func RecoverCompressed(digest, sig []byte) ([]byte, error) {
	pub, err := recoverPub(digest, sig)
	if err != nil {
		return nil, err
	}
	return crypto.CompressPubkey(pub), nil
}

func recoverPub(digest, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature length %d", len(sig))
	}
	norm := make([]byte, 65)
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, norm)
	if err != nil {
		return nil, fmt.Errorf("failed to recover public key: %w", err)
	}
	return pub, nil
}

// AddressFromCompressed derives the Ethereum address for a 33-byte
// compressed public key: decompress, Keccak-256 over the unprefixed
// point, keep the last 20 bytes.
func AddressFromCompressed(pub []byte) (common.Address, error) {
	decompressed, err := crypto.DecompressPubkey(pub)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid compressed public key: %w", err)
	}
	return crypto.PubkeyToAddress(*decompressed), nil
}

// PasswordHash computes the stored account binding for password auth:
// hex(sha256(address ++ hex(sha256(password ++ ":" ++ salt)))).
func PasswordHash(address, password, salt string) string {
	inner := sha256.Sum256([]byte(password + ":" + salt))
	innerHex := hex.EncodeToString(inner[:])
	outer := sha256.Sum256([]byte(address + innerHex))
	return hex.EncodeToString(outer[:])
}

// PasswordHashBytes is PasswordHash decoded to the raw 32 bytes carried
// inside secret blobs.
func PasswordHashBytes(address, password, salt string) [32]byte {
	inner := sha256.Sum256([]byte(password + ":" + salt))
	innerHex := hex.EncodeToString(inner[:])
	return sha256.Sum256([]byte(address + innerHex))
}
