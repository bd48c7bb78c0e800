package keyvault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	masterKeySize = 32
	saltSize      = 16

	envelopeVersion = 1

	// keyInfo domain-separates store keys from any other use of the
	// master key.
	keyInfo = "quill-wallet-store"
)

// envelope is the serialized form of a locally sealed blob. Each blob
// carries its own salt so the AES key differs per record.
type envelope struct {
	V          int    `json:"v"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// LocalCipher seals blobs under keys derived from a 32-byte master key
// with HKDF-SHA256.
type LocalCipher struct {
	master []byte
}

var _ Cipher = (*LocalCipher)(nil)

// NewLocalCipher builds a cipher from a hex encoded 32-byte master key.
func NewLocalCipher(masterKeyHex string) (*LocalCipher, error) {
	if masterKeyHex == "" {
		return nil, fmt.Errorf("master key is required for local cipher")
	}
	master, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid master key hex: %w", err)
	}
	if len(master) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(master))
	}
	return &LocalCipher{master: master}, nil
}

// NewLocalCipherFromShares reconstructs the master key from its 2-of-2
// shares.
func NewLocalCipherFromShares(shares [][]byte) (*LocalCipher, error) {
	master, err := CombineMasterKey(shares)
	if err != nil {
		return nil, err
	}
	if len(master) != masterKeySize {
		return nil, fmt.Errorf("combined master key must be %d bytes, got %d", masterKeySize, len(master))
	}
	return &LocalCipher{master: master}, nil
}

func (c *LocalCipher) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := envelope{
		V:          envelopeVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, data, nil),
	}
	return json.Marshal(sealed)
}

func (c *LocalCipher) Decrypt(ctx context.Context, encrypted []byte) ([]byte, error) {
	var sealed envelope
	if err := json.Unmarshal(encrypted, &sealed); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if sealed.V != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", sealed.V)
	}

	gcm, err := c.aead(sealed.Salt)
	if err != nil {
		return nil, err
	}
	if len(sealed.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("malformed envelope: bad nonce size")
	}
	plaintext, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func (c *LocalCipher) Provider() string {
	return string(ProviderLocal)
}

func (c *LocalCipher) aead(salt []byte) (cipher.AEAD, error) {
	key := make([]byte, masterKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.master, salt, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
