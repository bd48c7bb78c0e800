package auth

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gowebpki/jcs"

	"github.com/quill-wallet/quill-wallet/internal/logger"
	"github.com/quill-wallet/quill-wallet/internal/validation"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/transaction"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// FederatedConfig configures the OIDC issuer the federated provider
// verifies tokens against.
type FederatedConfig struct {
	// Issuer is the expected iss claim.
	Issuer string
	// ClientID is the expected audience.
	ClientID string
	// JWKSURL overrides the issuer's default key location,
	// {issuer}/.well-known/jwks.json.
	JWKSURL string
	// HTTPClient overrides the client used for key fetches.
	HTTPClient *http.Client
}

// FederatedProvider authenticates with an OIDC id_token. The account is
// bound on chain to a hash over the token's identity claims; on-chain
// operations carry a token blob at index 0 plus a proof that the
// presented token matches the registered hash without revealing it.
type FederatedProvider struct {
	cfg     FederatedConfig
	indexer Indexer
	node    Node
	prover  TokenProver
	builder *transaction.Builder
	client  *http.Client
}

var _ Provider = (*FederatedProvider)(nil)

// NewFederatedProvider wires the federated provider. A nil builder
// selects the default identity contract.
func NewFederatedProvider(cfg FederatedConfig, indexer Indexer, node Node, prover TokenProver, builder *transaction.Builder) *FederatedProvider {
	if builder == nil {
		builder = transaction.NewBuilder("", nil)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &FederatedProvider{cfg: cfg, indexer: indexer, node: node, prover: prover, builder: builder, client: client}
}

func (p *FederatedProvider) Type() string {
	return types.ProviderFederated
}

// Enabled reports whether an issuer and client id are configured.
func (p *FederatedProvider) Enabled() bool {
	return p.cfg.Issuer != "" && p.cfg.ClientID != ""
}

func (p *FederatedProvider) Login(ctx context.Context, creds Credentials, opts *FlowOptions) (*types.Wallet, error) {
	username := normalizeUsername(creds.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	claims, issuerKey, err := p.verifyToken(ctx, creds.Token)
	if err != nil {
		return nil, err
	}
	address := types.AccountAddress(username, p.builder.IdentityContract())

	opts.Emit(types.EventCheckingAccount, "Checking account "+address)
	info, err := p.indexer.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, err
	}
	if info.AuthMethod.Jwt == nil {
		return nil, apperrors.New(apperrors.KindAuth, apperrors.ErrCodeInvalidCredentials, "Account does not use federated authentication")
	}
	derived, err := identityHash(claims)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(derived[:], info.AuthMethod.Jwt.Hash) {
		return nil, apperrors.AccountMismatch("token identity does not match the registered account")
	}

	wallet := &types.Wallet{Username: username, Address: address, Salt: info.Salt}

	if params := opts.SessionKeyRequest(); params != nil {
		nonce, err := tokenNonce(claims)
		if err != nil {
			return nil, err
		}
		key, action, err := newSessionKey(address, *params, nonce)
		if err != nil {
			return nil, err
		}
		blobs, err := p.builder.AuthenticatedBlobs(p.builder.JwtBlob(derived), action)
		if err != nil {
			return nil, err
		}
		if _, err := p.submitTokenTx(ctx, address, creds.Token, issuerKey, info.AuthMethod.Jwt.Hash, derived, blobs, nonce, opts); err != nil {
			return nil, err
		}
		opts.Emit(types.EventSessionKeyAdded, "Session key registered")
		wallet.SessionKey = &key
	}
	return wallet, nil
}

func (p *FederatedProvider) Register(ctx context.Context, creds Credentials, opts *FlowOptions) (*types.Wallet, error) {
	username := normalizeUsername(creds.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := validation.ValidateInviteCode(creds.InviteCode); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	claims, issuerKey, err := p.verifyToken(ctx, creds.Token)
	if err != nil {
		return nil, err
	}
	nonce, err := tokenNonce(claims)
	if err != nil {
		return nil, err
	}
	derived, err := identityHash(claims)
	if err != nil {
		return nil, err
	}
	address := types.AccountAddress(username, p.builder.IdentityContract())

	// only a confirmed existing account blocks registration
	opts.Emit(types.EventCheckingAccount, "Checking account "+address)
	if _, err := p.indexer.GetAccountInfo(ctx, address); err == nil {
		return nil, apperrors.New(apperrors.KindState, apperrors.ErrCodeAccountExists, fmt.Sprintf("Account %s already exists", address))
	}

	opts.Emit(types.EventClaimingInvite, "Claiming invite code")
	invite, err := p.indexer.ClaimInviteCode(ctx, creds.InviteCode, address)
	if err != nil {
		return nil, err
	}

	reg := types.RegisterIdentity{
		Account:    address,
		Nonce:      nonce,
		Auth:       types.AuthMethod{Jwt: &types.JwtAuth{Hash: derived[:]}},
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

	blobs, err := p.builder.RegistrationBlobs(p.builder.JwtBlob(derived), reg, invite, addKey)
	if err != nil {
		return nil, err
	}
	if _, err := p.submitTokenTx(ctx, address, creds.Token, issuerKey, derived[:], derived, blobs, nonce, opts); err != nil {
		return nil, err
	}

	if wallet.SessionKey != nil {
		opts.Emit(types.EventSessionKeyAdded, "Session key registered")
	}
	return wallet, nil
}

// submitTokenTx runs the federated submission sequence: blob tx, token
// proof, proof tx.
func (p *FederatedProvider) submitTokenTx(ctx context.Context, address, token, issuerKey string, storedHash []byte, derived [32]byte, blobs []types.Blob, nonce uint64, opts *FlowOptions) (*TxResult, error) {
	opts.Emit(types.EventSendingBlobTx, "Sending transaction")
	txHash, err := p.node.SendBlobTx(ctx, types.BlobTx{Identity: address, Blobs: blobs})
	if err != nil {
		return nil, err
	}

	opts.Emit(types.EventProving, "Proving token claims")
	proofTx, err := p.prover.ProveToken(ctx, TokenProofRequest{
		Token:       token,
		IssuerKey:   issuerKey,
		StoredHash:  storedHash,
		DerivedHash: derived[:],
		TxHash:      txHash,
		BlobIndex:   0,
		BlobCount:   len(blobs),
		Nonce:       nonce,
	})
	if err != nil {
		return nil, err
	}

	opts.Emit(types.EventSendingProofTx, "Sending proof")
	proofHash, err := p.node.SendProofTx(ctx, proofTx)
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "federated transaction submitted", "account", address, "tx_hash", txHash, "proof_tx_hash", proofHash)
	return &TxResult{BlobTxHash: txHash, ProofTxHash: proofHash}, nil
}

// tokenClaims is the verified claim subset the provider acts on.
type tokenClaims struct {
	Issuer   string
	Audience string
	Subject  string
	Nonce    string
}

// identityHash binds an account to a federated identity: the SHA-256 of
// the RFC 8785 canonical JSON of the {aud, iss, sub} claim subset, so
// wire key order never changes the hash.
func identityHash(claims tokenClaims) ([32]byte, error) {
	raw, err := json.Marshal(map[string]string{
		"aud": claims.Audience,
		"iss": claims.Issuer,
		"sub": claims.Subject,
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode identity claims: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to canonicalize identity claims: %w", err)
	}
	return sha256.Sum256(canonical), nil
}

// tokenNonce parses the token's nonce claim, which binds the token to
// one transaction.
func tokenNonce(claims tokenClaims) (uint64, error) {
	if claims.Nonce == "" {
		return 0, apperrors.NewWithDetail(apperrors.KindAuth, apperrors.ErrCodeInvalidToken, "Token does not carry a transaction nonce", "nonce claim is required for on-chain operations")
	}
	nonce, err := strconv.ParseUint(claims.Nonce, 10, 64)
	if err != nil {
		return 0, apperrors.NewWithDetail(apperrors.KindAuth, apperrors.ErrCodeInvalidToken, "Token nonce is not numeric", claims.Nonce)
	}
	return nonce, nil
}

// verifyToken parses the id_token against a fresh copy of the issuer's
// published keys. Keys are refetched on every call so issuer rotations
// take effect immediately.
func (p *FederatedProvider) verifyToken(ctx context.Context, token string) (tokenClaims, string, error) {
	if token == "" {
		return tokenClaims{}, "", apperrors.Validation("federated token is required")
	}

	keys, err := p.fetchIssuerKeys(ctx)
	if err != nil {
		return tokenClaims{}, "", err
	}

	var verifyKey any
	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			key, ok := keys[kid]
			if !ok {
				return nil, fmt.Errorf("key %q not found in issuer JWKS", kid)
			}
			verifyKey = key
			return key, nil
		},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(p.cfg.Issuer),
		jwt.WithAudience(p.cfg.ClientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return tokenClaims{}, "", apperrors.NewWithDetail(apperrors.KindAuth, apperrors.ErrCodeInvalidToken, "Token verification failed", err.Error())
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return tokenClaims{}, "", apperrors.New(apperrors.KindAuth, apperrors.ErrCodeInvalidToken, "Token verification failed")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return tokenClaims{}, "", apperrors.NewWithDetail(apperrors.KindAuth, apperrors.ErrCodeInvalidToken, "Token verification failed", "missing sub claim")
	}

	keyPEM, err := publicKeyPEM(verifyKey)
	if err != nil {
		return tokenClaims{}, "", err
	}

	return tokenClaims{
		Issuer:   p.cfg.Issuer,
		Audience: p.cfg.ClientID,
		Subject:  sub,
		Nonce:    claimString(claims, "nonce"),
	}, keyPEM, nil
}

// fetchIssuerKeys downloads and parses the issuer's JWKS.
func (p *FederatedProvider) fetchIssuerKeys(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.jwksURL(), nil)
	if err != nil {
		return nil, apperrors.External(apperrors.ErrCodeInvalidToken, "Failed to fetch issuer keys", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.External(apperrors.ErrCodeInvalidToken, "Failed to fetch issuer keys", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.External(apperrors.ErrCodeInvalidToken, "Failed to fetch issuer keys", fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode))
	}

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, apperrors.External(apperrors.ErrCodeInvalidToken, "Failed to fetch issuer keys", err)
	}

	keys := make(map[string]any, len(jwks.Keys))
	for _, jwk := range jwks.Keys {
		kid, ok := jwk["kid"].(string)
		if !ok {
			continue
		}
		kty, _ := jwk["kty"].(string)

		var (
			key      any
			parseErr error
		)
		switch kty {
		case "RSA":
			key, parseErr = parseRSAKey(jwk)
		case "EC":
			key, parseErr = parseECKey(jwk)
		default:
			continue
		}
		if parseErr != nil {
			continue
		}
		keys[kid] = key
	}
	if len(keys) == 0 {
		return nil, apperrors.External(apperrors.ErrCodeInvalidToken, "Failed to fetch issuer keys", fmt.Errorf("no usable keys in JWKS"))
	}
	return keys, nil
}

func (p *FederatedProvider) jwksURL() string {
	if p.cfg.JWKSURL != "" {
		return p.cfg.JWKSURL
	}
	return strings.TrimSuffix(p.cfg.Issuer, "/") + "/.well-known/jwks.json"
}

// claimString reads a claim that issuers serialize either as string or
// number.
func claimString(claims jwt.MapClaims, name string) string {
	switch v := claims[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatUint(uint64(v), 10)
	case json.Number:
		return v.String()
	}
	return ""
}

// parseRSAKey parses an RSA public key from JWK parameters.
func parseRSAKey(jwk map[string]any) (*rsa.PublicKey, error) {
	nStr, ok := jwk["n"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'n' parameter")
	}
	eStr, ok := jwk["e"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'e' parameter")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode n: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode e: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// parseECKey parses a P-256 public key from JWK parameters.
func parseECKey(jwk map[string]any) (*ecdsa.PublicKey, error) {
	crv, _ := jwk["crv"].(string)
	if crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve %q", crv)
	}
	xStr, ok := jwk["x"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'x' parameter")
	}
	yStr, ok := jwk["y"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'y' parameter")
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// publicKeyPEM encodes the verification key for the proof backend.
func publicKeyPEM(key any) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to encode issuer key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
