// Package mocks provides shared test doubles.
package mocks

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWKSServer is an httptest-backed OIDC issuer: it publishes a JWKS
// document and mints id_tokens signed by those keys.
type JWKSServer struct {
	server *httptest.Server
	mu     sync.RWMutex

	rsaKeys map[string]*rsa.PrivateKey
	ecKeys  map[string]*ecdsa.PrivateKey

	issuer   string
	audience string

	statusCode int
	requests   int
}

// NewJWKSServer starts an issuer double. Callers own Close.
func NewJWKSServer(issuer, audience string) *JWKSServer {
	s := &JWKSServer{
		rsaKeys:    make(map[string]*rsa.PrivateKey),
		ecKeys:     make(map[string]*ecdsa.PrivateKey),
		issuer:     issuer,
		audience:   audience,
		statusCode: http.StatusOK,
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handleJWKS))
	return s
}

func (s *JWKSServer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	status := s.statusCode
	s.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		w.Write([]byte(`{"error": "configured failure"}`))
		return
	}

	s.mu.RLock()
	doc := s.buildDocument()
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (s *JWKSServer) buildDocument() map[string]any {
	keys := make([]map[string]any, 0, len(s.rsaKeys)+len(s.ecKeys))

	for kid, key := range s.rsaKeys {
		keys = append(keys, map[string]any{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		})
	}

	for kid, key := range s.ecKeys {
		x := make([]byte, 32)
		y := make([]byte, 32)
		key.PublicKey.X.FillBytes(x)
		key.PublicKey.Y.FillBytes(y)
		keys = append(keys, map[string]any{
			"kty": "EC",
			"kid": kid,
			"use": "sig",
			"alg": "ES256",
			"crv": "P-256",
			"x":   base64.RawURLEncoding.EncodeToString(x),
			"y":   base64.RawURLEncoding.EncodeToString(y),
		})
	}

	return map[string]any{"keys": keys}
}

// AddRSAKey generates and publishes an RSA signing key.
func (s *JWKSServer) AddRSAKey(kid string) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	s.mu.Lock()
	s.rsaKeys[kid] = key
	s.mu.Unlock()
	return key, nil
}

// AddECKey generates and publishes a P-256 signing key.
func (s *JWKSServer) AddECKey(kid string) (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate EC key: %w", err)
	}

	s.mu.Lock()
	s.ecKeys[kid] = key
	s.mu.Unlock()
	return key, nil
}

// RemoveKey unpublishes a key, simulating issuer rotation.
func (s *JWKSServer) RemoveKey(kid string) {
	s.mu.Lock()
	delete(s.rsaKeys, kid)
	delete(s.ecKeys, kid)
	s.mu.Unlock()
}

// SetStatusCode makes the JWKS endpoint answer with the given status.
func (s *JWKSServer) SetStatusCode(code int) {
	s.mu.Lock()
	s.statusCode = code
	s.mu.Unlock()
}

// RequestCount returns how many times the JWKS document was requested.
func (s *JWKSServer) RequestCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests
}

// URL returns the JWKS document URL.
func (s *JWKSServer) URL() string {
	return s.server.URL
}

// Issuer returns the configured issuer.
func (s *JWKSServer) Issuer() string {
	return s.issuer
}

// Audience returns the configured audience.
func (s *JWKSServer) Audience() string {
	return s.audience
}

// Close shuts the server down.
func (s *JWKSServer) Close() {
	s.server.Close()
}

func (s *JWKSServer) baseClaims(subject string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": s.issuer,
		"aud": s.audience,
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

// MintToken returns an id_token for subject with the standard claim set,
// signed by the first published key. mutate, when non-nil, edits the
// claims before signing.
func (s *JWKSServer) MintToken(subject string, mutate func(jwt.MapClaims)) (string, error) {
	claims := s.baseClaims(subject)
	if mutate != nil {
		mutate(claims)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for kid, key := range s.rsaKeys {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		token.Header["kid"] = kid
		return token.SignedString(key)
	}
	for kid, key := range s.ecKeys {
		token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
		token.Header["kid"] = kid
		return token.SignedString(key)
	}
	return "", fmt.Errorf("no signing keys published")
}

// MintForeignToken signs with a fresh key the JWKS does not publish.
func (s *JWKSServer) MintForeignToken(subject string) (string, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, s.baseClaims(subject))
	token.Header["kid"] = "unpublished-kid"
	return token.SignedString(key)
}

// UnsignedToken builds an alg=none token, which verifiers must reject.
func (s *JWKSServer) UnsignedToken(subject string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(
		`{"iss":"%s","aud":"%s","sub":"%s","iat":%d,"exp":%d}`,
		s.issuer, s.audience, subject,
		time.Now().Unix(), time.Now().Add(time.Hour).Unix(),
	)))
	return header + "." + payload + "."
}
