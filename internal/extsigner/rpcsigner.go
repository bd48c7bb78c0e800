// Package extsigner provides the remote signer backends behind the
// external-signature auth flows. Keys never enter this process; each
// backend exposes the signer's address and a personal-message signing
// call.
package extsigner

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/quill-wallet/quill-wallet/pkg/auth"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
)

// ProviderRPC is the default provider id for JSON-RPC signer daemons.
const ProviderRPC = "rpc"

// RPCSigner reaches an external signer daemon (clef compatible) over
// JSON-RPC. The daemon applies the personal-message prefix itself for
// text/plain content, so SignPersonal passes the raw message.
type RPCSigner struct {
	providerID string
	client     *rpc.Client

	mu      sync.Mutex
	address string
}

var _ auth.RemoteSigner = (*RPCSigner)(nil)

// NewRPCSigner dials the signer daemon at rawURL. Supported schemes are
// whatever go-ethereum's rpc package dials (http, ws, ipc paths).
func NewRPCSigner(ctx context.Context, rawURL, providerID string) (*RPCSigner, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("signer URL is required")
	}
	if providerID == "" {
		providerID = ProviderRPC
	}
	client, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, apperrors.External(apperrors.ErrCodeSignerError, "Failed to reach external signer", err)
	}
	return &RPCSigner{providerID: providerID, client: client}, nil
}

func (s *RPCSigner) ProviderID() string {
	return s.providerID
}

// Address returns the daemon's first listed account. The answer is
// cached; signer daemons do not rotate accounts within a session.
func (s *RPCSigner) Address(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != "" {
		return s.address, nil
	}

	var accounts []common.Address
	if err := s.client.CallContext(ctx, &accounts, "account_list"); err != nil {
		return "", apperrors.External(apperrors.ErrCodeSignerError, "Failed to list signer accounts", err)
	}
	if len(accounts) == 0 {
		return "", apperrors.New(apperrors.KindState, apperrors.ErrCodeSignerError, "External signer has no accounts")
	}
	s.address = accounts[0].Hex()
	return s.address, nil
}

// SignPersonal requests a text/plain signature over message. Daemons
// answer with 65 bytes and v in {27,28} (eth_sign convention); the
// signature is returned as produced, recovery accepts both conventions.
func (s *RPCSigner) SignPersonal(ctx context.Context, message []byte) ([]byte, error) {
	addr, err := s.Address(ctx)
	if err != nil {
		return nil, err
	}

	var sig hexutil.Bytes
	err = s.client.CallContext(ctx, &sig, "account_signData", "text/plain", common.HexToAddress(addr), hexutil.Bytes(message))
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.KindExternal, apperrors.ErrCodeSigningRejected, "External signer declined the request", err.Error())
	}
	if len(sig) != 65 {
		return nil, apperrors.New(apperrors.KindExternal, apperrors.ErrCodeInvalidSignature, fmt.Sprintf("External signer returned a %d-byte signature", len(sig)))
	}
	return sig, nil
}

// Close releases the underlying RPC connection.
func (s *RPCSigner) Close() {
	s.client.Close()
}
