package chain

import (
	"context"
	"net/http"

	"github.com/quill-wallet/quill-wallet/internal/logger"
	"github.com/quill-wallet/quill-wallet/pkg/auth"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// ProverClient talks to the proving service that turns auth witnesses
// into proof transactions.
type ProverClient struct {
	api httpAPI
}

var (
	_ auth.SecretProver = (*ProverClient)(nil)
	_ auth.TokenProver  = (*ProverClient)(nil)
)

// NewProverClient creates a client for the given prover base URL.
func NewProverClient(baseURL string, client *http.Client) (*ProverClient, error) {
	api, err := newHTTPAPI(baseURL, client)
	if err != nil {
		return nil, err
	}
	return &ProverClient{api: api}, nil
}

// ProveSecret requests a proof of password knowledge for the referenced
// blob transaction.
func (c *ProverClient) ProveSecret(ctx context.Context, req auth.SecretProofRequest) (types.ProofTx, error) {
	logger.Debug(ctx, "requesting secret proof", "account", req.Account, "tx_hash", req.TxHash)

	var proof types.ProofTx
	if err := c.api.postJSON(ctx, "/v1/prove/secret", req, &proof); err != nil {
		return types.ProofTx{}, apperrors.External(apperrors.ErrCodeProverError, "Proof generation failed", err)
	}
	return proof, nil
}

// ProveToken requests a proof of federated token validity for the
// referenced blob transaction.
func (c *ProverClient) ProveToken(ctx context.Context, req auth.TokenProofRequest) (types.ProofTx, error) {
	logger.Debug(ctx, "requesting token proof", "tx_hash", req.TxHash)

	var proof types.ProofTx
	if err := c.api.postJSON(ctx, "/v1/prove/token", req, &proof); err != nil {
		return types.ProofTx{}, apperrors.External(apperrors.ErrCodeProverError, "Proof generation failed", err)
	}
	return proof, nil
}
