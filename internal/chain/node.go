package chain

import (
	"context"
	"net/http"

	"github.com/quill-wallet/quill-wallet/internal/logger"
	"github.com/quill-wallet/quill-wallet/pkg/auth"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// NodeClient submits transactions to a chain node.
type NodeClient struct {
	api httpAPI
}

var _ auth.Node = (*NodeClient)(nil)

// NewNodeClient creates a client for the given node base URL.
func NewNodeClient(baseURL string, client *http.Client) (*NodeClient, error) {
	api, err := newHTTPAPI(baseURL, client)
	if err != nil {
		return nil, err
	}
	return &NodeClient{api: api}, nil
}

type txResponse struct {
	TxHash string `json:"tx_hash"`
}

// SendBlobTx submits a blob transaction and returns its hash.
func (c *NodeClient) SendBlobTx(ctx context.Context, tx types.BlobTx) (string, error) {
	logger.Debug(ctx, "sending blob transaction", "identity", tx.Identity, "blobs", len(tx.Blobs))

	var resp txResponse
	if err := c.api.postJSON(ctx, "/v1/tx/blob", tx, &resp); err != nil {
		return "", apperrors.External(apperrors.ErrCodeNodeError, "Failed to send blob transaction", err)
	}
	return resp.TxHash, nil
}

// SendProofTx submits a proof transaction and returns its hash.
func (c *NodeClient) SendProofTx(ctx context.Context, tx types.ProofTx) (string, error) {
	logger.Debug(ctx, "sending proof transaction", "contract", tx.ContractName)

	var resp txResponse
	if err := c.api.postJSON(ctx, "/v1/tx/proof", tx, &resp); err != nil {
		return "", apperrors.External(apperrors.ErrCodeNodeError, "Failed to send proof transaction", err)
	}
	return resp.TxHash, nil
}
