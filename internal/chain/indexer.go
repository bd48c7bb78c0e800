package chain

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/quill-wallet/quill-wallet/internal/logger"
	"github.com/quill-wallet/quill-wallet/pkg/auth"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// IndexerClient talks to the chain indexer HTTP API.
type IndexerClient struct {
	api httpAPI
}

var _ auth.Indexer = (*IndexerClient)(nil)

// NewIndexerClient creates a client for the given indexer base URL. A nil
// http.Client selects a default with a 30s timeout.
func NewIndexerClient(baseURL string, client *http.Client) (*IndexerClient, error) {
	api, err := newHTTPAPI(baseURL, client)
	if err != nil {
		return nil, err
	}
	return &IndexerClient{api: api}, nil
}

type claimInviteRequest struct {
	InviteCode string `json:"invite_code"`
	Account    string `json:"account"`
}

// GetAccountInfo fetches the registered state of an account.
func (c *IndexerClient) GetAccountInfo(ctx context.Context, account string) (*types.AccountInfo, error) {
	var info types.AccountInfo
	err := c.api.getJSON(ctx, "/v1/accounts/"+url.PathEscape(account), &info)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, apperrors.AccountNotFound(account)
		}
		logger.Debug(ctx, "indexer account lookup failed", "account", account, "error", err)
		return nil, apperrors.External(apperrors.ErrCodeIndexerError, "Indexer request failed", err)
	}
	return &info, nil
}

// ClaimInviteCode consumes an invite code for the account and returns the
// blob to include in the registration transaction.
func (c *IndexerClient) ClaimInviteCode(ctx context.Context, code, account string) (types.Blob, error) {
	var blob types.Blob
	err := c.api.postJSON(ctx, "/v1/invites/claim", claimInviteRequest{InviteCode: code, Account: account}, &blob)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
			return types.Blob{}, apperrors.NewWithDetail(
				apperrors.KindAuth,
				apperrors.ErrCodeInviteRejected,
				"Invite code was rejected",
				se.Body,
			)
		}
		return types.Blob{}, apperrors.External(apperrors.ErrCodeIndexerError, "Invite claim failed", err)
	}
	return blob, nil
}
