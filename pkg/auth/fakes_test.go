package auth

import (
	"context"

	"github.com/quill-wallet/quill-wallet/internal/signing"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// fakeIndexer serves canned account state and records calls.
type fakeIndexer struct {
	info      *types.AccountInfo
	infoErr   error
	inviteErr error

	infoCalls []string
	claims    [][2]string
}

func (f *fakeIndexer) GetAccountInfo(ctx context.Context, account string) (*types.AccountInfo, error) {
	f.infoCalls = append(f.infoCalls, account)
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.info == nil {
		return nil, apperrors.AccountNotFound(account)
	}
	return f.info, nil
}

func (f *fakeIndexer) ClaimInviteCode(ctx context.Context, code, account string) (types.Blob, error) {
	f.claims = append(f.claims, [2]string{code, account})
	if f.inviteErr != nil {
		return types.Blob{}, f.inviteErr
	}
	return types.Blob{ContractName: "invites", Data: []byte("claimed:" + code)}, nil
}

// fakeNode records submitted transactions and returns fixed hashes.
type fakeNode struct {
	blobErr  error
	proofErr error

	blobTxs  []types.BlobTx
	proofTxs []types.ProofTx
}

func (f *fakeNode) SendBlobTx(ctx context.Context, tx types.BlobTx) (string, error) {
	if f.blobErr != nil {
		return "", f.blobErr
	}
	f.blobTxs = append(f.blobTxs, tx)
	return "blob-tx-1", nil
}

func (f *fakeNode) SendProofTx(ctx context.Context, tx types.ProofTx) (string, error) {
	if f.proofErr != nil {
		return "", f.proofErr
	}
	f.proofTxs = append(f.proofTxs, tx)
	return "proof-tx-1", nil
}

// fakeSecretProver records proof requests.
type fakeSecretProver struct {
	err  error
	reqs []SecretProofRequest
}

func (f *fakeSecretProver) ProveSecret(ctx context.Context, req SecretProofRequest) (types.ProofTx, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return types.ProofTx{}, f.err
	}
	return types.ProofTx{ContractName: types.ContractCheckSecret, Proof: []byte("secret-proof")}, nil
}

// fakeTokenProver records proof requests.
type fakeTokenProver struct {
	err  error
	reqs []TokenProofRequest
}

func (f *fakeTokenProver) ProveToken(ctx context.Context, req TokenProofRequest) (types.ProofTx, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return types.ProofTx{}, f.err
	}
	return types.ProofTx{ContractName: types.ContractCheckJwt, Proof: []byte("token-proof")}, nil
}

// eventRecorder captures flow events for order assertions.
type eventRecorder struct {
	events []types.WalletEvent
}

func (r *eventRecorder) options() *FlowOptions {
	return &FlowOptions{OnEvent: func(ev types.WalletEvent) {
		r.events = append(r.events, ev)
	}}
}

func (r *eventRecorder) kinds() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// passwordAccount builds the indexer view of a password account.
func passwordAccount(address, password, salt string) *types.AccountInfo {
	return &types.AccountInfo{
		Account: address,
		Salt:    salt,
		AuthMethod: types.AuthMethod{
			Password: &types.PasswordAuth{Hash: signing.PasswordHash(address, password, salt)},
		},
	}
}
