package types

// Blob is one payload entry of a blob transaction. Data is the
// contract-specific binary encoding; JSON marshals it as base64.
type Blob struct {
	ContractName string `json:"contract_name"`
	Data         []byte `json:"data"`
}

// BlobTx is an ordered list of blobs submitted under one identity. Blob
// order is significant: proof transactions reference blobs by index.
type BlobTx struct {
	Identity string `json:"identity"`
	Blobs    []Blob `json:"blobs"`
}

// ProofTx carries a proof for one blob of a previously submitted blob
// transaction.
type ProofTx struct {
	ContractName string `json:"contract_name"`
	Proof        []byte `json:"proof"`
	// TxHash references the blob transaction being proven, when the
	// proving backend does not embed it in the proof itself.
	TxHash string `json:"tx_hash,omitempty"`
}
