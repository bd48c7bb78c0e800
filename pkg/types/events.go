package types

import "encoding/json"

// Flow event types delivered through OnEvent callbacks.
const (
	EventCheckingAccount = "checking_account"
	EventClaimingInvite  = "claiming_invite"
	EventSendingBlobTx   = "sending_blob_tx"
	EventProving         = "proving"
	EventSendingProofTx  = "sending_proof_tx"
	EventSigningRequest  = "signing_request"
	EventSigningAck      = "signing_acknowledged"
	EventLoggedIn        = "logged_in"
	EventLoggedOut       = "logged_out"
	EventSessionKeyAdded = "session_key_added"
)

// WalletEvent is a progress notification emitted during auth and
// session-key flows. Message is human readable except for
// EventSigningRequest, where it carries the JSON payload the UI renders
// as a QR code.
type WalletEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StreamEvent is a wallet notification received over the event WebSocket.
type StreamEvent struct {
	Type    string          `json:"type"`
	Account string          `json:"account"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SessionKeyEventData is the payload of a session_key_added stream event.
type SessionKeyEventData struct {
	Key        string `json:"key"`
	Expiration int64  `json:"expiration"`
}
