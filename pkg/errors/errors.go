package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError for callers that branch on failure class
// rather than on individual codes.
type Kind int

const (
	// KindValidation: malformed or missing input, caught before any I/O.
	KindValidation Kind = iota
	// KindAuth: credential or signature verification failed.
	KindAuth
	// KindExternal: an indexer, node, prover, signer or relay call failed.
	KindExternal
	// KindTimeout: a bounded wait elapsed (signing requests, event waits).
	KindTimeout
	// KindState: the operation does not apply to the current wallet state.
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindExternal:
		return "external"
	case KindTimeout:
		return "timeout"
	case KindState:
		return "state"
	}
	return "unknown"
}

// AppError represents an application-level error with a stable machine
// readable code and a short user-facing message. Detail carries the
// technical cause and is never shown to end users.
type AppError struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UserMessage returns the short string suitable for display.
func (e *AppError) UserMessage() string {
	return e.Message
}

// Common error codes
const (
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeAccountNotFound    = "account_not_found"
	ErrCodeAccountExists      = "account_exists"
	ErrCodeAccountMismatch    = "account_mismatch"
	ErrCodeInvalidSignature   = "invalid_signature"
	ErrCodeInvalidToken       = "invalid_token"
	ErrCodeNoSessionKey       = "no_session_key"
	ErrCodeSessionKeyExpired  = "session_key_expired"
	ErrCodeNotLoggedIn        = "not_logged_in"
	ErrCodeProviderNotFound   = "provider_not_found"
	ErrCodeProviderDisabled   = "provider_disabled"
	ErrCodeInviteRejected     = "invite_rejected"
	ErrCodeTimeout            = "timeout"
	ErrCodeCancelled          = "cancelled"
	ErrCodeIndexerError       = "indexer_error"
	ErrCodeNodeError          = "node_error"
	ErrCodeProverError        = "prover_error"
	ErrCodeSignerError        = "signer_error"
	ErrCodeSigningRejected    = "signing_rejected"
	ErrCodeRelayError         = "relay_error"
	ErrCodeStoreError         = "store_error"
)

// Predefined errors
var (
	ErrNoSessionKey = &AppError{
		Kind:    KindState,
		Code:    ErrCodeNoSessionKey,
		Message: "No session key found",
	}

	ErrSessionKeyExpired = &AppError{
		Kind:    KindState,
		Code:    ErrCodeSessionKeyExpired,
		Message: "Session key expired",
	}

	ErrNotLoggedIn = &AppError{
		Kind:    KindState,
		Code:    ErrCodeNotLoggedIn,
		Message: "No wallet session",
	}

	ErrInvalidPassword = &AppError{
		Kind:    KindAuth,
		Code:    ErrCodeInvalidCredentials,
		Message: "Invalid password",
	}
)

// New creates a new AppError
func New(kind Kind, code, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(kind Kind, code, message, detail string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Detail:  detail,
	}
}

// Validation creates an invalid input error
func Validation(message string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidRequest,
		Message: message,
	}
}

// AccountNotFound creates an account not found error
func AccountNotFound(account string) *AppError {
	return &AppError{
		Kind:    KindAuth,
		Code:    ErrCodeAccountNotFound,
		Message: "Account does not exist",
		Detail:  fmt.Sprintf("account: %s", account),
	}
}

// AccountMismatch creates an error for a signer or token that does not
// control the requested account
func AccountMismatch(detail string) *AppError {
	return &AppError{
		Kind:    KindAuth,
		Code:    ErrCodeAccountMismatch,
		Message: "Account does not match the connected signer",
		Detail:  detail,
	}
}

// InvalidSignature creates an invalid signature error
func InvalidSignature(detail string) *AppError {
	return &AppError{
		Kind:    KindAuth,
		Code:    ErrCodeInvalidSignature,
		Message: "Signature verification failed",
		Detail:  detail,
	}
}

// Timeout creates a bounded-wait expiry error. The message always contains
// "timed out" so callers and UIs can distinguish expiry from rejection.
func Timeout(what string) *AppError {
	return &AppError{
		Kind:    KindTimeout,
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("%s timed out", what),
	}
}

// External wraps a collaborator failure under the given code
func External(code, message string, err error) *AppError {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &AppError{
		Kind:    KindExternal,
		Code:    code,
		Message: message,
		Detail:  detail,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the AppError code, or empty for plain errors.
func CodeOf(err error) string {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return ""
}
