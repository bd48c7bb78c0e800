package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/quill-wallet/quill-wallet/internal/signing"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// DefaultSessionKeyDuration applies when a session key is requested
// without an explicit duration.
const DefaultSessionKeyDuration = 72 * time.Hour

// newNonce returns the transaction nonce: the current unix time in
// milliseconds. Strictly increasing between the flows of one account as
// long as the clock moves forward.
func newNonce() uint64 {
	return uint64(time.Now().UnixMilli())
}

// normalizeUsername lowercases and trims a username before validation
// and address derivation.
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// newSalt returns a fresh per-account salt, 16 random bytes hex encoded.
func newSalt() (string, error) {
	raw := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// normalizeWhitelist lowercases and trims contract names. Whitelist
// matching on chain is case sensitive, so normalization happens once at
// capture.
func normalizeWhitelist(entries []string) []string {
	if len(entries) == 0 {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry != "" {
			out = append(out, entry)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// newSessionKey generates a keypair and pairs it with its AddSessionKey
// action. The same nonce must go into the enclosing transaction's
// verification message.
func newSessionKey(account string, params SessionKeyParams, nonce uint64) (types.SessionKey, types.AddSessionKey, error) {
	duration := params.Duration
	if duration <= 0 {
		duration = DefaultSessionKeyDuration
	}

	pair, err := signing.GenerateKeyPair()
	if err != nil {
		return types.SessionKey{}, types.AddSessionKey{}, err
	}

	whitelist := normalizeWhitelist(params.Whitelist)
	expiration := time.Now().Add(duration).UnixMilli()

	key := types.SessionKey{
		PrivateKey: pair.PrivateKey,
		PublicKey:  pair.PublicKey,
		Expiration: expiration,
		Whitelist:  whitelist,
		LaneID:     params.LaneID,
	}
	action := types.AddSessionKey{
		Account:    account,
		Key:        pair.PublicKey,
		Expiration: expiration,
		Whitelist:  whitelist,
		LaneID:     params.LaneID,
		Nonce:      nonce,
	}
	return key, action, nil
}
