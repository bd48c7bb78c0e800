package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// UsernamePattern constrains usernames that become on-chain identities:
// lowercase alphanumeric start, then letters, digits, dot, underscore or
// hyphen, 3 to 32 characters total.
var UsernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)

// EthereumAddressPattern is the regex pattern for Ethereum addresses
var EthereumAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// PasswordMinLength is the minimum accepted password length.
const PasswordMinLength = 8

// passwordMaxLength bounds prover input size.
const passwordMaxLength = 256

// ValidateUsername validates a username before it is turned into an
// account address. Callers lowercase first; mixed case is rejected here.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if username != strings.ToLower(username) {
		return fmt.Errorf("username must be lowercase")
	}

	if !UsernamePattern.MatchString(username) {
		return fmt.Errorf("invalid username: 3-32 characters, lowercase letters, digits, '.', '_' or '-'")
	}

	return nil
}

// ValidatePassword validates password length bounds.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLength {
		return fmt.Errorf("password must be at least %d characters", PasswordMinLength)
	}

	if len(password) > passwordMaxLength {
		return fmt.Errorf("password too long: maximum %d characters", passwordMaxLength)
	}

	return nil
}

// ValidatePasswordConfirmation checks the confirm field matches.
func ValidatePasswordConfirmation(password, confirm string) error {
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

// ValidateInviteCode validates an invite code is present and bounded.
func ValidateInviteCode(code string) error {
	if code == "" {
		return fmt.Errorf("invite code cannot be empty")
	}

	if len(code) > 128 {
		return fmt.Errorf("invite code too long")
	}

	return nil
}

// ValidateEthereumAddress validates an Ethereum address format
func ValidateEthereumAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if !EthereumAddressPattern.MatchString(address) {
		return fmt.Errorf("invalid Ethereum address format: must be 0x followed by 40 hex characters")
	}

	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid Ethereum address")
	}

	if strings.ToLower(address) == "0x0000000000000000000000000000000000000000" {
		return fmt.Errorf("zero address is not a valid signer")
	}

	return nil
}

// ValidateWhitelist validates session key whitelist entries.
func ValidateWhitelist(entries []string) error {
	for i, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			return fmt.Errorf("whitelist entry %d is empty", i)
		}
	}
	return nil
}
