// Package wallet hosts the session controller: the single piece of
// mutable state (the authenticated wallet) and the operations around it.
// Providers authenticate; the controller owns persistence, session-key
// reuse, metrics and the logged_in/logged_out lifecycle.
package wallet

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quill-wallet/quill-wallet/internal/keyvault"
	"github.com/quill-wallet/quill-wallet/pkg/auth"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// Defaults applied by Config.applyDefaults.
const (
	DefaultQRTimeout              = 120 * time.Second
	DefaultLoginTimeout           = 60 * time.Second
	DefaultSessionKeyTimeout      = 30 * time.Second
	DefaultExistenceCheckInterval = 5 * time.Minute
)

// Config holds the controller configuration. Zero values select the
// documented defaults; endpoints left empty disable the providers that
// need them.
type Config struct {
	// Chain endpoints.
	NodeURL    string
	IndexerURL string
	ProverURL  string

	// WebSocket endpoints: signing relay and wallet event stream.
	RelayURL  string
	EventsURL string

	// Identity contract accounts register against.
	IdentityContract string

	// Session key defaults applied when a flow requests a key without
	// explicit parameters.
	SessionKeyDuration  time.Duration
	SessionKeyWhitelist []string
	SessionKeyLaneID    string

	// MessagePrefix opens the text external signers are asked to sign.
	MessagePrefix string

	// Federated issuer.
	OIDCIssuer   string
	OIDCClientID string
	OIDCJWKSURL  string

	// Signature wait bounds for relayed (QR) flows.
	QRTimeout         time.Duration
	LoginTimeout      time.Duration
	SessionKeyTimeout time.Duration

	// Relay identification.
	Origin      string
	CallbackURL string

	// Persistence: a directory for the file store, or a Postgres DSN.
	// Both empty keeps the wallet in memory only.
	StorePath   string
	PostgresDSN string

	// Cipher selects at-rest encryption for the store. An empty
	// provider with no key material stores plaintext.
	Cipher keyvault.Config

	// ExistenceCheckInterval is how stale the last on-chain existence
	// check may be before a loaded wallet is re-verified.
	ExistenceCheckInterval time.Duration

	// MetricsRegistry enables flow counters when set.
	MetricsRegistry prometheus.Registerer
}

// ConfigFromEnv reads the configuration from environment variables.
// Unset variables keep their defaults; Validate runs at construction.
func ConfigFromEnv() Config {
	return Config{
		NodeURL:    getEnv("NODE_URL", ""),
		IndexerURL: getEnv("INDEXER_URL", ""),
		ProverURL:  getEnv("PROVER_URL", ""),

		RelayURL:  getEnv("RELAY_URL", ""),
		EventsURL: getEnv("EVENTS_URL", ""),

		IdentityContract: getEnv("IDENTITY_CONTRACT", types.DefaultIdentityContract),

		SessionKeyDuration:  getEnvDuration("SESSION_KEY_DURATION", auth.DefaultSessionKeyDuration),
		SessionKeyWhitelist: getEnvList("SESSION_KEY_WHITELIST"),
		SessionKeyLaneID:    getEnv("SESSION_KEY_LANE_ID", ""),

		MessagePrefix: getEnv("SIGNING_MESSAGE_PREFIX", ""),

		OIDCIssuer:   getEnv("OIDC_ISSUER", ""),
		OIDCClientID: getEnv("OIDC_CLIENT_ID", ""),
		OIDCJWKSURL:  getEnv("OIDC_JWKS_URL", ""),

		QRTimeout:         getEnvDuration("QR_TIMEOUT", DefaultQRTimeout),
		LoginTimeout:      getEnvDuration("LOGIN_TIMEOUT", DefaultLoginTimeout),
		SessionKeyTimeout: getEnvDuration("SESSION_KEY_TIMEOUT", DefaultSessionKeyTimeout),

		Origin:      getEnv("RELAY_ORIGIN", ""),
		CallbackURL: getEnv("RELAY_CALLBACK_URL", ""),

		StorePath:   getEnv("WALLET_STORE_PATH", ""),
		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		Cipher: keyvault.Config{
			Provider:          getEnv("STORE_CIPHER", ""),
			LocalMasterKeyHex: getEnv("STORE_MASTER_KEY", ""),
			AWSKMSKeyID:       getEnv("KMS_KEY_ID", ""),
			AWSKMSRegion:      getEnv("AWS_REGION", ""),
			VaultAddress:      getEnv("VAULT_ADDR", ""),
			VaultToken:        getEnv("VAULT_TOKEN", ""),
			VaultTransitKey:   getEnv("VAULT_TRANSIT_KEY", ""),
		},

		ExistenceCheckInterval: getEnvDuration("EXISTENCE_CHECK_INTERVAL", DefaultExistenceCheckInterval),
	}
}

// Validate checks if the configuration is valid for default wiring.
func (c *Config) Validate() error {
	if c.NodeURL == "" {
		return fmt.Errorf("NODE_URL is required")
	}
	if c.IndexerURL == "" {
		return fmt.Errorf("INDEXER_URL is required")
	}
	if c.StorePath != "" && c.PostgresDSN != "" {
		return fmt.Errorf("WALLET_STORE_PATH and POSTGRES_DSN are mutually exclusive")
	}
	switch keyvault.ProviderType(c.Cipher.Provider) {
	case "", keyvault.ProviderLocal, keyvault.ProviderAWSKMS, keyvault.ProviderVault:
	default:
		return fmt.Errorf("STORE_CIPHER must be 'local', 'aws-kms' or 'vault', got: %s", c.Cipher.Provider)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.IdentityContract == "" {
		c.IdentityContract = types.DefaultIdentityContract
	}
	if c.SessionKeyDuration <= 0 {
		c.SessionKeyDuration = auth.DefaultSessionKeyDuration
	}
	if c.QRTimeout <= 0 {
		c.QRTimeout = DefaultQRTimeout
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	if c.SessionKeyTimeout <= 0 {
		c.SessionKeyTimeout = DefaultSessionKeyTimeout
	}
	if c.ExistenceCheckInterval <= 0 {
		c.ExistenceCheckInterval = DefaultExistenceCheckInterval
	}
}

// cipherConfigured reports whether any at-rest encryption is selected.
func (c *Config) cipherConfigured() bool {
	return c.Cipher.Provider != "" ||
		c.Cipher.LocalMasterKeyHex != "" ||
		len(c.Cipher.LocalShares) > 0
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList gets a comma-separated environment variable
func getEnvList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
