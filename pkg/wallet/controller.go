package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/quill-wallet/quill-wallet/internal/chain"
	"github.com/quill-wallet/quill-wallet/internal/events"
	"github.com/quill-wallet/quill-wallet/internal/keyvault"
	"github.com/quill-wallet/quill-wallet/internal/logger"
	"github.com/quill-wallet/quill-wallet/internal/metrics"
	"github.com/quill-wallet/quill-wallet/internal/relay"
	"github.com/quill-wallet/quill-wallet/internal/signing"
	"github.com/quill-wallet/quill-wallet/internal/store"
	"github.com/quill-wallet/quill-wallet/pkg/auth"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/transaction"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

const existenceCheckTimeout = 15 * time.Second

// EventSource notifies about on-chain wallet events.
type EventSource interface {
	Subscribe(ctx context.Context, account string) (<-chan types.StreamEvent, error)
	WaitForSessionKey(ctx context.Context, account, publicKey string) error
}

// Collaborators are the controller's injectable dependencies. Nil
// fields disable the features and providers that need them.
type Collaborators struct {
	Indexer      auth.Indexer
	Node         auth.Node
	SecretProver auth.SecretProver
	TokenProver  auth.TokenProver
	Relay        auth.SigningRelay
	Signers      []auth.RemoteSigner
	Events       EventSource
	Store        store.Store
	Metrics      *metrics.Metrics

	// Registry replaces the default provider set entirely.
	Registry *auth.Registry
}

// Controller is the wallet session state machine: one wallet reference,
// swapped whole on every update. Callers must not run two auth flows
// against the same controller concurrently; the mutex only protects the
// reference against the asynchronous existence check.
type Controller struct {
	cfg      Config
	registry *auth.Registry
	builder  *transaction.Builder
	indexer  auth.Indexer
	events   EventSource
	metrics  *metrics.Metrics
	store    *store.WalletStore
	backend  store.Store

	mu     sync.RWMutex
	wallet *types.Wallet
}

// New builds a controller with the default HTTP and WebSocket clients
// wired from configuration.
func New(ctx context.Context, cfg Config) (*Controller, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var deps Collaborators

	indexer, err := chain.NewIndexerClient(cfg.IndexerURL, nil)
	if err != nil {
		return nil, err
	}
	node, err := chain.NewNodeClient(cfg.NodeURL, nil)
	if err != nil {
		return nil, err
	}
	deps.Indexer, deps.Node = indexer, node

	if cfg.ProverURL != "" {
		prover, err := chain.NewProverClient(cfg.ProverURL, nil)
		if err != nil {
			return nil, err
		}
		deps.SecretProver, deps.TokenProver = prover, prover
	}
	if cfg.RelayURL != "" {
		relayClient, err := relay.New(relay.Config{
			URL:            cfg.RelayURL,
			Origin:         cfg.Origin,
			CallbackURL:    cfg.CallbackURL,
			DefaultTimeout: cfg.QRTimeout,
		})
		if err != nil {
			return nil, err
		}
		deps.Relay = relayClient
	}
	if cfg.EventsURL != "" {
		eventClient, err := events.New(cfg.EventsURL)
		if err != nil {
			return nil, err
		}
		deps.Events = eventClient
	}

	deps.Store, err = newBackendStore(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.MetricsRegistry != nil {
		deps.Metrics = metrics.New(cfg.MetricsRegistry)
	}

	return NewWithCollaborators(ctx, cfg, deps)
}

// NewWithCollaborators builds a controller over explicit collaborators.
// The persisted wallet, if any, is loaded; when its last on-chain
// existence check is stale it is re-verified asynchronously.
func NewWithCollaborators(ctx context.Context, cfg Config, deps Collaborators) (*Controller, error) {
	cfg.applyDefaults()

	builder := transaction.NewBuilder(cfg.IdentityContract, nil)
	registry := deps.Registry
	if registry == nil {
		registry = defaultRegistry(cfg, deps, builder)
	}

	c := &Controller{
		cfg:      cfg,
		registry: registry,
		builder:  builder,
		indexer:  deps.Indexer,
		events:   deps.Events,
		metrics:  deps.Metrics,
		backend:  deps.Store,
	}
	if deps.Store != nil {
		c.store = store.NewWalletStore(deps.Store)
	}

	if c.store != nil {
		w, err := c.store.Load(ctx)
		if err != nil {
			return nil, err
		}
		if w != nil {
			w = w.CleanExpiredSessionKey(time.Now())
			c.wallet = w
			c.maybeRefreshExistence(ctx, w)
		}
	}
	return c, nil
}

func newBackendStore(ctx context.Context, cfg *Config) (store.Store, error) {
	var backend store.Store
	var err error
	switch {
	case cfg.PostgresDSN != "":
		backend, err = store.NewPostgresStore(ctx, cfg.PostgresDSN)
	case cfg.StorePath != "":
		backend, err = store.NewFileStore(cfg.StorePath)
	default:
		backend = store.NewMemoryStore()
	}
	if err != nil {
		return nil, err
	}

	if !cfg.cipherConfigured() {
		return backend, nil
	}
	cipher, err := keyvault.New(&cfg.Cipher)
	if err != nil {
		return nil, err
	}
	return store.NewEncryptedStore(backend, cipher)
}

func defaultRegistry(cfg Config, deps Collaborators, builder *transaction.Builder) *auth.Registry {
	registry := auth.NewRegistry()
	if deps.Indexer == nil || deps.Node == nil {
		return registry
	}
	if deps.SecretProver != nil {
		registry.Register(auth.NewPasswordProvider(deps.Indexer, deps.Node, deps.SecretProver, builder))
	}
	if deps.TokenProver != nil {
		registry.Register(auth.NewFederatedProvider(auth.FederatedConfig{
			Issuer:   cfg.OIDCIssuer,
			ClientID: cfg.OIDCClientID,
			JWKSURL:  cfg.OIDCJWKSURL,
		}, deps.Indexer, deps.Node, deps.TokenProver, builder))
	}
	if len(deps.Signers) > 0 {
		registry.Register(auth.NewEthereumProvider(auth.EthereumConfig{
			MessagePrefix: cfg.MessagePrefix,
		}, deps.Indexer, deps.Node, builder, deps.Signers...))
	}
	if deps.Relay != nil {
		registry.Register(auth.NewRelayedProvider(auth.RelayedConfig{
			Origin:            cfg.Origin,
			LoginTimeout:      cfg.LoginTimeout,
			RegisterTimeout:   cfg.QRTimeout,
			SessionKeyTimeout: cfg.SessionKeyTimeout,
		}, deps.Relay, deps.Indexer, deps.Node, builder, deps.Metrics))
	}
	return registry
}

// RegisterProvider adds or replaces an auth provider.
func (c *Controller) RegisterProvider(p auth.Provider) {
	c.registry.Register(p)
}

// Providers returns the enabled provider types in registration order.
func (c *Controller) Providers() []string {
	return c.registry.Types()
}

// Wallet returns a snapshot of the current wallet, or nil when logged
// out. The snapshot is the caller's; controller updates never mutate it.
func (c *Controller) Wallet() *types.Wallet {
	return c.snapshot()
}

// Login authenticates through the named provider and establishes the
// session. On failure the previous session, if any, stays untouched.
func (c *Controller) Login(ctx context.Context, providerType string, creds auth.Credentials, opts *auth.FlowOptions) (*types.Wallet, error) {
	w, err := c.runFlow(ctx, providerType, creds, opts, false)
	c.metrics.Login(providerType, err)
	if err != nil {
		opts.Fail(err)
		return nil, err
	}
	return w, nil
}

// Register creates an account through the named provider and establishes
// the session.
func (c *Controller) Register(ctx context.Context, providerType string, creds auth.Credentials, opts *auth.FlowOptions) (*types.Wallet, error) {
	w, err := c.runFlow(ctx, providerType, creds, opts, true)
	c.metrics.Registration(providerType, err)
	if err != nil {
		opts.Fail(err)
		return nil, err
	}
	return w, nil
}

func (c *Controller) runFlow(ctx context.Context, providerType string, creds auth.Credentials, opts *auth.FlowOptions, register bool) (*types.Wallet, error) {
	provider, err := c.registry.Resolve(providerType)
	if err != nil {
		return nil, err
	}
	if prep, ok := provider.(auth.Preparer); ok {
		if err := prep.CheckAndPrepare(ctx); err != nil {
			return nil, err
		}
	}

	flowOpts := c.normalizeOptions(opts)
	var w *types.Wallet
	if register {
		w, err = provider.Register(ctx, creds, flowOpts)
	} else {
		w, err = provider.Login(ctx, creds, flowOpts)
	}
	if err != nil {
		return nil, err
	}

	c.setWallet(ctx, w, opts)
	opts.Emit(types.EventLoggedIn, "Logged in as "+w.Address)
	logger.Info(ctx, "wallet session established", "account", w.Address, "provider", providerType)
	return w.Clone(), nil
}

// Logout clears the in-memory wallet and the persisted state. Purely
// local, no network call.
func (c *Controller) Logout(ctx context.Context, opts *auth.FlowOptions) error {
	c.mu.Lock()
	c.wallet = nil
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Clear(ctx); err != nil {
			opts.Fail(err)
			return err
		}
	}
	opts.Emit(types.EventLoggedOut, "Logged out")
	return nil
}

// RegisterSessionKey runs a password-authorized session key registration
// for the current wallet. The wallet is updated optimistically; callers
// needing on-chain confirmation use WaitForSessionKey.
func (c *Controller) RegisterSessionKey(ctx context.Context, password string, params auth.SessionKeyParams, opts *auth.FlowOptions) (*auth.SessionKeyResult, error) {
	result, err := c.registerSessionKey(ctx, password, params, opts)
	c.metrics.SessionKey("register", err)
	if err != nil {
		opts.Fail(err)
		return nil, err
	}
	return result, nil
}

func (c *Controller) registerSessionKey(ctx context.Context, password string, params auth.SessionKeyParams, opts *auth.FlowOptions) (*auth.SessionKeyResult, error) {
	w := c.snapshot()
	if w == nil {
		return nil, apperrors.ErrNotLoggedIn
	}
	registrar, err := c.sessionKeyRegistrar()
	if err != nil {
		return nil, err
	}

	result, err := registrar.RegisterSessionKey(ctx, w, password, c.sessionKeyParams(params), opts)
	if err != nil {
		return nil, err
	}

	key := result.SessionKey
	w.SessionKey = &key
	c.setWallet(ctx, w, opts)
	return result, nil
}

// RemoveSessionKey revokes a session key on chain. When it is the
// wallet's current key the local reference is cleared optimistically.
func (c *Controller) RemoveSessionKey(ctx context.Context, password, publicKey string, opts *auth.FlowOptions) (*auth.TxResult, error) {
	result, err := c.removeSessionKey(ctx, password, publicKey, opts)
	c.metrics.SessionKey("remove", err)
	if err != nil {
		opts.Fail(err)
		return nil, err
	}
	return result, nil
}

func (c *Controller) removeSessionKey(ctx context.Context, password, publicKey string, opts *auth.FlowOptions) (*auth.TxResult, error) {
	w := c.snapshot()
	if w == nil {
		return nil, apperrors.ErrNotLoggedIn
	}
	registrar, err := c.sessionKeyRegistrar()
	if err != nil {
		return nil, err
	}

	result, err := registrar.RemoveSessionKey(ctx, w, password, publicKey, opts)
	if err != nil {
		return nil, err
	}

	if w.SessionKey != nil && w.SessionKey.PublicKey == publicKey {
		w.SessionKey = nil
		c.setWallet(ctx, w, opts)
	}
	return result, nil
}

// VerifyIdentityWithPassword re-attests the current wallet on chain.
func (c *Controller) VerifyIdentityWithPassword(ctx context.Context, password string, opts *auth.FlowOptions) (*auth.TxResult, error) {
	result, err := c.verifyIdentity(ctx, password, opts)
	c.metrics.SessionKey("verify", err)
	if err != nil {
		opts.Fail(err)
		return nil, err
	}
	return result, nil
}

func (c *Controller) verifyIdentity(ctx context.Context, password string, opts *auth.FlowOptions) (*auth.TxResult, error) {
	w := c.snapshot()
	if w == nil {
		return nil, apperrors.ErrNotLoggedIn
	}
	registrar, err := c.sessionKeyRegistrar()
	if err != nil {
		return nil, err
	}
	return registrar.VerifyIdentity(ctx, w, password, opts)
}

// GetOrReuseSessionKey returns the wallet's unexpired session key, or
// nil when there is none to reuse. With checkBackend the key must also
// still be listed on chain.
func (c *Controller) GetOrReuseSessionKey(ctx context.Context, checkBackend bool) (*types.SessionKey, error) {
	w := c.snapshot()
	if w == nil {
		return nil, apperrors.ErrNotLoggedIn
	}
	key := w.SessionKey
	if key == nil || key.Expired(time.Now()) {
		return nil, nil
	}
	if !checkBackend {
		return key, nil
	}

	info, err := c.indexer.GetAccountInfo(ctx, w.Address)
	if err != nil {
		return nil, err
	}
	if info.FindSessionKey(key.PublicKey) == nil {
		return nil, nil
	}
	return key, nil
}

// CleanExpiredSessionKey drops an expired session key from the wallet.
// Best effort: persistence failures are logged and swallowed.
func (c *Controller) CleanExpiredSessionKey(ctx context.Context) {
	now := time.Now()

	c.mu.Lock()
	w := c.wallet
	if w == nil || w.SessionKey == nil || !w.SessionKey.Expired(now) {
		c.mu.Unlock()
		return
	}
	cleaned := w.CleanExpiredSessionKey(now)
	c.wallet = cleaned
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(ctx, cleaned); err != nil {
			logger.Debug(ctx, "failed to persist cleaned wallet", "error", err)
		}
	}
}

// CreateIdentityBlobs signs a fresh nonce with the session key and
// returns the [signature, UseSessionKey] blob pair other transactions
// embed to authenticate as this wallet.
func (c *Controller) CreateIdentityBlobs() ([]types.Blob, error) {
	w := c.snapshot()
	if w == nil {
		return nil, apperrors.ErrNotLoggedIn
	}
	key := w.SessionKey
	if key == nil {
		return nil, apperrors.ErrNoSessionKey
	}
	if key.Expired(time.Now()) {
		return nil, apperrors.ErrSessionKeyExpired
	}

	priv, err := signing.ParsePrivateKey(key.PrivateKey)
	if err != nil {
		return nil, apperrors.NewWithDetail(apperrors.KindState, apperrors.ErrCodeNoSessionKey, "Session key is unusable", err.Error())
	}
	pub, err := hex.DecodeString(key.PublicKey)
	if err != nil || len(pub) != 33 {
		return nil, apperrors.NewWithDetail(apperrors.KindState, apperrors.ErrCodeNoSessionKey, "Session key is unusable", "malformed public key")
	}

	nonce := uint64(time.Now().UnixMilli())
	digest, sig, err := signing.SignMessage([]byte(strconv.FormatUint(nonce, 10)), priv)
	if err != nil {
		return nil, apperrors.InvalidSignature(err.Error())
	}

	secp := transaction.SecpBlob{Identity: w.Address, Data: digest}
	copy(secp.PublicKey[:], pub)
	copy(secp.Signature[:], sig)
	verification, err := c.builder.SecpBlob(secp)
	if err != nil {
		return nil, err
	}
	return c.builder.AuthenticatedBlobs(verification, types.UseSessionKey{Account: w.Address, Nonce: nonce})
}

// WaitForSessionKey blocks until the on-chain confirmation for an
// optimistically registered key arrives on the event stream.
func (c *Controller) WaitForSessionKey(ctx context.Context, publicKey string) error {
	w := c.snapshot()
	if w == nil {
		return apperrors.ErrNotLoggedIn
	}
	if c.events == nil {
		return apperrors.New(apperrors.KindState, apperrors.ErrCodeRelayError, "Event stream is not configured")
	}
	return c.events.WaitForSessionKey(ctx, w.Address, publicKey)
}

// SubscribeEvents opens the current wallet's on-chain event stream.
func (c *Controller) SubscribeEvents(ctx context.Context) (<-chan types.StreamEvent, error) {
	w := c.snapshot()
	if w == nil {
		return nil, apperrors.ErrNotLoggedIn
	}
	if c.events == nil {
		return nil, apperrors.New(apperrors.KindState, apperrors.ErrCodeRelayError, "Event stream is not configured")
	}
	return c.events.Subscribe(ctx, w.Address)
}

// Close releases the persistence backend.
func (c *Controller) Close() error {
	if c.backend != nil {
		return c.backend.Close()
	}
	return nil
}

func (c *Controller) snapshot() *types.Wallet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wallet.Clone()
}

// setWallet swaps the wallet reference and persists it. Persistence
// failures are reported through opts but do not fail the flow; the
// session is already established.
func (c *Controller) setWallet(ctx context.Context, w *types.Wallet, opts *auth.FlowOptions) {
	c.mu.Lock()
	c.wallet = w
	c.mu.Unlock()

	if c.store == nil || w == nil {
		return
	}
	if err := c.store.Save(ctx, w); err != nil {
		logger.Warn(ctx, "failed to persist wallet", "account", w.Address, "error", err)
		opts.Fail(err)
		return
	}
	if err := c.store.TouchChecked(ctx, time.Now()); err != nil {
		logger.Debug(ctx, "failed to record existence check", "error", err)
	}
}

func (c *Controller) sessionKeyRegistrar() (auth.SessionKeyRegistrar, error) {
	p, err := c.registry.Resolve(types.ProviderPassword)
	if err != nil {
		return nil, err
	}
	registrar, ok := p.(auth.SessionKeyRegistrar)
	if !ok {
		return nil, apperrors.NewWithDetail(
			apperrors.KindValidation,
			apperrors.ErrCodeProviderNotFound,
			"Provider cannot manage session keys",
			fmt.Sprintf("provider: %s", types.ProviderPassword),
		)
	}
	return registrar, nil
}

// normalizeOptions fills session-key defaults into a copy of the
// caller's options. The original is never mutated.
func (c *Controller) normalizeOptions(opts *auth.FlowOptions) *auth.FlowOptions {
	if opts == nil || opts.SessionKey == nil {
		return opts
	}
	params := c.sessionKeyParams(*opts.SessionKey)
	out := *opts
	out.SessionKey = &params
	return &out
}

func (c *Controller) sessionKeyParams(params auth.SessionKeyParams) auth.SessionKeyParams {
	if params.Duration <= 0 {
		params.Duration = c.cfg.SessionKeyDuration
	}
	if len(params.Whitelist) == 0 {
		params.Whitelist = c.cfg.SessionKeyWhitelist
	}
	if params.LaneID == "" {
		params.LaneID = c.cfg.SessionKeyLaneID
	}
	return params
}

// maybeRefreshExistence re-verifies a loaded wallet on chain when the
// recorded check is older than the configured interval.
func (c *Controller) maybeRefreshExistence(ctx context.Context, w *types.Wallet) {
	if c.indexer == nil {
		return
	}
	if c.store != nil {
		at, ok, err := c.store.LastChecked(ctx)
		if err == nil && ok && time.Since(at) < c.cfg.ExistenceCheckInterval {
			return
		}
	}
	c.refreshExistence(w)
}

// refreshExistence asynchronously confirms the account still exists on
// chain. A confirmed absence clears the wallet; transient indexer
// failures leave it alone.
func (c *Controller) refreshExistence(w *types.Wallet) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), existenceCheckTimeout)
		defer cancel()

		_, err := c.indexer.GetAccountInfo(ctx, w.Address)
		if err == nil {
			if c.store != nil {
				if terr := c.store.TouchChecked(ctx, time.Now()); terr != nil {
					logger.Debug(ctx, "failed to record existence check", "error", terr)
				}
			}
			return
		}
		if apperrors.CodeOf(err) != apperrors.ErrCodeAccountNotFound {
			logger.Debug(ctx, "existence check inconclusive", "account", w.Address, "error", err)
			return
		}

		logger.Warn(ctx, "persisted account no longer exists on chain", "account", w.Address)
		c.mu.Lock()
		if c.wallet != nil && c.wallet.Address == w.Address {
			c.wallet = nil
		}
		c.mu.Unlock()
		if c.store != nil {
			if cerr := c.store.Clear(ctx); cerr != nil {
				logger.Debug(ctx, "failed to clear wallet store", "error", cerr)
			}
		}
	}()
}
