// Package relay implements the signing-request client for the relay
// service: signing requests travel to a remote wallet over a shared
// WebSocket and responses are correlated back by request id.
package relay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/quill-wallet/quill-wallet/internal/logger"
	"github.com/quill-wallet/quill-wallet/pkg/auth"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
)

// Wire message types.
const (
	msgRegisterSigningRequest = "RegisterSigningRequest"
	msgCancelSigningRequest   = "CancelSigningRequest"
	msgSigningRequestAck      = "SigningRequestAck"
	msgSigningResponse        = "SigningResponse"
	msgSigningError           = "SigningError"
)

// DefaultTimeout bounds the wait for a remote signature when the request
// does not specify one.
const DefaultTimeout = 120 * time.Second

const handshakeTimeout = 15 * time.Second

type clientMessage struct {
	Type        string `json:"type"`
	RequestID   string `json:"request_id"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
	Origin      string `json:"origin,omitempty"`
}

type serverMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Signature string `json:"signature,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
	Error     string `json:"error,omitempty"`
}

type qrPayload struct {
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
	Origin      string `json:"origin,omitempty"`
	RequestID   string `json:"request_id"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type inbound struct {
	msg serverMessage
	err error
}

// Config configures a relay Client.
type Config struct {
	// URL is the ws:// or wss:// endpoint of the relay service.
	URL string
	// Origin identifies this application to remote wallets.
	Origin string
	// CallbackURL is embedded in QR payloads for wallets that respond
	// over HTTP instead of the relay socket.
	CallbackURL string
	// DefaultTimeout replaces the package default wait bound when
	// positive.
	DefaultTimeout time.Duration
}

// Client is a SigningRelay over one shared WebSocket connection. The
// connection is dialed lazily and redialed on the next request after a
// failure.
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan inbound

	writeMu sync.Mutex
}

var _ auth.SigningRelay = (*Client)(nil)

// New creates a relay client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("relay URL is required")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	return &Client{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 3),
		pending: make(map[string]chan inbound),
	}, nil
}

// RequestSignature registers a signing request with the relay, surfaces
// the QR payload, and waits for the remote wallet's response within the
// request timeout.
func (c *Client) RequestSignature(ctx context.Context, req auth.SigningRequest) (auth.SigningResult, error) {
	if req.Message == "" {
		return auth.SigningResult{}, apperrors.Validation("signing request message cannot be empty")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return auth.SigningResult{}, contextError(err)
	}

	requestID := uuid.NewString()
	ch := make(chan inbound, 4)
	if err := c.register(requestID, ch); err != nil {
		return auth.SigningResult{}, apperrors.External(apperrors.ErrCodeRelayError, "Failed to reach signing relay", err)
	}
	defer c.unregister(requestID)

	err := c.write(clientMessage{
		Type:        msgRegisterSigningRequest,
		RequestID:   requestID,
		Message:     hex.EncodeToString([]byte(req.Message)),
		Description: req.Description,
		Origin:      c.origin(req),
	})
	if err != nil {
		return auth.SigningResult{}, apperrors.External(apperrors.ErrCodeRelayError, "Failed to send signing request", err)
	}

	if req.OnPending != nil {
		payload, err := json.Marshal(qrPayload{
			Message:     req.Message,
			Description: req.Description,
			Origin:      c.origin(req),
			RequestID:   requestID,
			CallbackURL: c.cfg.CallbackURL,
		})
		if err == nil {
			req.OnPending(string(payload))
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.cancel(requestID)
			return auth.SigningResult{}, contextError(ctx.Err())

		case <-timer.C:
			c.cancel(requestID)
			return auth.SigningResult{}, apperrors.Timeout("signing request")

		case in := <-ch:
			if in.err != nil {
				return auth.SigningResult{}, apperrors.External(apperrors.ErrCodeRelayError, "Relay connection lost", in.err)
			}
			switch in.msg.Type {
			case msgSigningRequestAck:
				logger.Debug(ctx, "signing request acknowledged", "request_id", requestID)
				if req.OnAck != nil {
					req.OnAck()
				}

			case msgSigningError:
				return auth.SigningResult{}, apperrors.NewWithDetail(
					apperrors.KindAuth,
					apperrors.ErrCodeSigningRejected,
					"Signing request was rejected",
					in.msg.Error,
				)

			case msgSigningResponse:
				return decodeResult(in.msg)

			default:
				logger.Debug(ctx, "ignoring unexpected relay message", "type", in.msg.Type)
			}
		}
	}
}

// Close tears down the relay connection. Pending requests fail with a
// connection error.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) origin(req auth.SigningRequest) string {
	if req.Origin != "" {
		return req.Origin
	}
	return c.cfg.Origin
}

// register ensures the connection is up and installs the response
// channel for the request id.
func (c *Client) register(requestID string, ch chan inbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, _, err := c.dialer.Dial(c.cfg.URL, nil)
		if err != nil {
			return fmt.Errorf("failed to dial relay: %w", err)
		}
		c.conn = conn
		go c.readLoop(conn)
	}
	c.pending[requestID] = ch
	return nil
}

func (c *Client) unregister(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// cancel notifies the relay that the request is abandoned. Best effort;
// the correlation entry is cleared by the caller's deferred unregister.
func (c *Client) cancel(requestID string) {
	_ = c.write(clientMessage{Type: msgCancelSigningRequest, RequestID: requestID})
}

func (c *Client) write(msg clientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("relay connection is not open")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// readLoop routes inbound messages to their pending requests. On read
// failure every pending request is failed and the connection is dropped
// so the next request redials.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			for id, ch := range c.pending {
				select {
				case ch <- inbound{err: err}:
				default:
				}
				delete(c.pending, id)
			}
			c.mu.Unlock()
			conn.Close()
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		c.mu.Unlock()
		if !ok {
			logger.Debug(context.Background(), "dropping relay message for unknown request", "type", msg.Type, "request_id", msg.RequestID)
			continue
		}
		select {
		case ch <- inbound{msg: msg}:
		default:
		}
	}
}

func decodeResult(msg serverMessage) (auth.SigningResult, error) {
	signature, err := hex.DecodeString(msg.Signature)
	if err != nil || len(signature) != 65 {
		return auth.SigningResult{}, apperrors.InvalidSignature(
			fmt.Sprintf("relay returned malformed signature (%d hex chars)", len(msg.Signature)),
		)
	}
	publicKey, err := hex.DecodeString(msg.PublicKey)
	if err != nil || len(publicKey) != 33 {
		return auth.SigningResult{}, apperrors.InvalidSignature("relay returned malformed public key")
	}
	return auth.SigningResult{Signature: signature, PublicKey: publicKey}, nil
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout("signing request")
	}
	return apperrors.New(apperrors.KindState, apperrors.ErrCodeCancelled, "Signing request cancelled")
}
