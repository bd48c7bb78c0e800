// Package events subscribes to per-account wallet notifications over the
// chain's event WebSocket. Reconnection is the caller's concern; a
// dropped stream simply closes the channel.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quill-wallet/quill-wallet/internal/logger"
	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
	"github.com/quill-wallet/quill-wallet/pkg/types"
)

const handshakeTimeout = 15 * time.Second

// Client dials the event stream endpoint.
type Client struct {
	url    string
	dialer *websocket.Dialer
}

// New creates an event client for the ws:// or wss:// stream URL.
func New(streamURL string) (*Client, error) {
	if streamURL == "" {
		return nil, fmt.Errorf("event stream URL is required")
	}
	return &Client{
		url:    streamURL,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}, nil
}

// Subscribe opens a stream of events for the account. The returned
// channel closes when ctx ends or the connection drops.
func (c *Client) Subscribe(ctx context.Context, account string) (<-chan types.StreamEvent, error) {
	endpoint := c.url + "?account=" + url.QueryEscape(account)
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, apperrors.External(apperrors.ErrCodeRelayError, "Failed to open event stream", err)
	}

	out := make(chan types.StreamEvent, 16)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var ev types.StreamEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					logger.Debug(ctx, "event stream closed", "account", account, "error", err)
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// WaitForSessionKey blocks until a session_key_added event for the given
// public key arrives on the account's stream.
func (c *Client) WaitForSessionKey(ctx context.Context, account, publicKey string) error {
	events, err := c.Subscribe(ctx, account)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return waitError(ctx.Err())
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return waitError(ctx.Err())
				}
				return apperrors.External(apperrors.ErrCodeRelayError, "Event stream ended", nil)
			}
			if ev.Type != types.EventSessionKeyAdded {
				continue
			}
			var data types.SessionKeyEventData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				continue
			}
			if data.Key == publicKey {
				return nil
			}
		}
	}
}

func waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout("session key confirmation")
	}
	return apperrors.New(apperrors.KindState, apperrors.ErrCodeCancelled, "Session key wait cancelled")
}
