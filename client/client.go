// Package client implements the dialing side of the divine bus channel: it
// seals requests, writes one frame per call, and opens the sealed response.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MKWorldWide/divinebus/config"
	"github.com/MKWorldWide/divinebus/protocol"
	"github.com/MKWorldWide/divinebus/seal"
	"github.com/MKWorldWide/divinebus/transport"
)

// DefaultCallTimeout bounds a Call when the context carries no deadline.
const DefaultCallTimeout = 30 * time.Second

// Client is one dialed channel peer. Calls are serialized: within one
// connection, request N's response always precedes request N+1.
type Client struct {
	mu             sync.Mutex
	conn           *transport.Conn
	key            seal.Key
	maxMessageSize uint32
	callTimeout    time.Duration
}

// Option adjusts client construction.
type Option func(*Client)

// WithMaxMessageSize overrides the frame size cap (default 1 MiB).
func WithMaxMessageSize(n uint32) Option {
	return func(c *Client) { c.maxMessageSize = n }
}

// WithCallTimeout overrides the per-call timeout used when the context has
// no deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// Dial connects to addr and derives the channel key from secret using the
// default derivation labels.
func Dial(addr string, secret []byte, opts ...Option) (*Client, error) {
	key, err := seal.DeriveKey(secret, seal.DefaultSalt, seal.DefaultInfo)
	if err != nil {
		return nil, err
	}
	conn, err := transport.Dial(addr)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:           conn,
		key:            key,
		maxMessageSize: config.DefaultMaxMessageSize,
		callTimeout:    DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call issues one RPC and waits for its response. The wire error object is
// returned inside the response, not as a Go error; use Result to unwrap.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := protocol.MarshalJSON(&protocol.Request{Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	envelope, err := seal.Seal(c.key, payload)
	if err != nil {
		return nil, err
	}
	if err := c.conn.WriteFrame(envelope, c.maxMessageSize); err != nil {
		return nil, err
	}

	timeout := c.callTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	respEnvelope, err := c.conn.ReadFrame(c.maxMessageSize, timeout, timeout)
	if err != nil {
		return nil, err
	}
	respPayload, err := seal.Open(c.key, respEnvelope)
	if err != nil {
		return nil, err
	}
	var resp protocol.Response
	if err := protocol.UnmarshalJSON(respPayload, &resp); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	return &resp, nil
}

// Result issues a call and unwraps the result, surfacing a wire error as a
// *protocol.RPCError.
func (c *Client) Result(ctx context.Context, method string, params map[string]any) (any, error) {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// Ping checks liveness of the peer.
func (c *Client) Ping(ctx context.Context) (map[string]any, error) {
	return c.resultMap(ctx, "ping", nil)
}

// RestartModule asks the peer to restart the named module.
func (c *Client) RestartModule(ctx context.Context, module string) (map[string]any, error) {
	return c.resultMap(ctx, "restart_module", map[string]any{"module": module})
}

// Metrics fetches the peer's metrics snapshot.
func (c *Client) Metrics(ctx context.Context) (map[string]any, error) {
	return c.resultMap(ctx, "get_metrics", nil)
}

// Heartbeat synchronizes a heartbeat with the peer.
func (c *Client) Heartbeat(ctx context.Context) (map[string]any, error) {
	return c.resultMap(ctx, "sync_heartbeat", nil)
}

// SendAlert delivers an alert to the peer. Level defaults to "info" on the
// peer side when empty.
func (c *Client) SendAlert(ctx context.Context, message, level string) (map[string]any, error) {
	params := map[string]any{"message": message}
	if level != "" {
		params["level"] = level
	}
	return c.resultMap(ctx, "send_alert", params)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) resultMap(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	result, err := c.Result(ctx, method, params)
	if err != nil {
		return nil, err
	}
	m, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, result)
	}
	return m, nil
}
