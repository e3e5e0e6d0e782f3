// Package bus hosts the divine bus server: the listener lifecycle and one
// connection actor per accepted socket running the
// read-decrypt-dispatch-encrypt-write loop.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MKWorldWide/divinebus/config"
	"github.com/MKWorldWide/divinebus/errs"
	"github.com/MKWorldWide/divinebus/metrics"
	"github.com/MKWorldWide/divinebus/protocol"
	"github.com/MKWorldWide/divinebus/rpc"
	"github.com/MKWorldWide/divinebus/seal"
	"github.com/MKWorldWide/divinebus/transport"
)

// State is the server lifecycle state.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Bus is one secure RPC channel endpoint. Construct with New, register any
// collaborator handlers on Registry, then Start. The registry is frozen at
// Start; the symmetric key is derived once and shared read-only across all
// connection actors.
type Bus struct {
	cfg      config.Config
	key      seal.Key
	registry *rpc.Registry
	logger   *zap.Logger

	state    atomic.Int32
	mu       sync.Mutex // guards ln and start/stop transitions
	ln       *transport.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup
	connSeq  atomic.Uint64
}

// New derives the channel key from the configured shared secret and
// installs the built-in handlers. The key never leaves the bus. Pass a nil
// logger for a no-op logger.
func New(cfg config.Config, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := seal.DeriveKey(cfg.SecretBytes(), seal.DefaultSalt, seal.DefaultInfo)
	if err != nil {
		return nil, err
	}
	logger = logger.Named("bus")

	registry := rpc.NewRegistry()
	if err := registry.Use(rpc.Logging(logger.Named("rpc"))); err != nil {
		return nil, err
	}
	if cfg.MaxRequestsPerSec > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSec), int(cfg.MaxRequestsPerSec)+1)
		if err := registry.Use(rpc.RateLimit(limiter)); err != nil {
			return nil, err
		}
	}
	if err := rpc.RegisterBuiltins(registry, logger, metrics.NewRuntimeCollector()); err != nil {
		return nil, err
	}

	return &Bus{
		cfg:      cfg,
		key:      key,
		registry: registry,
		logger:   logger,
		shutdown: make(chan struct{}),
	}, nil
}

// Registry exposes the method registry for collaborator registration. All
// Register calls must complete before Start; afterwards they fail with
// errs.ErrRegistryFrozen.
func (b *Bus) Registry() *rpc.Registry { return b.registry }

// State returns the current lifecycle state.
func (b *Bus) State() State { return State(b.state.Load()) }

// Addr returns the bound listen address, or "" when not running.
func (b *Bus) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln == nil {
		return ""
	}
	return b.ln.Addr().String()
}

// Start binds the listener and begins accepting connections, one actor
// goroutine per socket. Calling Start on a running bus logs a warning and
// returns nil. Bind failures propagate to the caller.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.State() == Running {
		b.logger.Warn("bus already running")
		return nil
	}
	b.state.Store(int32(Starting))

	ln, err := transport.Listen(b.cfg.Addr())
	if err != nil {
		b.state.Store(int32(Stopped))
		return errs.ErrListen(b.cfg.Addr(), err)
	}
	b.ln = ln
	b.shutdown = make(chan struct{})
	b.registry.Freeze()
	b.state.Store(int32(Running))
	b.logger.Info("bus listening", zap.String("addr", ln.Addr().String()))

	b.wg.Add(1)
	go b.acceptLoop(ln)
	return nil
}

// Stop closes the listener so no new connections are accepted. In-flight
// connection actors are not forcibly cancelled; each observes the shutdown
// signal before its next length-prefix read, so an idle connection may
// linger up to the idle timeout. No-op when not running.
func (b *Bus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.State() != Running {
		return nil
	}
	b.state.Store(int32(Stopping))
	close(b.shutdown)
	err := b.ln.Close()
	b.ln = nil
	b.state.Store(int32(Stopped))
	b.logger.Info("bus stopped")
	return err
}

func (b *Bus) acceptLoop(ln *transport.Listener) {
	defer b.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if b.State() != Running {
				return
			}
			b.logger.Error("accept failed", zap.Error(err))
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.serveConn(conn)
		}()
	}
}

// serveConn is the connection actor. Within one connection requests are
// processed strictly in arrival order, one at a time.
func (b *Bus) serveConn(conn *transport.Conn) {
	id := b.connSeq.Add(1)
	logger := b.logger.With(
		zap.Uint64("conn", id),
		zap.String("remote", conn.RemoteAddr().String()),
	)
	logger.Info("connection opened")
	defer func() {
		_ = conn.Close()
		logger.Info("connection closed")
	}()

	ctx := context.Background()
	for {
		select {
		case <-b.shutdown:
			return
		default:
		}

		envelope, err := conn.ReadFrame(b.cfg.MaxMessageSize, b.cfg.IdleTimeout, b.cfg.AuthTimeout)
		switch {
		case err == nil:
		case errors.Is(err, errs.ErrConnIdle):
			logger.Debug("connection idle or closed by peer")
			return
		case errors.Is(err, errs.ErrFrameTooLarge):
			// The one case where the peer is told before termination.
			logger.Warn("oversized frame")
			b.writeError(conn, logger, protocol.CodeMessageTooLarge, "Message exceeds maximum size")
			return
		default:
			// Truncated frame or unrecoverable socket error.
			logger.Warn("read failed", zap.Error(err))
			return
		}

		resp := b.handleEnvelope(ctx, envelope, logger)
		if err := b.writeResponse(conn, resp); err != nil {
			logger.Warn("write failed", zap.Error(err))
			return
		}
	}
}

// handleEnvelope opens and dispatches one sealed request. Failures here are
// recoverable: the peer gets a structured error and the connection stays
// open, since framing is independent of payload validity.
func (b *Bus) handleEnvelope(ctx context.Context, envelope []byte, logger *zap.Logger) *protocol.Response {
	plaintext, err := seal.Open(b.key, envelope)
	if err != nil {
		logger.Warn("envelope rejected", zap.Error(err))
		return protocol.NewError(protocol.CodeInternalError, err.Error())
	}
	var req protocol.Request
	if err := protocol.UnmarshalJSON(plaintext, &req); err != nil {
		return protocol.NewError(protocol.CodeInternalError, fmt.Sprintf("malformed request: %v", err))
	}
	return b.registry.Dispatch(ctx, &req)
}

func (b *Bus) writeResponse(conn *transport.Conn, resp *protocol.Response) error {
	payload, err := protocol.MarshalJSON(resp)
	if err != nil {
		return err
	}
	envelope, err := seal.Seal(b.key, payload)
	if err != nil {
		return err
	}
	return conn.WriteFrame(envelope, b.cfg.MaxMessageSize)
}

func (b *Bus) writeError(conn *transport.Conn, logger *zap.Logger, code, message string) {
	if err := b.writeResponse(conn, protocol.NewError(code, message)); err != nil {
		logger.Debug("error notice not delivered", zap.Error(err))
	}
}
