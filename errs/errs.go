// Package errs provides shared errors for the divine bus, grouped by layer
// (seal, transport, rpc, config, bus). Check errors with errors.Is(err, errs.ErrX).
// Wire code mapping lives in the rpc package.
package errs

import (
	"errors"
	"fmt"
)

// Seal errors (key derivation and envelope open failures). Both open
// failures are recoverable at the connection level: the peer gets a
// structured error response and the loop continues.

var (
	ErrEmptySecret     = errors.New("seal: empty secret")
	ErrInvalidEnvelope = errors.New("seal: envelope too short")
	ErrAuthentication  = errors.New("seal: authentication failed")
)

// Transport errors (framing). ErrConnIdle is the normal way an idle
// connection ends, not a failure. ErrFrameTooLarge and ErrTruncatedFrame
// are fatal for the connection.

var (
	ErrFrameTooLarge  = errors.New("transport: frame exceeds max size")
	ErrTruncatedFrame = errors.New("transport: truncated frame")
	ErrConnIdle       = errors.New("transport: connection idle")
	ErrClosed         = errors.New("transport: connection closed")
)

func ErrReadBody(err error) error {
	return fmt.Errorf("read frame body: %v: %w", err, ErrTruncatedFrame)
}

// Registry errors.

var ErrRegistryFrozen = errors.New("rpc: registry frozen; register handlers before the bus starts")

// Config errors.

var (
	ErrNoSharedSecret     = errors.New("config: shared secret is required")
	ErrInvalidPort        = errors.New("config: port out of range")
	ErrMaxMessageTooSmall = errors.New("config: max message size below minimum envelope size")
)

func ErrInvalidPortf(port int) error {
	return fmt.Errorf("port %d out of range [0, 65535]: %w", port, ErrInvalidPort)
}

// Bus errors.

func ErrListen(addr string, err error) error {
	return fmt.Errorf("listen %s: %w", addr, err)
}
