// Package config holds the channel settings object consumed by the bus and
// the client. Settings are read from a JSON file (the same shape the
// supervisor writes) and are immutable after construction.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/MKWorldWide/divinebus/errs"
	"github.com/MKWorldWide/divinebus/seal"
)

// Defaults for the channel settings.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 9001
	DefaultAuthTimeout    = 5 * time.Second
	DefaultIdleTimeout    = 30 * time.Second
	DefaultMaxMessageSize = 1 << 20
)

// Config is the channel settings object.
type Config struct {
	Host string
	Port int
	// SharedSecret is the pre-shared secret both peers derive the channel
	// key from. Consumed as raw bytes; never transmitted or logged.
	SharedSecret string
	// AuthTimeout bounds the body read of an in-flight frame. Timing out
	// here is fatal for the connection.
	AuthTimeout time.Duration
	// IdleTimeout bounds the wait for the next frame's length prefix.
	// Timing out here ends the connection gracefully.
	IdleTimeout time.Duration
	// MaxMessageSize caps the envelope size of a single frame.
	MaxMessageSize uint32
	// MaxRequestsPerSec enables the bus-wide rate limiter when > 0.
	MaxRequestsPerSec float64
}

// Default returns the default settings with a freshly generated random
// 32-byte secret. The generated secret exists only in memory; both peers
// must share a configured secret to interoperate.
func Default() Config {
	return Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		SharedSecret:   randomSecret(),
		AuthTimeout:    DefaultAuthTimeout,
		IdleTimeout:    DefaultIdleTimeout,
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

// Load reads the JSON settings object at path. A missing file falls back to
// Default; any other read error is returned.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if v.IsSet("host") {
		cfg.Host = v.GetString("host")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetInt("port")
	}
	if v.IsSet("shared_secret") {
		cfg.SharedSecret = v.GetString("shared_secret")
	}
	if v.IsSet("auth_timeout") {
		cfg.AuthTimeout = secondsToDuration(v.GetFloat64("auth_timeout"))
	}
	if v.IsSet("idle_timeout") {
		cfg.IdleTimeout = secondsToDuration(v.GetFloat64("idle_timeout"))
	}
	if v.IsSet("max_message_size") {
		cfg.MaxMessageSize = v.GetUint32("max_message_size")
	}
	if v.IsSet("max_requests_per_sec") {
		cfg.MaxRequestsPerSec = v.GetFloat64("max_requests_per_sec")
	}
	return cfg, cfg.Validate()
}

// Validate checks the invariants the bus relies on.
func (c Config) Validate() error {
	if c.SharedSecret == "" {
		return errs.ErrNoSharedSecret
	}
	if c.Port < 0 || c.Port > 65535 {
		return errs.ErrInvalidPortf(c.Port)
	}
	if c.MaxMessageSize < seal.MinEnvelopeSize {
		return errs.ErrMaxMessageTooSmall
	}
	return nil
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SecretBytes returns the shared secret as key-derivation input.
func (c Config) SecretBytes() []byte {
	return []byte(c.SharedSecret)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means no secure secret is possible at all.
		panic(fmt.Sprintf("config: generate secret: %v", err))
	}
	return hex.EncodeToString(buf)
}
