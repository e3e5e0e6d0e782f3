// Package testutil provides helpers to spin up a bus on an ephemeral port
// and dial it with a matching client.
package testutil

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MKWorldWide/divinebus/bus"
	"github.com/MKWorldWide/divinebus/client"
	"github.com/MKWorldWide/divinebus/config"
)

// TestSecret is the shared secret used across package tests.
const TestSecret = "a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1"

// TestConfig returns settings suitable for tests: loopback, ephemeral port,
// the shared test secret, and short timeouts so failures surface quickly.
func TestConfig() config.Config {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.SharedSecret = TestSecret
	cfg.IdleTimeout = 2 * time.Second
	cfg.AuthTimeout = 500 * time.Millisecond
	return cfg
}

// StartTestBus builds and starts a bus; mutate adjusts the config before
// construction. The bus is stopped via t.Cleanup.
func StartTestBus(t testing.TB, mutate func(*config.Config)) *bus.Bus {
	t.Helper()

	cfg := TestConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	b, err := bus.New(cfg, logger)
	if err != nil {
		t.Fatalf("bus.New: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("bus.Start: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop() })
	return b
}

// DialTestBus connects a client to the test bus using the shared secret.
func DialTestBus(t testing.TB, b *bus.Bus) *client.Client {
	t.Helper()

	c, err := client.Dial(b.Addr(), []byte(TestSecret))
	if err != nil {
		t.Fatalf("client.Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}
