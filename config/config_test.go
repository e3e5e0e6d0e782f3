package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MKWorldWide/divinebus/errs"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, DefaultHost, cfg.Host)
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, DefaultAuthTimeout, cfg.AuthTimeout)
	require.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)
	require.EqualValues(t, DefaultMaxMessageSize, cfg.MaxMessageSize)
	require.Len(t, cfg.SharedSecret, 64) // 32 random bytes, hex encoded
	require.NoError(t, cfg.Validate())
}

func TestDefault_SecretsDiffer(t *testing.T) {
	require.NotEqual(t, Default().SharedSecret, Default().SharedSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	require.Equal(t, DefaultHost, cfg.Host)
	require.NotEmpty(t, cfg.SharedSecret)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "athena.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"host": "127.0.0.1",
		"port": 9100,
		"shared_secret": "deadbeef",
		"auth_timeout": 2.5,
		"max_message_size": 4096
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 9100, cfg.Port)
	require.Equal(t, "deadbeef", cfg.SharedSecret)
	require.Equal(t, 2500*time.Millisecond, cfg.AuthTimeout)
	require.EqualValues(t, 4096, cfg.MaxMessageSize)
	// Unset keys keep their defaults.
	require.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "athena.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.SharedSecret = ""
	require.ErrorIs(t, cfg.Validate(), errs.ErrNoSharedSecret)

	cfg = Default()
	cfg.Port = 70000
	require.ErrorIs(t, cfg.Validate(), errs.ErrInvalidPort)

	cfg = Default()
	cfg.MaxMessageSize = 27
	require.ErrorIs(t, cfg.Validate(), errs.ErrMaxMessageTooSmall)
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.Host = "10.0.0.5"
	cfg.Port = 9001
	require.Equal(t, "10.0.0.5:9001", cfg.Addr())
}
