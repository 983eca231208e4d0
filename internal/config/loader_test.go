package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	logger := zerolog.Nop()

	cfg, resolved, err := Load(&logger, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default(), cfg)

	// The default file was materialized for the operator to edit.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("addr: \":9999\"\nlog_level: debug\nnotify_interval: 1s\njwt_secret: filesecret\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	logger := zerolog.Nop()
	cfg, _, err := Load(&logger, path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.NotifyInterval)
	assert.Equal(t, "filesecret", cfg.JWTSecret)
	// Untouched keys keep their defaults.
	assert.Equal(t, Default().DatabasePath, cfg.DatabasePath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9999\"\n"), 0o600))
	t.Setenv("PRIVCHAT_ADDR", ":7777")

	logger := zerolog.Nop()
	cfg, _, err := Load(&logger, path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Addr)
}

func TestValidateRequiresSecrets(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "jwt secret missing")

	cfg.JWTSecret = "s"
	assert.Error(t, cfg.Validate(), "crypto key missing")

	cfg.CryptoKey = "k"
	assert.NoError(t, cfg.Validate())
}
