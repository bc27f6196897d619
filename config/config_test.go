package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/quotify/types"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvNodeURL, EnvModuleAddress, EnvPrivateKey, EnvGeminiAPIKey, EnvListen} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "quotify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chain:
  node_url: http://localhost:8080/v1
  module_address: "0xC0FFEE"
  finality_timeout: 30s
wallet:
  private_key: "0x01"
logging:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1", cfg.Chain.NodeURL)
	assert.Equal(t, 30*time.Second, cfg.GetFinalityTimeout())
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched fields keep their defaults.
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, uint64(2000), cfg.Wallet.MaxGasAmount)
	assert.Equal(t, types.ModuleID{Address: "0xc0ffee", Name: "RandomQuote"}, cfg.Module())
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chain: [unterminated"), 0o600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvNodeURL, "http://env-node/v1")
	t.Setenv(EnvModuleAddress, "0xenv")
	t.Setenv(EnvPrivateKey, "0xkey")
	t.Setenv(EnvGeminiAPIKey, "gem-key")
	t.Setenv(EnvListen, ":9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://env-node/v1", cfg.Chain.NodeURL)
	assert.Equal(t, "0xenv", cfg.Chain.ModuleAddress)
	assert.Equal(t, "0xkey", cfg.Wallet.PrivateKey)
	assert.Equal(t, "gem-key", cfg.AI.APIKey)
	assert.Equal(t, ":9999", cfg.Server.Listen)
	assert.True(t, cfg.AIEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing key", func(c *Config) {}, "private key not configured"},
		{"simulate needs no key", func(c *Config) { c.Chain.Simulate = true }, ""},
		{"missing module", func(c *Config) { c.Chain.ModuleAddress = "" }, "module address not configured"},
		{"bad duration", func(c *Config) {
			c.Wallet.PrivateKey = "0x01"
			c.Chain.PollInterval = "soon"
		}, "invalid chain.poll_interval"},
		{"bad format", func(c *Config) {
			c.Chain.Simulate = true
			c.Logging.Format = "xml"
		}, "invalid logging format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 30*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, time.Second, cfg.GetPollInterval())
	assert.Equal(t, 2*time.Minute, cfg.GetFinalityTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetExpiration())
	assert.Equal(t, 30*time.Second, cfg.GetAITimeout())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "quotify.yaml")
	cfg := DefaultConfig()
	cfg.Chain.Simulate = true
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Chain.Simulate)
}
