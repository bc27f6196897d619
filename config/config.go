// Package config loads quotify settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blockberries/quotify/types"
)

// Config is the complete client configuration.
type Config struct {
	Chain   ChainConfig   `yaml:"chain"`
	Wallet  WalletConfig  `yaml:"wallet"`
	AI      AIConfig      `yaml:"ai"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// ChainConfig selects the node and the deployed module.
type ChainConfig struct {
	NodeURL         string `yaml:"node_url"`
	ModuleAddress   string `yaml:"module_address"`
	ModuleName      string `yaml:"module_name"`
	RequestTimeout  string `yaml:"request_timeout"`
	PollInterval    string `yaml:"poll_interval"`
	FinalityTimeout string `yaml:"finality_timeout"`
	// Simulate replaces the node with an in-memory chain.
	Simulate bool `yaml:"simulate"`
}

// WalletConfig holds the signing key and transaction parameters.
type WalletConfig struct {
	PrivateKey   string `yaml:"private_key"`
	Address      string `yaml:"address,omitempty"`
	MaxGasAmount uint64 `yaml:"max_gas_amount"`
	GasUnitPrice uint64 `yaml:"gas_unit_price"`
	Expiration   string `yaml:"expiration"`
}

// AIConfig configures the quote generator. Generation is disabled
// when APIKey is empty.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Prompt  string `yaml:"prompt,omitempty"`
	Timeout string `yaml:"timeout"`
}

// ServerConfig configures the gRPC listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Environment variables that override file settings.
const (
	EnvNodeURL       = "QUOTIFY_NODE_URL"
	EnvModuleAddress = "QUOTIFY_MODULE_ADDRESS"
	EnvPrivateKey    = "QUOTIFY_PRIVATE_KEY"
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvListen        = "QUOTIFY_LISTEN"
)

// DefaultConfig returns settings for the public devnet deployment.
func DefaultConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			NodeURL:         "https://fullnode.devnet.aptoslabs.com/v1",
			ModuleAddress:   "0x7dbdf51172331c1f93ba9e5bf06c9bcd69b21b6cde2a3e198a167bf980fe81e3",
			ModuleName:      types.DefaultModuleName,
			RequestTimeout:  "30s",
			PollInterval:    "1s",
			FinalityTimeout: "2m",
		},
		Wallet: WalletConfig{
			MaxGasAmount: 2000,
			GasUnitPrice: 100,
			Expiration:   "60s",
		},
		AI: AIConfig{
			Model:   "gemini-1.5-flash",
			Timeout: "30s",
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:7460",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// The file may hold a private key.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvNodeURL); v != "" {
		c.Chain.NodeURL = v
	}
	if v := os.Getenv(EnvModuleAddress); v != "" {
		c.Chain.ModuleAddress = v
	}
	if v := os.Getenv(EnvPrivateKey); v != "" {
		c.Wallet.PrivateKey = v
	}
	if v := os.Getenv(EnvGeminiAPIKey); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Server.Listen = v
	}
}

// Module returns the configured module identity.
func (c *Config) Module() types.ModuleID {
	name := c.Chain.ModuleName
	if name == "" {
		name = types.DefaultModuleName
	}
	return types.ModuleID{Address: types.Account(c.Chain.ModuleAddress).Normalize(), Name: name}
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetRequestTimeout returns the per-request HTTP timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return duration(c.Chain.RequestTimeout, 30*time.Second)
}

// GetPollInterval returns the transaction status poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return duration(c.Chain.PollInterval, time.Second)
}

// GetFinalityTimeout returns how long to wait for a transaction to
// commit.
func (c *Config) GetFinalityTimeout() time.Duration {
	return duration(c.Chain.FinalityTimeout, 2*time.Minute)
}

// GetExpiration returns the signed transaction lifetime.
func (c *Config) GetExpiration() time.Duration {
	return duration(c.Wallet.Expiration, 60*time.Second)
}

// GetAITimeout returns the generator request timeout.
func (c *Config) GetAITimeout() time.Duration {
	return duration(c.AI.Timeout, 30*time.Second)
}

// AIEnabled reports whether an API key is configured.
func (c *Config) AIEnabled() bool {
	return c.AI.APIKey != ""
}

// ValidLogFormats lists the accepted logging formats.
var ValidLogFormats = []string{"json", "console"}

// Validate checks the settings needed to reach the chain.
func (c *Config) Validate() error {
	if c.Chain.ModuleAddress == "" {
		return fmt.Errorf("module address not configured (set chain.module_address or %s)", EnvModuleAddress)
	}
	if !c.Chain.Simulate {
		if c.Chain.NodeURL == "" {
			return fmt.Errorf("node URL not configured (set chain.node_url or %s)", EnvNodeURL)
		}
		if c.Wallet.PrivateKey == "" {
			return fmt.Errorf("private key not configured (set wallet.private_key or %s)", EnvPrivateKey)
		}
	}
	for _, field := range []struct{ name, value string }{
		{"chain.request_timeout", c.Chain.RequestTimeout},
		{"chain.poll_interval", c.Chain.PollInterval},
		{"chain.finality_timeout", c.Chain.FinalityTimeout},
		{"wallet.expiration", c.Wallet.Expiration},
		{"ai.timeout", c.AI.Timeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", field.name, field.value, err)
		}
	}
	valid := false
	for _, f := range ValidLogFormats {
		if c.Logging.Format == f {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid logging format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}
	return nil
}
