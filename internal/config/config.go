// Package config provides configuration management for subpass.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/subpass/internal/fileutil"
	"github.com/mrz1836/subpass/internal/ledger"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version      int                `yaml:"version"`
	Home         string             `yaml:"home"`
	Network      NetworkConfig      `yaml:"network"`
	Contracts    ContractsConfig    `yaml:"contracts"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	Signer       SignerConfig       `yaml:"signer"`
	Output       OutputConfig       `yaml:"output"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// NetworkConfig defines the JSON-RPC node the ledger is read through.
type NetworkConfig struct {
	RPC       string  `yaml:"rpc"`
	ChainID   int64   `yaml:"chain_id"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// ContractsConfig holds the two contract identities. They are validated by
// the controller, not at load time.
type ContractsConfig struct {
	Token         string `yaml:"token"`
	Subscription  string `yaml:"subscription"`
	TokenSymbol   string `yaml:"token_symbol"`
	TokenDecimals int    `yaml:"token_decimals"`
}

// ConfirmationConfig bounds how long a broadcast write is watched.
type ConfirmationConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// SignerConfig locates the signing key and sets gas behavior.
type SignerConfig struct {
	KeyFile          string `yaml:"key_file"`
	GasSpeed         string `yaml:"gas_speed"`
	UnlockTTLMinutes int    `yaml:"unlock_ttl_minutes"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// MetricsConfig defines the optional Prometheus listener.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads configuration from the specified file on top of Defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, suberr.WithDetails(suberr.ErrConfigNotFound, map[string]string{"path": path})
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, suberr.WithDetails(suberr.WithCause(suberr.ErrConfigInvalid, err), map[string]string{"path": path})
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteFile(path, data, fileutil.Options{Perm: 0o600, DirPerm: 0o750})
}

// Validate checks the settings that have no safe fallback. Contract
// addresses are deliberately left to the controller.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Network.RPC) == "" {
		problems = append(problems, "network.rpc is empty")
	}
	if c.Network.ChainID <= 0 {
		problems = append(problems, "network.chain_id must be positive")
	}
	if c.Contracts.TokenDecimals < 0 || c.Contracts.TokenDecimals > 36 {
		problems = append(problems, "contracts.token_decimals must be between 0 and 36")
	}
	if c.Confirmation.TimeoutSeconds <= 0 {
		problems = append(problems, "confirmation.timeout_seconds must be positive")
	}
	if len(problems) == 0 {
		return nil
	}
	return suberr.WithDetails(suberr.ErrConfigInvalid, map[string]string{
		"problems": strings.Join(problems, "; "),
	})
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns the default subpass home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".subpass"
	}
	return filepath.Join(home, ".subpass")
}

// ExpandPath replaces a leading ~/ with the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// defaultHomePrefix is how the defaults refer to the home directory.
const defaultHomePrefix = "~/.subpass/"

// Rebase sets Home and moves the home-relative default paths under it.
// Paths that do not start with the default home are left alone.
func (c *Config) Rebase(home string) {
	c.Home = home
	c.Signer.KeyFile = rebase(c.Signer.KeyFile, home)
	c.Logging.File = rebase(c.Logging.File, home)
}

func rebase(path, home string) string {
	if !strings.HasPrefix(path, defaultHomePrefix) {
		return path
	}
	return filepath.Join(ExpandPath(home), path[len(defaultHomePrefix):])
}

// Endpoints returns the raw contract identities for the controller.
func (c *Config) Endpoints() ledger.EndpointsConfig {
	return ledger.EndpointsConfig{
		Token:        c.Contracts.Token,
		Subscription: c.Contracts.Subscription,
	}
}

// ConfirmationTimeout returns the confirmation deadline for one write.
func (c *Config) ConfirmationTimeout() time.Duration {
	return time.Duration(c.Confirmation.TimeoutSeconds) * time.Second
}

// PollInterval returns the receipt polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Confirmation.PollIntervalMS) * time.Millisecond
}

// UnlockTTL returns how long an unlocked key stays cached.
func (c *Config) UnlockTTL() time.Duration {
	return time.Duration(c.Signer.UnlockTTLMinutes) * time.Minute
}

// KeyFilePath returns the expanded signing key path.
func (c *Config) KeyFilePath() string {
	return ExpandPath(c.Signer.KeyFile)
}

// UnlockDir returns the directory holding cached unlocks.
func (c *Config) UnlockDir() string {
	return filepath.Join(ExpandPath(c.Home), "unlock")
}

// String renders a short one-line summary for debug logs.
func (c *Config) String() string {
	return fmt.Sprintf("rpc=%s chain=%d token=%s subscription=%s",
		SanitizeURL(c.Network.RPC), c.Network.ChainID, c.Contracts.Token, c.Contracts.Subscription)
}
