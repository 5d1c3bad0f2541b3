package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome                 = "SUBPASS_HOME"
	EnvRPC                  = "SUBPASS_RPC"
	EnvTokenContract        = "SUBPASS_TOKEN_CONTRACT"
	EnvSubscriptionContract = "SUBPASS_SUBSCRIPTION_CONTRACT"
	EnvOutputFormat         = "SUBPASS_OUTPUT_FORMAT"
	EnvVerbose              = "SUBPASS_VERBOSE"
	EnvLogLevel             = "SUBPASS_LOG_LEVEL"
	EnvKeyFile              = "SUBPASS_KEY_FILE"
	EnvKeyPassword          = "SUBPASS_KEY_PASSWORD" // #nosec G101 -- variable name, not a credential
	EnvConfirmTimeout       = "SUBPASS_CONFIRM_TIMEOUT"
	EnvNoColor              = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
// SUBPASS_KEY_PASSWORD is read by the signer at unlock time, never stored here.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvRPC); v != "" {
		cfg.Network.RPC = SanitizeURL(v)
	}

	if v := os.Getenv(EnvTokenContract); v != "" {
		cfg.Contracts.Token = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvSubscriptionContract); v != "" {
		cfg.Contracts.Subscription = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvKeyFile); v != "" {
		cfg.Signer.KeyFile = v
	}

	// Seconds
	if v := os.Getenv(EnvConfirmTimeout); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Confirmation.TimeoutSeconds = secs
		}
	}

	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// KeyPassword returns the non-interactive key password, if set.
func KeyPassword() (string, bool) {
	v, ok := os.LookupEnv(EnvKeyPassword)
	return v, ok && v != ""
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string by removing invalid characters and trimming whitespace.
// Useful for RPC URLs that carry copy-paste artifacts.
func SanitizeURL(url string) string {
	return sanitize.URL(strings.TrimSpace(url))
}
