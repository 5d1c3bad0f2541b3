package config

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/mrz1836/subpass/internal/chain"
	"github.com/mrz1836/subpass/internal/chain/eth"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// maxPathSuggestionDistance bounds "did you mean" suggestions for unknown paths.
const maxPathSuggestionDistance = 3

type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

//nolint:gochecknoglobals // Static accessor table
var fields = map[string]field{
	"home": {
		get: func(c *Config) string { return c.Home },
		set: func(c *Config, v string) error { c.Home = v; return nil },
	},
	"network.rpc": {
		get: func(c *Config) string { return c.Network.RPC },
		set: func(c *Config, v string) error { c.Network.RPC = SanitizeURL(v); return nil },
	},
	"network.chain_id": {
		get: func(c *Config) string { return strconv.FormatInt(c.Network.ChainID, 10) },
		set: func(c *Config, v string) error {
			if n, ok := chain.NetworkByName(v); ok {
				c.Network.ChainID = int64(n.ChainID) //nolint:gosec // Known chain IDs fit in int64
				return nil
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				return invalidValue(v, "a positive integer or one of "+strings.Join(networkNames(), ", "))
			}
			c.Network.ChainID = n
			return nil
		},
	},
	"network.rate_limit": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Network.RateLimit, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
				return invalidValue(v, "requests per second, 0 to disable")
			}
			c.Network.RateLimit = f
			return nil
		},
	},
	"network.rate_burst": intField(
		func(c *Config) *int { return &c.Network.RateBurst }, 1, math.MaxInt32),
	"contracts.token": {
		get: func(c *Config) string { return c.Contracts.Token },
		set: func(c *Config, v string) error { return setAddress(&c.Contracts.Token, v) },
	},
	"contracts.subscription": {
		get: func(c *Config) string { return c.Contracts.Subscription },
		set: func(c *Config, v string) error { return setAddress(&c.Contracts.Subscription, v) },
	},
	"contracts.token_symbol": {
		get: func(c *Config) string { return c.Contracts.TokenSymbol },
		set: func(c *Config, v string) error { c.Contracts.TokenSymbol = strings.TrimSpace(v); return nil },
	},
	"contracts.token_decimals": intField(
		func(c *Config) *int { return &c.Contracts.TokenDecimals }, 0, 36),
	"confirmation.timeout_seconds": intField(
		func(c *Config) *int { return &c.Confirmation.TimeoutSeconds }, 1, 86400),
	"confirmation.poll_interval_ms": intField(
		func(c *Config) *int { return &c.Confirmation.PollIntervalMS }, 100, 600000),
	"signer.key_file": {
		get: func(c *Config) string { return c.Signer.KeyFile },
		set: func(c *Config, v string) error { c.Signer.KeyFile = v; return nil },
	},
	"signer.gas_speed":          enumField(func(c *Config) *string { return &c.Signer.GasSpeed }, "slow", "medium", "fast"),
	"signer.unlock_ttl_minutes": intField(func(c *Config) *int { return &c.Signer.UnlockTTLMinutes }, 1, 60),
	"output.default_format":     enumField(func(c *Config) *string { return &c.Output.DefaultFormat }, "auto", "text", "json"),
	"output.color":              enumField(func(c *Config) *string { return &c.Output.Color }, "auto", "always", "never"),
	"output.verbose": {
		get: func(c *Config) string { return strconv.FormatBool(c.Output.Verbose) },
		set: func(c *Config, v string) error { c.Output.Verbose = parseBool(v); return nil },
	},
	"logging.level": enumField(func(c *Config) *string { return &c.Logging.Level }, "off", "error", "debug"),
	"logging.file": {
		get: func(c *Config) string { return c.Logging.File },
		set: func(c *Config, v string) error { c.Logging.File = v; return nil },
	},
	"metrics.listen": {
		get: func(c *Config) string { return c.Metrics.Listen },
		set: func(c *Config, v string) error { c.Metrics.Listen = strings.TrimSpace(v); return nil },
	},
}

func intField(ptr func(*Config) *int, minimum, maximum int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*ptr(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n < minimum || n > maximum {
				return invalidValue(v, fmt.Sprintf("an integer from %d to %d", minimum, maximum))
			}
			*ptr(c) = n
			return nil
		},
	}
}

func enumField(ptr func(*Config) *string, valid ...string) field {
	return field{
		get: func(c *Config) string { return *ptr(c) },
		set: func(c *Config, v string) error {
			v = strings.ToLower(strings.TrimSpace(v))
			if !slices.Contains(valid, v) {
				return invalidValue(v, strings.Join(valid, ", "))
			}
			*ptr(c) = v
			return nil
		},
	}
}

// setAddress stores a well-formed address lowercased. Whether it is usable
// as a contract endpoint is decided by the controller.
func setAddress(dst *string, v string) error {
	addr, err := eth.ParseAddress(v)
	if err != nil {
		return err
	}
	*dst = strings.ToLower(addr.Hex())
	return nil
}

func invalidValue(v, valid string) error {
	return suberr.WithDetails(suberr.ErrInvalidInput, map[string]string{"value": v, "valid": valid})
}

// Keys returns every settable dot path, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Get returns the value at a dot path such as "network.rpc".
func (c *Config) Get(path string) (string, error) {
	f, err := lookup(path)
	if err != nil {
		return "", err
	}
	return f.get(c), nil
}

// Set parses and stores value at a dot path.
func (c *Config) Set(path, value string) error {
	f, err := lookup(path)
	if err != nil {
		return err
	}
	return f.set(c, value)
}

func lookup(path string) (field, error) {
	path = strings.ToLower(strings.TrimSpace(path))
	if f, ok := fields[path]; ok {
		return f, nil
	}

	err := suberr.WithDetails(suberr.ErrNotFound, map[string]string{"path": path})
	if s := suggestPath(path); s != "" {
		return field{}, suberr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", s))
	}
	return field{}, suberr.WithSuggestion(err, "run 'subpass config show' to list settings")
}

func suggestPath(path string) string {
	best, bestDist := "", maxPathSuggestionDistance+1
	for _, k := range Keys() {
		if d := levenshtein.ComputeDistance(path, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

func networkNames() []string {
	var names []string
	for _, n := range chain.Networks() {
		names = append(names, n.Name)
	}
	return names
}
