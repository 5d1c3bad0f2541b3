package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// EndpointsConfig holds the raw contract identities as configured.
type EndpointsConfig struct {
	Token        string
	Subscription string
}

// Endpoints holds the validated contract identities.
// It is immutable once parsed.
type Endpoints struct {
	Token        common.Address
	Subscription common.Address
}

// ParseEndpoints validates both identities as well-formed, non-zero, distinct addresses.
// Mixed-case input must carry a correct EIP-55 checksum.
func ParseEndpoints(cfg EndpointsConfig) (Endpoints, error) {
	token, err := parseIdentity("token", cfg.Token)
	if err != nil {
		return Endpoints{}, err
	}

	subscription, err := parseIdentity("subscription", cfg.Subscription)
	if err != nil {
		return Endpoints{}, err
	}

	if token == subscription {
		return Endpoints{}, suberr.WithSuggestion(
			suberr.WithDetails(suberr.ErrConfiguration, map[string]string{
				"reason": "token and subscription contracts are the same address",
			}),
			"set contracts.token and contracts.subscription to different addresses",
		)
	}

	return Endpoints{Token: token, Subscription: subscription}, nil
}

func parseIdentity(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)

	if len(raw) != 42 || !strings.HasPrefix(raw, "0x") || !common.IsHexAddress(raw) {
		return common.Address{}, configError(field, raw, "not a 0x-prefixed 20-byte hex address")
	}

	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, configError(field, raw, "zero address")
	}

	hexPart := raw[2:]
	mixed := hexPart != strings.ToLower(hexPart) && hexPart != strings.ToUpper(hexPart)
	if mixed && addr.Hex() != raw {
		return common.Address{}, configError(field, raw, "checksum mismatch, expected "+addr.Hex())
	}

	return addr, nil
}

func configError(field, value, reason string) error {
	return suberr.WithSuggestion(
		suberr.WithDetails(suberr.ErrConfiguration, map[string]string{
			"field":  field,
			"value":  value,
			"reason": reason,
		}),
		"set contracts."+field+" in config.yaml to the deployed contract address",
	)
}
