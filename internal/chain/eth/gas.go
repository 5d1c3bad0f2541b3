package eth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/chain/eth/rpc"
	"github.com/mrz1836/subpass/internal/ledger"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// GasSpeed represents the transaction speed preference.
type GasSpeed string

const (
	// GasSpeedSlow uses lower gas price for cheaper, slower transactions.
	GasSpeedSlow GasSpeed = "slow"
	// GasSpeedMedium uses suggested gas price for balanced cost/speed.
	GasSpeedMedium GasSpeed = "medium"
	// GasSpeedFast uses higher gas price for faster confirmation.
	GasSpeedFast GasSpeed = "fast"

	// GasLimitApprove is the fallback gas limit for approve calls.
	GasLimitApprove uint64 = 50000
	// GasLimitSubscribe is the fallback gas limit for subscribe calls.
	GasLimitSubscribe uint64 = 150000

	// slowPercent reduces gas price by 20% for slow transactions.
	slowPercent = 80
	// fastPercent increases gas price by 20% for fast transactions.
	fastPercent = 120
	// headroomPercent pads node estimates, which are exact for the current state.
	headroomPercent = 120
)

// ParseGasSpeed parses a string into a GasSpeed.
func ParseGasSpeed(s string) (GasSpeed, error) {
	switch s {
	case "slow":
		return GasSpeedSlow, nil
	case "", "medium":
		return GasSpeedMedium, nil
	case "fast":
		return GasSpeedFast, nil
	default:
		return "", suberr.WithDetails(suberr.ErrInvalidGasSpeed, map[string]string{
			"speed":   s,
			"allowed": "slow, medium, or fast",
		})
	}
}

// FallbackGasLimit returns the gas limit used when estimation fails.
func FallbackGasLimit(kind ledger.WriteKind) uint64 {
	if kind == ledger.KindApprove {
		return GasLimitApprove
	}
	return GasLimitSubscribe
}

// GasPrice returns the node's suggested gas price adjusted for speed.
func (c *Client) GasPrice(ctx context.Context, speed GasSpeed) (*big.Int, error) {
	suggested, err := c.rpcClient.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting suggested gas price: %w", err)
	}

	switch speed {
	case GasSpeedSlow:
		return scalePercent(suggested, slowPercent), nil
	case GasSpeedFast:
		return scalePercent(suggested, fastPercent), nil
	case GasSpeedMedium:
		return suggested, nil
	default:
		return suggested, nil
	}
}

// EstimateGasLimit asks the node for a gas limit, padded with headroom.
// On failure the per-kind fallback is returned; a reverting estimate is
// surfaced by the node at broadcast, not here.
func (c *Client) EstimateGasLimit(ctx context.Context, from common.Address, call ledger.WriteCall, data []byte) uint64 {
	estimate, err := c.rpcClient.EstimateGas(ctx, rpc.CallMsg{
		From: from.Hex(),
		To:   call.Contract.Hex(),
		Data: data,
	})
	if err != nil || estimate == 0 {
		c.logger.Debug("gas estimate for %s failed, using fallback: %v", call.Kind, err)
		return FallbackGasLimit(call.Kind)
	}
	return scalePercent(new(big.Int).SetUint64(estimate), headroomPercent).Uint64()
}

// FormatGasPrice formats a gas price in wei to a human-readable Gwei string.
func FormatGasPrice(weiPrice *big.Int) string {
	if weiPrice == nil {
		return "0 Gwei"
	}

	gwei := new(big.Float).SetInt(weiPrice)
	gwei.Quo(gwei, new(big.Float).SetInt64(1_000_000_000))

	return fmt.Sprintf("%.2f Gwei", gwei)
}

// scalePercent returns n * percent / 100, truncated.
func scalePercent(n *big.Int, percent int64) *big.Int {
	result := new(big.Int).Mul(n, big.NewInt(percent))
	return result.Quo(result, big.NewInt(100))
}
