// Package eth adapts an Ethereum JSON-RPC node to the ledger interfaces:
// the four subscription reads, confirmation waiting, and a key-backed signer.
package eth

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/chain"
	"github.com/mrz1836/subpass/internal/chain/eth/rpc"
	"github.com/mrz1836/subpass/internal/ledger"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

const (
	// NativeDecimals is the number of decimals for ETH.
	NativeDecimals = 18

	// DefaultPollInterval is how often a pending receipt is polled.
	DefaultPollInterval = 2 * time.Second
)

// ErrRPCURLRequired indicates the RPC URL was not provided.
var ErrRPCURLRequired = &suberr.SubpassError{
	Code:     "ETH_RPC_URL_REQUIRED",
	Message:  "RPC URL is required",
	ExitCode: suberr.ExitInput,
}

// Logger is the logging surface the adapter uses.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// ClientOptions contains optional configuration for the ETH client.
type ClientOptions struct {
	// ChainID is the chain the node must serve. Nil accepts whatever the node reports.
	ChainID *big.Int
	// Transport overrides the default HTTP transport for the underlying RPC client.
	Transport http.RoundTripper
	// RequestTimeout bounds a single RPC round trip.
	RequestTimeout time.Duration
	// PollInterval is the receipt polling interval. Zero uses DefaultPollInterval.
	PollInterval time.Duration
	// Limiter throttles RPC calls.
	Limiter *chain.RateLimiter
	// Observer is notified after every RPC call.
	Observer rpc.Observer
	// Retry overrides the read retry policy. Nil uses chain.ReadRetryConfig.
	Retry *chain.RetryConfig
	// Logger receives debug output. Nil discards it.
	Logger Logger
}

// Compile-time interface checks
var (
	_ ledger.Ledger = (*Client)(nil)
)

// Client reads subscription state from, and waits for transactions on, one node.
type Client struct {
	rpcClient    *rpc.Client
	expected     *big.Int
	pollInterval time.Duration
	retry        chain.RetryConfig
	logger       Logger

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient creates a new ETH client.
func NewClient(rpcURL string, opts *ClientOptions) (*Client, error) {
	if rpcURL == "" {
		return nil, ErrRPCURLRequired
	}
	if opts == nil {
		opts = &ClientOptions{}
	}

	c := &Client{
		rpcClient: rpc.NewClientWithOptions(rpcURL, &rpc.ClientOptions{
			Transport: opts.Transport,
			Timeout:   opts.RequestTimeout,
			Limiter:   opts.Limiter,
			Observer:  opts.Observer,
		}),
		expected:     opts.ChainID,
		pollInterval: opts.PollInterval,
		retry:        chain.ReadRetryConfig(),
		logger:       opts.Logger,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}

	return c, nil
}

// RPC exposes the underlying JSON-RPC client for the signer.
func (c *Client) RPC() *rpc.Client {
	return c.rpcClient
}

// ChainID returns the chain the node serves, verifying it against the
// configured chain on first use.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}

	id, err := chain.RetryWithConfig(ctx, c.retry, func() (*big.Int, error) {
		return c.rpcClient.ChainID(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("getting chain ID: %w", err)
	}
	if c.expected != nil && c.expected.Cmp(id) != 0 {
		return nil, suberr.WithSuggestion(
			suberr.WithDetails(suberr.ErrInvalidChainID, map[string]string{
				"expected": c.expected.String(),
				"node":     id.String(),
			}),
			"point network.rpc at a node for the configured chain, or update network.chain_id",
		)
	}

	c.chainID = id
	return new(big.Int).Set(id), nil
}

// EntitlementStatus calls isSubscriberActive(subject) on the registry.
func (c *Client) EntitlementStatus(ctx context.Context, registry, subject common.Address) (bool, error) {
	result, err := c.call(ctx, SigIsSubscriberActive, registry, EncodeIsSubscriberActive(subject))
	if err != nil {
		return false, err
	}
	return DecodeBool(result)
}

// TokenBalance calls balanceOf(subject) on the token.
func (c *Client) TokenBalance(ctx context.Context, token, subject common.Address) (*big.Int, error) {
	return c.callUint(ctx, SigBalanceOf, token, EncodeBalanceOf(subject))
}

// SubscriptionFee calls subscriptionFee() on the registry.
func (c *Client) SubscriptionFee(ctx context.Context, registry common.Address) (*big.Int, error) {
	return c.callUint(ctx, SigSubscriptionFee, registry, EncodeSubscriptionFee())
}

// Allowance calls allowance(owner, spender) on the token.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callUint(ctx, SigAllowance, token, EncodeAllowance(owner, spender))
}

// PaymentToken returns the token the registry charges in.
func (c *Client) PaymentToken(ctx context.Context, registry common.Address) (common.Address, error) {
	result, err := c.call(ctx, SigPaymentToken, registry, EncodePaymentToken())
	if err != nil {
		return common.Address{}, err
	}
	return DecodeAddress(result)
}

// NativeBalance returns the ETH balance used to pay gas.
func (c *Client) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	return chain.RetryWithConfig(ctx, c.retry, func() (*big.Int, error) {
		return c.rpcClient.GetBalance(ctx, address.Hex(), "latest")
	})
}

// Close closes the client connection.
func (c *Client) Close() {
	c.rpcClient.Close()
}

func (c *Client) callUint(ctx context.Context, sig string, to common.Address, data []byte) (*big.Int, error) {
	result, err := c.call(ctx, sig, to, data)
	if err != nil {
		return nil, err
	}
	return DecodeUint256(result)
}

// call performs an eth_call against the latest block, retrying transport failures.
func (c *Client) call(ctx context.Context, sig string, to common.Address, data []byte) ([]byte, error) {
	c.logger.Debug("eth_call %s on %s", sig, to.Hex())

	result, err := chain.RetryWithConfig(ctx, c.retry, func() ([]byte, error) {
		return c.rpcClient.EthCall(ctx, rpc.CallMsg{To: to.Hex(), Data: data}, "latest")
	})
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", sig, err)
	}
	return result, nil
}
