// Package rpc provides a minimal JSON-RPC 2.0 client for Ethereum nodes.
package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mrz1836/subpass/internal/chain"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

var (
	// ErrRPCRequest indicates the node answered with a JSON-RPC error.
	ErrRPCRequest = &suberr.SubpassError{
		Code:     "RPC_REQUEST_FAILED",
		Message:  "RPC request failed",
		ExitCode: suberr.ExitGeneral,
	}

	// ErrRPCResponse indicates an invalid RPC response.
	ErrRPCResponse = &suberr.SubpassError{
		Code:     "RPC_INVALID_RESPONSE",
		Message:  "invalid RPC response",
		ExitCode: suberr.ExitGeneral,
	}

	// ErrInvalidHexNumber indicates an invalid hex number.
	ErrInvalidHexNumber = &suberr.SubpassError{
		Code:     "RPC_INVALID_HEX",
		Message:  "invalid hex number",
		ExitCode: suberr.ExitInput,
	}
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

// Observer receives the outcome of every call.
type Observer interface {
	ObserveRPC(method string, elapsed time.Duration, err error)
}

// ClientOptions contains optional configuration for the RPC client.
type ClientOptions struct {
	// Transport overrides the default HTTP transport.
	Transport http.RoundTripper
	// Timeout bounds a single HTTP round trip. Zero means no client-side timeout.
	Timeout time.Duration
	// Limiter throttles calls to this endpoint. Nil disables throttling.
	Limiter *chain.RateLimiter
	// Observer is notified after each call.
	Observer Observer
}

// Client is a minimal Ethereum JSON-RPC client.
type Client struct {
	url        string
	httpClient *http.Client
	limiter    *chain.RateLimiter
	observer   Observer
	idCounter  atomic.Uint64
}

// NewClient creates a new RPC client.
func NewClient(url string) *Client {
	return NewClientWithOptions(url, nil)
}

// NewClientWithOptions creates a new RPC client with optional transport,
// rate limiting and observation.
func NewClientWithOptions(url string, opts *ClientOptions) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{},
	}
	if opts != nil {
		if opts.Transport != nil {
			c.httpClient.Transport = opts.Transport
		}
		c.httpClient.Timeout = opts.Timeout
		c.limiter = opts.Limiter
		c.observer = opts.Observer
	}
	return c
}

// URL returns the endpoint URL.
func (c *Client) URL() string {
	return c.url
}

// request represents a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// response represents a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Call performs a JSON-RPC call.
// Transport failures wrap errors.ErrNetworkError and are retryable; errors
// reported by the node wrap ErrRPCRequest and carry the *Error as cause.
func (c *Client) Call(ctx context.Context, method string, params ...any) (result json.RawMessage, err error) {
	start := time.Now()
	if c.observer != nil {
		defer func() { c.observer.ObserveRPC(method, time.Since(start), err) }()
	}

	if err = c.limiter.Wait(ctx, c.url); err != nil {
		return nil, err
	}

	if params == nil {
		params = []any{}
	}

	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.idCounter.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, suberr.WithDetails(suberr.WithCause(suberr.ErrNetworkError, err), map[string]string{
			"method": method,
		})
	}
	// Body.Close error is intentionally ignored as it only fails if the
	// connection is already broken, and there's no recovery action.
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: retry after %q", chain.ErrRateLimited, httpResp.Header.Get("Retry-After"))
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, suberr.WithDetails(suberr.ErrNetworkError, map[string]string{
			"method": method,
			"status": strconv.Itoa(httpResp.StatusCode),
		})
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, suberr.WithCause(suberr.ErrNetworkError, err)
	}

	var resp response
	if err = json.Unmarshal(respBody, &resp); err != nil {
		return nil, suberr.WithDetails(suberr.WithCause(ErrRPCResponse, err), map[string]string{
			"method": method,
			"status": strconv.Itoa(httpResp.StatusCode),
		})
	}

	if resp.Error != nil {
		return nil, suberr.WithDetails(suberr.WithCause(ErrRPCRequest, resp.Error), map[string]string{
			"method": method,
		})
	}

	return resp.Result, nil
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.callHexBigInt(ctx, "chain ID", "eth_chainId")
}

// GetBalance returns the balance of an address in wei.
func (c *Client) GetBalance(ctx context.Context, address, block string) (*big.Int, error) {
	if block == "" {
		block = "latest"
	}
	return c.callHexBigInt(ctx, "balance", "eth_getBalance", address, block)
}

// GetTransactionCount returns the nonce for an address.
func (c *Client) GetTransactionCount(ctx context.Context, address, block string) (uint64, error) {
	if block == "" {
		block = "pending"
	}
	n, err := c.callHexBigInt(ctx, "nonce", "eth_getTransactionCount", address, block)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// GasPrice returns the current gas price in wei.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.callHexBigInt(ctx, "gas price", "eth_gasPrice")
}

// CallMsg represents the parameters for eth_call and eth_estimateGas.
type CallMsg struct {
	From  string   `json:"from,omitempty"`
	To    string   `json:"to"`
	Gas   uint64   `json:"gas,omitempty"`
	Value *big.Int `json:"value,omitempty"`
	Data  []byte   `json:"data,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for CallMsg.
func (m CallMsg) MarshalJSON() ([]byte, error) {
	type callMsgJSON struct {
		From  string `json:"from,omitempty"`
		To    string `json:"to"`
		Gas   string `json:"gas,omitempty"`
		Value string `json:"value,omitempty"`
		Data  string `json:"data,omitempty"`
	}

	msg := callMsgJSON{
		From: m.From,
		To:   m.To,
	}

	if m.Gas > 0 {
		msg.Gas = fmt.Sprintf("0x%x", m.Gas)
	}
	if m.Value != nil && m.Value.Sign() > 0 {
		msg.Value = "0x" + m.Value.Text(16)
	}
	if len(m.Data) > 0 {
		msg.Data = "0x" + hex.EncodeToString(m.Data)
	}

	return json.Marshal(msg)
}

// EthCall performs an eth_call.
func (c *Client) EthCall(ctx context.Context, msg CallMsg, block string) ([]byte, error) {
	if block == "" {
		block = "latest"
	}

	result, err := c.Call(ctx, "eth_call", msg, block)
	if err != nil {
		return nil, err
	}

	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return nil, suberr.WithCause(ErrRPCResponse, fmt.Errorf("parsing call result: %w", err))
	}

	return parseHexBytes(hexVal)
}

// EstimateGas estimates the gas needed for a transaction.
func (c *Client) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	n, err := c.callHexBigInt(ctx, "gas estimate", "eth_estimateGas", msg)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// SendRawTransaction sends a signed transaction.
// Returns the transaction hash.
func (c *Client) SendRawTransaction(ctx context.Context, signedTx []byte) (string, error) {
	hexTx := "0x" + hex.EncodeToString(signedTx)

	result, err := c.Call(ctx, "eth_sendRawTransaction", hexTx)
	if err != nil {
		return "", err
	}

	var txHash string
	if err := json.Unmarshal(result, &txHash); err != nil {
		return "", suberr.WithCause(ErrRPCResponse, fmt.Errorf("parsing tx hash: %w", err))
	}

	return txHash, nil
}

// Receipt is the subset of a transaction receipt the client needs.
type Receipt struct {
	TxHash      string
	Status      uint64 // 1 success, 0 reverted
	BlockNumber uint64
	GasUsed     uint64
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

type receiptJSON struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	BlockNumber     string `json:"blockNumber"`
	GasUsed         string `json:"gasUsed"`
}

// GetTransactionReceipt returns the receipt for hash, or nil while the
// transaction is still pending.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}

	if len(result) == 0 || string(result) == "null" {
		return nil, nil //nolint:nilnil // Pending transactions have no receipt
	}

	var raw receiptJSON
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, suberr.WithCause(ErrRPCResponse, fmt.Errorf("parsing receipt: %w", err))
	}

	status, err := parseHexBigInt(raw.Status)
	if err != nil {
		return nil, err
	}
	block, err := parseHexBigInt(raw.BlockNumber)
	if err != nil {
		return nil, err
	}
	gasUsed, err := parseHexBigInt(raw.GasUsed)
	if err != nil {
		return nil, err
	}

	return &Receipt{
		TxHash:      raw.TransactionHash,
		Status:      status.Uint64(),
		BlockNumber: block.Uint64(),
		GasUsed:     gasUsed.Uint64(),
	}, nil
}

// callHexBigInt performs a call whose result is a single hex quantity.
func (c *Client) callHexBigInt(ctx context.Context, what, method string, params ...any) (*big.Int, error) {
	result, err := c.Call(ctx, method, params...)
	if err != nil {
		return nil, err
	}

	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return nil, suberr.WithCause(ErrRPCResponse, fmt.Errorf("parsing %s: %w", what, err))
	}

	return parseHexBigInt(hexVal)
}

// parseHexBigInt parses a hex string (with or without 0x prefix) to big.Int.
func parseHexBigInt(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}

	n := new(big.Int)
	if _, ok := n.SetString(s, 16); !ok {
		return nil, ErrInvalidHexNumber
	}

	return n, nil
}

// parseHexBytes parses a hex string to bytes.
func parseHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return []byte{}, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, suberr.WithCause(ErrInvalidHexNumber, err)
	}
	return b, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
