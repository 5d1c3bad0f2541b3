package eth

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rpcMethodChainID  = "eth_chainId"
	rpcMethodGasPrice = "eth_gasPrice"
	rpcMethodCall     = "eth_call"
	rpcMethodEstimate = "eth_estimateGas"
	rpcMethodNonce    = "eth_getTransactionCount"
	rpcMethodSend     = "eth_sendRawTransaction"
	rpcMethodReceipt  = "eth_getTransactionReceipt"
	rpcMethodBalance  = "eth_getBalance"

	// Hardhat account #0, a well-known development key.
	testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testSignerAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

//nolint:gochecknoglobals // Test data
var (
	testToken    = common.HexToAddress("0xcac524bca292aaade2df8a05cc58f0a65b1b3bb9")
	testRegistry = common.HexToAddress("0x1e2cb1cebd00485d02461eeb532afb19f50898e0")
	testSubject  = common.HexToAddress("0x742d35cc6634c0532925a3b844bc454e4438f44e")
)

// handlerFunc answers one JSON-RPC method. A non-nil error becomes a JSON-RPC error.
type handlerFunc func(params []json.RawMessage) (any, error)

// fakeNode is an httptest JSON-RPC server dispatching by method.
type fakeNode struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    map[string]int
	sent     [][]byte
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()

	n := &fakeNode{
		t:        t,
		handlers: make(map[string]handlerFunc),
		calls:    make(map[string]int),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.server.Close)
	return n
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if !assert.NoError(n.t, json.NewDecoder(r.Body).Decode(&req)) {
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = map[string]any{"code": -32601, "message": "method not found: " + req.Method}
	} else if result, err := h(req.Params); err != nil {
		resp["error"] = map[string]any{"code": -32000, "message": err.Error()}
	} else {
		resp["result"] = result
	}
	assert.NoError(n.t, json.NewEncoder(w).Encode(resp))
}

func (n *fakeNode) handle(method string, h handlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

func (n *fakeNode) result(method string, result any) {
	n.handle(method, func([]json.RawMessage) (any, error) { return result, nil })
}

func (n *fakeNode) fail(method, message string) {
	n.handle(method, func([]json.RawMessage) (any, error) { return nil, errors.New(message) })
}

func (n *fakeNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// contract answers eth_call by selector.
func (n *fakeNode) contract(results map[string]string) {
	n.handle(rpcMethodCall, func(params []json.RawMessage) (any, error) {
		data, err := callData(params)
		if err != nil {
			return nil, err
		}
		for sig, result := range results {
			if hex.EncodeToString(Selector(sig)) == hex.EncodeToString(data[:4]) {
				return result, nil
			}
		}
		return nil, errors.New("execution reverted")
	})
}

// acceptTransactions records raw transactions and answers with their hash.
func (n *fakeNode) acceptTransactions() {
	n.handle(rpcMethodSend, func(params []json.RawMessage) (any, error) {
		var raw string
		if err := json.Unmarshal(params[0], &raw); err != nil {
			return nil, err
		}
		b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, err
		}

		n.mu.Lock()
		n.sent = append(n.sent, b)
		n.mu.Unlock()
		return "0x" + strings.Repeat("ab", 32), nil
	})
}

func (n *fakeNode) sentTransactions() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.sent...)
}

func (n *fakeNode) client(opts *ClientOptions) *Client {
	n.t.Helper()
	if opts == nil {
		opts = &ClientOptions{}
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	c, err := NewClient(n.server.URL, opts)
	require.NoError(n.t, err)
	n.t.Cleanup(c.Close)
	return c
}

func callData(params []json.RawMessage) ([]byte, error) {
	if len(params) == 0 {
		return nil, errors.New("missing call object")
	}
	var msg struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(params[0], &msg); err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(strings.TrimPrefix(msg.Data, "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) < 4 {
		return nil, errors.New("calldata shorter than a selector")
	}
	return b, nil
}

// word renders v as a 32-byte ABI result.
func word(v *big.Int) string {
	return "0x" + hex.EncodeToString(common.LeftPadBytes(v.Bytes(), 32))
}

func addressResult(a common.Address) string {
	return "0x" + hex.EncodeToString(common.LeftPadBytes(a.Bytes(), 32))
}

// testKey is a PrivateKey backed by a plain slice.
type testKey struct {
	b         []byte
	destroyed bool
}

func newTestKey(t *testing.T) *testKey {
	t.Helper()
	b, err := hex.DecodeString(testPrivateKeyHex)
	require.NoError(t, err)
	return &testKey{b: b}
}

func (k *testKey) Bytes() []byte { return k.b }

func (k *testKey) Destroy() {
	for i := range k.b {
		k.b[i] = 0
	}
	k.destroyed = true
}
