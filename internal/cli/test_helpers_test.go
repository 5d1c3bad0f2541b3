package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/subpass/internal/chain/eth"
	"github.com/mrz1836/subpass/internal/config"
	"github.com/mrz1836/subpass/internal/keystore"
	"github.com/mrz1836/subpass/internal/session"
)

const (
	// Hardhat account #0, a well-known development key.
	testKeyHex   = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testMnemonic = "test test test test test test test test test test test junk"
	testPassword = "correct horse battery staple" // gitleaks:allow

	testChainID    = 31337
	testFee        = 10_000_000 // 10 PYUSD
	testTxBlock    = 0x10
	testWatchedHex = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
)

func TestMain(m *testing.M) {
	keystore.SetScryptWorkFactor(10)
	os.Exit(m.Run())
}

// fakeChain is an httptest JSON-RPC node holding one account's
// subscription state. Sent transactions are applied immediately and their
// receipts are available on the first poll.
type fakeChain struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	entitled  bool
	balance   *big.Int
	fee       *big.Int
	allowance *big.Int
	native    *big.Int
	revert    bool
	failing   map[string]string
	calls     map[string]int
	sent      []*types.Transaction
}

func newFakeChain(t *testing.T) *fakeChain {
	t.Helper()

	c := &fakeChain{
		t:         t,
		balance:   big.NewInt(25_000_000),
		fee:       big.NewInt(testFee),
		allowance: big.NewInt(0),
		native:    big.NewInt(1_000_000_000_000_000_000),
		failing:   make(map[string]string),
		calls:     make(map[string]int),
	}
	c.server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.server.Close)
	return c
}

func (c *fakeChain) URL() string {
	return c.server.URL
}

// fail makes every call of method return a JSON-RPC error.
func (c *fakeChain) fail(method, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[method] = message
}

func (c *fakeChain) set(fn func(c *fakeChain)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

func (c *fakeChain) callCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *fakeChain) sentTransactions() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

func (c *fakeChain) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if !assert.NoError(c.t, json.NewDecoder(r.Body).Decode(&req)) {
		return
	}

	c.mu.Lock()
	c.calls[req.Method]++
	var (
		result any
		err    error
	)
	if msg, ok := c.failing[req.Method]; ok {
		err = errors.New(msg)
	} else {
		result, err = c.answer(req.Method, req.Params)
	}
	c.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if err != nil {
		resp["error"] = map[string]any{"code": -32000, "message": err.Error()}
	} else {
		resp["result"] = result
	}
	assert.NoError(c.t, json.NewEncoder(w).Encode(resp))
}

// answer must be called with mu held.
func (c *fakeChain) answer(method string, params []json.RawMessage) (any, error) {
	switch method {
	case "eth_chainId":
		return hexQuantity(big.NewInt(testChainID)), nil
	case "eth_gasPrice":
		return hexQuantity(big.NewInt(1_000_000_000)), nil
	case "eth_estimateGas":
		return hexQuantity(big.NewInt(50_000)), nil
	case "eth_getTransactionCount":
		return hexQuantity(big.NewInt(int64(len(c.sent)))), nil
	case "eth_getBalance":
		return hexQuantity(c.native), nil
	case "eth_call":
		return c.contractCall(params)
	case "eth_sendRawTransaction":
		return c.sendRaw(params)
	case "eth_getTransactionReceipt":
		var hash string
		if err := json.Unmarshal(params[0], &hash); err != nil {
			return nil, err
		}
		status := "0x1"
		if c.revert {
			status = "0x0"
		}
		return map[string]string{
			"transactionHash": hash,
			"status":          status,
			"blockNumber":     hexQuantity(big.NewInt(testTxBlock)),
			"gasUsed":         "0xb411",
		}, nil
	}
	return nil, errors.New("method not found: " + method)
}

func (c *fakeChain) contractCall(params []json.RawMessage) (any, error) {
	var msg struct {
		Data  string `json:"data"`
		Input string `json:"input"`
	}
	if err := json.Unmarshal(params[0], &msg); err != nil {
		return nil, err
	}
	raw := msg.Data
	if raw == "" {
		raw = msg.Input
	}
	data, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil || len(data) < 4 {
		return nil, errors.New("bad calldata")
	}

	switch {
	case selectorIs(data, eth.SigIsSubscriberActive):
		v := big.NewInt(0)
		if c.entitled {
			v = big.NewInt(1)
		}
		return word(v), nil
	case selectorIs(data, eth.SigBalanceOf):
		return word(c.balance), nil
	case selectorIs(data, eth.SigSubscriptionFee):
		return word(c.fee), nil
	case selectorIs(data, eth.SigAllowance):
		return word(c.allowance), nil
	case selectorIs(data, eth.SigPaymentToken):
		return word(new(big.Int).SetBytes(common.HexToAddress(config.DefaultTokenContract).Bytes())), nil
	}
	return nil, errors.New("execution reverted")
}

func (c *fakeChain) sendRaw(params []json.RawMessage) (any, error) {
	var raw string
	if err := json.Unmarshal(params[0], &raw); err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, err
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	c.sent = append(c.sent, tx)

	data := tx.Data()
	if !c.revert {
		switch {
		case selectorIs(data, eth.SigApprove) && len(data) >= 68:
			c.allowance = new(big.Int).SetBytes(data[36:68])
		case selectorIs(data, eth.SigSubscribe):
			c.entitled = true
			c.balance = new(big.Int).Sub(c.balance, c.fee)
			c.allowance = new(big.Int).Sub(c.allowance, c.fee)
		}
	}
	return tx.Hash().Hex(), nil
}

func selectorIs(data []byte, sig string) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], eth.Selector(sig))
}

func word(v *big.Int) string {
	return "0x" + hex.EncodeToString(common.LeftPadBytes(v.Bytes(), 32))
}

func hexQuantity(v *big.Int) string {
	return "0x" + v.Text(16)
}

// testHome creates a subpass home whose config points at node.
func testHome(t *testing.T, node *fakeChain) string {
	t.Helper()

	home := t.TempDir()
	cfg := config.Defaults()
	cfg.Home = home
	cfg.Network.ChainID = testChainID
	cfg.Network.RateLimit = 0
	cfg.Confirmation.PollIntervalMS = 10
	cfg.Confirmation.TimeoutSeconds = 5
	cfg.Signer.KeyFile = filepath.Join(home, "signer.key.age")
	cfg.Logging.File = filepath.Join(home, "subpass.log")
	if node != nil {
		cfg.Network.RPC = node.URL()
	}
	require.NoError(t, config.Save(cfg, config.Path(home)))
	return home
}

// importTestKey writes the test key into home's key file.
func importTestKey(t *testing.T, home string) {
	t.Helper()

	key, err := keystore.KeyFromHex(testKeyHex)
	require.NoError(t, err)
	defer key.Destroy()

	kf, err := keystore.Seal(key, testPassword, keystore.SourceHex, "")
	require.NoError(t, err)
	require.NoError(t, keystore.Save(filepath.Join(home, "signer.key.age"), kf, false))
}

// resetFlags restores every package-level flag variable to its default.
func resetFlags() {
	homeDir, outputFormat, verbose = "", "auto", false
	statusAddress = ""
	writeYes, writeMaxFee = false, ""
	watchAddress, watchInterval, watchMetrics, watchRefetch, watchCount = "", defaultWatchInterval, "", false, 0
	importIndex, importPassphrase, importForce = 0, false, false
	addressQR, unlockTTL = false, 0
	configForce = false
}

// cliResult is the captured output of one command run.
type cliResult struct {
	Stdout string
	Stderr string
	Err    error
}

// runCLI executes the root command with args against home.
func runCLI(t *testing.T, home string, args ...string) cliResult {
	t.Helper()

	resetFlags()
	t.Cleanup(resetFlags)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--home", home}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute()
	return cliResult{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}

// decodeJSON unmarshals a command's JSON output.
func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m), "output: %s", s)
	return m
}

// withMockPrompts replaces prompt functions for testing and restores on cleanup.
func withMockPrompts(t *testing.T, password []byte, confirm bool) {
	t.Helper()
	origPW := promptPasswordFn
	origNewPW := promptNewPasswordFn
	origSecret := promptSecretFn
	origConfirm := promptConfirmFn
	t.Cleanup(func() {
		promptPasswordFn = origPW
		promptNewPasswordFn = origNewPW
		promptSecretFn = origSecret
		promptConfirmFn = origConfirm
	})
	promptPasswordFn = func(_ string) ([]byte, error) {
		return append([]byte(nil), password...), nil
	}
	promptNewPasswordFn = func() ([]byte, error) {
		return append([]byte(nil), password...), nil
	}
	promptSecretFn = func(_ string) (string, error) {
		return testKeyHex, nil
	}
	promptConfirmFn = func(_ string) bool { return confirm }
}

// withSecret makes the key import prompt return secret.
func withSecret(t *testing.T, secret string) {
	t.Helper()
	orig := promptSecretFn
	t.Cleanup(func() { promptSecretFn = orig })
	promptSecretFn = func(_ string) (string, error) { return secret, nil }
}

// memKeyring is an in-memory session.Keyring.
type memKeyring struct {
	mu      sync.Mutex
	secrets map[string]string
	broken  bool
}

func (k *memKeyring) Set(service, user, password string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.broken {
		return errors.New("keyring locked")
	}
	k.secrets[service+"/"+user] = password
	return nil
}

func (k *memKeyring) Get(service, user string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.secrets[service+"/"+user]
	if !ok || k.broken {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func (k *memKeyring) Delete(service, user string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.secrets, service+"/"+user)
	return nil
}

// withUnlockCache backs the unlock cache with an in-memory keyring. A
// broken keyring makes the cache unavailable.
func withUnlockCache(t *testing.T, broken bool) *memKeyring {
	t.Helper()
	kr := &memKeyring{secrets: make(map[string]string), broken: broken}
	orig := newUnlockCacheFn
	t.Cleanup(func() { newUnlockCacheFn = orig })
	newUnlockCacheFn = func(dir string) session.UnlockCache {
		return session.NewFileCache(dir, kr)
	}
	return kr
}

// newEnv prepares a node, a home pointing at it with the test key
// imported, mocked prompts and an in-memory unlock cache.
func newEnv(t *testing.T) (*fakeChain, string) {
	t.Helper()
	node := newFakeChain(t)
	home := testHome(t, node)
	importTestKey(t, home)
	withMockPrompts(t, []byte(testPassword), true)
	withUnlockCache(t, false)
	return node, home
}

// interruptOnConfirm makes the signing confirmation behave like a Ctrl-C
// arriving after the user said yes.
func interruptOnConfirm(t *testing.T) {
	t.Helper()
	var interrupt context.CancelFunc
	origNotify := notifyContext
	origConfirm := promptConfirmFn
	t.Cleanup(func() {
		notifyContext = origNotify
		promptConfirmFn = origConfirm
	})
	notifyContext = func(parent context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(parent)
		interrupt = cancel
		return ctx, cancel
	}
	promptConfirmFn = func(string) bool {
		interrupt()
		return true
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
