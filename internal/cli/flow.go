package cli

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/chain"
	"github.com/mrz1836/subpass/internal/chain/eth"
	"github.com/mrz1836/subpass/internal/keystore"
	"github.com/mrz1836/subpass/internal/ledger"
	"github.com/mrz1836/subpass/internal/output"
	"github.com/mrz1836/subpass/internal/session"
	"github.com/mrz1836/subpass/internal/subscription"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// rpcRequestTimeout bounds one JSON-RPC round trip.
const rpcRequestTimeout = 30 * time.Second

// flowOptions selects the session a command runs as.
type flowOptions struct {
	// Address watches an address without a key. Empty uses the key file.
	Address string
	// Sign unlocks the key file so writes can be signed.
	Sign bool
	// Approver is consulted before every signature.
	Approver eth.Approver
}

// flow is one controller wired to a node, a session and an optional signer.
type flow struct {
	ctrl    *subscription.Controller
	client  *eth.Client
	signer  *eth.KeySigner
	wallet  *session.Wallet
	network chain.Network
	cc      *CommandContext
	// keyed is set when the session's account is the key file's.
	keyed bool
}

// openFlow connects to the configured node, establishes the session and
// performs the initial refresh.
func openFlow(ctx context.Context, cc *CommandContext, fo flowOptions) (*flow, error) {
	if err := cc.Cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := newClient(cc)
	if err != nil {
		return nil, err
	}

	f := &flow{client: client, network: networkFor(cc.Cfg.Network.ChainID), cc: cc}

	var (
		provider subscription.SessionProvider
		signer   ledger.Signer
		wallet   *session.Wallet
	)
	switch {
	case fo.Address != "":
		addr, err := eth.ParseAddress(fo.Address)
		if err != nil {
			client.Close()
			return nil, err
		}
		provider = session.Watch(addr)
	case fo.Sign:
		ks, err := unlockSigner(cc, client, fo.Approver)
		if err != nil {
			client.Close()
			return nil, err
		}
		f.signer = ks
		f.keyed = true
		signer = ks
		wallet = session.NewWallet()
		f.wallet = wallet
		provider = wallet
	default:
		kf, err := keystore.Load(cc.Cfg.KeyFilePath())
		if err != nil {
			client.Close()
			return nil, suberr.WithSuggestion(err, "import a key with 'subpass key import' or pass --address")
		}
		provider = session.Watch(common.HexToAddress(kf.Address))
		f.keyed = true
	}

	f.ctrl = subscription.NewController(subscription.Options{
		Endpoints:           cc.Cfg.Endpoints(),
		Session:             provider,
		Ledger:              client,
		Signer:              signer,
		Logger:              cc.Log.Named("flow"),
		Metrics:             cc.Metrics,
		ConfirmationTimeout: cc.Cfg.ConfirmationTimeout(),
	})

	if wallet != nil {
		wallet.Connect()
		f.ctrl.SessionChanged(ctx)
		wallet.Resolve(f.signer.Address())
	}
	f.ctrl.SessionChanged(ctx)

	cc.Log.Debug("flow open: %s", cc.Cfg)
	return f, nil
}

// Close disconnects the session, abandons in-flight work, destroys the key
// and logs the run's RPC totals.
func (f *flow) Close() {
	if f.wallet != nil {
		f.wallet.Disconnect()
		f.ctrl.SessionChanged(context.Background())
	}
	f.ctrl.Close()
	if f.signer != nil {
		f.signer.Close()
	}
	f.client.Close()

	s := f.cc.Metrics.Snapshot()
	f.cc.Log.Debug("rpc: %d calls, %d errors, avg %.1fms; reads: %d, %d failed",
		s.RPCCallsTotal, s.RPCErrorsTotal, s.RPCLatencyAvgMs(), s.ReadsTotal, s.ReadErrorsTotal)
}

// viewOptions returns rendering options. With diagnostics, the native gas
// balance and the subscription contract's payment token are read as well;
// failures there are logged and leave the fields empty.
func (f *flow) viewOptions(ctx context.Context, cc *CommandContext, diagnostics bool) output.ViewOptions {
	opts := output.ViewOptions{
		Symbol:       cc.Cfg.Contracts.TokenSymbol,
		Decimals:     cc.Cfg.Contracts.TokenDecimals,
		Network:      f.network,
		KeyAvailable: f.keyed,
	}
	if !diagnostics || f.ctrl.ConfigErr() != nil {
		return opts
	}

	v := f.ctrl.View()
	if token, err := f.client.PaymentToken(ctx, v.Endpoints.Subscription); err == nil {
		opts.PaymentToken = &token
	} else {
		cc.Log.Debug("reading payment token: %v", err)
	}
	if v.Subject != (common.Address{}) {
		if bal, err := f.client.NativeBalance(ctx, v.Subject); err == nil {
			opts.NativeBalance = bal
		} else {
			cc.Log.Debug("reading native balance: %v", err)
		}
	}
	return opts
}

func newClient(cc *CommandContext) (*eth.Client, error) {
	net := cc.Cfg.Network
	opts := &eth.ClientOptions{
		RequestTimeout: rpcRequestTimeout,
		PollInterval:   cc.Cfg.PollInterval(),
		Limiter:        chain.NewRateLimiter(net.RateLimit, net.RateBurst),
		Observer:       cc.Metrics,
		Logger:         cc.Log.Named("eth"),
	}
	if net.ChainID > 0 {
		opts.ChainID = big.NewInt(net.ChainID)
	}
	return eth.NewClient(net.RPC, opts)
}

// unlockSigner loads the key file and unlocks it, from the unlock cache
// when possible, otherwise with SUBPASS_KEY_PASSWORD or a prompt.
func unlockSigner(cc *CommandContext, client *eth.Client, approver eth.Approver) (*eth.KeySigner, error) {
	speed, err := eth.ParseGasSpeed(cc.Cfg.Signer.GasSpeed)
	if err != nil {
		return nil, err
	}

	kf, err := keystore.Load(cc.Cfg.KeyFilePath())
	if err != nil {
		return nil, err
	}
	addr := common.HexToAddress(kf.Address)

	key := cachedKey(cc, addr)
	if key == nil {
		password, err := keyPassword(kf.Address)
		if err != nil {
			return nil, err
		}
		key, err = kf.Unlock(string(password))
		keystore.Zero(password)
		if err != nil {
			return nil, err
		}
	}
	if !key.IsLocked() {
		cc.Log.Debug("signing key for %s is not locked in memory", addr.Hex())
	}

	ks, err := eth.NewKeySigner(client, key, eth.SignerOptions{
		Speed:    speed,
		Approver: approver,
		Logger:   cc.Log.Named("signer"),
	})
	if err != nil {
		key.Destroy()
		return nil, err
	}
	return ks, nil
}

// cachedKey returns the key from an active unlock, or nil.
func cachedKey(cc *CommandContext, addr common.Address) *keystore.SecureBytes {
	cache := cc.Unlocks()
	if !cache.Available() {
		return nil
	}

	key, unlock, err := cache.Load(addr)
	switch {
	case err == nil:
		cc.Log.Debug("using cached unlock for %s, %s left", addr.Hex(), unlock.TTL().Round(time.Second))
		return key
	case errors.Is(err, session.ErrUnlockNotFound), errors.Is(err, session.ErrUnlockExpired):
	default:
		cc.Log.Error("reading unlock cache: %v", err)
	}
	return nil
}

// networkFor returns the known network for chainID, or an unnamed one.
func networkFor(chainID int64) chain.Network {
	if chainID <= 0 {
		return chain.Network{}
	}
	if n, ok := chain.NetworkByChainID(uint64(chainID)); ok {
		return n
	}
	return chain.Network{ChainID: uint64(chainID)}
}
