package cli

import (
	"github.com/mrz1836/subpass/internal/chain/eth"
	"github.com/mrz1836/subpass/internal/chain/eth/rpc"
	"github.com/mrz1836/subpass/internal/config"
	"github.com/mrz1836/subpass/internal/keystore"
	"github.com/mrz1836/subpass/internal/ledger"
	"github.com/mrz1836/subpass/internal/metrics"
	"github.com/mrz1836/subpass/internal/session"
	"github.com/mrz1836/subpass/internal/subscription"
)

// Compile-time checks that the concrete pieces wired together here fit
// the interfaces the flow is written against.
//
//nolint:gochecknoglobals // Compile-time checks only
var (
	_ ledger.Ledger                = (*eth.Client)(nil)
	_ ledger.Signer                = (*eth.KeySigner)(nil)
	_ eth.PrivateKey               = (*keystore.SecureBytes)(nil)
	_ eth.Logger                   = (*config.Logger)(nil)
	_ rpc.Observer                 = (*metrics.Metrics)(nil)
	_ subscription.LogWriter       = (*config.Logger)(nil)
	_ subscription.Recorder        = (*metrics.Metrics)(nil)
	_ subscription.SessionProvider = session.Static{}
	_ subscription.SessionProvider = (*session.Wallet)(nil)
	_ session.UnlockCache          = (*session.FileCache)(nil)
)
