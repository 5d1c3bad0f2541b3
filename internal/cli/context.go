package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mrz1836/subpass/internal/config"
	"github.com/mrz1836/subpass/internal/metrics"
	"github.com/mrz1836/subpass/internal/output"
	"github.com/mrz1836/subpass/internal/session"
)

// newUnlockCacheFn builds the signing-key unlock cache. Tests replace it to
// avoid the OS keyring.
//
//nolint:gochecknoglobals // Swapped in tests
var newUnlockCacheFn = func(dir string) session.UnlockCache {
	return session.NewFileCache(dir, nil)
}

// notifyContext cancels a context on the given signals. Tests replace it to
// interrupt a command without a real Ctrl-C.
//
//nolint:gochecknoglobals // Swapped in tests
var notifyContext = signal.NotifyContext

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg     *config.Config
	Log     *config.Logger
	Fmt     *output.Formatter
	Metrics *metrics.Metrics

	unlockOnce sync.Once
	unlocks    session.UnlockCache
}

// NewCommandContext creates a context with the given dependencies.
// Nil logger and metrics are replaced with a null logger and the process registry.
func NewCommandContext(cfg *config.Config, logger *config.Logger, formatter *output.Formatter) *CommandContext {
	if logger == nil {
		logger = config.NullLogger()
	}
	return &CommandContext{
		Cfg:     cfg,
		Log:     logger,
		Fmt:     formatter,
		Metrics: metrics.Default(),
	}
}

// Unlocks returns the unlock cache, creating it on first use. Creating it
// probes the OS keyring, so commands that never sign do not pay for it.
func (c *CommandContext) Unlocks() session.UnlockCache {
	c.unlockOnce.Do(func() {
		c.unlocks = newUnlockCacheFn(c.Cfg.UnlockDir())
	})
	return c.unlocks
}

type cmdContextKey struct{}

// SetCmdContext attaches cc to the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the CommandContext attached to cmd, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(cmdContextKey{}).(*CommandContext)
	return cc
}

// interruptible returns the command context, cancelled on Ctrl-C.
// Cancelling abandons in-flight reads and writes.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return notifyContext(base, os.Interrupt)
}
