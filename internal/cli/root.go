// Package cli implements the subpass command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/subpass/internal/config"
	"github.com/mrz1836/subpass/internal/output"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// Command groups shown in root help.
const (
	groupFlow   = "flow"
	groupKey    = "key"
	groupConfig = "config"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "subpass",
	Short: "Manage a token-paid on-chain subscription",
	Long: `subpass checks and activates a subscription that is paid for with an ERC-20
token. It reads your entitlement, token balance, allowance and the
subscription fee from the network, and walks you through the two writes
needed to subscribe: approve the fee, then subscribe.

Reads are cached and only refetched when a write you sent is confirmed.`,
	Example: `  subpass key import
  subpass status
  subpass activate`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := initGlobals(cmd.OutOrStdout()); err != nil {
			return err
		}
		SetCmdContext(cmd, NewCommandContext(cfg, logger, formatter))
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() error {
	walkCommands(rootCmd, enrichParentLong)

	err := rootCmd.Execute()
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(rootCmd.ErrOrStderr(), err, format)
		if format == output.FormatText && logger != nil && logger.Level() == config.LogLevelDebug && logger.Path() != "" {
			out(rootCmd.ErrOrStderr(), "Debug log: %s\n", logger.Path())
		}
		return err
	}
	return nil
}

// ExitCode returns the process exit code for an error.
func ExitCode(err error) int {
	return suberr.ExitCode(err)
}

// initGlobals loads configuration (defaults < file < env < flags), then
// the logger and the formatter.
func initGlobals(stdout io.Writer) error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.Load(config.Path(home))
	switch {
	case err == nil:
	case suberr.Is(err, suberr.ErrConfigNotFound):
		cfg = config.Defaults()
	default:
		return err
	}
	cfg.Rebase(home)

	config.ApplyEnvironment(cfg)

	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = outputFormat
	}

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.Logging.File)
	if err != nil {
		logger = config.NullLogger()
	}
	logger.Debug("subpass %s starting, config %s", buildInfo.Version, config.Path(cfg.Home))

	formatter = output.NewFormatter(output.ParseFormat(cfg.Output.DefaultFormat), stdout)
	return nil
}

// cleanup releases resources.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupFlow, Title: "Subscription:"},
		&cobra.Group{ID: groupKey, Title: "Signing Key:"},
		&cobra.Group{ID: groupConfig, Title: "Configuration:"},
	)
	rootCmd.SetHelpCommandGroupID(groupConfig)

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "subpass data directory (default: ~/.subpass)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
