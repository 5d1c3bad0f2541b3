package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/subpass/internal/config"
	"github.com/mrz1836/subpass/internal/output"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and modify subpass configuration settings stored in
<home>/config.yaml. Environment variables and flags override the file.`,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file in the subpass home directory.

An existing file is only replaced with --force.`,
	Example: `  subpass config init
  subpass config init --force`,
	RunE: runConfigInit,
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display every setting with its effective value after environment and flag overrides.`,
	Example: `  subpass config show
  subpass config show -o json`,
	RunE: runConfigShow,
}

// configGetCmd gets a specific configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value by its dot-separated path.`,
	Example: `  subpass config get network.rpc
  subpass config get contracts.subscription`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value by its dot-separated path and save the file.

The value is validated before it is written. Contract addresses must be
0x-prefixed and are stored lowercase.`,
	Example: `  subpass config set network.rpc https://sepolia.example.com
  subpass config set contracts.token 0x3ec192df723833621108f6769a32b4e0a18ab0a8
  subpass config set logging.level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configCmd.GroupID = groupConfig
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configGetCmd, configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	path := config.Path(config.ExpandPath(cc.Cfg.Home))

	if _, err := os.Stat(path); err == nil && !configForce {
		return suberr.WithSuggestion(
			suberr.WithDetails(suberr.ErrGeneral, map[string]string{"path": path}),
			"configuration already exists; use --force to overwrite",
		)
	}

	if err := config.Save(config.Defaults(), path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", path)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - network.rpc: your JSON-RPC endpoint")
	outln(w, "  - contracts.token / contracts.subscription: the deployment to use")
	outln(w, "  - signer.gas_speed: slow, medium or fast")
	outln(w, "  - logging.level: off, error or debug")
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	w := cmd.OutOrStdout()

	settings := make(map[string]string, len(config.Keys()))
	table := output.NewTable("SETTING", "VALUE")
	for _, key := range config.Keys() {
		value, err := cc.Cfg.Get(key)
		if err != nil {
			return err
		}
		settings[key] = value
		table.AddRow(key, value)
	}

	if cc.Fmt.IsJSON() {
		return output.NewFormatter(output.FormatJSON, w).Emit(settings, nil)
	}
	out(w, "Config file: %s\n\n", config.Path(config.ExpandPath(cc.Cfg.Home)))
	return table.Render(w)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	value, err := cc.Cfg.Get(args[0])
	if err != nil {
		return err
	}
	outln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	path, value := args[0], args[1]

	// Edit the file, not the effective config, so env overrides are not persisted
	file := config.Path(config.ExpandPath(cc.Cfg.Home))
	current, err := config.Load(file)
	switch {
	case err == nil:
	case suberr.Is(err, suberr.ErrConfigNotFound):
		current = config.Defaults()
	default:
		return err
	}

	if err := current.Set(path, value); err != nil {
		return err
	}
	if err := current.Validate(); err != nil {
		return err
	}
	if err := config.Save(current, file); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	stored, _ := current.Get(path)
	out(cmd.OutOrStdout(), "Set %s = %s\n", path, stored)
	return nil
}
