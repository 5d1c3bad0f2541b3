package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/subpass/internal/output"
	"github.com/mrz1836/subpass/internal/subscription"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var statusAddress string

// statusCmd shows the subscription state for one account.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show subscription status",
	Long: `Read entitlement, token balance, allowance and the subscription fee once,
then show the flow state and which action comes next.

Without --address the account of the imported signing key is used. The key
is not unlocked; its address is stored in clear text.

status also reads the payment token the subscription contract charges and
warns when it differs from the configured token contract, and shows the
account's native balance available for gas.`,
	Example: `  subpass status
  subpass status --address 0x742d35Cc6634C0532925a3b844Bc454e4438f44e
  subpass status -o json`,
	RunE: runStatus,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	statusCmd.GroupID = groupFlow
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusAddress, "address", "", "watch this address instead of the key file's")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, stop := interruptible(cmd)
	defer stop()

	f, err := openFlow(ctx, cc, flowOptions{Address: statusAddress})
	if err != nil {
		return err
	}
	defer f.Close()

	v := f.ctrl.View()
	opts := f.viewOptions(ctx, cc, true)
	if err := output.RenderView(cc.Fmt, v, opts); err != nil {
		return err
	}
	return phaseError(v)
}

// phaseError turns terminal failure phases into the command's error, so
// scripts see a non-zero exit for an unusable configuration or failed reads.
func phaseError(v subscription.View) error {
	switch v.Phase {
	case subscription.PhaseConfigInvalid:
		return v.ConfigErr
	case subscription.PhaseReadError:
		for _, rf := range v.ReadFailures {
			if rf.Err != nil {
				return rf.Err
			}
		}
		return suberr.ErrRead
	case subscription.PhaseDisconnected, subscription.PhaseSessionLoading,
		subscription.PhaseReadLoading, subscription.PhaseEntitled, subscription.PhaseUnentitled:
	}
	return nil
}
