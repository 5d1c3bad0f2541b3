package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/subpass/internal/ledger"
	"github.com/mrz1836/subpass/internal/output"
	"github.com/mrz1836/subpass/internal/subscription"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// activateCmd runs approve and subscribe in sequence.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Approve and subscribe in one go",
	Long: `Run the whole subscription flow without stopping: approve the fee when the
allowance does not cover it, wait for the allowance to be read again, then
subscribe and show the final entitlement.

Each step is only taken when the flow allows it. An account that is already
subscribed is left alone.`,
	Example: `  subpass activate
  SUBPASS_KEY_PASSWORD=... subpass activate --yes -o json`,
	RunE: runActivate,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	activateCmd.GroupID = groupFlow
	rootCmd.AddCommand(activateCmd)
	addSigningFlags(activateCmd)
}

func runActivate(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, stop := interruptible(cmd)
	defer stop()

	approver, err := newApprover(cc, writeYes, writeMaxFee)
	if err != nil {
		return err
	}

	f, err := openFlow(ctx, cc, flowOptions{Sign: true, Approver: approver})
	if err != nil {
		return err
	}
	defer f.Close()

	render := func() error {
		return output.RenderView(cc.Fmt, f.ctrl.View(), f.viewOptions(ctx, cc, false))
	}

	v := f.ctrl.View()
	switch v.Phase {
	case subscription.PhaseEntitled:
		output.Infof(cmd.ErrOrStderr(), "Subscription already active, nothing to do.")
		return render()
	case subscription.PhaseUnentitled:
	case subscription.PhaseDisconnected, subscription.PhaseConfigInvalid, subscription.PhaseSessionLoading,
		subscription.PhaseReadLoading, subscription.PhaseReadError:
		if err := render(); err != nil {
			return err
		}
		if err := phaseError(v); err != nil {
			return err
		}
		return suberr.WithDetails(suberr.ErrActionUnavailable, map[string]string{"phase": v.Phase.String()})
	}

	for _, kind := range []ledger.WriteKind{ledger.KindApprove, ledger.KindSubscribe} {
		v = f.ctrl.View()
		enabled := v.CanApprove
		if kind == ledger.KindSubscribe {
			enabled = v.CanSubscribe
		}
		if !enabled {
			if kind == ledger.KindApprove {
				continue
			}
			break
		}

		output.Infof(cmd.ErrOrStderr(), "Sending %s...", kind)
		op, err := f.write(ctx, kind)
		if err != nil {
			return err
		}
		if err := interrupted(ctx, op); err != nil {
			return err
		}
		if op.State != subscription.StateConfirmed {
			if err := render(); err != nil {
				return err
			}
			return op.Err
		}
		output.Successf(cmd.ErrOrStderr(), "%s confirmed in block %d", kind, op.Receipt.BlockNumber)
	}

	if err := render(); err != nil {
		return err
	}

	v = f.ctrl.View()
	switch {
	case v.Derived.IsEntitled:
		return nil
	case v.BalanceWarning:
		return suberr.ErrInsufficientBalance
	default:
		return suberr.WithDetails(suberr.ErrActionUnavailable, map[string]string{"phase": v.Phase.String()})
	}
}
