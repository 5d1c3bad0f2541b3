package cli

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/subpass/internal/chain"
	"github.com/mrz1836/subpass/internal/chain/eth"
	"github.com/mrz1836/subpass/internal/ledger"
	"github.com/mrz1836/subpass/internal/output"
	"github.com/mrz1836/subpass/internal/subscription"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// nativeDecimals is the decimal precision of the gas token.
const nativeDecimals = 18

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	writeYes    bool
	writeMaxFee string
)

// approveCmd grants the subscription contract an allowance for the fee.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Allow the subscription contract to spend the fee",
	Long: `Send an ERC-20 approve granting the subscription contract an allowance equal
to the current subscription fee, and wait for it to be confirmed.

The command is refused while the account is already subscribed, the
allowance already covers the fee, or another write is in flight. Once the
approval is confirmed, the allowance is read again.`,
	Example: `  subpass approve
  subpass approve --yes --max-fee 0.002`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWrite(cmd, ledger.KindApprove)
	},
}

// subscribeCmd activates the subscription using the approved allowance.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Activate the subscription",
	Long: `Call subscribe on the subscription contract and wait for it to be confirmed.

The command needs an allowance and a token balance that both cover the fee.
Once the subscription is confirmed, the entitlement is read again.`,
	Example: `  subpass subscribe
  subpass subscribe --yes`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWrite(cmd, ledger.KindSubscribe)
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	for _, c := range []*cobra.Command{approveCmd, subscribeCmd} {
		c.GroupID = groupFlow
		rootCmd.AddCommand(c)
		addSigningFlags(c)
	}
}

func addSigningFlags(c *cobra.Command) {
	c.Flags().BoolVarP(&writeYes, "yes", "y", false, "sign without asking for confirmation")
	c.Flags().StringVar(&writeMaxFee, "max-fee", "", "decline to sign when the gas cost could exceed this many ETH")
}

func runWrite(cmd *cobra.Command, kind ledger.WriteKind) error {
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

	op, err := f.write(ctx, kind)
	if err != nil {
		return err
	}
	if err := interrupted(ctx, op); err != nil {
		return err
	}

	if err := output.RenderView(cc.Fmt, f.ctrl.View(), f.viewOptions(ctx, cc, false)); err != nil {
		return err
	}
	if op.State == subscription.StateFailed {
		return op.Err
	}
	return nil
}

// write runs one write through the controller. The error is non-nil only
// when the write was refused before signing.
func (f *flow) write(ctx context.Context, kind ledger.WriteKind) (subscription.WriteOperation, error) {
	if kind == ledger.KindApprove {
		return f.ctrl.Approve(ctx)
	}
	return f.ctrl.Subscribe(ctx)
}

// interrupted returns errors.ErrInterrupted when op was abandoned while
// signing or confirming. Such a write is never reported as sent.
func interrupted(ctx context.Context, op subscription.WriteOperation) error {
	if !op.State.InFlight() {
		return nil
	}
	details := map[string]string{
		"action": op.Kind.String(),
		"stage":  op.State.String(),
	}
	if op.HasHandle() {
		details["tx_hash"] = op.Handle.Hex()
	}
	return suberr.WithDetails(suberr.WithCause(suberr.ErrInterrupted, ctx.Err()), details)
}

// newApprover builds the signing gate: a gas cost ceiling, then an
// interactive confirmation unless yes is set.
func newApprover(cc *CommandContext, yes bool, maxFee string) (eth.Approver, error) {
	var ceiling *big.Int
	if maxFee != "" {
		wei, err := chain.ParseUnits(maxFee, nativeDecimals, suberr.ErrInvalidAmount)
		if err != nil {
			return nil, suberr.WithDetails(err, map[string]string{"max_fee": maxFee})
		}
		ceiling = wei
	}

	return func(_ context.Context, req eth.SignRequest) (bool, error) {
		cost := req.MaxGasCost()
		if ceiling != nil && cost.Cmp(ceiling) > 0 {
			cc.Log.Debug("declining %s: gas cost %s exceeds --max-fee %s",
				req.Call.Kind, chain.FormatUnits(cost, nativeDecimals), maxFee)
			return false, nil
		}
		if yes {
			return true, nil
		}
		outln(os.Stderr, describeRequest(cc, req))
		return promptConfirmFn("Sign and send this transaction?"), nil
	}, nil
}

// describeRequest summarizes a pending transaction for the confirmation prompt.
func describeRequest(cc *CommandContext, req eth.SignRequest) string {
	c := cc.Cfg.Contracts
	action := "subscribe on " + req.Call.Contract.Hex()
	if req.Call.Kind == ledger.KindApprove {
		action = fmt.Sprintf("approve %s to spend %s",
			req.Call.Spender.Hex(), chain.FormatTokenAmount(req.Call.Amount, c.TokenDecimals, c.TokenSymbol))
	}
	return fmt.Sprintf("\nFrom:     %s\nAction:   %s\nGas:      up to %s ETH (%d at %s)\n",
		req.From.Hex(), action,
		chain.FormatUnits(req.MaxGasCost(), nativeDecimals), req.GasLimit, eth.FormatGasPrice(req.GasPrice))
}
