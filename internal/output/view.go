package output

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/chain"
	"github.com/mrz1836/subpass/internal/subscription"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// nativeDecimals is the decimal precision of the gas token.
const nativeDecimals = 18

// ViewOptions controls how amounts and links are shown.
type ViewOptions struct {
	Symbol   string
	Decimals int
	Network  chain.Network

	// KeyAvailable is set when a signing key exists for the account even
	// though this view was built without unlocking it.
	KeyAvailable bool

	// Diagnostics read outside the controller. Either may be nil.
	NativeBalance *big.Int
	PaymentToken  *common.Address
}

// tokenMismatch reports whether the subscription contract charges a
// different token than the one configured.
func (o ViewOptions) tokenMismatch(v subscription.View) bool {
	return o.PaymentToken != nil && *o.PaymentToken != v.Endpoints.Token
}

// ViewJSON is the JSON form of a flow view. Amounts are base-unit integers
// as decimal strings plus a formatted copy.
type ViewJSON struct {
	Phase        string         `json:"phase"`
	Account      string         `json:"account,omitempty"`
	Token        string         `json:"token_contract,omitempty"`
	Subscription string         `json:"subscription_contract,omitempty"`
	Reads        []ReadJSON     `json:"reads,omitempty"`
	Derived      *DerivedJSON   `json:"derived,omitempty"`
	Writes       []WriteJSON    `json:"writes"`
	Actions      []string       `json:"actions"`
	Warnings     []string       `json:"warnings,omitempty"`
	Notices      []NoticeJSON   `json:"notices,omitempty"`
	Config       *ErrorDetail   `json:"config_error,omitempty"`
	Diagnostics  map[string]any `json:"diagnostics,omitempty"`
}

// ReadJSON is one cached read.
type ReadJSON struct {
	Query     string `json:"query"`
	Status    string `json:"status"`
	Value     string `json:"value,omitempty"`
	Formatted string `json:"formatted,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DerivedJSON mirrors subscription.DerivedState.
type DerivedJSON struct {
	HasSufficientBalance   bool `json:"has_sufficient_balance"`
	HasSufficientAllowance bool `json:"has_sufficient_allowance"`
	IsEntitled             bool `json:"is_entitled"`
}

// WriteJSON is one write tracker.
type WriteJSON struct {
	Kind     string `json:"kind"`
	State    string `json:"state"`
	Progress string `json:"progress,omitempty"`
	Handle   string `json:"tx_hash,omitempty"`
	Link     string `json:"link,omitempty"`
	Block    uint64 `json:"block,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NoticeJSON is one dismissible failure notice.
type NoticeJSON struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Progress is the short label shown while a write is in flight.
func Progress(state subscription.WriteState) string {
	switch state {
	case subscription.StateSigning:
		return "awaiting signature"
	case subscription.StateConfirming:
		return "confirming"
	case subscription.StateIdle, subscription.StateConfirmed, subscription.StateFailed:
	}
	return ""
}

// PhaseMessage describes a phase in one sentence.
func PhaseMessage(p subscription.Phase) string {
	switch p {
	case subscription.PhaseDisconnected:
		return suberr.UserMessage(suberr.ErrConnection)
	case subscription.PhaseConfigInvalid:
		return suberr.UserMessage(suberr.ErrConfiguration)
	case subscription.PhaseSessionLoading:
		return "Waiting for the wallet to report an address."
	case subscription.PhaseReadLoading:
		return "Loading subscription data."
	case subscription.PhaseReadError:
		return suberr.UserMessage(suberr.ErrRead)
	case subscription.PhaseEntitled:
		return "Your subscription is active."
	case subscription.PhaseUnentitled:
		return "You are not subscribed."
	}
	return ""
}

// Actions lists the writes the view enables, in flow order.
func Actions(v subscription.View) []string {
	actions := []string{}
	if v.CanApprove {
		actions = append(actions, "approve")
	}
	if v.CanSubscribe {
		actions = append(actions, "subscribe")
	}
	return actions
}

// NewViewJSON converts v for JSON output.
func NewViewJSON(v subscription.View, opts ViewOptions) ViewJSON {
	out := ViewJSON{
		Phase:   v.Phase.String(),
		Writes:  []WriteJSON{newWriteJSON(v.Approve, opts), newWriteJSON(v.Subscribe, opts)},
		Actions: Actions(v),
	}
	if v.Subject != (common.Address{}) {
		out.Account = v.Subject.Hex()
	}
	if v.ConfigErr != nil {
		d := NewErrorDetail(v.ConfigErr)
		out.Config = &d
	} else {
		out.Token = v.Endpoints.Token.Hex()
		out.Subscription = v.Endpoints.Subscription.Hex()
	}

	if hasReads(v.Phase) {
		out.Reads = readsJSON(v, opts)
		out.Derived = &DerivedJSON{
			HasSufficientBalance:   v.Derived.HasSufficientBalance,
			HasSufficientAllowance: v.Derived.HasSufficientAllowance,
			IsEntitled:             v.Derived.IsEntitled,
		}
	}

	out.Warnings = warnings(v, opts)
	for _, n := range v.Notices {
		out.Notices = append(out.Notices, NoticeJSON{ID: n.ID, Kind: n.Kind.String(), Code: n.Code, Message: n.Message})
	}

	if opts.NativeBalance != nil || opts.PaymentToken != nil {
		out.Diagnostics = map[string]any{}
		if opts.NativeBalance != nil {
			out.Diagnostics["native_balance"] = chain.FormatUnits(opts.NativeBalance, nativeDecimals)
		}
		if opts.PaymentToken != nil {
			out.Diagnostics["payment_token"] = opts.PaymentToken.Hex()
		}
	}
	return out
}

func hasReads(p subscription.Phase) bool {
	return p == subscription.PhaseReadLoading || p == subscription.PhaseReadError ||
		p == subscription.PhaseEntitled || p == subscription.PhaseUnentitled
}

func readsJSON(v subscription.View, opts ViewOptions) []ReadJSON {
	s := v.Snapshots
	return []ReadJSON{
		flagRead(subscription.QueryEntitlement, s.Entitlement),
		amountRead(subscription.QueryBalance, s.Balance, opts),
		amountRead(subscription.QueryFee, s.Fee, opts),
		amountRead(subscription.QueryAllowance, s.Allowance, opts),
	}
}

func readStatus(resolved, loading bool, err error) string {
	switch {
	case loading:
		return "loading"
	case err != nil:
		return "error"
	case resolved:
		return "ok"
	}
	return "pending"
}

func flagRead(q subscription.Query, s subscription.Snapshot[bool]) ReadJSON {
	r := ReadJSON{Query: q.String(), Status: readStatus(s.Resolved, s.Loading, s.Err)}
	if s.Resolved {
		r.Value = fmt.Sprintf("%t", s.Value)
		r.Formatted = yesNo(s.Value)
	}
	if s.Err != nil {
		r.Error = s.Err.Error()
	}
	return r
}

func amountRead(q subscription.Query, s subscription.Snapshot[*big.Int], opts ViewOptions) ReadJSON {
	r := ReadJSON{Query: q.String(), Status: readStatus(s.Resolved, s.Loading, s.Err)}
	if s.Resolved && s.Value != nil {
		r.Value = s.Value.String()
		r.Formatted = chain.FormatTokenAmount(s.Value, opts.Decimals, opts.Symbol)
	}
	if s.Err != nil {
		r.Error = s.Err.Error()
	}
	return r
}

func newWriteJSON(op subscription.WriteOperation, opts ViewOptions) WriteJSON {
	w := WriteJSON{
		Kind:     op.Kind.String(),
		State:    op.State.String(),
		Progress: Progress(op.State),
	}
	if op.HasHandle() {
		w.Handle = op.Handle.Hex()
		w.Link = opts.Network.TxURL(w.Handle)
	}
	if op.Receipt != nil {
		w.Block = op.Receipt.BlockNumber
	}
	if op.Err != nil {
		w.Error = suberr.UserMessage(op.Err)
	}
	return w
}

func warnings(v subscription.View, opts ViewOptions) []string {
	var out []string
	if v.BalanceWarning {
		out = append(out, suberr.UserMessage(suberr.ErrInsufficientBalance))
	}
	if opts.tokenMismatch(v) {
		out = append(out, fmt.Sprintf("The subscription contract charges %s, not the configured token %s.",
			opts.PaymentToken.Hex(), v.Endpoints.Token.Hex()))
	}
	canSign := !v.ReadOnly || opts.KeyAvailable
	if opts.NativeBalance != nil && opts.NativeBalance.Sign() == 0 && canSign {
		out = append(out, "The account holds no native balance to pay gas.")
	}
	if !canSign && (v.CanApprove || v.CanSubscribe) {
		out = append(out, "Watch-only session: import a signing key to act.")
	}
	return out
}

// RenderView writes v in the formatter's format.
func RenderView(f *Formatter, v subscription.View, opts ViewOptions) error {
	return f.Emit(NewViewJSON(v, opts), func(w io.Writer) error {
		return renderViewText(w, v, opts)
	})
}

func renderViewText(w io.Writer, v subscription.View, opts ViewOptions) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Status:   %s\n", PhaseMessage(v.Phase))
	if v.Subject != (common.Address{}) {
		fmt.Fprintf(&sb, "Account:  %s\n", v.Subject.Hex())
	}
	if v.ConfigErr != nil {
		fmt.Fprintf(&sb, "Config:   %v\n", v.ConfigErr)
	}
	if opts.Network.Name != "" {
		fmt.Fprintf(&sb, "Network:  %s\n", opts.Network.Name)
	}
	if opts.NativeBalance != nil {
		fmt.Fprintf(&sb, "Gas:      %s\n", chain.FormatUnits(opts.NativeBalance, nativeDecimals))
	}

	if hasReads(v.Phase) {
		sb.WriteString("\n")
		table := NewTable("READ", "VALUE", "STATUS")
		table.SetIndent("  ")
		for _, r := range readsJSON(v, opts) {
			status := r.Status
			if r.Error != "" {
				status = "error: " + r.Error
			}
			table.AddRow(r.Query, r.Formatted, status)
		}
		sb.WriteString(table.String())
	}

	for _, op := range []subscription.WriteOperation{v.Approve, v.Subscribe} {
		if line := writeLine(op, opts); line != "" {
			fmt.Fprintf(&sb, "\n%-9s %s", titleCase(op.Kind.String())+":", line)
		}
	}
	if v.Approve.State != subscription.StateIdle || v.Subscribe.State != subscription.StateIdle {
		sb.WriteString("\n")
	}

	if actions := Actions(v); len(actions) > 0 {
		fmt.Fprintf(&sb, "\nNext:     subpass %s\n", actions[0])
	}

	for _, warn := range warnings(v, opts) {
		fmt.Fprintf(&sb, "\n⚠️  %s", warn)
	}
	for _, n := range v.Notices {
		fmt.Fprintf(&sb, "\n[%s] %s failed: %s", shortID(n.ID), n.Kind, n.Message)
	}
	if len(v.Notices) > 0 || len(warnings(v, opts)) > 0 {
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeLine(op subscription.WriteOperation, opts ViewOptions) string {
	switch op.State {
	case subscription.StateIdle:
		return ""
	case subscription.StateSigning:
		return Progress(op.State)
	case subscription.StateConfirming:
		return fmt.Sprintf("%s %s", Progress(op.State), txRef(op, opts))
	case subscription.StateConfirmed:
		block := uint64(0)
		if op.Receipt != nil {
			block = op.Receipt.BlockNumber
		}
		return fmt.Sprintf("confirmed in block %d %s", block, txRef(op, opts))
	case subscription.StateFailed:
		return "failed: " + suberr.UserMessage(op.Err)
	}
	return ""
}

func txRef(op subscription.WriteOperation, opts ViewOptions) string {
	if link := opts.Network.TxURL(op.Handle.Hex()); link != "" {
		return link
	}
	return op.Handle.Hex()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
